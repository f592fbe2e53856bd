// dot-escrow MCP server - exposes escrow and governance reads as MCP tools for LLMs
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	"github.com/samuelarogbonlo/dot-escrow/internal/config"
	"github.com/samuelarogbonlo/dot-escrow/internal/logging"
	"github.com/samuelarogbonlo/dot-escrow/internal/mcpserver"
	"github.com/samuelarogbonlo/dot-escrow/internal/validation"
)

// Version is set by ldflags
var Version = "dev"

func main() {
	_ = godotenv.Load()

	// stdout carries the MCP protocol
	logger := logging.NewWriter(os.Stderr, envOrDefault("LOG_LEVEL", "info"), "text")

	cfg := mcpserver.Config{
		APIURL:        envOrDefault("ESCROW_API_URL", config.DefaultAPIURL),
		CallerAddress: os.Getenv("ESCROW_CALLER_ADDRESS"),
	}
	if cfg.CallerAddress != "" && !validation.IsValidAddress(cfg.CallerAddress) {
		logger.Error("ESCROW_CALLER_ADDRESS must be a valid SS58 address")
		os.Exit(1)
	}

	logger.Info("starting MCP server", "api", cfg.APIURL, "version", Version)

	s := mcpserver.NewMCPServer(cfg, Version, logger)
	if err := server.ServeStdio(s); err != nil {
		logger.Error("MCP server error", "error", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

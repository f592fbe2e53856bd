// dot-escrow - HTTP gateway for the milestone escrow ink! contract
package main

import (
	"context"
	"os"
	"time"

	"github.com/samuelarogbonlo/dot-escrow/internal/config"
	"github.com/samuelarogbonlo/dot-escrow/internal/logging"
	"github.com/samuelarogbonlo/dot-escrow/internal/retry"
	"github.com/samuelarogbonlo/dot-escrow/internal/server"
	"github.com/samuelarogbonlo/dot-escrow/internal/substrate"
	"github.com/samuelarogbonlo/dot-escrow/internal/traces"
	"github.com/samuelarogbonlo/dot-escrow/internal/wallet"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Create logger
	logger := logging.New("info", "text")

	logger.Info("starting dot-escrow",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger = logging.New(cfg.LogLevel, cfg.LogFormat)

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"node", cfg.NodeRPCURL,
		"contract", cfg.ContractAddress,
		"ss58_prefix", cfg.SS58Prefix,
	)

	ctx := context.Background()

	shutdownTraces, err := traces.Init(ctx, traces.Config{
		Endpoint:    cfg.OTLPEndpoint,
		Version:     Version,
		SampleRatio: cfg.TraceSampleRatio,
	}, logger)
	if err != nil {
		logger.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTraces(sctx)
	}()

	// Connect to the node, retrying while it starts up
	dialCtx := logging.WithLogger(ctx, logger)
	node, err := retry.Value(dialCtx, cfg.DialAttempts, time.Second, func() (*substrate.Client, error) {
		return substrate.Dial(dialCtx, cfg.NodeRPCURL)
	})
	if err != nil {
		logger.Error("failed to connect to node", "url", cfg.NodeRPCURL, "error", err)
		os.Exit(1)
	}

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithVersion(Version),
		server.WithNode(node),
		server.WithCloser(node.Close),
	}

	if cfg.SignerBridgeURL != "" {
		bridge, err := wallet.New(wallet.Config{URL: cfg.SignerBridgeURL}, wallet.WithLogger(logger))
		if err != nil {
			logger.Error("failed to configure signing bridge", "error", err)
			os.Exit(1)
		}
		opts = append(opts, server.WithExtension(bridge))
	} else {
		logger.Warn("SIGNER_BRIDGE_URL not set, state-changing calls will fail")
	}

	// Create and run server
	srv, err := server.New(cfg, opts...)
	if err != nil {
		node.Close()
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// slogAdapter satisfies goose.Logger.
type slogAdapter struct{ l *slog.Logger }

func (a slogAdapter) Printf(format string, v ...any) {
	a.l.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (a slogAdapter) Fatalf(format string, v ...any) {
	a.l.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
	os.Exit(1)
}

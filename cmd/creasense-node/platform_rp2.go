//go:build rp2040 || rp2350

package main

import (
	"context"
	"log/slog"
	"time"

	"creasense-go/services/config"
	"creasense-go/services/link"
)

// No flags on the device; the variant comes from the build tag.
type args struct {
	variant    string
	configPath string
	logLevel   string
}

func parseArgs() args {
	// Allow USB CDC to enumerate before we log.
	time.Sleep(2 * time.Second)
	return args{}
}

func rootContext() (context.Context, context.CancelFunc) {
	return context.WithCancel(context.Background())
}

// halt parks the core; the watchdog, if armed, resets the board.
func halt(int) {
	for {
		time.Sleep(time.Hour)
	}
}

func newSidecar(*config.Config, *link.Session, string, *slog.Logger) sidecar { return nil }

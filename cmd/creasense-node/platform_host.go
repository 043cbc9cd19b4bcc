//go:build !rp2040 && !rp2350

package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"creasense-go/bus"
	"creasense-go/services/config"
	"creasense-go/services/link"
	"creasense-go/services/status"
	"creasense-go/types"
	"creasense-go/x/slogx"
)

type args struct {
	variant    string
	configPath string
	logLevel   string
}

func parseArgs() args {
	var a args
	flag.StringVar(&a.variant, "variant", "", "sensor variant: light, soil or temp")
	flag.StringVar(&a.configPath, "config", "", "YAML file overriding the embedded defaults")
	flag.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")
	flag.Parse()
	return a
}

func rootContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func halt(code int) { os.Exit(code) }

type statusSidecar struct {
	*status.Service
	addr string
	log  *slog.Logger
}

func newSidecar(cfg *config.Config, sess *link.Session, bootID string, log *slog.Logger) sidecar {
	if cfg.Status.Listen == "" {
		return nil
	}
	svc := status.New(status.Info{
		Sensor:    cfg.Node.Name,
		Kind:      types.Kind(cfg.Node.Kind),
		BootID:    bootID,
		Transport: cfg.Network.Transport,
		Endpoint:  cfg.Network.Endpoint(),
	}, sess.Stats, log)
	return &statusSidecar{Service: svc, addr: cfg.Status.Listen, log: log}
}

func (s *statusSidecar) Start(ctx context.Context, conn *bus.Connection) {
	go s.Watch(ctx, conn)
	go func() {
		if err := s.ListenAndServe(ctx, s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("status server", slogx.ErrAttr(err))
		}
	}()
}

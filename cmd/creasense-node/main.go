// Command creasense-node samples one sensor, classifies and normalizes each
// reading and streams it to the collector.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"creasense-go/bus"
	"creasense-go/errcode"
	"creasense-go/services/config"
	"creasense-go/services/heartbeat"
	"creasense-go/services/indicator"
	"creasense-go/services/link"
	"creasense-go/services/pipeline"
	"creasense-go/services/sensor"
	"creasense-go/services/telemetry"
	"creasense-go/services/variant/light"
	"creasense-go/services/variant/soil"
	"creasense-go/services/variant/temp"
	"creasense-go/services/watchdog"
	"creasense-go/types"
	"creasense-go/x/slogx"
	"creasense-go/x/timex"
)

func main() { halt(start(parseArgs())) }

// start runs the node and returns the process exit code.
func start(a args) int {
	ctx, stop := rootContext()
	defer stop()

	boot := slogx.New(os.Stderr, slogx.ParseLevel(a.logLevel, slog.LevelInfo), "text")

	kind, err := pickVariant(builtVariant, a.variant)
	if err != nil {
		return failed(boot, "variant", err)
	}
	cfg, err := config.Load(string(kind), a.configPath)
	if err != nil {
		return failed(boot, "config", err)
	}

	level := slogx.ParseLevel(cfg.Log.Level, slog.LevelInfo)
	if a.logLevel != "" {
		level = slogx.ParseLevel(a.logLevel, level)
	}
	log := slogx.New(os.Stderr, level, cfg.Log.Format).With("sensor", cfg.Node.Name)

	if err := runVariant(ctx, kind, cfg, log); err != nil {
		return failed(log, "run", err)
	}
	return 0
}

// pickVariant resolves the variant: a build tag wins, then the flag, then
// light.
func pickVariant(built types.Kind, flag string) (types.Kind, error) {
	if built != "" {
		if flag != "" && types.Kind(flag) != built {
			return "", errcode.Newf(errcode.UnknownKind, "main", "binary is built for "+string(built)+", not "+flag)
		}
		return built, nil
	}
	if flag == "" {
		return types.KindLight, nil
	}
	k := types.Kind(flag)
	if !k.Valid() {
		return "", errcode.Newf(errcode.UnknownKind, "main", flag)
	}
	return k, nil
}

func runVariant(ctx context.Context, kind types.Kind, cfg *config.Config, log *slog.Logger) error {
	switch kind {
	case types.KindLight:
		return run(ctx, cfg, log, light.New)
	case types.KindSoil:
		return run(ctx, cfg, log, soil.New)
	case types.KindTemperature:
		return run(ctx, cfg, log, temp.New)
	}
	return errcode.Newf(errcode.UnknownKind, "main", string(kind))
}

// sidecar is an optional local status surface fed by scheduler outcomes.
type sidecar interface {
	pipeline.Observer
	Start(ctx context.Context, conn *bus.Connection)
}

// node is everything run wires together.
type node[C pipeline.Category] struct {
	bus       *bus.Bus
	session   *link.Session
	indicator *indicator.Indicator
	watchdog  *watchdog.Watchdog
	scheduler *pipeline.Scheduler[C]
	side      sidecar
	closer    io.Closer
}

// checkPlatform rejects a transport or driver this build does not carry.
func checkPlatform(cfg *config.Config) error {
	var errs []error
	if have := link.Transports(); !slices.Contains(have, cfg.Network.Transport) {
		errs = append(errs, errcode.Newf(errcode.ConfigInvalid, "config.network.transport",
			fmt.Sprintf("%q is not available on %s (have %v)", cfg.Network.Transport, config.Platform, have)))
	}
	if have := sensor.Drivers(); !slices.Contains(have, cfg.Sensor.Driver) {
		errs = append(errs, errcode.Newf(errcode.ConfigInvalid, "config.sensor.driver",
			fmt.Sprintf("%q is not available on %s (have %v)", cfg.Sensor.Driver, config.Platform, have)))
	}
	return errors.Join(errs...)
}

func build[C pipeline.Category](cfg *config.Config, log *slog.Logger, clock timex.Clock, newCap func(*config.Config) (*pipeline.Basic[C], error)) (*node[C], error) {
	if err := checkPlatform(cfg); err != nil {
		return nil, err
	}
	capab, err := newCap(cfg)
	if err != nil {
		return nil, err
	}
	kind := capab.Kind()

	drv, err := sensor.NewDriver(cfg.Sensor.Driver, kind, cfg.Sensor)
	if err != nil {
		return nil, err
	}
	sampler := sensor.NewSampler(drv, sensor.SamplerOptions{
		Timeout:  cfg.Sensor.Timeout,
		ValidMin: cfg.Sensor.ValidMin,
		ValidMax: cfg.Sensor.ValidMax,
		Clock:    clock,
		Logger:   log,
	})

	tr, err := link.NewTransport(cfg)
	if err != nil {
		return nil, err
	}

	bootID := telemetry.NewBootID()
	enc := telemetry.NewEncoder(cfg.Node.Name, kind, bootID, clock.Now())
	b := bus.NewBus(8)
	bo := cfg.Link.Backoff

	n := &node[C]{bus: b}
	if c, ok := drv.(io.Closer); ok {
		n.closer = c
	}
	n.session = link.NewSession(tr, link.Hello{Sensor: cfg.Node.Name, Kind: kind, BootID: bootID.String()}, link.Options{
		ConnectTimeout: cfg.Link.ConnectTimeout,
		WriteTimeout:   cfg.Link.WriteTimeout,
		Backoff:        link.NewBackoff(bo.Initial, bo.Max, bo.Multiplier, bo.Jitter, clock),
		Clock:          clock,
		Conn:           b.NewConnection("link"),
		Logger:         log,
	})
	n.indicator = indicator.New(indicator.NewPin(cfg.Indicator.Pin, log), cfg.Indicator, b.NewConnection("indicator"))
	n.watchdog = watchdog.New(cfg.Watchdog, log)

	opts := pipeline.Options{
		Interval:  cfg.Node.ReadingInterval,
		Tick:      cfg.Node.Tick,
		Indicator: n.indicator,
		Watchdog:  n.watchdog,
		Conn:      b.NewConnection("scheduler"),
		Clock:     clock,
		Logger:    log,
	}
	n.side = newSidecar(cfg, n.session, bootID.String(), log)
	if n.side != nil {
		opts.Observer = n.side
	}
	n.scheduler = pipeline.NewScheduler[C](capab, sampler, enc, n.session, opts)

	log.Info("node ready",
		"kind", string(kind),
		"driver", cfg.Sensor.Driver,
		"transport", tr.String(),
		"boot_id", bootID.String(),
		"interval", cfg.Node.ReadingInterval)
	return n, nil
}

func run[C pipeline.Category](ctx context.Context, cfg *config.Config, log *slog.Logger, newCap func(*config.Config) (*pipeline.Basic[C], error)) error {
	n, err := build(cfg, log, timex.System, newCap)
	if err != nil {
		return err
	}
	defer n.watchdog.Stop()
	if n.closer != nil {
		defer n.closer.Close()
	}

	if n.side != nil {
		n.side.Start(ctx, n.bus.NewConnection("status"))
	}
	heartbeat.New(cfg.Log.Heartbeat, n.session.Stats, log).Start(ctx, n.bus.NewConnection("heartbeat"))
	err = n.scheduler.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func failed(log *slog.Logger, what string, err error) int {
	log.Error(what+" failed", "code", string(errcode.Of(err)), slogx.ErrAttr(err))
	return 1
}

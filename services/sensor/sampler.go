package sensor

import (
	"context"
	"log/slog"
	"time"

	"creasense-go/errcode"
	"creasense-go/types"
	"creasense-go/x/mathx"
	"creasense-go/x/slogx"
	"creasense-go/x/timex"
)

type SamplerOptions struct {
	Timeout  time.Duration
	ValidMin float64
	ValidMax float64
	Clock    timex.Clock
	Logger   *slog.Logger
}

type result struct {
	m   Measurement
	err error
}

// Sampler bounds and validates driver reads. A read that overruns its
// timeout is abandoned; until it finishes, further samples fail fast with
// errcode.Timeout so the driver is never entered twice.
type Sampler struct {
	drv      Driver
	timeout  time.Duration
	min, max float64
	clock    timex.Clock
	log      *slog.Logger

	last     float64
	inflight chan result
}

func NewSampler(drv Driver, opts SamplerOptions) *Sampler {
	s := &Sampler{
		drv:     drv,
		timeout: opts.Timeout,
		min:     opts.ValidMin,
		max:     opts.ValidMax,
		clock:   opts.Clock,
		log:     opts.Logger,
	}
	if s.timeout <= 0 {
		s.timeout = time.Second
	}
	if s.clock == nil {
		s.clock = timex.System
	}
	if s.log == nil {
		s.log = slogx.Discard()
	}
	s.log = s.log.With("component", "sensor")
	return s
}

// Last returns the most recent valid value, 0 before the first.
func (s *Sampler) Last() float64 { return s.last }

// Sample performs one bounded read.
func (s *Sampler) Sample(ctx context.Context) types.Reading {
	if s.inflight != nil {
		select {
		case <-s.inflight:
			s.inflight = nil
		default:
			return s.fault(errcode.Newf(errcode.Timeout, "sensor.read", "previous read still running"))
		}
	}

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ch := make(chan result, 1)
	go func() {
		m, err := s.drv.Read(cctx)
		ch <- result{m, err}
	}()

	var res result
	select {
	case res = <-ch:
	case <-cctx.Done():
		s.inflight = ch
		return s.fault(errcode.New(errcode.Timeout, "sensor.read", cctx.Err()))
	}

	if res.err != nil {
		code := errcode.SensorFault
		if cctx.Err() != nil {
			code = errcode.Timeout
		}
		return s.fault(errcode.New(code, "sensor.read", res.err))
	}
	v := res.m.Value
	if !mathx.Finite(v) {
		return s.fault(errcode.Newf(errcode.SensorFault, "sensor.read", "non-finite value"))
	}
	if v < s.min || v > s.max {
		return s.fault(errcode.Newf(errcode.OutOfRange, "sensor.read", "value outside validity window"))
	}

	s.last = v
	r := types.Reading{Value: v, Valid: true, CapturedAt: s.clock.Now()}
	for k, x := range res.m.Extra {
		if !mathx.Finite(x) {
			continue
		}
		if r.Extra == nil {
			r.Extra = make(map[string]float64, len(res.m.Extra))
		}
		r.Extra[k] = x
	}
	return r
}

func (s *Sampler) fault(err error) types.Reading {
	s.log.Debug("read rejected", slogx.ErrAttr(err))
	return types.Reading{Value: s.last, Valid: false, CapturedAt: s.clock.Now(), Err: err}
}

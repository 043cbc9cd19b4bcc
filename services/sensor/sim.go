package sensor

import (
	"context"
	"math"
	"math/rand"
	"time"

	"creasense-go/services/config"
	"creasense-go/types"
	"creasense-go/x/timex"
)

func init() {
	RegisterDriver("sim", func(kind types.Kind, cfg config.Sensor) (Driver, error) {
		return NewSim(kind, cfg.Sim, timex.System, 1), nil
	})
}

// Sim produces a raised-cosine sweep between Min and Max with one full cycle
// per Period, plus optional uniform noise. Same seed, same clock, same
// values.
type Sim struct {
	kind  types.Kind
	cfg   config.Sim
	clock timex.Clock
	start time.Time
	rnd   *rand.Rand
}

func NewSim(kind types.Kind, cfg config.Sim, clock timex.Clock, seed int64) *Sim {
	return &Sim{kind: kind, cfg: cfg, clock: clock, start: clock.Now(), rnd: rand.New(rand.NewSource(seed))}
}

func (s *Sim) Read(ctx context.Context) (Measurement, error) {
	if err := ctx.Err(); err != nil {
		return Measurement{}, err
	}
	var phase float64
	if s.cfg.Period > 0 {
		el := s.clock.Now().Sub(s.start)
		phase = float64(el%s.cfg.Period) / float64(s.cfg.Period)
	}
	v := s.cfg.Min + (s.cfg.Max-s.cfg.Min)*(1-math.Cos(2*math.Pi*phase))/2
	if s.cfg.Noise > 0 {
		v += s.cfg.Noise * (2*s.rnd.Float64() - 1)
	}
	m := Measurement{Value: v}
	if s.kind == types.KindTemperature {
		m.Extra = map[string]float64{types.ExtraHumidity: 45 + 15*math.Sin(2*math.Pi*phase)}
	}
	return m, nil
}

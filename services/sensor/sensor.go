// Package sensor turns a hardware or simulated driver into the sample
// source of the pipeline: one bounded read per call, validated, with the
// last good value carried across faults.
package sensor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"creasense-go/errcode"
	"creasense-go/services/config"
	"creasense-go/types"
)

// Measurement is what a driver reports for one transaction.
type Measurement struct {
	Value float64
	Extra map[string]float64
}

// Driver performs one read. Implementations should honour ctx, but the
// Sampler enforces the timeout regardless.
type Driver interface {
	Read(ctx context.Context) (Measurement, error)
}

// Factory builds a driver for a variant from its sensor configuration.
type Factory func(kind types.Kind, cfg config.Sensor) (Driver, error)

var (
	regMu   sync.RWMutex
	drivers = map[string]Factory{}
)

// RegisterDriver makes a driver available by name. Platform files register
// theirs from init.
func RegisterDriver(name string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	drivers[name] = f
}

// NewDriver builds the named driver.
func NewDriver(name string, kind types.Kind, cfg config.Sensor) (Driver, error) {
	regMu.RLock()
	f, ok := drivers[name]
	regMu.RUnlock()
	if !ok {
		return nil, errcode.Newf(errcode.UnknownDriver, "sensor", fmt.Sprintf("%q (have %v)", name, Drivers()))
	}
	d, err := f(kind, cfg)
	if err != nil {
		return nil, errcode.New(errcode.SensorFault, "sensor."+name, err)
	}
	return d, nil
}

// Drivers lists registered driver names.
func Drivers() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(drivers))
	for n := range drivers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// DriverFunc adapts a function to Driver.
type DriverFunc func(ctx context.Context) (Measurement, error)

func (f DriverFunc) Read(ctx context.Context) (Measurement, error) { return f(ctx) }

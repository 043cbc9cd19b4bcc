//go:build rp2040 || rp2350

package sensor

import (
	"context"
	"fmt"
	"machine"
	"time"

	"creasense-go/drivers/aht20"
	"creasense-go/services/config"
	"creasense-go/types"
	"creasense-go/x/mathx"

	"tinygo.org/x/drivers/bh1750"
	"tinygo.org/x/drivers/dht"
)

func init() {
	RegisterDriver("bh1750", newBH1750)
	RegisterDriver("dht11", func(kind types.Kind, cfg config.Sensor) (Driver, error) { return newDHT(cfg, dht.DHT11) })
	RegisterDriver("dht22", func(kind types.Kind, cfg config.Sensor) (Driver, error) { return newDHT(cfg, dht.DHT22) })
	RegisterDriver("adc", newADC)
	RegisterDriver("aht20", newAHT20)
}

// i2cFor picks the controller whose SDA function lives on sda.
func i2cFor(sda, scl int) (*machine.I2C, error) {
	bus := machine.I2C0
	if (sda/2)%2 == 1 {
		bus = machine.I2C1
	}
	err := bus.Configure(machine.I2CConfig{
		SDA:       machine.Pin(sda),
		SCL:       machine.Pin(scl),
		Frequency: 400 * machine.KHz,
	})
	if err != nil {
		return nil, fmt.Errorf("i2c sda=%d scl=%d: %w", sda, scl, err)
	}
	return bus, nil
}

func newBH1750(_ types.Kind, cfg config.Sensor) (Driver, error) {
	if cfg.EnablePin > 0 {
		en := machine.Pin(cfg.EnablePin)
		en.Configure(machine.PinConfig{Mode: machine.PinOutput})
		en.High()
		time.Sleep(10 * time.Millisecond)
	}
	bus, err := i2cFor(cfg.SDA, cfg.SCL)
	if err != nil {
		return nil, err
	}
	dev := bh1750.New(bus)
	dev.Configure()
	return DriverFunc(func(ctx context.Context) (Measurement, error) {
		// Illuminance is in milli-lux.
		return Measurement{Value: float64(dev.Illuminance()) / 1000}, nil
	}), nil
}

func newDHT(cfg config.Sensor, typ dht.DeviceType) (Driver, error) {
	dev := dht.New(machine.Pin(cfg.DataPin), typ)
	return DriverFunc(func(ctx context.Context) (Measurement, error) {
		if err := dev.ReadMeasurements(); err != nil {
			return Measurement{}, err
		}
		t, h, err := dev.Measurements()
		if err != nil {
			return Measurement{}, err
		}
		return Measurement{
			Value: float64(t) / 10,
			Extra: map[string]float64{types.ExtraHumidity: float64(h) / 10},
		}, nil
	}), nil
}

// newADC reads a capacitive soil probe as a 12-bit count, matching the
// scale the thresholds are written in.
func newADC(_ types.Kind, cfg config.Sensor) (Driver, error) {
	machine.InitADC()
	adc := machine.ADC{Pin: machine.Pin(cfg.ADCPin)}
	adc.Configure(machine.ADCConfig{})
	return DriverFunc(func(ctx context.Context) (Measurement, error) {
		raw := mathx.MapU16(adc.Get(), 0, 0xFFFF, 0, 4095)
		return Measurement{Value: float64(raw)}, nil
	}), nil
}

func newAHT20(_ types.Kind, cfg config.Sensor) (Driver, error) {
	bus, err := i2cFor(cfg.SDA, cfg.SCL)
	if err != nil {
		return nil, err
	}
	dev := aht20.New(bus)
	if err := dev.Configure(); err != nil {
		return nil, err
	}
	return DriverFunc(func(ctx context.Context) (Measurement, error) {
		s, err := dev.Read(ctx)
		if err != nil {
			return Measurement{}, err
		}
		return Measurement{
			Value: float64(s.DeciCelsius()) / 10,
			Extra: map[string]float64{types.ExtraHumidity: float64(s.DeciRelHumidity()) / 10},
		}, nil
	}), nil
}

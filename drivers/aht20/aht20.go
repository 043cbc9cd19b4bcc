// Package aht20 drives the AHT20 temperature/humidity sensor over I2C.
//
//	d := aht20.New(bus)
//	if err := d.Configure(); err != nil { ... }
//	s, err := d.Read(ctx)    // trigger, wait, collect
//
// Trigger and Collect are exposed separately for callers that schedule the
// conversion themselves. Conversions are integer-only; Sample offers tenths
// of °C and %RH as well as float helpers.
package aht20

import (
	"context"
	"errors"
	"time"

	"tinygo.org/x/drivers"
)

const Address = 0x38

const (
	cmdTrigger    = 0xAC
	cmdInitialize = 0xBE
	cmdSoftReset  = 0xBA
	cmdStatus     = 0x71

	statusBusy       = 0x80
	statusCalibrated = 0x08

	// Nominal conversion time after a trigger.
	conversionTime = 80 * time.Millisecond
	pollInterval   = 10 * time.Millisecond
)

var (
	ErrNotReady      = errors.New("aht20: not ready")
	ErrNotCalibrated = errors.New("aht20: not calibrated")
	ErrCRC           = errors.New("aht20: crc mismatch")
)

// Device is one AHT20 on an I2C bus. Not safe for concurrent use.
type Device struct {
	bus  drivers.I2C
	addr uint16
	buf  [7]byte
}

// New wraps a configured I2C bus. It does not touch the device.
func New(bus drivers.I2C) *Device {
	return &Device{bus: bus, addr: Address}
}

// Configure sends the initialise command unless the device already reports
// calibration.
func (d *Device) Configure() error {
	st, err := d.Status()
	if err == nil && st&statusCalibrated != 0 {
		return nil
	}
	if err := d.bus.Tx(d.addr, []byte{cmdInitialize, 0x08, 0x00}, nil); err != nil {
		return err
	}
	time.Sleep(10 * time.Millisecond)
	st, err = d.Status()
	if err != nil {
		return err
	}
	if st&statusCalibrated == 0 {
		return ErrNotCalibrated
	}
	return nil
}

// Reset issues a soft reset. The device needs ~20ms before the next command.
func (d *Device) Reset() error {
	return d.bus.Tx(d.addr, []byte{cmdSoftReset}, nil)
}

func (d *Device) Status() (byte, error) {
	var st [1]byte
	if err := d.bus.Tx(d.addr, []byte{cmdStatus}, st[:]); err != nil {
		return 0, err
	}
	return st[0], nil
}

// Trigger starts a conversion and returns immediately.
func (d *Device) Trigger() error {
	return d.bus.Tx(d.addr, []byte{cmdTrigger, 0x33, 0x00}, nil)
}

// Collect fetches a finished conversion. ErrNotReady means the device is
// still busy; trigger is not repeated.
func (d *Device) Collect() (Sample, error) {
	b := d.buf[:]
	if err := d.bus.Tx(d.addr, nil, b); err != nil {
		return Sample{}, err
	}
	if b[0]&statusBusy != 0 {
		return Sample{}, ErrNotReady
	}
	if b[0]&statusCalibrated == 0 {
		return Sample{}, ErrNotCalibrated
	}
	if crc8(b[:6]) != b[6] {
		return Sample{}, ErrCRC
	}
	return Sample{
		RawHumidity: uint32(b[1])<<12 | uint32(b[2])<<4 | uint32(b[3])>>4,
		RawTemp:     uint32(b[3]&0x0F)<<16 | uint32(b[4])<<8 | uint32(b[5]),
	}, nil
}

// Read triggers a conversion and polls until it completes or ctx is done.
func (d *Device) Read(ctx context.Context) (Sample, error) {
	if err := d.Trigger(); err != nil {
		return Sample{}, err
	}
	wait := conversionTime
	for {
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return Sample{}, ctx.Err()
		case <-t.C:
		}
		s, err := d.Collect()
		if !errors.Is(err, ErrNotReady) {
			return s, err
		}
		wait = pollInterval
	}
}

// Sample is one raw 20-bit humidity/temperature pair.
type Sample struct {
	RawHumidity uint32
	RawTemp     uint32
}

// DeciRelHumidity returns tenths of %RH.
func (s Sample) DeciRelHumidity() int32 {
	return int32(s.RawHumidity) * 1000 / 0x100000
}

// DeciCelsius returns tenths of °C.
func (s Sample) DeciCelsius() int32 {
	return int32(s.RawTemp)*2000/0x100000 - 500
}

func (s Sample) RelHumidity() float64 { return float64(s.RawHumidity) * 100 / 0x100000 }
func (s Sample) Celsius() float64     { return float64(s.RawTemp)*200/0x100000 - 50 }

// crc8 is the Sensirion-style CRC used by the AHT2x family
// (poly 0x31, init 0xFF).
func crc8(b []byte) byte {
	crc := byte(0xFF)
	for _, x := range b {
		crc ^= x
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

//go:build !rp2040 && !rp2350

package sensor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"creasense-go/services/config"
	"creasense-go/types"

	"go.bug.st/serial"
)

func init() {
	RegisterDriver("serial", func(kind types.Kind, cfg config.Sensor) (Driver, error) {
		if cfg.Port == "" {
			return nil, fmt.Errorf("sensor.port not set")
		}
		baud := cfg.Baud
		if baud <= 0 {
			baud = 115200
		}
		port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: baud})
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", cfg.Port, err)
		}
		return NewLineDriver(port), nil
	})
}

// LineDriver reads newline-delimited readings from a sensor bridge. Each line
// is "<value>" or "<value>,<humidity>". A background reader keeps only the
// most recent line; Read returns it or waits for the next one.
type LineDriver struct {
	rc     io.ReadCloser
	latest chan Measurement

	mu     sync.Mutex
	err    error
	closed chan struct{}
}

func NewLineDriver(rc io.ReadCloser) *LineDriver {
	d := &LineDriver{rc: rc, latest: make(chan Measurement, 1), closed: make(chan struct{})}
	go d.readLoop()
	return d
}

func (d *LineDriver) readLoop() {
	defer close(d.closed)
	sc := bufio.NewScanner(d.rc)
	for sc.Scan() {
		m, err := ParseLine(sc.Text())
		if err != nil {
			continue
		}
		select {
		case <-d.latest:
		default:
		}
		d.latest <- m
	}
	d.mu.Lock()
	d.err = sc.Err()
	if d.err == nil {
		d.err = io.EOF
	}
	d.mu.Unlock()
}

func (d *LineDriver) Read(ctx context.Context) (Measurement, error) {
	select {
	case m := <-d.latest:
		return m, nil
	default:
	}
	select {
	case m := <-d.latest:
		return m, nil
	case <-d.closed:
		d.mu.Lock()
		defer d.mu.Unlock()
		return Measurement{}, d.err
	case <-ctx.Done():
		return Measurement{}, ctx.Err()
	}
}

func (d *LineDriver) Close() error { return d.rc.Close() }

// ParseLine parses one bridge line.
func ParseLine(line string) (Measurement, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	v, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil {
		return Measurement{}, err
	}
	m := Measurement{Value: v}
	if len(fields) > 1 {
		h, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if err != nil {
			return Measurement{}, err
		}
		m.Extra = map[string]float64{types.ExtraHumidity: h}
	}
	return m, nil
}

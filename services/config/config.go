// Package config builds the immutable node configuration from embedded
// per-variant defaults, an optional YAML override file and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"creasense-go/errcode"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Node      Node      `yaml:"node"`
	Network   Network   `yaml:"network"`
	Link      Link      `yaml:"link"`
	Sensor    Sensor    `yaml:"sensor"`
	Classify  Classify  `yaml:"classify"`
	Normalize Normalize `yaml:"normalize"`
	Indicator Indicator `yaml:"indicator"`
	Watchdog  Watchdog  `yaml:"watchdog"`
	Status    Status    `yaml:"status"`
	Log       Log       `yaml:"log"`
}

type Node struct {
	Name            string        `yaml:"name"`
	Kind            string        `yaml:"kind"`
	ReadingInterval time.Duration `yaml:"reading_interval"`
	Tick            time.Duration `yaml:"tick"`
}

// Network holds the collector endpoint and the credentials handed to the
// network co-processor when the serial transport is used.
type Network struct {
	WiFiSSID     string `yaml:"wifi_ssid"`
	WiFiPassword string `yaml:"wifi_password"`
	Transport    string `yaml:"transport"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Path         string `yaml:"path"`
	TopicPrefix  string `yaml:"topic_prefix"`
	SerialPort   string `yaml:"serial_port"`
	SerialBaud   int    `yaml:"serial_baud"`
	UART         int    `yaml:"uart"`
	UARTTX       int    `yaml:"uart_tx"`
	UARTRX       int    `yaml:"uart_rx"`
}

type Backoff struct {
	Initial    time.Duration `yaml:"initial"`
	Max        time.Duration `yaml:"max"`
	Multiplier float64       `yaml:"multiplier"`
	Jitter     float64       `yaml:"jitter"`
}

type Link struct {
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	Backoff           Backoff       `yaml:"backoff"`
}

type Sim struct {
	Min    float64       `yaml:"min"`
	Max    float64       `yaml:"max"`
	Period time.Duration `yaml:"period"`
	Noise  float64       `yaml:"noise"`
}

type Sensor struct {
	Driver   string        `yaml:"driver"`
	Timeout  time.Duration `yaml:"timeout"`
	ValidMin float64       `yaml:"valid_min"`
	ValidMax float64       `yaml:"valid_max"`

	// Board wiring, rp2 drivers only.
	SDA       int `yaml:"sda"`
	SCL       int `yaml:"scl"`
	EnablePin int `yaml:"enable_pin"`
	DataPin   int `yaml:"data_pin"`
	ADCPin    int `yaml:"adc_pin"`

	// Serial sensor bridge, host only.
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`

	Sim Sim `yaml:"sim"`
}

// Band is one classification band. Max is the inclusive upper bound. Min is
// optional and only checked for consistency with the previous band.
type Band struct {
	Label string   `yaml:"label"`
	Min   *float64 `yaml:"min,omitempty"`
	Max   float64  `yaml:"max"`
}

type Classify struct {
	Bands    []Band `yaml:"bands"`
	Terminal string `yaml:"terminal"`
}

type Normalize struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

type Indicator struct {
	Pin       int           `yaml:"pin"`
	Blink     time.Duration `yaml:"blink"`
	ActiveLow bool          `yaml:"active_low"`
}

type Watchdog struct {
	Enabled bool          `yaml:"enabled"`
	Timeout time.Duration `yaml:"timeout"`
}

type Status struct {
	Listen string `yaml:"listen"`
}

type Log struct {
	Level     string        `yaml:"level"`
	Format    string        `yaml:"format"`
	// Heartbeat is the period of the "alive" log line; 0 disables it.
	Heartbeat time.Duration `yaml:"heartbeat"`
}

// LookupEnv resolves environment overrides. Tests replace it.
var LookupEnv = os.LookupEnv

const envPrefix = "CREASENSE_"

// Load returns the validated configuration for variant. overridePath may be
// empty; a missing override file is an error.
func Load(variant, overridePath string) (*Config, error) {
	raw, ok := EmbeddedConfigLookup(variant)
	if !ok || len(raw) == 0 {
		return nil, errcode.Newf(errcode.UnknownKind, "config", "no embedded defaults for "+strconv.Quote(variant))
	}
	cfg, err := defaults(raw)
	if err != nil {
		return nil, err
	}
	if overridePath != "" {
		f, err := os.Open(overridePath)
		if err != nil {
			return nil, errcode.New(errcode.ConfigInvalid, "config.override", err)
		}
		err = decode(f, cfg)
		f.Close()
		if err != nil {
			return nil, errcode.New(errcode.ConfigInvalid, "config.override", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a complete YAML document on top of the defaults for variant
// without consulting the environment.
func Parse(variant string, doc []byte) (*Config, error) {
	raw, ok := EmbeddedConfigLookup(variant)
	if !ok {
		return nil, errcode.Newf(errcode.UnknownKind, "config", "no embedded defaults for "+strconv.Quote(variant))
	}
	cfg, err := defaults(raw)
	if err != nil {
		return nil, err
	}
	if err := decode(bytes.NewReader(doc), cfg); err != nil {
		return nil, errcode.New(errcode.ConfigInvalid, "config.parse", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaults decodes the variant defaults and the overlay for this build's
// platform.
func defaults(raw []byte) (*Config, error) {
	cfg := &Config{}
	if err := decode(bytes.NewReader(raw), cfg); err != nil {
		return nil, errcode.New(errcode.ConfigInvalid, "config.defaults", err)
	}
	if ov, ok := PlatformOverlayLookup(Platform); ok {
		if err := decode(bytes.NewReader(ov), cfg); err != nil {
			return nil, errcode.New(errcode.ConfigInvalid, "config.platform", err)
		}
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() error {
	str := func(name string, dst *string) {
		if v, ok := LookupEnv(envPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	str("HOST", &c.Network.Host)
	str("PATH", &c.Network.Path)
	str("TRANSPORT", &c.Network.Transport)
	str("WIFI_SSID", &c.Network.WiFiSSID)
	str("WIFI_PASSWORD", &c.Network.WiFiPassword)
	str("LOG_LEVEL", &c.Log.Level)
	str("SENSOR_DRIVER", &c.Sensor.Driver)
	str("STATUS_LISTEN", &c.Status.Listen)

	if v, ok := LookupEnv(envPrefix + "PORT"); ok && v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return errcode.New(errcode.ConfigInvalid, "config.env", fmt.Errorf("%sPORT: %w", envPrefix, err))
		}
		c.Network.Port = p
	}
	return nil
}

// Endpoint returns the collector URL for the ws transport.
func (n Network) Endpoint() string {
	path := n.Path
	if path == "" || path[0] != '/' {
		path = "/" + path
	}
	return fmt.Sprintf("ws://%s:%d%s", n.Host, n.Port, path)
}

// Broker returns the MQTT broker URL for the mqtt transport.
func (n Network) Broker() string {
	return fmt.Sprintf("tcp://%s:%d", n.Host, n.Port)
}

package corella

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

func (c *Config) validate() error {
	if c.dialer == nil {
		return ErrNoDialer
	}
	if c.readTimeout < 0 || c.atTimeout < 0 {
		return fmt.Errorf("negative timeout: read %s, exchange %s", c.readTimeout, c.atTimeout)
	}
	return nil
}

// Config holds the settings of a Module. Build one with NewConfigBuilder.
type Config struct {
	dialer Dialer
	// readTimeout is the quiet window that ends a response
	readTimeout time.Duration
	// atTimeout bounds a whole exchange when the caller's context has no deadline
	atTimeout time.Duration
	logger    *slog.Logger
	metrics   *Metrics
}

func (c Config) Dialer() Dialer              { return c.dialer }
func (c Config) ReadTimeout() time.Duration { return c.readTimeout }
func (c Config) ATTimeout() time.Duration   { return c.atTimeout }

func (c *Config) setDefaults() {
	if c.readTimeout == 0 {
		c.readTimeout = time.Second
	}
	if c.atTimeout == 0 {
		c.atTimeout = 5 * time.Second
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
}

// Settings are the values that can come from the environment or a YAML
// file. Zero values leave the builder's current value untouched.
type Settings struct {
	SerialPort   string        `yaml:"serial_port"`
	BaudRate     int           `yaml:"baud_rate"`
	WebSocketURL string        `yaml:"websocket_url"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	ATTimeout    time.Duration `yaml:"at_timeout"`
}

// ConfigBuilder assembles a Config. Errors from FromEnv and FromFile are
// reported by Build.
type ConfigBuilder struct {
	config Config
	serial SerialDialer
	wsURL  string
	err    error
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

// WithDialer sets the Dialer explicitly. It takes precedence over any
// serial port or WebSocket URL.
func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.dialer = d
	return b
}

// WithSerialPort connects to the module over the named serial port.
// A baud rate of zero keeps the module default.
func (b *ConfigBuilder) WithSerialPort(name string, baudRate int) *ConfigBuilder {
	b.serial.PortName = name
	if baudRate > 0 {
		mode := DefaultSerialMode()
		mode.BaudRate = baudRate
		b.serial.Mode = mode
	}
	return b
}

// WithWebSocket connects to the module through a serial-to-WebSocket bridge.
func (b *ConfigBuilder) WithWebSocket(url string) *ConfigBuilder {
	b.wsURL = url
	return b
}

func (b *ConfigBuilder) WithReadTimeout(d time.Duration) *ConfigBuilder {
	b.config.readTimeout = d
	return b
}

func (b *ConfigBuilder) WithATTimeout(d time.Duration) *ConfigBuilder {
	b.config.atTimeout = d
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.logger = l
	return b
}

func (b *ConfigBuilder) WithMetrics(m *Metrics) *ConfigBuilder {
	b.config.metrics = m
	return b
}

// WithSettings applies the non-zero values of s.
func (b *ConfigBuilder) WithSettings(s Settings) *ConfigBuilder {
	if s.SerialPort != "" || s.BaudRate != 0 {
		port := s.SerialPort
		if port == "" {
			port = b.serial.PortName
		}
		baud := s.BaudRate
		if baud == 0 && b.serial.Mode != nil {
			baud = b.serial.Mode.BaudRate
		}
		b.WithSerialPort(port, baud)
	}
	if s.WebSocketURL != "" {
		b.wsURL = s.WebSocketURL
	}
	if s.ReadTimeout != 0 {
		b.config.readTimeout = s.ReadTimeout
	}
	if s.ATTimeout != 0 {
		b.config.atTimeout = s.ATTimeout
	}
	return b
}

// FromEnv loads settings from environment variables:
// CORELLA_SERIAL_PORT, CORELLA_BAUD_RATE, CORELLA_WS_URL,
// CORELLA_READ_TIMEOUT and CORELLA_AT_TIMEOUT (Go durations, e.g. "1s").
func (b *ConfigBuilder) FromEnv() *ConfigBuilder {
	var s Settings

	s.SerialPort = os.Getenv("CORELLA_SERIAL_PORT")
	s.WebSocketURL = os.Getenv("CORELLA_WS_URL")

	if baud := os.Getenv("CORELLA_BAUD_RATE"); baud != "" {
		v, err := strconv.Atoi(baud)
		if err != nil {
			b.fail(fmt.Errorf("CORELLA_BAUD_RATE: %w", err))
			return b
		}
		s.BaudRate = v
	}

	for name, dst := range map[string]*time.Duration{
		"CORELLA_READ_TIMEOUT": &s.ReadTimeout,
		"CORELLA_AT_TIMEOUT":   &s.ATTimeout,
	} {
		if raw := os.Getenv(name); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil {
				b.fail(fmt.Errorf("%s: %w", name, err))
				return b
			}
			*dst = d
		}
	}

	return b.WithSettings(s)
}

// FromFile loads settings from a YAML file:
//
//	serial_port: /dev/ttyUSB0
//	baud_rate: 9600
//	read_timeout: 1s
//	at_timeout: 5s
func (b *ConfigBuilder) FromFile(path string) *ConfigBuilder {
	data, err := os.ReadFile(path)
	if err != nil {
		b.fail(fmt.Errorf("read config file: %w", err))
		return b
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		b.fail(fmt.Errorf("parse config file %s: %w", path, err))
		return b
	}

	return b.WithSettings(s)
}

func (b *ConfigBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Build returns the Config, or the first error met while building it.
func (b *ConfigBuilder) Build() (Config, error) {
	if b.err != nil {
		return Config{}, b.err
	}

	c := b.config
	if c.dialer == nil {
		switch {
		case b.wsURL != "":
			c.dialer = WebSocketDialer{URL: b.wsURL}
		case b.serial.PortName != "":
			c.dialer = b.serial
		}
	}

	if err := c.validate(); err != nil {
		return Config{}, err
	}
	c.setDefaults()
	return c, nil
}

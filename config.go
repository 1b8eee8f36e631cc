package main

import (
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"i4.energy/across/atbridge/bridge"
)

// Config holds the application configuration
type Config struct {
	// DevicePort is the serial port of the attached AT device (e.g. "/dev/ttyUSB0")
	DevicePort string `mapstructure:"device_port" yaml:"device_port"`
	// HostPort is the serial port of the host terminal. Empty means stdin/stdout.
	HostPort string `mapstructure:"host_port" yaml:"host_port"`
	// HostBaud is the fixed baud rate of the host port
	HostBaud int `mapstructure:"host_baud" yaml:"host_baud"`

	// SettleDelay is waited after an unterminated command before reading the reply
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	// PollInterval is the time between two device polls
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	// IdlePolls is the number of empty polls that end a reply
	IdlePolls int `mapstructure:"idle_polls" yaml:"idle_polls"`
	// MaxCollect caps the time spent reading one reply
	MaxCollect time.Duration `mapstructure:"max_collect" yaml:"max_collect"`

	// LineCapacity is the size of the host line buffer
	LineCapacity int `mapstructure:"line_capacity" yaml:"line_capacity"`
	// ResponseCapacity is the size of the reply buffer
	ResponseCapacity int `mapstructure:"response_capacity" yaml:"response_capacity"`

	Log LogConfig `mapstructure:"log" yaml:"log"`
}

// LogConfig controls where and how the bridge logs
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error"
	Level string `mapstructure:"level" yaml:"level"`
	// Format is "json" or "console"
	Format string `mapstructure:"format" yaml:"format"`
	// Output is "stderr", "stdout" or a file path rotated by size
	Output     string `mapstructure:"output" yaml:"output"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.DevicePort = "/dev/ttyUSB0"
		c.HostBaud = 9600
		c.SettleDelay = bridge.DefaultSettleDelay
		c.PollInterval = bridge.DefaultPollInterval
		c.IdlePolls = bridge.DefaultIdlePolls
		c.MaxCollect = bridge.DefaultMaxCollect
		c.LineCapacity = bridge.DefaultLineCapacity
		c.ResponseCapacity = bridge.DefaultResponseCapacity
		c.Log = LogConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stderr",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		}
		return nil
	}
}

// WithFile loads configuration from a YAML file. An empty path is ignored.
// Keys missing from the file keep their current value.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}

		v := viper.New()
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := v.Unmarshal(c); err != nil {
			return fmt.Errorf("decode config file %s: %w", path, err)
		}
		return nil
	}
}

// envKeys lists the settings that may come from ATBRIDGE_* variables.
var envKeys = []string{
	"device_port", "host_port", "host_baud",
	"settle_delay", "poll_interval", "idle_polls", "max_collect",
	"line_capacity", "response_capacity",
	"log.level", "log.format", "log.output",
}

// WithEnv loads configuration from environment variables, e.g.
// ATBRIDGE_DEVICE_PORT or ATBRIDGE_LOG_LEVEL
func WithEnv() ConfigOption {
	return func(c *Config) error {
		v := viper.New()
		v.SetEnvPrefix("ATBRIDGE")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		for _, key := range envKeys {
			if err := v.BindEnv(key); err != nil {
				return fmt.Errorf("bind env %s: %w", key, err)
			}
		}

		if v.IsSet("device_port") {
			c.DevicePort = v.GetString("device_port")
		}
		if v.IsSet("host_port") {
			c.HostPort = v.GetString("host_port")
		}
		if b := v.GetInt("host_baud"); b > 0 {
			c.HostBaud = b
		}
		if d := v.GetDuration("settle_delay"); d > 0 {
			c.SettleDelay = d
		}
		if d := v.GetDuration("poll_interval"); d > 0 {
			c.PollInterval = d
		}
		if n := v.GetInt("idle_polls"); n > 0 {
			c.IdlePolls = n
		}
		if d := v.GetDuration("max_collect"); d > 0 {
			c.MaxCollect = d
		}
		if n := v.GetInt("line_capacity"); n > 0 {
			c.LineCapacity = n
		}
		if n := v.GetInt("response_capacity"); n > 0 {
			c.ResponseCapacity = n
		}
		if level := v.GetString("log.level"); level != "" {
			c.Log.Level = level
		}
		if format := v.GetString("log.format"); format != "" {
			c.Log.Format = format
		}
		if output := v.GetString("log.output"); output != "" {
			c.Log.Output = output
		}

		return nil
	}
}

// WithFlags loads configuration from command-line flags
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		var err error
		fSet.Visit(func(f *flag.Flag) {
			value := f.Value.String()
			switch f.Name {
			case "device-port":
				c.DevicePort = value
			case "host-port":
				c.HostPort = value
			case "host-baud":
				err = errors.Join(err, setInt(&c.HostBaud, f.Name, value))
			case "settle-delay":
				err = errors.Join(err, setDuration(&c.SettleDelay, f.Name, value))
			case "poll-interval":
				err = errors.Join(err, setDuration(&c.PollInterval, f.Name, value))
			case "idle-polls":
				err = errors.Join(err, setInt(&c.IdlePolls, f.Name, value))
			case "max-collect":
				err = errors.Join(err, setDuration(&c.MaxCollect, f.Name, value))
			case "line-capacity":
				err = errors.Join(err, setInt(&c.LineCapacity, f.Name, value))
			case "response-capacity":
				err = errors.Join(err, setInt(&c.ResponseCapacity, f.Name, value))
			case "log-level":
				c.Log.Level = value
			case "log-format":
				c.Log.Format = value
			case "log-output":
				c.Log.Output = value
			}
		})
		return err
	}
}

func setInt(dst *int, name, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("flag -%s: %w", name, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, name, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("flag -%s: %w", name, err)
	}
	*dst = d
	return nil
}

package bridge

import (
	"time"

	"go.uber.org/zap"
)

const (
	DefaultSettleDelay      = time.Second
	DefaultPollInterval     = 100 * time.Millisecond
	DefaultIdlePolls        = 2
	DefaultMaxCollect       = 10 * time.Second
	DefaultLineCapacity     = 200
	DefaultResponseCapacity = 1024
	DefaultHostPollInterval = 10 * time.Millisecond
)

// Config holds everything a Bridge needs. Zero values are replaced by the
// defaults above.
type Config struct {
	Dialer Dialer
	Clock  Clock
	Logger *zap.Logger

	// SettleDelay is waited after a command sent without a terminator,
	// before the response is collected.
	SettleDelay time.Duration
	// PollInterval is the time between two polls of the device.
	PollInterval time.Duration
	// IdlePolls is the number of consecutive empty polls that end a
	// response.
	IdlePolls int
	// MaxCollect bounds the collection of one response, for devices that
	// never go quiet.
	MaxCollect time.Duration

	// LineCapacity is the size of the host line buffer.
	LineCapacity int
	// ResponseCapacity is the size of the buffer a device response is
	// collected into.
	ResponseCapacity int

	// HostPollInterval is how long the control loop sleeps when the host
	// sent nothing.
	HostPollInterval time.Duration
}

func (c *Config) validate() error {
	if c.Dialer == nil {
		return ErrNoDialer
	}
	if c.LineCapacity != 0 && c.LineCapacity < 3 {
		return ErrInvalidCapacity
	}
	if c.ResponseCapacity != 0 && c.ResponseCapacity < 3 {
		return ErrInvalidCapacity
	}
	if c.SettleDelay < 0 || c.PollInterval < 0 || c.MaxCollect < 0 || c.HostPollInterval < 0 || c.IdlePolls < 0 {
		return ErrInvalidTiming
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Clock == nil {
		c.Clock = SystemClock()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.IdlePolls <= 0 {
		c.IdlePolls = DefaultIdlePolls
	}
	if c.MaxCollect == 0 {
		c.MaxCollect = DefaultMaxCollect
	}
	if c.LineCapacity == 0 {
		c.LineCapacity = DefaultLineCapacity
	}
	if c.ResponseCapacity == 0 {
		c.ResponseCapacity = DefaultResponseCapacity
	}
	if c.HostPollInterval == 0 {
		c.HostPollInterval = DefaultHostPollInterval
	}
}

// ConfigBuilder assembles a Config.
type ConfigBuilder struct {
	config Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(dialer Dialer) *ConfigBuilder {
	b.config.Dialer = dialer
	return b
}

func (b *ConfigBuilder) WithClock(clock Clock) *ConfigBuilder {
	b.config.Clock = clock
	return b
}

func (b *ConfigBuilder) WithLogger(logger *zap.Logger) *ConfigBuilder {
	b.config.Logger = logger
	return b
}

func (b *ConfigBuilder) WithSettleDelay(d time.Duration) *ConfigBuilder {
	b.config.SettleDelay = d
	return b
}

func (b *ConfigBuilder) WithPollInterval(d time.Duration) *ConfigBuilder {
	b.config.PollInterval = d
	return b
}

func (b *ConfigBuilder) WithIdlePolls(n int) *ConfigBuilder {
	b.config.IdlePolls = n
	return b
}

func (b *ConfigBuilder) WithMaxCollect(d time.Duration) *ConfigBuilder {
	b.config.MaxCollect = d
	return b
}

func (b *ConfigBuilder) WithLineCapacity(n int) *ConfigBuilder {
	b.config.LineCapacity = n
	return b
}

func (b *ConfigBuilder) WithResponseCapacity(n int) *ConfigBuilder {
	b.config.ResponseCapacity = n
	return b
}

func (b *ConfigBuilder) WithHostPollInterval(d time.Duration) *ConfigBuilder {
	b.config.HostPollInterval = d
	return b
}

// Build validates the configuration and fills in defaults.
func (b *ConfigBuilder) Build() (Config, error) {
	config := b.config
	if err := config.validate(); err != nil {
		return Config{}, err
	}
	config.setDefaults()
	return config, nil
}

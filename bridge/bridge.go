// Package bridge relays AT commands from a host terminal to a serial device.
//
// The host types lines. "open <baud>" and "close" manage the device
// channel; any other line starting with "AT" is written to the device and
// its reply is copied back with every line ending turned into "\r\n".
// Everything runs on the goroutine that calls Loop: while a reply is being
// collected, host input waits.
package bridge

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"i4.energy/across/atbridge/at"
)

// Bridge is the control loop tying the host channel to the device.
type Bridge struct {
	// host is the terminal side, fixed for the lifetime of the Bridge
	host Channel
	// clock paces the loop while the host is idle
	clock Clock
	// hostPollInterval is the sleep between two empty host polls
	hostPollInterval time.Duration
	logger           *zap.Logger

	assembler  *LineAssembler
	dispatcher *Dispatcher

	mu          sync.Mutex
	loopRunning bool
	closed      bool
}

// New creates a Bridge reading commands from host. The device channel is
// not opened until the host asks for it.
func New(config Config, host Channel) (*Bridge, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if host == nil {
		return nil, ErrNoHost
	}
	config.setDefaults()

	return &Bridge{
		host:             host,
		clock:            config.Clock,
		hostPollInterval: config.HostPollInterval,
		logger:           config.Logger.With(zap.String("component", "bridge")),
		assembler:        NewLineAssembler(host, config.LineCapacity),
		dispatcher:       NewDispatcher(config, host),
	}, nil
}

// Start writes the initial prompt.
func (b *Bridge) Start() error {
	_, err := b.host.Write([]byte(at.Prompt))
	return err
}

// Loop reads host input and handles each completed line until ctx is done
// or the host channel fails. It returns ctx.Err() or the host error, such
// as io.EOF once the host input ends.
//
// Usage:
//
//	b, err := bridge.New(config, host)
//	if err != nil { return err }
//
//	b.Start()
//	err = b.Loop(ctx)
func (b *Bridge) Loop(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrAlreadyClosed
	}
	if b.loopRunning {
		b.mu.Unlock()
		return ErrLoopRunning
	}
	b.loopRunning = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.loopRunning = false
		b.mu.Unlock()
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		lines, err := b.assembler.Poll()
		for _, line := range lines {
			b.dispatcher.Handle(ctx, line)
		}
		if err != nil {
			b.logger.Debug("Host channel stopped", zap.Error(err))
			return err
		}

		if len(lines) == 0 {
			if err := b.clock.Sleep(ctx, b.hostPollInterval); err != nil {
				return err
			}
		}
	}
}

// State returns the device connection state. It must not be called while
// Loop is running.
func (b *Bridge) State() ConnectionState {
	return b.dispatcher.State()
}

// Close closes the device channel, if open. The host channel belongs to
// the caller and is left alone. After Close the Bridge cannot be reused.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrAlreadyClosed
	}
	b.closed = true

	return b.dispatcher.Close()
}

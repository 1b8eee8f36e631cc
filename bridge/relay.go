package bridge

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"i4.energy/across/atbridge/at"
)

// Relay sends a command to the device and collects the reply.
//
// A reply has no length and no reliable terminator, so it is considered
// complete once the device has been quiet for IdlePolls consecutive polls.
// MaxCollect caps the whole collection for devices that never go quiet.
type Relay struct {
	clock        Clock
	logger       *zap.Logger
	settleDelay  time.Duration
	pollInterval time.Duration
	idlePolls    int
	maxCollect   time.Duration
}

// NewRelay creates a Relay from a Config that has its defaults applied.
func NewRelay(config Config) *Relay {
	return &Relay{
		clock:        config.Clock,
		logger:       config.Logger.With(zap.String("component", "relay")),
		settleDelay:  config.SettleDelay,
		pollInterval: config.PollInterval,
		idlePolls:    config.IdlePolls,
		maxCollect:   config.MaxCollect,
	}
}

// Exchange writes body to the device and collects the reply into resp.
//
// With term == Required, "\r\n" follows the body and collection starts
// right away. Otherwise nothing is appended and the relay waits the settle
// delay first, giving the device time to act on the bare command. An empty
// body only sends the terminator, if any.
func (r *Relay) Exchange(ctx context.Context, device Channel, body []byte, term Termination, resp *Response) error {
	if len(body) > 0 {
		if _, err := device.Write(body); err != nil {
			return fmt.Errorf("write command %q: %w", body, err)
		}
	}

	if term == Required {
		if _, err := device.Write([]byte(at.CRLF)); err != nil {
			return fmt.Errorf("write terminator: %w", err)
		}
	} else if err := r.clock.Sleep(ctx, r.settleDelay); err != nil {
		return err
	}

	return r.collect(ctx, device, resp)
}

func (r *Relay) collect(ctx context.Context, device Channel, resp *Response) error {
	start := r.clock.Now()
	empty := 0

	for empty < r.idlePolls {
		n, err := r.drain(device, resp)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if n > 0 {
			empty = 0
		} else {
			empty++
		}

		if err := r.clock.Sleep(ctx, r.pollInterval); err != nil {
			return err
		}

		if empty < r.idlePolls && r.maxCollect > 0 && r.clock.Now().Sub(start) >= r.maxCollect {
			resp.timedOut = true
			r.logger.Warn("Device still sending, response cut off",
				zap.Duration("max_collect", r.maxCollect),
				zap.Int("raw_bytes", resp.Raw()))
			break
		}
	}

	resp.finish()
	return nil
}

// drain reads every byte the device has available right now.
func (r *Relay) drain(device Channel, resp *Response) (int, error) {
	n := 0
	for {
		b, ok, err := device.PollByte()
		if err != nil {
			return n, err
		}
		if !ok {
			return n, nil
		}
		resp.put(b)
		n++
	}
}

package bridge_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"i4.energy/across/atbridge/bridge"
)

// fakeClock advances only when slept on, so timing rules run instantly.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

// elapsed returns the total time slept.
func (c *fakeClock) elapsed() time.Duration {
	var total time.Duration
	for _, d := range c.sleeps {
		total += d
	}
	return total
}

type timedByte struct {
	at time.Time
	b  byte
}

// fakeDevice simulates an AT device on the other end of the device channel.
//
// A device with needsTerminator set only answers once a line ending
// arrives; otherwise every write is taken as a whole command. Replies
// become readable latency after the command completes.
type fakeDevice struct {
	clock           *fakeClock
	needsTerminator bool
	latency         time.Duration
	respond         func(cmd string) string
	// chatter makes the device send one 'x' every 10ms forever
	chatter     bool
	chatterNext time.Time

	written  bytes.Buffer
	pending  []byte
	queue    []timedByte
	writeErr error
	readErr  error
	closed   bool
}

func newFakeDevice(clock *fakeClock, needsTerminator bool, respond func(string) string) *fakeDevice {
	return &fakeDevice{
		clock:           clock,
		needsTerminator: needsTerminator,
		latency:         50 * time.Millisecond,
		respond:         respond,
	}
}

// okTo answers "OK" to a bare "AT" and "ERROR" to anything else.
func okTo(cmd string) string {
	if cmd == "AT" {
		return "OK\r\n"
	}
	return "ERROR\r\n"
}

func silent(string) string {
	return ""
}

func (d *fakeDevice) Write(p []byte) (int, error) {
	if d.writeErr != nil {
		return 0, d.writeErr
	}
	d.written.Write(p)

	if !d.needsTerminator {
		if cmd := strings.Trim(string(p), "\r\n"); cmd != "" {
			d.reply(cmd)
		}
		return len(p), nil
	}

	for _, b := range p {
		if b == '\r' || b == '\n' {
			if len(d.pending) > 0 {
				d.reply(string(d.pending))
				d.pending = d.pending[:0]
			}
			continue
		}
		d.pending = append(d.pending, b)
	}
	return len(p), nil
}

func (d *fakeDevice) reply(cmd string) {
	at := d.clock.Now().Add(d.latency)
	for _, b := range []byte(d.respond(cmd)) {
		d.queue = append(d.queue, timedByte{at: at, b: b})
	}
}

func (d *fakeDevice) PollByte() (byte, bool, error) {
	now := d.clock.Now()
	if len(d.queue) > 0 && !d.queue[0].at.After(now) {
		b := d.queue[0].b
		d.queue = d.queue[1:]
		return b, true, nil
	}
	if d.chatter && !d.chatterNext.After(now) {
		d.chatterNext = now.Add(10 * time.Millisecond)
		return 'x', true, nil
	}
	if d.readErr != nil {
		return 0, false, d.readErr
	}
	return 0, false, nil
}

func (d *fakeDevice) Close() error {
	if d.closed {
		return bridge.ErrAlreadyClosed
	}
	d.closed = true
	return nil
}

// fakeHost is a host terminal with scripted input.
type fakeHost struct {
	in  []byte
	out bytes.Buffer
	// err is returned once the input runs out
	err error
}

func (h *fakeHost) feed(s string) {
	h.in = append(h.in, s...)
}

func (h *fakeHost) PollByte() (byte, bool, error) {
	if len(h.in) == 0 {
		return 0, false, h.err
	}
	b := h.in[0]
	h.in = h.in[1:]
	return b, true, nil
}

func (h *fakeHost) Write(p []byte) (int, error) {
	return h.out.Write(p)
}

// takeOutput returns and clears what the host received so far.
func (h *fakeHost) takeOutput() string {
	s := h.out.String()
	h.out.Reset()
	return s
}

// dialerFunc adapts a function to bridge.Dialer.
type dialerFunc func(ctx context.Context, baud int) (bridge.Conn, error)

func (f dialerFunc) Dial(ctx context.Context, baud int) (bridge.Conn, error) {
	return f(ctx, baud)
}

// testConfig returns a Config with the default timings on a fake clock.
func testConfig(t *testing.T, clock *fakeClock, dialer bridge.Dialer) bridge.Config {
	t.Helper()
	config, err := bridge.NewConfigBuilder().
		WithDialer(dialer).
		WithClock(clock).
		WithLogger(zaptest.NewLogger(t)).
		Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}
	return config
}

// dialer returns a Dialer that always hands out d.
func (d *fakeDevice) dialer() bridge.Dialer {
	return dialerFunc(func(context.Context, int) (bridge.Conn, error) {
		return d, nil
	})
}

// schedule makes s readable after the given delay, independent of any
// command.
func (d *fakeDevice) schedule(s string, after time.Duration) {
	at := d.clock.Now().Add(after)
	for _, b := range []byte(s) {
		d.queue = append(d.queue, timedByte{at: at, b: b})
	}
}

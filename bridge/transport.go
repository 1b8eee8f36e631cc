package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"
)

//go:generate go tool mockgen -source=transport.go -destination=mock_transport.go -package=bridge

// Channel is one side of the bridge: the host terminal or the attached
// device.
//
// PollByte never blocks. It returns ok == false when no byte is available
// right now, and a non-nil error once the channel can no longer produce
// input (for example io.EOF after the host went away).
type Channel interface {
	PollByte() (b byte, ok bool, err error)
	Write(p []byte) (n int, err error)
}

// Conn is an open device channel.
type Conn interface {
	Channel
	Close() error
}

// Dialer opens the device channel at a given baud rate.
//
// Dial is called on every "open" command; the previous Conn, if any, has
// already been closed by then.
type Dialer interface {
	Dial(ctx context.Context, baud int) (Conn, error)
}

// SerialDialer opens the device channel over a serial port using
// go.bug.st/serial.
type SerialDialer struct {
	// PortName is the device path, e.g. "/dev/ttyUSB0".
	PortName string
	// Mode is the line configuration. BaudRate is always replaced by the
	// rate passed to Dial. A nil Mode means 8N1.
	Mode *serial.Mode
}

// Dial opens the serial port at baud and discards anything the device sent
// before it was opened.
func (d SerialDialer) Dial(ctx context.Context, baud int) (Conn, error) {
	if d.PortName == "" {
		return nil, errors.New("bridge: serial port name is required")
	}
	if ctx == nil {
		return nil, errors.New("bridge: context is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := serial.Mode{
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if d.Mode != nil {
		mode = *d.Mode
	}
	mode.BaudRate = baud

	port, err := serial.Open(d.PortName, &mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", d.PortName, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("reset input buffer of %s: %w", d.PortName, err)
	}

	return NewStreamChannel(port, port), nil
}

// streamQueueSize bounds how many received bytes are held for PollByte.
const streamQueueSize = 4096

// StreamChannel turns a blocking reader, such as a serial port or a
// terminal, into a Channel.
//
// A single goroutine reads from the reader and queues the bytes; PollByte
// takes them off the queue without blocking. The reader's error is reported
// after every byte read before it has been handed out.
type StreamChannel struct {
	w io.Writer
	r io.Reader

	data chan byte
	done chan struct{}

	mu     sync.Mutex
	err    error
	closed bool
}

// NewStreamChannel starts reading from r. Writes go to w. If r is an
// io.Closer it is closed by Close.
func NewStreamChannel(r io.Reader, w io.Writer) *StreamChannel {
	s := &StreamChannel{
		w:    w,
		r:    r,
		data: make(chan byte, streamQueueSize),
		done: make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *StreamChannel) pump() {
	defer close(s.data)

	buf := make([]byte, 256)
	for {
		n, err := s.r.Read(buf)
		for _, b := range buf[:n] {
			select {
			case s.data <- b:
			case <-s.done:
				return
			}
		}
		if err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			return
		}
	}
}

// PollByte returns the next queued byte, if any.
func (s *StreamChannel) PollByte() (byte, bool, error) {
	select {
	case b, ok := <-s.data:
		if !ok {
			return 0, false, s.readErr()
		}
		return b, true, nil
	default:
		return 0, false, nil
	}
}

func (s *StreamChannel) readErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrAlreadyClosed
	}
	if s.err == nil {
		return io.EOF
	}
	return s.err
}

func (s *StreamChannel) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

// Close stops the reader goroutine and closes the reader.
func (s *StreamChannel) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrAlreadyClosed
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

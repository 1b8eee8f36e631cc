package bridge

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"go.bug.st/serial"
)

func TestSerialDialer_Dial_EmptyPortName(t *testing.T) {
	dialer := SerialDialer{
		PortName: "",
	}

	conn, err := dialer.Dial(context.Background(), 9600)

	if err == nil {
		t.Fatal("expected error for empty port name")
	}
	if conn != nil {
		t.Error("expected nil conn for empty port name")
	}
	if err.Error() != "bridge: serial port name is required" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestSerialDialer_Dial_NilContext(t *testing.T) {
	dialer := SerialDialer{
		PortName: "/dev/ttyUSB0",
	}

	conn, err := dialer.Dial(nil, 9600)

	if err == nil {
		t.Fatal("expected error for nil context")
	}
	if conn != nil {
		t.Error("expected nil conn for nil context")
	}
	if err.Error() != "bridge: context is nil" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestSerialDialer_Dial_ContextCanceled(t *testing.T) {
	dialer := SerialDialer{
		PortName: "/dev/nonexistent",
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	conn, err := dialer.Dial(ctx, 9600)

	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
	if conn != nil {
		t.Error("expected nil conn for canceled context")
	}
}

func TestSerialDialer_Dial_WithMode(t *testing.T) {
	dialer := SerialDialer{
		PortName: "/dev/nonexistent",
		Mode: &serial.Mode{
			BaudRate: 115200,
			Parity:   serial.EvenParity,
			DataBits: 7,
			StopBits: serial.OneStopBit,
		},
	}

	conn, err := dialer.Dial(context.Background(), 9600)

	if err == nil {
		t.Error("expected error for non-existent port")
	}
	if conn != nil {
		t.Error("expected nil conn for non-existent port")
	}
	if dialer.Mode.BaudRate != 115200 {
		t.Error("Dial must not modify the configured mode")
	}
}

var (
	_ Conn   = (*MockConn)(nil)
	_ Conn   = (*StreamChannel)(nil)
	_ Dialer = (*MockDialer)(nil)
	_ Dialer = SerialDialer{}
)

// pollWithin polls s until it yields a byte, an error, or the timeout.
func pollWithin(t *testing.T, s *StreamChannel, timeout time.Duration) (byte, bool, error) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		b, ok, err := s.PollByte()
		if ok || err != nil {
			return b, ok, err
		}
		time.Sleep(time.Millisecond)
	}
	return 0, false, nil
}

func TestStreamChannel(t *testing.T) {
	t.Run("Bytes become pollable", func(t *testing.T) {
		r, w := io.Pipe()
		var out bytes.Buffer
		s := NewStreamChannel(r, &out)
		defer s.Close()

		if _, ok, err := s.PollByte(); ok || err != nil {
			t.Fatalf("expected nothing yet, got ok=%v err=%v", ok, err)
		}

		go w.Write([]byte("OK"))

		for _, expected := range []byte("OK") {
			b, ok, err := pollWithin(t, s, time.Second)
			if err != nil || !ok {
				t.Fatalf("expected a byte, got ok=%v err=%v", ok, err)
			}
			if b != expected {
				t.Errorf("expected %q, got %q", expected, b)
			}
		}

		s.Write([]byte("AT"))
		if out.String() != "AT" {
			t.Errorf("expected write to pass through, got %q", out.String())
		}
	})

	t.Run("Reader error after queued bytes", func(t *testing.T) {
		r, w := io.Pipe()
		s := NewStreamChannel(r, io.Discard)
		defer s.Close()

		readErr := errors.New("unplugged")
		go func() {
			w.Write([]byte("x"))
			w.CloseWithError(readErr)
		}()

		b, ok, err := pollWithin(t, s, time.Second)
		if !ok || b != 'x' || err != nil {
			t.Fatalf("expected queued byte first, got %q ok=%v err=%v", b, ok, err)
		}
		_, _, err = pollWithin(t, s, time.Second)
		if !errors.Is(err, readErr) {
			t.Errorf("expected reader error, got %v", err)
		}
	})

	t.Run("EOF", func(t *testing.T) {
		s := NewStreamChannel(bytes.NewReader(nil), io.Discard)
		defer s.Close()

		_, _, err := pollWithin(t, s, time.Second)
		if !errors.Is(err, io.EOF) {
			t.Errorf("expected io.EOF, got %v", err)
		}
	})

	t.Run("Close", func(t *testing.T) {
		r, _ := io.Pipe()
		s := NewStreamChannel(r, io.Discard)

		if err := s.Close(); err != nil {
			t.Errorf("unexpected error from Close(): %v", err)
		}
		if err := s.Close(); !errors.Is(err, ErrAlreadyClosed) {
			t.Errorf("expected ErrAlreadyClosed, got %v", err)
		}
		_, _, err := pollWithin(t, s, time.Second)
		if !errors.Is(err, ErrAlreadyClosed) {
			t.Errorf("expected ErrAlreadyClosed from PollByte, got %v", err)
		}
	})
}

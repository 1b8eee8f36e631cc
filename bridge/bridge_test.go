package bridge_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"go.uber.org/mock/gomock"

	"i4.energy/across/atbridge/bridge"
)

func TestBridgeNew(t *testing.T) {
	t.Run("ErrNoDialer when no dialer provided", func(t *testing.T) {
		b, err := bridge.New(bridge.Config{}, &fakeHost{})
		if !errors.Is(err, bridge.ErrNoDialer) {
			t.Errorf("expected ErrNoDialer from New(), got: %v", err)
		}
		if b != nil {
			t.Error("New() should return nil bridge when no dialer provided")
		}
	})

	t.Run("ErrNoHost when no host provided", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		config := bridge.Config{Dialer: bridge.NewMockDialer(ctrl)}
		if _, err := bridge.New(config, nil); !errors.Is(err, bridge.ErrNoHost) {
			t.Errorf("expected ErrNoHost from New(), got: %v", err)
		}
	})

	t.Run("Start writes the prompt", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		host := &fakeHost{}
		b, err := bridge.New(testConfig(t, newFakeClock(), bridge.NewMockDialer(ctrl)), host)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := b.Start(); err != nil {
			t.Fatalf("unexpected error from Start(): %v", err)
		}
		if got := host.takeOutput(); got != "> " {
			t.Errorf("expected prompt, got %q", got)
		}
	})
}

func TestBridgeLoop(t *testing.T) {
	t.Run("Session until host input ends", func(t *testing.T) {
		clock := newFakeClock()
		device := newFakeDevice(clock, true, func(cmd string) string {
			switch cmd {
			case "AT":
				return "OK\r\n"
			case "AT+VERSION":
				return "+VERSION:1.0\nOK"
			default:
				return "ERROR\r\n"
			}
		})

		host := &fakeHost{err: io.EOF}
		host.feed("ATI\r\nopen 9600\rAT+VERSION\nbogus\r\nclose\r")

		b, err := bridge.New(testConfig(t, clock, device.dialer()), host)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		b.Start()

		err = b.Loop(context.Background())
		if !errors.Is(err, io.EOF) {
			t.Errorf("expected io.EOF from Loop(), got %v", err)
		}

		// all pending input is echoed before the first line is handled
		expected := "> " +
			"ATI\r\nopen 9600\r\nAT+VERSION\r\nbogus\r\nclose\r\n" +
			bridge.MsgNoConnection + "\r\n> " +
			"> " +
			"+VERSION:1.0\r\nOK\r\n> " +
			bridge.MsgUnknownCommand + "\r\n> " +
			"> "
		if got := host.takeOutput(); got != expected {
			t.Errorf("unexpected host output:\nexpected %q\ngot      %q", expected, got)
		}
		if b.State().Active {
			t.Error("expected connection to be closed")
		}
		if !device.closed {
			t.Error("expected device to be closed")
		}
	})

	t.Run("Idle host sleeps between polls", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		clock := newFakeClock()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		mockHost := bridge.NewMockChannel(ctrl)
		gomock.InOrder(
			mockHost.EXPECT().PollByte().Return(byte(0), false, nil),
			mockHost.EXPECT().PollByte().Return(byte(0), false, nil),
			mockHost.EXPECT().PollByte().DoAndReturn(func() (byte, bool, error) {
				cancel()
				return 0, false, nil
			}),
		)

		b, err := bridge.New(testConfig(t, clock, bridge.NewMockDialer(ctrl)), mockHost)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if err := b.Loop(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if len(clock.sleeps) != 2 || clock.sleeps[0] != bridge.DefaultHostPollInterval {
			t.Errorf("expected two host poll sleeps, got %v", clock.sleeps)
		}
	})

	t.Run("Cancelled context", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		b, err := bridge.New(testConfig(t, newFakeClock(), bridge.NewMockDialer(ctrl)), &fakeHost{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := b.Loop(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestBridgeClose(t *testing.T) {
	t.Run("Closes open device", func(t *testing.T) {
		clock := newFakeClock()
		device := newFakeDevice(clock, true, okTo)
		host := &fakeHost{err: io.EOF}
		host.feed("open 57600\r")

		b, err := bridge.New(testConfig(t, clock, device.dialer()), host)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		b.Loop(context.Background())

		if err := b.Close(); err != nil {
			t.Errorf("unexpected error from Close(): %v", err)
		}
		if !device.closed {
			t.Error("expected device to be closed")
		}
	})

	t.Run("ErrAlreadyClosed on second close", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		b, err := bridge.New(testConfig(t, newFakeClock(), bridge.NewMockDialer(ctrl)), &fakeHost{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := b.Close(); err != nil {
			t.Errorf("unexpected error from Close(): %v", err)
		}
		if err := b.Close(); !errors.Is(err, bridge.ErrAlreadyClosed) {
			t.Errorf("expected ErrAlreadyClosed, got %v", err)
		}
		if err := b.Loop(context.Background()); !errors.Is(err, bridge.ErrAlreadyClosed) {
			t.Errorf("expected ErrAlreadyClosed from Loop(), got %v", err)
		}
	})
}

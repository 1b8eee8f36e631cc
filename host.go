package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"go.bug.st/serial"
	"golang.org/x/term"

	"i4.energy/across/atbridge/bridge"
)

// Keys that end an interactive session while the terminal is in raw mode,
// where the kernel no longer turns them into signals.
const (
	ctrlC = 0x03
	ctrlD = 0x04
)

// openHost returns the host channel: the configured serial port, or the
// process's own terminal. The returned function undoes any terminal
// changes and must be called before exit.
func openHost(config *Config, cancel context.CancelFunc) (*bridge.StreamChannel, func(), error) {
	if config.HostPort != "" {
		port, err := serial.Open(config.HostPort, &serial.Mode{BaudRate: config.HostBaud})
		if err != nil {
			return nil, nil, fmt.Errorf("open host port %s: %w", config.HostPort, err)
		}
		return bridge.NewStreamChannel(port, port), func() {}, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return bridge.NewStreamChannel(os.Stdin, os.Stdout), func() {}, nil
	}

	// The bridge echoes input itself and needs every byte as it is typed.
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, nil, fmt.Errorf("set terminal raw mode: %w", err)
	}
	restore := func() {
		term.Restore(fd, state)
	}

	in := &interruptReader{r: os.Stdin, cancel: cancel}
	return bridge.NewStreamChannel(in, os.Stdout), restore, nil
}

// interruptReader stops the session when Ctrl-C or Ctrl-D is typed.
type interruptReader struct {
	r      io.Reader
	cancel context.CancelFunc
}

func (i *interruptReader) Read(p []byte) (int, error) {
	n, err := i.r.Read(p)
	if k := bytes.IndexAny(p[:n], string([]byte{ctrlC, ctrlD})); k >= 0 {
		i.cancel()
		return k, io.EOF
	}
	return n, err
}

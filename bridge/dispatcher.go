package bridge

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"i4.energy/across/atbridge/at"
)

// Messages written to the host. Each is followed by "\r\n".
const (
	MsgNoConnection       = "Error: No connection established yet"
	MsgOpenArity          = "Error: open requires one argument"
	MsgUnsupportedBaud    = "Error: Unsupported baud rate"
	MsgCloseArity         = "Error: close requires no arguments"
	MsgUnknownCommand     = "Error: Unknown command"
	MsgOpenFailed         = "Error: Could not open device"
	MsgDeviceFailed       = "Error: Device communication failed"
	MsgTerminationUnknown = "Warning: Could not determine command termination"
)

// Command is a control command split into its name and arguments.
type Command struct {
	Name string
	Args []string
}

// ParseCommand splits line on whitespace.
func ParseCommand(line string) Command {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}
	}
	return Command{Name: fields[0], Args: fields[1:]}
}

// IsPassthrough reports whether line is an AT command for the device: it
// starts with "AT" and has something after it.
func IsPassthrough(line string) bool {
	return len(line) > 2 && line[0] == 'A' && line[1] == 'T'
}

// Dispatcher handles complete host lines and owns the device connection.
type Dispatcher struct {
	host             Channel
	dialer           Dialer
	relay            *Relay
	logger           *zap.Logger
	responseCapacity int

	conn  Conn
	state ConnectionState
}

// NewDispatcher creates a Dispatcher from a Config that has its defaults
// applied. Output goes to host.
func NewDispatcher(config Config, host Channel) *Dispatcher {
	return &Dispatcher{
		host:             host,
		dialer:           config.Dialer,
		relay:            NewRelay(config),
		logger:           config.Logger.With(zap.String("component", "dispatcher")),
		responseCapacity: config.ResponseCapacity,
	}
}

// State returns the current connection state.
func (d *Dispatcher) State() ConnectionState {
	return d.state
}

// Handle processes one line and then writes the prompt, whatever the
// outcome.
func (d *Dispatcher) Handle(ctx context.Context, line string) {
	d.logger.Debug("Handling line", zap.String("line", line))

	if IsPassthrough(line) {
		d.passthrough(ctx, line)
	} else {
		cmd := ParseCommand(line)
		switch cmd.Name {
		case "open":
			d.open(ctx, cmd.Args)
		case "close":
			d.close(cmd.Args)
		default:
			d.reply(MsgUnknownCommand)
		}
	}

	d.write([]byte(at.Prompt))
}

// Close releases the device connection, if any.
func (d *Dispatcher) Close() error {
	return d.disconnect()
}

func (d *Dispatcher) open(ctx context.Context, args []string) {
	if len(args) != 1 {
		d.reply(MsgOpenArity)
		return
	}
	baud, ok := ParseBaud(args[0])
	if !ok {
		d.reply(MsgUnsupportedBaud)
		return
	}

	if err := d.disconnect(); err != nil {
		d.logger.Warn("Failed to close device before reopening", zap.Error(err))
	}

	conn, err := d.dialer.Dial(ctx, baud)
	if err == nil && conn == nil {
		err = ErrNotConnected
	}
	if err != nil {
		d.logger.Error("Failed to open device", zap.Int("baud", baud), zap.Error(err))
		d.reply(MsgOpenFailed)
		return
	}

	term := d.relay.Probe(ctx, conn)
	d.conn = conn
	d.state = ConnectionState{Active: true, Baud: baud, Termination: term}
	d.logger.Info("Device opened", zap.Int("baud", baud), zap.Stringer("termination", term))

	if term == Unknown {
		d.logger.Warn("Device did not answer the termination probe", zap.Int("baud", baud))
		d.reply(MsgTerminationUnknown)
	}
}

func (d *Dispatcher) close(args []string) {
	if len(args) != 0 {
		d.reply(MsgCloseArity)
		return
	}
	if err := d.disconnect(); err != nil {
		d.logger.Warn("Failed to close device", zap.Error(err))
	}
}

// disconnect closes the device channel and clears the state. It does
// nothing when no channel is open.
func (d *Dispatcher) disconnect() error {
	if !d.state.Active {
		return nil
	}
	conn := d.conn
	d.conn = nil
	d.state = ConnectionState{Termination: Unconnected}
	d.logger.Info("Device closed")

	if err := conn.Close(); err != nil && !errors.Is(err, ErrAlreadyClosed) {
		return err
	}
	return nil
}

func (d *Dispatcher) passthrough(ctx context.Context, line string) {
	if !d.state.Active {
		d.reply(MsgNoConnection)
		return
	}

	resp := NewResponse(d.responseCapacity, true)
	if err := d.relay.Exchange(ctx, d.conn, []byte(line), d.state.Termination, resp); err != nil {
		if ctx.Err() != nil {
			return
		}
		d.logger.Error("AT command failed", zap.String("command", line), zap.Error(err))
		d.reply(MsgDeviceFailed)
		return
	}

	d.logResponse(line, resp)
	d.write(resp.Bytes())
}

func (d *Dispatcher) logResponse(cmd string, resp *Response) {
	if resp.Truncated() {
		d.logger.Warn("Response truncated",
			zap.String("command", cmd),
			zap.Int("capacity", d.responseCapacity),
			zap.Int("raw_bytes", resp.Raw()))
	}

	if ce := d.logger.Check(zap.DebugLevel, "AT command relayed"); ce != nil {
		var lines []string
		scanner := bufio.NewScanner(bytes.NewReader(resp.Bytes()))
		scanner.Split(at.Splitter)
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		ce.Write(
			zap.String("command", cmd),
			zap.Stringer("termination", d.state.Termination),
			zap.Strings("lines", lines),
			zap.String("result", at.Result(resp.Bytes())),
			zap.Int("raw_bytes", resp.Raw()),
			zap.Int("length", resp.Len()),
			zap.Bool("timed_out", resp.TimedOut()))
	}
}

func (d *Dispatcher) reply(msg string) {
	d.write([]byte(msg + at.CRLF))
}

func (d *Dispatcher) write(p []byte) {
	if _, err := d.host.Write(p); err != nil {
		d.logger.Warn("Failed to write to host", zap.Error(err))
	}
}

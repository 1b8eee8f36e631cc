package bridge

import (
	"i4.energy/across/atbridge/at"
)

// OverflowNotice is written to the host once when a line outgrows the line
// buffer.
const OverflowNotice = "buffer overflow" + at.CRLF

// LineAssembler turns the host byte stream into lines, echoing as it goes.
//
// "\r", "\n" and "\r\n" all end a line and are always echoed as "\r\n";
// the terminator is not part of the line. A line that outgrows the buffer
// is reported once and then discarded up to and including its terminator,
// without further echo.
type LineAssembler struct {
	host Channel
	buf  *LineBuffer
	norm at.Normalizer
}

func NewLineAssembler(host Channel, capacity int) *LineAssembler {
	return &LineAssembler{
		host: host,
		buf:  NewLineBuffer(capacity),
	}
}

// Poll consumes every byte the host has available and returns the lines
// completed by them. Partial input stays buffered for the next call. Empty
// lines are not returned.
//
// The error is the host's read or echo error; lines completed before it are
// still returned.
func (a *LineAssembler) Poll() ([]string, error) {
	var lines []string
	for {
		b, ok, err := a.host.PollByte()
		if err != nil {
			return lines, err
		}
		if !ok {
			return lines, nil
		}

		line, complete, err := a.feed(b)
		if complete {
			lines = append(lines, line)
		}
		if err != nil {
			return lines, err
		}
	}
}

func (a *LineAssembler) feed(b byte) (string, bool, error) {
	class := a.norm.Next(b)

	if a.buf.Overflowed() {
		if class != at.Data {
			a.buf.Reset()
		}
		return "", false, nil
	}

	switch class {
	case at.Continuation:
		return "", false, nil

	case at.EndOfLine:
		line := a.buf.Line()
		a.buf.Reset()
		_, err := a.host.Write([]byte(at.CRLF))
		return line, line != "", err

	default:
		if err := a.buf.TryAppend(b); err != nil {
			a.buf.markOverflow()
			_, err := a.host.Write([]byte(OverflowNotice))
			return "", false, err
		}
		_, err := a.host.Write([]byte{b})
		return "", false, err
	}
}

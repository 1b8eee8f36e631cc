package bridge

import "i4.energy/across/atbridge/at"

// LineBuffer accumulates one host line. It holds at most capacity-2 bytes,
// keeping room for the terminator.
type LineBuffer struct {
	buf      []byte
	overflow bool
}

// NewLineBuffer returns an empty buffer. capacity must be at least 3.
func NewLineBuffer(capacity int) *LineBuffer {
	return &LineBuffer{buf: make([]byte, 0, capacity)}
}

// TryAppend adds b, or returns ErrCapacityExceeded if the buffer is full.
func (l *LineBuffer) TryAppend(b byte) error {
	if len(l.buf) >= cap(l.buf)-2 {
		return ErrCapacityExceeded
	}
	l.buf = append(l.buf, b)
	return nil
}

// Line returns the buffered bytes as a string.
func (l *LineBuffer) Line() string {
	return string(l.buf)
}

func (l *LineBuffer) Len() int {
	return len(l.buf)
}

// Overflowed reports whether the current line ran out of room.
func (l *LineBuffer) Overflowed() bool {
	return l.overflow
}

func (l *LineBuffer) markOverflow() {
	l.overflow = true
}

// Reset empties the buffer and clears the overflow condition.
func (l *LineBuffer) Reset() {
	l.buf = l.buf[:0]
	l.overflow = false
}

// Response collects what a device sent back for one command.
//
// The text never exceeds capacity-1 bytes, so one byte is always left for a
// terminator when it is copied into a fixed buffer. Once a byte has been
// dropped the response is truncated and every later byte is dropped as
// well, so the text is always a prefix of the full reply.
type Response struct {
	buf       []byte
	limit     int
	normalize bool
	norm      at.Normalizer

	raw       int
	truncated bool
	timedOut  bool
}

// NewResponse returns an empty response that holds at most capacity-1
// bytes. With normalize set, every line ending becomes "\r\n" and the text
// always ends in one; otherwise the bytes are kept as received.
func NewResponse(capacity int, normalize bool) *Response {
	limit := max(capacity-1, 0)
	return &Response{
		buf:       make([]byte, 0, limit),
		limit:     limit,
		normalize: normalize,
	}
}

// put records one byte read from the device.
func (r *Response) put(b byte) {
	r.raw++
	if !r.normalize {
		r.append(b)
		return
	}

	switch r.norm.Next(b) {
	case at.EndOfLine:
		r.append(at.CR, at.LF)
	case at.Continuation:
	default:
		r.append(b)
	}
}

// finish terminates the last line of a normalized response.
func (r *Response) finish() {
	if r.normalize && !r.norm.AtLineEnd() {
		r.append(at.CR, at.LF)
	}
}

// append adds p as a whole, or drops it and truncates the response.
func (r *Response) append(p ...byte) {
	if r.truncated {
		return
	}
	if len(r.buf)+len(p) > r.limit {
		r.truncated = true
		return
	}
	r.buf = append(r.buf, p...)
}

// Bytes returns the collected text. The slice is only valid until the next
// exchange into this response.
func (r *Response) Bytes() []byte {
	return r.buf
}

func (r *Response) String() string {
	return string(r.buf)
}

// Len returns the length of the collected text.
func (r *Response) Len() int {
	return len(r.buf)
}

// Raw returns how many bytes were read from the device, including dropped
// ones. It differs from Len because line endings are rewritten.
func (r *Response) Raw() int {
	return r.raw
}

// Truncated reports whether bytes were dropped for lack of room.
func (r *Response) Truncated() bool {
	return r.truncated
}

// TimedOut reports whether collection stopped at the hard limit while the
// device was still sending.
func (r *Response) TimedOut() bool {
	return r.timedOut
}

// Reset empties the response for reuse.
func (r *Response) Reset() {
	r.buf = r.buf[:0]
	r.norm.Reset()
	r.raw = 0
	r.truncated = false
	r.timedOut = false
}

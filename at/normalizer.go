package at

// Class tells a caller what to do with one byte of a text stream.
type Class int

const (
	// Data is an ordinary byte.
	Data Class = iota
	// EndOfLine is "\r", or a "\n" that does not follow "\r".
	EndOfLine
	// Continuation is the "\n" of a "\r\n" pair whose "\r" already ended
	// the line.
	Continuation
)

// Normalizer classifies the bytes of a stream so that "\r", "\n" and "\r\n"
// each end exactly one line. It remembers the previous byte, so a pair split
// across two reads is still seen as a single terminator.
type Normalizer struct {
	last byte
}

// Next classifies b and remembers it.
func (n *Normalizer) Next(b byte) Class {
	prev := n.last
	n.last = b

	switch {
	case b == CR:
		return EndOfLine
	case b == LF && prev == CR:
		return Continuation
	case b == LF:
		return EndOfLine
	default:
		return Data
	}
}

// AtLineEnd reports whether the last byte seen was a line terminator.
func (n *Normalizer) AtLineEnd() bool {
	return n.last == CR || n.last == LF
}

// Reset forgets the previous byte.
func (n *Normalizer) Reset() {
	n.last = 0
}

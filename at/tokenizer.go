package at

import (
	"bufio"
	"bytes"
	"strings"
)

// Splitter tokenizes device output into lines. It uses the signature of
// bufio.SplitFunc so it can be directly used with bufio.Scanner.
//
// A line ends at "\r", "\n" or "\r\n"; the pair counts as a single
// terminator. A "\r" at the very end of the data is held back until the
// next byte shows whether a "\n" follows. The input prompt ("> ") is
// returned as a token of its own.
//
// The atEOF parameter indicates whether any more data will be available.
// When true, any remaining data is returned as the final token.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	// 1. Match input prompt
	if bytes.HasPrefix(data, []byte(Prompt)) {
		return len(Prompt), data[0:len(Prompt)], nil
	}

	// 2. Match any line ending
	if i := bytes.IndexAny(data, CRLF); i >= 0 {
		if data[i] == LF {
			return i + 1, data[0:i], nil
		}
		if i+1 < len(data) {
			if data[i+1] == LF {
				return i + 2, data[0:i], nil
			}
			return i + 1, data[0:i], nil
		}
		if atEOF {
			return i + 1, data[0:i], nil
		}
		return 0, nil, nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = Splitter

// Classify identifies the nature of the device output
func Classify(line string) ResponseType {
	if line == Prompt {
		return TypePrompt
	}

	// Direct matches for final results
	switch line {
	case OK, ERROR, NoCarrier, NoDialtone, Busy, NoAnswer:
		return TypeFinal
	}

	// Prefix matches
	switch {
	case strings.HasPrefix(line, CmeError), strings.HasPrefix(line, CmsError):
		return TypeFinal
	case strings.HasPrefix(line, UrcNewMsg), line == UrcCall:
		return TypeURC
	default:
		return TypeData
	}
}

// Result scans a complete response and returns its final result code, or
// "" when the response has none.
func Result(response []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(response))
	scanner.Split(Splitter)

	result := ""
	for scanner.Scan() {
		line := scanner.Text()
		if Classify(line) == TypeFinal {
			result = line
		}
	}
	return result
}

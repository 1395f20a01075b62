// Package nextion speaks the Nextion HMI serial protocol: ASCII commands
// and binary return frames, both terminated by three 0xFF bytes.
package nextion

import (
	"bytes"
	"errors"
	"fmt"
)

var terminator = []byte{0xFF, 0xFF, 0xFF}

// Return codes of frames sent by the panel.
const (
	codeTouchEvent  byte = 0x65
	codeCurrentPage byte = 0x66
)

var ErrMalformedFrame = errors.New("malformed nextion frame")

// Encode terminates a command for the wire.
func Encode(cmd string) []byte {
	out := make([]byte, 0, len(cmd)+len(terminator))
	out = append(out, cmd...)
	return append(out, terminator...)
}

// Key addresses a component by page and component id.
type Key struct {
	Page uint8
	ID   uint8
}

// Touch is a press or release reported by the panel.
type Touch struct {
	Key
	Pressed bool
}

// ParseFrame decodes a frame without its terminator. Frames other than
// touch events are reported with ok false.
func ParseFrame(frame []byte) (t Touch, ok bool, err error) {
	if len(frame) == 0 {
		return Touch{}, false, ErrMalformedFrame
	}
	switch frame[0] {
	case codeTouchEvent:
		if len(frame) != 4 {
			return Touch{}, false, fmt.Errorf("%w: touch event of %d bytes", ErrMalformedFrame, len(frame))
		}
		return Touch{Key: Key{Page: frame[1], ID: frame[2]}, Pressed: frame[3] == 0x01}, true, nil
	case codeCurrentPage:
		if len(frame) != 2 {
			return Touch{}, false, fmt.Errorf("%w: page frame of %d bytes", ErrMalformedFrame, len(frame))
		}
		// A page report is handled like a press on the page itself.
		return Touch{Key: Key{Page: frame[1]}, Pressed: true}, true, nil
	default:
		return Touch{}, false, nil
	}
}

// ScanFrames is a bufio.SplitFunc yielding frames without the terminator.
func ScanFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if i := bytes.Index(data, terminator); i >= 0 {
		return i + len(terminator), data[:i], nil
	}
	if atEOF && len(data) > 0 {
		// Trailing bytes without a terminator are noise from a reset.
		return len(data), nil, nil
	}
	return 0, nil, nil
}

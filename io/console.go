package io

import (
	"fmt"
	"io"
	"iter"
	"maps"
	"strconv"
)

// Console register offsets and window size.
const (
	CONSOLE_CHAR = uint32(0)  // Write low byte as a character.
	CONSOLE_DEC  = uint32(4)  // Write value as signed decimal.
	CONSOLE_HEX  = uint32(8)  // Write value as lowercase hexadecimal.
	CONSOLE_SIZE = uint32(12) // Size of the console window.
)

var _console_defines = map[string]string{
	"CONSOLE_CHAR": fmt.Sprintf("%v", CONSOLE_CHAR),
	"CONSOLE_DEC":  fmt.Sprintf("%v", CONSOLE_DEC),
	"CONSOLE_HEX":  fmt.Sprintf("%v", CONSOLE_HEX),
	"CONSOLE_SIZE": fmt.Sprintf("%v", CONSOLE_SIZE),
}

// flusher is implemented by buffered writers, such as bufio.Writer.
type flusher interface {
	Flush() error
}

// Console is a write-only text output device.
// Every emission is written to Output, and flushed if Output is buffered.
// Reads always return zero.
type Console struct {
	Output io.Writer // Output sink. If nil, output is discarded.

	Emitted int // Total bytes emitted since reset.
}

var _ Device = (*Console)(nil)

// Defines returns an iter of defines for the console registers.
func (con *Console) Defines() iter.Seq2[string, string] {
	return maps.All(_console_defines)
}

// Reset clears the emission counter.
func (con *Console) Reset() {
	con.Emitted = 0
}

// Size returns the size of the console window.
func (con *Console) Size() uint32 {
	return CONSOLE_SIZE
}

// Load always returns zero.
func (con *Console) Load(width Width, offset uint32) (value uint32, err error) {
	return
}

// Store emits text for the CHAR, DEC and HEX registers.
// Stores to any other offset in the window are ignored.
func (con *Console) Store(width Width, offset uint32, value uint32) (err error) {
	var text []byte

	switch offset {
	case CONSOLE_CHAR:
		text = []byte{byte(value)}
	case CONSOLE_DEC:
		text = strconv.AppendInt(nil, int64(int32(value)), 10)
	case CONSOLE_HEX:
		text = strconv.AppendUint(nil, uint64(value), 16)
	default:
		return
	}

	if con.Output == nil {
		return
	}

	n, err := con.Output.Write(text)
	con.Emitted += n
	if err != nil {
		return
	}

	if fl, ok := con.Output.(flusher); ok {
		err = fl.Flush()
	}

	return
}

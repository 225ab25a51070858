package io

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsole_Store(t *testing.T) {
	assert := assert.New(t)

	table := [](struct {
		name   string
		offset uint32
		value  uint32
		output string
	}){
		{"char", CONSOLE_CHAR, 0x41, "A"},
		{"char_low_byte", CONSOLE_CHAR, 0x1234_5642, "B"},
		{"dec_zero", CONSOLE_DEC, 0, "0"},
		{"dec_positive", CONSOLE_DEC, 12345, "12345"},
		{"dec_negative", CONSOLE_DEC, 0xffff_ffff, "-1"},
		{"dec_min", CONSOLE_DEC, 0x8000_0000, "-2147483648"},
		{"hex_zero", CONSOLE_HEX, 0, "0"},
		{"hex_no_pad", CONSOLE_HEX, 0xab, "ab"},
		{"hex_full", CONSOLE_HEX, 0xdead_beef, "deadbeef"},
		{"ignored", 2, 0x41, ""},
		{"ignored_high", 11, 0x41, ""},
	}

	for _, entry := range table {
		out := &bytes.Buffer{}
		con := &Console{Output: out}

		err := con.Store(WIDTH_WORD, entry.offset, entry.value)
		assert.NoError(err, entry.name)
		assert.Equal(entry.output, out.String(), entry.name)
		assert.Equal(len(entry.output), con.Emitted, entry.name)
	}
}

func TestConsole_Flush(t *testing.T) {
	assert := assert.New(t)

	out := &bytes.Buffer{}
	con := &Console{Output: bufio.NewWriter(out)}

	err := con.Store(WIDTH_BYTE, CONSOLE_CHAR, 'x')
	assert.NoError(err)
	assert.Equal("x", out.String())
}

func TestConsole_Load(t *testing.T) {
	assert := assert.New(t)

	con := &Console{}
	for offset := range CONSOLE_SIZE {
		value, err := con.Load(WIDTH_WORD, offset)
		assert.NoError(err)
		assert.Equal(uint32(0), value)
	}
}

func TestConsole_Discard(t *testing.T) {
	assert := assert.New(t)

	con := &Console{}
	assert.NoError(con.Store(WIDTH_BYTE, CONSOLE_CHAR, 'x'))
	assert.Equal(0, con.Emitted)
}

func TestWidth(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(uint32(1), WIDTH_BYTE.Size())
	assert.Equal(uint32(2), WIDTH_HALF.Size())
	assert.Equal(uint32(4), WIDTH_WORD.Size())

	assert.Equal(uint32(0xff), WIDTH_BYTE.Mask())
	assert.Equal(uint32(0xffff), WIDTH_HALF.Mask())
	assert.Equal(uint32(0xffff_ffff), WIDTH_WORD.Mask())

	assert.True(WIDTH_BYTE.Aligned(3))
	assert.False(WIDTH_HALF.Aligned(3))
	assert.True(WIDTH_HALF.Aligned(2))
	assert.False(WIDTH_WORD.Aligned(2))
	assert.True(WIDTH_WORD.Aligned(8))

	assert.Equal("half", WIDTH_HALF.String())
	assert.Equal("Width(7)", Width(7).String())
}

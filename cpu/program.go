package cpu

import (
	"encoding/binary"
	"iter"
)

// LinkKind describes how a label reference is resolved into an opcode.
type LinkKind int

const (
	LINK_NONE   = LinkKind(iota) // No label reference.
	LINK_BRANCH                  // B-type pc relative offset.
	LINK_JUMP                    // J-type pc relative offset.
	LINK_PCREL                   // auipc + I-type pair, pc relative.
	LINK_ABS                     // lui + I-type pair, absolute address.
	LINK_WORD                    // Data word holding an absolute address.
)

// Opcode represents a line of assembled code with its source location and
// generated instructions or data.
type Opcode struct {
	LineNo    int
	Addr      uint32
	Words     []string
	Codes     []Code
	Data      []byte
	LinkLabel string
	Link      LinkKind
}

// Size returns the number of bytes the opcode occupies in the image.
func (op *Opcode) Size() uint32 {
	return uint32(4*len(op.Codes) + len(op.Data))
}

// Program is an assembled program image, with its source listing.
type Program struct {
	Origin  uint32
	Opcodes []Opcode
}

// Debug locates the opcode containing an address.
type Debug struct {
	*Opcode
	Index int // Index of the instruction word within the opcode.
}

// Debug finds the source opcode for an address.
// Instructions match only at their first byte, data matches at any byte.
func (prog *Program) Debug(addr uint32) (dbg Debug) {
	for n, op := range prog.Opcodes {
		if addr < op.Addr || addr-op.Addr >= op.Size() {
			continue
		}

		offset := addr - op.Addr
		if offset < uint32(4*len(op.Codes)) && offset%4 != 0 {
			break
		}

		dbg = Debug{
			Opcode: &prog.Opcodes[n],
			Index:  int(offset) / 4,
		}
		break
	}

	return
}

// Binary returns the flat image of the program, to be loaded at Origin.
func (prog *Program) Binary() (bin []byte) {
	for _, op := range prog.Opcodes {
		offset := int(op.Addr - prog.Origin)
		if len(bin) < offset {
			bin = append(bin, make([]byte, offset-len(bin))...)
		}
		for _, code := range op.Codes {
			bin = binary.LittleEndian.AppendUint32(bin, uint32(code))
		}
		bin = append(bin, op.Data...)
	}

	return
}

// Codes iterates over all instruction words and their addresses.
func (prog *Program) Codes() iter.Seq2[uint32, Code] {
	return func(yield func(addr uint32, code Code) bool) {
		for _, op := range prog.Opcodes {
			for n, code := range op.Codes {
				if !yield(op.Addr+uint32(4*n), code) {
					return
				}
			}
		}
	}
}

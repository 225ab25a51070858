package io

import (
	"encoding/binary"
	"fmt"
	"iter"
	"maps"
)

// Reference memory map.
const (
	MEMORY_BASE  = uint32(0x8000_0000) // Base address of RAM.
	MEMORY_SIZE  = uint32(32 << 20)    // Size of RAM, 32 MiB.
	CONSOLE_BASE = uint32(0x1000_0000) // Base address of the console window.
)

// mapping is a device mapped into the address space.
type mapping struct {
	base   uint32
	device Device
}

// Memory is the address space seen by the processor: a flat RAM region
// plus memory mapped device windows. Device windows are checked before RAM.
type Memory struct {
	Base uint32 // Base address of RAM.
	Data []byte // RAM backing store.

	devices []mapping
}

// NewMemory creates a zero-filled RAM of size bytes at base.
func NewMemory(base uint32, size uint32) (mem *Memory, err error) {
	if size == 0 || uint64(base)+uint64(size) > 1<<32 {
		err = fmt.Errorf("%w: %#x bytes at %#08x", ErrAllocation, size, base)
		return
	}

	mem = &Memory{
		Base: base,
		Data: make([]byte, size),
	}

	return
}

// Size returns the size of RAM in bytes.
func (mem *Memory) Size() uint32 {
	return uint32(len(mem.Data))
}

// Map attaches a device window at base.
// The window may not overlap RAM, or wrap the address space.
func (mem *Memory) Map(base uint32, device Device) (err error) {
	size := device.Size()
	if uint64(base)+uint64(size) > 1<<32 {
		err = ErrDeviceOutOfRange
		return
	}

	ram_end := uint64(mem.Base) + uint64(len(mem.Data))
	if uint64(base) < ram_end && uint64(base)+uint64(size) > uint64(mem.Base) {
		err = ErrDeviceOverlap
		return
	}

	mem.devices = append(mem.devices, mapping{base: base, device: device})
	return
}

// Defines returns the memory map as assembler defines.
func (mem *Memory) Defines() iter.Seq2[string, string] {
	defines := map[string]string{
		"MEMORY_BASE": fmt.Sprintf("%#x", mem.Base),
		"MEMORY_SIZE": fmt.Sprintf("%#x", len(mem.Data)),
	}
	for _, dev := range mem.devices {
		if _, ok := dev.device.(*Console); ok {
			defines["CONSOLE_BASE"] = fmt.Sprintf("%#x", dev.base)
		}
	}

	return maps.All(defines)
}

// Reset zeros RAM and resets all mapped devices.
func (mem *Memory) Reset() {
	clear(mem.Data)
	for _, dev := range mem.devices {
		dev.device.Reset()
	}
}

// LoadProgram copies image verbatim to the start of RAM.
func (mem *Memory) LoadProgram(image []byte) (err error) {
	if len(image) > len(mem.Data) {
		err = fmt.Errorf("%w: %v bytes, limit %v", ErrProgramTooLarge, len(image), len(mem.Data))
		return
	}

	copy(mem.Data, image)
	return
}

// device finds the device window that contains addr.
func (mem *Memory) device(addr uint32) (dev Device, offset uint32, ok bool) {
	for _, m := range mem.devices {
		if addr >= m.base && addr-m.base < m.device.Size() {
			return m.device, addr - m.base, true
		}
	}
	return
}

// offset validates a RAM access and returns the offset into Data.
func (mem *Memory) offset(width Width, addr uint32) (offset uint32, err error) {
	offset = addr - mem.Base
	if addr < mem.Base || uint64(offset) >= uint64(len(mem.Data)) {
		err = ErrOutOfRange
		return
	}

	if !width.Aligned(addr) {
		err = ErrMisaligned
		return
	}

	// RAM sizes need not be a multiple of the word size.
	if uint64(offset)+uint64(width.Size()) > uint64(len(mem.Data)) {
		err = ErrOutOfRange
		return
	}

	return
}

// Read reads width bytes at addr, zero-extended.
func (mem *Memory) Read(width Width, addr uint32) (value uint32, err error) {
	defer func() {
		if err != nil {
			err = &ErrAccess{Width: width, Address: addr, Err: err}
		}
	}()

	if dev, offset, ok := mem.device(addr); ok {
		value, err = dev.Load(width, offset)
		return
	}

	offset, err := mem.offset(width, addr)
	if err != nil {
		return
	}

	data := mem.Data[offset:]
	switch width {
	case WIDTH_BYTE:
		value = uint32(data[0])
	case WIDTH_HALF:
		value = uint32(binary.LittleEndian.Uint16(data))
	case WIDTH_WORD:
		value = binary.LittleEndian.Uint32(data)
	}

	return
}

// Write writes the low width bytes of value at addr.
func (mem *Memory) Write(width Width, addr uint32, value uint32) (err error) {
	defer func() {
		if err != nil {
			err = &ErrAccess{Write: true, Width: width, Address: addr, Err: err}
		}
	}()

	if dev, offset, ok := mem.device(addr); ok {
		err = dev.Store(width, offset, value)
		return
	}

	offset, err := mem.offset(width, addr)
	if err != nil {
		return
	}

	data := mem.Data[offset:]
	switch width {
	case WIDTH_BYTE:
		data[0] = byte(value)
	case WIDTH_HALF:
		binary.LittleEndian.PutUint16(data, uint16(value))
	case WIDTH_WORD:
		binary.LittleEndian.PutUint32(data, value)
	}

	return
}

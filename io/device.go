// Package io provides the memory and I/O subsystem for the minirisc emulator.
// It models a flat little-endian RAM region and a memory mapped console
// device, and resolves every processor access by address range.
package io

import (
	"iter"
)

// Device defines the interface for memory mapped devices.
// Offsets are relative to the base of the window the device is mapped at.
type Device interface {
	// Reset returns the device to its power-on state.
	Reset()
	// Size returns the number of bytes of address space decoded by the device.
	Size() uint32
	// Load reads from the device.
	Load(width Width, offset uint32) (value uint32, err error)
	// Store writes to the device.
	Store(width Width, offset uint32, value uint32) (err error)
	// Defines returns the device's register offsets by name.
	Defines() iter.Seq2[string, string]
}

package io

// Width is the size of a single memory access.
type Width int

//go:generate go tool stringer -linecomment -type=Width
const (
	WIDTH_BYTE = Width(0) // byte
	WIDTH_HALF = Width(1) // half
	WIDTH_WORD = Width(2) // word
)

// Size returns the number of bytes transferred.
func (w Width) Size() uint32 {
	return 1 << uint(w)
}

// Mask returns the mask of the value bits transferred.
func (w Width) Mask() uint32 {
	return ^uint32(0) >> (32 - 8*w.Size())
}

// Aligned returns true if the address is naturally aligned for the width.
func (w Width) Aligned(addr uint32) bool {
	return addr&(w.Size()-1) == 0
}

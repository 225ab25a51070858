package io

import (
	"errors"

	"github.com/ezrec/minirisc/translate"
)

var f = translate.From

var (
	// Access errors
	ErrOutOfRange = errors.New(f("address out of range"))
	ErrMisaligned = errors.New(f("misaligned access"))

	// Setup errors
	ErrAllocation       = errors.New(f("memory allocation"))
	ErrProgramTooLarge  = errors.New(f("program too large"))
	ErrDeviceOverlap    = errors.New(f("device overlaps memory"))
	ErrDeviceOutOfRange = errors.New(f("device window out of range"))
)

// ErrAccess records a failed read or write.
type ErrAccess struct {
	Write   bool
	Width   Width
	Address uint32
	Err     error
}

func (err *ErrAccess) Error() string {
	op := "read"
	if err.Write {
		op = "write"
	}
	return f("%v %v at 0x%08x: %v", op, err.Width, err.Address, err.Err)
}

func (err *ErrAccess) Unwrap() error {
	return err.Err
}

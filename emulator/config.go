package emulator

import (
	"fmt"

	mio "github.com/ezrec/minirisc/io"
)

// Config is the memory map and boot configuration of an emulator.
type Config struct {
	MemoryBase  uint32 `mapstructure:"memory_base" yaml:"memory_base"`   // Base address of RAM.
	MemorySize  uint32 `mapstructure:"memory_size" yaml:"memory_size"`   // Size of RAM in bytes.
	ConsoleBase uint32 `mapstructure:"console_base" yaml:"console_base"` // Base address of the console window.
	Entry       uint32 `mapstructure:"entry" yaml:"entry"`               // Initial pc. Zero selects MemoryBase.
}

// DefaultConfig returns the reference memory map.
func DefaultConfig() Config {
	return Config{
		MemoryBase:  mio.MEMORY_BASE,
		MemorySize:  mio.MEMORY_SIZE,
		ConsoleBase: mio.CONSOLE_BASE,
	}
}

// EntryPoint returns the initial program counter.
// An Entry of zero selects MemoryBase, so pc 0 is only reachable with a RAM
// base of zero.
func (cfg Config) EntryPoint() uint32 {
	if cfg.Entry == 0 {
		return cfg.MemoryBase
	}
	return cfg.Entry
}

// Validate checks that the memory map can be built.
func (cfg Config) Validate() (err error) {
	ram_end := uint64(cfg.MemoryBase) + uint64(cfg.MemorySize)
	console_end := uint64(cfg.ConsoleBase) + uint64(mio.CONSOLE_SIZE)

	switch {
	case cfg.MemorySize == 0:
		err = fmt.Errorf("%w: empty memory", mio.ErrAllocation)
	case ram_end > 1<<32:
		err = fmt.Errorf("%w: memory at %#08x wraps", mio.ErrAllocation, cfg.MemoryBase)
	case console_end > 1<<32:
		err = fmt.Errorf("%w: console at %#08x", mio.ErrDeviceOutOfRange, cfg.ConsoleBase)
	case uint64(cfg.ConsoleBase) < ram_end && console_end > uint64(cfg.MemoryBase):
		err = fmt.Errorf("%w: console at %#08x", mio.ErrDeviceOverlap, cfg.ConsoleBase)
	}

	return
}

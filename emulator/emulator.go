// Copyright 2024, Jason S. McMullan <jason.mcmullan@gmail.com>

package emulator

import (
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/hashicorp/go-hclog"

	"github.com/ezrec/minirisc/cpu"
	"github.com/ezrec/minirisc/internal"
	mio "github.com/ezrec/minirisc/io"
)

// Emulator state. CPU + memory + console.
type Emulator struct {
	Logger   hclog.Logger // Diagnostic logger.
	*cpu.Cpu              // Reference to the CPU simulation.
	Program  *cpu.Program // Reference to the currently running program listing.

	Memory  *mio.Memory // Address space.
	Console mio.Console // Console device.

	Config Config // Memory map.
}

// NewEmulator creates a new emulator with the memory map of cfg.
// The console discards its output until Console.Output is set.
func NewEmulator(cfg Config) (emu *Emulator, err error) {
	err = cfg.Validate()
	if err != nil {
		return
	}

	mem, err := mio.NewMemory(cfg.MemoryBase, cfg.MemorySize)
	if err != nil {
		return
	}

	emu = &Emulator{
		Logger:  hclog.NewNullLogger(),
		Program: &cpu.Program{},
		Memory:  mem,
		Config:  cfg,
	}

	err = mem.Map(cfg.ConsoleBase, &emu.Console)
	if err != nil {
		emu = nil
		return
	}

	emu.Cpu = cpu.NewCpu(mem, cfg.EntryPoint())

	return
}

// SetLogger sets the logger of the emulator and its CPU.
func (emu *Emulator) SetLogger(logger hclog.Logger) {
	emu.Logger = logger
	emu.Cpu.Logger = logger.Named("cpu")
}

// Defines returns an iterator over all of the defines
func (emu *Emulator) Defines() iter.Seq2[string, string] {
	return internal.IterSeq2Concat(
		emu.Memory.Defines(),
		emu.Console.Defines(),
	)
}

// Reset the processor state.
// Registers are cleared and the pc is set to the entry point. Memory is kept.
func (emu *Emulator) Reset() {
	emu.Cpu.Reset(emu.Config.EntryPoint())
	emu.Console.Reset()
}

// Load replaces memory contents with a flat program image, and resets.
// The program listing is cleared.
func (emu *Emulator) Load(image []byte) (err error) {
	emu.Memory.Reset()

	err = emu.Memory.LoadProgram(image)
	if err != nil {
		return
	}

	emu.Program = &cpu.Program{Origin: emu.Memory.Base}
	emu.Reset()

	emu.Logger.Debug("load", "bytes", len(image), "base", fmt.Sprintf("0x%08x", emu.Memory.Base))

	return
}

// LoadFile loads a flat program image from a file.
func (emu *Emulator) LoadFile(path string) (err error) {
	file, err := os.Open(path)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrImageNotFound, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrImageNotFound, err)
		return
	}

	size := info.Size()
	if size > int64(emu.Memory.Size()) {
		err = fmt.Errorf("%w: %v bytes, limit %v", mio.ErrProgramTooLarge, size, emu.Memory.Size())
		return
	}

	image := make([]byte, size)
	_, err = io.ReadFull(file, image)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrShortRead, err)
		return
	}

	return emu.Load(image)
}

// Assembler returns an assembler predefined with the emulator memory map.
func (emu *Emulator) Assembler() (asm *cpu.Assembler) {
	asm = &cpu.Assembler{Logger: emu.Logger.Named("asm")}
	for key, value := range emu.Defines() {
		asm.Predefine(key, value)
	}

	return
}

// Assemble assembles source text with the emulator defines, and loads it.
func (emu *Emulator) Assemble(source io.Reader) (err error) {
	prog, err := emu.Assembler().Parse(source)
	if err != nil {
		return
	}

	err = emu.Load(prog.Binary())
	if err != nil {
		return
	}

	emu.Program = prog

	return
}

// LineNo returns the source line number of the opcode at addr, or zero.
func (emu *Emulator) LineNo(addr uint32) int {
	dbg := emu.Program.Debug(addr)
	if dbg.Opcode == nil {
		return 0
	}

	return dbg.LineNo
}

// Tick performs a single instruction cycle of the emulator.
// done is set once the CPU has halted. A non-nil error with done unset is
// a non-fatal access fault.
func (emu *Emulator) Tick() (done bool, err error) {
	if emu.Cpu.Halted {
		done = true
		return
	}

	pc := emu.Cpu.Pc
	defer func() {
		if err != nil {
			err = &ErrRuntime{Pc: pc, LineNo: emu.LineNo(pc), Err: err}
		}
	}()

	err = emu.Cpu.Tick()
	done = emu.Cpu.Halted

	return
}

// Run executes instructions until the CPU halts.
// Access faults are logged and execution continues. The fault that halted the
// CPU, if any, is returned.
func (emu *Emulator) Run() (err error) {
	emu.Logger.Info("run", "entry", fmt.Sprintf("0x%08x", emu.Cpu.Pc))

	for {
		var done bool
		done, err = emu.Tick()
		if done {
			break
		}
		if err != nil {
			emu.Logger.Warn("access fault", "error", err)
			err = nil
		}
	}

	if err != nil {
		emu.Logger.Error("fault", "error", err)
	}

	emu.Logger.Info("halted",
		"pc", fmt.Sprintf("0x%08x", emu.Cpu.Pc),
		"instructions", emu.Cpu.Instructions,
	)

	return
}

// State is a snapshot of the architectural state.
type State struct {
	Pc           uint32            `yaml:"pc"`
	Halted       bool              `yaml:"halted"`
	Instructions uint64            `yaml:"instructions"`
	Console      int               `yaml:"console_bytes"`
	Registers    map[string]uint32 `yaml:"registers"`
}

// State returns a snapshot of the architectural state.
func (emu *Emulator) State() (state State) {
	state = State{
		Pc:           emu.Cpu.Pc,
		Halted:       emu.Cpu.Halted,
		Instructions: emu.Cpu.Instructions,
		Console:      emu.Console.Emitted,
		Registers:    make(map[string]uint32, len(emu.Cpu.Register)),
	}

	for n, value := range emu.Cpu.Register {
		state.Registers[fmt.Sprintf("x%02d", n)] = value
	}

	return
}

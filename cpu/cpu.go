package cpu

import (
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/ezrec/minirisc/io"
)

// Bus is the address space seen by the processor.
type Bus interface {
	Read(width io.Width, addr uint32) (value uint32, err error)
	Write(width io.Width, addr uint32, value uint32) (err error)
}

var _ Bus = (*io.Memory)(nil)

// Cpu is the simulation context for a single RV32IM hart.
type Cpu struct {
	Logger hclog.Logger // Trace and diagnostic logger.

	Bus Bus // Address space; not owned by the Cpu.

	Pc       uint32     // Address of the current instruction.
	NextPc   uint32     // Address of the next instruction.
	Ir       Code       // Most recently fetched instruction word.
	Register [32]uint32 // Register file. Register[0] always reads zero.
	Halted   bool       // Set when execution has terminated.

	Instructions uint64 // Retired instruction counter.
}

// NewCpu creates a new CPU attached to a bus, starting execution at pc.
func NewCpu(bus Bus, pc uint32) (cpu *Cpu) {
	cpu = &Cpu{
		Logger: hclog.NewNullLogger(),
		Bus:    bus,
	}
	cpu.Reset(pc)

	return
}

// Reset the CPU state.
// - Clears the registers and the halt flag.
// - Zeros the retired instruction counter.
// - Sets the program counter to pc.
func (cpu *Cpu) Reset(pc uint32) {
	clear(cpu.Register[:])
	cpu.Pc = pc
	cpu.NextPc = pc + 4
	cpu.Ir = 0
	cpu.Halted = false
	cpu.Instructions = 0

	cpu.Logger.Debug("reset", "pc", fmt.Sprintf("0x%08x", pc))
}

// String returns the current CPU state as a string.
func (cpu *Cpu) String() (text string) {
	text = fmt.Sprintf("   pc: %08x\n", cpu.Pc)
	for n := 0; n < len(cpu.Register); n += 4 {
		for i := n; i < n+4; i++ {
			text += fmt.Sprintf("% 5s: %08x ", RegisterName(i), cpu.Register[i])
		}
		text += "\n"
	}

	return
}

// FetchCode fetches the instruction word at the program counter.
// A failed fetch halts the CPU.
func (cpu *Cpu) FetchCode() (code Code, err error) {
	word, err := cpu.Bus.Read(io.WIDTH_WORD, cpu.Pc)
	if err != nil {
		cpu.Halted = true
		err = &ErrFetch{Pc: cpu.Pc, Err: err}
		return
	}

	code = Code(word)
	cpu.Ir = code

	return
}

// Tick executes a single CPU instruction cycle.
func (cpu *Cpu) Tick() (err error) {
	if cpu.Halted {
		err = ErrHalted
		return
	}

	code, err := cpu.FetchCode()
	if err != nil {
		return
	}

	err = cpu.Execute(code)

	return
}

// Execute executes a single instruction word.
//
// Instructions that halt the CPU (ecall, ebreak, and invalid encodings) do not
// retire: the program counter and instruction counter are left unchanged.
// A load or store fault retires the instruction without any effect on the
// destination, and is returned as a non-fatal error.
func (cpu *Cpu) Execute(code Code) (err error) {
	inst := code.Decode()

	if cpu.Logger.IsTrace() {
		cpu.Logger.Trace("exec", "pc", fmt.Sprintf("0x%08x", cpu.Pc),
			"code", fmt.Sprintf("0x%08x", uint32(code)), "inst", inst.String())
	}

	reg := &cpu.Register
	a := reg[inst.Rs1]
	b := reg[inst.Rs2]
	pc := cpu.Pc

	cpu.NextPc = pc + 4

	switch mn := inst.Mnemonic; mn {
	case INST_LUI:
		reg[inst.Rd] = inst.Imm
	case INST_AUIPC:
		reg[inst.Rd] = pc + inst.Imm
	case INST_JAL:
		reg[inst.Rd] = pc + 4
		cpu.NextPc = pc + inst.Imm
	case INST_JALR:
		target := (a + inst.Imm) &^ 1
		reg[inst.Rd] = pc + 4
		cpu.NextPc = target
	case INST_BEQ, INST_BNE, INST_BLT, INST_BGE, INST_BLTU, INST_BGEU:
		if doBranch(mn, a, b) {
			cpu.NextPc = pc + inst.Imm
		}
	case INST_LB, INST_LH, INST_LW, INST_LBU, INST_LHU:
		width, _ := mn.Width()
		var value uint32
		value, err = cpu.Bus.Read(width, a+inst.Imm)
		if err == nil {
			reg[inst.Rd] = doExtend(mn, value)
		}
	case INST_SB, INST_SH, INST_SW:
		width, _ := mn.Width()
		err = cpu.Bus.Write(width, a+inst.Imm, b)
	case INST_ADDI, INST_SLTI, INST_SLTIU, INST_XORI, INST_ORI, INST_ANDI,
		INST_SLLI, INST_SRLI, INST_SRAI:
		reg[inst.Rd] = doAlu(mn, a, inst.Imm)
	case INST_ADD, INST_SUB, INST_SLL, INST_SLT, INST_SLTU, INST_XOR,
		INST_SRL, INST_SRA, INST_OR, INST_AND,
		INST_MUL, INST_MULH, INST_MULHSU, INST_MULHU,
		INST_DIV, INST_DIVU, INST_REM, INST_REMU:
		reg[inst.Rd] = doAlu(mn, a, b)
	case INST_FENCE:
		// no-op
	case INST_ECALL, INST_EBREAK:
		cpu.Halted = true
		cpu.Logger.Debug("halt", "pc", fmt.Sprintf("0x%08x", pc), "inst", mn.String())
		return
	default:
		cpu.Halted = true
		err = ErrOpcode(code)
		return
	}

	reg[0] = 0

	cpu.Pc = cpu.NextPc
	cpu.Instructions++

	return
}

// doBranch evaluates a branch condition.
func doBranch(mn Mnemonic, a, b uint32) (taken bool) {
	switch mn {
	case INST_BEQ:
		taken = a == b
	case INST_BNE:
		taken = a != b
	case INST_BLT:
		taken = int32(a) < int32(b)
	case INST_BGE:
		taken = int32(a) >= int32(b)
	case INST_BLTU:
		taken = a < b
	case INST_BGEU:
		taken = a >= b
	}

	return
}

// doExtend sign or zero extends a loaded value.
func doExtend(mn Mnemonic, value uint32) (output uint32) {
	switch mn {
	case INST_LB:
		output = uint32(int32(int8(value)))
	case INST_LH:
		output = uint32(int32(int16(value)))
	case INST_LBU:
		output = value & 0xff
	case INST_LHU:
		output = value & 0xffff
	default:
		output = value
	}

	return
}

// doAlu performs the requested ALU action, and returns the output value.
// Immediate forms share the semantics of their register forms.
func doAlu(mn Mnemonic, a uint32, b uint32) (output uint32) {
	switch mn {
	case INST_ADD, INST_ADDI:
		output = a + b
	case INST_SUB:
		output = a - b
	case INST_SLL, INST_SLLI:
		output = a << (b & 0x1f)
	case INST_SLT, INST_SLTI:
		if int32(a) < int32(b) {
			output = 1
		}
	case INST_SLTU, INST_SLTIU:
		if a < b {
			output = 1
		}
	case INST_XOR, INST_XORI:
		output = a ^ b
	case INST_SRL, INST_SRLI:
		output = a >> (b & 0x1f)
	case INST_SRA, INST_SRAI:
		output = uint32(int32(a) >> (b & 0x1f))
	case INST_OR, INST_ORI:
		output = a | b
	case INST_AND, INST_ANDI:
		output = a & b
	case INST_MUL:
		output = a * b
	case INST_MULH:
		output = uint32((int64(int32(a)) * int64(int32(b))) >> 32)
	case INST_MULHSU:
		output = uint32((int64(int32(a)) * int64(b)) >> 32)
	case INST_MULHU:
		output = uint32((uint64(a) * uint64(b)) >> 32)
	case INST_DIV:
		if b == 0 {
			output = 0xffff_ffff
		} else {
			// 0x80000000 / -1 wraps to 0x80000000.
			output = uint32(int32(a) / int32(b))
		}
	case INST_DIVU:
		if b == 0 {
			output = 0xffff_ffff
		} else {
			output = a / b
		}
	case INST_REM:
		if b == 0 {
			output = a
		} else {
			output = uint32(int32(a) % int32(b))
		}
	case INST_REMU:
		if b == 0 {
			output = a
		} else {
			output = a % b
		}
	}

	return
}

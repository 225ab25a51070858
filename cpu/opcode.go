package cpu

import (
	"fmt"

	"github.com/ezrec/minirisc/io"
)

// CodeClass is the opcode group, the low 7 bits of an instruction word.
type CodeClass uint32

const (
	OP_LOAD     = CodeClass(0x03) // load
	OP_MISC_MEM = CodeClass(0x0f) // misc-mem
	OP_IMM      = CodeClass(0x13) // op-imm
	OP_AUIPC    = CodeClass(0x17) // auipc
	OP_STORE    = CodeClass(0x23) // store
	OP_REG      = CodeClass(0x33) // op
	OP_LUI      = CodeClass(0x37) // lui
	OP_BRANCH   = CodeClass(0x63) // branch
	OP_JALR     = CodeClass(0x67) // jalr
	OP_JAL      = CodeClass(0x6f) // jal
	OP_SYSTEM   = CodeClass(0x73) // system
)

// CodeFormat is the operand layout of an instruction word.
type CodeFormat int

//go:generate go tool stringer -linecomment -type=CodeFormat
const (
	FORMAT_R = CodeFormat(0) // R
	FORMAT_I = CodeFormat(1) // I
	FORMAT_S = CodeFormat(2) // S
	FORMAT_B = CodeFormat(3) // B
	FORMAT_U = CodeFormat(4) // U
	FORMAT_J = CodeFormat(5) // J
)

// Mnemonic identifies a single decoded instruction.
// INST_INVALID is the decode result of any encoding that is not recognized.
type Mnemonic int

//go:generate go tool stringer -linecomment -type=Mnemonic
const (
	INST_INVALID = Mnemonic(iota) // invalid
	INST_LUI                      // lui
	INST_AUIPC                    // auipc
	INST_JAL                      // jal
	INST_JALR                     // jalr
	INST_BEQ                      // beq
	INST_BNE                      // bne
	INST_BLT                      // blt
	INST_BGE                      // bge
	INST_BLTU                     // bltu
	INST_BGEU                     // bgeu
	INST_LB                       // lb
	INST_LH                       // lh
	INST_LW                       // lw
	INST_LBU                      // lbu
	INST_LHU                      // lhu
	INST_SB                       // sb
	INST_SH                       // sh
	INST_SW                       // sw
	INST_ADDI                     // addi
	INST_SLTI                     // slti
	INST_SLTIU                    // sltiu
	INST_XORI                     // xori
	INST_ORI                      // ori
	INST_ANDI                     // andi
	INST_SLLI                     // slli
	INST_SRLI                     // srli
	INST_SRAI                     // srai
	INST_ADD                      // add
	INST_SUB                      // sub
	INST_SLL                      // sll
	INST_SLT                      // slt
	INST_SLTU                     // sltu
	INST_XOR                      // xor
	INST_SRL                      // srl
	INST_SRA                      // sra
	INST_OR                       // or
	INST_AND                      // and
	INST_MUL                      // mul
	INST_MULH                     // mulh
	INST_MULHSU                   // mulhsu
	INST_MULHU                    // mulhu
	INST_DIV                      // div
	INST_DIVU                     // divu
	INST_REM                      // rem
	INST_REMU                     // remu
	INST_FENCE                    // fence
	INST_ECALL                    // ecall
	INST_EBREAK                   // ebreak
	INST_COUNT                    // -
)

// encoding is the fixed part of an instruction word.
type encoding struct {
	format CodeFormat
	class  CodeClass
	funct3 uint32
	funct7 uint32
}

var _encoding = [INST_COUNT]encoding{
	INST_LUI:    {FORMAT_U, OP_LUI, 0, 0},
	INST_AUIPC:  {FORMAT_U, OP_AUIPC, 0, 0},
	INST_JAL:    {FORMAT_J, OP_JAL, 0, 0},
	INST_JALR:   {FORMAT_I, OP_JALR, 0, 0},
	INST_BEQ:    {FORMAT_B, OP_BRANCH, 0, 0},
	INST_BNE:    {FORMAT_B, OP_BRANCH, 1, 0},
	INST_BLT:    {FORMAT_B, OP_BRANCH, 4, 0},
	INST_BGE:    {FORMAT_B, OP_BRANCH, 5, 0},
	INST_BLTU:   {FORMAT_B, OP_BRANCH, 6, 0},
	INST_BGEU:   {FORMAT_B, OP_BRANCH, 7, 0},
	INST_LB:     {FORMAT_I, OP_LOAD, 0, 0},
	INST_LH:     {FORMAT_I, OP_LOAD, 1, 0},
	INST_LW:     {FORMAT_I, OP_LOAD, 2, 0},
	INST_LBU:    {FORMAT_I, OP_LOAD, 4, 0},
	INST_LHU:    {FORMAT_I, OP_LOAD, 5, 0},
	INST_SB:     {FORMAT_S, OP_STORE, 0, 0},
	INST_SH:     {FORMAT_S, OP_STORE, 1, 0},
	INST_SW:     {FORMAT_S, OP_STORE, 2, 0},
	INST_ADDI:   {FORMAT_I, OP_IMM, 0, 0},
	INST_SLTI:   {FORMAT_I, OP_IMM, 2, 0},
	INST_SLTIU:  {FORMAT_I, OP_IMM, 3, 0},
	INST_XORI:   {FORMAT_I, OP_IMM, 4, 0},
	INST_ORI:    {FORMAT_I, OP_IMM, 6, 0},
	INST_ANDI:   {FORMAT_I, OP_IMM, 7, 0},
	INST_SLLI:   {FORMAT_I, OP_IMM, 1, 0x00},
	INST_SRLI:   {FORMAT_I, OP_IMM, 5, 0x00},
	INST_SRAI:   {FORMAT_I, OP_IMM, 5, 0x20},
	INST_ADD:    {FORMAT_R, OP_REG, 0, 0x00},
	INST_SUB:    {FORMAT_R, OP_REG, 0, 0x20},
	INST_SLL:    {FORMAT_R, OP_REG, 1, 0x00},
	INST_SLT:    {FORMAT_R, OP_REG, 2, 0x00},
	INST_SLTU:   {FORMAT_R, OP_REG, 3, 0x00},
	INST_XOR:    {FORMAT_R, OP_REG, 4, 0x00},
	INST_SRL:    {FORMAT_R, OP_REG, 5, 0x00},
	INST_SRA:    {FORMAT_R, OP_REG, 5, 0x20},
	INST_OR:     {FORMAT_R, OP_REG, 6, 0x00},
	INST_AND:    {FORMAT_R, OP_REG, 7, 0x00},
	INST_MUL:    {FORMAT_R, OP_REG, 0, 0x01},
	INST_MULH:   {FORMAT_R, OP_REG, 1, 0x01},
	INST_MULHSU: {FORMAT_R, OP_REG, 2, 0x01},
	INST_MULHU:  {FORMAT_R, OP_REG, 3, 0x01},
	INST_DIV:    {FORMAT_R, OP_REG, 4, 0x01},
	INST_DIVU:   {FORMAT_R, OP_REG, 5, 0x01},
	INST_REM:    {FORMAT_R, OP_REG, 6, 0x01},
	INST_REMU:   {FORMAT_R, OP_REG, 7, 0x01},
	INST_FENCE:  {FORMAT_I, OP_MISC_MEM, 0, 0},
	INST_ECALL:  {FORMAT_I, OP_SYSTEM, 0, 0},
	INST_EBREAK: {FORMAT_I, OP_SYSTEM, 0, 0},
}

// Format returns the operand layout of the mnemonic.
func (mn Mnemonic) Format() CodeFormat {
	if mn <= INST_INVALID || mn >= INST_COUNT {
		return FORMAT_R
	}
	return _encoding[mn].format
}

// IsShift returns true for the shift-immediate mnemonics.
func (mn Mnemonic) IsShift() bool {
	return mn == INST_SLLI || mn == INST_SRLI || mn == INST_SRAI
}

// Width returns the memory access width of a load or store.
func (mn Mnemonic) Width() (width io.Width, ok bool) {
	switch mn {
	case INST_LB, INST_LBU, INST_SB:
		return io.WIDTH_BYTE, true
	case INST_LH, INST_LHU, INST_SH:
		return io.WIDTH_HALF, true
	case INST_LW, INST_SW:
		return io.WIDTH_WORD, true
	}
	return
}

// Code is a single 32-bit instruction word.
type Code uint32

// Class returns the opcode group.
func (code Code) Class() CodeClass {
	return CodeClass(code & 0x7f)
}

// Rd returns the destination register index.
func (code Code) Rd() int {
	return int((code >> 7) & 0x1f)
}

// Funct3 returns the 3-bit function select field.
func (code Code) Funct3() uint32 {
	return uint32((code >> 12) & 0x7)
}

// Rs1 returns the first source register index.
func (code Code) Rs1() int {
	return int((code >> 15) & 0x1f)
}

// Rs2 returns the second source register index.
func (code Code) Rs2() int {
	return int((code >> 20) & 0x1f)
}

// Shamt returns the shift amount of a shift-immediate instruction.
func (code Code) Shamt() uint32 {
	return uint32((code >> 20) & 0x1f)
}

// Funct7 returns the 7-bit function select field.
func (code Code) Funct7() uint32 {
	return uint32((code >> 25) & 0x7f)
}

// ImmI returns the sign extended I-type immediate.
func (code Code) ImmI() uint32 {
	return uint32(int32(code) >> 20)
}

// ImmS returns the sign extended S-type immediate.
func (code Code) ImmS() uint32 {
	return uint32(int32(code&0xfe00_0000)>>20) |
		uint32((code>>7)&0x1f)
}

// ImmB returns the sign extended B-type immediate. Bit 0 is always clear.
func (code Code) ImmB() uint32 {
	return uint32(int32(code&0x8000_0000)>>19) |
		uint32((code<<4)&0x800) |
		uint32((code>>20)&0x7e0) |
		uint32((code>>7)&0x1e)
}

// ImmU returns the U-type immediate, already shifted into the upper 20 bits.
func (code Code) ImmU() uint32 {
	return uint32(code & 0xffff_f000)
}

// ImmJ returns the sign extended J-type immediate. Bit 0 is always clear.
func (code Code) ImmJ() uint32 {
	return uint32(int32(code&0x8000_0000)>>11) |
		uint32(code&0xf_f000) |
		uint32((code>>9)&0x800) |
		uint32((code>>20)&0x7fe)
}

// Instruction is a decoded instruction word.
type Instruction struct {
	Code     Code
	Mnemonic Mnemonic
	Rd       int
	Rs1      int
	Rs2      int
	Imm      uint32 // Sign extended immediate, or shift amount.
}

// Decode classifies the instruction word and extracts its operands.
// Decode never fails; unrecognized encodings yield INST_INVALID.
func (code Code) Decode() (inst Instruction) {
	inst = Instruction{
		Code:     code,
		Mnemonic: code.mnemonic(),
	}

	switch inst.Mnemonic.Format() {
	case FORMAT_R:
		inst.Rd, inst.Rs1, inst.Rs2 = code.Rd(), code.Rs1(), code.Rs2()
	case FORMAT_I:
		inst.Rd, inst.Rs1 = code.Rd(), code.Rs1()
		if inst.Mnemonic.IsShift() {
			inst.Imm = code.Shamt()
		} else {
			inst.Imm = code.ImmI()
		}
	case FORMAT_S:
		inst.Rs1, inst.Rs2 = code.Rs1(), code.Rs2()
		inst.Imm = code.ImmS()
	case FORMAT_B:
		inst.Rs1, inst.Rs2 = code.Rs1(), code.Rs2()
		inst.Imm = code.ImmB()
	case FORMAT_U:
		inst.Rd = code.Rd()
		inst.Imm = code.ImmU()
	case FORMAT_J:
		inst.Rd = code.Rd()
		inst.Imm = code.ImmJ()
	}

	if inst.Mnemonic == INST_INVALID {
		inst = Instruction{Code: code}
	}

	return
}

// mnemonic selects the instruction from the opcode group and function fields.
func (code Code) mnemonic() Mnemonic {
	funct3 := code.Funct3()
	funct7 := code.Funct7()

	switch code.Class() {
	case OP_LUI:
		return INST_LUI
	case OP_AUIPC:
		return INST_AUIPC
	case OP_JAL:
		return INST_JAL
	case OP_JALR:
		if funct3 == 0 {
			return INST_JALR
		}
	case OP_BRANCH:
		switch funct3 {
		case 0:
			return INST_BEQ
		case 1:
			return INST_BNE
		case 4:
			return INST_BLT
		case 5:
			return INST_BGE
		case 6:
			return INST_BLTU
		case 7:
			return INST_BGEU
		}
	case OP_LOAD:
		switch funct3 {
		case 0:
			return INST_LB
		case 1:
			return INST_LH
		case 2:
			return INST_LW
		case 4:
			return INST_LBU
		case 5:
			return INST_LHU
		}
	case OP_STORE:
		switch funct3 {
		case 0:
			return INST_SB
		case 1:
			return INST_SH
		case 2:
			return INST_SW
		}
	case OP_IMM:
		switch funct3 {
		case 0:
			return INST_ADDI
		case 2:
			return INST_SLTI
		case 3:
			return INST_SLTIU
		case 4:
			return INST_XORI
		case 6:
			return INST_ORI
		case 7:
			return INST_ANDI
		case 1:
			if funct7 == 0x00 {
				return INST_SLLI
			}
		case 5:
			switch funct7 {
			case 0x00:
				return INST_SRLI
			case 0x20:
				return INST_SRAI
			}
		}
	case OP_REG:
		return regMnemonic[regKey(funct3, funct7)]
	case OP_MISC_MEM:
		return INST_FENCE
	case OP_SYSTEM:
		switch code {
		case 0x0000_0073:
			return INST_ECALL
		case 0x0010_0073:
			return INST_EBREAK
		}
	}

	return INST_INVALID
}

func regKey(funct3, funct7 uint32) uint32 {
	return funct7<<3 | funct3
}

// regMnemonic maps the funct7:funct3 pair of OP_REG encodings.
var regMnemonic = map[uint32]Mnemonic{}

func init() {
	for mn := INST_INVALID + 1; mn < INST_COUNT; mn++ {
		enc := _encoding[mn]
		if enc.class == OP_REG {
			regMnemonic[regKey(enc.funct3, enc.funct7)] = mn
		}
	}
}

// MakeCode encodes an instruction. Unused operands are ignored.
// For shift-immediates imm is the shift amount.
// Immediates are truncated to the width of their field.
func MakeCode(mn Mnemonic, rd, rs1, rs2 int, imm uint32) Code {
	switch mn {
	case INST_ECALL:
		return Code(0x0000_0073)
	case INST_EBREAK:
		return Code(0x0010_0073)
	}

	if mn <= INST_INVALID || mn >= INST_COUNT {
		return Code(0)
	}

	enc := _encoding[mn]

	word := uint32(enc.class) | (enc.funct3 << 12)
	rd_bits := (uint32(rd) & 0x1f) << 7
	rs1_bits := (uint32(rs1) & 0x1f) << 15
	rs2_bits := (uint32(rs2) & 0x1f) << 20

	switch enc.format {
	case FORMAT_R:
		word |= rd_bits | rs1_bits | rs2_bits | (enc.funct7 << 25)
	case FORMAT_I:
		if mn.IsShift() {
			imm = (imm & 0x1f) | (enc.funct7 << 5)
		}
		word |= rd_bits | rs1_bits | (imm&0xfff)<<20
	case FORMAT_S:
		word |= rs1_bits | rs2_bits | (imm&0x1f)<<7 | ((imm>>5)&0x7f)<<25
	case FORMAT_B:
		word |= rs1_bits | rs2_bits |
			((imm>>11)&1)<<7 |
			((imm>>1)&0xf)<<8 |
			((imm>>5)&0x3f)<<25 |
			((imm>>12)&1)<<31
	case FORMAT_U:
		word |= rd_bits | (imm & 0xffff_f000)
	case FORMAT_J:
		word |= rd_bits |
			((imm>>12)&0xff)<<12 |
			((imm>>11)&1)<<20 |
			((imm>>1)&0x3ff)<<21 |
			((imm>>20)&1)<<31
	}

	return Code(word)
}

// registerName holds the ABI names of the integer registers.
var registerName = [32]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

// RegisterName returns the ABI name of a register index.
func RegisterName(reg int) string {
	return registerName[reg&0x1f]
}

// String returns the assembly language representation of this instruction.
func (inst Instruction) String() (out string) {
	mn := inst.Mnemonic
	rd := RegisterName(inst.Rd)
	rs1 := RegisterName(inst.Rs1)
	rs2 := RegisterName(inst.Rs2)
	imm := int32(inst.Imm)

	switch {
	case mn == INST_INVALID:
		out = fmt.Sprintf(".word 0x%08x", uint32(inst.Code))
	case mn == INST_ECALL || mn == INST_EBREAK || mn == INST_FENCE:
		out = mn.String()
	case mn == INST_LUI || mn == INST_AUIPC:
		out = fmt.Sprintf("%v %v, 0x%x", mn, rd, inst.Imm>>12)
	case mn == INST_JAL:
		out = fmt.Sprintf("%v %v, %d", mn, rd, imm)
	case mn == INST_JALR:
		out = fmt.Sprintf("%v %v, %d(%v)", mn, rd, imm, rs1)
	case mn.Format() == FORMAT_B:
		out = fmt.Sprintf("%v %v, %v, %d", mn, rs1, rs2, imm)
	case mn.Format() == FORMAT_S:
		out = fmt.Sprintf("%v %v, %d(%v)", mn, rs2, imm, rs1)
	case mn >= INST_LB && mn <= INST_LHU:
		out = fmt.Sprintf("%v %v, %d(%v)", mn, rd, imm, rs1)
	case mn.Format() == FORMAT_I:
		out = fmt.Sprintf("%v %v, %v, %d", mn, rd, rs1, imm)
	default:
		out = fmt.Sprintf("%v %v, %v, %v", mn, rd, rs1, rs2)
	}

	return
}

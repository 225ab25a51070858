package cpu

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	mio "github.com/ezrec/minirisc/io"
)

func assemble(t *testing.T, program ...string) (prog *Program, asm *Assembler) {
	asm = &Assembler{}

	prog, err := asm.Parse(strings.NewReader(strings.Join(program, "\n")))
	if err != nil {
		t.Fatal(err)
	}

	return
}

func allCodes(prog *Program) (codes []Code) {
	for _, code := range prog.Codes() {
		codes = append(codes, code)
	}
	return
}

func TestAssembler(t *testing.T) {
	assert := assert.New(t)

	asm := &Assembler{}

	prog, err := asm.Parse(strings.NewReader(""))
	assert.NoError(err)
	assert.Equal(0, len(prog.Opcodes))
	assert.Equal(mio.MEMORY_BASE, prog.Origin)

	assert.Equal("0", asm.Equate["LINENO"])
	assert.Equal(fmt.Sprintf("%#x", mio.MEMORY_BASE), asm.Equate["MEMORY_BASE"])
	assert.Equal(fmt.Sprintf("%#x", mio.MEMORY_SIZE), asm.Equate["MEMORY_SIZE"])
	assert.Equal(fmt.Sprintf("%#x", mio.CONSOLE_BASE), asm.Equate["CONSOLE_BASE"])
	assert.Equal("0", asm.Equate["CONSOLE_CHAR"])
	assert.Equal("4", asm.Equate["CONSOLE_DEC"])
	assert.Equal("8", asm.Equate["CONSOLE_HEX"])
}

func TestAssemblerPredefine(t *testing.T) {
	assert := assert.New(t)

	asm := &Assembler{}
	asm.Predefine("MEMORY_BASE", "0x1000")
	asm.Predefine("ANSWER", "42")

	prog, err := asm.Parse(strings.NewReader("addi a0, zero, ANSWER"))
	assert.NoError(err)
	assert.Equal(uint32(0x1000), prog.Origin)
	assert.Equal(uint32(0x1000), prog.Opcodes[0].Addr)
	assert.Equal([]Code{MakeCode(INST_ADDI, 10, 0, 0, 42)}, allCodes(prog))
}

func TestAssemblerInstructions(t *testing.T) {
	table := [](struct {
		line  string
		codes []Code
	}){
		{"addi x1, x0, 5", []Code{0x0050_0093}},
		{"addi ra, zero, -1", []Code{0xfff0_0093}},
		{"add a0, a1, a2", []Code{MakeCode(INST_ADD, 10, 11, 12, 0)}},
		{"sub s2, s3, s4", []Code{MakeCode(INST_SUB, 18, 19, 20, 0)}},
		{"mul a0, a1, a2", []Code{MakeCode(INST_MUL, 10, 11, 12, 0)}},
		{"remu t6, t5, t4", []Code{MakeCode(INST_REMU, 31, 30, 29, 0)}},
		{"lw t0, 8(sp)", []Code{MakeCode(INST_LW, 5, 2, 0, 8)}},
		{"lbu a0, (a1)", []Code{MakeCode(INST_LBU, 10, 11, 0, 0)}},
		{"sw t0, -4(s0)", []Code{MakeCode(INST_SW, 0, 8, 5, 0xffff_fffc)}},
		{"sh t0, 2(fp)", []Code{MakeCode(INST_SH, 0, 8, 5, 2)}},
		{"sb a0, CONSOLE_CHAR(t0)", []Code{MakeCode(INST_SB, 0, 5, 10, 0)}},
		{"slli a0, a0, 3", []Code{MakeCode(INST_SLLI, 10, 10, 0, 3)}},
		{"srai a0, a0, 31", []Code{0x41f5_5513}},
		{"lui a0, 0x10000", []Code{MakeCode(INST_LUI, 10, 0, 0, 0x1000_0000)}},
		{"auipc gp, 1", []Code{MakeCode(INST_AUIPC, 3, 0, 0, 0x1000)}},
		{"jal ra, 8", []Code{MakeCode(INST_JAL, 1, 0, 0, 8)}},
		{"jal -4", []Code{MakeCode(INST_JAL, 1, 0, 0, 0xffff_fffc)}},
		{"jalr t0", []Code{MakeCode(INST_JALR, 1, 5, 0, 0)}},
		{"jalr zero, 4(t1)", []Code{MakeCode(INST_JALR, 0, 6, 0, 4)}},
		{"jalr a0, a1, -8", []Code{MakeCode(INST_JALR, 10, 11, 0, 0xffff_fff8)}},
		{"beq a0, a1, 16", []Code{MakeCode(INST_BEQ, 0, 10, 11, 16)}},
		{"bgeu a0, a1, -16", []Code{MakeCode(INST_BGEU, 0, 10, 11, 0xffff_fff0)}},
		{"fence", []Code{MakeCode(INST_FENCE, 0, 0, 0, 0x0ff)}},
		{"ecall", []Code{0x0000_0073}},
		{"ebreak", []Code{0x0010_0073}},
		{"nop", []Code{0x0000_0013}},
		{"halt", []Code{0x0000_0073}},
		{"mv a0, a1", []Code{MakeCode(INST_ADDI, 10, 11, 0, 0)}},
		{"not a0, a1", []Code{MakeCode(INST_XORI, 10, 11, 0, 0xffff_ffff)}},
		{"neg a0, a1", []Code{MakeCode(INST_SUB, 10, 0, 11, 0)}},
		{"seqz a0, a1", []Code{MakeCode(INST_SLTIU, 10, 11, 0, 1)}},
		{"snez a0, a1", []Code{MakeCode(INST_SLTU, 10, 0, 11, 0)}},
		{"jr t0", []Code{MakeCode(INST_JALR, 0, 5, 0, 0)}},
		{"ret", []Code{0x0000_8067}},
		{"beqz a0, 8", []Code{MakeCode(INST_BEQ, 0, 10, 0, 8)}},
		{"bnez a0, 8", []Code{MakeCode(INST_BNE, 0, 10, 0, 8)}},
		{"bgt a0, a1, 8", []Code{MakeCode(INST_BLT, 0, 11, 10, 8)}},
		{"bleu a0, a1, 8", []Code{MakeCode(INST_BGEU, 0, 11, 10, 8)}},
		{"li a0, 5", []Code{MakeCode(INST_ADDI, 10, 0, 0, 5)}},
		{"li a0, -1", []Code{MakeCode(INST_ADDI, 10, 0, 0, 0xffff_ffff)}},
		{"li a0, 0x10000000", []Code{MakeCode(INST_LUI, 10, 0, 0, 0x1000_0000)}},
		{"li a0, 0x12345fff", []Code{
			MakeCode(INST_LUI, 10, 0, 0, 0x1234_6000),
			MakeCode(INST_ADDI, 10, 10, 0, 0xffff_ffff),
		}},
		{"li a0, ~0", []Code{MakeCode(INST_ADDI, 10, 0, 0, 0xffff_ffff)}},
		{"addi a0, zero, 'A'", []Code{MakeCode(INST_ADDI, 10, 0, 0, 65)}},
		{"addi a0, zero, '\\n'", []Code{MakeCode(INST_ADDI, 10, 0, 0, 10)}},
		{"addi a0, zero, $(3 * 4)", []Code{MakeCode(INST_ADDI, 10, 0, 0, 12)}},
		{"addi a0, zero, 1 ; comment", []Code{MakeCode(INST_ADDI, 10, 0, 0, 1)}},
		{"addi a0, zero, 2 # comment", []Code{MakeCode(INST_ADDI, 10, 0, 0, 2)}},
	}

	for _, entry := range table {
		t.Run(entry.line, func(t *testing.T) {
			prog, _ := assemble(t, entry.line)
			assert.Equal(t, entry.codes, allCodes(prog))
		})
	}
}

func TestAssemblerErrors(t *testing.T) {
	table := [](struct {
		program []string
		err     error
	}){
		{[]string{"frob a0"}, ErrInstructionInvalid},
		{[]string{"addi a0, q9, 1"}, ErrRegisterInvalid},
		{[]string{"addi a0, a0"}, ErrOpcodeMissing},
		{[]string{"addi a0, a0, 1, 2"}, ErrOpcodeExtraArgs},
		{[]string{"addi a0, a0, 2048"}, ErrImmediateRange},
		{[]string{"addi a0, a0, -2049"}, ErrImmediateRange},
		{[]string{"slli a0, a0, 32"}, ErrImmediateRange},
		{[]string{"lui a0, 0x100000"}, ErrImmediateRange},
		{[]string{"lw a0, 4096(sp)"}, ErrImmediateRange},
		{[]string{"lw a0, sp"}, ErrRegisterInvalid},
		{[]string{"beq a0, a1, 3"}, ErrTargetRange},
		{[]string{"beq a0, a1, 4096"}, ErrTargetRange},
		{[]string{"jal ra, 0x100000"}, ErrTargetRange},
		{[]string{"ret ra"}, ErrOpcodeExtraArgs},
		{[]string{"a:", "a:"}, ErrLabelDuplicate},
		{[]string{".equ A 1", ".equ A 2"}, ErrEquateDuplicate},
		{[]string{".equ A"}, ErrEquateSyntax},
		{[]string{".macro"}, ErrMacroSyntax},
		{[]string{".macro m", ".macro n"}, ErrMacroNesting},
		{[]string{".macro m", ".endm", ".macro m", ".endm"}, ErrMacroDuplicate},
		{[]string{".macro m"}, ErrMacroLonely},
		{[]string{".endm"}, ErrMacroLonelyEndm},
		{[]string{".macro m a", ".endm", "m"}, ErrMacroSyntax},
		{[]string{".align 13"}, ErrAlignInvalid},
		{[]string{".frob 1"}, ErrInstructionInvalid},
		{[]string{".byte z"}, ErrParseNumber("z")},
		{[]string{"j nowhere"}, ErrLabelMissing("nowhere")},
	}

	for _, entry := range table {
		t.Run(strings.Join(entry.program, "|"), func(t *testing.T) {
			assert := assert.New(t)

			asm := &Assembler{}
			_, err := asm.Parse(strings.NewReader(strings.Join(entry.program, "\n")))
			assert.ErrorIs(err, entry.err)

			var syntax ErrSyntax
			assert.True(errors.As(err, &syntax))
		})
	}
}

func TestAssemblerErrorLine(t *testing.T) {
	assert := assert.New(t)

	program := []string{
		"nop",
		"nop",
		"beq a0, a1, far",
	}

	asm := &Assembler{}
	_, err := asm.Parse(strings.NewReader(strings.Join(program, "\n")))
	assert.ErrorIs(err, ErrLabelMissing("far"))

	var syntax ErrSyntax
	assert.True(errors.As(err, &syntax))
	assert.Equal(3, syntax.LineNo)
}

func TestAssemblerLabels(t *testing.T) {
	assert := assert.New(t)

	prog, asm := assemble(t,
		"start:",
		"    li t0, 3        ; 0x00",
		"loop:",
		"    addi t0, t0, -1 ; 0x04",
		"    bnez t0, loop   ; 0x08",
		"    j done          ; 0x0c",
		"    nop             ; 0x10",
		"done: call func     ; 0x14",
		"    ebreak          ; 0x18",
		"func:",
		"    ret             ; 0x1c",
	)

	assert.Equal(uint32(0x8000_0000), asm.Label["start"])
	assert.Equal(uint32(0x8000_0004), asm.Label["loop"])
	assert.Equal(uint32(0x8000_0014), asm.Label["done"])
	assert.Equal(uint32(0x8000_001c), asm.Label["func"])

	assert.Equal([]Code{
		MakeCode(INST_ADDI, 5, 0, 0, 3),
		MakeCode(INST_ADDI, 5, 5, 0, 0xffff_ffff),
		MakeCode(INST_BNE, 0, 5, 0, 0xffff_fffc),
		MakeCode(INST_JAL, 0, 0, 0, 8),
		MakeCode(INST_ADDI, 0, 0, 0, 0),
		MakeCode(INST_JAL, 1, 0, 0, 8),
		MakeCode(INST_EBREAK, 0, 0, 0, 0),
		MakeCode(INST_JALR, 0, 1, 0, 0),
	}, allCodes(prog))

	dbg := prog.Debug(0x8000_0008)
	assert.Equal(5, dbg.LineNo)
	assert.Equal([]string{"bnez", "t0", "loop"}, dbg.Words)
}

func TestAssemblerAddresses(t *testing.T) {
	assert := assert.New(t)

	prog, _ := assemble(t,
		"    la a0, msg   ; 0x00",
		"    li a1, msg   ; 0x08",
		"    ecall        ; 0x10",
		"msg: .string \"hi\" ; 0x14",
		"ptr: .word msg   ; 0x17",
	)

	assert.Equal([]Code{
		MakeCode(INST_AUIPC, 10, 0, 0, 0),
		MakeCode(INST_ADDI, 10, 10, 0, 0x14),
		MakeCode(INST_LUI, 11, 0, 0, 0x8000_0000),
		MakeCode(INST_ADDI, 11, 11, 0, 0x14),
		MakeCode(INST_ECALL, 0, 0, 0, 0),
	}, allCodes(prog))

	bin := prog.Binary()
	assert.Equal(27, len(bin))
	assert.Equal([]byte{'h', 'i', 0}, bin[0x14:0x17])
	assert.Equal([]byte{0x14, 0x00, 0x00, 0x80}, bin[0x17:0x1b])
}

func TestAssemblerPcRelativeCarry(t *testing.T) {
	assert := assert.New(t)

	// A target offset with bit 11 set needs the upper part rounded up.
	prog, _ := assemble(t,
		"    la a0, data",
		"    .space 0x7f8",
		"data: .word 0",
	)

	// data is at 0x800 from the auipc.
	codes := allCodes(prog)
	assert.Equal(MakeCode(INST_AUIPC, 10, 0, 0, 0x1000), codes[0])
	assert.Equal(MakeCode(INST_ADDI, 10, 10, 0, 0xffff_f800), codes[1])
}

func TestAssemblerData(t *testing.T) {
	assert := assert.New(t)

	prog, _ := assemble(t,
		".byte 1, 0xff, -1",
		".align 2",
		".half 0x1234",
		".word 0xdeadbeef",
		".ascii \"a;b\"",
		".space 3",
		".string \"\"",
		".align 3",
		"nop",
	)

	assert.Equal([]byte{
		// .byte, .align 2
		0x01, 0xff, 0xff, 0x00,
		// .half
		0x34, 0x12,
		// .word
		0xef, 0xbe, 0xad, 0xde,
		// .ascii
		'a', ';', 'b',
		// .space
		0x00, 0x00, 0x00,
		// .string
		0x00,
		// .align 3
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		// nop
		0x13, 0x00, 0x00, 0x00,
	}, prog.Binary())

	nop := prog.Opcodes[len(prog.Opcodes)-1]
	assert.Equal(uint32(0x8000_0018), nop.Addr)
}

func TestAssemblerEquate(t *testing.T) {
	assert := assert.New(t)

	prog, asm := assemble(t,
		".equ COUNT 10",
		".equ PTR a5",
		"li PTR, COUNT",
		"addi PTR, PTR, $(COUNT * 2)",
		"addi a0, zero, LINENO",
	)

	assert.Equal("a5", asm.Equate["PTR"])
	assert.Equal([]Code{
		MakeCode(INST_ADDI, 15, 0, 0, 10),
		MakeCode(INST_ADDI, 15, 15, 0, 20),
		MakeCode(INST_ADDI, 10, 0, 0, 5),
	}, allCodes(prog))
}

func TestAssemblerMacro(t *testing.T) {
	assert := assert.New(t)

	prog, asm := assemble(t,
		".macro putc ch",
		"    li t0, CONSOLE_BASE",
		"    li t1, ch",
		"    sw t1, CONSOLE_CHAR(t0)",
		".endm",
		"    putc 'A'",
		"    halt",
	)

	assert.Contains(asm.Macro, "putc")
	assert.Equal([]string{"ch"}, asm.Macro["putc"].Args)
	_, leaked := asm.Equate["ch"]
	assert.False(leaked)

	assert.Equal([]Code{
		MakeCode(INST_LUI, 5, 0, 0, 0x1000_0000),
		MakeCode(INST_ADDI, 6, 0, 0, 'A'),
		MakeCode(INST_SW, 0, 5, 6, 0),
		MakeCode(INST_ECALL, 0, 0, 0, 0),
	}, allCodes(prog))
}

func TestAssemblerMacroLocalLabels(t *testing.T) {
	assert := assert.New(t)

	prog, _ := assemble(t,
		".macro spin n",
		"    li t0, n",
		"@loop:",
		"    addi t0, t0, -1",
		"    bnez t0, @loop",
		".endm",
		"    spin 3",
		"    spin 4",
	)

	codes := allCodes(prog)
	assert.Equal(6, len(codes))
	assert.Equal(MakeCode(INST_BNE, 0, 5, 0, 0xffff_fffc), codes[2])
	assert.Equal(MakeCode(INST_BNE, 0, 5, 0, 0xffff_fffc), codes[5])
}

// Disassembled instructions assemble back to the same code.
func TestAssemblerDisassembly(t *testing.T) {
	for mn := INST_INVALID + 1; mn < INST_COUNT; mn++ {
		code := MakeCode(mn, 7, 12, 29, 0xffff_f7f4)
		if mn.IsShift() {
			code = MakeCode(mn, 7, 12, 29, 17)
		}
		if mn == INST_FENCE {
			code = MakeCode(mn, 0, 0, 0, 0x0ff)
		}
		inst := code.Decode()
		t.Run(inst.String(), func(t *testing.T) {
			prog, _ := assemble(t, inst.String())
			assert.Equal(t, []Code{code}, allCodes(prog))
		})
	}
}

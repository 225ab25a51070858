// Copyright 2024, Jason S. McMullan <jason.mcmullan@gmail.com>

package cpu

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	mio "github.com/ezrec/minirisc/io"
)

// Macro represents a macro definition in the assembly language.
type Macro struct {
	LineNo int      // Line number of the macro definition.
	Args   []string // Arguments for the macro.
	Lines  []string // Lines of macro text to expand.
}

// Predefined system equates
var sysEquate = map[string]string{
	"LINENO":       "0",
	"MEMORY_BASE":  fmt.Sprintf("%#x", mio.MEMORY_BASE),
	"MEMORY_SIZE":  fmt.Sprintf("%#x", mio.MEMORY_SIZE),
	"CONSOLE_BASE": fmt.Sprintf("%#x", mio.CONSOLE_BASE),
	"CONSOLE_CHAR": fmt.Sprintf("%v", mio.CONSOLE_CHAR),
	"CONSOLE_DEC":  fmt.Sprintf("%v", mio.CONSOLE_DEC),
	"CONSOLE_HEX":  fmt.Sprintf("%v", mio.CONSOLE_HEX),
}

// Assembler is a single pass macro assembler for RV32IM.
// The program origin is the value of the MEMORY_BASE equate.
type Assembler struct {
	Logger hclog.Logger // If set, logs the assembler actions.
	Opcode []Opcode     // List of generated opcodes.

	predefine map[string]string   // Predefines
	origin    uint32              // Address of the first opcode.
	Label     map[string]uint32   // Map of labels to addresses.
	Equate    map[string]string   // Map of equates.
	Macro     map[string](*Macro) // Map of macros.
}

// Predefine defines a new equate or redefines an existing equate.
func (asm *Assembler) Predefine(equ string, value string) {
	if asm.predefine == nil {
		asm.predefine = map[string]string{equ: value}
	} else {
		asm.predefine[equ] = value
	}
}

// registerMap maps register names to register indexes.
var registerMap = map[string]int{"fp": 8}

// mnemonicMap maps instruction names to mnemonics.
var mnemonicMap = map[string]Mnemonic{}

func init() {
	for n := range 32 {
		registerMap[fmt.Sprintf("x%d", n)] = n
		registerMap[RegisterName(n)] = n
	}
	for mn := INST_INVALID + 1; mn < INST_COUNT; mn++ {
		mnemonicMap[mn.String()] = mn
	}
}

var (
	reCharacter  = regexp.MustCompile(`'\\?[^']'`)
	reString     = regexp.MustCompile(`"(\\.|[^"\\])*"`)
	reExpression = regexp.MustCompile(`\$\([^\$]*\)`)
	reMemory     = regexp.MustCompile(`^([^()]*)\(([^()]+)\)$`)
)

// valueOf returns the value of a simple word.
func (asm *Assembler) valueOf(word string) (value uint32, err error) {
	if equate, ok := asm.Equate[word]; ok {
		word = equate
	}
	if len(word) == 0 {
		err = ErrParseNumber(word)
		return
	}
	invert := false
	if word[0] == '~' {
		invert = true
		word = word[1:]
	}
	v64, err := strconv.ParseInt(word, 0, 34)
	if err != nil || v64 > 0xffffffff || v64 < -int64(0x80000000) {
		err = ErrParseNumber(word)
		return
	}

	value = uint32(v64)

	if invert {
		value = ^value
	}

	return
}

// isValue returns true if the word is a number or numeric equate.
func (asm *Assembler) isValue(word string) bool {
	_, err := asm.valueOf(word)
	return err == nil
}

// register returns the register index named by word.
func (asm *Assembler) register(word string) (reg int, err error) {
	if equate, ok := asm.Equate[word]; ok {
		word = equate
	}
	reg, ok := registerMap[word]
	if !ok {
		err = ErrRegisterInvalid
	}
	return
}

// immediate returns a value that must fit a signed field of bits width.
func (asm *Assembler) immediate(word string, bits int) (value uint32, err error) {
	value, err = asm.valueOf(word)
	if err != nil {
		return
	}
	if !fitsSigned(value, bits) {
		err = ErrImmediateRange
	}
	return
}

// fitsSigned returns true if value sign extends from a field of bits width.
func fitsSigned(value uint32, bits int) bool {
	v := int64(int32(value))
	return v >= -(1<<(bits-1)) && v < (1<<(bits-1))
}

// memory parses an 'offset(register)' operand.
func (asm *Assembler) memory(word string) (offset uint32, reg int, err error) {
	match := reMemory.FindStringSubmatch(word)
	if match == nil {
		err = ErrRegisterInvalid
		return
	}
	reg, err = asm.register(match[2])
	if err != nil {
		return
	}
	if len(match[1]) != 0 {
		offset, err = asm.immediate(match[1], 12)
	}
	return
}

// splitHiLo splits a value into a lui/auipc upper part and a signed 12-bit lower part.
func splitHiLo(value uint32) (hi uint32, lo uint32) {
	hi = (value + 0x800) & 0xffff_f000
	lo = value - hi
	return
}

// parenEval does compile-time $(...) evaluations
func (asm *Assembler) parenEval(expr string) (value uint32, err error) {
	thread := starlark.Thread{}
	opts := syntax.FileOptions{}
	pred := starlark.StringDict{}
	for key := range asm.Equate {
		var value32 uint32
		value32, err = asm.valueOf(key)
		if err != nil {
			// Ignore non-integer equates. They may be registers
			// or something else.
			continue
		}
		pred[key] = starlark.MakeInt64(int64(value32))
	}
	for key, addr := range asm.Label {
		pred[key] = starlark.MakeInt64(int64(addr))
	}
	err = nil
	prog := "rc=" + expr + "\n"
	dict, err := starlark.ExecFileOptions(&opts, &thread, "expr", prog, pred)
	if err != nil {
		return
	}
	st_rc, ok := dict["rc"]
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	st_int, ok := st_rc.(starlark.Int)
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	st_int64, ok := st_int.Int64()
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	value = uint32(st_int64)
	return
}

// stripComment removes a ';' or '#' comment, ignoring quoted text.
func stripComment(text string) string {
	var quote rune
	escaped := false
	for n, ch := range text {
		switch {
		case escaped:
			escaped = false
		case quote != 0 && ch == '\\':
			escaped = true
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '"' || ch == '\'':
			quote = ch
		case ch == ';' || ch == '#':
			return text[:n]
		}
	}
	return text
}

// parseLine parses a single line as an opcode.
func (asm *Assembler) parseLine(line string, lineno int) (words []string, err error) {
	// Set line number.
	asm.Equate["LINENO"] = fmt.Sprintf("%v", lineno)

	// Do 'x' evaluations
	line = reCharacter.ReplaceAllStringFunc(line, func(word string) string {
		str := word[1 : len(word)-1]
		if str[0] == '\\' {
			str = str[1:]
			switch str {
			case "\\":
				str = "\\"
			case "n":
				str = "\n"
			case "r":
				str = "\r"
			case "t":
				str = "\t"
			case "0":
				str = "\000"
			case "e":
				str = "\033"
			default:
				return word
			}
		} else if len(str) != 1 {
			return word
		}
		return fmt.Sprintf("%v", str[0])
	})

	// Do "string" evaluations, into a list of byte values.
	line = reString.ReplaceAllStringFunc(line, func(quoted string) string {
		str, _err := strconv.Unquote(quoted)
		if _err != nil {
			err = ErrParseString(quoted)
			return quoted
		}
		values := make([]string, len(str))
		for n := range len(str) {
			values[n] = fmt.Sprintf("%v", str[n])
		}
		return strings.Join(values, " ")
	})
	if err != nil {
		return
	}

	// Do $() evaluations
	line = reExpression.ReplaceAllStringFunc(line, func(str string) string {
		value, _err := asm.parenEval(str[2 : len(str)-1])
		if _err != nil {
			err = _err
		}
		return fmt.Sprintf("%#v", value)
	})
	if err != nil {
		return
	}

	words = strings.Fields(strings.ReplaceAll(line, ",", " "))

	if len(words) == 0 {
		return
	}

	// .equ CONST VALUE
	if words[0] == ".equ" {
		if len(words) != 3 {
			err = ErrEquateSyntax
			return
		}
		_, ok := asm.Equate[words[1]]
		if ok {
			err = ErrEquateDuplicate
			return
		}
		asm.Equate[words[1]] = words[2]
		words = words[:0]
		return
	}

	for n, word := range words {
		// Check for equate next
		equate, ok := asm.Equate[word]
		if ok {
			words[n] = equate
		}
	}

	for strings.HasSuffix(words[0], ":") {
		label := words[0][:len(words[0])-1]
		_, ok := asm.Label[label]
		if ok {
			err = ErrLabelDuplicate
			return
		}

		if asm.Label == nil {
			asm.Label = make(map[string]uint32, 16)
		}
		asm.Label[label] = asm.currentAddr()
		words = words[1:]
		if len(words) == 0 {
			return
		}
	}

	// .macro processing
	macro, ok := asm.Macro[words[0]]
	if ok {
		name := words[0]

		args := words[1:]
		if len(args) != len(macro.Args) {
			err = ErrMacroSyntax
			return
		}
		// Turn args into equs
		old_equate := maps.Clone(asm.Equate)
		for n, arg := range macro.Args {
			asm.Equate[arg] = words[1+n]
		}
		defer func() { asm.Equate = old_equate }()

		// Local labels are unique to each expansion.
		local := fmt.Sprintf("%v_%v_", name, lineno)

		for n, line := range macro.Lines {
			lineno := macro.LineNo + n

			line = strings.ReplaceAll(line, "@", local)
			words, err = asm.parseLine(line, lineno)
			if err != nil {
				err = ErrMacro{Macro: name, Line: lineno, Err: err}
				err = ErrSyntax{LineNo: lineno, Line: line, Err: err}
				return
			}

			err = asm.parseWords(words, lineno)
			if err != nil {
				err = ErrMacro{Macro: name, Line: lineno, Err: err}
				err = ErrSyntax{LineNo: lineno, Line: line, Err: err}
				return
			}
		}

		words = nil
		return
	}

	return
}

// currentAddr gets the address of the next opcode.
func (asm *Assembler) currentAddr() uint32 {
	if len(asm.Opcode) == 0 {
		return asm.origin
	}

	last := &asm.Opcode[len(asm.Opcode)-1]

	return last.Addr + last.Size()
}

// logger returns the assembler logger, or a null logger.
func (asm *Assembler) logger() hclog.Logger {
	if asm.Logger == nil {
		return hclog.NewNullLogger()
	}
	return asm.Logger
}

// Parse parses an input stream into a Program containing opcodes.
func (asm *Assembler) Parse(input io.Reader) (prog *Program, err error) {
	scanner := bufio.NewScanner(input)
	logger := asm.logger()

	var line string
	var lineno int
	var macro *Macro

	defer func() {
		if err != nil {
			err = ErrSyntax{LineNo: lineno, Line: line, Err: err}
		}
	}()

	clear(asm.Label)
	asm.Opcode = asm.Opcode[:0]
	if asm.Macro == nil {
		asm.Macro = make(map[string](*Macro))
	}
	clear(asm.Macro)
	asm.Equate = maps.Clone(sysEquate)
	for attr, val := range asm.predefine {
		asm.Equate[attr] = val
	}

	asm.origin, err = asm.valueOf("MEMORY_BASE")
	if err != nil {
		return
	}

	for scanner.Scan() {
		text := scanner.Text()
		lineno += 1

		logger.Trace("parse", "line", lineno, "text", text)

		line = strings.TrimSpace(stripComment(text))
		words := strings.Fields(line)

		// .macro NAME arg...
		if len(words) > 0 && words[0] == ".macro" {
			if macro != nil {
				err = ErrMacroNesting
				return
			}
			if len(words) < 2 {
				err = ErrMacroSyntax
				return
			}
			_, ok := asm.Macro[words[1]]
			if ok {
				err = ErrMacroDuplicate
				return
			}
			macro = &Macro{
				LineNo: lineno + 1,
			}
			if len(words) > 2 {
				macro.Args = strings.Fields(strings.ReplaceAll(strings.Join(words[2:], " "), ",", " "))
			}
			asm.Macro[words[1]] = macro
			continue
		}

		if len(words) > 0 && words[0] == ".endm" {
			if macro == nil {
				err = ErrMacroLonelyEndm
				return
			}
			macro = nil
			continue
		}

		if macro != nil {
			macro.Lines = append(macro.Lines, line)
			continue
		}

		words, err = asm.parseLine(line, lineno)
		if err != nil {
			return
		}

		err = asm.parseWords(words, lineno)
		if err != nil {
			return
		}
	}

	err = scanner.Err()
	if err != nil {
		return
	}

	if macro != nil {
		err = ErrMacroLonely
		return
	}

	// Final linking of labels.
	for n := range asm.Opcode {
		op := &asm.Opcode[n]

		if op.Link == LINK_NONE {
			continue
		}

		err = asm.link(op)
		if err != nil {
			lineno = op.LineNo
			line = strings.Join(op.Words, " ")
			return
		}
	}

	prog = &Program{
		Origin:  asm.origin,
		Opcodes: slices.Clone(asm.Opcode),
	}

	logger.Debug("assembled", "opcodes", len(prog.Opcodes), "bytes", asm.currentAddr()-asm.origin)

	return
}

// link resolves the label reference of an opcode.
func (asm *Assembler) link(op *Opcode) (err error) {
	target, ok := asm.Label[op.LinkLabel]
	if !ok {
		err = ErrLabelMissing(op.LinkLabel)
		return
	}

	offset := target - op.Addr

	switch op.Link {
	case LINK_BRANCH, LINK_JUMP:
		bits := 13
		if op.Link == LINK_JUMP {
			bits = 21
		}
		if !fitsSigned(offset, bits) || offset&1 != 0 {
			err = ErrTargetRange
			return
		}
		inst := op.Codes[0].Decode()
		op.Codes[0] = MakeCode(inst.Mnemonic, inst.Rd, inst.Rs1, inst.Rs2, offset)
	case LINK_PCREL, LINK_ABS:
		value := offset
		upper := INST_AUIPC
		if op.Link == LINK_ABS {
			value = target
			upper = INST_LUI
		}
		hi, lo := splitHiLo(value)
		rd := op.Codes[0].Rd()
		op.Codes[0] = MakeCode(upper, rd, 0, 0, hi)
		op.Codes[1] = MakeCode(INST_ADDI, rd, rd, 0, lo)
	case LINK_WORD:
		binary.LittleEndian.PutUint32(op.Data, target)
	}

	return
}

// parseData evaluates a data directive.
func (asm *Assembler) parseData(directive string, args []string) (data []byte, label string, err error) {
	var values []uint32
	if directive != ".align" && directive != ".space" {
		for _, arg := range args {
			var value uint32
			value, err = asm.valueOf(arg)
			if err != nil {
				if directive == ".word" && len(args) == 1 {
					// Address of a label, resolved at link time.
					err = nil
					label = arg
					values = append(values, 0)
					continue
				}
				return
			}
			values = append(values, value)
		}
	}

	switch directive {
	case ".word":
		for _, value := range values {
			data = binary.LittleEndian.AppendUint32(data, value)
		}
	case ".half":
		for _, value := range values {
			data = binary.LittleEndian.AppendUint16(data, uint16(value))
		}
	case ".byte", ".ascii":
		for _, value := range values {
			data = append(data, byte(value))
		}
	case ".string", ".asciz":
		for _, value := range values {
			data = append(data, byte(value))
		}
		data = append(data, 0)
	case ".space":
		if len(args) != 1 {
			err = ErrOpcodeMissing
			return
		}
		var size uint32
		size, err = asm.valueOf(args[0])
		if err != nil {
			return
		}
		data = make([]byte, size)
	case ".align":
		if len(args) != 1 {
			err = ErrAlignInvalid
			return
		}
		var shift uint32
		shift, err = asm.valueOf(args[0])
		if err != nil || shift > 12 {
			err = ErrAlignInvalid
			return
		}
		align := uint32(1) << shift
		addr := asm.currentAddr()
		data = make([]byte, (align-addr%align)%align)
	default:
		err = ErrInstructionInvalid
	}

	return
}

// parseWords evaluates the words in a line of assembly text.
func (asm *Assembler) parseWords(words []string, lineno int) (err error) {
	var codes []Code
	var data []byte
	var label string
	var link LinkKind

	// no-op
	if len(words) == 0 {
		return
	}

	initial_words := words

	defer func() {
		if err != nil || (len(codes) == 0 && len(data) == 0) {
			return
		}
		opcode := Opcode{LineNo: lineno, Addr: asm.currentAddr(), Words: initial_words,
			Codes: codes, Data: data, LinkLabel: label, Link: link}
		asm.Opcode = append(asm.Opcode, opcode)
	}()

	if strings.HasPrefix(words[0], ".") {
		data, label, err = asm.parseData(words[0], words[1:])
		if len(label) != 0 {
			link = LINK_WORD
		}
		return
	}

	// target resolves a branch or jump target: a numeric offset, or a label.
	target := func(word string, kind LinkKind) (offset uint32) {
		if asm.isValue(word) {
			offset, _ = asm.valueOf(word)
			return
		}
		label = word
		link = kind
		return
	}

	args := words[1:]
	need := func(n int) bool {
		switch {
		case len(args) < n:
			err = ErrOpcodeMissing
		case len(args) > n:
			err = ErrOpcodeExtraArgs
		}
		return err == nil
	}
	reg := func(n int) (r int) {
		if err == nil {
			r, err = asm.register(args[n])
		}
		return
	}
	imm := func(n int, bits int) (v uint32) {
		if err == nil {
			v, err = asm.immediate(args[n], bits)
		}
		return
	}
	mem := func(n int) (offset uint32, r int) {
		if err == nil {
			offset, r, err = asm.memory(args[n])
		}
		return
	}

	// Pseudo instruction substitutions
	switch words[0] {
	case "nop":
		if need(0) {
			codes = append(codes, MakeCode(INST_ADDI, 0, 0, 0, 0))
		}
		return
	case "halt":
		if need(0) {
			codes = append(codes, MakeCode(INST_ECALL, 0, 0, 0, 0))
		}
		return
	case "li":
		if !need(2) {
			return
		}
		rd := reg(0)
		if err != nil {
			return
		}
		if !asm.isValue(args[1]) {
			codes = append(codes, MakeCode(INST_LUI, rd, 0, 0, 0), MakeCode(INST_ADDI, rd, rd, 0, 0))
			label = args[1]
			link = LINK_ABS
			return
		}
		value, _ := asm.valueOf(args[1])
		hi, lo := splitHiLo(value)
		switch {
		case hi == 0:
			codes = append(codes, MakeCode(INST_ADDI, rd, 0, 0, lo))
		case lo == 0:
			codes = append(codes, MakeCode(INST_LUI, rd, 0, 0, hi))
		default:
			codes = append(codes, MakeCode(INST_LUI, rd, 0, 0, hi), MakeCode(INST_ADDI, rd, rd, 0, lo))
		}
		return
	case "la":
		if !need(2) {
			return
		}
		rd := reg(0)
		if err != nil {
			return
		}
		codes = append(codes, MakeCode(INST_AUIPC, rd, 0, 0, 0), MakeCode(INST_ADDI, rd, rd, 0, 0))
		label = args[1]
		link = LINK_PCREL
		return
	case "mv":
		words = []string{"addi", "", "", "0"}
	case "not":
		words = []string{"xori", "", "", "-1"}
	case "neg":
		words = []string{"sub", "", "zero", ""}
	case "seqz":
		words = []string{"sltiu", "", "", "1"}
	case "snez":
		words = []string{"sltu", "", "zero", ""}
	case "j":
		words = append([]string{"jal", "zero"}, args...)
	case "call":
		words = append([]string{"jal", "ra"}, args...)
	case "jr":
		words = []string{"jalr", "zero", "0(" + strings.Join(args, "") + ")"}
	case "ret":
		if need(0) {
			words = []string{"jalr", "zero", "0(ra)"}
		} else {
			return
		}
	case "beqz", "bnez":
		words = append([]string{"b" + words[0][1:3]}, args...)
		if len(args) == 2 {
			words = []string{words[0], args[0], "zero", args[1]}
		}
	case "bgt", "ble", "bgtu", "bleu":
		op := map[string]string{"bgt": "blt", "ble": "bge", "bgtu": "bltu", "bleu": "bgeu"}[words[0]]
		words = append([]string{op}, args...)
		if len(args) == 3 {
			words = []string{op, args[1], args[0], args[2]}
		}
	}

	// Two-operand pseudo instructions fill in their blanks.
	if len(words) == 4 && (words[1] == "" || words[2] == "" || words[3] == "") {
		if len(args) != 2 {
			err = ErrOpcodeMissing
			return
		}
		for n, word := range words[1:] {
			if word == "" {
				words[1+n] = args[min(n, 1)]
			}
		}
	}

	mn, ok := mnemonicMap[words[0]]
	if !ok {
		err = ErrInstructionInvalid
		return
	}
	args = words[1:]

	var code Code

	switch {
	case mn == INST_ECALL || mn == INST_EBREAK:
		if need(0) {
			code = MakeCode(mn, 0, 0, 0, 0)
		}
	case mn == INST_FENCE:
		if len(args) != 0 && len(args) != 2 {
			err = ErrOpcodeMissing
			return
		}
		code = MakeCode(mn, 0, 0, 0, 0x0ff)
	case mn == INST_LUI || mn == INST_AUIPC:
		if !need(2) {
			return
		}
		rd := reg(0)
		value, _err := asm.valueOf(args[1])
		if err == nil {
			err = _err
		}
		if err == nil && value > 0xfffff {
			err = ErrImmediateRange
		}
		code = MakeCode(mn, rd, 0, 0, value<<12)
	case mn == INST_JAL:
		if len(args) == 1 {
			args = []string{"ra", args[0]}
		}
		if !need(2) {
			return
		}
		rd := reg(0)
		offset := target(args[1], LINK_JUMP)
		if link == LINK_NONE && (!fitsSigned(offset, 21) || offset&1 != 0) {
			err = ErrTargetRange
		}
		code = MakeCode(mn, rd, 0, 0, offset)
	case mn == INST_JALR:
		var rd, rs1 int
		var offset uint32
		switch len(args) {
		case 1:
			rd = registerMap["ra"]
			if strings.Contains(args[0], "(") {
				offset, rs1 = mem(0)
			} else {
				rs1 = reg(0)
			}
		case 2:
			rd = reg(0)
			offset, rs1 = mem(1)
		case 3:
			rd = reg(0)
			rs1 = reg(1)
			offset = imm(2, 12)
		default:
			err = ErrOpcodeMissing
		}
		code = MakeCode(mn, rd, rs1, 0, offset)
	case mn.Format() == FORMAT_B:
		if !need(3) {
			return
		}
		rs1 := reg(0)
		rs2 := reg(1)
		offset := target(args[2], LINK_BRANCH)
		if link == LINK_NONE && (!fitsSigned(offset, 13) || offset&1 != 0) {
			err = ErrTargetRange
		}
		code = MakeCode(mn, 0, rs1, rs2, offset)
	case mn.Format() == FORMAT_S:
		if !need(2) {
			return
		}
		rs2 := reg(0)
		offset, rs1 := mem(1)
		code = MakeCode(mn, 0, rs1, rs2, offset)
	case mn >= INST_LB && mn <= INST_LHU:
		if !need(2) {
			return
		}
		rd := reg(0)
		offset, rs1 := mem(1)
		code = MakeCode(mn, rd, rs1, 0, offset)
	case mn.IsShift():
		if !need(3) {
			return
		}
		rd := reg(0)
		rs1 := reg(1)
		shamt := imm(2, 32)
		if err == nil && shamt > 31 {
			err = ErrImmediateRange
		}
		code = MakeCode(mn, rd, rs1, 0, shamt)
	case mn.Format() == FORMAT_I:
		if !need(3) {
			return
		}
		rd := reg(0)
		rs1 := reg(1)
		value := imm(2, 12)
		code = MakeCode(mn, rd, rs1, 0, value)
	case mn.Format() == FORMAT_R:
		if !need(3) {
			return
		}
		rd := reg(0)
		rs1 := reg(1)
		rs2 := reg(2)
		code = MakeCode(mn, rd, rs1, rs2, 0)
	default:
		err = ErrInstructionInvalid
	}

	if err != nil {
		return
	}

	codes = append(codes, code)

	return
}

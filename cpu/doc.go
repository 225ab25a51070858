// Package cpu implements the processor core and assembler for the minirisc system.
//
// The processor is a single hart RV32IM core: a program counter, 32 general
// purpose 32-bit registers (x0 is hard-wired to zero), and a fetch, decode and
// execute cycle. Every instruction fetch, load and store goes through a Bus,
// normally the io.Memory address space.
//
// Instruction words decode into an Instruction with a closed Mnemonic. Any
// encoding that is not a recognized instruction decodes as INST_INVALID and
// halts the processor when executed.
//
// The assembler accepts RV32IM assembly with ABI register names, labels,
// macros, and compile-time expression evaluation, and produces a flat Program
// image.
package cpu

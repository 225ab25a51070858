// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"github.com/ezrec/minirisc/emulator"
	"github.com/ezrec/minirisc/translate"
)

var f = translate.From

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs a command line, and returns the process exit status.
func execute(args []string, stdout io.Writer, stderr io.Writer) int {
	root, err := newRootCmd(stdout, stderr)
	if err == nil {
		root.SetArgs(args)
		err = root.Execute()
	}
	if err != nil {
		fmt.Fprintf(stderr, "minirisc: %v\n", err)
		return 1
	}

	return 0
}

func newRootCmd(stdout io.Writer, stderr io.Writer) (root *cobra.Command, err error) {
	v := viper.New()
	v.SetEnvPrefix("MINIRISC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root = &cobra.Command{
		Use:   "minirisc [flags] <program>",
		Short: "RV32IM emulator",
		Long: `minirisc runs a flat RV32IM program image, loaded at the base of RAM.
Console output is written to stdout, diagnostics to stderr.
The emulator stops on ecall, ebreak, an invalid instruction or a fetch fault.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v, args[0], stdout, stderr)
		},
	}

	root.SilenceErrors = true
	root.SilenceUsage = true
	root.SetOut(stderr)
	root.SetErr(stderr)

	def := emulator.DefaultConfig()

	pflags := root.PersistentFlags()
	pflags.String("config", "", "configuration file (yaml, toml or json)")
	pflags.String("memory-base", fmt.Sprintf("%#x", def.MemoryBase), "RAM base address")
	pflags.String("memory-size", fmt.Sprintf("%#x", def.MemorySize), "RAM size in bytes")
	pflags.String("console-base", fmt.Sprintf("%#x", def.ConsoleBase), "console base address")
	pflags.String("entry", "0", "initial pc (0 selects the RAM base, so pc 0 needs a RAM base of 0)")
	pflags.String("log-level", "info", "diagnostic level (trace, debug, info, warn, error)")

	flags := root.Flags()
	flags.Bool("asm", false, "program is assembly source")
	flags.Bool("trace", false, "trace every executed instruction")
	flags.String("trace-file", "", "write the instruction trace to a rotated file")
	flags.Bool("dump", false, "dump the final machine state as YAML to stderr")

	err = errors.Join(
		bindFlags(v, pflags, "config", "memory-base", "memory-size", "console-base", "entry", "log-level"),
		bindFlags(v, flags, "asm", "trace", "trace-file", "dump"),
	)
	if err != nil {
		root = nil
		return
	}

	root.AddCommand(newAsmCmd(v, stderr))

	return
}

// bindFlags binds the named flags to configuration keys, with dashes as underscores.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, names ...string) (err error) {
	for _, name := range names {
		err = v.BindPFlag(strings.ReplaceAll(name, "-", "_"), fs.Lookup(name))
		if err != nil {
			err = fmt.Errorf("%w: %v: %w", ErrFlagBind, name, err)
			return
		}
	}

	return
}

// newEmulator builds an emulator from the layered configuration, with a
// diagnostic logger on stderr.
func newEmulator(v *viper.Viper, stderr io.Writer) (emu *emulator.Emulator, err error) {
	file := v.GetString("config")
	if len(file) != 0 {
		v.SetConfigFile(file)
		err = v.ReadInConfig()
		if err != nil {
			err = fmt.Errorf("%v: %w", file, err)
			return
		}
	}

	cfg := emulator.DefaultConfig()
	err = v.Unmarshal(&cfg)
	if err != nil {
		return
	}

	level := hclog.LevelFromString(v.GetString("log_level"))
	if level == hclog.NoLevel {
		err = fmt.Errorf("%w: %q", ErrLogLevel, v.GetString("log_level"))
		return
	}

	if v.GetBool("trace") && len(v.GetString("trace_file")) == 0 {
		level = hclog.Trace
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "minirisc",
		Output: stderr,
		Level:  level,
	})

	logger.Debug("config",
		"memory_base", fmt.Sprintf("0x%08x", cfg.MemoryBase),
		"memory_size", fmt.Sprintf("%#x", cfg.MemorySize),
		"console_base", fmt.Sprintf("0x%08x", cfg.ConsoleBase),
	)

	emu, err = emulator.NewEmulator(cfg)
	if err != nil {
		return
	}

	emu.SetLogger(logger)

	return
}

// run loads and executes a program.
// A fault that halts the program is logged, and is not an error.
func run(v *viper.Viper, path string, stdout io.Writer, stderr io.Writer) (err error) {
	emu, err := newEmulator(v, stderr)
	if err != nil {
		return
	}

	console := bufio.NewWriter(stdout)
	defer console.Flush()
	emu.Console.Output = console

	if v.GetBool("asm") {
		var inf *os.File
		inf, err = os.Open(path)
		if err != nil {
			err = fmt.Errorf("%w: %w", emulator.ErrImageNotFound, err)
			return
		}
		defer inf.Close()

		err = emu.Assemble(inf)
	} else {
		err = emu.LoadFile(path)
	}
	if err != nil {
		err = fmt.Errorf("%v: %w", path, err)
		return
	}

	trace := v.GetString("trace_file")
	if len(trace) != 0 {
		out := &lumberjack.Logger{
			Filename:   trace,
			MaxSize:    100,
			MaxBackups: 3,
		}
		defer out.Close()

		emu.Cpu.Logger = hclog.New(&hclog.LoggerOptions{
			Name:   "minirisc.cpu",
			Output: out,
			Level:  hclog.Trace,
		})
	}

	_ = emu.Run()

	if v.GetBool("dump") {
		var data []byte
		data, err = yaml.Marshal(emu.State())
		if err != nil {
			return
		}
		_, err = stderr.Write(data)
	}

	return
}

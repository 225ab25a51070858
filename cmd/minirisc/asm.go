package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ezrec/minirisc/emulator"
	mio "github.com/ezrec/minirisc/io"
)

func newAsmCmd(v *viper.Viper, stderr io.Writer) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "asm <source.s>",
		Short: "Assemble source into a flat program image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return assemble(v, args[0], output, stderr)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "image file (default: source with a .bin extension)")

	return cmd
}

// imageName returns the default image file name for a source file.
func imageName(source string) string {
	return strings.TrimSuffix(source, filepath.Ext(source)) + ".bin"
}

// assemble writes the flat image of an assembly source file.
func assemble(v *viper.Viper, source string, output string, stderr io.Writer) (err error) {
	emu, err := newEmulator(v, stderr)
	if err != nil {
		return
	}

	if len(output) == 0 {
		output = imageName(source)
	}

	inf, err := os.Open(source)
	if err != nil {
		err = fmt.Errorf("%w: %w", emulator.ErrImageNotFound, err)
		return
	}
	defer inf.Close()

	prog, err := emu.Assembler().Parse(inf)
	if err != nil {
		err = fmt.Errorf("%v: %w", source, err)
		return
	}

	image := prog.Binary()
	if uint64(len(image)) > uint64(emu.Memory.Size()) {
		err = fmt.Errorf("%v: %w: %v bytes, limit %v", source, mio.ErrProgramTooLarge, len(image), emu.Memory.Size())
		return
	}

	err = os.WriteFile(output, image, 0o644)
	if err != nil {
		return
	}

	emu.Logger.Info("assembled", "source", source, "image", output, "bytes", len(image))

	return
}

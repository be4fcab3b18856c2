/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"stemdeck/internal/codec"
	"stemdeck/internal/control"
	"stemdeck/pkg/audioengine"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const overviewWidth = 60

var inspectFlags struct {
	spectrogram string
	width       int
	height      int
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <wav files...>",
	Short: "Print format, length and a waveform overview of WAV stems",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if inspectFlags.spectrogram != "" && (inspectFlags.width <= 0 || inspectFlags.height <= 0) {
			return fmt.Errorf("--width and --height must be positive, got %dx%d", inspectFlags.width, inspectFlags.height)
		}
		if err := setup(cmd, true); err != nil {
			return err
		}
		defer teardown()

		if dir := inspectFlags.spectrogram; dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		var errs error
		for _, path := range args {
			if err := inspectFile(cmd.OutOrStdout(), path); err != nil {
				log.Warn("inspect failed", zap.String("path", path), zap.Error(err))
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", path, err))
			}
		}
		return errs
	},
}

func init() {
	f := inspectCmd.Flags()
	f.StringVar(&inspectFlags.spectrogram, "spectrogram", "", "write a spectrogram PNG per stem into this directory")
	f.IntVar(&inspectFlags.width, "width", 800, "spectrogram width in pixels")
	f.IntVar(&inspectFlags.height, "height", 256, "spectrogram height in pixels")
	rootCmd.AddCommand(inspectCmd)
}

func inspectFile(w io.Writer, path string) error {
	if !strings.EqualFold(filepath.Ext(path), ".wav") {
		return fmt.Errorf("inspect reads wav files only")
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	a, err := codec.AnalyzeWAV(f)
	if err != nil {
		return err
	}
	name := audioengine.FileSource(path).DisplayName()
	fmt.Fprintf(w, "%s (%s)\n", name, control.GuessInstrument(name))
	fmt.Fprintf(w, "  %d Hz, %d ch, %d bit, %s\n", a.SampleRate, a.Channels, a.BitDepth, control.FormatTime(a.Duration().Seconds()))
	fmt.Fprintf(w, "  %s\n", codec.Sparkline(codec.Overview(a.Peaks, overviewWidth)))

	if inspectFlags.spectrogram == "" {
		return nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	samples, _, err := codec.DecodeMonoWAV(f)
	if err != nil {
		return err
	}
	png, err := codec.Spectrogram(samples, inspectFlags.width, inspectFlags.height)
	if err != nil {
		return err
	}
	out := filepath.Join(inspectFlags.spectrogram, name+".png")
	if err := os.WriteFile(out, png, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(w, "  spectrogram -> %s\n", out)
	return nil
}

/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package main

import (
	"errors"

	"stemdeck/internal/config"
	"stemdeck/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Shared by every subcommand once PersistentPreRunE has run.
var (
	cfg *config.Config
	log *zap.Logger
)

var rootFlags struct {
	envFile  string
	logLevel string
	logFile  string
	rate     int
	master   float64
}

var rootCmd = &cobra.Command{
	Use:           "stemdeck",
	Short:         "StemDeck plays the stems of a song as one synchronized mix.",
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       about(),
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.envFile, "env", ".env", "dotenv file with STEMDECK_* settings")
	pf.StringVar(&rootFlags.logLevel, "log-level", "", "debug, info, warn or error")
	pf.StringVar(&rootFlags.logFile, "log-file", "", "rotating JSON log file")
	pf.IntVar(&rootFlags.rate, "sample-rate", 0, "output sample rate in Hz")
	pf.Float64Var(&rootFlags.master, "master", -1, "initial master volume 0-100")
}

// setup loads configuration, applies flag overrides and builds the logger.
// console selects whether log lines also go to stderr.
func setup(cmd *cobra.Command, console bool) error {
	c, err := config.Load(rootFlags.envFile)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	if f.Changed("log-level") {
		c.LogLevel = rootFlags.logLevel
	}
	if f.Changed("log-file") {
		c.LogFile = rootFlags.logFile
	}
	if f.Changed("sample-rate") {
		c.SampleRate = rootFlags.rate
	}
	if f.Changed("master") {
		c.MasterVolume = rootFlags.master
	}
	if err := c.Validate(); err != nil {
		return err
	}

	l, err := logger.New(logger.Config{
		Level:      c.LogLevel,
		Console:    console,
		OutputPath: c.LogFile,
		MaxSize:    c.LogMaxSize,
		MaxBackups: c.LogMaxBackups,
		MaxAge:     c.LogMaxAge,
		Compress:   true,
	})
	if err != nil {
		return err
	}
	cfg, log = c, l
	return nil
}

func teardown() {
	if log != nil {
		_ = log.Sync()
	}
}

var errNoInput = errors.New("no input files")

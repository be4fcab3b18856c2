/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package main

import (
	"fmt"
	"os"
)

const (
	version_major = 1
	version_minor = 0
	app_name      = "StemDeck"
)

func about() string {
	return fmt.Sprintf("%s V.%d.%d", app_name, version_major, version_minor)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

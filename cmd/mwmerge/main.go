// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Command mwmerge merges, validates and inspects confidential transactions
// against a local utxo database.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	flags "github.com/jessevdk/go-flags"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}

		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run parses args and executes the selected command, writing its results
// to out.
func run(args []string, out io.Writer) error {
	var cfg config
	parser, err := loadConfig(&cfg, args, out)
	if err != nil {
		return err
	}

	parser.CommandHandler = func(cmd flags.Commander, args []string) error {
		if cmd == nil {
			return nil
		}

		if err := cfg.normalize(); err != nil {
			return err
		}

		logFile := filepath.Join(cfg.LogDir, defaultLogFilename)
		if err := initLogRotator(logFile); err != nil {
			return err
		}
		defer closeLogRotator()

		if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
			return err
		}

		return cmd.Execute(args)
	}

	_, err = parser.ParseArgs(args)

	return err
}

// commandContext returns a context canceled on interrupt.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

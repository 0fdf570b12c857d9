// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Command hwsigner derives keys, signs PSBTs and signs messages with a
// Ledger-class signing device.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/jessevdk/go-flags"
)

func main() {
	if err := run(); err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) &&
			flagErr.Type == flags.ErrHelp {

			fmt.Println(err)
			os.Exit(0)
		}

		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run parses the command line and executes the selected command.
func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	app := &app{ctx: ctx, cfg: defaultConfig()}

	parser := flags.NewParser(
		app.cfg, flags.HelpFlag|flags.PassDoubleDash,
	)
	parser.CommandHandler = app.handle

	if err := registerCommands(parser, app); err != nil {
		return err
	}

	_, err := parser.Parse()
	if app.closer != nil {
		_ = app.closer.Close()
	}

	return err
}

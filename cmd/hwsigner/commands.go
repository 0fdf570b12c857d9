// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/hwsigner/keypath"
	"github.com/jessevdk/go-flags"
)

// errArgs is returned when a command gets the wrong number of arguments.
var errArgs = errors.New("wrong number of arguments")

// registerCommands adds every subcommand to parser.
func registerCommands(parser *flags.Parser, a *app) error {
	commands := []struct {
		name  string
		short string
		long  string
		data  any
	}{{
		name:  "getxpub",
		short: "Derive the extended public key at a path",
		long: "Print the Base58Check extended public key at the " +
			"given BIP32 path, e.g. m/84'/0'/0'",
		data: &getXpubCommand{app: a},
	}, {
		name:  "signtx",
		short: "Sign a PSBT",
		long: "Sign every input of the base64 or hex encoded PSBT " +
			"that belongs to the device and print the result",
		data: &signTxCommand{app: a},
	}, {
		name:  "signmessage",
		short: "Sign a message",
		long: "Sign the message with the key at the given path and " +
			"print the base64 encoded compact signature",
		data: &signMessageCommand{app: a},
	}, {
		name:  "setup",
		short: "Initialize the device (unsupported)",
		long:  "Devices of this class are initialized on the device",
		data:  &setupCommand{app: a},
	}, {
		name:  "wipe",
		short: "Reset the device (unsupported)",
		long:  "Devices of this class are reset on the device",
		data:  &wipeCommand{app: a},
	}}

	for _, c := range commands {
		_, err := parser.AddCommand(c.name, c.short, c.long, c.data)
		if err != nil {
			return fmt.Errorf("register %s: %w", c.name, err)
		}
	}

	return nil
}

type getXpubCommand struct {
	app *app
}

// Execute implements flags.Commander.
func (c *getXpubCommand) Execute(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: getxpub <path>", errArgs)
	}

	path, err := keypath.Parse(args[0])
	if err != nil {
		return err
	}

	xpub, err := c.app.signer.DerivePublicKey(c.app.ctx, path)
	if err != nil {
		return err
	}

	fmt.Println(xpub)

	return nil
}

type signTxCommand struct {
	Base64 bool `long:"base64" description:"Print the signed PSBT as base64 instead of hex"`

	app *app
}

// Execute implements flags.Commander.
func (c *signTxCommand) Execute(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: signtx <psbt>", errArgs)
	}

	packet, err := decodePsbt(args[0])
	if err != nil {
		return err
	}

	result, err := c.app.signer.SignTransaction(c.app.ctx, packet)
	if err != nil {
		return err
	}

	log.Infof("Signed inputs %v, %v", result.SignedInputs, result.Summary)

	var out string
	if c.Base64 {
		out, err = result.Base64()
	} else {
		out, err = result.Hex()
	}
	if err != nil {
		return err
	}

	fmt.Println(out)

	return nil
}

// decodePsbt parses a base64 or hex encoded PSBT. A single "-" reads it from
// stdin.
func decodePsbt(arg string) (*psbt.Packet, error) {
	if arg == "-" {
		input, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("unable to read stdin: %w", err)
		}
		arg = string(input)
	}
	arg = strings.TrimSpace(arg)

	if raw, err := hex.DecodeString(arg); err == nil {
		return psbt.NewFromRawBytes(bytes.NewReader(raw), false)
	}

	return psbt.NewFromRawBytes(strings.NewReader(arg), true)
}

type signMessageCommand struct {
	app *app
}

// Execute implements flags.Commander.
func (c *signMessageCommand) Execute(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: signmessage <message> <path>", errArgs)
	}

	path, err := keypath.Parse(args[1])
	if err != nil {
		return err
	}

	sig, err := c.app.signer.SignMessage(
		c.app.ctx, []byte(args[0]), path,
	)
	if err != nil {
		return err
	}

	fmt.Println(sig)

	return nil
}

type setupCommand struct {
	app *app
}

// Execute implements flags.Commander.
func (c *setupCommand) Execute([]string) error {
	return c.app.signer.Setup()
}

type wipeCommand struct {
	app *app
}

// Execute implements flags.Commander.
func (c *wipeCommand) Execute([]string) error {
	return c.app.signer.Wipe()
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/urfave/cli"
)

var addCommand = cli.Command{
	Name:     "add",
	Category: "Invoices",
	Usage:    "Create a hold invoice.",
	Description: `
	Create an invoice whose payment is held by the node until it is
	accepted or rejected with the accept and reject commands.

	The amount is either a number of millisatoshi or an amount string such
	as "any" or "10sat". The invoice's final cltv requirement is chosen by
	the plugin so that the payment can be held safely.`,
	ArgsUsage: "amount_msat description label",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "amount_msat",
			Usage: "the amount in millisatoshi or an amount string",
		},
		cli.StringFlag{
			Name:  "description",
			Usage: "the description of the invoice",
		},
		cli.StringFlag{
			Name:  "label",
			Usage: "the unique label of the invoice",
		},
		cli.Uint64Flag{
			Name:  "expiry",
			Usage: "number of seconds the invoice is valid for",
		},
		cli.StringSliceFlag{
			Name:  "fallback",
			Usage: "an on-chain fallback address, may be repeated",
		},
		cli.StringFlag{
			Name:  "preimage",
			Usage: "the hex encoded 32 byte preimage to use",
		},
		cli.BoolFlag{
			Name:  "exposeprivatechannels",
			Usage: "add route hints for private channels",
		},
		cli.BoolFlag{
			Name:  "deschashonly",
			Usage: "only commit to the hash of the description",
		},
	},
	Action: actionDecorator(addInvoice),
}

func addInvoice(ctx *cli.Context) error {
	args := ctx.Args()

	// Show command help if no arguments provided
	if ctx.NArg() == 0 && ctx.NumFlags() == 0 {
		cli.ShowCommandHelp(ctx, "add")
		return nil
	}

	params := make(map[string]interface{})

	positional := []string{"amount_msat", "description", "label"}
	for _, name := range positional {
		switch {
		case ctx.IsSet(name):
			params[name] = ctx.String(name)
		case args.Present():
			params[name] = args.First()
			args = args.Tail()
		default:
			return fmt.Errorf("%s argument missing", name)
		}
	}

	// Plain numbers are sent as millisatoshi, anything else as an
	// amount string for the node to interpret.
	amt := params["amount_msat"].(string)
	if msat, err := strconv.ParseUint(amt, 10, 64); err == nil {
		params["amount_msat"] = msat
	}

	if ctx.IsSet("expiry") {
		params["expiry"] = ctx.Uint64("expiry")
	}
	if fallbacks := ctx.StringSlice("fallback"); len(fallbacks) > 0 {
		params["fallbacks"] = fallbacks
	}
	if ctx.IsSet("preimage") {
		params["preimage"] = ctx.String("preimage")
	}
	if ctx.IsSet("exposeprivatechannels") {
		params["exposeprivatechannels"] = ctx.Bool(
			"exposeprivatechannels",
		)
	}
	if ctx.IsSet("deschashonly") {
		params["deschashonly"] = ctx.Bool("deschashonly")
	}

	return callAndPrint(ctx, "hodlvoice-add", params)
}

var acceptCommand = cli.Command{
	Name:     "accept",
	Category: "Invoices",
	Usage:    "Settle the held payment of a hold invoice.",
	Description: `
	Mark a hold invoice as accepted. A payment that is currently held is
	released and settles. The key is the payment hash or, when the plugin
	runs with keymode=label, the invoice label.`,
	ArgsUsage: "key",
	Action:    actionDecorator(resolveCommand("hodlvoice-accept")),
}

var rejectCommand = cli.Command{
	Name:     "reject",
	Category: "Invoices",
	Usage:    "Fail the held payment of a hold invoice.",
	Description: `
	Mark a hold invoice as rejected. A payment that is currently held is
	failed back to the sender. The key is the payment hash or, when the
	plugin runs with keymode=label, the invoice label.`,
	ArgsUsage: "key",
	Action:    actionDecorator(resolveCommand("hodlvoice-reject")),
}

var statusCommand = cli.Command{
	Name:      "status",
	Category:  "Invoices",
	Usage:     "Show the recorded decision of a hold invoice.",
	ArgsUsage: "key",
	Action:    actionDecorator(resolveCommand("hodlvoice-status")),
}

// resolveCommand returns the action of a command taking a single key.
func resolveCommand(method string) func(*cli.Context) error {
	return func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return fmt.Errorf("expected exactly one key argument")
		}
		return callAndPrint(ctx, method, []string{ctx.Args().First()})
	}
}

func callAndPrint(ctx *cli.Context, method string, params interface{}) error {
	client := getClient(ctx)

	var resp json.RawMessage
	err := client.Call(context.Background(), method, params, &resp)
	if err != nil {
		return err
	}

	printJSON(resp)
	return nil
}

// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Copyright (C) 2015-2017 The Lightning Network Developers

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/decred/hodlvoice/build"
	"github.com/decred/hodlvoice/lnplugin"
	"github.com/urfave/cli"
)

const (
	defaultNetwork = "bitcoin"
	defaultRPCFile = "lightning-rpc"

	// rpcIDPrefix tags the requests made by this tool in the host log.
	rpcIDPrefix = "hodlvoicecli"
)

var (
	defaultLightningDir = filepath.Join(homeDir(), ".lightning")
)

func homeDir() string {
	if u, err := user.Current(); err == nil {
		return u.HomeDir
	}
	return os.Getenv("HOME")
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[hodlvoicecli] %v\n", err)
	os.Exit(1)
}

// rpcSocketPath returns the path of the node's RPC socket, which lives in
// the network subdirectory of the lightning directory.
func rpcSocketPath(ctx *cli.Context) string {
	rpcFile := ctx.GlobalString("rpc-file")
	if filepath.IsAbs(rpcFile) {
		return rpcFile
	}

	lightningDir := cleanAndExpandPath(ctx.GlobalString("lightning-dir"))
	return filepath.Join(
		lightningDir, ctx.GlobalString("network"), rpcFile,
	)
}

func getClient(ctx *cli.Context) *lnplugin.Client {
	return lnplugin.NewClient(rpcSocketPath(ctx), rpcIDPrefix)
}

// actionDecorator is used to add additional information and error handling
// to command actions.
func actionDecorator(f func(*cli.Context) error) func(*cli.Context) error {
	return func(c *cli.Context) error {
		err := f(c)

		// A missing socket or a refused connection most likely means
		// the node is not running or the directory is wrong.
		if errors.Is(err, syscall.ENOENT) ||
			errors.Is(err, syscall.ECONNREFUSED) {

			return fmt.Errorf("%v\nIs the node running? Use "+
				"--lightning-dir and --network to point to its "+
				"RPC socket", err)
		}

		// The node answers unknown commands with "Unknown command"
		// when the plugin is not loaded.
		var rpcErr *lnplugin.RPCError
		if errors.As(err, &rpcErr) &&
			rpcErr.Code == lnplugin.CodeMethodNotFound {

			return fmt.Errorf("%v\nIs the hodlvoice plugin loaded?",
				err)
		}

		return err
	}
}

func printJSON(resp interface{}) {
	b, err := json.Marshal(resp)
	if err != nil {
		fatal(err)
	}

	var out bytes.Buffer
	json.Indent(&out, b, "", "\t")
	out.WriteString("\n")
	out.WriteTo(os.Stdout)
}

func main() {
	app := cli.NewApp()
	app.Name = "hodlvoicecli"
	app.Version = build.Version() + " " + "commit=" + build.Commit
	app.Usage = "control plane for hold invoices of the hodlvoice plugin"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "lightning-dir",
			Value: defaultLightningDir,
			Usage: "path to the node's base directory",
		},
		cli.StringFlag{
			Name:  "network",
			Value: defaultNetwork,
			Usage: "the network the node runs on, which names the " +
				"subdirectory holding its RPC socket",
		},
		cli.StringFlag{
			Name:  "rpc-file",
			Value: defaultRPCFile,
			Usage: "name of the node's RPC socket, or its absolute path",
		},
	}
	app.Commands = []cli.Command{
		addCommand,
		acceptCommand,
		rejectCommand,
		statusCommand,
		versionCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
// This function is taken from https://github.com/decred/dcrd
func cleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		path = strings.Replace(path, "~", homeDir(), 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

package main

import (
	"context"
	"fmt"
	"runtime"

	"github.com/decred/hodlvoice/build"
	"github.com/urfave/cli"
)

var versionCommand = cli.Command{
	Name:  "version",
	Usage: "Display hodlvoicecli and node version info.",
	Description: `
	Returns version information about both hodlvoicecli and the node. If
	hodlvoicecli is unable to connect to the node, the command fails but
	still prints the hodlvoicecli version.
	`,
	Action: actionDecorator(version),
}

type cliVersion struct {
	Version       string `json:"version"`
	Commit        string `json:"commit"`
	AppMajor      uint   `json:"app_major"`
	AppMinor      uint   `json:"app_minor"`
	AppPatch      uint   `json:"app_patch"`
	AppPreRelease string `json:"app_pre_release"`
	GoVersion     string `json:"go_version"`
}

type versionResponse struct {
	Hodlvoicecli *cliVersion `json:"hodlvoicecli"`
	Node         *struct {
		Version     string `json:"version"`
		Network     string `json:"network"`
		BlockHeight uint32 `json:"blockheight"`
	} `json:"node,omitempty"`
}

func version(ctx *cli.Context) error {
	client := getClient(ctx)

	major, minor, patch := build.MajorMinorPatch()

	versions := &versionResponse{
		Hodlvoicecli: &cliVersion{
			Version:       build.Version(),
			Commit:        build.Commit,
			AppMajor:      major,
			AppMinor:      minor,
			AppPatch:      patch,
			AppPreRelease: build.PreRelease,
			GoVersion:     runtime.Version(),
		},
	}

	ctxb := context.Background()
	err := client.Call(ctxb, "getinfo", nil, &versions.Node)
	if err != nil {
		printJSON(versions)
		return fmt.Errorf("unable fetch version from node: %v", err)
	}

	printJSON(versions)

	return nil
}

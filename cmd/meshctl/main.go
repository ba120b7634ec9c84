package main

import (
	"os"

	"github.com/meshkit/meshkit/api"
	"github.com/meshkit/meshkit/cmd/meshctl/cert"
	"github.com/meshkit/meshkit/cmd/meshctl/network"
	"github.com/meshkit/meshkit/cmd/meshctl/node"
	"github.com/meshkit/meshkit/manager/httpapi"
	"github.com/meshkit/meshkit/version"
	"github.com/spf13/cobra"
)

func main() {
	if c, err := mainCmd.ExecuteC(); err != nil {
		c.PrintErrln("Error:", api.MessageOf(err))
		// errors that did not come from the manager are usage errors
		if api.CodeOf(err) == api.CodeUnknown {
			c.PrintErrln(c.UsageString())
		}

		os.Exit(1)
	}
}

var (
	mainCmd = &cobra.Command{
		Use:           os.Args[0],
		Short:         "Control a meshkit manager",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func defaultSocket() string {
	if socket := os.Getenv("MESHKIT_SOCKET"); socket != "" {
		return socket
	}
	return httpapi.DefaultControlSocket
}

func init() {
	mainCmd.PersistentFlags().StringP("socket", "s", defaultSocket(), "Socket or URL of the manager's operator API")

	mainCmd.AddCommand(
		network.Cmd,
		node.Cmd,
		cert.Cmd,
		version.Cmd,
	)
}

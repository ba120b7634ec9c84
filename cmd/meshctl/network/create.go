package network

import (
	"errors"
	"fmt"

	"github.com/meshkit/meshkit/api"
	"github.com/meshkit/meshkit/cmd/meshctl/common"
	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a network and its certificate authority",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("create command takes exactly one argument")
		}
		cidr, err := cmd.Flags().GetString("cidr")
		if err != nil {
			return err
		}
		if cidr == "" {
			return errors.New("--cidr is required")
		}

		c, err := common.Dial(cmd)
		if err != nil {
			return err
		}
		n, err := c.CreateNetwork(common.Context(cmd), &api.CreateNetworkRequest{Name: args[0], CIDR: cidr})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), n.ID)
		return nil
	},
}

func init() {
	createCmd.Flags().String("cidr", "", "Address block of the network, e.g. 10.42.0.0/24")
}

package network

import (
	"errors"

	"github.com/meshkit/meshkit/cmd/meshctl/common"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <network ID>",
	Short: "Inspect a network",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("network ID missing")
		}
		c, err := common.Dial(cmd)
		if err != nil {
			return err
		}
		n, err := c.GetNetwork(common.Context(cmd), args[0])
		if err != nil {
			return err
		}
		return common.PrintJSON(cmd.OutOrStdout(), n)
	},
}

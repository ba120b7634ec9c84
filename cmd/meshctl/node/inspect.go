package node

import (
	"errors"

	"github.com/meshkit/meshkit/cmd/meshctl/common"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <node ID>",
	Short: "Inspect a node",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("node ID missing")
		}
		c, err := common.Dial(cmd)
		if err != nil {
			return err
		}
		n, err := c.GetNode(common.Context(cmd), args[0])
		if err != nil {
			return err
		}
		return common.PrintJSON(cmd.OutOrStdout(), n)
	},
}

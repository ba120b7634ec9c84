package node

import (
	"errors"
	"fmt"

	"github.com/meshkit/meshkit/cmd/meshctl/common"
	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:     "remove <node ID...>",
	Short:   "Remove nodes, revoking their certificates and releasing their addresses",
	Aliases: []string{"rm"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return errors.New("node ID missing")
		}
		c, err := common.Dial(cmd)
		if err != nil {
			return err
		}
		for _, id := range args {
			if err := c.RemoveNode(common.Context(cmd), id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

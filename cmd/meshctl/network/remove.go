package network

import (
	"errors"
	"fmt"

	"github.com/meshkit/meshkit/cmd/meshctl/common"
	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:     "remove <network ID>",
	Short:   "Remove a network without nodes",
	Aliases: []string{"rm"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return errors.New("network ID missing")
		}
		c, err := common.Dial(cmd)
		if err != nil {
			return err
		}
		for _, id := range args {
			if err := c.RemoveNetwork(common.Context(cmd), id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

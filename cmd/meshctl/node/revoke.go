package node

import (
	"errors"
	"fmt"

	"github.com/meshkit/meshkit/cmd/meshctl/common"
	"github.com/spf13/cobra"
)

var revokeCmd = &cobra.Command{
	Use:   "revoke <node ID>",
	Short: "Revoke a node's current certificate",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("node ID missing")
		}
		c, err := common.Dial(cmd)
		if err != nil {
			return err
		}
		if err := c.RevokeCertificate(common.Context(cmd), args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), args[0])
		return nil
	},
}

package node

import (
	"errors"
	"text/tabwriter"

	"github.com/meshkit/meshkit/api"
	"github.com/meshkit/meshkit/cmd/meshctl/common"
	"github.com/spf13/cobra"
)

var codeCmd = &cobra.Command{
	Use:   "enroll-code <node ID>",
	Short: "Issue a single-use enrollment code for a node",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("node ID missing")
		}
		ttl, err := cmd.Flags().GetDuration("ttl")
		if err != nil {
			return err
		}
		c, err := common.Dial(cmd)
		if err != nil {
			return err
		}
		resp, err := c.CreateEnrollmentCode(common.Context(cmd), &api.CreateEnrollmentCodeRequest{NodeID: args[0], TTL: api.Duration(ttl)})
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		defer w.Flush()
		printCode(w, resp.Code, &resp.ExpiresAt)
		return nil
	},
}

func init() {
	codeCmd.Flags().Duration("ttl", 0, "Code lifetime (default set by the manager)")
}

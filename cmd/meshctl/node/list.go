package node

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/meshkit/meshkit/api"
	"github.com/meshkit/meshkit/cmd/meshctl/common"
	"github.com/spf13/cobra"
)

func roles(spec api.NodeSpec) string {
	var r []string
	if spec.IsLighthouse {
		r = append(r, "lighthouse")
	}
	if spec.IsRelay {
		r = append(r, "relay")
	}
	return strings.Join(r, ",")
}

var listCmd = &cobra.Command{
	Use:   "ls <network ID>",
	Short: "List the nodes of a network",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("network ID missing")
		}
		quiet, err := cmd.Flags().GetBool("quiet")
		if err != nil {
			return err
		}

		c, err := common.Dial(cmd)
		if err != nil {
			return err
		}
		nodes, err := c.ListNodes(common.Context(cmd), args[0])
		if err != nil {
			return err
		}

		if quiet {
			for _, n := range nodes {
				fmt.Fprintln(cmd.OutOrStdout(), n.ID)
			}
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		defer func() {
			// Ignore flushing errors - there's nothing we can do.
			_ = w.Flush()
		}()
		common.PrintHeader(w, "ID", "Hostname", "Address", "Roles", "Status", "Last Seen")
		for _, n := range nodes {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				n.ID,
				n.Spec.Hostname,
				n.Address,
				roles(n.Spec),
				n.Status,
				common.TimeAgo(n.LastSeen),
			)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().BoolP("quiet", "q", false, "Only display IDs")
}

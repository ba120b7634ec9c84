package network

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/meshkit/meshkit/cmd/meshctl/common"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "ls",
	Short: "List networks",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 {
			return errors.New("ls command takes no arguments")
		}
		quiet, err := cmd.Flags().GetBool("quiet")
		if err != nil {
			return err
		}

		c, err := common.Dial(cmd)
		if err != nil {
			return err
		}
		networks, err := c.ListNetworks(common.Context(cmd))
		if err != nil {
			return err
		}

		if quiet {
			for _, n := range networks {
				fmt.Fprintln(cmd.OutOrStdout(), n.ID)
			}
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		defer func() {
			// Ignore flushing errors - there's nothing we can do.
			_ = w.Flush()
		}()
		common.PrintHeader(w, "ID", "Name", "CIDR", "Created")
		for _, n := range networks {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", n.ID, n.Name, n.CIDR, humanize.Time(n.Meta.CreatedAt))
		}
		return nil
	},
}

func init() {
	listCmd.Flags().BoolP("quiet", "q", false, "Only display IDs")
}

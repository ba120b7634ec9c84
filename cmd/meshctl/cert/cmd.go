package cert

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/meshkit/meshkit/api"
	"github.com/meshkit/meshkit/cmd/meshctl/common"
	"github.com/spf13/cobra"
)

var (
	// Cmd exposes the top-level cert command.
	Cmd = &cobra.Command{
		Use:   "cert",
		Short: "Certificate management",
	}

	listCmd = &cobra.Command{
		Use:   "ls",
		Short: "List certificates, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return errors.New("ls command takes no arguments")
			}
			req := &api.ListCertificatesRequest{}
			var err error
			if req.NetworkID, err = cmd.Flags().GetString("network"); err != nil {
				return err
			}
			if req.NodeID, err = cmd.Flags().GetString("node"); err != nil {
				return err
			}

			c, err := common.Dial(cmd)
			if err != nil {
				return err
			}
			certs, err := c.ListCertificates(common.Context(cmd), req)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer func() {
				// Ignore flushing errors - there's nothing we can do.
				_ = w.Flush()
			}()
			common.PrintHeader(w, "Fingerprint", "Hostname", "Address", "Mode", "Expires", "Revoked")
			for _, c := range certs {
				revoked := ""
				if c.RevokedAt != nil {
					revoked = common.TimeAgo(c.RevokedAt)
				}
				fmt.Fprintf(w, "%.16s\t%s\t%s\t%s\t%s\t%s\n",
					c.Fingerprint,
					c.Hostname,
					c.Address,
					c.Mode,
					common.Until(c.NotAfter),
					revoked,
				)
			}
			return nil
		},
	}
)

func init() {
	listCmd.Flags().String("network", "", "Only certificates of this network")
	listCmd.Flags().String("node", "", "Only certificates of this node")
	Cmd.AddCommand(listCmd)
}

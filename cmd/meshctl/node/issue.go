package node

import (
	"errors"
	"text/tabwriter"

	"github.com/meshkit/meshkit/api"
	"github.com/meshkit/meshkit/cmd/meshctl/common"
	"github.com/spf13/cobra"
)

var issueCmd = &cobra.Command{
	Use:   "issue <node ID>",
	Short: "Issue a new certificate for a node, revoking the current one",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("node ID missing")
		}
		flags := cmd.Flags()
		req := &api.IssueCertificateRequest{NodeID: args[0]}
		var err error
		if req.CSR, err = readCSR(flags); err != nil {
			return err
		}
		if req.PreferredAddress, err = flags.GetString("address"); err != nil {
			return err
		}
		expiry, err := flags.GetDuration("cert-expiry")
		if err != nil {
			return err
		}
		req.Duration = api.Duration(expiry)

		c, err := common.Dial(cmd)
		if err != nil {
			return err
		}
		resp, err := c.IssueCertificate(common.Context(cmd), req)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		defer w.Flush()
		printIssued(w, resp)
		return nil
	},
}

func init() {
	flags := issueCmd.Flags()
	flags.String("csr-file", "", "Sign this CSR instead of generating a key on the manager")
	flags.String("address", "", "Preferred overlay address, for nodes without one")
	flags.Duration("cert-expiry", 0, "Certificate lifetime")
}

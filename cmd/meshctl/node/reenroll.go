package node

import (
	"errors"
	"text/tabwriter"
	"time"

	"github.com/meshkit/meshkit/api"
	"github.com/meshkit/meshkit/cmd/meshctl/common"
	"github.com/spf13/cobra"
)

var reEnrollCmd = &cobra.Command{
	Use:   "reenroll <node ID>",
	Short: "Replace a node's certificate and invalidate its device token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("node ID missing")
		}
		flags := cmd.Flags()
		req := &api.ReEnrollRequest{NodeID: args[0]}
		var err error
		if req.DemoteLighthouse, err = flags.GetBool("demote-lighthouse"); err != nil {
			return err
		}
		expiry, err := flags.GetDuration("cert-expiry")
		if err != nil {
			return err
		}
		req.Duration = api.Duration(expiry)
		ttl, err := flags.GetDuration("code-ttl")
		if err != nil {
			return err
		}
		req.EnrollmentCodeTTL = api.Duration(ttl)

		c, err := common.Dial(cmd)
		if err != nil {
			return err
		}
		resp, err := c.ReEnroll(common.Context(cmd), req)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		defer w.Flush()
		printIssued(w, &resp.IssueCertificateResponse)
		printCode(w, resp.EnrollmentCode, resp.EnrollmentCodeExpiresAt)
		return nil
	},
}

func init() {
	flags := reEnrollCmd.Flags()
	flags.Bool("demote-lighthouse", false, "Also remove the lighthouse role")
	flags.Duration("cert-expiry", 0, "Certificate lifetime")
	flags.Duration("code-ttl", 24*time.Hour, "Lifetime of the new enrollment code, 0 for none")
}

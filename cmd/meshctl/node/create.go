package node

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/meshkit/meshkit/api"
	"github.com/meshkit/meshkit/cmd/meshctl/common"
	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create <hostname>",
	Short: "Create a node and issue its first certificate",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("create command takes exactly one argument")
		}
		flags := cmd.Flags()

		req := &api.CreateNodeRequest{Spec: api.NodeSpec{Hostname: args[0]}}
		var err error
		if req.NetworkID, err = flags.GetString("network"); err != nil {
			return err
		}
		if req.NetworkID == "" {
			return errors.New("--network is required")
		}
		if req.Spec.IsLighthouse, err = flags.GetBool("lighthouse"); err != nil {
			return err
		}
		if req.Spec.IsRelay, err = flags.GetBool("relay"); err != nil {
			return err
		}
		if req.Spec.PublicEndpoint, err = flags.GetString("endpoint"); err != nil {
			return err
		}
		if req.Spec.Groups, err = flags.GetStringSlice("group"); err != nil {
			return err
		}
		if req.PreferredAddress, err = flags.GetString("address"); err != nil {
			return err
		}
		if req.CSR, err = readCSR(flags); err != nil {
			return err
		}
		expiry, err := flags.GetDuration("cert-expiry")
		if err != nil {
			return err
		}
		req.CertificateDuration = api.Duration(expiry)
		ttl, err := flags.GetDuration("code-ttl")
		if err != nil {
			return err
		}
		req.EnrollmentCodeTTL = api.Duration(ttl)

		c, err := common.Dial(cmd)
		if err != nil {
			return err
		}
		resp, err := c.CreateNode(common.Context(cmd), req)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		defer w.Flush()
		fmt.Fprintf(w, "ID:\t%s\n", resp.Node.ID)
		printIssued(w, &api.IssueCertificateResponse{Address: resp.Node.Address, Certificate: resp.Certificate})
		printCode(w, resp.EnrollmentCode, resp.EnrollmentCodeExpiresAt)
		return nil
	},
}

func init() {
	flags := createCmd.Flags()
	flags.String("network", "", "Network ID")
	flags.Bool("lighthouse", false, "Make the node a lighthouse")
	flags.Bool("relay", false, "Make the node a relay")
	flags.String("endpoint", "", "Public host:port of a lighthouse or relay")
	flags.StringSlice("group", nil, "Certificate groups")
	flags.String("address", "", "Preferred overlay address")
	flags.String("csr-file", "", "Sign this CSR instead of generating a key on the manager")
	flags.Duration("cert-expiry", 0, "Certificate lifetime")
	flags.Duration("code-ttl", 0, "Also issue an enrollment code valid this long")
}

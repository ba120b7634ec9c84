package node

import (
	"errors"
	"fmt"

	"github.com/meshkit/meshkit/api"
	"github.com/meshkit/meshkit/cmd/meshctl/common"
	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update <node ID>",
	Short: "Update a node; changes reach the certificate at the next issuance",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("node ID missing")
		}
		flags := cmd.Flags()
		req := &api.UpdateNodeRequest{NodeID: args[0]}

		if flags.Changed("hostname") {
			v, err := flags.GetString("hostname")
			if err != nil {
				return err
			}
			req.Hostname = &v
		}
		if flags.Changed("lighthouse") {
			v, err := flags.GetBool("lighthouse")
			if err != nil {
				return err
			}
			req.IsLighthouse = &v
		}
		if flags.Changed("relay") {
			v, err := flags.GetBool("relay")
			if err != nil {
				return err
			}
			req.IsRelay = &v
		}
		if flags.Changed("endpoint") {
			v, err := flags.GetString("endpoint")
			if err != nil {
				return err
			}
			req.PublicEndpoint = &v
		}
		if flags.Changed("group") {
			v, err := flags.GetStringSlice("group")
			if err != nil {
				return err
			}
			req.Groups = &v
		}
		if flags.Changed("log-level") || flags.Changed("log-format") {
			level, err := flags.GetString("log-level")
			if err != nil {
				return err
			}
			format, err := flags.GetString("log-format")
			if err != nil {
				return err
			}
			req.Logging = &api.LoggingOptions{Level: level, Format: format}
		}

		c, err := common.Dial(cmd)
		if err != nil {
			return err
		}
		n, err := c.UpdateNode(common.Context(cmd), req)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), n.ID)
		return nil
	},
}

func init() {
	flags := updateCmd.Flags()
	flags.String("hostname", "", "New hostname")
	flags.Bool("lighthouse", false, "Lighthouse role")
	flags.Bool("relay", false, "Relay role")
	flags.String("endpoint", "", "Public host:port")
	flags.StringSlice("group", nil, "Certificate groups, replacing the current ones")
	flags.String("log-level", "", "Daemon log level")
	flags.String("log-format", "", "Daemon log format (text or json)")
}

package main

import (
	"context"
	"fmt"

	"github.com/meshkit/meshkit/agent"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Exchange an enrollment code for a device token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := cmd.Flags().GetString("code")
		if err != nil {
			return err
		}
		if code == "" {
			return errors.New("--code is required")
		}
		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		path, err := tokenPath(cmd)
		if err != nil {
			return err
		}

		resp, err := agent.Enroll(context.Background(), client, code, path)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Enrolled as %s. Token saved to %s\n", resp.Hostname, path)
		fmt.Fprintf(cmd.OutOrStdout(), "Run: %s run --server %s\n", cmd.Root().Name(), client.Server())
		return nil
	},
}

func init() {
	addServerFlags(enrollCmd)
	enrollCmd.Flags().StringP("code", "c", "", "Enrollment code given by the operator")
}

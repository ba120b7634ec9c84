package main

import (
	"github.com/meshkit/meshkit/agent"
	"github.com/spf13/cobra"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate the device key and print a CSR for the operator to sign",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		outputDir, err := stringFlag(cmd, "output-dir", "MESHKIT_OUTPUT_DIR")
		if err != nil {
			return err
		}
		force, err := cmd.Flags().GetBool("force")
		if err != nil {
			return err
		}
		csr, err := agent.Keygen(outputDir, force)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(csr)
		return err
	},
}

func init() {
	keygenCmd.Flags().StringP("output-dir", "o", agent.DefaultOutputDir, "Directory receiving host.key (default $MESHKIT_OUTPUT_DIR)")
	keygenCmd.Flags().Bool("force", false, "Replace an existing key")
}

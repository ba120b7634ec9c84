package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/meshkit/meshkit/agent"
	"github.com/meshkit/meshkit/log"
	"github.com/meshkit/meshkit/version"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// defaultEnvFile is loaded when present. Variables already set in the
// environment win.
const defaultEnvFile = "/etc/meshkit/agent.env"

func main() {
	if err := mainCmd.Execute(); err != nil {
		log.L.Fatal(err)
	}
}

var (
	mainCmd = &cobra.Command{
		Use:          os.Args[0],
		Short:        "Keep this device's mesh configuration in sync with the manager",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logrus.SetOutput(os.Stderr)
			level, err := cmd.Flags().GetString("log-level")
			if err != nil {
				return err
			}
			if err := log.ParseLevel(level); err != nil {
				return err
			}

			envFile, err := cmd.Flags().GetString("env-file")
			if err != nil {
				return err
			}
			if err := godotenv.Load(envFile); err != nil {
				if cmd.Flags().Changed("env-file") || !os.IsNotExist(errors.Cause(err)) {
					return errors.Wrapf(err, "failed to load %s", envFile)
				}
			}
			return nil
		},
	}
)

// stringFlag returns the flag value when it was set on the command line,
// otherwise the environment variable env, otherwise the flag default.
func stringFlag(cmd *cobra.Command, name, env string) (string, error) {
	value, err := cmd.Flags().GetString(name)
	if err != nil {
		return "", err
	}
	if !cmd.Flags().Changed(name) {
		if v, ok := os.LookupEnv(env); ok && v != "" {
			return v, nil
		}
	}
	return value, nil
}

func tokenPath(cmd *cobra.Command) (string, error) {
	path, err := stringFlag(cmd, "token-file", "MESHKIT_TOKEN_FILE")
	if err != nil {
		return "", err
	}
	if path == "" {
		path = agent.DefaultTokenPath()
	}
	return path, nil
}

func newClient(cmd *cobra.Command) (*agent.Client, error) {
	server, err := stringFlag(cmd, "server", "MESHKIT_SERVER")
	if err != nil {
		return nil, err
	}
	if server == "" {
		return nil, errors.New("--server or MESHKIT_SERVER is required")
	}
	caFile, err := stringFlag(cmd, "ca-file", "MESHKIT_CA_FILE")
	if err != nil {
		return nil, err
	}
	var opts []agent.ClientOption
	if caFile != "" {
		opts = append(opts, agent.WithCAFile(caFile))
	}
	return agent.NewClient(server, opts...)
}

func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("server", "s", "", "Manager device API address (default $MESHKIT_SERVER)")
	cmd.Flags().String("ca-file", "", "Extra CA certificates trusted for the manager (default $MESHKIT_CA_FILE)")
	cmd.Flags().String("token-file", "", "Device token file (default $MESHKIT_TOKEN_FILE, /etc/meshkit/token for root, ~/.config/meshkit/token otherwise)")
}

func init() {
	mainCmd.PersistentFlags().StringP("log-level", "l", "info", "Log level (options \"debug\", \"info\", \"warn\", \"error\", \"fatal\", \"panic\")")
	mainCmd.PersistentFlags().String("env-file", defaultEnvFile, "File of KEY=value lines loaded into the environment")

	mainCmd.AddCommand(
		enrollCmd,
		runCmd,
		keygenCmd,
		version.Cmd,
	)
}

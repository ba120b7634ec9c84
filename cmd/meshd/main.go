package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/meshkit/meshkit/log"
	"github.com/meshkit/meshkit/manager"
	"github.com/meshkit/meshkit/manager/encryption"
	"github.com/meshkit/meshkit/manager/httpapi"
	"github.com/meshkit/meshkit/version"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := mainCmd.Execute(); err != nil {
		log.L.Fatal(err)
	}
}

var (
	mainCmd = &cobra.Command{
		Use:          os.Args[0],
		Short:        "Run the meshkit manager",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logrus.SetOutput(os.Stderr)
			level, err := cmd.Flags().GetString("log-level")
			if err != nil {
				return err
			}
			return log.ParseLevel(level)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := managerConfig(cmd)
			if err != nil {
				return err
			}

			m, err := manager.New(config)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return m.Run(ctx)
		},
	}

	genKeyCmd = &cobra.Command{
		Use:   "genkey",
		Short: "Print a new key encryption key",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), encryption.HumanReadableKey(encryption.GenerateSecretKey()))
		},
	}
)

func readKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read key file")
	}
	key, err := encryption.ParseHumanReadableKey(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid key in %s", path)
	}
	return key, nil
}

func managerConfig(cmd *cobra.Command) (manager.Config, error) {
	flags := cmd.Flags()
	var config manager.Config
	var err error

	if config.StateDir, err = flags.GetString("state-dir"); err != nil {
		return config, err
	}
	if config.ControlSocket, err = flags.GetString("control-socket"); err != nil {
		return config, err
	}
	if config.ControlSocketGroup, err = flags.GetInt("control-socket-group"); err != nil {
		return config, err
	}
	if config.DeviceAddr, err = flags.GetString("listen-device"); err != nil {
		return config, err
	}
	if config.TLSCertFile, err = flags.GetString("tls-cert"); err != nil {
		return config, err
	}
	if config.TLSKeyFile, err = flags.GetString("tls-key"); err != nil {
		return config, err
	}
	if config.FernetOnly, err = flags.GetBool("fernet-only"); err != nil {
		return config, err
	}
	if config.RootCAExpiration, err = flags.GetDuration("ca-expiry"); err != nil {
		return config, err
	}
	if config.NodeCertExpiration, err = flags.GetDuration("cert-expiry"); err != nil {
		return config, err
	}
	if config.DefaultCodeTTL, err = flags.GetDuration("code-ttl"); err != nil {
		return config, err
	}

	keyFile, err := flags.GetString("key-file")
	if err != nil {
		return config, err
	}
	switch {
	case keyFile != "":
		if config.KeyEncryptionKey, err = readKey(keyFile); err != nil {
			return config, err
		}
	case os.Getenv("MESHKIT_KEY") != "":
		if config.KeyEncryptionKey, err = encryption.ParseHumanReadableKey(os.Getenv("MESHKIT_KEY")); err != nil {
			return config, errors.Wrap(err, "invalid MESHKIT_KEY")
		}
	}
	previous, err := flags.GetStringSlice("previous-key-file")
	if err != nil {
		return config, err
	}
	for _, path := range previous {
		key, err := readKey(path)
		if err != nil {
			return config, err
		}
		config.PreviousKeys = append(config.PreviousKeys, key)
	}

	config.HTTP = httpapi.DefaultConfig()
	if config.HTTP.EnrollLimit.Requests, err = flags.GetInt("enroll-limit"); err != nil {
		return config, err
	}
	return config, nil
}

func init() {
	mainCmd.PersistentFlags().StringP("log-level", "l", "info", "Log level (options \"debug\", \"info\", \"warn\", \"error\", \"fatal\", \"panic\")")

	flags := mainCmd.Flags()
	flags.StringP("state-dir", "d", "/var/lib/meshkit", "State directory")
	flags.String("control-socket", httpapi.DefaultControlSocket, "Socket of the operator API")
	flags.Int("control-socket-group", 0, "Group owning the operator API socket")
	flags.String("listen-device", ":8443", "Listen address of the device API")
	flags.String("tls-cert", "", "Certificate of the device API, enables TLS")
	flags.String("tls-key", "", "Private key of the device API")
	flags.String("key-file", "", "File holding the key encryption key (default $MESHKIT_KEY, or a key generated in the state directory)")
	flags.StringSlice("previous-key-file", nil, "Files holding previous key encryption keys, still accepted for decryption")
	flags.Bool("fernet-only", false, "Encrypt private keys with Fernet instead of NaCl secretbox")
	flags.Duration("ca-expiry", 0, "Lifetime of new network CAs (default 10 years)")
	flags.Duration("cert-expiry", 0, "Default lifetime of node certificates (default 1 year)")
	flags.Duration("code-ttl", 0, "Default lifetime of enrollment codes (default 24h)")
	flags.Int("enroll-limit", httpapi.EnrollLimit.Requests, "Enrollment attempts per client address per 15 minutes")

	mainCmd.AddCommand(
		genKeyCmd,
		version.Cmd,
	)
}

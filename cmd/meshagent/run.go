package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/meshkit/meshkit/agent"
	"github.com/meshkit/meshkit/agent/exec"
	"github.com/meshkit/meshkit/manager/netconfig"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the manager and keep the overlay daemon running with the latest configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		path, err := tokenPath(cmd)
		if err != nil {
			return err
		}
		outputDir, err := stringFlag(cmd, "output-dir", "MESHKIT_OUTPUT_DIR")
		if err != nil {
			return err
		}
		execPath, err := stringFlag(cmd, "exec-path", "MESHKIT_EXEC_PATH")
		if err != nil {
			return err
		}
		service, err := stringFlag(cmd, "restart-service", "MESHKIT_RESTART_SERVICE")
		if err != nil {
			return err
		}
		interval, err := cmd.Flags().GetDuration("interval")
		if err != nil {
			return err
		}
		if v := os.Getenv("MESHKIT_INTERVAL"); v != "" && !cmd.Flags().Changed("interval") {
			if interval, err = time.ParseDuration(v); err != nil {
				return errors.Wrap(err, "invalid MESHKIT_INTERVAL")
			}
		}

		supervisor, err := exec.New(exec.Config{
			ExecPath:       execPath,
			RestartService: service,
			ConfigPath:     filepath.Join(outputDir, netconfig.ConfigFile),
			Dir:            outputDir,
		})
		if err != nil {
			return err
		}

		a, err := agent.New(&agent.Config{
			Client:     client,
			TokenPath:  path,
			OutputDir:  outputDir,
			Interval:   interval,
			Supervisor: supervisor,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return a.Run(ctx)
	},
}

func init() {
	addServerFlags(runCmd)
	flags := runCmd.Flags()
	flags.StringP("output-dir", "o", agent.DefaultOutputDir, "Directory receiving the configuration and certificates (default $MESHKIT_OUTPUT_DIR)")
	flags.DurationP("interval", "i", agent.DefaultInterval, "Polling interval (default $MESHKIT_INTERVAL)")
	flags.String("exec-path", "", "Overlay daemon to run and restart (default $MESHKIT_EXEC_PATH, or nebula on PATH)")
	flags.StringP("restart-service", "r", "", "Systemd unit to restart instead of running the daemon (default $MESHKIT_RESTART_SERVICE)")
}

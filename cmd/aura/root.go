package main

import (
	"os"

	"github.com/adeilh/aura/config"
	"github.com/spf13/cobra"
)

// newRootCmd returns the command tree and the app it lazily wires; the
// caller closes the app once the command has run.
func newRootCmd() (*cobra.Command, *app) {
	var (
		configFile string
		logLevel   string
	)
	a := &app{}

	root := &cobra.Command{
		Use:           "aura",
		Short:         "Marketing dashboard backend and client",
		Long:          `Serve the dashboard API, manage campaigns and assets, and generate content from the command line.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			logger, closeLog, err := newLogger(cfg.Log, os.Stderr)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logger
			a.out = cmd.OutOrStdout()
			a.onClose(closeLog)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./aura.yaml or ~/.config/aura/aura.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newServeCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newCampaignsCmd(a),
		newAssetsCmd(a),
		newContentCmd(a),
		newGenerateCmd(a),
		newBrainCmd(a),
		newCacheCmd(a),
	)
	return root, a
}

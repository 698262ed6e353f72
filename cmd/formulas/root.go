package main

import (
	"github.com/spf13/cobra"

	"github.com/zephyrtronium/formulas/config"
)

// rootFlags are the global flags.
type rootFlags struct {
	config    string
	logLevel  string
	logFormat string
}

// newRootCmd creates the command tree. The returned app is populated before
// any subcommand runs.
func newRootCmd() *cobra.Command {
	var flags rootFlags
	a := new(app)
	root := &cobra.Command{
		Use:   "formulas",
		Short: "Parse and evaluate mathematical formulas",
		Long: `formulas parses and evaluates formulas written like math in notes: "2x^2 + 3xy",
"y = sin(x)", "f(x) = x^2 + 1".

Relations like "y = x^2" evaluate to the difference of their sides, which is
zero where the relation holds.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithEnv(flags.config)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Logging.Level = flags.logLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.Logging.Format = flags.logFormat
			}
			logger, err := newLogger(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return a.setup(cfg, logger)
		},
	}
	root.PersistentFlags().StringVarP(&flags.config, "config", "c", "", "config file path")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", config.DefaultLoggingLevel, "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", config.DefaultLoggingFormat, "log format: text, json")

	root.AddCommand(
		newEvalCmd(a),
		newCheckCmd(a),
		newSweepCmd(a),
		newReplCmd(a),
		newFuncsCmd(a),
	)
	return root
}

package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ccrm-agents/ccsync/internal/config"
	"github.com/ccrm-agents/ccsync/internal/logging"
	"github.com/ccrm-agents/ccsync/internal/ui"
)

// annotationNoStorage marks commands that run without a database.
const annotationNoStorage = "ccsync/no-storage"

var (
	cfgFile      string
	verbose      bool
	outputFlag   string
	outputFormat = ui.FormatText

	v        = config.New()
	cfg      = &config.Config{}
	logger   = zap.NewNop()
	closeLog = func() {}
)

var rootCmd = &cobra.Command{
	Use:   "ccsync",
	Short: "Sync agent and workflow definitions with the database",
	Long: `ccsync keeps agent and workflow definitions in a local file tree in step
with their rows in the database, across the SYSTEM and COMMON_BACKGROUND
scopes.

Definitions live under <definitions>/{System|CommonBackground}/{Agents|AgenticWorkflows}/.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		format, err := ui.ParseFormat(outputFlag)
		if err != nil {
			return err
		}
		outputFormat = format

		loaded, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded

		l, closeFn, err := logging.New(logging.Options{
			File:    cfg.LogFile,
			Level:   cfg.LogLevel,
			Verbose: verbose,
		})
		if err != nil {
			return err
		}
		logger, closeLog = l, closeFn
		if cfg.Source != "" {
			logger.Debug("loaded config", zap.String("file", cfg.Source))
		}
		logOp(cmd, args)

		if cmd.Annotations[annotationNoStorage] == "true" {
			return nil
		}
		return cfg.Validate()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logOpDone()
		closeLog()
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "manage", Title: "Definition Management:"},
		&cobra.Group{ID: "maint", Title: "Maintenance:"},
	)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ./ccsync.yaml or $HOME/.config/ccsync/ccsync.yaml)")
	pf.String("definitions", "", "definitions root directory (default \"definitions\")")
	pf.String("database-url", "", "database URL (postgres://... or sqlite://path)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
	pf.StringVarP(&outputFlag, "output", "o", string(ui.FormatText), "output format for list and get commands: text, json, yaml or toml")

	_ = v.BindPFlag(config.KeyDefinitionsDir, pf.Lookup("definitions"))
	_ = v.BindPFlag(config.KeyDatabaseURL, pf.Lookup("database-url"))
}

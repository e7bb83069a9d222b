package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/forPelevin/tubebite/internal/config"
	"github.com/forPelevin/tubebite/internal/logging"
)

func Main() {
	if err := NewRoot().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewRoot builds the command tree. Config and logging flags are shared by
// every subcommand.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:          "tubebite",
		Short:        "Turn long videos into short vertical clips",
		SilenceUsage: true,
	}

	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	root.PersistentFlags().String("config", "", "Path to a YAML config file")
	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().Bool("log-json", false, "Write JSON logs")

	root.AddCommand(newServeCmd(), newGenerateCmd(), newPurgeCmd(), newMigrateCmd())
	return root
}

// loadConfig applies persistent flags on top of the file and environment.
func loadConfig(cmd *cobra.Command) (config.Config, zerolog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if cmd.Flags().Changed("log-json") {
		cfg.Log.JSON, _ = cmd.Flags().GetBool("log-json")
	}
	return cfg, logging.New(cfg.Log.Level, cfg.Log.JSON), nil
}

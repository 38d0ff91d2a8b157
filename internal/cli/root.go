// Package cli implements explorerctl, the operator command line for seeding
// and inspecting an explorer database without going through HTTP.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"explorer/internal/app"
	"explorer/internal/platform/config"
	"explorer/internal/platform/logger"
)

// env carries the configuration shared by every subcommand and the lazily
// opened service graph.
type env struct {
	v        *viper.Viper
	services *app.Services
}

// open connects to the configured database on first use.
func (e *env) open(cmd *cobra.Command) (*app.Services, error) {
	if e.services != nil {
		return e.services, nil
	}
	cfg, err := config.FromViper(e.v)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Log.Level, "text")
	s, err := app.New(cmd.Context(), cfg, log, nil)
	if err != nil {
		return nil, err
	}
	e.services = s
	return s, nil
}

func (e *env) close() error {
	if e.services == nil {
		return nil
	}
	err := e.services.Close()
	e.services = nil
	return err
}

// Root returns the explorerctl command tree.
func Root() *cobra.Command {
	e := &env{v: config.New()}
	e.v.SetDefault("log.level", "warn")

	root := &cobra.Command{
		Use:   "explorerctl",
		Short: "Operate an explorer database",
		Long: `explorerctl seeds, inspects and exports an explorer database directly.

It reads the same configuration as the server: defaults, an optional YAML
file, then EXPLORER_* environment variables, then the flags below.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				return nil
			}
			e.v.SetConfigFile(path)
			if err := e.v.ReadInConfig(); err != nil {
				return fmt.Errorf("read config %s: %w", path, err)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return e.close()
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "path to a YAML config file")
	flags.String("database-driver", "", "sqlite or postgres")
	flags.String("database-dsn", "", "database connection string or file")
	flags.String("log-level", "", "debug, info, warn or error")
	bind(e.v, root, "database.driver", "database-driver")
	bind(e.v, root, "database.dsn", "database-dsn")
	bind(e.v, root, "log.level", "log-level")

	root.AddCommand(seedCmd(e))
	root.AddCommand(sourcesCmd(e))
	root.AddCommand(queryCmd(e))
	root.AddCommand(exportCmd(e))
	root.AddCommand(catalogCmd(e))
	return root
}

// bind makes a flag override its config key only when it was set.
func bind(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	if err := v.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

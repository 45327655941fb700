package main

import (
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	Short:   "Apply store schema migrations and exit",
	GroupID: "tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		logger := newLogger(cfg.Log)

		ctx := cmd.Context()
		st, err := openStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}
		logger.Info("migrations applied", "driver", cfg.Store.Driver)
		return nil
	},
}

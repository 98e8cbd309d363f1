package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	dbfs "github.com/garnizeh/medequip/db"
	"github.com/garnizeh/medequip/internal/db"
)

func (c *cli) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := openStore(cmd.Context(), c.cfg.Store, c.logger)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			defer h.close(cmd.Context())

			c.logger.Info("migrate: ok", zap.String("driver", c.cfg.Store.Driver))
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.Store.Driver != "sqlite" {
				return errNotSQLite
			}
			conn, err := db.New(cmd.Context(), sqliteDSN(c.cfg.Store.SQLitePath))
			if err != nil {
				return err
			}
			defer conn.Close()

			v, err := db.MigrationVersion(cmd.Context(), conn, dbfs.Migrations())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", v)
			return nil
		},
	})
	return cmd
}

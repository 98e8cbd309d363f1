package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/garnizeh/medequip/internal/backup"
	"github.com/garnizeh/medequip/internal/db"
)

func (c *cli) backupManager(ctx context.Context, conn *db.DB) (*backup.Manager, error) {
	opts := []backup.Option{backup.WithLogger(c.logger)}
	if s3cfg := c.cfg.Backup.S3; s3cfg.Enabled() {
		client, err := backup.NewS3Client(ctx, s3cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, backup.WithObjectStore(client, s3cfg.Bucket))
	}
	return backup.New(conn, c.cfg.Backup.Dir, opts...), nil
}

func (c *cli) backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the SQLite database, uploading it when S3 is configured",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.Store.Driver != "sqlite" {
				return errNotSQLite
			}
			ctx := cmd.Context()

			conn, err := openSQLite(ctx, c.cfg.Store, c.logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			m, err := c.backupManager(ctx, conn)
			if err != nil {
				return err
			}
			res, err := m.Run(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "backup written to %s (%d bytes)\n", res.Path, res.Size)
			if res.Key != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "uploaded as s3://%s/%s\n", c.cfg.Backup.S3.Bucket, res.Key)
			}
			return nil
		},
	}
}

func (c *cli) restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <snapshot>",
		Short: "Replace the SQLite database with a snapshot file or object key",
		Long: "Replace the SQLite database with a snapshot. The argument is a local file, " +
			"or an object key in the configured bucket when no such file exists. Stop the server first.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.Store.Driver != "sqlite" {
				return errNotSQLite
			}

			m, err := c.backupManager(cmd.Context(), nil)
			if err != nil {
				return err
			}
			if err := m.Restore(cmd.Context(), args[0], c.cfg.Store.SQLitePath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s into %s\n", args[0], c.cfg.Store.SQLitePath)
			return nil
		},
	}
}

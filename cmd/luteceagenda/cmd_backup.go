/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var restoreKey string

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot the featured schedule to the configured object store",
	RunE:  runBackup,
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore the featured schedule from a snapshot",
	Long: `Restore the featured schedule from a snapshot.

Without --key the most recent snapshot is used. The restored schedule is
re-packed immediately, so effective windows are recomputed rather than
trusted from the snapshot.`,
	RunE: runRestore,
}

func init() {
	restoreCmd.Flags().StringVar(&restoreKey, "key", "", "Snapshot object key (default: latest)")
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
}

func runBackup(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	services, err := newScheduleServices()
	if err != nil {
		return err
	}
	defer services.close()

	key, err := services.backup.Backup(context.Background())
	if err != nil {
		return fmt.Errorf("backup: %w", err)
	}

	fmt.Printf("Backup written to %s\n", key)
	return nil
}

func runRestore(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	services, err := newScheduleServices()
	if err != nil {
		return err
	}
	defer services.close()

	ctx := context.Background()
	key := restoreKey
	if key == "" {
		key, err = services.backup.RestoreLatest(ctx, "cli")
	} else {
		err = services.backup.Restore(ctx, key, "cli")
	}
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	fmt.Printf("Schedule restored from %s\n", key)
	return nil
}

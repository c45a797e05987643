/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	resetForce       bool
	resetQueueOnly   bool
	resetHistoryOnly bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the featured promotion schedule",
	Long: `Clear the featured promotion schedule.

By default both the queue and the history are removed. The catalog events
themselves are never touched.

WARNING: This action is irreversible unless you have a backup!

Examples:
  # Interactive reset (will prompt for confirmation)
  luteceagenda reset

  # Force reset without confirmation
  luteceagenda reset --force

  # Only remove pending scheduled entries, keep history
  luteceagenda reset --force --queue-only

  # Only remove cancelled and completed entries
  luteceagenda reset --force --history-only
`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVarP(&resetForce, "force", "f", false, "Skip confirmation prompt")
	resetCmd.Flags().BoolVar(&resetQueueOnly, "queue-only", false, "Only clear scheduled entries")
	resetCmd.Flags().BoolVar(&resetHistoryOnly, "history-only", false, "Only clear cancelled and completed entries")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	if resetQueueOnly && resetHistoryOnly {
		return fmt.Errorf("--queue-only and --history-only are mutually exclusive")
	}

	if err := loadConfig(); err != nil {
		return err
	}

	scope := "queue and history"
	if resetQueueOnly {
		scope = "queue"
	}
	if resetHistoryOnly {
		scope = "history"
	}

	if !resetForce {
		fmt.Printf("This will delete the featured %s. This cannot be undone.\n", scope)
		fmt.Print("Type 'yes' to confirm: ")
		reader := bufio.NewReader(os.Stdin)
		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		if strings.TrimSpace(strings.ToLower(response)) != "yes" {
			fmt.Println("Reset cancelled.")
			return nil
		}
	}

	services, err := newScheduleServices()
	if err != nil {
		return err
	}
	defer services.close()

	ctx := context.Background()
	var count int64
	switch {
	case resetQueueOnly:
		count, err = services.featured.ClearQueueOnly(ctx, "cli")
	case resetHistoryOnly:
		count, err = services.featured.ClearHistoryOnly(ctx, "cli")
	default:
		count, err = services.featured.ClearQueueAndHistory(ctx, "cli")
	}
	if err != nil {
		return fmt.Errorf("clear schedule: %w", err)
	}

	fmt.Printf("Deleted %d entries from the featured %s.\n", count, scope)
	return nil
}

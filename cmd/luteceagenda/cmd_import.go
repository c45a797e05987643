/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/lutece_agenda/internal/db"
	"github.com/friendsincode/lutece_agenda/internal/models"
)

var importCmd = &cobra.Command{
	Use:   "import <events.csv>",
	Short: "Import catalog events from a CSV export",
	Long: `Import catalog events from a CSV export.

The file must carry a header row with the columns:

  event_key,name,venue,category,start_date,end_date,url

Rows are upserted by event_key, so re-importing a refreshed export is safe.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	file, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open import file: %w", err)
	}
	defer file.Close()

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close(database)
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"event_key", "name"} {
		if _, ok := col[required]; !ok {
			return fmt.Errorf("missing required column %q", required)
		}
	}

	field := func(row []string, name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return row[idx]
	}

	var imported, skipped int
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return fmt.Errorf("read line %d: %w", line, err)
		}

		key := field(row, "event_key")
		name := field(row, "name")
		if key == "" || name == "" {
			logger.Warn().Int("line", line).Msg("skipping row without event_key or name")
			skipped++
			continue
		}

		event := models.Event{
			ID:        uuid.NewString(),
			EventKey:  key,
			Name:      name,
			Venue:     field(row, "venue"),
			Category:  field(row, "category"),
			StartDate: field(row, "start_date"),
			EndDate:   field(row, "end_date"),
			URL:       field(row, "url"),
		}

		err = database.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "event_key"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "venue", "category", "start_date", "end_date", "url", "updated_at",
			}),
		}).Create(&event).Error
		if err != nil {
			return fmt.Errorf("import line %d (%s): %w", line, key, err)
		}
		imported++
	}

	fmt.Printf("Imported %d events (%d rows skipped).\n", imported, skipped)
	return nil
}

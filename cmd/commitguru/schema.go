package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/commitguru/internal/config"
	"github.com/rohankatakam/commitguru/internal/storage"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Create missing tables and indexes",
	RunE:  runSchema,
}

func runSchema(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(config.ValidationContextSchema)
	if err != nil {
		return err
	}
	defer logger.Close()

	store, err := storage.Open(cfg.Storage, logger.Component("storage"))
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.EnsureSchema(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Schema ready (%s)\n", cfg.Storage.Type)
	return nil
}

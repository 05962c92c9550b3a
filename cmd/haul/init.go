package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/haul/internal/db"
	"github.com/ALT-F4-LLC/haul/internal/output"
	"github.com/ALT-F4-LLC/haul/internal/render"
)

type initResult struct {
	Path          string   `json:"path"`
	DSN           string   `json:"dsn"`
	Schema        string   `json:"schema"`
	Kinds         []string `json:"kinds"`
	SchemaVersion int      `json:"schema_version"`
	Created       bool     `json:"created"`
}

var initCmd = &cobra.Command{
	Use:         "init",
	Short:       "Create the tables described by the schema file",
	Annotations: map[string]string{"skipDB": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		cfg := getCfg(cmd)

		schema, err := loadSchema(cfg)
		if err != nil {
			return err
		}

		exists, err := cfg.Exists()
		if err != nil {
			return cmdErr(fmt.Errorf("checking database: %w", err), output.ErrGeneral)
		}
		if exists {
			w.Warn("Database already exists at %s", cfg.DSN)
		} else if cfg.IsSQLite() {
			if err := os.MkdirAll(cfg.HaulDir, 0o755); err != nil {
				return cmdErr(fmt.Errorf("creating directory: %w", err), output.ErrGeneral)
			}
		}

		conn, err := db.Open(cfg.DSN)
		if err != nil {
			return cmdErr(fmt.Errorf("opening database: %w", err), output.ErrGeneral)
		}
		defer conn.Close()

		// Table creation is idempotent, so an existing database picks up
		// tables added to the schema since it was created.
		if err := db.Initialize(cmd.Context(), conn, db.DialectOf(cfg.DSN), schema); err != nil {
			return cmdErr(fmt.Errorf("initializing schema: %w", err), output.ErrGeneral)
		}

		schemaVersion, err := db.SchemaVersion(cmd.Context(), conn)
		if err != nil {
			return cmdErr(fmt.Errorf("reading schema version: %w", err), output.ErrGeneral)
		}

		msg := render.StyledText("Initialized haul database", lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")))
		if exists {
			msg = render.StyledText("Database already initialized", lipgloss.NewStyle().Foreground(lipgloss.Color("3")))
		}

		w.Success(initResult{
			Path:          cfg.HaulDir,
			DSN:           cfg.DSN,
			Schema:        cfg.SchemaPath,
			Kinds:         schema.Kinds(),
			SchemaVersion: schemaVersion,
			Created:       !exists,
		}, msg)

		if !exists {
			w.Info("Created %d tables for namespace %s", len(schema.Tables), schema.Namespace)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

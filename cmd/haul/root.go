package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/haul/internal/config"
	"github.com/ALT-F4-LLC/haul/internal/db"
	"github.com/ALT-F4-LLC/haul/internal/logging"
	"github.com/ALT-F4-LLC/haul/internal/metrics"
	"github.com/ALT-F4-LLC/haul/internal/output"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

type contextKey string

const (
	storeKey   contextKey = "store"
	cfgKey     contextKey = "cfg"
	logKey     contextKey = "log"
	metricsKey contextKey = "metrics"
)

// CmdError wraps an error with a machine-readable error code for structured output.
type CmdError struct {
	Err  error
	Code output.ErrorCode
}

func (e *CmdError) Error() string { return e.Err.Error() }

func (e *CmdError) Unwrap() error { return e.Err }

func cmdErr(err error, code output.ErrorCode) *CmdError {
	return &CmdError{Err: err, Code: code}
}

// registry collects the metrics of one invocation.
var (
	registry   = prometheus.NewRegistry()
	cliMetrics = metrics.New(registry)
)

var rootCmd = &cobra.Command{
	Use:     "haul",
	Short:   "Export and import object graphs between databases",
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Resolve()
		if err != nil {
			return cmdErr(err, output.ErrValidation)
		}
		if dsn, _ := cmd.Flags().GetString("db"); dsn != "" {
			cfg.DSN = dsn
		}
		if path, _ := cmd.Flags().GetString("schema"); path != "" {
			cfg.SchemaPath = path
		}
		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			cfg.LogLevel = level
		}

		log, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return cmdErr(err, output.ErrValidation)
		}

		ctx := context.WithValue(cmd.Context(), cfgKey, cfg)
		ctx = context.WithValue(ctx, logKey, log)
		ctx = context.WithValue(ctx, metricsKey, cliMetrics)

		if _, ok := cmd.Annotations["skipDB"]; ok {
			cmd.SetContext(ctx)
			return nil
		}

		exists, err := cfg.Exists()
		if err != nil {
			return cmdErr(fmt.Errorf("checking database: %w", err), output.ErrGeneral)
		}
		if !exists {
			return cmdErr(
				fmt.Errorf("no haul database found at %s, run 'haul init' to create one", cfg.DSN),
				output.ErrNotFound,
			)
		}

		schema, err := loadSchema(cfg)
		if err != nil {
			return err
		}
		conn, err := db.Open(cfg.DSN)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		log.WithFields(logrus.Fields{
			"dialect": db.DialectOf(cfg.DSN),
			"schema":  cfg.SchemaPath,
		}).Debug("opened database")

		store := db.NewStore(conn, db.DialectOf(cfg.DSN), schema)
		cmd.SetContext(context.WithValue(ctx, storeKey, store))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if cfg := getCfg(cmd); cfg != nil && cfg.MetricsFile != "" {
			if err := prometheus.WriteToTextfile(cfg.MetricsFile, registry); err != nil {
				return fmt.Errorf("writing metrics: %w", err)
			}
		}
		if store := getStore(cmd); store != nil {
			return store.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().String("db", "", "Database file or postgres:// URL (default $HAUL_DB)")
	rootCmd.PersistentFlags().String("schema", "", "Schema description file (default $HAUL_SCHEMA)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (default $HAUL_LOG_LEVEL)")
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
}

func loadSchema(cfg *config.Config) (*db.Schema, error) {
	schema, err := db.LoadSchema(cfg.SchemaPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, cmdErr(fmt.Errorf("no schema found at %s", cfg.SchemaPath), output.ErrNotFound)
	}
	if err != nil {
		return nil, cmdErr(err, output.ErrValidation)
	}
	return schema, nil
}

func getWriter(cmd *cobra.Command) *output.Writer {
	jsonMode, _ := cmd.Flags().GetBool("json")
	quietMode, _ := cmd.Flags().GetBool("quiet")
	return output.New(jsonMode, quietMode)
}

func getCfg(cmd *cobra.Command) *config.Config {
	cfg, _ := cmd.Context().Value(cfgKey).(*config.Config)
	return cfg
}

func getStore(cmd *cobra.Command) *db.Store {
	store, _ := cmd.Context().Value(storeKey).(*db.Store)
	return store
}

func getLog(cmd *cobra.Command) *logrus.Logger {
	if log, ok := cmd.Context().Value(logKey).(*logrus.Logger); ok {
		return log
	}
	return logging.Discard()
}

func getMetrics(cmd *cobra.Command) *metrics.Metrics {
	m, _ := cmd.Context().Value(metricsKey).(*metrics.Metrics)
	return m
}

// Execute runs the root command and returns an exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		jsonMode, _ := rootCmd.PersistentFlags().GetBool("json")
		quietMode, _ := rootCmd.PersistentFlags().GetBool("quiet")
		w := output.New(jsonMode, quietMode)

		var ce *CmdError
		if errors.As(err, &ce) {
			return w.Error(ce.Err, ce.Code)
		}
		return w.Fail(err)
	}
	return 0
}

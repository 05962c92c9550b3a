package config

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

const (
	dbFileName     = "haul.db"
	schemaFileName = "schema.yaml"
	envFileName    = ".env"
)

// Config holds resolved configuration for the haul directory, the target
// database and defaults for the CLI.
type Config struct {
	HaulDir     string // resolved .haul directory path
	DSN         string // database: SQLite path or postgres:// URL
	SchemaPath  string // YAML schema description
	Format      string // default container format for export
	LogLevel    string
	LogFormat   string // text or json
	Snapshot    bool   // run exports inside a read transaction
	MetricsFile string // Prometheus textfile written after each command
	EnvVarSet   bool   // whether HAUL_PATH was used
}

// Resolve returns the current configuration. A .env file in the working
// directory or the haul directory is loaded first; variables already set
// in the environment win. HAUL_PATH is checked next, falling back to
// $PWD/.haul.
func Resolve() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	loadEnvFile(filepath.Join(cwd, envFileName))

	var haulDir string
	var envVarSet bool

	if envPath := os.Getenv("HAUL_PATH"); envPath != "" {
		haulDir = envPath
		envVarSet = true
	} else {
		haulDir = filepath.Join(cwd, ".haul")
	}
	loadEnvFile(filepath.Join(haulDir, envFileName))

	snapshot, err := getEnvBool("HAUL_EXPORT_SNAPSHOT", false)
	if err != nil {
		return nil, err
	}

	return &Config{
		HaulDir:     haulDir,
		DSN:         getEnv("HAUL_DB", filepath.Join(haulDir, dbFileName)),
		SchemaPath:  getEnv("HAUL_SCHEMA", filepath.Join(haulDir, schemaFileName)),
		Format:      getEnv("HAUL_FORMAT", "yaml"),
		LogLevel:    getEnv("HAUL_LOG_LEVEL", "warning"),
		LogFormat:   getEnv("HAUL_LOG_FORMAT", "text"),
		Snapshot:    snapshot,
		MetricsFile: os.Getenv("HAUL_METRICS_FILE"),
		EnvVarSet:   envVarSet,
	}, nil
}

func loadEnvFile(path string) {
	if _, err := os.Stat(path); err == nil {
		// godotenv.Load never overrides variables that are already set.
		_ = godotenv.Load(path)
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) (bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, value)
	}
	return b, nil
}

// IsSQLite reports whether the DSN names a SQLite file.
func (c *Config) IsSQLite() bool {
	return !strings.HasPrefix(c.DSN, "postgres://") && !strings.HasPrefix(c.DSN, "postgresql://")
}

// Exists checks if the haul directory and, for SQLite, the database file
// both exist. It returns an error for non-existence failures (e.g.
// permission errors).
func (c *Config) Exists() (bool, error) {
	if _, err := os.Stat(c.HaulDir); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if !c.IsSQLite() {
		return true, nil
	}
	if _, err := os.Stat(c.DSN); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

var (
	defaultAuthor     string
	defaultAuthorOnce sync.Once
)

// DefaultAuthor returns the name recorded as exported_by in container
// metadata. It tries git config user.name first and falls back to the OS
// username. The result is cached for the lifetime of the process.
func DefaultAuthor() string {
	defaultAuthorOnce.Do(func() {
		defaultAuthor = resolveAuthor()
	})
	return defaultAuthor
}

func resolveAuthor() string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, "git", "config", "user.name").Output()
	if err == nil {
		if name := strings.TrimSpace(string(out)); name != "" {
			return name
		}
	}

	u, err := user.Current()
	if err == nil && u.Username != "" {
		return u.Username
	}

	return "unknown"
}

package masat

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/automatesecurity/masat/internal/audit"
	"github.com/automatesecurity/masat/internal/config"
	"github.com/automatesecurity/masat/internal/issues"
	"github.com/automatesecurity/masat/internal/portal"
	"github.com/automatesecurity/masat/internal/storage"
	"github.com/automatesecurity/masat/internal/trend"
)

var (
	flagConfig   string
	flagDB       string
	flagJSON     bool
	flagAuditLog string

	version = "0.1.0"
)

// rootCmd is the base Cobra command for the MASAT CLI.
var rootCmd = &cobra.Command{
	Use:           "masat",
	Short:         "Track issues and drift across attack-surface scans",
	Long:          "MASAT ingests scan runs, deduplicates findings into lifecycle-tracked issues, and reports drift and posture trend per target.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the MASAT CLI. It should be called by the main package.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to a masat.yml config file")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "path to the SQLite database (default ~/.masat/masat.db)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "emit JSON")
	rootCmd.PersistentFlags().StringVar(&flagAuditLog, "audit-log", "", "append manual issue transitions to this JSONL file")
}

func loadConfig() config.FileConfig {
	if flagConfig != "" {
		cfg, err := config.LoadFile(flagConfig)
		if err != nil {
			fmt.Fprintln(os.Stderr, "warning: config:", err)
		}
		return cfg
	}
	cfg, _ := config.LoadLocal(".")
	return cfg
}

// resolveDBPath applies flag > config > default precedence.
func resolveDBPath(cfg config.FileConfig) string {
	if flagDB != "" {
		return flagDB
	}
	if cfg.DB != nil && *cfg.DB != "" {
		return *cfg.DB
	}
	return config.DefaultDBPath()
}

// openStore opens the SQLite store. Only the default MASAT directory is
// auto-created; custom paths must point into an existing directory.
func openStore(path string) (*storage.Gorm, error) {
	if path == config.DefaultDBPath() {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	} else if dir := filepath.Dir(path); dir != "" {
		if st, err := os.Stat(dir); err != nil || !st.IsDir() {
			return nil, fmt.Errorf("database directory %s must already exist", dir)
		}
	}
	return storage.OpenGorm(path)
}

// buildService assembles the portal service from flags and config.
func buildService() (*portal.Service, error) {
	cfg := loadConfig()
	store, err := openStore(resolveDBPath(cfg))
	if err != nil {
		return nil, err
	}

	opts := portal.Options{}
	if cfg.DriftConcurrency != nil {
		opts.DriftLimit = *cfg.DriftConcurrency
	}
	auditPath := flagAuditLog
	if auditPath == "" && cfg.AuditLog != nil {
		auditPath = *cfg.AuditLog
	}
	if auditPath != "" {
		opts.Audit = audit.NewLog(auditPath)
	}

	svc := portal.New(issues.NewService(store), store, opts)
	return svc.WithTrend(trend.NewAggregator(store)), nil
}

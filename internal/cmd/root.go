// Package cmd wires the cobra command tree over the planner facade.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/congresstwin/congresstwin/internal/config"
	"github.com/congresstwin/congresstwin/internal/errors"
	"github.com/congresstwin/congresstwin/internal/lockmgr"
	"github.com/congresstwin/congresstwin/internal/log"
	"github.com/congresstwin/congresstwin/internal/planner"
	"github.com/congresstwin/congresstwin/internal/repo"
)

var (
	cfgFile  string
	dbPath   string
	actorID  string
	memStore bool
)

var rootCmd = &cobra.Command{
	Use:   "congresstwin",
	Short: "Event program planner and simulation engine",
	Long: `congresstwin manages congress planning programs as dependency graphs
and answers schedule questions about them: critical paths, Monte Carlo
end-date distributions, per-task risk intelligence, and the impact of
hypothetical changes. Plans, locks, events and proposed actions persist
in SQLite.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command under ctx.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&actorID, "user", "cli", "acting user id for mutations and locks")
	rootCmd.PersistentFlags().BoolVar(&memStore, "mem", false, "use the in-memory store (no persistence)")
}

// withService loads the config, opens the store and hands a ready
// facade to fn, closing the store afterwards.
func withService(cmd *cobra.Command, fn func(ctx context.Context, svc *planner.Service) error) error {
	ctx := cmd.Context()
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	logCfg := log.DefaultConfig()
	logCfg.Level = log.ParseLevel(cfg.Log.Level)
	logCfg.Format = log.ParseFormat(cfg.Log.Format)
	logger := log.New(logCfg)

	var store repo.DB
	if memStore || cfg.DBPath == "" {
		store = repo.NewMemory()
	} else {
		store, err = repo.OpenSQLite(cfg.DBPath)
		if err != nil {
			return err
		}
	}
	defer store.Close()

	locks := lockmgr.New(lockmgr.WithDefaultTTL(cfg.Lock.TTL.Std()))
	svc := planner.New(store, locks, logger).
		WithSimulationDefaults(cfg.Simulation.Iterations, cfg.Simulation.QueuingK).
		WithAttentionBound(cfg.AttentionListBound)
	if err := svc.RestoreLocks(ctx); err != nil {
		return err
	}
	return fn(ctx, svc)
}

// printJSON renders v as indented JSON on stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseTime parses an RFC3339 instant, accepting a bare date too.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, errors.Newf(errors.KindValidation, errors.ErrCodePlanInvalid,
			"invalid instant %q: want RFC3339 or YYYY-MM-DD", s)
	}
	return t.UTC(), nil
}

// parseTimeFlag parses an optional instant flag.
func parseTimeFlag(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseTime(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func fail(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}

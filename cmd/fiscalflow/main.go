// FiscalFlow ingests fiscal measurement submissions and keeps the
// reconciliation and cross-validation verdicts current.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fiscalflow/fiscalflow/internal/config"
	"github.com/fiscalflow/fiscalflow/internal/infrastructure/db"
	applog "github.com/fiscalflow/fiscalflow/internal/log"
	"github.com/fiscalflow/fiscalflow/internal/persistence"
)

const (
	appName = "fiscalflow"
	version = "v1.2.0"
)

// Exit codes: 1 configuration problem, 2 batch finished with failed files,
// 3 anything else.
const (
	exitConfig  = 1
	exitPartial = 2
	exitFatal   = 3
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Fiscal measurement ingestion and validation",
	Long: `FiscalFlow stages multiphase measurement reports by content fingerprint,
parses the recognized shapes into one canonical fact model, reconciles
hourly statements against their daily totals and cross-validates every
metric across the independent report sources.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	flagConfig   string
	flagDatabase string
	flagLogLevel string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&flagDatabase, "db", "", "SQLite database path override")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level override (trace|debug|info|warn|error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(exitCode(err))
	}
}

// exitError carries a process exit code through cobra's error return.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitFatal
}

// loadConfig resolves the effective configuration from file and flags and
// installs the logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, &exitError{code: exitConfig, err: err}
	}
	if flagDatabase != "" {
		cfg.DatabasePath = flagDatabase
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	applog.Setup(cfg.LogLevel)
	return cfg, nil
}

// openStore loads the configuration and opens the backing store. The caller
// owns the manager and must Close it.
func openStore() (*config.Config, *db.Manager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	manager, err := db.NewManager(db.FromAppConfig(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return cfg, manager, nil
}

// signalContext cancels on SIGINT or SIGTERM so a long batch can land its
// terminal status before the process exits.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

const dateKeyFormat = "2006-01-02"

// argDateRange builds the range from positional <from> [<to>] arguments.
// A missing <to> means today.
func argDateRange(args []string) (persistence.DateRange, error) {
	r := persistence.DateRange{To: time.Now().UTC().Format(dateKeyFormat)}
	if _, err := time.Parse(dateKeyFormat, args[0]); err != nil {
		return r, &exitError{code: exitConfig, err: fmt.Errorf("invalid date %q, want YYYY-MM-DD", args[0])}
	}
	r.From = args[0]
	if len(args) > 1 {
		if _, err := time.Parse(dateKeyFormat, args[1]); err != nil {
			return r, &exitError{code: exitConfig, err: fmt.Errorf("invalid date %q, want YYYY-MM-DD", args[1])}
		}
		r.To = args[1]
	}
	if r.From > r.To {
		return r, &exitError{code: exitConfig, err: fmt.Errorf("range start %s is after end %s", r.From, r.To)}
	}
	return r, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

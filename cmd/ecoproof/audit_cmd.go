package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/ecoproof/ecoproof/pkg/config"
	"github.com/ecoproof/ecoproof/pkg/ledger"
)

// journalReport is the verify-journal result.
type journalReport struct {
	Verified bool   `json:"verified"`
	Entries  int    `json:"entries"`
	Head     string `json:"head"`
	Reason   string `json:"reason,omitempty"`
}

// loadCLIConfig reads the environment and applies a --db override, which
// selects the sqlite backend at that path.
func loadCLIConfig(dbPath string, stderr io.Writer) (*config.Config, bool) {
	cfg := config.Load()
	if dbPath != "" {
		cfg.StorageBackend = config.BackendSQLite
		cfg.SQLitePath = dbPath
	}
	if err := cfg.Validate(); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil, false
	}
	setupLogger(stderr, cfg.LogLevel, cfg.LogFormat)
	return cfg, true
}

// runVerifyJournalCmd implements `ecoproof verify-journal`.
//
// Exit codes:
//
//	0 = chain intact
//	1 = chain broken
//	2 = runtime error
func runVerifyJournalCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify-journal", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		dbPath     string
		jsonOutput bool
	)
	cmd.StringVar(&dbPath, "db", "", "Path to a sqlite database (overrides STORAGE_BACKEND)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the report as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg, ok := loadCLIConfig(dbPath, stderr)
	if !ok {
		return 2
	}
	if cfg.StorageBackend == config.BackendMemory {
		_, _ = fmt.Fprintln(stderr, "Error: the memory backend has no persisted journal; set STORAGE_BACKEND or --db")
		return 2
	}

	ctx := context.Background()
	db, err := openDB(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer func() { _ = db.Close() }()

	sink := ledger.NewSQLSink(db)
	if err := sink.Init(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	entries, err := sink.Load(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	report := journalReport{Verified: true, Entries: len(entries), Head: ledger.GenesisHash}
	if n := len(entries); n > 0 {
		report.Head = entries[n-1].ContentHash
	}
	if err := ledger.VerifyEntries(entries); err != nil {
		report.Verified = false
		report.Reason = err.Error()
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(report, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else if report.Verified {
		_, _ = fmt.Fprintf(stdout, "Journal verification PASSED\nEntries: %d\nHead: %s\n", report.Entries, report.Head)
	} else {
		_, _ = fmt.Fprintf(stdout, "Journal verification FAILED\nEntries: %d\nReason: %s\n", report.Entries, report.Reason)
	}
	if !report.Verified {
		return 1
	}
	return 0
}

// runExportCmd implements `ecoproof export`, archiving an action dossier.
func runExportCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("export", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		dbPath   string
		actionID uint64
	)
	cmd.StringVar(&dbPath, "db", "", "Path to a sqlite database (overrides STORAGE_BACKEND)")
	cmd.Uint64Var(&actionID, "action", 0, "Action id to export (REQUIRED)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if actionID == 0 {
		_, _ = fmt.Fprintln(stderr, "Error: --action is required")
		return 2
	}
	return withServices(dbPath, stdout, stderr, func(ctx context.Context, svc *services) (string, error) {
		return svc.exporter.ExportDossier(ctx, actionID)
	})
}

// runRetireCertCmd implements `ecoproof retire-cert`.
func runRetireCertCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("retire-cert", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		dbPath string
		serial uint64
	)
	cmd.StringVar(&dbPath, "db", "", "Path to a sqlite database (overrides STORAGE_BACKEND)")
	cmd.Uint64Var(&serial, "serial", 0, "Retirement serial (REQUIRED)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if serial == 0 {
		_, _ = fmt.Fprintln(stderr, "Error: --serial is required")
		return 2
	}
	return withServices(dbPath, stdout, stderr, func(ctx context.Context, svc *services) (string, error) {
		return svc.exporter.ExportRetirement(ctx, serial)
	})
}

func withServices(dbPath string, stdout, stderr io.Writer, fn func(context.Context, *services) (string, error)) int {
	cfg, ok := loadCLIConfig(dbPath, stderr)
	if !ok {
		return 2
	}
	ctx := context.Background()
	svc, err := openServices(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer svc.Close()

	addr, err := fn(ctx, svc)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, addr)
	return 0
}

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const idempotencyTTL = 24 * time.Hour

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// serve is a variable so tests can stub the server.
var serve = runServe

// Run dispatches a subcommand and returns the process exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return serve(nil, stdout, stderr)
	}

	switch args[1] {
	case "serve", "server":
		return serve(args[2:], stdout, stderr)
	case "verify-journal":
		return runVerifyJournalCmd(args[2:], stdout, stderr)
	case "export":
		return runExportCmd(args[2:], stdout, stderr)
	case "retire-cert":
		return runRetireCertCmd(args[2:], stdout, stderr)
	case "token":
		return runTokenCmd(args[2:], stdout, stderr)
	case "version", "--version":
		_, _ = fmt.Fprintf(stdout, "ecoproof %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		if strings.HasPrefix(args[1], "-") {
			return serve(args[1:], stdout, stderr)
		}
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

const (
	colorReset = "\033[0m"
	colorBold  = "\033[1m"
	colorCyan  = "\033[36m"
	colorGreen = "\033[32m"
)

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintf(w, "%secoproof %s%s\n", colorBold, version, colorReset)
	_, _ = fmt.Fprintln(w, "Verification and settlement for environmental actions.")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintf(w, "%sUSAGE:%s\n", colorBold, colorReset)
	_, _ = fmt.Fprintln(w, "  ecoproof <command> [flags]")
	_, _ = fmt.Fprintln(w, "")

	printSection(w, "SERVER")
	printCommand(w, "serve", "Run the HTTP API (default)")

	printSection(w, "AUDIT")
	printCommand(w, "verify-journal", "Check the persisted journal hash chain (--json)")
	printCommand(w, "export", "Archive an action dossier (--action)")
	printCommand(w, "retire-cert", "Archive a retirement certificate (--serial)")

	printSection(w, "UTILITIES")
	printCommand(w, "token", "Mint a bearer token for an account (--account, --ttl)")
	printCommand(w, "version", "Show version information")
	printCommand(w, "help", "Show this help")
	_, _ = fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	_, _ = fmt.Fprintf(w, "%s%s:%s\n", colorBold+colorCyan, title, colorReset)
}

func printCommand(w io.Writer, name, desc string) {
	_, _ = fmt.Fprintf(w, "  %s%-16s%s %s\n", colorGreen, name, colorReset, desc)
}

// setupLogger installs the process-wide slog handler.
func setupLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(h).With("service", "ecoproof")
	slog.SetDefault(logger)
	return logger
}

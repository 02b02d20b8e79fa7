package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ecoproof/ecoproof/pkg/auth"
)

// runTokenCmd mints an HS256 bearer token for an account.
func runTokenCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("token", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		account string
		ttl     time.Duration
		secret  string
	)
	cmd.StringVar(&account, "account", "", "Account the token authenticates (REQUIRED)")
	cmd.DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	cmd.StringVar(&secret, "secret", os.Getenv("JWT_HMAC_SECRET"), "HMAC secret (defaults to JWT_HMAC_SECRET)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if account == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --account is required")
		return 2
	}

	v := auth.NewJWTValidator([]byte(secret))
	if v == nil {
		_, _ = fmt.Fprintln(stderr, "Error: no secret; set JWT_HMAC_SECRET or --secret")
		return 2
	}
	tok, err := v.Issue(account, ttl)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	_, _ = fmt.Fprintln(stdout, tok)
	return 0
}

package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoproof/ecoproof/pkg/artifacts"
	"github.com/ecoproof/ecoproof/pkg/auth"
	"github.com/ecoproof/ecoproof/pkg/config"
	"github.com/ecoproof/ecoproof/pkg/contracts"
	"github.com/ecoproof/ecoproof/pkg/ledger"
)

var envKeys = []string{
	"PORT", "LOG_LEVEL", "LOG_FORMAT", "STORAGE_BACKEND", "DATABASE_URL", "SQLITE_PATH",
	"REDIS_ADDR", "KAFKA_BROKERS", "ARTIFACT_STORAGE_TYPE", "ARTIFACT_DIR",
	"ENGINE_PARAMS_FILE", "JWT_HMAC_SECRET", "ADMIN_ACCOUNT", "CORS_ORIGINS",
}

func cleanEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	t.Setenv("LOG_LEVEL", "ERROR")
}

func run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := Run(append([]string{"ecoproof"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Dispatch(t *testing.T) {
	var served [][]string
	orig := serve
	serve = func(args []string, _, _ io.Writer) int {
		served = append(served, args)
		return 0
	}
	t.Cleanup(func() { serve = orig })

	code, _, _ := run()
	assert.Equal(t, 0, code)
	code, _, _ = run("serve", "-port", "9999")
	assert.Equal(t, 0, code)
	code, _, _ = run("-port", "9998")
	assert.Equal(t, 0, code)
	require.Len(t, served, 3)
	assert.Empty(t, served[0])
	assert.Equal(t, []string{"-port", "9999"}, served[1])
	assert.Equal(t, []string{"-port", "9998"}, served[2])

	code, out, _ := run("version")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "ecoproof "+version)

	code, out, _ = run("help")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "verify-journal")

	code, _, errOut := run("frobnicate")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "Unknown command: frobnicate")
}

func TestTokenCmd(t *testing.T) {
	cleanEnv(t)

	code, out, _ := run("token", "--account", "acct:alice", "--secret", "s3cret", "--ttl", "10m")
	require.Equal(t, 0, code)

	p, err := auth.NewJWTValidator([]byte("s3cret")).Validate(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "acct:alice", p.Account)
	assert.Equal(t, auth.Issuer, p.Issuer)

	code, _, _ = run("token", "--secret", "s3cret")
	assert.Equal(t, 2, code, "account is required")
	code, _, errOut := run("token", "--account", "acct:alice")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "no secret")
}

func TestVerifyJournalCmd(t *testing.T) {
	cleanEnv(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	sink := ledger.NewSQLSink(db)
	require.NoError(t, sink.Init(ctx))
	j := ledger.NewJournal(sink)
	at := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	_, err = j.Append(ctx, contracts.EventActionSubmitted, 1, "acct:alice", at, map[string]any{"quantity": 10})
	require.NoError(t, err)
	_, err = j.Append(ctx, contracts.EventActionVerified, 1, "acct:verifier", at.Add(time.Minute), nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	code, out, _ := run("verify-journal", "--db", path, "--json")
	require.Equal(t, 0, code, out)
	var report journalReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.Verified)
	assert.Equal(t, 2, report.Entries)
	assert.Equal(t, j.Head(), report.Head)

	db, err = sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE journal_entries SET data = '{"quantity":11}' WHERE sequence = 1`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	code, out, _ = run("verify-journal", "--db", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "FAILED")
}

func TestVerifyJournalCmd_MemoryBackend(t *testing.T) {
	cleanEnv(t)
	code, _, errOut := run("verify-journal")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "memory backend")
}

func TestExportCommands_SQLite(t *testing.T) {
	cleanEnv(t)
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "ecoproof.db")
	artifactDir := filepath.Join(dir, "artifacts")
	t.Setenv("ARTIFACT_DIR", artifactDir)
	t.Setenv("ADMIN_ACCOUNT", "acct:admin")

	cfg := config.Load()
	cfg.StorageBackend = config.BackendSQLite
	cfg.SQLitePath = dbPath
	svc, err := openServices(ctx, cfg)
	require.NoError(t, err)

	e := svc.engine
	require.NoError(t, e.AddVerifier(ctx, "acct:admin", "acct:verifier"))
	p := e.Config()
	p.InstantSettlement = true
	require.NoError(t, e.SetConfig(ctx, "acct:admin", p))
	id, err := e.Submit(ctx, "acct:alice", contracts.Claim{
		Description:    "Peatland rewetting",
		ProofReference: "ipfs://bafy-peat",
		CreditType:     contracts.CreditRemoval,
		Quantity:       5_000,
	})
	require.NoError(t, err)
	require.NoError(t, e.Verify(ctx, "acct:verifier", id, 50))
	rec, err := e.Retire(ctx, "acct:alice", []uint64{id}, []uint64{2_000}, "offset", "Alice Ltd")
	require.NoError(t, err)
	svc.Close()

	archive, err := artifacts.NewFSArchive(artifactDir)
	require.NoError(t, err)

	code, out, errOut := run("export", "--db", dbPath, "--action", "1")
	require.Equal(t, 0, code, errOut)
	ok, err := archive.Exists(ctx, strings.TrimSpace(out))
	require.NoError(t, err)
	assert.True(t, ok)

	code, out, errOut = run("retire-cert", "--db", dbPath, "--serial", "1")
	require.Equal(t, 0, code, errOut)
	ok, err = archive.Exists(ctx, strings.TrimSpace(out))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(1), rec.Serial)

	code, _, _ = run("retire-cert", "--db", dbPath, "--serial", "7")
	assert.Equal(t, 1, code)
	code, _, _ = run("export", "--db", dbPath)
	assert.Equal(t, 2, code)

	code, _, errOut = run("verify-journal", "--db", dbPath)
	assert.Equal(t, 0, code, errOut)
}

func TestOpenServices_SQLiteKeepsTokensAcrossRestart(t *testing.T) {
	cleanEnv(t)
	ctx := context.Background()
	t.Setenv("ADMIN_ACCOUNT", "acct:admin")

	cfg := config.Load()
	cfg.StorageBackend = config.BackendSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "ecoproof.db")
	cfg.Artifacts.Dir = t.TempDir()

	svc, err := openServices(ctx, cfg)
	require.NoError(t, err)
	e := svc.engine
	require.NoError(t, e.AddVerifier(ctx, "acct:admin", "acct:verifier"))
	p := e.Config()
	p.InstantSettlement = true
	p.BufferBasisPoints = 0
	require.NoError(t, e.SetConfig(ctx, "acct:admin", p))
	id, err := e.Submit(ctx, "acct:alice", contracts.Claim{
		Description:    "Mangrove restoration",
		ProofReference: "ipfs://bafy-mangrove",
		CreditType:     contracts.CreditRemoval,
		Quantity:       1_000,
	})
	require.NoError(t, err)
	require.NoError(t, e.Verify(ctx, "acct:verifier", id, 75))
	svc.Close()

	svc, err = openServices(ctx, cfg)
	require.NoError(t, err)
	defer svc.Close()
	bal, err := svc.engine.TokenBalance(ctx, "acct:alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(75), bal)
	supply, err := svc.engine.TotalSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(75), supply)
}

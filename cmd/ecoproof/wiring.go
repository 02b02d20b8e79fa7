package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/lib/pq" // Postgres driver
	_ "modernc.org/sqlite"

	"github.com/ecoproof/ecoproof/pkg/access"
	"github.com/ecoproof/ecoproof/pkg/api"
	"github.com/ecoproof/ecoproof/pkg/artifacts"
	"github.com/ecoproof/ecoproof/pkg/bond"
	"github.com/ecoproof/ecoproof/pkg/config"
	"github.com/ecoproof/ecoproof/pkg/engine"
	"github.com/ecoproof/ecoproof/pkg/events"
	"github.com/ecoproof/ecoproof/pkg/export"
	"github.com/ecoproof/ecoproof/pkg/ledger"
	"github.com/ecoproof/ecoproof/pkg/registry"
	"github.com/ecoproof/ecoproof/pkg/retirement"
	"github.com/ecoproof/ecoproof/pkg/store"
	"github.com/ecoproof/ecoproof/pkg/token"
)

// services is everything a command needs, opened from one config.
type services struct {
	db       *sql.DB
	engine   *engine.Engine
	journal  *ledger.Journal
	archive  artifacts.Archive
	exporter *export.Exporter
	idem     api.IdempotencyStorer
	cursor   events.Cursor
	closers  []func() error
}

func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
}

// openDB opens the SQL database for the configured backend, or returns nil
// for the memory backend.
func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.StorageBackend {
	case config.BackendMemory:
		return nil, nil
	case config.BackendSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		db, err = sql.Open("sqlite", cfg.SQLitePath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	case config.BackendPostgres:
		db, err = sql.Open("postgres", cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.StorageBackend, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.StorageBackend, err)
	}
	return db, nil
}

type initer interface {
	Init(ctx context.Context) error
}

// openServices wires the engine over the configured backends and applies
// the genesis document on a fresh store.
func openServices(ctx context.Context, cfg *config.Config) (*services, error) {
	engineFile, err := config.LoadEngineParams(cfg.EngineParamsFile)
	if err != nil {
		return nil, err
	}
	policy, err := engineFile.Policy()
	if err != nil {
		return nil, fmt.Errorf("admission policy: %w", err)
	}

	s := &services{}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	deps := engine.Deps{Policy: policy}
	if db != nil {
		s.db = db
		s.closers = append(s.closers, db.Close)

		actions := store.NewSQLStore(db)
		bonds := bond.NewPostgresStorage(db)
		roles := access.NewSQLStorage(db)
		refs := registry.NewSQLBackend(db)
		retired := retirement.NewSQLStore(db)
		tokens := token.NewSQLStorage(db)
		sink := ledger.NewSQLSink(db)
		idem := api.NewSQLIdempotencyStore(db, idempotencyTTL)
		cursor := events.NewSQLCursor(db, "kafka")
		for _, in := range []initer{actions, bonds, roles, refs, retired, tokens, sink, idem, cursor} {
			if err := in.Init(ctx); err != nil {
				return nil, fmt.Errorf("init schema: %w", err)
			}
		}

		s.journal = ledger.NewJournal(sink)
		if err := s.journal.Restore(ctx); err != nil {
			return nil, err
		}
		deps.Actions = actions
		deps.Bonds = bonds
		deps.Roles = roles
		deps.References = refs
		deps.Retirements = retired
		deps.Tokens = tokens
		s.idem = idem
		s.cursor = cursor
	} else {
		s.journal = ledger.NewJournal(nil)
		s.idem = api.NewIdempotencyStore(idempotencyTTL)
		s.cursor = &events.MemoryCursor{}
	}
	deps.Journal = s.journal

	// Redis, when configured, holds token balances in place of the SQL tables.
	if cfg.RedisAddr != "" {
		client := token.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		s.closers = append(s.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		deps.Tokens = token.NewRedisStorage(client, "ecoproof")
	}

	admin := engineFile.Admin
	if cfg.AdminAccount != "" {
		admin = cfg.AdminAccount
	}
	params := engineFile.Params
	s.engine, err = engine.Open(ctx, deps, engine.Genesis{
		Admin:     admin,
		Params:    &params,
		Verifiers: engineFile.Verifiers,
		Oracles:   engineFile.Oracles,
	})
	if err != nil {
		return nil, fmt.Errorf("open engine: %w", err)
	}

	s.archive, err = artifacts.Open(ctx, artifactOptions(cfg.Artifacts))
	if err != nil {
		return nil, fmt.Errorf("open artifact archive: %w", err)
	}
	if c, isCloser := s.archive.(io.Closer); isCloser {
		s.closers = append(s.closers, c.Close)
	}
	s.exporter = export.New(s.engine, s.archive)

	ok = true
	return s, nil
}

func artifactOptions(c config.ArtifactConfig) artifacts.Options {
	opts := artifacts.Options{
		Kind: artifacts.Kind(c.Type),
		Dir:  c.Dir,
		S3: artifacts.S3Config{
			Bucket:   c.S3Bucket,
			Region:   c.S3Region,
			Endpoint: c.S3Endpoint,
			Prefix:   c.S3Prefix,
		},
	}
	opts.GCS.Bucket = c.GCSBucket
	opts.GCS.Prefix = c.GCSPrefix
	return opts
}

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ehr/carewizard/internal/config"
	"github.com/ehr/carewizard/internal/domain/careplan"
	"github.com/ehr/carewizard/internal/platform/blobstore"
	"github.com/ehr/carewizard/internal/platform/db"
	"github.com/ehr/carewizard/internal/platform/draft"
	"github.com/ehr/carewizard/internal/platform/wizard"
)

const draftSaveTimeout = 5 * time.Second

// app holds the wired care plan stack shared by serve, fill and drafts.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	pool     *pgxpool.Pool
	backend  draft.Backend
	sealed   *draft.Sealed
	blobs    blobstore.BlobStore
	sessions *wizard.Manager
	svc      *careplan.Service
	checks   []db.Check
	closers  []func()
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// loadConfig loads and validates the environment configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newApp connects storage and builds the wizard service. The caller must
// Close the result.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: logger}

	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		a.closers = append(a.closers, pool.Close)
		a.checks = append(a.checks, db.PoolCheck("postgres", pool))
		logger.Info().Msg("connected to database")
	}

	if err := a.openDrafts(); err != nil {
		a.Close()
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		a.Close()
		return nil, err
	}
	catalog, err := careplan.LoadCatalog()
	if err != nil {
		a.Close()
		return nil, err
	}

	var repo careplan.CarePlanRepository
	var submitter careplan.Submitter
	switch cfg.SubmitMode {
	case "remote":
		submitter = careplan.NewRemoteSubmitter(cfg.SubmitURL, cfg.SubmitToken, cfg.SubmitTimeout)
	default:
		if a.pool != nil {
			repo = careplan.NewCarePlanRepoPG(a.pool)
		} else {
			repo = careplan.NewCarePlanRepoMemory()
			logger.Warn().Msg("no DATABASE_URL: submitted care plans are kept in memory")
		}
		submitter = careplan.NewLocalSubmitter(repo)
	}

	a.blobs = blobstore.NewInMemoryBlobStore()
	store := draft.NewStore(a.backend, careplan.Schema, logger)
	a.sessions = wizard.NewManager(catalog.Gate, store, cfg.SessionIdleTTL, wizard.Options{
		Debounce:    cfg.DraftDebounce,
		Logger:      logger,
		SaveTimeout: draftSaveTimeout,
	})
	dispatcher := careplan.NewDispatcher(a.blobs, submitter, careplan.AttachmentPath, logger)
	a.svc = careplan.NewService(a.sessions, catalog, careplan.NewPipeline(loc), dispatcher, repo, logger)
	return a, nil
}

// openDrafts selects the draft backend named by DRAFT_BACKEND and seals it
// when a HIPAA key is configured.
func (a *app) openDrafts() error {
	cfg := a.cfg
	switch cfg.DraftBackend {
	case "postgres":
		if a.pool == nil {
			return fmt.Errorf("DRAFT_BACKEND=postgres requires DATABASE_URL")
		}
		a.backend = draft.NewPostgresBackend(a.pool, cfg.DraftMaxBytes)
	case "sqlite":
		sq, err := draft.OpenSQLite(cfg.DraftSQLitePath, cfg.DraftMaxBytes)
		if err != nil {
			return err
		}
		a.backend = sq
		a.closers = append(a.closers, func() { sq.Close() })
		a.checks = append(a.checks, db.Check{Name: "drafts", Ping: sq.Ping})
	default:
		a.backend = draft.NewMemoryBackend(cfg.DraftMaxBytes)
	}

	keyring, err := cfg.Keyring()
	if err != nil {
		return err
	}
	if keyring != nil {
		a.sealed = draft.NewSealed(a.backend, keyring)
		a.backend = a.sealed
		a.log.Info().Int("key_version", keyring.CurrentVersion()).Msg("drafts sealed at rest")
	}
	a.log.Info().Str("backend", cfg.DraftBackend).Msg("draft store ready")
	return nil
}

// Close flushes live sessions and releases storage in reverse order.
func (a *app) Close() {
	if a.sessions != nil {
		a.sessions.Shutdown()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

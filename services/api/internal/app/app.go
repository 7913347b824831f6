package app

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sofia/internal/metrics"
	"sofia/internal/usertoken"
	"sofia/internal/util"
	"sofia/pkg/alignment"
	"sofia/pkg/clinical"
	"sofia/pkg/docpipe"
	"sofia/pkg/secure"
	"sofia/pkg/storage"
	"sofia/pkg/store"
)

const presignExpiry = 15 * time.Minute

// Config holds runtime configuration for the core application.
// Store overrides DatabaseURL. Archive, Notifier and Metrics are optional.
type Config struct {
	DatabaseURL    string
	Store          store.Store
	Tokens         *usertoken.Manager
	EncryptionKey  string
	Archive        storage.Archive
	Notifier       clinical.Notifier
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	MaxUploadBytes int64
	AdminNames     []string
	Scorer         *alignment.Scorer
	Clock          func() time.Time
	NewID          func() string
}

// App is the core application service wiring together storage and domain logic.
type App struct {
	store    store.Store
	tokens   *usertoken.Manager
	box      *secure.Box
	archive  storage.Archive
	pipeline *docpipe.Pipeline
	notifier clinical.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	scorer   *alignment.Scorer
	monitor  *alignment.Monitor
	admins   map[string]struct{}
	now      func() time.Time
	newID    func() string
}

// New constructs the application with database-backed storage.
func New(cfg Config) (*App, error) {
	if cfg.Tokens == nil {
		return nil, errors.New("token manager required")
	}
	box, err := secure.NewBox(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("init transcript encryption: %w", err)
	}
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = util.NewEntityID
	}
	scorer := cfg.Scorer
	if scorer == nil {
		scorer = alignment.NewScorer(alignment.WithClock(now))
	}

	pipelineOpts := []docpipe.Option{
		docpipe.WithCounter(cfg.Metrics),
		docpipe.WithLogger(logger),
		docpipe.WithMaxBytes(cfg.MaxUploadBytes),
		docpipe.WithClock(now),
	}
	if cfg.Archive != nil {
		pipelineOpts = append(pipelineOpts, docpipe.WithArchive(cfg.Archive))
	}

	admins := make(map[string]struct{}, len(cfg.AdminNames))
	for _, name := range cfg.AdminNames {
		if name = strings.TrimSpace(name); name != "" {
			admins[name] = struct{}{}
		}
	}

	return &App{
		store:    dataStore,
		tokens:   cfg.Tokens,
		box:      box,
		archive:  cfg.Archive,
		pipeline: docpipe.New(dataStore, newID, pipelineOpts...),
		notifier: cfg.Notifier,
		metrics:  cfg.Metrics,
		logger:   logger,
		scorer:   scorer,
		monitor:  alignment.NewMonitor(alignment.DefaultMonitorSize),
		admins:   admins,
		now:      now,
		newID:    newID,
	}, nil
}

// MaxUploadBytes is the largest document the pipeline accepts.
func (a *App) MaxUploadBytes() int64 {
	return a.pipeline.MaxBytes()
}

func (a *App) timestamp() time.Time {
	return a.now().UTC()
}

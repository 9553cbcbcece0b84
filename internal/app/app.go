// Package app holds the core application service for the library circulation
// API: catalog and membership management, the loan lifecycle, fines, and the
// overdue sweep. Persistence and transactional invariants live in pkg/store;
// this layer validates input, generates identities, and emits events.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"librarian/internal/stafftoken"
	"librarian/pkg/domain"
	"librarian/pkg/queue"
	"librarian/pkg/storage"
	"librarian/pkg/store"
)

const sweepLockKey = "library:sweep:lock"

// EventSink receives circulation events. *queue.Publisher satisfies it; tests
// plug in a recorder.
type EventSink interface {
	Publish(ctx context.Context, ev queue.Event) error
}

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string
	Store       store.Store

	Events  EventSink
	Objects storage.ObjectStore

	RedisAddr     string
	RedisPassword string

	JWTSecret string
	JWTTTL    time.Duration

	FineRatePerDayCents int64
	LoanPeriodDays      int
}

// App is the core application service.
type App struct {
	store   store.Store
	events  EventSink
	objects storage.ObjectStore
	tokens  *stafftoken.Manager

	sweepRedis *redis.Client

	finePolicy    domain.FinePolicy
	loanPeriod    int
	presignExpiry time.Duration
}

// New constructs the application. When cfg.Store is nil a Postgres-backed
// store is opened from cfg.DatabaseURL.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	tokens, err := stafftoken.New(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		return nil, err
	}
	rate := cfg.FineRatePerDayCents
	if rate <= 0 {
		rate = 50
	}
	loanPeriod := cfg.LoanPeriodDays
	if loanPeriod <= 0 {
		loanPeriod = 14
	}
	a := &App{
		store:         dataStore,
		events:        cfg.Events,
		objects:       cfg.Objects,
		tokens:        tokens,
		finePolicy:    domain.PerDayFine(rate),
		loanPeriod:    loanPeriod,
		presignExpiry: 15 * time.Minute,
	}
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		a.sweepRedis = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.RedisPassword,
		})
	}
	return a, nil
}

// Store exposes the underlying store, mainly for bootstrap code.
func (a *App) Store() store.Store { return a.store }

func (a *App) publish(ctx context.Context, ev queue.Event) {
	if a.events == nil {
		return
	}
	if err := a.events.Publish(ctx, ev); err != nil {
		slog.Warn("publish event failed", "type", ev.Type, "err", err)
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrValidation, fmt.Sprintf(format, args...))
}

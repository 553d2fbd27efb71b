package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/curvelaunch/botworker/internal/config"
	"github.com/curvelaunch/botworker/internal/domain"
	"github.com/curvelaunch/botworker/internal/store"
)

// CredentialOpener decrypts a stored credential envelope.
type CredentialOpener interface {
	Open(envelope string) (string, error)
}

// LoadedBot is a snapshot of one live session for the status endpoint.
type LoadedBot struct {
	TokenMint string `json:"token"`
	Users     int    `json:"users"`
}

// Reloader keeps the set of live bot sessions consistent with the
// registry's ACTIVE records. It is the single writer of the loaded set;
// the status endpoint only reads snapshots.
type Reloader struct {
	repo         store.Repository
	opener       CredentialOpener
	gen          Generator
	newTransport TransportFactory
	limits       config.RateLimitConfig
	interval     time.Duration

	mu     sync.Mutex
	loaded map[string]*Session

	reconciles atomic.Int64
}

// NewReloader creates a reloader with an empty loaded set.
func NewReloader(repo store.Repository, opener CredentialOpener, gen Generator, factory TransportFactory, limits config.RateLimitConfig, interval time.Duration) *Reloader {
	return &Reloader{
		repo:         repo,
		opener:       opener,
		gen:          gen,
		newTransport: factory,
		limits:       limits,
		interval:     interval,
		loaded:       make(map[string]*Session),
	}
}

// Start reconciles once immediately, then on a fixed ticker until ctx is
// cancelled. Scheduling stops deterministically on cancellation; sessions
// themselves are torn down by Shutdown.
func (r *Reloader) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Bot reloader started", "interval", r.interval)

		if err := r.Reconcile(ctx); err != nil {
			slog.Error("Initial reconcile failed", "error", err)
		}

		for {
			select {
			case <-ticker.C:
				if err := r.Reconcile(ctx); err != nil {
					slog.Error("Reconcile failed", "error", err)
				}
			case <-ctx.Done():
				slog.Info("Bot reloader shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Reconcile diffs the registry's ACTIVE records against the loaded set,
// loading missing bots and stopping removed ones. One failing bot never
// blocks the rest of the pass.
func (r *Reloader) Reconcile(ctx context.Context) error {
	records, err := r.repo.ListActiveBots(ctx)
	if err != nil {
		return fmt.Errorf("list active bots: %w", err)
	}
	r.reconciles.Add(1)

	active := make(map[string]*domain.BotRecord, len(records))
	for _, rec := range records {
		active[rec.TokenMint] = rec
	}

	var toLoad []*domain.BotRecord
	var toStop []*Session

	r.mu.Lock()
	for mint, rec := range active {
		if _, ok := r.loaded[mint]; !ok {
			toLoad = append(toLoad, rec)
		}
	}
	for mint, sess := range r.loaded {
		if _, ok := active[mint]; !ok {
			toStop = append(toStop, sess)
			delete(r.loaded, mint)
		}
	}
	r.mu.Unlock()

	// Deterministic load order keeps logs and tests stable.
	sort.Slice(toLoad, func(i, j int) bool { return toLoad[i].TokenMint < toLoad[j].TokenMint })

	for _, sess := range toStop {
		slog.Info("Unloading bot", "token", sess.TokenMint())
		sess.Stop()
	}

	for _, rec := range toLoad {
		sess, err := r.loadBot(ctx, rec)
		if err != nil {
			slog.Error("Failed to load bot", "token", rec.TokenMint, "error", err)
			r.markError(ctx, rec.TokenMint, err)
			continue
		}

		r.mu.Lock()
		r.loaded[rec.TokenMint] = sess
		r.mu.Unlock()
		slog.Info("Loaded bot", "token", rec.TokenMint)
	}

	return nil
}

// loadBot decrypts the credential, builds the transport and starts a
// session for one record.
func (r *Reloader) loadBot(ctx context.Context, rec *domain.BotRecord) (*Session, error) {
	persona, err := domain.ParsePersona(rec.PersonaJSON)
	if err != nil {
		return nil, err
	}

	credential, err := r.opener.Open(rec.EncryptedCredential)
	if err != nil {
		return nil, fmt.Errorf("decrypt credential: %w", err)
	}

	transport, err := r.newTransport(credential)
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}

	sess := NewSession(rec.TokenMint, persona, transport, r.gen, r.limits)
	if err := sess.Start(ctx); err != nil {
		return nil, fmt.Errorf("start transport: %w", err)
	}
	return sess, nil
}

// markError flips the record to ERROR so the dashboard can show why the
// bot is down. Store failures here are logged, not propagated.
func (r *Reloader) markError(ctx context.Context, tokenMint string, cause error) {
	if err := r.repo.UpdateBotStatus(ctx, tokenMint, domain.StatusError, cause.Error()); err != nil {
		slog.Error("Failed to mark bot as errored", "token", tokenMint, "error", err)
	}
}

// Shutdown stops every loaded session, best effort.
func (r *Reloader) Shutdown() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.loaded))
	for _, sess := range r.loaded {
		sessions = append(sessions, sess)
	}
	r.loaded = make(map[string]*Session)
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.Stop()
	}
	slog.Info("All bot sessions stopped", "count", len(sessions))
}

// Loaded returns a snapshot of live sessions, sorted by token.
func (r *Reloader) Loaded() []LoadedBot {
	r.mu.Lock()
	defer r.mu.Unlock()

	bots := make([]LoadedBot, 0, len(r.loaded))
	for mint, sess := range r.loaded {
		bots = append(bots, LoadedBot{TokenMint: mint, Users: sess.UserCount()})
	}
	sort.Slice(bots, func(i, j int) bool { return bots[i].TokenMint < bots[j].TokenMint })
	return bots
}

// ReconcileCount returns how many reconciliation passes have completed.
func (r *Reloader) ReconcileCount() int64 {
	return r.reconciles.Load()
}

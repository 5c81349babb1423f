package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"habisync/internal/models"
	"habisync/internal/notify"

	"github.com/sirupsen/logrus"
)

// StorageKey is the store entry holding the offline snapshot. It is
// independent of the inspection queue entry.
const StorageKey = "offline.snapshot"

// KVStore is the durable key-value store the snapshot is written into.
type KVStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// SessionFetcher captures the current authenticated session from the remote
// service.
type SessionFetcher interface {
	FetchSession(ctx context.Context) (json.RawMessage, error)
}

// Preparer refreshes the offline snapshot that lets the client function
// without connectivity. Every refresh replaces the previous snapshot
// wholesale; there are no merge semantics. The automatic refresh fires at
// most once per process, the first time connectivity is confirmed, and
// never again automatically afterward.
type Preparer struct {
	store    KVStore
	sessions SessionFetcher
	hub      *notify.Hub
	logger   *logrus.Logger

	mu       sync.Mutex
	autoDone bool
}

func NewPreparer(store KVStore, sessions SessionFetcher, hub *notify.Hub, logger *logrus.Logger) *Preparer {
	return &Preparer{
		store:    store,
		sessions: sessions,
		hub:      hub,
		logger:   logger,
	}
}

// Refresh captures the current session and timestamp and writes them as a
// full replacement of the snapshot key. Errors are returned for the caller
// to surface; manual invocations show them to the user, automatic ones only
// log them.
func (p *Preparer) Refresh(ctx context.Context) (*models.OfflineSnapshot, error) {
	user, err := p.sessions.FetchSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to capture session: %w", err)
	}

	snap := &models.OfflineSnapshot{
		PreparedAt: time.Now().UTC(),
		User:       user,
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize offline snapshot: %w", err)
	}
	if err := p.store.Set(ctx, StorageKey, string(data)); err != nil {
		return nil, fmt.Errorf("failed to persist offline snapshot: %w", err)
	}

	p.hub.Publish(notify.EventSnapshotRefreshed, map[string]string{
		"preparedAt": snap.PreparedAt.Format(time.RFC3339),
	})
	p.logger.Info("Offline snapshot refreshed")
	return snap, nil
}

// AutoRefresh runs the one-shot automatic refresh. The flag is consumed even
// when the refresh fails; a failed automatic attempt is logged and not
// repeated.
func (p *Preparer) AutoRefresh(ctx context.Context) {
	p.mu.Lock()
	if p.autoDone {
		p.mu.Unlock()
		return
	}
	p.autoDone = true
	p.mu.Unlock()

	if _, err := p.Refresh(ctx); err != nil {
		p.logger.WithError(err).Warn("Automatic offline snapshot refresh failed")
	}
}

// Current returns the persisted snapshot, or nil when none has been
// prepared yet.
func (p *Preparer) Current(ctx context.Context) (*models.OfflineSnapshot, error) {
	raw, ok, err := p.store.Get(ctx, StorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read offline snapshot: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var snap models.OfflineSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("failed to parse offline snapshot: %w", err)
	}
	return &snap, nil
}

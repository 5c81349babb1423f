package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"habisync/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// StorageKey is the single store entry holding the full inspection queue.
const StorageKey = "inspections.queue"

// KVStore is the durable key-value store the queue persists into.
type KVStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Manager owns the ordered list of locally created inspection records. All
// persistence is whole-list replacement under StorageKey; there are no
// partial writes. The persisted list is the single shared mutable resource
// and follows a last-writer-wins policy.
type Manager struct {
	store  KVStore
	logger *logrus.Logger

	mu      sync.Mutex
	records []models.InspectionRecord
}

func NewManager(store KVStore, logger *logrus.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger,
	}
}

// Load reads the persisted queue and replaces the in-memory list. A record
// observed in syncing state here means the process was killed mid-sync and
// no confirmation of remote receipt survived the restart, so it is coerced
// back to pending. The coercion is applied to the in-memory copy only;
// persisting it waits for the next save.
//
// A value that fails to parse is treated as an empty queue. A store read
// failure also yields an empty queue but is returned so explicit user
// actions can surface it.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = nil

	raw, ok, err := m.store.Get(ctx, StorageKey)
	if err != nil {
		return fmt.Errorf("failed to load inspection queue: %w", err)
	}
	if !ok {
		return nil
	}

	var records []models.InspectionRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		m.logger.WithError(err).Warn("Persisted inspection queue is unreadable, starting empty")
		return nil
	}

	for i := range records {
		if records[i].Status == models.SyncStatusSyncing {
			records[i].Status = models.SyncStatusPending
		}
	}

	m.records = records
	return nil
}

// Save serializes the full list and writes it back, replacing any prior
// value. A write failure leaves the in-memory state untouched; callers log
// it and accept transient divergence until the next successful save.
func (m *Manager) Save(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked(ctx)
}

func (m *Manager) saveLocked(ctx context.Context) error {
	data, err := json.Marshal(m.recordsOrEmpty())
	if err != nil {
		return fmt.Errorf("failed to serialize inspection queue: %w", err)
	}
	if err := m.store.Set(ctx, StorageKey, string(data)); err != nil {
		return fmt.Errorf("failed to persist inspection queue: %w", err)
	}
	return nil
}

// recordsOrEmpty keeps the persisted form a JSON array even when the queue
// has never held a record.
func (m *Manager) recordsOrEmpty() []models.InspectionRecord {
	if m.records == nil {
		return []models.InspectionRecord{}
	}
	return m.records
}

// Enqueue appends a record and persists the list. An empty ID is assigned
// here; the ID is immutable afterwards and is the sole key correlating the
// record with its remote submission outcome. New records always enter as
// pending.
func (m *Manager) Enqueue(ctx context.Context, record models.InspectionRecord) (models.InspectionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Date == "" {
		record.Date = time.Now().UTC().Format(time.RFC3339)
	}
	record.Status = models.SyncStatusPending

	m.records = append(m.records, record)

	if err := m.saveLocked(ctx); err != nil {
		return record, err
	}
	return record, nil
}

// Records returns a copy of the current list.
func (m *Manager) Records() []models.InspectionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.InspectionRecord, len(m.records))
	copy(out, m.records)
	return out
}

// PendingCount is the number of records currently awaiting sync.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingCountLocked()
}

func (m *Manager) pendingCountLocked() int {
	count := 0
	for _, r := range m.records {
		if r.Status == models.SyncStatusPending {
			count++
		}
	}
	return count
}

// MarkSyncing transitions every pending record to syncing in one batch and
// persists the intermediate state so a concurrent reader sees consistent
// progress indication. It returns copies of the selected records. The save
// is attempted even when it may fail; the returned error reports the write
// failure while the in-memory transition stands.
func (m *Manager) MarkSyncing(ctx context.Context) ([]models.InspectionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var selected []models.InspectionRecord
	for i := range m.records {
		if m.records[i].Status == models.SyncStatusPending {
			m.records[i].Status = models.SyncStatusSyncing
			selected = append(selected, m.records[i])
		}
	}
	if len(selected) == 0 {
		return nil, nil
	}

	if err := m.saveLocked(ctx); err != nil {
		return selected, err
	}
	return selected, nil
}

// Resolve merges submission outcomes back into the list by record ID and
// persists the final state. Only records still in syncing move: success
// settles them as synced, failure returns them to pending for a future
// attempt. Synced is terminal; an outcome naming a synced record is ignored.
func (m *Manager) Resolve(ctx context.Context, outcomes []models.SubmissionOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byID := make(map[string]models.SubmissionOutcome, len(outcomes))
	for _, o := range outcomes {
		byID[o.RecordID] = o
	}

	for i := range m.records {
		outcome, ok := byID[m.records[i].ID]
		if !ok || m.records[i].Status != models.SyncStatusSyncing {
			continue
		}
		if outcome.Success {
			m.records[i].Status = models.SyncStatusSynced
		} else {
			m.records[i].Status = models.SyncStatusPending
		}
	}

	return m.saveLocked(ctx)
}

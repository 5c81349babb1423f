package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"habisync/internal/connectivity"
	"habisync/internal/metrics"
	"habisync/internal/models"
	"habisync/internal/notify"
	"habisync/internal/queue"
	"habisync/pkg/padron"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Precondition violations. These are reported to the user as informational
// conditions, never as crashes.
var (
	ErrNoConnectivity = errors.New("no connection to the padron service")
	ErrNothingPending = errors.New("no pending inspections to sync")
	ErrSyncInProgress = errors.New("a sync is already in progress")
)

// ConnectivitySource reports current reachability of the remote service.
type ConnectivitySource interface {
	Status() connectivity.Status
	Subscribe() (<-chan connectivity.Status, func())
}

// Orchestrator drives the pending -> syncing -> resolved transition for every
// currently pending record against the padron service. One invocation is one
// batch: every pending record is attempted, concurrently, with isolated
// outcomes. A failed submission simply returns its record to pending for a
// future run; there is no backoff and no retry cap.
type Orchestrator struct {
	queue  *queue.Manager
	client padron.Client
	conn   ConnectivitySource
	hub    *notify.Hub
	logger *logrus.Logger
	tracer oteltrace.Tracer

	mu         sync.Mutex
	inProgress bool

	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewOrchestrator(q *queue.Manager, client padron.Client, conn ConnectivitySource, hub *notify.Hub, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		queue:  q,
		client: client,
		conn:   conn,
		hub:    hub,
		logger: logger,
		tracer: otel.Tracer("habisync/internal/syncer"),
	}
}

// InProgress reports whether a sync run is currently in flight.
func (o *Orchestrator) InProgress() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inProgress
}

func (o *Orchestrator) begin() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inProgress {
		return false
	}
	o.inProgress = true
	return true
}

func (o *Orchestrator) end() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inProgress = false
}

// Sync runs one guarded batch. Guards fire before any state transition or
// persistence write: no connectivity, nothing pending, or an overlapping run
// each abort with the matching sentinel and zero side effects.
func (o *Orchestrator) Sync(ctx context.Context) (*models.SyncSummary, error) {
	if o.conn.Status() != connectivity.StatusOnline {
		return nil, ErrNoConnectivity
	}
	if !o.begin() {
		return nil, ErrSyncInProgress
	}
	defer o.end()

	if o.queue.PendingCount() == 0 {
		return nil, ErrNothingPending
	}

	ctx, span := o.tracer.Start(ctx, "sync.run")
	defer span.End()

	started := time.Now()
	o.hub.Publish(notify.EventSyncStarted, nil)

	// Phase one: the whole pending subset moves to syncing in a single batch
	// and that intermediate state is persisted before any remote call goes
	// out.
	selected, err := o.queue.MarkSyncing(ctx)
	if err != nil {
		o.logger.WithError(err).Error("Failed to persist syncing state, continuing with in-memory records")
	}
	if len(selected) == 0 {
		return nil, ErrNothingPending
	}

	span.SetAttributes(attribute.Int("sync.batch_size", len(selected)))
	o.logger.WithField("records", len(selected)).Info("Starting inspection sync")

	// Phase two: fan the batch out. Submissions are order-independent and
	// isolated; one slow or failing call never stalls or aborts the rest.
	outcomes := make([]models.SubmissionOutcome, len(selected))
	var wg sync.WaitGroup
	for i, record := range selected {
		wg.Add(1)
		go func(i int, record models.InspectionRecord) {
			defer wg.Done()
			outcomes[i] = o.submit(ctx, record)
		}(i, record)
	}
	wg.Wait()

	// Phase three: merge resolved statuses back into the full list and
	// persist the final state. Records outside the batch are untouched.
	if err := o.queue.Resolve(ctx, outcomes); err != nil {
		span.SetStatus(codes.Error, "final persistence failed")
		o.logger.WithError(err).Error("Failed to persist sync results, in-memory state may diverge until next save")
	}

	summary := &models.SyncSummary{
		Attempted: len(selected),
		Outcomes:  outcomes,
	}
	for _, outcome := range outcomes {
		if outcome.Success {
			summary.Synced++
		} else {
			summary.Failed++
		}
	}

	span.SetAttributes(
		attribute.Int("sync.synced", summary.Synced),
		attribute.Int("sync.failed", summary.Failed),
	)

	metrics.RecordTimer("sync_run_duration", time.Since(started), nil, "Wall time of one sync run")
	metrics.IncrementCounter("sync_runs_total", nil, "Total sync runs completed")
	metrics.AddToCounter("sync_records_synced_total", float64(summary.Synced), nil, "Inspection records confirmed by the remote service")
	metrics.AddToCounter("sync_records_failed_total", float64(summary.Failed), nil, "Inspection submissions that returned to pending")
	metrics.SetGauge("queue_pending_records", float64(o.queue.PendingCount()), nil, "Records currently awaiting sync")

	o.hub.Publish(notify.EventSyncFinished, summary)
	o.hub.Publish(notify.EventQueueUpdated, map[string]int{"pendingCount": o.queue.PendingCount()})

	o.logger.WithFields(logrus.Fields{
		"attempted": summary.Attempted,
		"synced":    summary.Synced,
		"failed":    summary.Failed,
	}).Info("Inspection sync completed")

	return summary, nil
}

// submit performs one isolated remote submission. All failures, transport or
// rejection alike, collapse into a non-success outcome; the distinction does
// not change what happens to the record.
func (o *Orchestrator) submit(ctx context.Context, record models.InspectionRecord) models.SubmissionOutcome {
	ctx, span := o.tracer.Start(ctx, "sync.submit",
		oteltrace.WithAttributes(attribute.String("inspection.id", record.ID)))
	defer span.End()

	err := o.client.SubmitInspection(ctx, padron.Inspection{
		ID:       record.ID,
		Location: record.Location,
		Date:     record.Date,
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		o.logger.WithError(err).WithField("id", record.ID).Warn("Inspection submission failed, record returns to pending")
		return models.SubmissionOutcome{RecordID: record.ID, Success: false, Reason: err.Error()}
	}

	return models.SubmissionOutcome{RecordID: record.ID, Success: true}
}

// Start subscribes to connectivity transitions and fires a sync on every
// became-online edge that finds pending records and no run in flight.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		o.logger.Warn("Sync orchestrator is already running")
		return
	}
	o.running = true
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.mu.Unlock()

	edges, unsubscribe := o.conn.Subscribe()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer unsubscribe()

		for {
			select {
			case <-runCtx.Done():
				return
			case status, ok := <-edges:
				if !ok {
					return
				}
				if status != connectivity.StatusOnline {
					continue
				}
				o.autoSync(runCtx)
			}
		}
	}()

	o.logger.Info("Sync orchestrator started")
}

// Stop tears down the automatic trigger. In-flight submissions are not
// cancelled; their resolution still lands in persisted state.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	cancel := o.cancel
	o.mu.Unlock()

	cancel()
	o.wg.Wait()
	o.logger.Info("Sync orchestrator stopped")
}

func (o *Orchestrator) autoSync(ctx context.Context) {
	if o.queue.PendingCount() == 0 || o.InProgress() {
		return
	}

	if _, err := o.Sync(ctx); err != nil {
		switch err {
		case ErrNoConnectivity, ErrNothingPending, ErrSyncInProgress:
			o.logger.WithError(err).Debug("Automatic sync skipped")
		default:
			o.logger.WithError(err).Error("Automatic sync failed")
		}
	}
}

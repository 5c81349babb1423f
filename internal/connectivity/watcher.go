package connectivity

import (
	"context"
	"sync"
	"time"

	"habisync/internal/constants"

	"github.com/sirupsen/logrus"
)

// Status is the tri-state reachability of the remote padron service.
type Status int

const (
	StatusUnknown Status = iota
	StatusOnline
	StatusOffline
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Prober checks whether the remote service is reachable.
type Prober interface {
	Ping(ctx context.Context) error
}

// Watcher polls the remote service and pushes status transitions to
// subscribers. Subscribers receive only edges, never repeats of the
// current status.
type Watcher struct {
	prober       Prober
	logger       *logrus.Logger
	interval     time.Duration
	probeTimeout time.Duration

	mu          sync.Mutex
	status      Status
	subscribers map[int]chan Status
	nextSubID   int
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

func NewWatcher(prober Prober, logger *logrus.Logger, interval, probeTimeout time.Duration) *Watcher {
	if interval <= 0 {
		interval = time.Duration(constants.DefaultProbeIntervalSec) * time.Second
	}
	if probeTimeout <= 0 {
		probeTimeout = time.Duration(constants.DefaultProbeTimeoutSec) * time.Second
	}
	return &Watcher{
		prober:       prober,
		logger:       logger,
		interval:     interval,
		probeTimeout: probeTimeout,
		status:       StatusUnknown,
		subscribers:  make(map[int]chan Status),
	}
}

// Start begins probing in the background.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		w.logger.Warn("Connectivity watcher is already running")
		return
	}
	w.running = true
	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	w.wg.Add(1)
	go w.watchLoop(watchCtx)
	w.logger.WithField("interval", w.interval).Info("Connectivity watcher started")
}

// Stop stops probing and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel := w.cancel
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
	w.logger.Info("Connectivity watcher stopped")
}

// Status returns the last observed reachability.
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Subscribe registers for status transitions. The returned function tears
// the subscription down; callers must invoke it when done to avoid leaks.
func (w *Watcher) Subscribe() (<-chan Status, func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.nextSubID
	w.nextSubID++
	ch := make(chan Status, 1)
	w.subscribers[id] = ch

	unsubscribe := func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if sub, ok := w.subscribers[id]; ok {
			delete(w.subscribers, id)
			close(sub)
		}
	}
	return ch, unsubscribe
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Resolve the unknown state immediately rather than waiting a full tick.
	w.check(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check(ctx)
		}
	}
}

func (w *Watcher) check(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, w.probeTimeout)
	defer cancel()

	status := StatusOnline
	if err := w.prober.Ping(probeCtx); err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logger.WithError(err).Debug("Connectivity probe failed")
		status = StatusOffline
	}

	w.setStatus(status)
}

func (w *Watcher) setStatus(status Status) {
	w.mu.Lock()
	if w.status == status {
		w.mu.Unlock()
		return
	}
	previous := w.status
	w.status = status

	// Sends are non-blocking, so broadcasting under the lock keeps them from
	// racing an unsubscribe that closes the channel. A subscriber that has
	// not drained its previous edge only needs the latest one.
	for _, ch := range w.subscribers {
		select {
		case ch <- status:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- status:
			default:
			}
		}
	}
	w.mu.Unlock()

	w.logger.WithFields(logrus.Fields{
		"previous": previous.String(),
		"current":  status.String(),
	}).Info("Connectivity status changed")
}

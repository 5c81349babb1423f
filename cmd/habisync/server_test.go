package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"habisync/internal/connectivity"
	"habisync/internal/models"
	"habisync/internal/notify"
	"habisync/internal/queue"
	"habisync/internal/snapshot"
	"habisync/internal/syncer"
	"habisync/pkg/padron"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.data[key]
	return value, ok, nil
}

func (f *fakeStore) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

type fakeClient struct {
	submitErr  error
	sessionErr error
	session    json.RawMessage
	blockCh    chan struct{}
}

func (f *fakeClient) SubmitInspection(ctx context.Context, inspection padron.Inspection) error {
	if f.blockCh != nil {
		<-f.blockCh
	}
	return f.submitErr
}

func (f *fakeClient) FetchSession(ctx context.Context) (json.RawMessage, error) {
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	return f.session, nil
}

func (f *fakeClient) Ping(ctx context.Context) error { return nil }

type stubConn struct {
	status connectivity.Status
}

func (s *stubConn) Status() connectivity.Status { return s.status }

func (s *stubConn) Subscribe() (<-chan connectivity.Status, func()) {
	ch := make(chan connectivity.Status)
	return ch, func() {}
}

type fakeProber struct{}

func (fakeProber) Ping(ctx context.Context) error { return nil }

type serverFixture struct {
	server *Server
	store  *fakeStore
	queue  *queue.Manager
	client *fakeClient
	conn   *stubConn
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	store := newFakeStore()
	client := &fakeClient{session: json.RawMessage(`{"user":"inspector"}`)}
	conn := &stubConn{status: connectivity.StatusOnline}

	q := queue.NewManager(store, logger)
	require.NoError(t, q.Load(context.Background()))

	hub := notify.NewHub()
	orchestrator := syncer.NewOrchestrator(q, client, conn, hub, logger)
	preparer := snapshot.NewPreparer(store, client, hub, logger)
	watcher := connectivity.NewWatcher(fakeProber{}, logger, time.Minute, time.Second)

	cfg := &models.Config{}
	cfg.Server.Port = 0

	return &serverFixture{
		server: NewServer(cfg, logger, q, orchestrator, preparer, watcher, hub),
		store:  store,
		queue:  q,
		client: client,
		conn:   conn,
	}
}

func (f *serverFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.server.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandleHealth(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestHandleQueue_Empty(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(http.MethodGet, "/api/queue", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(0), body["pendingCount"])
}

func TestHandleEnqueue_CreatesRecord(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(http.MethodPost, "/api/inspections", `{"location":"Mitre 450"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var record models.InspectionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, "Mitre 450", record.Location)
	assert.Equal(t, models.SyncStatusPending, record.Status)
	assert.NotEmpty(t, record.Date)

	assert.Equal(t, 1, f.queue.PendingCount())
	assert.Contains(t, f.store.data, queue.StorageKey)
}

func TestHandleEnqueue_InvalidBody(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(http.MethodPost, "/api/inspections", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, f.queue.PendingCount())
}

func TestHandleSync_Success(t *testing.T) {
	f := newServerFixture(t)
	f.do(http.MethodPost, "/api/inspections", `{"location":"Mitre 450"}`)
	f.do(http.MethodPost, "/api/inspections", `{"location":"Belgrano 1300"}`)

	rec := f.do(http.MethodPost, "/api/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var summary models.SyncSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.Attempted)
	assert.Equal(t, 2, summary.Synced)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 0, f.queue.PendingCount())
}

func TestHandleSync_NoConnectivity(t *testing.T) {
	f := newServerFixture(t)
	f.conn.status = connectivity.StatusOffline
	f.do(http.MethodPost, "/api/inspections", `{"location":"Mitre 450"}`)

	rec := f.do(http.MethodPost, "/api/sync", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, 1, f.queue.PendingCount())
}

func TestHandleSync_NothingPending(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(http.MethodPost, "/api/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Contains(t, body, "message")
}

func TestHandleSync_AlreadyInProgress(t *testing.T) {
	f := newServerFixture(t)
	f.client.blockCh = make(chan struct{})
	f.do(http.MethodPost, "/api/inspections", `{"location":"Mitre 450"}`)

	firstDone := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		firstDone <- f.do(http.MethodPost, "/api/sync", "")
	}()

	require.Eventually(t, func() bool {
		return f.server.orchestrator.InProgress()
	}, time.Second, 5*time.Millisecond)

	rec := f.do(http.MethodPost, "/api/sync", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(f.client.blockCh)
	first := <-firstDone
	assert.Equal(t, http.StatusOK, first.Code)
}

func TestHandleSync_FailedRecordsReported(t *testing.T) {
	f := newServerFixture(t)
	f.client.submitErr = errors.New("padron rejected the record")
	f.do(http.MethodPost, "/api/inspections", `{"location":"Mitre 450"}`)

	rec := f.do(http.MethodPost, "/api/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var summary models.SyncSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.Attempted)
	assert.Equal(t, 0, summary.Synced)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, f.queue.PendingCount())
}

func TestHandleOfflineData_NotPreparedYet(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(http.MethodGet, "/api/offline-data", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleOfflineRefresh_ThenRead(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(http.MethodPost, "/api/offline-data/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/api/offline-data", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap models.OfflineSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.False(t, snap.PreparedAt.IsZero())
	assert.JSONEq(t, `{"user":"inspector"}`, string(snap.User))
}

func TestHandleOfflineRefresh_UpstreamFailure(t *testing.T) {
	f := newServerFixture(t)
	f.client.sessionErr = errors.New("session endpoint unavailable")

	rec := f.do(http.MethodPost, "/api/offline-data/refresh", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandleStatus(t *testing.T) {
	f := newServerFixture(t)
	f.do(http.MethodPost, "/api/inspections", `{"location":"Mitre 450"}`)

	rec := f.do(http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "unknown", body["connectivity"])
	assert.Equal(t, false, body["syncInProgress"])
	assert.Equal(t, float64(1), body["pendingCount"])
}

func TestHandleMetrics(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decodeBody(t, rec)
	assert.Contains(t, body, "counters")
	assert.Contains(t, body, "uptime_ms")
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(http.MethodGet, "/api/sync", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = f.do(http.MethodPost, "/api/queue", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

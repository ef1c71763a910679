package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/expenseflow/internal/expense"
	jobmetrics "github.com/odyssey-erp/expenseflow/internal/jobs"
	"github.com/odyssey-erp/expenseflow/internal/shared"
)

type stubRecords map[int64]expense.Record

func (s stubRecords) Get(_ context.Context, id int64) (expense.Record, error) {
	rec, ok := s[id]
	if !ok {
		return expense.Record{}, expense.ErrNotFound
	}
	return rec, nil
}

type stubExporter struct {
	calls int
	err   error
}

func (s *stubExporter) Export(_ context.Context, rec expense.Record) (int, error) {
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	return len(rec.Period), nil
}

type memoryKeys struct {
	keys map[string]string
}

func (m *memoryKeys) CheckAndInsert(_ context.Context, key, module string) error {
	if _, ok := m.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = module
	return nil
}

func (m *memoryKeys) Delete(_ context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

func (m *memoryKeys) Cleanup(_ context.Context, _ time.Duration) (int64, error) {
	n := int64(len(m.keys))
	m.keys = map[string]string{}
	return n, nil
}

func paid(id int64) expense.Record {
	return expense.Record{
		ID:            id,
		Amount:        decimal.NewFromInt(9000),
		Period:        []string{"01.08.2024", "01.09.2024"},
		PaymentMethod: expense.MethodCash,
		Status:        expense.StatusPaid,
	}
}

func newExportJob(records stubRecords, exporter *stubExporter, keys *memoryKeys) *SheetExportJob {
	return NewSheetExportJob(records, exporter, keys, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
}

func exportTask(t *testing.T, id int64) *asynq.Task {
	t.Helper()
	task, err := NewSheetExportTask(id)
	require.NoError(t, err)
	return task
}

func TestSheetExportRunsOnce(t *testing.T) {
	exporter := &stubExporter{}
	keys := &memoryKeys{keys: map[string]string{}}
	job := newExportJob(stubRecords{7: paid(7)}, exporter, keys)

	require.NoError(t, job.Handle(context.Background(), exportTask(t, 7)))
	require.NoError(t, job.Handle(context.Background(), exportTask(t, 7)))
	assert.Equal(t, 1, exporter.calls)
	assert.Equal(t, "sheet_export", keys.keys[SheetExportKey(7)])
}

func TestSheetExportReleasesKeyOnFailure(t *testing.T) {
	exporter := &stubExporter{err: errors.New("quota exceeded")}
	keys := &memoryKeys{keys: map[string]string{}}
	job := newExportJob(stubRecords{7: paid(7)}, exporter, keys)

	require.Error(t, job.Handle(context.Background(), exportTask(t, 7)))
	assert.Empty(t, keys.keys)

	exporter.err = nil
	require.NoError(t, job.Handle(context.Background(), exportTask(t, 7)))
	assert.Equal(t, 2, exporter.calls)
}

func TestSheetExportSkipsUnpaidAndMissing(t *testing.T) {
	open := paid(8)
	open.Status = expense.StatusApproved
	exporter := &stubExporter{}
	job := newExportJob(stubRecords{8: open}, exporter, &memoryKeys{keys: map[string]string{}})

	err := job.Handle(context.Background(), exportTask(t, 8))
	require.ErrorIs(t, err, asynq.SkipRetry)
	err = job.Handle(context.Background(), exportTask(t, 9))
	require.ErrorIs(t, err, asynq.SkipRetry)
	err = job.Handle(context.Background(), asynq.NewTask(TaskSheetExport, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	assert.Zero(t, exporter.calls)
}

func TestSheetExportTaskIdentity(t *testing.T) {
	task := exportTask(t, 42)
	assert.Equal(t, TaskSheetExport, task.Type())

	var payload SheetExportPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, int64(42), payload.RecordID)

	assert.Equal(t, SheetExportTaskID(42), SheetExportTaskID(42))
	assert.NotEqual(t, SheetExportTaskID(42), SheetExportTaskID(43))

	_, err := NewSheetExportTask(0)
	require.Error(t, err)
}

func TestIdempotencyCleanup(t *testing.T) {
	keys := &memoryKeys{keys: map[string]string{"a": "sheet_export"}}
	job := &IdempotencyCleanupJob{Store: keys, Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry())}
	task, err := NewIdempotencyCleanupTask(48 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Empty(t, keys.keys)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestHealthEndpoint(t *testing.T) {
	serve := func(h *Handler) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		h.MountRoutes(r)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		return rr
	}

	rr := serve(NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Retry: 1}}, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body QueueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, QueueHealth{Queue: QueueDefault, Pending: 3, Retry: 1}, body)

	rr = serve(NewHandler(stubInspector{err: errors.New("redis down")}, nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = serve(NewHandler(stubInspector{err: asynq.ErrQueueNotFound}, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, QueueHealth{Queue: QueueDefault}, body)

	rr = serve(NewHandler(nil, nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRetryDelayBacksOffExports(t *testing.T) {
	export, err := NewSheetExportTask(1)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, retryDelay(0, errors.New("429"), export))
	assert.Equal(t, 2*time.Minute, retryDelay(2, errors.New("429"), export))
	assert.Equal(t, exportRetryCap, retryDelay(10, errors.New("429"), export))
}

func TestLogTasksPassesResultThrough(t *testing.T) {
	boom := errors.New("boom")
	var calls int
	handler := logTasks(slog.New(slog.NewTextHandler(io.Discard, nil)))(asynq.HandlerFunc(func(context.Context, *asynq.Task) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	}))

	task := asynq.NewTask(TaskIdempotencyCleanup, nil)
	require.NoError(t, handler.ProcessTask(context.Background(), task))
	assert.ErrorIs(t, handler.ProcessTask(context.Background(), task), boom)
	assert.Equal(t, 2, calls)
}

func TestNewWorkerRejectsBadRegistrations(t *testing.T) {
	redis := asynq.RedisClientOpt{Addr: miniredis.RunT(t).Addr()}
	cleanup, err := NewIdempotencyCleanupTask(24 * time.Hour)
	require.NoError(t, err)

	_, err = NewWorker(WorkerConfig{RedisOpts: redis, Handlers: []TaskHandler{{Type: TaskSheetExport}}})
	assert.Error(t, err)

	_, err = NewWorker(WorkerConfig{RedisOpts: redis, Cron: []CronRegistration{{Spec: "every day", Task: cleanup}}})
	assert.Error(t, err)

	worker, err := NewWorker(WorkerConfig{RedisOpts: redis, Cron: []CronRegistration{{Spec: "30 3 * * *", Task: cleanup}}})
	require.NoError(t, err)
	assert.NotNil(t, worker.scheduler)
}

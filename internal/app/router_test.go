package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/expenseflow/internal/audit"
	audithttp "github.com/odyssey-erp/expenseflow/internal/audit/http"
	"github.com/odyssey-erp/expenseflow/internal/expense/expensetest"
	"github.com/odyssey-erp/expenseflow/internal/notify"
	"github.com/odyssey-erp/expenseflow/internal/notify/notifytest"
	"github.com/odyssey-erp/expenseflow/internal/observability"
	"github.com/odyssey-erp/expenseflow/internal/roles"
	"github.com/odyssey-erp/expenseflow/internal/workflow"
)

const apiToken = "s3cret-token"

type auditRows []audit.TimelineRow

func (r auditRows) Window(ctx context.Context, q audit.Query) ([]audit.TimelineRow, error) {
	return r, nil
}

func (r auditRows) All(ctx context.Context, q audit.Query) ([]audit.TimelineRow, error) {
	return r, nil
}

func newTestRouter(t *testing.T, checks ...ReadinessCheck) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	dir, err := roles.New(roles.File{
		Members: map[roles.Role][]int64{
			roles.Initiator: {100},
			roles.Head:      {200},
			roles.Finance:   {300},
			roles.Payment:   {400},
		},
	})
	require.NoError(t, err)

	dispatcher := notify.NewDispatcher(notifytest.NewTransport(), notify.NewMemoryLedger(), notify.DefaultTemplates(), logger)
	service, err := workflow.NewService(workflow.Dependencies{
		Store:     expensetest.NewStore(),
		Directory: dir,
		Notifier:  dispatcher,
		Logger:    logger,
	})
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte(apiToken), bcrypt.MinCost)
	require.NoError(t, err)

	auditLog := auditRows{{ActorID: 100, Action: "EXPENSE_SUBMIT", Entity: "expense", EntityID: "1"}}

	return NewRouter(RouterParams{
		Logger:         logger,
		Config:         &Config{APITokenHash: string(hash)},
		ExpenseHandler: workflow.NewHandler(logger, service),
		AuditHandler:   audithttp.NewHandler(logger, audit.NewService(auditLog)),
		Readiness:      checks,
		Metrics:        observability.NewMetrics(),
	})
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestReadyzReportsFailingDependency(t *testing.T) {
	router := newTestRouter(t,
		ReadinessCheck{Name: "postgres", Check: func(context.Context) error { return nil }},
		ReadinessCheck{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
	)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["postgres"])
	assert.Equal(t, "connection refused", body["redis"])
}

func TestExpenseAPIRequiresToken(t *testing.T) {
	router := newTestRouter(t)

	for name, header := range map[string]string{
		"missing": "",
		"basic":   "Basic dXNlcjpwYXNz",
		"wrong":   "Bearer nope",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/expenses/unpaid", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
		})
	}
}

func TestExpenseAPISubmitWithToken(t *testing.T) {
	router := newTestRouter(t)

	body := bytes.NewBufferString(`{"initiator_id":100,"amount":"1500","item":"Такси","group":"Транспорт","comment":"аэропорт","period":"08.24","payment_method":"нал"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/expenses/", body)
	req.Header.Set("Authorization", "Bearer "+apiToken)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var view workflow.RecordView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "Not processed", view.Status)
	assert.Equal(t, 1, view.ApprovalsNeeded)
}

func TestAuditAPIRequiresToken(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/audit", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/audit", nil)
	req.Header.Set("Authorization", "Bearer "+apiToken)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body audit.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Rows, 1)
	assert.Equal(t, "EXPENSE_SUBMIT", body.Rows[0].Action)
}

func TestBearerAuthWithEmptyHashRejects(t *testing.T) {
	handler := BearerAuth("", slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "expenseflow_http_requests_total")
}

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}

package workflow

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/expenseflow/internal/approval"
	"github.com/odyssey-erp/expenseflow/internal/expense"
	"github.com/odyssey-erp/expenseflow/internal/expense/expensetest"
	"github.com/odyssey-erp/expenseflow/internal/notify"
	"github.com/odyssey-erp/expenseflow/internal/notify/notifytest"
	"github.com/odyssey-erp/expenseflow/internal/roles"
	"github.com/odyssey-erp/expenseflow/internal/shared"
)

const (
	initiatorID int64 = 100
	headID      int64 = 200
	financeA    int64 = 300
	financeB    int64 = 301
	payerID     int64 = 400
	cardPayerID int64 = 401
)

type exportRecorder struct {
	mu  sync.Mutex
	ids []int64
}

func (e *exportRecorder) EnqueueExport(_ context.Context, id int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ids = append(e.ids, id)
	return nil
}

type historyRecorder struct {
	mu   sync.Mutex
	logs []shared.ApprovalLog
}

func (h *historyRecorder) Record(_ context.Context, log shared.ApprovalLog) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logs = append(h.logs, log)
	return nil
}

type fixture struct {
	service   *Service
	store     *expensetest.Store
	transport *notifytest.Transport
	ledger    *notify.MemoryLedger
	exports   *exportRecorder
	history   *historyRecorder
}

func testDirectory(t *testing.T) *roles.Directory {
	t.Helper()
	dir, err := roles.New(roles.File{
		Members: map[roles.Role][]int64{
			roles.Initiator: {initiatorID},
			roles.Head:      {headID},
			roles.Finance:   {financeA, financeB},
			roles.Payment:   {payerID, cardPayerID},
		},
		Nicknames: map[roles.Role]map[int64]string{
			roles.Initiator: {initiatorID: "@ivan"},
			roles.Head:      {headID: "@boss"},
			roles.Finance:   {financeA: "@fin_a", financeB: "@fin_b"},
			roles.Payment:   {payerID: "@payer", cardPayerID: "@card"},
		},
		PaymentRoutes: map[string][]int64{"card": {cardPayerID}},
	})
	require.NoError(t, err)
	return dir
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		store:     expensetest.NewStore(),
		transport: notifytest.NewTransport(),
		ledger:    notify.NewMemoryLedger(),
		exports:   &exportRecorder{},
		history:   &historyRecorder{},
	}
	service, err := NewService(Dependencies{
		Store:     f.store,
		Directory: testDirectory(t),
		Notifier:  notify.NewDispatcher(f.transport, f.ledger, nil, logger),
		Exports:   f.exports,
		Approvals: f.history,
		Logger:    logger,
	})
	require.NoError(t, err)
	f.service = service
	return f
}

func (f *fixture) submit(t *testing.T, amount, method string) expense.Record {
	t.Helper()
	rec, err := f.service.Submit(context.Background(), expense.SubmitInput{
		InitiatorID:   initiatorID,
		Amount:        amount,
		Item:          "Аренда",
		Group:         "Офис",
		Comment:       "сентябрь",
		Period:        "08.24 09.24",
		PaymentMethod: method,
	})
	require.NoError(t, err)
	return rec
}

func (f *fixture) act(t *testing.T, id, actor int64, action approval.Action) expense.Record {
	t.Helper()
	rec, err := f.service.Act(context.Background(), ActInput{RecordID: id, ActorID: actor, Action: action})
	require.NoError(t, err)
	return rec
}

func TestSubmitNotifiesInitiatorAndHead(t *testing.T) {
	f := newFixture(t)
	rec := f.submit(t, "60000", "нал")

	assert.Equal(t, expense.StatusNotProcessed, rec.Status)
	assert.Equal(t, 2, rec.ApprovalsNeeded)
	assert.Equal(t, []string{"01.08.2024", "01.09.2024"}, rec.Period)

	require.Len(t, f.transport.SentTo(initiatorID), 1)
	head := f.transport.SentTo(headID)
	require.Len(t, head, 1)
	assert.Contains(t, head[0].Text, "от @ivan")
	assert.Equal(t, notify.ApprovalKeyboard(rec.ID, roles.Head), head[0].Keyboard)

	require.Len(t, f.history.logs, 1)
	assert.Equal(t, shared.ApprovalSubmit, f.history.logs[0].Action)
}

func TestSubmitRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Submit(context.Background(), expense.SubmitInput{InitiatorID: initiatorID, Amount: "-1"})
	require.ErrorIs(t, err, expense.ErrValidation)

	_, err = f.service.Submit(context.Background(), expense.SubmitInput{InitiatorID: 999, Amount: "1"})
	require.ErrorIs(t, err, shared.ErrAccessDenied)
	assert.Empty(t, f.transport.Sent())
}

func TestTwoApprovalFlow(t *testing.T) {
	f := newFixture(t)
	rec := f.submit(t, "60000", "cash")

	f.act(t, rec.ID, headID, approval.ActionApprove)
	assert.Len(t, f.transport.SentTo(financeA), 1)
	assert.Len(t, f.transport.SentTo(financeB), 1)
	assert.Empty(t, f.transport.SentTo(payerID))

	approved := f.act(t, rec.ID, financeA, approval.ActionApprove)
	assert.Equal(t, "@boss и @fin_a", approved.ApprovedBy)
	assert.Len(t, f.transport.SentTo(payerID), 1)
	assert.Len(t, f.transport.SentTo(cardPayerID), 1)

	paid := f.act(t, rec.ID, payerID, approval.ActionApprove)
	assert.Equal(t, expense.StatusPaid, paid.Status)

	assert.Equal(t, []expense.Status{expense.StatusNotProcessed, expense.StatusPending, expense.StatusApproved, expense.StatusPaid}, f.store.Statuses(rec.ID))
	assert.Equal(t, []int{0, 1, 2, 2}, f.store.Received(rec.ID))
	assert.Equal(t, []int64{rec.ID}, f.exports.ids)
	assert.Equal(t, 0, f.ledger.Len())

	// the head saw one live message the whole time
	live := f.transport.Live(headID)
	require.Len(t, live, 1)
	assert.Contains(t, live[0].Text, "оплачен @payer")
}

func TestSingleApprovalFlowSkipsFinance(t *testing.T) {
	f := newFixture(t)
	rec := f.submit(t, "20000", "карта")

	f.act(t, rec.ID, headID, approval.ActionApprove)
	// card payments are routed to the card payer only
	assert.Len(t, f.transport.SentTo(cardPayerID), 1)
	assert.Empty(t, f.transport.SentTo(payerID))

	f.act(t, rec.ID, cardPayerID, approval.ActionPay)

	assert.Equal(t, []expense.Status{expense.StatusNotProcessed, expense.StatusApproved, expense.StatusPaid}, f.store.Statuses(rec.ID))
	assert.Empty(t, f.transport.SentTo(financeA))
	assert.Empty(t, f.transport.SentTo(financeB))
	assert.Equal(t, []int64{rec.ID}, f.exports.ids)
}

func TestHeadRejectionStopsFlow(t *testing.T) {
	f := newFixture(t)
	rec := f.submit(t, "70000", "cash")

	rejected := f.act(t, rec.ID, headID, approval.ActionReject)
	assert.Equal(t, expense.StatusRejected, rejected.Status)
	assert.Equal(t, 0, rejected.ApprovalsReceived)
	assert.Equal(t, "@boss", rejected.RejectedBy)

	for _, chat := range []int64{financeA, financeB, payerID, cardPayerID} {
		assert.Empty(t, f.transport.SentTo(chat), chat)
	}
	assert.Empty(t, f.exports.ids)
	assert.Equal(t, 0, f.ledger.Len())

	_, err := f.service.Approve(context.Background(), rec.ID, headID)
	require.ErrorIs(t, err, approval.ErrAlreadyProcessed)
}

func TestActRefusals(t *testing.T) {
	f := newFixture(t)
	rec := f.submit(t, "60000", "cash")

	_, err := f.service.Approve(context.Background(), rec.ID, initiatorID)
	require.ErrorIs(t, err, approval.ErrRoleNotAllowed)

	_, err = f.service.Approve(context.Background(), rec.ID, 999)
	require.ErrorIs(t, err, approval.ErrRoleNotAllowed)

	_, err = f.service.Pay(context.Background(), rec.ID, payerID)
	require.ErrorIs(t, err, approval.ErrWrongStatus)

	_, err = f.service.Act(context.Background(), ActInput{RecordID: rec.ID, ActorID: headID, Action: approval.ActionApprove, Role: roles.Finance})
	require.ErrorIs(t, err, approval.ErrRoleNotAllowed)

	_, err = f.service.Approve(context.Background(), 404, headID)
	require.ErrorIs(t, err, expense.ErrNotFound)

	got, err := f.service.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, expense.StatusNotProcessed, got.Status)
}

func TestConcurrentApprovalsApplyOnce(t *testing.T) {
	f := newFixture(t)
	rec := f.submit(t, "60000", "cash")

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.service.Approve(context.Background(), rec.ID, headID); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, []int{0, 1}, f.store.Received(rec.ID))
	assert.Equal(t, "@boss", mustGet(t, f, rec.ID).ApprovedBy)
}

func TestListUnpaid(t *testing.T) {
	f := newFixture(t)
	open := f.submit(t, "100", "cash")
	done := f.submit(t, "200", "cash")
	f.act(t, done.ID, headID, approval.ActionReject)

	records, err := f.service.ListUnpaid(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, open.ID, records[0].ID)
}

func mustGet(t *testing.T, f *fixture, id int64) expense.Record {
	t.Helper()
	rec, err := f.service.Get(context.Background(), id)
	require.NoError(t, err)
	return rec
}

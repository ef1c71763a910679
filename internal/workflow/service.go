// Package workflow runs expense actions end to end: it serializes work per
// record, consults the approval guard, persists the transition and brings the
// tracked chat messages and the payment ledger in line with the new state.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/expenseflow/internal/approval"
	"github.com/odyssey-erp/expenseflow/internal/expense"
	"github.com/odyssey-erp/expenseflow/internal/notify"
	"github.com/odyssey-erp/expenseflow/internal/roles"
	"github.com/odyssey-erp/expenseflow/internal/shared"
)

// RecordStore persists expense records.
type RecordStore interface {
	Insert(ctx context.Context, rec expense.Record) (int64, error)
	Get(ctx context.Context, id int64) (expense.Record, error)
	Update(ctx context.Context, id int64, patch expense.Patch) (expense.Record, error)
	ListUnfinalized(ctx context.Context) ([]expense.Record, error)
}

// Directory resolves parties to roles and chats.
type Directory interface {
	RoleOf(party int64) (roles.Role, bool)
	Has(role roles.Role, party int64) bool
	NicknameOf(role roles.Role, party int64) string
	ChatIDsOf(role roles.Role) []int64
	ChatIDByNickname(nickname string) (int64, bool)
	PaymentChats(method string) []int64
	Allowed(party int64) bool
}

// Notifier keeps per-role messages in sync with a record.
type Notifier interface {
	Synchronize(ctx context.Context, req notify.SyncRequest) error
	Purge(ctx context.Context, recordID int64) error
}

// ExportQueue schedules the spreadsheet export of a paid record.
type ExportQueue interface {
	EnqueueExport(ctx context.Context, recordID int64) error
}

// ApprovalPort stores the decision history.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort observes transitions and refusals.
type MetricsPort interface {
	Transition(action, status string)
	Refused(action, reason string)
}

// Dependencies groups the collaborators of Service. Store, Directory and
// Notifier are required.
type Dependencies struct {
	Store     RecordStore
	Directory Directory
	Notifier  Notifier
	Exports   ExportQueue
	Approvals ApprovalPort
	Audit     AuditPort
	Metrics   MetricsPort
	Locks     *shared.RecordLocks
	Logger    *slog.Logger
	Clock     func() time.Time
}

// Service orchestrates expense submissions and decisions.
type Service struct {
	store     RecordStore
	dir       Directory
	notifier  Notifier
	exports   ExportQueue
	approvals ApprovalPort
	audit     AuditPort
	metrics   MetricsPort
	locks     *shared.RecordLocks
	logger    *slog.Logger
	clock     func() time.Time
}

const module = "expense"

// NewService constructs the workflow service.
func NewService(deps Dependencies) (*Service, error) {
	if deps.Store == nil || deps.Directory == nil || deps.Notifier == nil {
		return nil, errors.New("workflow: store, directory and notifier are required")
	}
	if deps.Locks == nil {
		deps.Locks = shared.NewRecordLocks()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Service{
		store:     deps.Store,
		dir:       deps.Directory,
		notifier:  deps.Notifier,
		exports:   deps.Exports,
		approvals: deps.Approvals,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		locks:     deps.Locks,
		logger:    deps.Logger,
		clock:     deps.Clock,
	}, nil
}

// ActInput is a decision on a record. Role is optional; when set and held by
// the actor it overrides the actor's default role.
type ActInput struct {
	RecordID int64
	ActorID  int64
	Action   approval.Action
	Role     roles.Role
}

// Submit validates and stores a new record, then asks the heads to decide.
func (s *Service) Submit(ctx context.Context, input expense.SubmitInput) (expense.Record, error) {
	if !s.dir.Allowed(input.InitiatorID) {
		return expense.Record{}, shared.ErrAccessDenied
	}
	rec, err := expense.NewRecord(input, s.clock())
	if err != nil {
		return expense.Record{}, err
	}
	id, err := s.store.Insert(ctx, rec)
	if err != nil {
		return expense.Record{}, err
	}
	rec.ID = id

	unlock := s.locks.Lock(shared.RecordLockKey(id))
	defer unlock()

	s.recordApproval(ctx, rec.ID, input.InitiatorID, shared.ApprovalSubmit, "")
	s.recordAudit(ctx, input.InitiatorID, "EXPENSE_SUBMIT", rec.ID, map[string]any{
		"amount":           rec.Amount.String(),
		"approvals_needed": rec.ApprovalsNeeded,
	})
	if s.metrics != nil {
		s.metrics.Transition("submit", string(rec.Status))
	}

	initiator := s.displayName(rec.InitiatorID)
	notices := []approval.Notice{
		{Role: roles.Initiator, Stage: notify.StageInitiatorToHead, Audience: approval.AudienceInitiator, Approver: initiator},
		{Role: roles.Head, Stage: notify.StageFromInitiator, Audience: approval.AudienceRole, Keyboard: notify.KeyboardApproval, Approver: initiator},
	}
	s.deliver(ctx, rec, input.InitiatorID, notices)

	s.logger.Info("expense submitted", slog.Int64("record_id", rec.ID), slog.Int64("initiator_id", rec.InitiatorID), slog.String("amount", rec.Amount.String()))
	return rec, nil
}

// Act applies approve, reject or pay on behalf of input.ActorID.
func (s *Service) Act(ctx context.Context, input ActInput) (expense.Record, error) {
	role, err := s.actingRole(input.ActorID, input.Role)
	if err != nil {
		s.refused(input.Action, err)
		return expense.Record{}, err
	}

	unlock := s.locks.Lock(shared.RecordLockKey(input.RecordID))
	defer unlock()

	rec, err := s.store.Get(ctx, input.RecordID)
	if err != nil {
		return expense.Record{}, err
	}

	name := s.dir.NicknameOf(role, input.ActorID)
	decision, err := approval.Decide(rec, input.Action, role, name)
	if err != nil {
		s.refused(input.Action, err)
		return rec, fmt.Errorf("workflow: record %d: %w", rec.ID, err)
	}

	updated, err := s.store.Update(ctx, rec.ID, decision.Patch(rec))
	if err != nil {
		return rec, err
	}
	action := approval.Normalize(role, input.Action)

	s.recordApproval(ctx, rec.ID, input.ActorID, historyAction(action), string(role))
	s.recordAudit(ctx, input.ActorID, "EXPENSE_"+string(historyAction(action)), rec.ID, map[string]any{
		"role": string(role),
		"from": string(rec.Status),
		"to":   string(updated.Status),
	})
	if s.metrics != nil {
		s.metrics.Transition(string(action), string(updated.Status))
	}

	s.deliver(ctx, updated, input.ActorID, decision.Notices)
	if decision.Terminal {
		if err := s.notifier.Purge(ctx, rec.ID); err != nil {
			s.logger.Error("purge notification ledger", slog.Int64("record_id", rec.ID), slog.Any("error", err))
		}
	}
	if decision.Export {
		s.enqueueExport(ctx, rec.ID)
	}

	s.logger.Info("expense transition",
		slog.Int64("record_id", rec.ID),
		slog.String("action", string(action)),
		slog.String("role", string(role)),
		slog.String("from", string(rec.Status)),
		slog.String("to", string(updated.Status)),
	)
	return updated, nil
}

// Approve is Act with the approve action.
func (s *Service) Approve(ctx context.Context, recordID, actorID int64) (expense.Record, error) {
	return s.Act(ctx, ActInput{RecordID: recordID, ActorID: actorID, Action: approval.ActionApprove})
}

// Reject is Act with the reject action.
func (s *Service) Reject(ctx context.Context, recordID, actorID int64) (expense.Record, error) {
	return s.Act(ctx, ActInput{RecordID: recordID, ActorID: actorID, Action: approval.ActionReject})
}

// Pay is Act with the pay action.
func (s *Service) Pay(ctx context.Context, recordID, actorID int64) (expense.Record, error) {
	return s.Act(ctx, ActInput{RecordID: recordID, ActorID: actorID, Action: approval.ActionPay})
}

// Get loads a record.
func (s *Service) Get(ctx context.Context, id int64) (expense.Record, error) {
	return s.store.Get(ctx, id)
}

// ListUnpaid returns records that are neither paid nor rejected.
func (s *Service) ListUnpaid(ctx context.Context) ([]expense.Record, error) {
	return s.store.ListUnfinalized(ctx)
}

func (s *Service) actingRole(actor int64, requested roles.Role) (roles.Role, error) {
	if requested != "" {
		if !s.dir.Has(requested, actor) {
			return "", approval.ErrRoleNotAllowed
		}
		return requested, nil
	}
	role, ok := s.dir.RoleOf(actor)
	if !ok {
		return "", approval.ErrRoleNotAllowed
	}
	return role, nil
}

// deliver synchronizes every notice. Notification failures never undo the
// persisted transition; they are logged.
func (s *Service) deliver(ctx context.Context, rec expense.Record, actor int64, notices []approval.Notice) {
	summary := expense.Summary(rec)
	initiator := s.displayName(rec.InitiatorID)
	for _, n := range notices {
		req := notify.SyncRequest{
			RecordID:   rec.ID,
			Role:       n.Role,
			Stage:      n.Stage,
			Recipients: s.recipients(rec, actor, n),
			Keyboard:   n.Keyboard.Build(rec.ID, n.Role),
			Args: notify.Args{
				RowID:             rec.ID,
				Approver:          n.Approver,
				InitiatorNickname: initiator,
				Summary:           summary,
			},
		}
		if err := s.notifier.Synchronize(ctx, req); err != nil {
			s.logger.Error("synchronize notifications",
				slog.Int64("record_id", rec.ID),
				slog.String("role", string(n.Role)),
				slog.String("stage", string(n.Stage)),
				slog.Any("error", err),
			)
		}
	}
}

func (s *Service) recipients(rec expense.Record, actor int64, n approval.Notice) []int64 {
	switch n.Audience {
	case approval.AudienceInitiator:
		return []int64{rec.InitiatorID}
	case approval.AudienceActor:
		return []int64{actor}
	case approval.AudiencePaymentRoute:
		return s.dir.PaymentChats(string(rec.PaymentMethod))
	case approval.AudienceFinanceApprover:
		if name, ok := rec.FinanceApprover(); ok {
			if chat, ok := s.dir.ChatIDByNickname(name); ok {
				return []int64{chat}
			}
		}
		return s.dir.ChatIDsOf(roles.Finance)
	default:
		return s.dir.ChatIDsOf(n.Role)
	}
}

// displayName prefers the initiator nickname and falls back to the acting role's.
func (s *Service) displayName(party int64) string {
	if s.dir.Has(roles.Initiator, party) {
		return s.dir.NicknameOf(roles.Initiator, party)
	}
	if role, ok := s.dir.RoleOf(party); ok {
		return s.dir.NicknameOf(role, party)
	}
	return strconv.FormatInt(party, 10)
}

func (s *Service) enqueueExport(ctx context.Context, recordID int64) {
	if s.exports == nil {
		s.logger.Warn("sheet export not configured", slog.Int64("record_id", recordID))
		return
	}
	if err := s.exports.EnqueueExport(ctx, recordID); err != nil {
		s.logger.Error("enqueue sheet export", slog.Int64("record_id", recordID), slog.Any("error", err))
	}
}

func (s *Service) refused(action approval.Action, err error) {
	if s.metrics == nil {
		return
	}
	reason := "other"
	switch {
	case errors.Is(err, approval.ErrAlreadyProcessed):
		reason = "already_processed"
	case errors.Is(err, approval.ErrRoleNotAllowed):
		reason = "role_not_allowed"
	case errors.Is(err, approval.ErrWrongStatus):
		reason = "wrong_status"
	}
	s.metrics.Refused(string(action), reason)
}

func (s *Service) recordApproval(ctx context.Context, recordID, actor int64, action shared.ApprovalAction, note string) {
	if s.approvals == nil {
		return
	}
	if err := s.approvals.Record(ctx, shared.ApprovalLog{Module: module, RefID: recordID, ActorID: actor, Action: action, Note: note, At: s.clock()}); err != nil {
		s.logger.Warn("record approval history", slog.Int64("record_id", recordID), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actor int64, action string, recordID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actor, Action: action, Entity: module, EntityID: strconv.FormatInt(recordID, 10), Meta: meta, At: s.clock()})
}

func historyAction(action approval.Action) shared.ApprovalAction {
	switch action {
	case approval.ActionReject:
		return shared.ApprovalReject
	case approval.ActionPay:
		return shared.ApprovalPay
	}
	return shared.ApprovalApprove
}

package approval

import (
	"fmt"

	"github.com/odyssey-erp/expenseflow/internal/expense"
	"github.com/odyssey-erp/expenseflow/internal/notify"
	"github.com/odyssey-erp/expenseflow/internal/roles"
)

// Audience tells the orchestrator where an untracked notice goes.
type Audience int

const (
	// AudienceInitiator is the record's initiator chat.
	AudienceInitiator Audience = iota
	// AudienceRole is every member of the notice role.
	AudienceRole
	// AudienceFinanceApprover is the finance party named in ApprovedBy.
	AudienceFinanceApprover
	// AudiencePaymentRoute is the payers routed by payment method.
	AudiencePaymentRoute
	// AudienceActor is the party that took the action.
	AudienceActor
)

// Notice is one role's message for a transition.
type Notice struct {
	Role     roles.Role
	Stage    notify.Stage
	Audience Audience
	Keyboard notify.KeyboardKind
	// Approver is the name rendered into the role's text.
	Approver string
}

// Decision is the outcome of a legal action.
type Decision struct {
	Status            expense.Status
	ApprovalsReceived int
	ApprovedBy        string
	RejectedBy        string
	Notices           []Notice
	// Export requests the spreadsheet export.
	Export bool
	// Terminal means the ledger must be purged once notices are delivered.
	Terminal bool
}

// Patch converts the decision into a guarded store update from the record's state.
func (d Decision) Patch(from expense.Record) expense.Patch {
	status := d.Status
	received := d.ApprovalsReceived
	patch := expense.Patch{
		ExpectStatus:      from.Status,
		ExpectReceived:    from.ApprovalsReceived,
		Status:            &status,
		ApprovalsReceived: &received,
	}
	if d.ApprovedBy != from.ApprovedBy {
		approvedBy := d.ApprovedBy
		patch.ApprovedBy = &approvedBy
	}
	if d.RejectedBy != from.RejectedBy {
		rejectedBy := d.RejectedBy
		patch.RejectedBy = &rejectedBy
	}
	return patch
}

// Decide computes the transition for action taken by role under the name approver.
// It runs Check first, so callers may skip it when they only need the decision.
func Decide(rec expense.Record, action Action, role roles.Role, approver string) (Decision, error) {
	if err := Check(role, action, rec.Status, rec.ApprovalsReceived); err != nil {
		return Decision{}, err
	}
	action = Normalize(role, action)

	d := Decision{
		Status:            rec.Status,
		ApprovalsReceived: rec.ApprovalsReceived,
		ApprovedBy:        rec.ApprovedBy,
		RejectedBy:        rec.RejectedBy,
	}

	switch {
	case action == ActionReject:
		d.reject(rec, role, approver)
	case action == ActionPay:
		d.pay(rec, approver)
	case role == roles.Head:
		d.approveByHead(rec, approver)
	case role == roles.Finance:
		d.approveByFinance(rec, approver)
	default:
		return Decision{}, fmt.Errorf("%w: %s by %s", ErrRoleNotAllowed, action, role)
	}
	return d, nil
}

func (d *Decision) approveByHead(rec expense.Record, head string) {
	d.ApprovalsReceived = rec.ApprovalsReceived + 1
	d.ApprovedBy = appendApprover(rec.ApprovedBy, head)
	if rec.ApprovalsNeeded >= 2 {
		d.Status = expense.StatusPending
		d.Notices = []Notice{
			{Role: roles.Initiator, Stage: notify.StageHeadToFinance, Audience: AudienceInitiator, Approver: head},
			{Role: roles.Head, Stage: notify.StageHeadToFinance, Audience: AudienceRole, Approver: head},
			{Role: roles.Finance, Stage: notify.StageFromHead, Audience: AudienceRole, Keyboard: notify.KeyboardApproval, Approver: head},
		}
		return
	}
	d.Status = expense.StatusApproved
	d.Notices = []Notice{
		{Role: roles.Initiator, Stage: notify.StageHeadToPayment, Audience: AudienceInitiator, Approver: head},
		{Role: roles.Head, Stage: notify.StageHeadToPayment, Audience: AudienceRole, Approver: head},
		{Role: roles.Payment, Stage: notify.StageHeadToPayment, Audience: AudiencePaymentRoute, Keyboard: notify.KeyboardPayment, Approver: head},
	}
}

func (d *Decision) approveByFinance(rec expense.Record, finance string) {
	head := rec.ApprovedBy
	d.Status = expense.StatusApproved
	d.ApprovalsReceived = rec.ApprovalsReceived + 1
	d.ApprovedBy = appendApprover(rec.ApprovedBy, finance)
	d.Notices = []Notice{
		{Role: roles.Initiator, Stage: notify.StageHeadFinanceToPayment, Audience: AudienceInitiator, Approver: d.ApprovedBy},
		{Role: roles.Head, Stage: notify.StageHeadFinanceToPayment, Audience: AudienceRole, Approver: finance},
		{Role: roles.Finance, Stage: notify.StageToPayment, Audience: AudienceActor, Approver: head},
		{Role: roles.Payment, Stage: notify.StageFinanceToPayment, Audience: AudiencePaymentRoute, Keyboard: notify.KeyboardPayment, Approver: d.ApprovedBy},
	}
}

func (d *Decision) pay(rec expense.Record, payer string) {
	d.Status = expense.StatusPaid
	d.Export = true
	d.Terminal = true
	d.Notices = []Notice{
		{Role: roles.Initiator, Stage: notify.StagePaid, Audience: AudienceInitiator, Approver: payer},
		{Role: roles.Head, Stage: notify.StagePaid, Audience: AudienceRole, Approver: payer},
	}
	if rec.ApprovalsReceived == 2 {
		d.Notices = append(d.Notices, Notice{Role: roles.Finance, Stage: notify.StagePaid, Audience: AudienceFinanceApprover, Approver: payer})
	}
	d.Notices = append(d.Notices, Notice{Role: roles.Payment, Stage: notify.StagePaid, Audience: AudienceActor, Approver: payer})
}

// reject notifies the parties that already saw the record: finance once it was
// asked to approve, payment once the record reached it.
func (d *Decision) reject(rec expense.Record, role roles.Role, rejecter string) {
	d.Status = expense.StatusRejected
	d.RejectedBy = rejecter
	d.Terminal = true
	d.Notices = []Notice{
		{Role: roles.Initiator, Stage: notify.StageRejected, Audience: AudienceInitiator, Approver: rejecter},
		{Role: roles.Head, Stage: notify.StageRejected, Audience: AudienceRole, Approver: rejecter},
	}
	financeInvolved := rec.ApprovalsNeeded >= 2 &&
		(rec.Status == expense.StatusPending || rec.Status == expense.StatusApproved)
	if financeInvolved {
		audience := AudienceRole
		if role == roles.Finance {
			audience = AudienceActor
		} else if rec.ApprovalsReceived == 2 {
			audience = AudienceFinanceApprover
		}
		d.Notices = append(d.Notices, Notice{Role: roles.Finance, Stage: notify.StageRejected, Audience: audience, Approver: rejecter})
	}
	if rec.Status == expense.StatusApproved {
		d.Notices = append(d.Notices, Notice{Role: roles.Payment, Stage: notify.StageRejected, Audience: AudiencePaymentRoute, Approver: rejecter})
	}
}

func appendApprover(current, name string) string {
	if current == "" {
		return name
	}
	return current + expense.ApproverSeparator + name
}

package expense

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an expense record. Values are stored verbatim.
type Status string

const (
	StatusNotProcessed Status = "Not processed"
	StatusPending      Status = "Pending"
	StatusApproved     Status = "Approved"
	StatusPaid         Status = "Paid"
	StatusRejected     Status = "Rejected"
)

// Terminal reports whether no transition can leave the status.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusRejected
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNotProcessed, StatusPending, StatusApproved, StatusPaid, StatusRejected:
		return true
	}
	return false
}

// PaymentMethod enumerates how an expense is paid out.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodCard         PaymentMethod = "card"
	MethodCrypto       PaymentMethod = "crypto"
	MethodBankTransfer PaymentMethod = "bank_transfer"
)

var methodAliases = map[string]PaymentMethod{
	"cash":          MethodCash,
	"нал":           MethodCash,
	"наличные":      MethodCash,
	"card":          MethodCard,
	"карта":         MethodCard,
	"crypto":        MethodCrypto,
	"крипта":        MethodCrypto,
	"bank_transfer": MethodBankTransfer,
	"bank-transfer": MethodBankTransfer,
	"безнал":        MethodBankTransfer,
}

var methodLabels = map[PaymentMethod]string{
	MethodCash:         "нал",
	MethodCard:         "карта",
	MethodCrypto:       "крипта",
	MethodBankTransfer: "безнал",
}

// ParsePaymentMethod accepts canonical names and the Russian shorthands used in chats.
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	method, ok := methodAliases[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", fmt.Errorf("%w: unknown payment method %q", ErrValidation, raw)
	}
	return method, nil
}

// Label returns the human readable name used in messages and the spreadsheet.
func (m PaymentMethod) Label() string {
	if label, ok := methodLabels[m]; ok {
		return label
	}
	return string(m)
}

// ApprovalThreshold splits single-approval expenses from those that also need finance.
var ApprovalThreshold = decimal.NewFromInt(50000)

// ApproverSeparator joins approver names in ApprovedBy.
const ApproverSeparator = " и "

// RequiredApprovals derives approvals_needed from the amount.
func RequiredApprovals(amount decimal.Decimal) int {
	if amount.LessThan(ApprovalThreshold) {
		return 1
	}
	return 2
}

// Record is a single expense submission.
type Record struct {
	ID                int64
	Amount            decimal.Decimal
	Item              string
	Group             string
	Comment           string
	Period            []string
	PaymentMethod     PaymentMethod
	ApprovalsNeeded   int
	ApprovalsReceived int
	Status            Status
	ApprovedBy        string
	RejectedBy        string
	InitiatorID       int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Terminal reports whether the record is finalized.
func (r Record) Terminal() bool {
	return r.Status.Terminal()
}

// Approvers splits ApprovedBy into individual names.
func (r Record) Approvers() []string {
	if r.ApprovedBy == "" {
		return nil
	}
	return strings.Split(r.ApprovedBy, ApproverSeparator)
}

// FinanceApprover returns the name of the second approver, if any.
func (r Record) FinanceApprover() (string, bool) {
	approvers := r.Approvers()
	if len(approvers) < 2 {
		return "", false
	}
	return approvers[1], true
}

// Patch is a partial update applied only when the stored record still has the
// expected status and approval count. Nil fields are left untouched.
type Patch struct {
	ExpectStatus      Status
	ExpectReceived    int
	Status            *Status
	ApprovalsReceived *int
	ApprovedBy        *string
	RejectedBy        *string
}

// Apply returns r with the patch fields written over it.
func (p Patch) Apply(r Record) Record {
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.ApprovalsReceived != nil {
		r.ApprovalsReceived = *p.ApprovalsReceived
	}
	if p.ApprovedBy != nil {
		r.ApprovedBy = *p.ApprovedBy
	}
	if p.RejectedBy != nil {
		r.RejectedBy = *p.RejectedBy
	}
	return r
}

// Matches reports whether r is still in the state the patch was computed from.
func (p Patch) Matches(r Record) bool {
	return r.Status == p.ExpectStatus && r.ApprovalsReceived == p.ExpectReceived
}

var (
	// ErrNotFound indicates the record does not exist.
	ErrNotFound = errors.New("expense: record not found")
	// ErrValidation wraps malformed submission input.
	ErrValidation = errors.New("expense: validation failed")
	// ErrConcurrentUpdate indicates the record changed between read and write.
	ErrConcurrentUpdate = errors.New("expense: record changed concurrently")
)

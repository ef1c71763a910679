package notify

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/odyssey-erp/expenseflow/internal/roles"
)

// Button is one inline button with its callback payload.
type Button struct {
	Text string
	Data string
}

// Keyboard is a grid of inline buttons. A nil keyboard sends plain text.
type Keyboard [][]Button

// KeyboardKind names the button set attached to a notice.
type KeyboardKind int

const (
	KeyboardNone KeyboardKind = iota
	KeyboardApproval
	KeyboardPayment
)

// Build creates the concrete keyboard for a record addressed to role.
func (k KeyboardKind) Build(recordID int64, role roles.Role) Keyboard {
	switch k {
	case KeyboardApproval:
		return ApprovalKeyboard(recordID, role)
	case KeyboardPayment:
		return PaymentKeyboard(recordID)
	}
	return nil
}

// ApprovalKeyboard offers approve and reject buttons to role.
func ApprovalKeyboard(recordID int64, role roles.Role) Keyboard {
	return Keyboard{
		{{Text: "Одобрить", Data: fmt.Sprintf("approval_approve_%s_%d", role, recordID)}},
		{{Text: "Отклонить", Data: fmt.Sprintf("approval_reject_%s_%d", role, recordID)}},
	}
}

// PaymentKeyboard offers the single "paid" button.
func PaymentKeyboard(recordID int64) Keyboard {
	return Keyboard{{{Text: "Оплачено", Data: fmt.Sprintf("payment_%d", recordID)}}}
}

// ErrBadCallback is returned for payloads not produced by this package.
var ErrBadCallback = errors.New("notify: malformed callback data")

// Callback is a decoded button press.
type Callback struct {
	Action   string
	Role     roles.Role
	RecordID int64
}

// ParseCallback decodes "approval_<action>_<role>_<id>" and "payment_<id>".
func ParseCallback(data string) (Callback, error) {
	parts := strings.Split(data, "_")
	switch {
	case len(parts) == 2 && parts[0] == "payment":
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return Callback{}, ErrBadCallback
		}
		return Callback{Action: "pay", Role: roles.Payment, RecordID: id}, nil
	case len(parts) == 4 && parts[0] == "approval":
		if parts[1] != "approve" && parts[1] != "reject" {
			return Callback{}, ErrBadCallback
		}
		role, err := roles.Parse(parts[2])
		if err != nil {
			return Callback{}, ErrBadCallback
		}
		id, err := strconv.ParseInt(parts[3], 10, 64)
		if err != nil {
			return Callback{}, ErrBadCallback
		}
		return Callback{Action: parts[1], Role: role, RecordID: id}, nil
	}
	return Callback{}, ErrBadCallback
}

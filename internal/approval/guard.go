// Package approval holds the expense state machine: the legality guard shared by
// every entry point and the transition function that derives the next state and
// the notices it produces.
package approval

import (
	"errors"
	"fmt"

	"github.com/odyssey-erp/expenseflow/internal/expense"
	"github.com/odyssey-erp/expenseflow/internal/roles"
)

// Action is a decision a party takes on a record.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionPay     Action = "pay"
)

// ParseAction converts the wire name of an action.
func ParseAction(raw string) (Action, error) {
	switch Action(raw) {
	case ActionApprove, ActionReject, ActionPay:
		return Action(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, raw)
}

var (
	// ErrAlreadyProcessed is returned for every action on a Paid or Rejected record.
	ErrAlreadyProcessed = errors.New("approval: record already processed")
	// ErrRoleNotAllowed is returned when the acting role may not take the action at all.
	ErrRoleNotAllowed = errors.New("approval: role not allowed")
	// ErrWrongStatus is returned when the role may act but not in the current state.
	ErrWrongStatus = errors.New("approval: action not allowed in current status")
	// ErrUnknownAction is returned for actions outside approve, reject and pay.
	ErrUnknownAction = errors.New("approval: unknown action")
)

// Normalize maps a payment approve onto pay.
func Normalize(role roles.Role, action Action) Action {
	if role == roles.Payment && action == ActionApprove {
		return ActionPay
	}
	return action
}

// Check reports whether role may take action on a record in the given state.
// The terminal check runs first so finalized records always answer the same way.
func Check(role roles.Role, action Action, status expense.Status, received int) error {
	if status.Terminal() {
		return ErrAlreadyProcessed
	}
	if !role.CanDecide() {
		return ErrRoleNotAllowed
	}
	action = Normalize(role, action)

	switch role {
	case roles.Payment:
		if action != ActionPay {
			return ErrRoleNotAllowed
		}
		if status != expense.StatusApproved {
			return ErrWrongStatus
		}
		return nil
	case roles.Head:
		switch action {
		case ActionApprove:
			if status != expense.StatusNotProcessed {
				return ErrWrongStatus
			}
			return nil
		case ActionReject:
			if (received == 0 && status == expense.StatusNotProcessed) ||
				(received == 1 && (status == expense.StatusPending || status == expense.StatusApproved)) {
				return nil
			}
			return ErrWrongStatus
		}
	case roles.Finance:
		switch action {
		case ActionApprove:
			if status != expense.StatusPending {
				return ErrWrongStatus
			}
			return nil
		case ActionReject:
			if (received == 1 && status == expense.StatusPending) ||
				(received == 2 && status == expense.StatusApproved) {
				return nil
			}
			return ErrWrongStatus
		}
	}
	if action == ActionPay {
		return ErrRoleNotAllowed
	}
	return ErrUnknownAction
}

package approval

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/odyssey-erp/expenseflow/internal/expense"
	"github.com/odyssey-erp/expenseflow/internal/roles"
)

type state struct {
	status   expense.Status
	received int
}

var openStates = []state{
	{expense.StatusNotProcessed, 0},
	{expense.StatusPending, 1},
	{expense.StatusApproved, 1},
	{expense.StatusApproved, 2},
}

func TestCheckLegalityTable(t *testing.T) {
	legal := map[string]bool{
		"head/approve/Not processed/0": true,
		"head/reject/Not processed/0":  true,
		"head/reject/Pending/1":        true,
		"head/reject/Approved/1":       true,
		"finance/approve/Pending/1":    true,
		"finance/reject/Pending/1":     true,
		"finance/reject/Approved/2":    true,
		"payment/pay/Approved/1":       true,
		"payment/pay/Approved/2":       true,
		"payment/approve/Approved/1":   true,
		"payment/approve/Approved/2":   true,
	}
	for _, role := range []roles.Role{roles.Head, roles.Finance, roles.Payment} {
		for _, action := range []Action{ActionApprove, ActionReject, ActionPay} {
			for _, st := range openStates {
				key := fmt.Sprintf("%s/%s/%s/%d", role, action, st.status, st.received)
				err := Check(role, action, st.status, st.received)
				if legal[key] {
					assert.NoError(t, err, key)
				} else {
					assert.Error(t, err, key)
				}
			}
		}
	}
}

func TestCheckTerminalComesFirst(t *testing.T) {
	for _, status := range []expense.Status{expense.StatusPaid, expense.StatusRejected} {
		for _, role := range roles.All {
			assert.ErrorIs(t, Check(role, ActionApprove, status, 1), ErrAlreadyProcessed)
		}
	}
}

func TestCheckRoleErrors(t *testing.T) {
	assert.ErrorIs(t, Check(roles.Initiator, ActionApprove, expense.StatusNotProcessed, 0), ErrRoleNotAllowed)
	assert.ErrorIs(t, Check(roles.Payment, ActionReject, expense.StatusApproved, 1), ErrRoleNotAllowed)
	assert.ErrorIs(t, Check(roles.Head, ActionPay, expense.StatusApproved, 1), ErrRoleNotAllowed)
	assert.ErrorIs(t, Check(roles.Payment, ActionPay, expense.StatusPending, 1), ErrWrongStatus)
	assert.ErrorIs(t, Check(roles.Head, Action("escalate"), expense.StatusNotProcessed, 0), ErrUnknownAction)
}

func TestParseAction(t *testing.T) {
	action, err := ParseAction("reject")
	assert.NoError(t, err)
	assert.Equal(t, ActionReject, action)

	_, err = ParseAction("maybe")
	assert.ErrorIs(t, err, ErrUnknownAction)
}

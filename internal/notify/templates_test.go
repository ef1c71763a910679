package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/expenseflow/internal/roles"
)

func TestDefaultTemplatesCoverWorkflowStages(t *testing.T) {
	tpl := DefaultTemplates()
	pairs := map[roles.Role][]Stage{
		roles.Initiator: {StageInitiatorToHead, StageHeadToFinance, StageHeadToPayment, StageHeadFinanceToPayment, StagePaid, StageRejected},
		roles.Head:      {StageFromInitiator, StageHeadToFinance, StageHeadToPayment, StageHeadFinanceToPayment, StagePaid, StageRejected},
		roles.Finance:   {StageFromHead, StageToPayment, StagePaid, StageRejected},
		roles.Payment:   {StageHeadToPayment, StageFinanceToPayment, StagePaid, StageRejected},
	}
	args := Args{RowID: 42, Approver: "@boss и @fin", InitiatorNickname: "@ivan", Summary: "Данные счета:\n"}
	for role, stages := range pairs {
		for _, stage := range stages {
			text, err := tpl.Render(role, stage, args)
			require.NoError(t, err, "%s/%s", role, stage)
			assert.Contains(t, text, "№42")
			assert.Contains(t, text, "Данные счета:")
		}
	}
}

func TestRenderSubstitutesApprover(t *testing.T) {
	text, err := DefaultTemplates().Render(roles.Initiator, StagePaid, Args{RowID: 3, Approver: "@payer", Summary: "S"})
	require.NoError(t, err)
	assert.Equal(t, "Счет №3 оплачен @payer.\nS", text)
}

func TestRenderUnknownPair(t *testing.T) {
	_, err := DefaultTemplates().Render(roles.Payment, StageFromHead, Args{})
	require.ErrorIs(t, err, ErrUnknownTemplate)
}

func TestNewTemplatesRejectsBrokenText(t *testing.T) {
	_, err := NewTemplates(map[roles.Role]map[Stage]string{roles.Head: {StagePaid: "{{.RowID"}})
	require.Error(t, err)
}

func TestCallbackRoundTrip(t *testing.T) {
	kb := ApprovalKeyboard(15, roles.Finance)
	cb, err := ParseCallback(kb[1][0].Data)
	require.NoError(t, err)
	assert.Equal(t, Callback{Action: "reject", Role: roles.Finance, RecordID: 15}, cb)

	cb, err = ParseCallback(PaymentKeyboard(16)[0][0].Data)
	require.NoError(t, err)
	assert.Equal(t, Callback{Action: "pay", Role: roles.Payment, RecordID: 16}, cb)

	assert.Nil(t, KeyboardNone.Build(1, roles.Head))
	assert.Len(t, KeyboardApproval.Build(1, roles.Head), 2)

	for _, bad := range []string{"", "payment_x", "approval_maybe_head_1", "approval_approve_owner_1", "approval_approve_head"} {
		_, err := ParseCallback(bad)
		assert.ErrorIs(t, err, ErrBadCallback, bad)
	}
}

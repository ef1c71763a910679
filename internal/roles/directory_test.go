package roles

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDirectory = `
members:
  initiator: [100, 500]
  head: [200]
  finance: [300, 301]
  payment: [400, 500]
nicknames:
  initiator:
    100: "@ivan"
    500: "Мариной"
  head:
    200: "@boss"
  finance:
    300: "@fin_a"
    301: "@fin_b"
  payment:
    400: "@payer"
    500: "Мариной"
payment_routes:
  cash: [500]
white_list: [100, 200, 300, 301, 400, 500]
`

func loadSample(t *testing.T) *Directory {
	t.Helper()
	dir, err := Load(strings.NewReader(sampleDirectory))
	require.NoError(t, err)
	return dir
}

func TestRoleOfPrefersDecisionRoles(t *testing.T) {
	dir := loadSample(t)

	role, ok := dir.RoleOf(500)
	require.True(t, ok)
	assert.Equal(t, Payment, role)

	role, ok = dir.RoleOf(100)
	require.True(t, ok)
	assert.Equal(t, Initiator, role)

	_, ok = dir.RoleOf(999)
	assert.False(t, ok)
}

func TestNicknameFallsBackToID(t *testing.T) {
	dir := loadSample(t)
	assert.Equal(t, "@boss", dir.NicknameOf(Head, 200))
	assert.Equal(t, "200", dir.NicknameOf(Finance, 200))
}

func TestChatIDByNickname(t *testing.T) {
	dir := loadSample(t)
	id, ok := dir.ChatIDByNickname("@fin_b")
	require.True(t, ok)
	assert.Equal(t, int64(301), id)

	_, ok = dir.ChatIDByNickname("@nobody")
	assert.False(t, ok)
}

func TestPaymentChatsRouting(t *testing.T) {
	dir := loadSample(t)
	assert.Equal(t, []int64{500}, dir.PaymentChats("cash"))
	assert.Equal(t, []int64{400, 500}, dir.PaymentChats("bank_transfer"))
}

func TestChatIDsOfReturnsCopy(t *testing.T) {
	dir := loadSample(t)
	ids := dir.ChatIDsOf(Finance)
	ids[0] = 0
	assert.Equal(t, []int64{300, 301}, dir.ChatIDsOf(Finance))
}

func TestAllowed(t *testing.T) {
	dir := loadSample(t)
	assert.True(t, dir.Allowed(400))
	assert.False(t, dir.Allowed(999))

	open, err := New(File{Members: map[Role][]int64{Head: {1}}})
	require.NoError(t, err)
	assert.True(t, open.Allowed(1))
	assert.False(t, open.Allowed(2))
}

func TestNewRejectsInvalidFiles(t *testing.T) {
	_, err := New(File{Members: map[Role][]int64{Finance: {1}}})
	require.ErrorIs(t, err, ErrNoHead)

	_, err = New(File{Members: map[Role][]int64{Head: {1}, "boss": {2}}})
	require.Error(t, err)
}

func TestParse(t *testing.T) {
	role, err := Parse("finance")
	require.NoError(t, err)
	assert.Equal(t, Finance, role)
	assert.True(t, role.CanDecide())
	assert.False(t, Initiator.CanDecide())

	_, err = Parse("owner")
	require.Error(t, err)
}

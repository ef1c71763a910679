package sheets

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/expenseflow/internal/expense"
)

func paidRecord(amount string, period ...string) expense.Record {
	return expense.Record{
		ID:            3,
		Amount:        decimal.RequireFromString(amount),
		Item:          "Аренда",
		Group:         "Офис",
		Comment:       "июль",
		Period:        period,
		PaymentMethod: expense.MethodBankTransfer,
		Status:        expense.StatusPaid,
	}
}

func TestBuildRowsSplitsAmountPerPeriod(t *testing.T) {
	today := time.Date(2024, 9, 5, 23, 30, 0, 0, Moscow(""))
	rows, err := BuildRows(paidRecord("9000", "01.08.2024", "01.09.2024"), today)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	for i, period := range []string{"01.08.2024", "01.09.2024"} {
		assert.Equal(t, "4500", rows[i].Amount.String())
		assert.Equal(t, period, rows[i].Period)
		assert.Equal(t, "05.09.2024", rows[i].Date)
		assert.Equal(t, "безнал", rows[i].Method)
	}
	assert.Equal(t, []any{"05.09.2024", 4500.0, "Аренда", "Офис", "", "", "июль", "01.08.2024", "безнал"}, rows[0].Values())
}

func TestBuildRowsRoundsHalfUp(t *testing.T) {
	rows, err := BuildRows(paidRecord("100.01", "01.01.2025", "01.02.2025"), time.Now())
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("50.01").Equal(rows[0].Amount), rows[0].Amount.String())

	rows, err = BuildRows(paidRecord("100", "01.01.2025", "01.02.2025", "01.03.2025"), time.Now())
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("33.33").Equal(rows[2].Amount))
}

func TestBuildRowsRequiresPeriod(t *testing.T) {
	_, err := BuildRows(paidRecord("10"), time.Now())
	require.Error(t, err)
}

func TestFirstBlankRow(t *testing.T) {
	assert.Equal(t, 1, FirstBlankRow(nil))

	filled := [][]any{{"Дата", "Сумма"}, {"", "05.09.2024", 100}}
	assert.Equal(t, 3, FirstBlankRow(filled))

	gap := [][]any{{"header"}, {}, {"x"}}
	assert.Equal(t, 2, FirstBlankRow(gap))

	// only the first ten columns matter
	wide := [][]any{{"h"}, {"", "", "", "", "", "", "", "", "", "", "note"}}
	assert.Equal(t, 2, FirstBlankRow(wide))
}

func TestMoscowFallsBack(t *testing.T) {
	loc := Moscow("Nowhere/Invalid")
	_, offset := time.Date(2024, 1, 1, 0, 0, 0, 0, loc).Zone()
	assert.Equal(t, 3*60*60, offset)
}

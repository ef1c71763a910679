// Package sheets mirrors paid expenses into the payment ledger spreadsheet.
package sheets

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/expenseflow/internal/expense"
)

// DateLayout is the dd.mm.yyyy form used in the ledger.
const DateLayout = "02.01.2006"

// scanColumns is how many leading columns must be blank for a row to count as free.
const scanColumns = 10

// Row is one ledger line. Columns B..J in order.
type Row struct {
	Date    string
	Amount  decimal.Decimal
	Item    string
	Group   string
	Comment string
	Period  string
	Method  string
}

// Values renders the row as spreadsheet cells. Columns F and G stay empty.
func (r Row) Values() []any {
	return []any{r.Date, r.Amount.InexactFloat64(), r.Item, r.Group, "", "", r.Comment, r.Period, r.Method}
}

// BuildRows splits a record into one row per period token with the amount
// divided evenly and rounded half-up to kopecks.
func BuildRows(rec expense.Record, today time.Time) ([]Row, error) {
	if len(rec.Period) == 0 {
		return nil, fmt.Errorf("sheets: record %d has no period", rec.ID)
	}
	share := rec.Amount.DivRound(decimal.NewFromInt(int64(len(rec.Period))), 2)
	date := today.Format(DateLayout)
	rows := make([]Row, 0, len(rec.Period))
	for _, token := range rec.Period {
		rows = append(rows, Row{
			Date:    date,
			Amount:  share,
			Item:    rec.Item,
			Group:   rec.Group,
			Comment: rec.Comment,
			Period:  token,
			Method:  rec.PaymentMethod.Label(),
		})
	}
	return rows, nil
}

// FirstBlankRow returns the 1-based index of the first row whose leading ten
// cells are empty, or the row after the last one.
func FirstBlankRow(values [][]any) int {
	for i, row := range values {
		if blank(row) {
			return i + 1
		}
	}
	return len(values) + 1
}

func blank(row []any) bool {
	for i := 0; i < len(row) && i < scanColumns; i++ {
		if row[i] == nil {
			continue
		}
		if s, ok := row[i].(string); ok && s == "" {
			continue
		}
		return false
	}
	return true
}

// Moscow returns the ledger's timezone, falling back to a fixed UTC+3 offset
// when the zone database is unavailable.
func Moscow(name string) *time.Location {
	if name == "" {
		name = "Europe/Moscow"
	}
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	return time.FixedZone("MSK", 3*60*60)
}

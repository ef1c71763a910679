package expense

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var amountPrinter = message.NewPrinter(language.Russian)

// FormatAmount renders an amount with Russian digit grouping.
func FormatAmount(amount decimal.Decimal) string {
	if amount.IsInteger() {
		return amountPrinter.Sprintf("%d", amount.IntPart())
	}
	return amountPrinter.Sprintf("%.2f", amount.Round(2).InexactFloat64())
}

// Summary renders the record card appended to every notification.
func Summary(r Record) string {
	var b strings.Builder
	b.WriteString("Данные счета:\n")
	fmt.Fprintf(&b, "1.Сумма: %s₽;\n", FormatAmount(r.Amount))
	fmt.Fprintf(&b, "2.Статья: %q\n", r.Item)
	fmt.Fprintf(&b, "3.Группа: %q\n", r.Group)
	fmt.Fprintf(&b, "4.Комментарий: %q\n", r.Comment)
	fmt.Fprintf(&b, "5.Даты начисления: %q\n", strings.Join(r.Period, ", "))
	fmt.Fprintf(&b, "6.Форма оплаты: %q\n", r.PaymentMethod.Label())
	return b.String()
}

// ListEntry renders a record for the unpaid list.
func ListEntry(r Record) string {
	return fmt.Sprintf("Счёт №%d, статус: %s\n%s", r.ID, r.Status, Summary(r))
}

// StatusText answers a status query for the record.
func StatusText(r Record) string {
	switch r.Status {
	case StatusRejected:
		return fmt.Sprintf("Счёт №%d отклонён %s.", r.ID, r.RejectedBy)
	case StatusPending:
		return fmt.Sprintf("Счёт №%d одобрен %s и ожидает согласования финансового отдела.", r.ID, r.ApprovedBy)
	case StatusApproved:
		return fmt.Sprintf("Счёт №%d одобрен %s и ожидает оплаты.", r.ID, r.ApprovedBy)
	case StatusPaid:
		return fmt.Sprintf("Счёт №%d оплачен.", r.ID)
	case StatusNotProcessed:
		return fmt.Sprintf("Счёт №%d ожидает согласования руководителя департамента.", r.ID)
	}
	return "Ожидается информация по статусу счёта."
}

package expense

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	amountPattern = regexp.MustCompile(`^[0-9]+(?:\.[0-9]+)?$`)
	periodPattern = regexp.MustCompile(`^\d{2}\.\d{2}$`)
	validate      = validator.New()
)

// SubmitInput carries the raw values collected from the initiator.
type SubmitInput struct {
	InitiatorID   int64  `validate:"required"`
	Amount        string `validate:"required"`
	Item          string `validate:"required,max=255"`
	Group         string `validate:"required,max=255"`
	Comment       string `validate:"required,max=1024"`
	Period        string `validate:"required"`
	PaymentMethod string `validate:"required"`
}

// ParseAmount accepts digits with an optional fractional part; a comma is read as the decimal point.
func ParseAmount(raw string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	if !amountPattern.MatchString(cleaned) {
		return decimal.Zero, fmt.Errorf("%w: amount %q is not a number", ErrValidation, raw)
	}
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q: %v", ErrValidation, raw, err)
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	return amount, nil
}

// ParsePeriod turns space separated "mm.yy" tokens into "01.mm.yyyy" accrual dates.
func ParsePeriod(raw string) ([]string, error) {
	tokens := strings.Fields(raw)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: accrual period is empty", ErrValidation)
	}
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if !periodPattern.MatchString(token) {
			return nil, fmt.Errorf("%w: period %q must look like mm.yy", ErrValidation, token)
		}
		month, err := time.Parse("02.01.06", "01."+token)
		if err != nil {
			return nil, fmt.Errorf("%w: period %q: %v", ErrValidation, token, err)
		}
		out = append(out, month.Format("02.01.2006"))
	}
	return out, nil
}

// NewRecord validates input and builds a fresh record awaiting the head's decision.
func NewRecord(input SubmitInput, now time.Time) (Record, error) {
	input.Item = strings.TrimSpace(input.Item)
	input.Group = strings.TrimSpace(input.Group)
	input.Comment = strings.TrimSpace(input.Comment)
	if err := validate.Struct(input); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return Record{}, fmt.Errorf("%w: %s is %s", ErrValidation, strings.ToLower(fieldErrs[0].Field()), fieldErrs[0].Tag())
		}
		return Record{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	amount, err := ParseAmount(input.Amount)
	if err != nil {
		return Record{}, err
	}
	period, err := ParsePeriod(input.Period)
	if err != nil {
		return Record{}, err
	}
	method, err := ParsePaymentMethod(input.PaymentMethod)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Amount:          amount,
		Item:            input.Item,
		Group:           input.Group,
		Comment:         input.Comment,
		Period:          period,
		PaymentMethod:   method,
		ApprovalsNeeded: RequiredApprovals(amount),
		Status:          StatusNotProcessed,
		InitiatorID:     input.InitiatorID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

package notify

import (
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/odyssey-erp/expenseflow/internal/roles"
)

// Stage identifies which text variant a role sees at a point of the workflow.
type Stage string

const (
	StageInitiatorToHead      Stage = "initiator_to_head"
	StageFromInitiator        Stage = "from_initiator"
	StageHeadToFinance        Stage = "head_to_finance"
	StageHeadToPayment        Stage = "head_to_payment"
	StageHeadFinanceToPayment Stage = "head_finance_to_payment"
	StageFromHead             Stage = "from_head"
	StageToPayment            Stage = "to_payment"
	StageFinanceToPayment     Stage = "finance_to_payment"
	StagePaid                 Stage = "paid"
	StageRejected             Stage = "rejected"
)

// ErrUnknownTemplate is returned for a role/stage pair without text.
var ErrUnknownTemplate = errors.New("notify: unknown template")

// Args is the typed scratch data rendered into every template.
type Args struct {
	RowID             int64
	Approver          string
	InitiatorNickname string
	Summary           string
}

const (
	paidText     = "Счет №{{.RowID}} оплачен {{.Approver}}.\n{{.Summary}}"
	rejectedText = "Счет №{{.RowID}} отклонен {{.Approver}}.\n{{.Summary}}"
)

var defaultTexts = map[roles.Role]map[Stage]string{
	roles.Initiator: {
		StageInitiatorToHead:      "Вы добавили новый счет №{{.RowID}}.\nСчет передан на согласование руководителю отдела.\n{{.Summary}}",
		StageHeadToFinance:        "Счет №{{.RowID}} одобрен руководителем отдела - {{.Approver}} и передан на согласование в финансовый отдел.\n{{.Summary}}",
		StageHeadToPayment:        "Счет №{{.RowID}} согласован руководителем отдела - {{.Approver}} и передан на оплату.\n{{.Summary}}",
		StageHeadFinanceToPayment: "Счёт №{{.RowID}} согласован руководителем отдела и сотрудником финансового отдела: {{.Approver}}. Счёт передан на оплату.\n{{.Summary}}",
		StagePaid:                 paidText,
		StageRejected:             rejectedText,
	},
	roles.Head: {
		StageFromInitiator:        "Добавлен новый счет №{{.RowID}} от {{.InitiatorNickname}}.\nПожалуйста, одобрите счет.\n{{.Summary}}",
		StageHeadToFinance:        "Вы одобрили счет №{{.RowID}}.\nСчет передан на согласование в финансовый отдел.\n{{.Summary}}",
		StageHeadToPayment:        "Вы согласовали счет №{{.RowID}}.\nСчет передан на оплату.\n{{.Summary}}",
		StageHeadFinanceToPayment: "Счет №{{.RowID}} согласован вами и сотрудником финансового отдела: {{.Approver}}.\nСчет передан на оплату.\n{{.Summary}}",
		StagePaid:                 paidText,
		StageRejected:             rejectedText,
	},
	roles.Finance: {
		StageFromHead:  "Добавлен новый счет №{{.RowID}} от {{.InitiatorNickname}}\nСчет согласован руководителем отдела: {{.Approver}}.\nПожалуйста, одобрите платёж.\n{{.Summary}}",
		StageToPayment: "Счет №{{.RowID}} согласован вами и руководителем отдела: {{.Approver}}.\nСчет передан на оплату.\n{{.Summary}}",
		StagePaid:      paidText,
		StageRejected:  rejectedText,
	},
	roles.Payment: {
		StageHeadToPayment:    "Добавлен новый счет №{{.RowID}} от {{.InitiatorNickname}}\nСчет согласован руководителем отдела: {{.Approver}} и готов к оплате.\nПожалуйста, оплатите счет.\n{{.Summary}}",
		StageFinanceToPayment: "Добавлен новый счет №{{.RowID}} от {{.InitiatorNickname}}\nСчет согласован руководителем отдела и сотрудником финансового отдела: {{.Approver}}, и готов к оплате.\nПожалуйста, оплатите счет.\n{{.Summary}}",
		StagePaid:             paidText,
		StageRejected:         rejectedText,
	},
}

// Templates resolves role × stage into rendered text.
type Templates struct {
	byRole map[roles.Role]map[Stage]*template.Template
}

// DefaultTemplates parses the built-in Russian texts.
func DefaultTemplates() *Templates {
	t, err := NewTemplates(defaultTexts)
	if err != nil {
		panic(err)
	}
	return t
}

// NewTemplates parses texts. Missing keys are reported as errors rather than rendered empty.
func NewTemplates(texts map[roles.Role]map[Stage]string) (*Templates, error) {
	t := &Templates{byRole: make(map[roles.Role]map[Stage]*template.Template, len(texts))}
	for role, stages := range texts {
		parsed := make(map[Stage]*template.Template, len(stages))
		for stage, text := range stages {
			tpl, err := template.New(string(role) + ":" + string(stage)).Option("missingkey=error").Parse(text)
			if err != nil {
				return nil, fmt.Errorf("notify: parse %s/%s: %w", role, stage, err)
			}
			parsed[stage] = tpl
		}
		t.byRole[role] = parsed
	}
	return t, nil
}

// Render produces the message text for role at stage.
func (t *Templates) Render(role roles.Role, stage Stage, args Args) (string, error) {
	tpl, ok := t.byRole[role][stage]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrUnknownTemplate, role, stage)
	}
	var b strings.Builder
	if err := tpl.Execute(&b, args); err != nil {
		return "", fmt.Errorf("notify: render %s/%s: %w", role, stage, err)
	}
	return b.String(), nil
}

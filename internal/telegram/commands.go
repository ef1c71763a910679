package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/odyssey-erp/expenseflow/internal/approval"
	"github.com/odyssey-erp/expenseflow/internal/expense"
	"github.com/odyssey-erp/expenseflow/internal/notify"
	"github.com/odyssey-erp/expenseflow/internal/shared"
	"github.com/odyssey-erp/expenseflow/internal/workflow"
)

// Chat commands.
const (
	CommandStart       = "start"
	CommandSubmit      = "submit_record"
	CommandApprove     = "approve_record"
	CommandReject      = "reject_record"
	CommandCheckStatus = "check_status"
	CommandShowNotPaid = "show_not_paid"
)

const (
	accessDeniedText    = "Извините, у вас нет доступа к этому боту."
	missingIDText       = "Пожалуйста, укажите id счёта!"
	singleIDText        = "Можно указать только 1 счёт!"
	badIDText           = "Ошибка! Id счёта должен быть числом!"
	notFoundText        = "По данному id данных не найдено!"
	noRecordsText       = "Заявок не обнаружено"
	unexpectedErrorText = "Произошла ошибка. Разработчик уже получил уведомление."
)

const submitUsage = "Формат: /submit_record сумма; статья; группа; комментарий; мм.гг [мм.гг ...]; форма оплаты"

func helpText(chatID int64) string {
	var b strings.Builder
	b.WriteString("<b>Бот по автоматизации заполнения бюджета</b>\n\n")
	b.WriteString("<i>Отправьте команду /submit_record и укажите данные счёта через точку с запятой:</i>\n")
	b.WriteString("<i>1) Сумма счёта</i>\n")
	b.WriteString("<i>2) Статья расхода</i>\n")
	b.WriteString("<i>3) Группа расхода</i>\n")
	b.WriteString("<i>4) Комментарий к платежу</i>\n")
	b.WriteString("<i>5) Периоды начисления (мм.гг) через пробел</i>\n")
	b.WriteString("<i>6) Форма оплаты</i>\n\n")
	b.WriteString("<b>Команды бота:</b>\n\n")
	b.WriteString("<i>/check_status <b>ID</b> - Узнать о статусе интересующего платежа</i>\n\n")
	b.WriteString("<i>/approve_record <b>ID</b> - Одобрить счёт</i>\n\n")
	b.WriteString("<i>/reject_record <b>ID</b> - Отклонить счёт</i>\n\n")
	b.WriteString("<i>/show_not_paid - Посмотреть необработанные платежи</i>\n\n")
	fmt.Fprintf(&b, "<i>Ваш id чата - %d</i>", chatID)
	return b.String()
}

func (b *Bot) handleCommand(ctx context.Context, updateID int, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if !b.allowed(msg.From) {
		b.logger.Warn("access denied", slog.Int64("chat_id", chatID))
		b.reply(chatID, accessDeniedText)
		return
	}

	logger := b.logger.With(slog.String("command", msg.Command()), slog.Int64("chat_id", chatID))
	logger.Debug("command received")

	switch msg.Command() {
	case CommandStart:
		b.replyHTML(chatID, helpText(chatID))
	case CommandSubmit:
		b.submit(ctx, updateID, msg)
	case CommandApprove:
		b.actOnCommand(ctx, updateID, msg, approval.ActionApprove)
	case CommandReject:
		b.actOnCommand(ctx, updateID, msg, approval.ActionReject)
	case CommandCheckStatus:
		b.checkStatus(ctx, updateID, msg)
	case CommandShowNotPaid:
		b.showNotPaid(ctx, updateID, msg)
	default:
		b.reply(chatID, "Неизвестная команда. Список команд: /start")
	}
}

// ParseSubmitArgs reads "amount; item; group; comment; periods; method".
func ParseSubmitArgs(args string, initiator int64) (expense.SubmitInput, error) {
	fields := strings.Split(args, ";")
	if len(fields) != 6 {
		return expense.SubmitInput{}, fmt.Errorf("%w: expected 6 fields separated by ';', got %d", expense.ErrValidation, len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return expense.SubmitInput{
		InitiatorID:   initiator,
		Amount:        fields[0],
		Item:          fields[1],
		Group:         fields[2],
		Comment:       fields[3],
		Period:        fields[4],
		PaymentMethod: fields[5],
	}, nil
}

func (b *Bot) submit(ctx context.Context, updateID int, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	input, err := ParseSubmitArgs(msg.CommandArguments(), chatID)
	if err != nil {
		b.reply(chatID, "Заданы неверные аргументы!\n"+submitUsage)
		return
	}
	if _, err := b.flow.Submit(ctx, input); err != nil {
		b.replyError(ctx, updateID, chatID, 0, err)
	}
}

// parseRecordID reads the single record id argument of a command.
func parseRecordID(args string) (int64, string) {
	fields := strings.Fields(args)
	switch {
	case len(fields) == 0:
		return 0, missingIDText
	case len(fields) > 1:
		return 0, singleIDText
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, badIDText
	}
	return id, ""
}

func (b *Bot) actOnCommand(ctx context.Context, updateID int, msg *tgbotapi.Message, action approval.Action) {
	chatID := msg.Chat.ID
	id, problem := parseRecordID(msg.CommandArguments())
	if problem != "" {
		b.reply(chatID, problem)
		return
	}
	_, err := b.flow.Act(ctx, workflow.ActInput{RecordID: id, ActorID: msg.From.ID, Action: action})
	if err != nil {
		b.replyError(ctx, updateID, chatID, id, err)
	}
}

func (b *Bot) checkStatus(ctx context.Context, updateID int, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	id, problem := parseRecordID(msg.CommandArguments())
	if problem != "" {
		b.reply(chatID, problem)
		return
	}
	rec, err := b.flow.Get(ctx, id)
	if err != nil {
		b.replyError(ctx, updateID, chatID, id, err)
		return
	}
	b.reply(chatID, expense.StatusText(rec))
}

func (b *Bot) showNotPaid(ctx context.Context, updateID int, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	records, err := b.flow.ListUnpaid(ctx)
	if err != nil {
		b.replyError(ctx, updateID, chatID, 0, err)
		return
	}
	if len(records) == 0 {
		b.reply(chatID, noRecordsText)
		return
	}
	entries := make([]string, 0, len(records))
	for _, rec := range records {
		entries = append(entries, expense.ListEntry(rec))
	}
	for _, part := range SplitMessage(strings.Join(entries, "\n")) {
		b.reply(chatID, part)
	}
}

func (b *Bot) handleCallback(ctx context.Context, updateID int, query *tgbotapi.CallbackQuery) {
	if !b.allowed(query.From) {
		b.answer(query.ID, accessDeniedText)
		return
	}
	cb, err := notify.ParseCallback(query.Data)
	if err != nil {
		b.answer(query.ID, "Неизвестная кнопка")
		b.report(ctx, updateID, fmt.Errorf("callback %q: %w", query.Data, err))
		return
	}
	action, err := approval.ParseAction(cb.Action)
	if err != nil {
		b.answer(query.ID, "Неизвестная кнопка")
		b.report(ctx, updateID, err)
		return
	}

	_, err = b.flow.Act(ctx, workflow.ActInput{
		RecordID: cb.RecordID,
		ActorID:  query.From.ID,
		Action:   action,
		Role:     cb.Role,
	})
	if err != nil {
		text, unexpected := ErrorText(err, cb.RecordID)
		if unexpected {
			b.report(ctx, updateID, err)
		}
		b.answer(query.ID, text)
		return
	}
	b.answer(query.ID, "")
}

func (b *Bot) answer(queryID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(queryID, text)); err != nil {
		b.logger.Warn("answer callback", slog.Any("error", err))
	}
}

func (b *Bot) replyError(ctx context.Context, updateID int, chatID, recordID int64, err error) {
	text, unexpected := ErrorText(err, recordID)
	if unexpected {
		b.report(ctx, updateID, err)
	}
	b.reply(chatID, text)
}

// ErrorText maps a workflow error to the chat reply. unexpected is true when
// the error is not a user mistake and should reach the developer.
func ErrorText(err error, recordID int64) (text string, unexpected bool) {
	switch {
	case errors.Is(err, approval.ErrAlreadyProcessed):
		return fmt.Sprintf("Счёт №%d уже обработан", recordID), false
	case errors.Is(err, approval.ErrRoleNotAllowed):
		return "Вы не можете менять статус счёта!", false
	case errors.Is(err, approval.ErrWrongStatus):
		return fmt.Sprintf("Счёт №%d сейчас не ожидает вашего решения.", recordID), false
	case errors.Is(err, expense.ErrNotFound):
		return notFoundText, false
	case errors.Is(err, expense.ErrConcurrentUpdate):
		return fmt.Sprintf("Счёт №%d только что изменился, повторите действие.", recordID), false
	case errors.Is(err, shared.ErrAccessDenied):
		return accessDeniedText, false
	case errors.Is(err, expense.ErrValidation):
		return "Заданы неверные аргументы! " + err.Error(), false
	}
	return unexpectedErrorText, true
}

package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/expenseflow/internal/expense"
	"github.com/odyssey-erp/expenseflow/internal/workflow"
)

// Workflow is the part of the expense service driven from chat.
type Workflow interface {
	Submit(ctx context.Context, input expense.SubmitInput) (expense.Record, error)
	Act(ctx context.Context, input workflow.ActInput) (expense.Record, error)
	Get(ctx context.Context, id int64) (expense.Record, error)
	ListUnpaid(ctx context.Context) ([]expense.Record, error)
}

// AccessList decides which chat users may talk to the bot.
type AccessList interface {
	Allowed(party int64) bool
}

// Config tunes the update loop.
type Config struct {
	DeveloperChatID int64
	Workers         int
	PollTimeout     int
}

// Bot long-polls updates and dispatches them to handlers.
type Bot struct {
	api    API
	flow   Workflow
	access AccessList
	cfg    Config
	logger *slog.Logger
}

// NewBot wires the bot.
func NewBot(api API, flow Workflow, access AccessList, cfg Config, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30
	}
	return &Bot{api: api, flow: flow, access: access, cfg: cfg, logger: logger.With(slog.String("component", "telegram"))}
}

// Run consumes updates until ctx is cancelled, handling at most cfg.Workers
// updates at a time. It waits for in-flight handlers before returning.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.PollTimeout
	updates := b.api.GetUpdatesChan(u)

	var g errgroup.Group
	g.SetLimit(b.cfg.Workers)
	b.logger.Info("telegram bot polling", slog.Int("workers", b.cfg.Workers))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			_ = g.Wait()
			b.logger.Info("telegram bot stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return g.Wait()
			}
			g.Go(func() error {
				b.HandleUpdate(ctx, update)
				return nil
			})
		}
	}
}

// HandleUpdate processes one update. Panics are recovered and reported.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.report(ctx, update.UpdateID, fmt.Errorf("panic: %v\n%s", r, debug.Stack()))
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.UpdateID, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(ctx, update.UpdateID, update.Message)
	}
}

func (b *Bot) allowed(user *tgbotapi.User) bool {
	return user != nil && b.access.Allowed(user.ID)
}

func (b *Bot) reply(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) replyHTML(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	b.send(msg)
}

func (b *Bot) send(msg tgbotapi.MessageConfig) {
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("send reply", slog.Int64("chat_id", msg.ChatID), slog.Any("error", err))
	}
}

// report logs an unexpected error and forwards it to the developer chat.
func (b *Bot) report(ctx context.Context, updateID int, err error) {
	b.logger.ErrorContext(ctx, "update handler failed", slog.Int("update_id", updateID), slog.Any("error", err))
	if b.cfg.DeveloperChatID == 0 {
		return
	}
	text := fmt.Sprintf("Ошибка при обработке обновления %d: %v", updateID, err)
	for _, part := range SplitMessage(text) {
		if _, sendErr := b.api.Send(tgbotapi.NewMessage(b.cfg.DeveloperChatID, part)); sendErr != nil {
			b.logger.Error("notify developer", slog.Any("error", sendErr))
			return
		}
	}
}

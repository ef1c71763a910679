// Package telegram is the chat front-end of the expense workflow: it delivers
// notifications through the Bot API and turns commands and button presses into
// workflow calls.
package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/odyssey-erp/expenseflow/internal/notify"
)

// API is the subset of *tgbotapi.BotAPI used by the package.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// NewAPI connects to the Bot API. A non-empty endpoint overrides the public
// server and must contain the two %s verbs for token and method.
func NewAPI(token, endpoint string) (*tgbotapi.BotAPI, error) {
	if endpoint != "" {
		api, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
		if err != nil {
			return nil, fmt.Errorf("telegram: connect %s: %w", endpoint, err)
		}
		return api, nil
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}
	return api, nil
}

// Transport sends and deletes notification messages.
type Transport struct {
	api API
}

// NewTransport wraps api as a notify.Transport.
func NewTransport(api API) *Transport {
	return &Transport{api: api}
}

var _ notify.Transport = (*Transport)(nil)

// Send posts text with an optional inline keyboard and returns the message id.
func (t *Transport) Send(ctx context.Context, chatID int64, text string, keyboard notify.Keyboard) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if len(keyboard) > 0 {
		msg.ReplyMarkup = InlineKeyboard(keyboard)
	}
	sent, err := t.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("telegram: send to %d: %w", chatID, err)
	}
	return int64(sent.MessageID), nil
}

// Delete removes a previously sent message.
func (t *Transport) Delete(ctx context.Context, chatID, messageID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.api.Request(tgbotapi.NewDeleteMessage(chatID, int(messageID))); err != nil {
		return fmt.Errorf("telegram: delete %d/%d: %w", chatID, messageID, err)
	}
	return nil
}

// InlineKeyboard converts a notify keyboard to Bot API markup.
func InlineKeyboard(keyboard notify.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(keyboard))
	for _, line := range keyboard {
		row := make([]tgbotapi.InlineKeyboardButton, 0, len(line))
		for _, button := range line {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.Data))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(row...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

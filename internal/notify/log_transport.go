package notify

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// LogTransport writes messages to the log instead of a chat. It backs
// deployments that run without a bot token.
type LogTransport struct {
	logger *slog.Logger
	nextID atomic.Int64
}

// NewLogTransport constructs a LogTransport.
func NewLogTransport(logger *slog.Logger) *LogTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogTransport{logger: logger.With(slog.String("transport", "log"))}
}

// Send logs the message and returns a process-unique id.
func (t *LogTransport) Send(ctx context.Context, chatID int64, text string, keyboard Keyboard) (int64, error) {
	id := t.nextID.Add(1)
	t.logger.InfoContext(ctx, "chat message",
		slog.Int64("chat_id", chatID),
		slog.Int64("message_id", id),
		slog.Int("buttons", keyboard.count()),
		slog.String("text", text),
	)
	return id, nil
}

// Delete logs the removal.
func (t *LogTransport) Delete(ctx context.Context, chatID, messageID int64) error {
	t.logger.InfoContext(ctx, "chat message deleted", slog.Int64("chat_id", chatID), slog.Int64("message_id", messageID))
	return nil
}

func (k Keyboard) count() int {
	n := 0
	for _, row := range k {
		n += len(row)
	}
	return n
}

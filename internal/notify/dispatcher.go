package notify

import (
	"context"
	"log/slog"

	"github.com/odyssey-erp/expenseflow/internal/roles"
)

// Transport delivers chat messages. Failures are per call.
type Transport interface {
	Send(ctx context.Context, chatID int64, text string, keyboard Keyboard) (int64, error)
	Delete(ctx context.Context, chatID, messageID int64) error
}

// FailureRecorder observes dropped deliveries.
type FailureRecorder interface {
	NotificationFailed(role, op string)
}

// SyncRequest describes one role's notification for a record.
type SyncRequest struct {
	RecordID   int64
	Role       roles.Role
	Stage      Stage
	Recipients []int64
	Args       Args
	Keyboard   Keyboard
}

// Dispatcher keeps the tracked messages of a record in line with its state:
// untracked roles get fresh messages, tracked ones get theirs replaced.
type Dispatcher struct {
	transport Transport
	ledger    Ledger
	templates *Templates
	logger    *slog.Logger
	failures  FailureRecorder
}

// NewDispatcher wires the dispatcher.
func NewDispatcher(transport Transport, ledger Ledger, templates *Templates, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if templates == nil {
		templates = DefaultTemplates()
	}
	return &Dispatcher{transport: transport, ledger: ledger, templates: templates, logger: logger}
}

// WithFailureRecorder attaches a metrics sink for dropped deliveries.
func (d *Dispatcher) WithFailureRecorder(r FailureRecorder) *Dispatcher {
	d.failures = r
	return d
}

// Synchronize renders the stage text and sends or replaces the role's messages.
// Only template and ledger errors are returned.
func (d *Dispatcher) Synchronize(ctx context.Context, req SyncRequest) error {
	text, err := d.templates.Render(req.Role, req.Stage, req.Args)
	if err != nil {
		return err
	}
	tracked, err := d.ledger.Get(ctx, req.RecordID, req.Role)
	if err != nil {
		return err
	}
	logger := d.logger.With(slog.Int64("record_id", req.RecordID), slog.String("role", string(req.Role)), slog.String("stage", string(req.Stage)))

	var next []Delivery
	if len(tracked) == 0 {
		next = d.send(ctx, logger, req, text)
	} else {
		next = d.replace(ctx, logger, req, tracked, text)
	}
	return d.ledger.Put(ctx, req.RecordID, req.Role, next)
}

// Purge forgets every tracked message of the record.
func (d *Dispatcher) Purge(ctx context.Context, recordID int64) error {
	return d.ledger.Purge(ctx, recordID)
}

func (d *Dispatcher) send(ctx context.Context, logger *slog.Logger, req SyncRequest, text string) []Delivery {
	seen := make(map[int64]struct{}, len(req.Recipients))
	out := make([]Delivery, 0, len(req.Recipients))
	for _, chatID := range req.Recipients {
		if _, dup := seen[chatID]; dup {
			continue
		}
		seen[chatID] = struct{}{}
		msgID, err := d.transport.Send(ctx, chatID, text, req.Keyboard)
		if err != nil {
			logger.Warn("send notification", slog.Int64("chat_id", chatID), slog.Any("error", err))
			d.recordFailure(req.Role, "send")
			continue
		}
		out = append(out, Delivery{ChatID: chatID, MessageID: msgID})
	}
	return out
}

func (d *Dispatcher) replace(ctx context.Context, logger *slog.Logger, req SyncRequest, tracked []Delivery, text string) []Delivery {
	out := make([]Delivery, 0, len(tracked))
	for _, old := range tracked {
		msgID, err := d.transport.Send(ctx, old.ChatID, text, req.Keyboard)
		if err != nil {
			logger.Warn("replace notification", slog.Int64("chat_id", old.ChatID), slog.Any("error", err))
			d.recordFailure(req.Role, "send")
			continue
		}
		if err := d.transport.Delete(ctx, old.ChatID, old.MessageID); err != nil {
			logger.Warn("delete stale notification", slog.Int64("chat_id", old.ChatID), slog.Int64("message_id", old.MessageID), slog.Any("error", err))
			d.recordFailure(req.Role, "delete")
		}
		out = append(out, Delivery{ChatID: old.ChatID, MessageID: msgID})
	}
	return out
}

func (d *Dispatcher) recordFailure(role roles.Role, op string) {
	if d.failures != nil {
		d.failures.NotificationFailed(string(role), op)
	}
}

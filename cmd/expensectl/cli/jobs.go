package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/expenseflow/jobs"
)

// KeyRemover drops idempotency keys.
type KeyRemover interface {
	Delete(ctx context.Context, key string) error
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	keys      KeyRemover
}

// NewJobsCLI initialises the CLI helpers for the given Redis connection.
func NewJobsCLI(redis asynq.RedisClientOpt, keys KeyRemover) *JobsCLI {
	return &JobsCLI{
		client:    asynq.NewClient(redis),
		inspector: asynq.NewInspector(redis),
		keys:      keys,
	}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// Export enqueues the spreadsheet export of a paid record. With force the
// previous task and the idempotency key are removed first so the rows are
// written again.
func (c *JobsCLI) Export(ctx context.Context, recordID int64, force bool) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	if force {
		err := c.inspector.DeleteTask(jobs.QueueDefault, jobs.SheetExportTaskID(recordID))
		if err != nil && !errors.Is(err, asynq.ErrTaskNotFound) && !errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, fmt.Errorf("jobs cli: drop previous export: %w", err)
		}
		if c.keys != nil {
			if err := c.keys.Delete(ctx, jobs.SheetExportKey(recordID)); err != nil {
				return nil, fmt.Errorf("jobs cli: release export key: %w", err)
			}
		}
	}
	task, err := jobs.NewSheetExportTask(recordID)
	if err != nil {
		return nil, err
	}
	info, err := c.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil, jobs.ErrExportQueued
	}
	return info, err
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if errors.Is(err, asynq.ErrQueueNotFound) {
		return QueueStats{Queue: jobs.QueueDefault}, nil
	}
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	return stats, nil
}

// ListRetry returns tasks waiting for another attempt.
func (c *JobsCLI) ListRetry(ctx context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListRetryTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}

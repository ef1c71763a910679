package jobs

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
)

// ErrExportQueued reports that the record already has an export task known to asynq.
var ErrExportQueued = errors.New("jobs: sheet export already queued")

// Client enqueues expense tasks.
type Client struct {
	client *asynq.Client
}

// NewClient opens an asynq client against redisOpts.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// EnqueueSheetExport queues the export of a paid record. A second call for
// the same record fails with ErrExportQueued while asynq still holds the task.
func (c *Client) EnqueueSheetExport(ctx context.Context, recordID int64) (*asynq.TaskInfo, error) {
	task, err := NewSheetExportTask(recordID)
	if err != nil {
		return nil, err
	}
	info, err := c.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil, ErrExportQueued
	}
	return info, err
}

// EnqueueExport implements the workflow export port.
func (c *Client) EnqueueExport(ctx context.Context, recordID int64) error {
	_, err := c.EnqueueSheetExport(ctx, recordID)
	return err
}

// Close releases the redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}

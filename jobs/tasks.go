package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSheetExport mirrors a paid expense into the ledger spreadsheet.
	TaskSheetExport = "expense:sheet-export"
	// TaskIdempotencyCleanup prunes old idempotency keys.
	TaskIdempotencyCleanup = "expense:idempotency-cleanup"
)

// taskNamespace seeds deterministic task ids.
var taskNamespace = uuid.MustParse("6f1c9a52-3b7e-4f0e-9d7a-2c5b8e41a0d3")

// SheetExportPayload identifies the record to export.
type SheetExportPayload struct {
	RecordID int64 `json:"record_id"`
}

// SheetExportTaskID is the stable asynq id of a record's export task.
func SheetExportTaskID(recordID int64) string {
	return uuid.NewSHA1(taskNamespace, []byte(fmt.Sprintf("%s:%d", TaskSheetExport, recordID))).String()
}

// SheetExportKey is the idempotency key claimed once a record's rows are written.
func SheetExportKey(recordID int64) string {
	return fmt.Sprintf("sheet-export:%d", recordID)
}

// NewSheetExportTask builds the export task. The fixed task id keeps a record
// from being queued twice while an earlier task is still known to asynq.
func NewSheetExportTask(recordID int64) (*asynq.Task, error) {
	if recordID <= 0 {
		return nil, fmt.Errorf("jobs: invalid record id %d", recordID)
	}
	body, err := json.Marshal(SheetExportPayload{RecordID: recordID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSheetExport, body,
		asynq.Queue(QueueDefault),
		asynq.TaskID(SheetExportTaskID(recordID)),
		asynq.MaxRetry(5),
		asynq.Retention(24*time.Hour),
	), nil
}

// IdempotencyCleanupPayload sets the retention window in hours.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask builds the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: int(retention / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

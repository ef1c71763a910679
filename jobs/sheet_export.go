package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/expenseflow/internal/expense"
	jobmetrics "github.com/odyssey-erp/expenseflow/internal/jobs"
	"github.com/odyssey-erp/expenseflow/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const idempotencyModule = "sheet_export"

// RecordReader loads expense records.
type RecordReader interface {
	Get(ctx context.Context, id int64) (expense.Record, error)
}

// RecordExporter writes a record to the ledger and reports the row count.
type RecordExporter interface {
	Export(ctx context.Context, rec expense.Record) (int, error)
}

// KeyStore claims and releases idempotency keys.
type KeyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// SheetExportJob appends paid expenses to the spreadsheet exactly once.
type SheetExportJob struct {
	Records  RecordReader
	Exporter RecordExporter
	Keys     KeyStore
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewSheetExportJob wires dependencies for the export handler.
func NewSheetExportJob(records RecordReader, exporter RecordExporter, keys KeyStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *SheetExportJob {
	return &SheetExportJob{Records: records, Exporter: exporter, Keys: keys, Logger: logger, Metrics: metrics}
}

// Handle processes TaskSheetExport tasks.
func (j *SheetExportJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Records == nil || j.Exporter == nil || j.Keys == nil {
		return errors.New("sheet export: handler not configured")
	}
	var payload SheetExportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.RecordID <= 0 {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track("sheet_export")
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int64("record_id", payload.RecordID))

	rec, err := j.Records.Get(ctx, payload.RecordID)
	if err != nil {
		if errors.Is(err, expense.ErrNotFound) {
			logger.Warn("export skipped, record missing")
			resultErr = fmt.Errorf("sheet export: %w: %v", asynq.SkipRetry, err)
			return resultErr
		}
		resultErr = err
		return resultErr
	}
	if rec.Status != expense.StatusPaid {
		logger.Warn("export skipped, record not paid", slog.String("status", string(rec.Status)))
		resultErr = fmt.Errorf("sheet export: record %d is %s: %w", rec.ID, rec.Status, asynq.SkipRetry)
		return resultErr
	}

	key := SheetExportKey(rec.ID)
	if err := j.Keys.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			logger.Info("export already done")
			j.metrics().AddSkipped("sheet_export")
			return nil
		}
		resultErr = err
		return resultErr
	}

	rows, err := j.Exporter.Export(ctx, rec)
	if err != nil {
		if delErr := j.Keys.Delete(ctx, key); delErr != nil {
			logger.Error("release export key", slog.Any("error", delErr))
		}
		logger.Error("export record", slog.Any("error", err))
		resultErr = err
		return resultErr
	}
	j.metrics().AddExportedRows(rows)
	logger.Info("record exported", slog.Int("rows", rows))
	return resultErr
}

func (j *SheetExportJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *SheetExportJob) logger() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger
	}
	return slog.Default().With(slog.String("job", TaskSheetExport))
}

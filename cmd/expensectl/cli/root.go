// Package cli implements expensectl, the operator tool for expense records
// and the export queue.
package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/expenseflow/internal/app"
	"github.com/odyssey-erp/expenseflow/internal/expense"
	"github.com/odyssey-erp/expenseflow/internal/platform/db"
	"github.com/odyssey-erp/expenseflow/internal/shared"
)

// RecordSource reads expense records.
type RecordSource interface {
	Get(ctx context.Context, id int64) (expense.Record, error)
	ListUnfinalized(ctx context.Context) ([]expense.Record, error)
}

// HistorySource reads the decision history of a record.
type HistorySource interface {
	List(ctx context.Context, module string, ref int64) ([]shared.ApprovalLog, error)
}

// JobControl manages export tasks.
type JobControl interface {
	Export(ctx context.Context, recordID int64, force bool) (*asynq.TaskInfo, error)
	InspectQueue(ctx context.Context) (QueueStats, error)
	ListRetry(ctx context.Context, size int) ([]*asynq.TaskInfo, error)
}

// Env is what the commands operate on.
type Env struct {
	Records RecordSource
	History HistorySource
	Jobs    JobControl
	closers []func()
}

func (e *Env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

var errNotConnected = errors.New("expensectl: environment not initialised")

// NewRootCommand builds the command tree. A nil env is opened from the
// application configuration before each command runs.
func NewRootCommand(env *Env) *cobra.Command {
	var debug bool
	injected := env != nil
	state := &Env{}
	if injected {
		state = env
	}

	root := &cobra.Command{
		Use:           "expensectl",
		Short:         "Inspect expense records and manage spreadsheet exports",
		SilenceUsage:  true,
		SilenceErrors: false,
		Long: `expensectl talks to the expenseflow database and job queue.

Example:
  expensectl status 42
  expensectl unpaid
  expensectl export 42 --force
  expensectl queue`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if debug {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			if injected {
				return nil
			}
			opened, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			*state = *opened
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if !injected {
				state.close()
			}
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newStatusCommand(state),
		newUnpaidCommand(state),
		newExportCommand(state),
		newQueueCommand(state),
	)
	return root
}

func openEnv(ctx context.Context) (*Env, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
	if err != nil {
		return nil, err
	}
	jobsCLI := NewJobsCLI(cfg.AsynqRedis(), shared.NewIdempotencyStore(pool))
	return &Env{
		Records: expense.NewRepository(pool),
		History: shared.NewApprovalRecorder(pool, slog.Default()),
		Jobs:    jobsCLI,
		closers: []func(){
			pool.Close,
			func() {
				if err := jobsCLI.Close(); err != nil {
					slog.Warn("close job client", slog.Any("error", err))
				}
			},
		},
	}, nil
}

package cli

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/expenseflow/internal/expense"
	"github.com/odyssey-erp/expenseflow/jobs"
)

const historyModule = "expense"

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("record id must be a positive number, got %q", raw)
	}
	return id, nil
}

func newStatusCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show a record, its status and decision history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if env.Records == nil {
				return errNotConnected
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			rec, err := env.Records.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, expense.StatusText(rec))
			fmt.Fprint(out, expense.Summary(rec))
			fmt.Fprintf(out, "Согласований: %d из %d\n", rec.ApprovalsReceived, rec.ApprovalsNeeded)

			if env.History == nil {
				return nil
			}
			history, err := env.History.List(cmd.Context(), historyModule, id)
			if err != nil {
				return err
			}
			if len(history) == 0 {
				return nil
			}
			fmt.Fprintln(out)
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "AT\tACTION\tACTOR\tROLE")
			for _, entry := range history {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", entry.At.Format(time.DateTime), entry.Action, entry.ActorID, entry.Note)
			}
			return w.Flush()
		},
	}
}

func newUnpaidCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "unpaid",
		Short: "List records that are neither paid nor rejected",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if env.Records == nil {
				return errNotConnected
			}
			records, err := env.Records.ListUnfinalized(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "Заявок не обнаружено")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tAMOUNT\tMETHOD\tITEM")
			for _, rec := range records {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", rec.ID, rec.Status, expense.FormatAmount(rec.Amount), rec.PaymentMethod.Label(), rec.Item)
			}
			return w.Flush()
		},
	}
}

func newExportCommand(env *Env) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Enqueue the spreadsheet export of a paid record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if env.Records == nil || env.Jobs == nil {
				return errNotConnected
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			rec, err := env.Records.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if rec.Status != expense.StatusPaid {
				return fmt.Errorf("record %d is %q, only paid records are exported", id, rec.Status)
			}
			info, err := env.Jobs.Export(cmd.Context(), id, force)
			if errors.Is(err, jobs.ErrExportQueued) {
				return fmt.Errorf("record %d already has an export task, use --force to replace it", id)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "export of record %d enqueued as %s on %s\n", id, info.ID, info.Queue)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "drop the previous task and idempotency key, writing the rows again")
	return cmd
}

func newQueueCommand(env *Env) *cobra.Command {
	var retry int
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show export queue statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if env.Jobs == nil {
				return errNotConnected
			}
			stats, err := env.Jobs.InspectQueue(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "queue %s: pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
				stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
			if retry <= 0 || stats.Retry == 0 {
				return nil
			}
			tasks, err := env.Jobs.ListRetry(cmd.Context(), retry)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TASK\tTYPE\tRETRIED\tLAST ERROR")
			for _, task := range tasks {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", task.ID, task.Type, task.Retried, task.LastErr)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&retry, "retry", 10, "list up to n tasks waiting for retry")
	return cmd
}

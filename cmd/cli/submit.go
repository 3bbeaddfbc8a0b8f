package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lakewatch/thermal-service/internal/database"
	"github.com/lakewatch/thermal-service/internal/pipeline"
	"github.com/lakewatch/thermal-service/internal/taskqueue"
)

var (
	submitStart       string
	submitEnd         string
	submitDescription string
	submitScheduled   bool

	pollOnce bool

	reprocessDescription string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit an acquisition task for every region",
	Long: `Record a processing request, submit its area task to the provider and start
polling. Without dates the single day pipeline.date_delay_days before today is
requested.`,
	Example: `  thermal-service submit
  thermal-service submit --start 2024-01-15 --end 2024-01-16 --description backfill`,
	Args: cobra.NoArgs,
	RunE: runSubmit,
}

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run the status poller",
	Long: `Check every due provider task, back off while it is still running and
dispatch fan-out once it is done. Runs until interrupted unless --once is set.`,
	Args: cobra.NoArgs,
	RunE: runPoll,
}

var fanoutCmd = &cobra.Command{
	Use:   "fanout <request-id>",
	Short: "Expand a finished task's manifest into scene tasks",
	Long: `Fetch the bundle manifest of a request's provider task, group the files into
scenes and enqueue one process task per scene. Safe to repeat.`,
	Args: cobra.ExactArgs(1),
	RunE: runFanout,
}

var reprocessCmd = &cobra.Command{
	Use:   "reprocess <task-id>",
	Short: "Process an already-completed provider task again",
	Long: `Create a reprocess request for a completed provider task and dispatch its
fan-out. Refused while another reprocess of the task is active, or once the
task is older than the provider retention window.`,
	Args: cobra.ExactArgs(1),
	RunE: runReprocess,
}

func init() {
	rootCmd.AddCommand(submitCmd, pollCmd, fanoutCmd, reprocessCmd)

	submitCmd.Flags().StringVar(&submitStart, "start", "", "First acquisition day (YYYY-MM-DD)")
	submitCmd.Flags().StringVar(&submitEnd, "end", "", "Last acquisition day (YYYY-MM-DD, defaults to --start)")
	submitCmd.Flags().StringVar(&submitDescription, "description", "", "Free-form description stored on the request")
	submitCmd.Flags().BoolVar(&submitScheduled, "scheduled", false, "Record the request as scheduled instead of manual")

	pollCmd.Flags().BoolVar(&pollOnce, "once", false, "Check due tasks once and exit")

	reprocessCmd.Flags().StringVar(&reprocessDescription, "description", "", "Free-form description stored on the request")
}

func parseDay(flag, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s must be YYYY-MM-DD: %w", flag, err)
	}
	return t, nil
}

func runSubmit(cmd *cobra.Command, args []string) error {
	start, err := parseDay("start", submitStart)
	if err != nil {
		return err
	}
	end, err := parseDay("end", submitEnd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var req *database.ProcessingRequest
	if submitScheduled && start.IsZero() && end.IsZero() {
		req, err = a.Submitter.SubmitScheduled(ctx)
		if err == nil && req == nil {
			logger.Info().Msg("Scheduled window already submitted")
			return nil
		}
	} else {
		trigger := database.TriggerManual
		if submitScheduled {
			trigger = database.TriggerScheduled
		}
		req, err = a.Submitter.Submit(ctx, pipeline.SubmitInput{
			Start:       start,
			End:         end,
			TriggerType: trigger,
			TriggeredBy: "cli",
			Description: submitDescription,
		})
	}
	if err != nil {
		if req != nil {
			logger.Error().Str("request_id", req.ID).Err(err).Msg("Submission failed")
		}
		return err
	}

	out := cmd.OutOrStdout()
	renderTable(out, []string{"REQUEST", "TASK", "START", "END"}, [][]string{{
		req.ID,
		req.TaskID(),
		req.DateRangeStart.Format(time.DateOnly),
		req.DateRangeEnd.Format(time.DateOnly),
	}})
	return nil
}

func runPoll(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if pollOnce {
		n, err := a.Poller.RunOnce(ctx)
		if err != nil {
			return err
		}
		logger.Info().Int("checked", n).Msg("Poll pass complete")
		return nil
	}

	a.Poller.Start(ctx)
	<-ctx.Done()
	a.Poller.Stop()
	return nil
}

func runFanout(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	req, err := a.Ledger.GetRequest(ctx, args[0])
	if err != nil {
		return err
	}
	if req.TaskID() == "" {
		return fmt.Errorf("request %s has no provider task yet", req.ID)
	}

	res, err := a.FanOut.Run(ctx, taskqueue.FanoutPayload{RequestID: req.ID, TaskID: req.TaskID()})
	if err != nil {
		return err
	}

	already := "no"
	if res.Already {
		already = "yes"
	}
	renderTable(cmd.OutOrStdout(), []string{"REQUEST", "TASK", "SCENES", "SKIPPED FILES", "ALREADY EXPANDED"}, [][]string{{
		req.ID, req.TaskID(), fmt.Sprint(res.Scenes), fmt.Sprint(len(res.Skipped)), already,
	}})
	return nil
}

func runReprocess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	req, err := a.Guard.Reprocess(ctx, pipeline.ReprocessInput{
		TaskID:      args[0],
		TriggeredBy: "cli",
		Description: reprocessDescription,
	})
	if err != nil {
		return err
	}

	renderTable(cmd.OutOrStdout(), []string{"REQUEST", "PARENT", "TASK"}, [][]string{{
		req.ID, orDash(req.ParentRequestID), req.TaskID(),
	}})
	return nil
}

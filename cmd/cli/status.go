package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/lakewatch/thermal-service/internal/database"
	"github.com/lakewatch/thermal-service/internal/ledger"
)

var (
	statusLimit int

	jobsRequest string
	jobsTask    string
	jobsStatus  string
	jobsType    string
	jobsSince   time.Duration
	jobsLimit   int
)

var statusCmd = &cobra.Command{
	Use:   "status [request-id]",
	Short: "Show requests and their derived status",
	Long: `Without arguments, list recent requests with their derived status and scene
progress. With a request id, show that request and its job ledger.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List job attempts from the ledger",
	Example: `  thermal-service jobs --task 2f1c... --status failed
  thermal-service jobs --type process --since 24h`,
	Args: cobra.NoArgs,
	RunE: runJobs,
}

func init() {
	rootCmd.AddCommand(statusCmd, jobsCmd)

	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "Number of requests to list")

	jobsCmd.Flags().StringVar(&jobsRequest, "request", "", "Filter by request id")
	jobsCmd.Flags().StringVar(&jobsTask, "task", "", "Filter by provider task id")
	jobsCmd.Flags().StringVar(&jobsStatus, "status", "", "Filter by status (started, success, failed)")
	jobsCmd.Flags().StringVar(&jobsType, "type", "", "Filter by job type (submit, process)")
	jobsCmd.Flags().DurationVar(&jobsSince, "since", 0, "Only jobs started within this duration")
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 100, "Maximum number of jobs")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	colorize := isTerminal(out)

	if len(args) == 1 {
		view, err := ledger.Describe(ctx, a.Ledger, args[0])
		if err != nil {
			return err
		}
		renderRequests(out, []requestRow{{req: view.Request, status: view.Status, progress: view.Progress}}, colorize)
		fmt.Fprintln(out)
		renderJobs(out, view.Jobs, colorize)
		return nil
	}

	reqs, err := a.Ledger.ListRequests(ctx, statusLimit, 0)
	if err != nil {
		return err
	}
	rows := make([]requestRow, 0, len(reqs))
	for i := range reqs {
		jobs, err := a.Ledger.JobsForRequest(ctx, reqs[i].ID)
		if err != nil {
			return err
		}
		rows = append(rows, requestRow{
			req:      &reqs[i],
			status:   ledger.DeriveStatus(&reqs[i], jobs),
			progress: ledger.Summarize(&reqs[i], jobs),
		})
	}
	renderRequests(out, rows, colorize)
	return nil
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	filter := database.JobFilter{
		RequestID: jobsRequest,
		TaskID:    jobsTask,
		Status:    database.JobStatus(jobsStatus),
		JobType:   database.JobType(jobsType),
		Limit:     jobsLimit,
	}
	if jobsSince > 0 {
		from := time.Now().Add(-jobsSince)
		filter.From = &from
	}

	jobs, err := a.Ledger.ListJobs(ctx, filter)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	renderJobs(out, jobs, isTerminal(out))
	return nil
}

type requestRow struct {
	req      *database.ProcessingRequest
	status   database.RequestStatus
	progress ledger.Progress
}

func renderRequests(w io.Writer, rows []requestRow, colorize bool) {
	table := make([][]string, 0, len(rows))
	for _, r := range rows {
		table = append(table, []string{
			r.req.ID,
			string(r.req.TriggerType),
			orDash(r.req.ExternalTaskID),
			r.req.DateRangeStart.Format(time.DateOnly) + ".." + r.req.DateRangeEnd.Format(time.DateOnly),
			colorStatus(string(r.status), colorize),
			fmt.Sprintf("%d/%s", r.progress.Terminal, intOrDash(r.req.SceneCount)),
			strconv.Itoa(r.progress.Failed),
			formatTime(&r.req.CreatedAt),
		})
	}
	renderTable(w, []string{"REQUEST", "TRIGGER", "TASK", "WINDOW", "STATUS", "SCENES", "FAILED", "CREATED"}, table)
}

func renderJobs(w io.Writer, jobs []database.JobRecord, colorize bool) {
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		duration := "-"
		if j.DurationMs != nil {
			duration = (time.Duration(*j.DurationMs) * time.Millisecond).String()
		}
		rows = append(rows, []string{
			strconv.FormatInt(j.ID, 10),
			string(j.JobType),
			orDash(j.FeatureID),
			orDash(j.Date),
			colorStatus(string(j.Status), colorize),
			formatTime(&j.StartedAt),
			duration,
			orDash(j.ErrorMessage),
		})
	}
	renderTable(w, []string{"ID", "TYPE", "FEATURE", "DATE", "STATUS", "STARTED", "DURATION", "ERROR"}, rows)
}

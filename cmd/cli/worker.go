package main

import (
	"github.com/spf13/cobra"

	"github.com/lakewatch/thermal-service/internal/workers"
)

var (
	workerID      string
	workerNoSweep bool
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume fan-out and scene tasks from the queue",
	Long: `Claim fan-out and process-scene tasks, run them and record the outcome in
the job ledger. Tasks whose lease expires are redelivered by the sweeper,
which runs alongside unless --no-sweep is set.`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().StringVar(&workerID, "id", "", "Worker id used as lease owner (defaults to host plus random suffix)")
	workerCmd.Flags().BoolVar(&workerNoSweep, "no-sweep", false, "Do not run the lease-expiry sweeper in this process")
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	id := workerID
	if id == "" {
		id = workers.DefaultWorkerID()
	}
	w := a.Worker(id)
	w.Start(ctx)

	if !workerNoSweep {
		sweeper := a.Sweeper(logger)
		go sweeper.Start(ctx)
	}

	<-ctx.Done()
	w.Stop()
	return nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"streamload/internal/engine"
	"streamload/internal/ingest"
	"streamload/internal/logging"
	"streamload/internal/telemetry"
	"streamload/source/kafka"
)

var (
	jobFlag     string
	metricsFlag int
)

var rootCmd = &cobra.Command{
	Use:           "streamload",
	Short:         "Batch ingestion from a partitioned broker topic into a load pipe",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one ingestion attempt from a job YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if metricsFlag > 0 {
			telemetry.Expose(metricsFlag)
		}

		res, err := engine.RunIngestionAttempt(ctx, engine.Config{JobYml: jobFlag})
		if err != nil {
			return err
		}
		switch res.Status {
		case ingest.StatusCompleted:
			fmt.Printf("completed: rows=%d bytes=%d offsets=%v\n",
				res.ReceivedRows, res.ConsumedBytes, res.Offsets)
			return nil
		case ingest.StatusCancelled:
			return fmt.Errorf("cancelled: %v", res.Err)
		default:
			return fmt.Errorf("failed: %v", res.Err)
		}
	},
}

func init() {
	runCmd.Flags().StringVar(&jobFlag, "job", "job.yml", "path to the job YAML")
	runCmd.Flags().IntVar(&metricsFlag, "metrics-port", 0, "expose prometheus metrics on this port (0 = off)")
	rootCmd.AddCommand(runCmd)
}

func main() {
	logging.InitFromEnv()
	kafka.Register("sarama", func() kafka.Adapter { return &kafka.SaramaDriver{} })

	if err := rootCmd.Execute(); err != nil {
		logging.L().Error("streamload", "err", err)
		os.Exit(1)
	}
}

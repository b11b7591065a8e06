package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/adscanio/api/internal/config"
	"github.com/adscanio/api/internal/infra/jobs"
	"github.com/adscanio/api/pkg/domain/shared"
	"github.com/adscanio/api/pkg/logger"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Manage scan runs",
}

var runRecheckCmd = &cobra.Command{
	Use:   "recheck <run-id>",
	Short: "Queue a completion check for a run",
	Long: `Queues a completion check for a run stuck in the started state,
ahead of the regular polling cycle. Processing is conditional on the
run's current status, so requeueing an already-finished run is a
no-op.`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		runID, err := shared.IDFromString(args[0])
		if err != nil {
			return fmt.Errorf("invalid run id: %w", err)
		}

		return withJobClient(func(ctx context.Context, client *jobs.Client) error {
			if err := client.EnqueueRunCompletion(ctx, runID); err != nil {
				return err
			}
			fmt.Printf("completion check queued for run %s\n", runID)
			return nil
		})
	},
}

var dispositionCmd = &cobra.Command{
	Use:   "disposition",
	Short: "Manage auto-disposition",
}

var dispositionTriggerCmd = &cobra.Command{
	Use:   "trigger <scan-job-id>",
	Short: "Queue auto-disposition for a completed scan job",
	Long: `Queues the auto-disposition pass for a scan job, for example after
an organization's disposition policy changed. The task ID is derived
from the job ID, so triggering twice within the retention window is a
no-op.`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		jobID, err := shared.IDFromString(args[0])
		if err != nil {
			return fmt.Errorf("invalid scan job id: %w", err)
		}

		return withJobClient(func(ctx context.Context, client *jobs.Client) error {
			if err := client.EnqueueAutoDisposition(ctx, jobID); err != nil {
				return err
			}
			fmt.Printf("auto-disposition queued for scan job %s\n", jobID)
			return nil
		})
	},
}

var flagRevertActor string

var dispositionRevertCmd = &cobra.Command{
	Use:   "revert <audit-entry-id>",
	Short: "Reopen every flag auto-resolved under one audit entry",
	Long: `Reverts an auto-disposition batch by reopening every flag whose
resolution was linked to the given trigger audit entry. Flags resolved
by human review since are left alone.`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		body := map[string]any{}
		if flagRevertActor != "" {
			body["actor_id"] = flagRevertActor
		}

		resp, _, err := mustClient().Do(http.MethodPost, "/api/v1/dispositions/"+args[0]+"/revert", body)
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

// withJobClient connects to the queue using the server's environment
// configuration and runs fn against it.
func withJobClient(fn func(context.Context, *jobs.Client) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log := logger.NewNop()
	if flagVerbose {
		log = logger.NewDevelopment()
	}

	client := jobs.NewClient(jobs.ClientConfig{
		RedisAddr:     cfg.Redis.Addr(),
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
	}, log)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return fn(ctx, client)
}

func init() {
	runCmd.AddCommand(runRecheckCmd)
	dispositionCmd.AddCommand(dispositionTriggerCmd)
	dispositionRevertCmd.Flags().StringVar(&flagRevertActor, "actor", "", "user ID to attribute the revert to")
	dispositionCmd.AddCommand(dispositionRevertCmd)
}

package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/contextvault/memcore/internal/cliutil"
	"github.com/contextvault/memcore/internal/ingest"
)

var maintenanceTaskNames = []string{"scan-projects", "update-clusters", "prune-graph", "cleanup-vectors", "vacuum"}

func newMaintainCmd() *cobra.Command {
	var task string

	cmd := &cobra.Command{
		Use:   "maintain",
		Short: "Run one or all maintenance tasks on demand",
		Long: fmt.Sprintf(`Run a maintenance task immediately instead of waiting for its schedule.
Valid task names: %v. With no --task, runs all five in order.`, maintenanceTaskNames),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMaintain(cmd, task)
		},
	}

	cmd.Flags().StringVar(&task, "task", "", "Run only this task instead of all of them")
	return cmd
}

func runMaintain(cmd *cobra.Command, task string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, err := newEngine(cfg, nil)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer eng.close()

	statePath := filepath.Join(cfg.Paths.DataDir, "scheduler_state.json")
	sched, err := eng.buildScheduler(statePath, scanProjectsFunc(eng))
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}

	w := cliutil.NewWriter(cmd.OutOrStdout(), plainOutput)
	names := maintenanceTaskNames
	if task != "" {
		names = []string{task}
	}

	for _, name := range names {
		run := sched.RunTask(cmd.Context(), name)
		if run.Success {
			w.Successf("%s: %s", name, run.Message)
		} else {
			w.Errorf("%s: %s", name, run.Message)
		}
	}
	return nil
}

// scanProjectsFunc adapts a one-shot transcript directory walk into the
// scheduler's ScanProjects hook.
func scanProjectsFunc(eng *engine) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		watcher, err := ingest.NewTranscriptWatcher(transcriptExtensions, 0)
		if err != nil {
			return err
		}
		defer watcher.Stop()
		scanner := ingest.NewScanner(watcher, eng.ingest, defaultParseFunc, eng.log)
		return scanner.ScanExisting(ctx, eng.cfg.Paths.TranscriptDir, transcriptExtensions)
	}
}

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/contextvault/memcore/internal/cliutil"
	"github.com/contextvault/memcore/internal/ingest"
)

func newServeCmd() *cobra.Command {
	var foreground bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the transcript watcher and maintenance scheduler continuously",
		Long: `Start memcore's long-running process: watches the transcript directory
for new sessions and runs the daily maintenance scheduler (recluster,
prune, vector cleanup, vacuum) in the background.

By default this re-executes itself detached from the terminal. Use
--foreground to run in the current process, e.g. under a supervisor.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, foreground)
		},
	}

	cmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in the foreground instead of detaching")
	return cmd
}

func runServe(cmd *cobra.Command, foreground bool) error {
	w := cliutil.NewWriter(cmd.OutOrStdout(), plainOutput)

	if !foreground {
		execPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolve executable path: %w", err)
		}
		bgCmd := exec.Command(execPath, "serve", "--foreground")
		bgCmd.Stdout = nil
		bgCmd.Stderr = nil
		bgCmd.Stdin = nil
		bgCmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
		if err := bgCmd.Start(); err != nil {
			return fmt.Errorf("start background process: %w", err)
		}
		w.Successf("memcore serve started in background (pid: %d)", bgCmd.Process.Pid)
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, err := newEngine(cfg, nil)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer eng.close()

	ctx := cmd.Context()

	watcher, err := ingest.NewTranscriptWatcher(transcriptExtensions, 200*time.Millisecond)
	if err != nil {
		return fmt.Errorf("create transcript watcher: %w", err)
	}
	scanner := ingest.NewScanner(watcher, eng.ingest, defaultParseFunc, eng.log)

	if err := scanner.ScanExisting(ctx, cfg.Paths.TranscriptDir, transcriptExtensions); err != nil {
		eng.log.Warn("initial transcript scan failed", slog.String("error", err.Error()))
	}

	statePath := filepath.Join(cfg.Paths.DataDir, "scheduler_state.json")
	sched, err := eng.buildScheduler(statePath, func(ctx context.Context) error {
		return scanner.ScanExisting(ctx, cfg.Paths.TranscriptDir, transcriptExtensions)
	})
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}

	go sched.RunDaemon(ctx)

	w.Successf("watching %s", cfg.Paths.TranscriptDir)
	return scanner.Run(ctx, cfg.Paths.TranscriptDir)
}

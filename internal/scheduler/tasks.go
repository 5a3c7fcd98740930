package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/contextvault/memcore/internal/cluster"
	"github.com/contextvault/memcore/internal/config"
	"github.com/contextvault/memcore/internal/pruner"
	"github.com/contextvault/memcore/internal/store"
)

// scheduleFor builds the five maintenance task schedules from
// config.MaintenanceConfig: scan-projects runs hourly;
// update-clusters daily at ClusterHour; prune-graph an hour later, at
// PruneMinute past ClusterHour+1; cleanup-vectors at minute 30 of that
// same hour; vacuum weekly on Sunday at VacuumHour.
func scheduleFor(cfg config.MaintenanceConfig) (map[string]*Schedule, error) {
	pruneHour := (cfg.ClusterHour + 1) % 24
	exprs := map[string]string{
		"scan-projects":   "0 * * * *",
		"update-clusters": fmt.Sprintf("0 %d * * *", cfg.ClusterHour),
		"prune-graph":     fmt.Sprintf("%d %d * * *", cfg.PruneMinute, pruneHour),
		"cleanup-vectors": fmt.Sprintf("30 %d * * *", pruneHour),
		"vacuum":          fmt.Sprintf("0 %d * * 0", cfg.VacuumHour),
	}

	out := make(map[string]*Schedule, len(exprs))
	for name, expr := range exprs {
		sched, err := ParseSchedule(expr)
		if err != nil {
			return nil, fmt.Errorf("scheduler: invalid built-in schedule for %s: %w", name, err)
		}
		out[name] = sched
	}
	return out, nil
}

// Collaborators bundles the components the default maintenance tasks
// call into. ScanProjects is optional (supplied by the ingest watcher
// once wired in cmd/memcore); the other three are always present.
type Collaborators struct {
	Clusters     *cluster.Manager
	Pruner       *pruner.Pruner
	Vectors      store.VectorStore
	ScanProjects func(ctx context.Context) error
}

// BuildDefaultTasks wires the five maintenance tasks against concrete
// collaborators, using cfg's hours/minute to build their schedules.
func BuildDefaultTasks(cfg config.MaintenanceConfig, vectorsCfg config.VectorsConfig, c Collaborators) ([]Task, error) {
	schedules, err := scheduleFor(cfg)
	if err != nil {
		return nil, err
	}

	var tasks []Task

	if c.ScanProjects != nil {
		tasks = append(tasks, Task{
			Name:     "scan-projects",
			Schedule: schedules["scan-projects"],
			Run: func(ctx context.Context) (string, string, error) {
				if err := c.ScanProjects(ctx); err != nil {
					return "", "", err
				}
				return "scan complete", "", nil
			},
		})
	}

	tasks = append(tasks, Task{
		Name:     "update-clusters",
		Schedule: schedules["update-clusters"],
		Run: func(ctx context.Context) (string, string, error) {
			started := time.Now().UnixMilli()
			stats, err := c.Clusters.Recluster(ctx, started, time.Now().UnixMilli())
			if err != nil {
				return "", "", err
			}
			return fmt.Sprintf("%d clusters, %d noise", stats.NumClusters, stats.NoiseChunks),
				fmt.Sprintf("assigned=%d reassigned_noise=%d duration_ms=%d", stats.AssignedChunks, stats.ReassignedNoise, stats.DurationMs), nil
		},
	})

	tasks = append(tasks, Task{
		Name:     "prune-graph",
		Schedule: schedules["prune-graph"],
		Run: func(ctx context.Context) (string, string, error) {
			result, err := c.Pruner.FlushNow(ctx)
			if err != nil {
				return "", "", err
			}
			return fmt.Sprintf("%d edges deleted, %d chunks orphaned", result.EdgesDeleted, result.ChunksOrphaned), "", nil
		},
	})

	tasks = append(tasks, Task{
		Name:     "cleanup-vectors",
		Schedule: schedules["cleanup-vectors"],
		Run: func(ctx context.Context) (string, string, error) {
			orphans := c.Pruner.OrphanSet()
			expired, err := c.Vectors.CleanupExpired(ctx, vectorsCfg.TTLDays, orphans)
			if err != nil {
				return "", "", err
			}
			evicted, err := c.Vectors.EvictOldestByCount(ctx, vectorsCfg.MaxCount)
			if err != nil {
				return "", "", err
			}
			return fmt.Sprintf("%d expired, %d evicted by count cap", expired, evicted), "", nil
		},
	})

	tasks = append(tasks, Task{
		Name:     "vacuum",
		Schedule: schedules["vacuum"],
		Run: func(ctx context.Context) (string, string, error) {
			if err := c.Vectors.Vacuum(ctx); err != nil {
				return "", "", err
			}
			return "vacuum complete", "", nil
		},
	})

	return tasks, nil
}

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextvault/memcore/internal/cluster"
	"github.com/contextvault/memcore/internal/config"
	"github.com/contextvault/memcore/internal/hdbscan"
	"github.com/contextvault/memcore/internal/pruner"
	"github.com/contextvault/memcore/internal/store"
)

// fakeMetadataStore implements store.MetadataStore with empty data, enough
// to exercise Manager.Recluster's early-return path when there are no
// chunks to cluster.
type fakeMetadataStore struct{}

func (f *fakeMetadataStore) InsertChunk(ctx context.Context, c *store.Chunk) error     { return nil }
func (f *fakeMetadataStore) BulkInsertChunks(ctx context.Context, cs []*store.Chunk) error {
	return nil
}
func (f *fakeMetadataStore) GetChunk(ctx context.Context, id string) (*store.Chunk, error) {
	return nil, nil
}
func (f *fakeMetadataStore) ChunksBySession(ctx context.Context, sessionID string) ([]*store.Chunk, error) {
	return nil, nil
}
func (f *fakeMetadataStore) CountChunks(ctx context.Context) (int, error)  { return 0, nil }
func (f *fakeMetadataStore) DeleteChunk(ctx context.Context, id string) error { return nil }
func (f *fakeMetadataStore) AllChunkIDs(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (f *fakeMetadataStore) CreateEdge(ctx context.Context, e *store.Edge) error { return nil }
func (f *fakeMetadataStore) CreateOrBoostEdge(ctx context.Context, e *store.Edge) (*store.Edge, error) {
	return e, nil
}
func (f *fakeMetadataStore) OutgoingEdges(ctx context.Context, chunkID string) ([]*store.Edge, error) {
	return nil, nil
}
func (f *fakeMetadataStore) IncomingEdges(ctx context.Context, chunkID string) ([]*store.Edge, error) {
	return nil, nil
}
func (f *fakeMetadataStore) DeleteEdge(ctx context.Context, id string) error { return nil }
func (f *fakeMetadataStore) DeleteEdgesForChunk(ctx context.Context, chunkID string) error {
	return nil
}
func (f *fakeMetadataStore) DeleteEdges(ctx context.Context, ids []string) (int, error) {
	return len(ids), nil
}

func (f *fakeMetadataStore) UpsertCluster(ctx context.Context, c *store.Cluster) error { return nil }
func (f *fakeMetadataStore) GetCluster(ctx context.Context, id string) (*store.Cluster, error) {
	return nil, nil
}
func (f *fakeMetadataStore) ListClusters(ctx context.Context) ([]*store.Cluster, error) {
	return nil, nil
}
func (f *fakeMetadataStore) DeleteCluster(ctx context.Context, id string) error { return nil }
func (f *fakeMetadataStore) AssignChunk(ctx context.Context, a store.ClusterAssignment) error {
	return nil
}
func (f *fakeMetadataStore) ClearAssignments(ctx context.Context, clusterID string) error {
	return nil
}
func (f *fakeMetadataStore) ClusterMembers(ctx context.Context, clusterID string) ([]store.ClusterAssignment, error) {
	return nil, nil
}
func (f *fakeMetadataStore) AssignmentsForChunk(ctx context.Context, chunkID string) ([]store.ClusterAssignment, error) {
	return nil, nil
}
func (f *fakeMetadataStore) ReplaceAll(ctx context.Context, clusters []*store.Cluster, assignments []store.ClusterAssignment) error {
	return nil
}

func (f *fakeMetadataStore) OrphanedChunks(ctx context.Context) ([]string, error) { return nil, nil }
func (f *fakeMetadataStore) Close() error                                         { return nil }

var _ store.MetadataStore = (*fakeMetadataStore)(nil)

type fakeVectorStore struct {
	cleanedUp    int
	evicted      int
	vacuumCalled bool
}

func (f *fakeVectorStore) Upsert(ctx context.Context, chunkID string, values []float32) error {
	return nil
}
func (f *fakeVectorStore) Get(ctx context.Context, chunkID string) (*store.Vector, error) {
	return nil, nil
}
func (f *fakeVectorStore) Touch(ctx context.Context, chunkIDs []string, at time.Time) {}
func (f *fakeVectorStore) Search(ctx context.Context, query []float32, k int) ([]store.VectorResult, error) {
	return nil, nil
}
func (f *fakeVectorStore) SearchByProject(ctx context.Context, query []float32, k int, filter map[string]bool) ([]store.VectorResult, error) {
	return nil, nil
}
func (f *fakeVectorStore) Delete(ctx context.Context, chunkID string) error { return nil }
func (f *fakeVectorStore) CleanupExpired(ctx context.Context, ttlDays int, known map[string]bool) (int, error) {
	f.cleanedUp++
	return 3, nil
}
func (f *fakeVectorStore) EvictOldestByCount(ctx context.Context, maxCount int) (int, error) {
	f.evicted++
	return 2, nil
}
func (f *fakeVectorStore) Vacuum(ctx context.Context) error {
	f.vacuumCalled = true
	return nil
}
func (f *fakeVectorStore) Count() int      { return 0 }
func (f *fakeVectorStore) Close() error    { return nil }

var _ store.VectorStore = (*fakeVectorStore)(nil)

func testMaintenanceConfig() config.MaintenanceConfig {
	return config.MaintenanceConfig{ClusterHour: 3, PruneMinute: 15, VacuumHour: 4}
}

func testVectorsConfig() config.VectorsConfig {
	return config.VectorsConfig{TTLDays: 90, MaxCount: 200000}
}

func TestScheduleForDerivesExpectedCronExpressions(t *testing.T) {
	schedules, err := scheduleFor(testMaintenanceConfig())
	require.NoError(t, err)

	threeAM := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)
	fourAMFifteen := time.Date(2026, 1, 1, 4, 15, 0, 0, time.UTC)
	fourAMThirty := time.Date(2026, 1, 1, 4, 30, 0, 0, time.UTC)
	sunday4AM := time.Date(2026, 8, 2, 4, 0, 0, 0, time.UTC)
	require.Equal(t, time.Sunday, sunday4AM.Weekday())

	assert.True(t, schedules["update-clusters"].Matches(threeAM))
	assert.True(t, schedules["prune-graph"].Matches(fourAMFifteen))
	assert.True(t, schedules["cleanup-vectors"].Matches(fourAMThirty))
	assert.True(t, schedules["vacuum"].Matches(sunday4AM))
}

func TestBuildDefaultTasksOmitsScanProjectsWhenHookNil(t *testing.T) {
	meta := &fakeMetadataStore{}
	vectors := &fakeVectorStore{}
	mgr := cluster.New(meta, vectors, hdbscan.Config{}, 0.3)
	pr := pruner.New(meta, meta)
	defer pr.Close()

	tasks, err := BuildDefaultTasks(testMaintenanceConfig(), testVectorsConfig(), Collaborators{
		Clusters: mgr, Pruner: pr, Vectors: vectors,
	})
	require.NoError(t, err)

	names := make([]string, len(tasks))
	for i, task := range tasks {
		names[i] = task.Name
	}
	assert.ElementsMatch(t, []string{"update-clusters", "prune-graph", "cleanup-vectors", "vacuum"}, names)
}

func TestBuildDefaultTasksIncludesScanProjectsWhenHookProvided(t *testing.T) {
	meta := &fakeMetadataStore{}
	vectors := &fakeVectorStore{}
	mgr := cluster.New(meta, vectors, hdbscan.Config{}, 0.3)
	pr := pruner.New(meta, meta)
	defer pr.Close()

	tasks, err := BuildDefaultTasks(testMaintenanceConfig(), testVectorsConfig(), Collaborators{
		Clusters: mgr, Pruner: pr, Vectors: vectors,
		ScanProjects: func(ctx context.Context) error { return nil },
	})
	require.NoError(t, err)

	var found bool
	for _, task := range tasks {
		if task.Name == "scan-projects" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestUpdateClustersTaskRunsAgainstEmptyStore(t *testing.T) {
	meta := &fakeMetadataStore{}
	vectors := &fakeVectorStore{}
	mgr := cluster.New(meta, vectors, hdbscan.Config{}, 0.3)
	pr := pruner.New(meta, meta)
	defer pr.Close()

	tasks, err := BuildDefaultTasks(testMaintenanceConfig(), testVectorsConfig(), Collaborators{
		Clusters: mgr, Pruner: pr, Vectors: vectors,
	})
	require.NoError(t, err)

	var updateClusters *Task
	for i := range tasks {
		if tasks[i].Name == "update-clusters" {
			updateClusters = &tasks[i]
		}
	}
	require.NotNil(t, updateClusters)

	message, _, err := updateClusters.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, message, "0 clusters")
}

func TestPruneGraphTaskFlushesPendingEdges(t *testing.T) {
	meta := &fakeMetadataStore{}
	vectors := &fakeVectorStore{}
	mgr := cluster.New(meta, vectors, hdbscan.Config{}, 0.3)
	pr := pruner.New(meta, meta)
	defer pr.Close()
	pr.Enqueue("dead-edge")

	tasks, err := BuildDefaultTasks(testMaintenanceConfig(), testVectorsConfig(), Collaborators{
		Clusters: mgr, Pruner: pr, Vectors: vectors,
	})
	require.NoError(t, err)

	var pruneGraph *Task
	for i := range tasks {
		if tasks[i].Name == "prune-graph" {
			pruneGraph = &tasks[i]
		}
	}
	require.NotNil(t, pruneGraph)

	message, _, err := pruneGraph.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, message, "1 edges deleted")
}

func TestCleanupVectorsTaskReportsExpiredAndEvicted(t *testing.T) {
	meta := &fakeMetadataStore{}
	vectors := &fakeVectorStore{}
	mgr := cluster.New(meta, vectors, hdbscan.Config{}, 0.3)
	pr := pruner.New(meta, meta)
	defer pr.Close()

	tasks, err := BuildDefaultTasks(testMaintenanceConfig(), testVectorsConfig(), Collaborators{
		Clusters: mgr, Pruner: pr, Vectors: vectors,
	})
	require.NoError(t, err)

	var cleanup *Task
	for i := range tasks {
		if tasks[i].Name == "cleanup-vectors" {
			cleanup = &tasks[i]
		}
	}
	require.NotNil(t, cleanup)

	message, _, err := cleanup.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, message, "3 expired")
	assert.Contains(t, message, "2 evicted")
	assert.Equal(t, 1, vectors.cleanedUp)
	assert.Equal(t, 1, vectors.evicted)
}

func TestVacuumTaskCallsVacuum(t *testing.T) {
	meta := &fakeMetadataStore{}
	vectors := &fakeVectorStore{}
	mgr := cluster.New(meta, vectors, hdbscan.Config{}, 0.3)
	pr := pruner.New(meta, meta)
	defer pr.Close()

	tasks, err := BuildDefaultTasks(testMaintenanceConfig(), testVectorsConfig(), Collaborators{
		Clusters: mgr, Pruner: pr, Vectors: vectors,
	})
	require.NoError(t, err)

	var vacuum *Task
	for i := range tasks {
		if tasks[i].Name == "vacuum" {
			vacuum = &tasks[i]
		}
	}
	require.NotNil(t, vacuum)

	_, _, err = vacuum.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, vectors.vacuumCalled)
}

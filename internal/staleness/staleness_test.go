package staleness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lanea/internal/config"
	"lanea/internal/events"
	"lanea/internal/types"
)

type fakeGit struct {
	head string
	err  error
}

func (f fakeGit) RevParseHead(ctx context.Context, dir string) (string, error) {
	return f.head, f.err
}

type fixture struct {
	paths    config.Paths
	registry *types.RepoRegistry
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ops := t.TempDir()
	paths := config.NewPaths(ops, "")

	repoDir := filepath.Join(ops, "repos", "repo-a")
	require.NoError(t, os.MkdirAll(repoDir, 0o755))

	return &fixture{
		paths: paths,
		registry: &types.RepoRegistry{
			BaseDir: "repos",
			Repos: map[string]types.RepoConfig{
				"repo-a": {Path: "repo-a", ActiveBranch: "main", Status: types.RepoStatusActive},
			},
		},
		now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) engine(t *testing.T, git GitHead) *Engine {
	t.Helper()
	return NewEngine(f.paths, f.registry, git, 30*time.Minute, func() time.Time { return f.now })
}

func (f *fixture) writeIndex(t *testing.T, repoID, headSHA string, scannedAt time.Time) {
	t.Helper()
	writeJSON(t, f.paths.RepoIndexFile(repoID), types.RepoIndex{
		ScannedAt: scannedAt.Format(time.RFC3339),
		HeadSHA:   headSHA,
	})
}

func (f *fixture) writeScan(t *testing.T, repoID string, scannedAt time.Time) {
	t.Helper()
	writeJSON(t, f.paths.ScanFile(repoID), types.ScanInfo{
		RepoID:    repoID,
		ScannedAt: scannedAt.Format(time.RFC3339),
	})
}

func (f *fixture) writeMergeEvent(t *testing.T, repoID string, ts time.Time) {
	t.Helper()
	dir := f.paths.EventSegmentsDir()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	line := fmt.Sprintf("{\"type\":\"merge\",\"repo_id\":%q,\"timestamp\":%q,\"event_id\":\"e1\"}\n",
		repoID, ts.Format(time.RFC3339Nano))
	name := "events-" + ts.UTC().Format("20060102-15") + ".jsonl"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(line), 0o644))
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestFreshRepo(t *testing.T) {
	f := newFixture(t)
	scanTime := f.now.Add(-5 * time.Minute)
	f.writeIndex(t, "repo-a", "abc123", scanTime)
	f.writeScan(t, "repo-a", scanTime)

	snap, err := f.engine(t, fakeGit{head: "abc123"}).EvaluateRepo(context.Background(), "repo-a")
	require.NoError(t, err)
	require.False(t, snap.Stale)
	require.False(t, snap.HardStale)
	require.Empty(t, snap.Reasons)
	require.Equal(t, "fresh", snap.StaleStatus())
}

func TestCoverageIncomplete(t *testing.T) {
	f := newFixture(t)
	// No index, no scan.
	snap, err := f.engine(t, fakeGit{head: "abc123"}).EvaluateRepo(context.Background(), "repo-a")
	require.NoError(t, err)
	require.True(t, snap.Stale)
	require.Equal(t, []string{types.ReasonCoverageIncomplete}, snap.Reasons)
}

func TestMissingHeadNeverImpliesStaleness(t *testing.T) {
	f := newFixture(t)
	scanTime := f.now.Add(-5 * time.Minute)
	f.writeIndex(t, "repo-a", "abc123", scanTime)
	f.writeScan(t, "repo-a", scanTime)

	snap, err := f.engine(t, fakeGit{err: errors.New("not a repo")}).EvaluateRepo(context.Background(), "repo-a")
	require.NoError(t, err)
	require.Empty(t, snap.RepoHeadSHA)
	require.False(t, snap.Stale)
	require.NotContains(t, snap.Reasons, types.ReasonHeadSHAMismatch)
}

func TestHeadMismatchSoftWithinThreshold(t *testing.T) {
	f := newFixture(t)
	scanTime := f.now.Add(-10 * time.Minute)
	f.writeIndex(t, "repo-a", "old-sha", scanTime)
	f.writeScan(t, "repo-a", scanTime)

	snap, err := f.engine(t, fakeGit{head: "new-sha"}).EvaluateRepo(context.Background(), "repo-a")
	require.NoError(t, err)
	require.True(t, snap.Stale)
	require.False(t, snap.HardStale, "within threshold stays soft")
	require.Equal(t, []string{types.ReasonHeadSHAMismatch}, snap.Reasons)
	require.Equal(t, "soft_stale", snap.StaleStatus())
}

func TestScanAgeBoundary(t *testing.T) {
	f := newFixture(t)

	// scan_age == threshold: not hard-stale.
	scanTime := f.now.Add(-30 * time.Minute)
	f.writeIndex(t, "repo-a", "old-sha", scanTime)
	f.writeScan(t, "repo-a", scanTime)
	snap, err := f.engine(t, fakeGit{head: "new-sha"}).EvaluateRepo(context.Background(), "repo-a")
	require.NoError(t, err)
	require.True(t, snap.Stale)
	require.False(t, snap.HardStale)

	// scan_age == threshold + 1ms: hard-stale.
	scanTime = f.now.Add(-30*time.Minute - time.Millisecond)
	f.writeIndex(t, "repo-a", "old-sha", scanTime)
	f.writeScan(t, "repo-a", scanTime)
	snap, err = f.engine(t, fakeGit{head: "new-sha"}).EvaluateRepo(context.Background(), "repo-a")
	require.NoError(t, err)
	require.True(t, snap.Stale)
	require.True(t, snap.HardStale)
}

func TestMergeEventAfterScanByOneMillisecond(t *testing.T) {
	f := newFixture(t)
	scanTime := f.now.Add(-5 * time.Minute)
	f.writeIndex(t, "repo-a", "abc123", scanTime)
	f.writeScan(t, "repo-a", scanTime)
	f.writeMergeEvent(t, "repo-a", scanTime.Add(time.Millisecond))

	snap, err := f.engine(t, fakeGit{head: "abc123"}).EvaluateRepo(context.Background(), "repo-a")
	require.NoError(t, err)
	require.True(t, snap.Stale)
	require.True(t, snap.HardStale, "merge after scan is always hard")
	require.Contains(t, snap.Reasons, types.ReasonMergeEventAfterScan)
}

func TestMergeEventBeforeScanIsQuiet(t *testing.T) {
	f := newFixture(t)
	scanTime := f.now.Add(-5 * time.Minute)
	f.writeIndex(t, "repo-a", "abc123", scanTime)
	f.writeScan(t, "repo-a", scanTime)
	f.writeMergeEvent(t, "repo-a", scanTime.Add(-time.Hour))

	snap, err := f.engine(t, fakeGit{head: "abc123"}).EvaluateRepo(context.Background(), "repo-a")
	require.NoError(t, err)
	require.False(t, snap.Stale)
}

func TestHardImpliesStaleInvariant(t *testing.T) {
	f := newFixture(t)
	// A stack of scenarios; in each, hard_stale implies stale and
	// stale equals reasons being non-empty.
	scenarios := []func(){
		func() {},
		func() {
			scanTime := f.now.Add(-2 * time.Hour)
			f.writeIndex(t, "repo-a", "x", scanTime)
			f.writeScan(t, "repo-a", scanTime)
		},
	}
	for i, setup := range scenarios {
		setup()
		snap, err := f.engine(t, fakeGit{head: "y"}).EvaluateRepo(context.Background(), "repo-a")
		require.NoError(t, err)
		if snap.HardStale {
			require.True(t, snap.Stale, "scenario %d: hard_stale implies stale", i)
		}
		require.Equal(t, snap.Stale, len(snap.Reasons) > 0, "scenario %d: stale iff reasons", i)
	}
}

func TestEvaluateScopeSystemAggregates(t *testing.T) {
	f := newFixture(t)
	f.registry.Repos["repo-b"] = types.RepoConfig{Path: "repo-b", Status: types.RepoStatusActive}
	f.registry.Repos["repo-c"] = types.RepoConfig{Path: "repo-c", Status: types.RepoStatusRetired}
	require.NoError(t, os.MkdirAll(filepath.Join(f.paths.OpsRoot, "repos", "repo-b"), 0o755))

	// repo-a fresh; repo-b has no coverage at all.
	scanTime := f.now.Add(-5 * time.Minute)
	f.writeIndex(t, "repo-a", "abc123", scanTime)
	f.writeScan(t, "repo-a", scanTime)

	snap, err := f.engine(t, fakeGit{head: "abc123"}).EvaluateScope(context.Background(), types.ScopeSystem)
	require.NoError(t, err)
	require.True(t, snap.Stale)
	require.True(t, snap.HardStale)
	require.Equal(t, []string{"repo-b"}, snap.StaleRepos)
	require.Equal(t, []string{types.ReasonCoverageIncomplete}, snap.Reasons)

	cp, ok, err := events.ReadLastRefresh(f.paths.LastRefreshFile())
	require.NoError(t, err)
	require.True(t, ok, "system evaluation writes the last_refresh checkpoint")
	require.True(t, cp.Stale)
}

func TestEvaluateScopeRepoDelegates(t *testing.T) {
	f := newFixture(t)
	snap, err := f.engine(t, fakeGit{head: "x"}).EvaluateScope(context.Background(), types.RepoScope("repo-a"))
	require.NoError(t, err)
	require.Equal(t, "repo:repo-a", snap.Scope)
	require.Equal(t, "repo-a", snap.RepoID)
}

func TestObservationCounter(t *testing.T) {
	f := newFixture(t)
	eng := f.engine(t, fakeGit{head: "x"})
	stale := types.StalenessSnapshot{Scope: types.ScopeSystem, Stale: true}
	fresh := types.StalenessSnapshot{Scope: types.ScopeSystem}

	obs, err := eng.RecordObservation(types.ScopeSystem, stale)
	require.NoError(t, err)
	require.Equal(t, 1, obs.ConsecutiveStale)

	obs, err = eng.RecordObservation(types.ScopeSystem, stale)
	require.NoError(t, err)
	require.Equal(t, 2, obs.ConsecutiveStale)

	obs, err = eng.RecordObservation(types.ScopeSystem, fresh)
	require.NoError(t, err)
	require.Equal(t, 0, obs.ConsecutiveStale)

	obs, err = eng.RecordObservation(types.ScopeSystem, stale)
	require.NoError(t, err)
	require.Equal(t, 1, obs.ConsecutiveStale, "counter resets after a fresh observation")
}

func TestSoftStaleBanner(t *testing.T) {
	soft := types.StalenessSnapshot{Scope: "repo:repo-a", Stale: true, Reasons: []string{types.ReasonHeadSHAMismatch}}
	require.Contains(t, SoftStaleBanner(soft), "Soft-stale")

	hard := types.StalenessSnapshot{Scope: "repo:repo-a", Stale: true, HardStale: true}
	require.Empty(t, SoftStaleBanner(hard))
	require.Empty(t, SoftStaleBanner(types.StalenessSnapshot{Scope: "system"}))
}

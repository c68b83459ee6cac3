package sufficiency

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lanea/internal/config"
	"lanea/internal/decision"
	"lanea/internal/staleness"
	"lanea/internal/types"
)

type fakeGit struct{ head string }

func (f fakeGit) RevParseHead(ctx context.Context, dir string) (string, error) { return f.head, nil }

type fixture struct {
	paths  config.Paths
	ledger *Ledger
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ops := t.TempDir()
	paths := config.NewPaths(ops, "")
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	registry := &types.RepoRegistry{
		BaseDir: "repos",
		Repos:   map[string]types.RepoConfig{"repo-a": {Path: "repo-a", Status: types.RepoStatusActive}},
	}
	require.NoError(t, os.MkdirAll(filepath.Join(ops, "repos", "repo-a"), 0o755))

	engine := staleness.NewEngine(paths, registry, fakeGit{head: "abc123"}, 30*time.Minute, clock)
	decisions := decision.NewStore(paths, clock)

	return &fixture{
		paths:  paths,
		ledger: NewLedger(paths, registry, engine, decisions, clock),
		now:    now,
	}
}

func (f *fixture) completeCoverage(t *testing.T) {
	t.Helper()
	scanTime := f.now.Add(-5 * time.Minute)
	writeJSONFile(t, f.paths.RepoIndexFile("repo-a"), types.RepoIndex{ScannedAt: scanTime.Format(time.RFC3339), HeadSHA: "abc123"})
	writeJSONFile(t, f.paths.ScanFile("repo-a"), types.ScanInfo{RepoID: "repo-a", ScannedAt: scanTime.Format(time.RFC3339)})
}

func writeJSONFile(t *testing.T, path string, v any) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func historyEntries(t *testing.T, paths config.Paths) []string {
	t.Helper()
	entries, err := os.ReadDir(paths.SufficiencyHistoryDir())
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	return names
}

// S4: approval refuses on incomplete coverage, succeeds once the scan is
// complete, and updates LATEST plus history.
func TestApproveCoverageGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Index only, no scan: coverage is incomplete while the scan time is
	// known and recent, so the scope is soft-stale and the coverage gate
	// is the one that refuses.
	writeJSONFile(t, f.paths.RepoIndexFile("repo-a"), types.RepoIndex{ScannedAt: f.now.Add(-5 * time.Minute).Format(time.RFC3339), HeadSHA: "abc123"})

	res, err := f.ledger.Approve(ctx, types.ScopeSystem, "v0", "Alice")
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Contains(t, res.Message, "scan coverage is incomplete")

	f.completeCoverage(t)
	res, err = f.ledger.Approve(ctx, types.ScopeSystem, "v0", "Alice")
	require.NoError(t, err)
	require.True(t, res.OK, res.Message)

	rec, ok, err := f.ledger.Latest(types.ScopeSystem)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.SufficiencySufficient, rec.Status)
	require.Equal(t, "Alice", rec.DecidedBy)
	require.Empty(t, rec.Blockers)
	require.Len(t, historyEntries(t, f.paths), 1)
}

func TestApproveHardStaleGate(t *testing.T) {
	f := newFixture(t)
	// No coverage at all: unknown scan age makes the scope hard-stale, and
	// the hard-stale gate fires before the coverage gate.
	res, err := f.ledger.Approve(context.Background(), types.RepoScope("repo-a"), "v0", "Alice")
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Equal(t, "hard_stale", res.ReasonCode)
	require.Contains(t, res.Message, "hard-stale")
}

func TestApproveOpenDecisionGate(t *testing.T) {
	f := newFixture(t)
	f.completeCoverage(t)
	ctx := context.Background()

	_, _, err := f.ledger.Decisions.CreateRefreshRequired(types.ScopeSystem, types.StalenessSnapshot{
		Scope: types.ScopeSystem, Stale: true, HardStale: true, Reasons: []string{types.ReasonMergeEventAfterScan},
	})
	require.NoError(t, err)

	res, err := f.ledger.Approve(ctx, types.ScopeSystem, "v0", "Alice")
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Equal(t, "open_decisions", res.ReasonCode)
}

func TestRepeatedApproveAppendsHistory(t *testing.T) {
	f := newFixture(t)
	f.completeCoverage(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := f.ledger.Approve(ctx, types.ScopeSystem, "v0", "Alice")
		require.NoError(t, err)
		require.True(t, res.OK)
	}
	require.Len(t, historyEntries(t, f.paths), 3, "one history entry per call")

	first, ok, err := f.ledger.Latest(types.ScopeSystem)
	require.NoError(t, err)
	require.True(t, ok)
	res, err := f.ledger.Approve(ctx, types.ScopeSystem, "v0", "Alice")
	require.NoError(t, err)
	require.True(t, res.OK)
	second, _, err := f.ledger.Latest(types.ScopeSystem)
	require.NoError(t, err)
	require.Equal(t, first, second, "repeated approve yields the same normalized record")
}

func TestProposeRecordsBlockersWithoutGating(t *testing.T) {
	f := newFixture(t)
	// Coverage incomplete and hard-stale: propose still writes.
	rec, err := f.ledger.Propose(context.Background(), types.ScopeSystem, "v0", "", nil)
	require.NoError(t, err)
	require.Equal(t, types.SufficiencyProposed, rec.Status)
	require.Equal(t, types.StaleStatusHardStale, rec.StaleStatus)

	ids := make([]string, 0, len(rec.Blockers))
	for _, b := range rec.Blockers {
		ids = append(ids, b.ID)
	}
	require.Contains(t, ids, "coverage_incomplete")
	require.Contains(t, ids, "hard_stale")
}

func TestRejectWritesHumanBlocker(t *testing.T) {
	f := newFixture(t)
	f.completeCoverage(t)

	rec, err := f.ledger.Reject(context.Background(), types.ScopeSystem, "v0", "Bob", "edges unverified")
	require.NoError(t, err)
	require.Equal(t, types.SufficiencyInsufficient, rec.Status)
	require.Len(t, rec.Blockers, 1)
	require.Equal(t, "rejected_by_human", rec.Blockers[0].ID)
	require.Contains(t, rec.Blockers[0].Details, "edges unverified")
}

// S5: an approval for v0 does not carry over to v1.
func TestStatusDoesNotCarryAcrossVersions(t *testing.T) {
	f := newFixture(t)
	f.completeCoverage(t)
	ctx := context.Background()

	res, err := f.ledger.Approve(ctx, types.ScopeSystem, "v0", "Alice")
	require.NoError(t, err)
	require.True(t, res.OK)

	status, err := f.ledger.Status(types.ScopeSystem, "v0")
	require.NoError(t, err)
	require.Equal(t, types.SufficiencySufficient, status)

	status, err = f.ledger.Status(types.ScopeSystem, "v1")
	require.NoError(t, err)
	require.Equal(t, types.SufficiencyInsufficient, status)
}

func TestVersionBumps(t *testing.T) {
	f := newFixture(t)

	current, err := f.ledger.CurrentVersion()
	require.NoError(t, err)
	require.Equal(t, "v0", current)

	v, err := f.ledger.Bump(BumpPatch)
	require.NoError(t, err)
	require.Equal(t, "v0.0.1", v)

	v, err = f.ledger.Bump(BumpMinor)
	require.NoError(t, err)
	require.Equal(t, "v0.1.0", v)

	v, err = f.ledger.Bump(BumpMajor)
	require.NoError(t, err)
	require.Equal(t, "v1.0.0", v)

	v, err = f.ledger.Bump(NoBump)
	require.NoError(t, err)
	require.Equal(t, "v1.0.0", v)

	_, err = f.ledger.Bump("bump_sideways")
	require.Error(t, err)
}

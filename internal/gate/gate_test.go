package gate

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lanea/internal/config"
	"lanea/internal/decision"
	"lanea/internal/fsio"
	"lanea/internal/staleness"
	"lanea/internal/sufficiency"
	"lanea/internal/types"
)

type fakeGit struct{ head string }

func (f fakeGit) RevParseHead(ctx context.Context, dir string) (string, error) { return f.head, nil }

type fixture struct {
	paths  config.Paths
	gate   *Gate
	ledger *sufficiency.Ledger
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

	// Fresh coverage so the default state is not stale.
	scanTime := now.Add(-5 * time.Minute)
	writeJSONFile(t, paths.RepoIndexFile("repo-a"), types.RepoIndex{ScannedAt: scanTime.Format(time.RFC3339), HeadSHA: "abc123"})
	writeJSONFile(t, paths.ScanFile("repo-a"), types.ScanInfo{RepoID: "repo-a", ScannedAt: scanTime.Format(time.RFC3339)})

	engine := staleness.NewEngine(paths, registry, fakeGit{head: "abc123"}, 30*time.Minute, clock)
	ledger := sufficiency.NewLedger(paths, registry, engine, decision.NewStore(paths, clock), clock)

	return &fixture{
		paths:  paths,
		gate:   NewGate(paths, engine, ledger, clock),
		ledger: ledger,
		now:    now,
	}
}

func writeJSONFile(t *testing.T, path string, v any) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestGateRefusesWithoutSufficiency(t *testing.T) {
	f := newFixture(t)
	dec, err := f.gate.RequireConfirmedSufficiencyForDelivery(context.Background(), Request{Scope: types.ScopeSystem})
	require.NoError(t, err)
	require.False(t, dec.OK)
	require.Contains(t, dec.Message, "approve sufficiency first")
}

func TestGatePassesViaScope(t *testing.T) {
	f := newFixture(t)
	res, err := f.ledger.Approve(context.Background(), types.ScopeSystem, "v0", "Alice")
	require.NoError(t, err)
	require.True(t, res.OK, res.Message)

	dec, err := f.gate.RequireConfirmedSufficiencyForDelivery(context.Background(), Request{Scope: types.ScopeSystem})
	require.NoError(t, err)
	require.True(t, dec.OK)
	require.Equal(t, types.ScopeSystem, dec.Via)
}

func TestGateRepoScopeFallsBackToSystem(t *testing.T) {
	f := newFixture(t)
	res, err := f.ledger.Approve(context.Background(), types.ScopeSystem, "v0", "Alice")
	require.NoError(t, err)
	require.True(t, res.OK)

	dec, err := f.gate.RequireConfirmedSufficiencyForDelivery(context.Background(), Request{Scope: types.RepoScope("repo-a")})
	require.NoError(t, err)
	require.True(t, dec.OK)
	require.Equal(t, types.ScopeSystem, dec.Via)
}

// S5: sufficiency for v0 does not satisfy the gate after a bump to v1.
func TestGateVersionedSufficiency(t *testing.T) {
	f := newFixture(t)
	res, err := f.ledger.Approve(context.Background(), types.ScopeSystem, "v0", "Alice")
	require.NoError(t, err)
	require.True(t, res.OK)

	_, err = f.ledger.Bump(sufficiency.BumpMajor)
	require.NoError(t, err)

	dec, err := f.gate.RequireConfirmedSufficiencyForDelivery(context.Background(), Request{Scope: types.ScopeSystem})
	require.NoError(t, err)
	require.False(t, dec.OK)
}

func TestGateHardStaleBlocksEvenWithOverride(t *testing.T) {
	f := newFixture(t)
	// Remove all coverage: with no known scan time, staleness cannot be
	// bounded and the scope is hard-stale.
	require.NoError(t, os.Remove(f.paths.ScanFile("repo-a")))
	require.NoError(t, os.Remove(f.paths.RepoIndexFile("repo-a")))

	dec, err := f.gate.RequireConfirmedSufficiencyForDelivery(context.Background(), Request{
		Scope:         types.ScopeSystem,
		ForceOverride: true,
		Actor:         "alice",
	})
	require.NoError(t, err)
	require.False(t, dec.OK)
	require.Contains(t, dec.Message, "hard-stale")
}

func TestGateOverrideAppendsLedger(t *testing.T) {
	f := newFixture(t)
	dec, err := f.gate.RequireConfirmedSufficiencyForDelivery(context.Background(), Request{
		Scope:         types.ScopeSystem,
		ForceOverride: true,
		Actor:         "alice",
	})
	require.NoError(t, err)
	require.True(t, dec.OK)
	require.NotNil(t, dec.Override)
	require.Equal(t, types.LedgerSufficiencyOverride, dec.Override.Type)

	lines, err := fsio.ReadJSONLines[types.LedgerEntry](f.paths.LedgerFile())
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Equal(t, "alice", lines[0].Actor)
}

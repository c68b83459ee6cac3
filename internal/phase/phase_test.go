package phase

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
	paths   config.Paths
	machine *Machine
	ledger  *sufficiency.Ledger
	now     time.Time
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
	ledger := sufficiency.NewLedger(paths, registry, engine, decision.NewStore(paths, clock), clock)

	return &fixture{paths: paths, machine: NewMachine(paths, ledger, clock), ledger: ledger, now: now}
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

func TestKickoffReverseIdempotent(t *testing.T) {
	f := newFixture(t)

	res, err := f.machine.KickoffReverse("s1")
	require.NoError(t, err)
	require.True(t, res.OK)

	res, err = f.machine.KickoffReverse("s2")
	require.NoError(t, err)
	require.True(t, res.OK)
	require.Contains(t, res.Message, "already in progress")

	state, err := f.machine.Load()
	require.NoError(t, err)
	require.Equal(t, "s1", state.Reverse.SessionID, "idempotent kickoff does not restamp")
}

// S6: forward kickoff with reverse open refuses and writes FORWARD_BLOCKED.
func TestKickoffForwardBlocked(t *testing.T) {
	f := newFixture(t)

	res, reasons, err := f.machine.KickoffForward("s1")
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Contains(t, reasons, BlockReverseNotClosed)

	var blocked ForwardBlocked
	require.NoError(t, fsio.ReadJSON(f.paths.ForwardBlockedFile(), &blocked))
	require.Equal(t, reasons, blocked.Reasons)
	require.IsIncreasing(t, blocked.Reasons)
}

func TestForwardUnlocksAfterAllPrereqs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.completeCoverage(t)

	_, err := f.machine.KickoffReverse("s1")
	require.NoError(t, err)
	_, err = f.machine.Close(types.PhaseReverse, "alice", "")
	require.NoError(t, err)

	approveRes, err := f.ledger.Approve(ctx, types.ScopeSystem, "v0", "alice")
	require.NoError(t, err)
	require.True(t, approveRes.OK, approveRes.Message)

	_, err = f.machine.RefreshPrereqs(ctx)
	require.NoError(t, err)

	confirmRes, err := f.machine.ConfirmV1("alice", "looks right")
	require.NoError(t, err)
	require.True(t, confirmRes.OK, confirmRes.Message)

	res, reasons, err := f.machine.KickoffForward("s2")
	require.NoError(t, err)
	require.True(t, res.OK, res.Message)
	require.Empty(t, reasons)
	require.False(t, fsio.Exists(f.paths.ForwardBlockedFile()), "block artifact cleared on success")

	state, err := f.machine.Load()
	require.NoError(t, err)
	require.Equal(t, types.PhaseForward, state.CurrentPhase)
	require.Equal(t, types.PhaseStatusInProgress, state.Forward.Status)
}

func TestConfirmV1RequiresSufficiency(t *testing.T) {
	f := newFixture(t)
	res, err := f.machine.ConfirmV1("alice", "")
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Contains(t, res.Message, "sufficiency")
}

func TestRefreshPrereqsDoesNotTouchHumanFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.completeCoverage(t)

	res, err := f.ledger.Approve(ctx, types.ScopeSystem, "v0", "alice")
	require.NoError(t, err)
	require.True(t, res.OK)
	_, err = f.machine.RefreshPrereqs(ctx)
	require.NoError(t, err)
	confirmRes, err := f.machine.ConfirmV1("alice", "note")
	require.NoError(t, err)
	require.True(t, confirmRes.OK)

	// Sufficiency regresses (reject); refresh must update it but keep the
	// human confirmation untouched.
	_, err = f.ledger.Reject(ctx, types.ScopeSystem, "v0", "bob", "regressed")
	require.NoError(t, err)
	state, err := f.machine.RefreshPrereqs(ctx)
	require.NoError(t, err)
	require.Equal(t, types.SufficiencyInsufficient, state.Prereqs.Sufficiency)
	require.True(t, state.Prereqs.HumanConfirmedV1)
	require.Equal(t, "alice", state.Prereqs.HumanConfirmedBy)
}

func TestCloseUnknownPhase(t *testing.T) {
	f := newFixture(t)
	res, err := f.machine.Close("sideways", "alice", "")
	require.NoError(t, err)
	require.False(t, res.OK)
}

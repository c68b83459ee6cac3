// Package staleness decides whether the knowledge state for a repo or
// project scope is consistent with the live repositories and recent merge
// events, producing the three-level fresh / soft-stale / hard-stale verdict
// every other subsystem gates on.
package staleness

import (
	"context"
	"errors"
	"os"
	"sort"
	"time"

	"lanea/internal/config"
	"lanea/internal/contract"
	"lanea/internal/events"
	"lanea/internal/fsio"
	"lanea/internal/logging"
	"lanea/internal/types"
)

// GitHead is the one git capability the engine needs.
type GitHead interface {
	RevParseHead(ctx context.Context, dir string) (string, error)
}

// Engine evaluates staleness. The threshold, clock, git surface, and paths
// are injected; the engine holds no mutable state of its own.
type Engine struct {
	Paths     config.Paths
	Registry  *types.RepoRegistry
	Git       GitHead
	Threshold time.Duration
	Now       func() time.Time
}

// NewEngine wires an engine with the configured hard-stale threshold.
func NewEngine(paths config.Paths, registry *types.RepoRegistry, git GitHead, threshold time.Duration, now func() time.Time) *Engine {
	if threshold <= 0 {
		threshold = config.DefaultStaleThresholdMinutes * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{Paths: paths, Registry: registry, Git: git, Threshold: threshold, Now: now}
}

// EvaluateRepo computes the staleness snapshot for one repository.
func (e *Engine) EvaluateRepo(ctx context.Context, repoID string) (types.StalenessSnapshot, error) {
	snap := types.StalenessSnapshot{
		Scope:          types.RepoScope(repoID),
		RepoID:         repoID,
		Reasons:        []string{},
		StaleRepos:     []string{},
		HardStaleRepos: []string{},
	}

	// Live HEAD. A missing repo path or failing git call leaves the head
	// unknown; unknown HEAD never by itself implies staleness.
	repoPath := config.RepoAbsPath(e.Registry, e.Paths.OpsRoot, repoID)
	if repoPath != "" && fsio.Exists(repoPath) && e.Git != nil {
		if head, err := e.Git.RevParseHead(ctx, repoPath); err == nil {
			snap.RepoHeadSHA = head
		}
	}

	// Last-scanned reference: the repo index owns head_sha; scan.json owns
	// the scan time, falling back to the index scanned_at.
	idx, idxErr := contract.Load[types.RepoIndex](e.Paths.RepoIndexFile(repoID), contract.KindRepoIndex)
	idxValid := idxErr == nil
	if idxValid {
		snap.LastScannedHeadSHA = idx.HeadSHA
		snap.LastScanTime = idx.ScannedAt
	} else if !errors.Is(idxErr, os.ErrNotExist) && !errors.Is(idxErr, contract.ErrInvalid) {
		return snap, idxErr
	}

	scan, scanErr := contract.Load[types.ScanInfo](e.Paths.ScanFile(repoID), contract.KindScan)
	scanValid := scanErr == nil
	if scanValid {
		snap.LastScanTime = scan.ScannedAt
	} else if !errors.Is(scanErr, os.ErrNotExist) && !errors.Is(scanErr, contract.ErrInvalid) {
		return snap, scanErr
	}

	mergeTime, mergeFound, err := events.LatestMergeEventTime(e.Paths.EventSegmentsDir(), repoID)
	if err != nil {
		return snap, err
	}
	if mergeFound {
		snap.LastMergeEventTime = mergeTime.UTC().Format(time.RFC3339Nano)
	}

	coverageComplete := idxValid && scanValid
	scanTime, scanTimeKnown := parseTime(snap.LastScanTime)

	mergeAfterScan := false
	if !coverageComplete {
		snap.Reasons = append(snap.Reasons, types.ReasonCoverageIncomplete)
	}
	if snap.RepoHeadSHA != "" && snap.LastScannedHeadSHA != "" && snap.RepoHeadSHA != snap.LastScannedHeadSHA {
		snap.Reasons = append(snap.Reasons, types.ReasonHeadSHAMismatch)
	}
	if mergeFound && scanTimeKnown && mergeTime.After(scanTime) {
		mergeAfterScan = true
		snap.Reasons = append(snap.Reasons, types.ReasonMergeEventAfterScan)
	}
	sort.Strings(snap.Reasons)

	snap.Stale = len(snap.Reasons) > 0
	if snap.Stale {
		// Unknown scan age cannot establish freshness; it counts as over
		// the threshold. Equal to the threshold is still soft.
		scanAgeOver := true
		if scanTimeKnown {
			scanAgeOver = e.Now().Sub(scanTime) > e.Threshold
		}
		snap.HardStale = mergeAfterScan || scanAgeOver
	}

	if snap.Stale {
		snap.StaleRepos = append(snap.StaleRepos, repoID)
	}
	if snap.HardStale {
		snap.HardStaleRepos = append(snap.HardStaleRepos, repoID)
	}

	logging.Get(logging.CategoryStaleness).Debug("repo %s stale=%v hard=%v reasons=%v", repoID, snap.Stale, snap.HardStale, snap.Reasons)
	return snap, nil
}

// EvaluateScope computes staleness for "system" (aggregated across all
// active repos) or delegates for "repo:<id>".
func (e *Engine) EvaluateScope(ctx context.Context, scope string) (types.StalenessSnapshot, error) {
	if repoID, ok := types.ScopeRepoID(scope); ok {
		return e.EvaluateRepo(ctx, repoID)
	}

	agg := types.StalenessSnapshot{
		Scope:          types.ScopeSystem,
		Reasons:        []string{},
		StaleRepos:     []string{},
		HardStaleRepos: []string{},
	}
	reasonSet := map[string]bool{}
	for _, repoID := range config.ActiveRepoIDs(e.Registry) {
		snap, err := e.EvaluateRepo(ctx, repoID)
		if err != nil {
			return agg, err
		}
		for _, r := range snap.Reasons {
			reasonSet[r] = true
		}
		agg.StaleRepos = append(agg.StaleRepos, snap.StaleRepos...)
		agg.HardStaleRepos = append(agg.HardStaleRepos, snap.HardStaleRepos...)
		agg.Stale = agg.Stale || snap.Stale
		agg.HardStale = agg.HardStale || snap.HardStale
	}
	for r := range reasonSet {
		agg.Reasons = append(agg.Reasons, r)
	}
	sort.Strings(agg.Reasons)
	sort.Strings(agg.StaleRepos)
	sort.Strings(agg.HardStaleRepos)

	if scope == types.ScopeSystem {
		cp := events.LastRefresh{
			Scope:       types.ScopeSystem,
			RefreshedAt: e.Now().UTC().Format(time.RFC3339),
			Stale:       agg.Stale,
			HardStale:   agg.HardStale,
		}
		if err := events.WriteLastRefresh(e.Paths.LastRefreshFile(), cp); err != nil {
			return agg, err
		}
	}
	return agg, nil
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

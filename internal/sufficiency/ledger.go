// Package sufficiency keeps the versioned, append-history record of whether
// knowledge at a scope is sufficient for downstream delivery. Propose never
// gates; approve is guarded by the staleness policy, scan coverage, and
// open decision packets; reject always lands as insufficient.
package sufficiency

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"lanea/internal/config"
	"lanea/internal/contract"
	"lanea/internal/decision"
	"lanea/internal/fsio"
	"lanea/internal/logging"
	"lanea/internal/staleness"
	"lanea/internal/types"
)

// Ledger owns the sufficiency records for a project.
type Ledger struct {
	Paths     config.Paths
	Registry  *types.RepoRegistry
	Stale     *staleness.Engine
	Decisions *decision.Store
	Now       func() time.Time
}

// NewLedger wires a ledger.
func NewLedger(paths config.Paths, registry *types.RepoRegistry, stale *staleness.Engine, decisions *decision.Store, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{Paths: paths, Registry: registry, Stale: stale, Decisions: decisions, Now: now}
}

// latestIndex is the per-scope LATEST pointer: the newest record per scope.
type latestIndex map[string]types.SufficiencyRecord

func (l *Ledger) readLatest() (latestIndex, error) {
	idx := latestIndex{}
	path := l.Paths.SufficiencyLatestFile()
	if !fsio.Exists(path) {
		return idx, nil
	}
	if err := fsio.ReadJSON(path, &idx); err != nil {
		return nil, err
	}
	return idx, nil
}

// Latest returns the newest record for a scope, if any.
func (l *Ledger) Latest(scope string) (types.SufficiencyRecord, bool, error) {
	idx, err := l.readLatest()
	if err != nil {
		return types.SufficiencyRecord{}, false, err
	}
	rec, ok := idx[scope]
	return rec, ok, nil
}

// Status returns the sufficiency status of (scope, version). A record for
// a different version never carries over: the answer is insufficient.
func (l *Ledger) Status(scope, version string) (string, error) {
	rec, ok, err := l.Latest(scope)
	if err != nil {
		return "", err
	}
	if !ok || rec.KnowledgeVersion != version {
		return types.SufficiencyInsufficient, nil
	}
	return rec.Status, nil
}

// Coverage reports whether every active repo has a valid index and scan,
// plus the repos missing either.
func (l *Ledger) Coverage() (bool, []string) {
	var missing []string
	for _, repoID := range config.ActiveRepoIDs(l.Registry) {
		_, idxErr := contract.Load[types.RepoIndex](l.Paths.RepoIndexFile(repoID), contract.KindRepoIndex)
		_, scanErr := contract.Load[types.ScanInfo](l.Paths.ScanFile(repoID), contract.KindScan)
		if idxErr != nil || scanErr != nil {
			missing = append(missing, repoID)
		}
	}
	sort.Strings(missing)
	return len(missing) == 0, missing
}

// writeRecord persists a record: the SUFFICIENCY.json snapshot, an
// immutable history entry (JSON plus Markdown), and the per-scope LATEST
// pointer.
func (l *Ledger) writeRecord(rec types.SufficiencyRecord) error {
	if err := fsio.WriteJSONAtomic(l.Paths.SufficiencyFile(), rec); err != nil {
		return err
	}

	base := fmt.Sprintf("SUFF-%s-%s-%s", l.Now().UTC().Format("20060102_150405"),
		types.ScopeSlug(rec.Scope), rec.KnowledgeVersion)
	historyDir := l.Paths.SufficiencyHistoryDir()
	name := base
	for seq := 2; fsio.Exists(filepath.Join(historyDir, name+".json")); seq++ {
		name = fmt.Sprintf("%s-%d", base, seq)
	}
	if err := fsio.WriteJSONAtomic(filepath.Join(historyDir, name+".json"), rec); err != nil {
		return err
	}
	if err := fsio.WriteFileAtomic(filepath.Join(historyDir, name+".md"), []byte(renderRecordMarkdown(rec))); err != nil {
		return err
	}

	idx, err := l.readLatest()
	if err != nil {
		return err
	}
	idx[rec.Scope] = rec
	return fsio.WriteJSONAtomic(l.Paths.SufficiencyLatestFile(), idx)
}

// computeBlockers derives the blocker list propose records.
func (l *Ledger) computeBlockers(snap types.StalenessSnapshot, coverageOK bool, missing []string, open []types.DecisionPacket) []types.Blocker {
	var blockers []types.Blocker
	if !coverageOK {
		blockers = append(blockers, types.Blocker{
			ID:      "coverage_incomplete",
			Title:   "scan coverage is incomplete",
			Details: "missing index or scan for: " + strings.Join(missing, ", "),
		})
	}
	if snap.HardStale {
		blockers = append(blockers, types.Blocker{
			ID:      "hard_stale",
			Title:   "knowledge is hard-stale",
			Details: strings.Join(snap.Reasons, ", "),
		})
	}
	for _, p := range open {
		blockers = append(blockers, types.Blocker{
			ID:      "open_decision_" + p.DecisionID,
			Title:   "open decision packet " + p.DecisionID,
			Details: p.Context.Summary,
		})
	}
	sort.Slice(blockers, func(i, j int) bool { return blockers[i].ID < blockers[j].ID })
	return blockers
}

// Propose writes a proposed_sufficient record with computed blockers. It
// never gates: a hard-stale or blocked proposal simply records its state.
func (l *Ledger) Propose(ctx context.Context, scope, version, rationaleMDPath string, evidenceBasis []string) (types.SufficiencyRecord, error) {
	snap, err := l.Stale.EvaluateScope(ctx, scope)
	if err != nil {
		return types.SufficiencyRecord{}, err
	}
	coverageOK, missing := l.Coverage()
	open, err := l.Decisions.ListOpen(scope)
	if err != nil {
		return types.SufficiencyRecord{}, err
	}

	rec := types.SufficiencyRecord{
		Scope:            scope,
		KnowledgeVersion: version,
		Status:           types.SufficiencyProposed,
		RationaleMDPath:  rationaleMDPath,
		EvidenceBasis:    normalizeBasis(evidenceBasis),
		Blockers:         l.computeBlockers(snap, coverageOK, missing, open),
		StaleStatus:      snap.StaleStatus(),
	}
	if err := l.writeRecord(rec); err != nil {
		return types.SufficiencyRecord{}, err
	}
	logging.Get(logging.CategorySufficiency).Info("proposed %s %s with %d blockers", scope, version, len(rec.Blockers))
	return rec, nil
}

// Approve writes a sufficient record after the gates pass: not hard-stale,
// coverage complete, no open decision packet for the scope.
func (l *Ledger) Approve(ctx context.Context, scope, version, by string) (types.Result, error) {
	snap, err := l.Stale.EvaluateScope(ctx, scope)
	if err != nil {
		return types.Result{}, err
	}
	if snap.HardStale {
		return types.Result{
			OK:         false,
			ReasonCode: "hard_stale",
			Message:    fmt.Sprintf("cannot approve %s: knowledge is hard-stale (%s)", scope, firstReason(snap)),
		}, nil
	}
	coverageOK, missing := l.Coverage()
	if !coverageOK {
		return types.Result{
			OK:         false,
			ReasonCode: "coverage_incomplete",
			Message:    fmt.Sprintf("cannot approve %s: scan coverage is incomplete (missing: %s)", scope, strings.Join(missing, ", ")),
		}, nil
	}
	open, err := l.Decisions.ListOpen(scope)
	if err != nil {
		return types.Result{}, err
	}
	if len(open) > 0 {
		return types.Result{
			OK:         false,
			ReasonCode: "open_decisions",
			Message:    fmt.Sprintf("cannot approve %s: %d open decision packet(s), first %s", scope, len(open), open[0].DecisionID),
		}, nil
	}

	rec := types.SufficiencyRecord{
		Scope:            scope,
		KnowledgeVersion: version,
		Status:           types.SufficiencySufficient,
		DecidedBy:        by,
		DecidedAt:        l.Now().UTC().Format(time.RFC3339),
		EvidenceBasis:    []string{},
		Blockers:         []types.Blocker{},
		StaleStatus:      snap.StaleStatus(),
	}
	if prev, ok, err := l.Latest(scope); err != nil {
		return types.Result{}, err
	} else if ok && prev.KnowledgeVersion == version {
		rec.RationaleMDPath = prev.RationaleMDPath
		rec.EvidenceBasis = prev.EvidenceBasis
	}

	if err := l.writeRecord(rec); err != nil {
		return types.Result{}, err
	}
	logging.Get(logging.CategorySufficiency).Info("approved %s %s by %s", scope, version, by)
	return types.Result{OK: true, Message: fmt.Sprintf("%s %s approved as sufficient", scope, version)}, nil
}

// Reject writes an insufficient record carrying a rejected_by_human
// blocker with the human's notes.
func (l *Ledger) Reject(ctx context.Context, scope, version, by, notes string) (types.SufficiencyRecord, error) {
	snap, err := l.Stale.EvaluateScope(ctx, scope)
	if err != nil {
		return types.SufficiencyRecord{}, err
	}

	details := "rejected"
	if notes != "" {
		details = "human notes: " + notes
	}
	rec := types.SufficiencyRecord{
		Scope:            scope,
		KnowledgeVersion: version,
		Status:           types.SufficiencyInsufficient,
		DecidedBy:        by,
		DecidedAt:        l.Now().UTC().Format(time.RFC3339),
		EvidenceBasis:    []string{},
		Blockers: []types.Blocker{{
			ID:      "rejected_by_human",
			Title:   "rejected by " + by,
			Details: details,
		}},
		StaleStatus: snap.StaleStatus(),
	}
	if err := l.writeRecord(rec); err != nil {
		return types.SufficiencyRecord{}, err
	}
	return rec, nil
}

func normalizeBasis(basis []string) []string {
	out := make([]string, 0, len(basis))
	seen := map[string]bool{}
	for _, b := range basis {
		b = strings.TrimSpace(b)
		if b == "" || seen[b] {
			continue
		}
		seen[b] = true
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

func firstReason(snap types.StalenessSnapshot) string {
	if len(snap.Reasons) > 0 {
		return snap.Reasons[0]
	}
	return "stale"
}

func renderRecordMarkdown(rec types.SufficiencyRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Sufficiency — %s %s\n\n", rec.Scope, rec.KnowledgeVersion)
	fmt.Fprintf(&b, "- Status: **%s**\n- Stale status: %s\n", rec.Status, rec.StaleStatus)
	if rec.DecidedBy != "" {
		fmt.Fprintf(&b, "- Decided by: %s at %s\n", rec.DecidedBy, rec.DecidedAt)
	}
	if rec.RationaleMDPath != "" {
		fmt.Fprintf(&b, "- Rationale: %s\n", rec.RationaleMDPath)
	}
	if len(rec.Blockers) > 0 {
		b.WriteString("\n## Blockers\n\n")
		for _, blocker := range rec.Blockers {
			fmt.Fprintf(&b, "- **%s** — %s", blocker.ID, blocker.Title)
			if blocker.Details != "" {
				fmt.Fprintf(&b, " (%s)", blocker.Details)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

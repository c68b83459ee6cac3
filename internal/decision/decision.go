// Package decision escalates automation-blocking conditions to humans as
// structured, file-backed packets. Creation is idempotent per (scope, kind):
// an existing open packet of the same kind and scope is returned unchanged.
package decision

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"lanea/internal/config"
	"lanea/internal/contract"
	"lanea/internal/fsio"
	"lanea/internal/logging"
	"lanea/internal/types"
)

// Packet kinds used in filename prefixes.
const (
	KindRefreshRequired = "refresh-required"
	KindLLMOutput       = "llm-output"
)

// Store reads and writes decision packets under <knowledge>/decisions.
type Store struct {
	Paths config.Paths
	Now   func() time.Time
}

// NewStore wires a store.
func NewStore(paths config.Paths, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{Paths: paths, Now: now}
}

// ID derives the deterministic decision id from scope, blocking state, and
// kind.
func ID(scope, blockingState, kind string) string {
	sum := sha256.Sum256([]byte(scope + "\x00" + blockingState + "\x00" + kind))
	return hex.EncodeToString(sum[:])[:16]
}

// scopeFragment names the scope inside a packet filename: the bare repo id
// for repo scopes, the scope itself otherwise.
func scopeFragment(scope string) string {
	if repoID, ok := types.ScopeRepoID(scope); ok {
		return repoID
	}
	return types.ScopeSlug(scope)
}

func (s *Store) packetPath(kind, scope, decisionID string) string {
	name := fmt.Sprintf("DECISION-%s-%s-%s.json", kind, scopeFragment(scope), decisionID)
	return filepath.Join(s.Paths.DecisionsDir(), name)
}

// findOpen scans the decisions directory for an open packet whose filename
// prefix matches the kind and scope. Answered packets are skipped: they are
// ineligible for idempotent reuse.
func (s *Store) findOpen(kind, scope string) (types.DecisionPacket, string, bool, error) {
	prefix := fmt.Sprintf("DECISION-%s-%s-", kind, scopeFragment(scope))
	entries, err := os.ReadDir(s.Paths.DecisionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return types.DecisionPacket{}, "", false, nil
		}
		return types.DecisionPacket{}, "", false, fmt.Errorf("read decisions dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(s.Paths.DecisionsDir(), name)
		packet, err := contract.Load[types.DecisionPacket](path, contract.KindDecisionPacket)
		if err != nil {
			return types.DecisionPacket{}, "", false, err
		}
		if packet.Status == types.DecisionOpen {
			return packet, path, true, nil
		}
	}
	return types.DecisionPacket{}, "", false, nil
}

// Create writes a packet idempotently. When an open packet of the same
// (scope, kind) already exists it is returned unchanged and created=false.
func (s *Store) Create(kind string, packet types.DecisionPacket) (types.DecisionPacket, bool, error) {
	existing, _, found, err := s.findOpen(kind, packet.Scope)
	if err != nil {
		return types.DecisionPacket{}, false, err
	}
	if found {
		return existing, false, nil
	}

	packet.DecisionID = ID(packet.Scope, packet.BlockingState, kind)
	packet.Status = types.DecisionOpen
	packet.CreatedAt = s.Now().UTC().Format(time.RFC3339)

	path := s.packetPath(kind, packet.Scope, packet.DecisionID)
	if err := fsio.WriteJSONAtomic(path, packet); err != nil {
		return types.DecisionPacket{}, false, err
	}
	if err := fsio.WriteFileAtomic(strings.TrimSuffix(path, ".json")+".md", []byte(renderMarkdown(packet))); err != nil {
		return types.DecisionPacket{}, false, err
	}

	logging.Get(logging.CategoryDecision).Info("created %s packet %s for %s", kind, packet.DecisionID, packet.Scope)
	return packet, true, nil
}

// NewRefreshRequired builds the refresh-required packet for a hard-stale
// scope. The context's "what is known" pointers carry the snapshot facts a
// human needs to order the right rescan.
func NewRefreshRequired(scope string, snap types.StalenessSnapshot) types.DecisionPacket {
	reason := "hard_stale"
	if len(snap.Reasons) > 0 {
		reason = snap.Reasons[0]
	}

	known := []string{
		"repo HEAD: " + orUnknown(snap.RepoHeadSHA),
		"last scanned HEAD: " + orUnknown(snap.LastScannedHeadSHA),
		"last scan time: " + orUnknown(snap.LastScanTime),
		"last merge event: " + orUnknown(snap.LastMergeEventTime),
	}

	return types.DecisionPacket{
		Scope:         scope,
		Trigger:       "staleness_policy",
		BlockingState: "hard_stale:" + reason,
		Context: types.DecisionContext{
			Summary:             fmt.Sprintf("Knowledge for %s is hard-stale (%s); automation refused to proceed.", scope, reason),
			WhyAutomationFailed: "The staleness policy forbids LLM-backed work on hard-stale knowledge without a human-ordered refresh or explicit override.",
			WhatIsKnown:         known,
		},
		Questions: []types.DecisionQuestion{
			{
				ID:                 "q1",
				Question:           "Re-run the scanner for this scope, or override and proceed on stale knowledge?",
				ExpectedAnswerType: types.AnswerTypeChoice,
				Constraints:        "rescan | override",
				Blocks:             []string{"committee_run", "intake_approval", "sufficiency_approval"},
			},
		},
		AssumptionsIfUnanswered: "No work proceeds for this scope until the refresh happens.",
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// CreateRefreshRequired is the idempotent hard-stale escalation used by the
// committee orchestrator, meetings, and the sufficiency ledger.
func (s *Store) CreateRefreshRequired(scope string, snap types.StalenessSnapshot) (types.DecisionPacket, bool, error) {
	return s.Create(KindRefreshRequired, NewRefreshRequired(scope, snap))
}

// ListOpen returns the open packets for a scope, sorted by decision id.
// The system scope additionally blocks every repo scope, so repo scopes
// include system packets.
func (s *Store) ListOpen(scope string) ([]types.DecisionPacket, error) {
	all, err := s.list()
	if err != nil {
		return nil, err
	}
	var out []types.DecisionPacket
	for _, p := range all {
		if p.Status != types.DecisionOpen {
			continue
		}
		if p.Scope == scope || p.Scope == types.ScopeSystem {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DecisionID < out[j].DecisionID })
	return out, nil
}

// ListAnswered returns answered packets for the given scopes, oldest first.
// Committee payloads include these so prior human rulings stay visible.
func (s *Store) ListAnswered(scopes ...string) ([]types.DecisionPacket, error) {
	want := map[string]bool{}
	for _, sc := range scopes {
		want[sc] = true
	}
	all, err := s.list()
	if err != nil {
		return nil, err
	}
	var out []types.DecisionPacket
	for _, p := range all {
		if p.Status == types.DecisionAnswered && want[p.Scope] {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AnsweredAt < out[j].AnsweredAt })
	return out, nil
}

func (s *Store) list() ([]types.DecisionPacket, error) {
	entries, err := os.ReadDir(s.Paths.DecisionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read decisions dir: %w", err)
	}
	var out []types.DecisionPacket
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "DECISION-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		packet, err := contract.Load[types.DecisionPacket](filepath.Join(s.Paths.DecisionsDir(), name), contract.KindDecisionPacket)
		if err != nil {
			return nil, err
		}
		out = append(out, packet)
	}
	return out, nil
}

// Answer records per-question answer bodies on an open packet and marks it
// answered, making it ineligible for idempotent reuse.
func (s *Store) Answer(decisionID string, answers map[string]string) (types.Result, error) {
	all, err := s.list()
	if err != nil {
		return types.Result{}, err
	}
	for _, p := range all {
		if p.DecisionID != decisionID {
			continue
		}
		if p.Status == types.DecisionAnswered {
			return types.Result{OK: false, Message: fmt.Sprintf("decision %s is already answered", decisionID)}, nil
		}
		for _, q := range p.Questions {
			if _, ok := answers[q.ID]; !ok {
				return types.Result{OK: false, Message: fmt.Sprintf("question %s has no answer", q.ID)}, nil
			}
		}
		p.Status = types.DecisionAnswered
		p.AnsweredAt = s.Now().UTC().Format(time.RFC3339)
		p.Answers = answers

		// The answered packet moves to a timestamped filename so a later
		// recurrence of the same blocking state can open a fresh packet
		// without clobbering this record.
		kind, ok := kindFromBlockingState(p)
		if !ok {
			return types.Result{}, fmt.Errorf("decision %s: cannot derive kind for rewrite", decisionID)
		}
		openPath := s.packetPath(kind, p.Scope, p.DecisionID)
		answeredPath := strings.TrimSuffix(openPath, ".json") +
			"-answered-" + s.Now().UTC().Format("20060102_150405") + ".json"
		if err := fsio.WriteJSONAtomic(answeredPath, p); err != nil {
			return types.Result{}, err
		}
		if err := fsio.WriteFileAtomic(strings.TrimSuffix(answeredPath, ".json")+".md", []byte(renderMarkdown(p))); err != nil {
			return types.Result{}, err
		}
		os.Remove(openPath)
		os.Remove(strings.TrimSuffix(openPath, ".json") + ".md")
		return types.Result{OK: true, Message: "decision answered"}, nil
	}
	return types.Result{OK: false, Message: fmt.Sprintf("decision %s not found", decisionID)}, nil
}

// kindFromBlockingState recovers the filename kind by matching the stored
// decision id against the deterministic derivation.
func kindFromBlockingState(p types.DecisionPacket) (string, bool) {
	for _, kind := range []string{KindRefreshRequired, KindLLMOutput} {
		if ID(p.Scope, p.BlockingState, kind) == p.DecisionID {
			return kind, true
		}
	}
	return "", false
}

func renderMarkdown(p types.DecisionPacket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Decision %s\n\n", p.DecisionID)
	fmt.Fprintf(&b, "- Scope: `%s`\n- Trigger: %s\n- Blocking state: `%s`\n- Status: %s\n- Created: %s\n\n",
		p.Scope, p.Trigger, p.BlockingState, p.Status, p.CreatedAt)
	fmt.Fprintf(&b, "## Context\n\n%s\n\n%s\n\n", p.Context.Summary, p.Context.WhyAutomationFailed)
	if len(p.Context.WhatIsKnown) > 0 {
		b.WriteString("What is known:\n\n")
		for _, k := range p.Context.WhatIsKnown {
			fmt.Fprintf(&b, "- %s\n", k)
		}
		b.WriteString("\n")
	}
	b.WriteString("## Questions\n\n")
	for _, q := range p.Questions {
		fmt.Fprintf(&b, "### %s\n\n%s\n\n", q.ID, q.Question)
		if q.Constraints != "" {
			fmt.Fprintf(&b, "Constraints: %s\n\n", q.Constraints)
		}
		if answer, ok := p.Answers[q.ID]; ok {
			fmt.Fprintf(&b, "**Answer:** %s\n\n", answer)
		}
	}
	if p.AssumptionsIfUnanswered != "" {
		fmt.Fprintf(&b, "If unanswered: %s\n", p.AssumptionsIfUnanswered)
	}
	return b.String()
}

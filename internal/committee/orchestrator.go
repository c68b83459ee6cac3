// Package committee runs the evidence-grounded review roles: architect and
// skeptic per repository, the integration chair and QA strategist across
// repositories. Every role consumes a whitelisted evidence set, answers
// through the oracle at temperature zero, and has its output pushed through
// the validation pipeline before a deterministic status is derived.
package committee

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"lanea/internal/config"
	"lanea/internal/contract"
	"lanea/internal/decision"
	"lanea/internal/evidence"
	"lanea/internal/fsio"
	"lanea/internal/logging"
	"lanea/internal/oracle"
	"lanea/internal/staleness"
	"lanea/internal/types"
)

// Run states of one repo committee run.
const (
	StateMissingInput  = "missing_input"
	StateStaleBlocked  = "stale_blocked"
	StateLLMError      = "llm_error"
	StateOutputInvalid = "output_invalid"
	StateEvidenceValid = "evidence_valid"
	StateEvidenceInval = "evidence_invalid"
)

// ReasonStaleBlocked is the reason code of a hard-stale refusal.
const ReasonStaleBlocked = "STALE_BLOCKED"

// RunResult reports the terminal state of one committee run.
type RunResult struct {
	RepoID     string `json:"repo_id,omitempty"`
	Scope      string `json:"scope"`
	State      string `json:"state"`
	OK         bool   `json:"ok"`
	ReasonCode string `json:"reason_code,omitempty"`
	Message    string `json:"message,omitempty"`
}

// errorArtifact is the typed artifact written by terminal failure states.
type errorArtifact struct {
	Role            string   `json:"role"`
	Scope           string   `json:"scope"`
	State           string   `json:"state"`
	Message         string   `json:"message"`
	Severity        string   `json:"severity,omitempty"`
	EvidenceMissing []string `json:"evidence_missing,omitempty"`
	OccurredAt      string   `json:"occurred_at"`
}

// Orchestrator wires the committee pipeline. Every external dependency is
// injected; there is no package-level state.
type Orchestrator struct {
	Paths         config.Paths
	Registry      *types.RepoRegistry
	Stale         *staleness.Engine
	Catalog       *evidence.Catalog
	Decisions     *decision.Store
	Oracle        oracle.Client
	Pool          int
	ForceOverride bool
	Now           func() time.Time
}

// NewOrchestrator builds an orchestrator with the configured pool bound.
func NewOrchestrator(paths config.Paths, registry *types.RepoRegistry, stale *staleness.Engine, catalog *evidence.Catalog, decisions *decision.Store, client oracle.Client, pool int, now func() time.Time) *Orchestrator {
	if pool < 1 {
		pool = 1
	}
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		Paths:     paths,
		Registry:  registry,
		Stale:     stale,
		Catalog:   catalog,
		Decisions: decisions,
		Oracle:    client,
		Pool:      pool,
		Now:       now,
	}
}

// role artifact basenames.
func roleArtifact(role string) string {
	switch role {
	case RoleArchitect:
		return "architect_claims"
	case RoleSkeptic:
		return "skeptic_challenges"
	case RoleIntegration:
		return "integration_findings"
	case RoleQAStrategist:
		return "qa_strategy"
	}
	return role
}

// RunRepo executes the architect-then-skeptic committee for one repository.
func (o *Orchestrator) RunRepo(ctx context.Context, repoID string) (RunResult, error) {
	scope := types.RepoScope(repoID)
	log := logging.Get(logging.CategoryCommittee)

	snap, err := o.Stale.EvaluateRepo(ctx, repoID)
	if err != nil {
		return RunResult{}, err
	}
	if _, err := o.Stale.RecordObservation(scope, snap); err != nil {
		return RunResult{}, err
	}

	if snap.HardStale && !o.ForceOverride {
		if _, _, err := o.Decisions.CreateRefreshRequired(scope, snap); err != nil {
			return RunResult{}, err
		}
		log.Warn("repo %s committee refused: hard stale (%s)", repoID, firstReason(snap))
		return RunResult{
			RepoID:     repoID,
			Scope:      scope,
			State:      StateStaleBlocked,
			ReasonCode: ReasonStaleBlocked,
			Message:    fmt.Sprintf("knowledge for %s is hard-stale: %s", scope, firstReason(snap)),
		}, nil
	}

	refs, err := o.Catalog.LoadRefs(repoID)
	if err != nil {
		return RunResult{
			RepoID:  repoID,
			Scope:   scope,
			State:   StateMissingInput,
			Message: err.Error(),
		}, nil
	}
	allowed := evidence.AllowedSet(refs)
	bundle, err := o.Catalog.BuildBundle(ctx, repoID, refs)
	if err != nil {
		return RunResult{
			RepoID:  repoID,
			Scope:   scope,
			State:   StateMissingInput,
			Message: err.Error(),
		}, nil
	}

	var repoIndex *types.RepoIndex
	if idx, err := contract.Load[types.RepoIndex](o.Paths.RepoIndexFile(repoID), contract.KindRepoIndex); err == nil {
		repoIndex = &idx
	}

	prior, err := o.priorDecisions(scope)
	if err != nil {
		return RunResult{}, err
	}

	payload := repoPayload{
		Scope:           scope,
		Kickoff:         o.kickoffText(),
		PriorDecisions:  prior,
		RepoIndex:       repoIndex,
		AllowedEvidence: sortedIDs(allowed),
		Evidence:        bundle,
	}

	// Architect runs strictly before the skeptic; the skeptic's payload
	// includes the architect output.
	architect, failure, err := o.runRole(ctx, RoleArchitect, o.Paths.RepoCommitteeDir(repoID), scope, payload, allowed, snap)
	if err != nil {
		return RunResult{RepoID: repoID, Scope: scope, State: StateLLMError, Message: err.Error()}, nil
	}
	if failure != nil {
		status := DeriveRepoStatus(repoID, nil, []*ValidationFailure{failure}, snap)
		if err := o.writeRepoStatus(repoID, status); err != nil {
			return RunResult{}, err
		}
		return RunResult{RepoID: repoID, Scope: scope, State: StateOutputInvalid, Message: failure.Message}, nil
	}

	payload.ArchitectClaims = architect
	skeptic, failure, err := o.runRole(ctx, RoleSkeptic, o.Paths.RepoCommitteeDir(repoID), scope, payload, allowed, snap)
	if err != nil {
		return RunResult{RepoID: repoID, Scope: scope, State: StateLLMError, Message: err.Error()}, nil
	}

	var outputs []types.CommitteeOutput
	var failures []*ValidationFailure
	outputs = append(outputs, *architect)
	if failure != nil {
		failures = append(failures, failure)
	} else {
		outputs = append(outputs, *skeptic)
	}

	status := DeriveRepoStatus(repoID, outputs, failures, snap)
	if err := o.writeRepoStatus(repoID, status); err != nil {
		return RunResult{}, err
	}

	state := StateEvidenceValid
	if failure != nil {
		state = StateOutputInvalid
	} else if !status.EvidenceValid {
		state = StateEvidenceInval
	}
	log.Info("repo %s committee finished state=%s next_action=%s", repoID, state, status.NextAction)
	return RunResult{RepoID: repoID, Scope: scope, State: state, OK: state == StateEvidenceValid, Message: status.NextAction}, nil
}

// runRole invokes one role and pushes the reply through the validation
// pipeline. Success persists <artifact>.{json,md} and removes any stale
// error artifact; a validation failure persists <artifact>.error.json and
// removes the success artifacts.
func (o *Orchestrator) runRole(ctx context.Context, role, dir, scope string, payload any, allowed map[string]bool, snap types.StalenessSnapshot) (*types.CommitteeOutput, *ValidationFailure, error) {
	body, err := marshalPayload(payload)
	if err != nil {
		return nil, nil, err
	}

	reply, err := o.Oracle.Invoke(ctx, []oracle.Message{
		{Role: oracle.RoleSystem, Content: SystemPrompt(role)},
		{Role: oracle.RoleUser, Content: body},
	})
	if err != nil {
		o.writeErrorArtifact(dir, role, scope, StateLLMError, err.Error(), "", nil)
		return nil, nil, fmt.Errorf("%s oracle call: %w", role, err)
	}

	output, failure := ValidateOutput(reply.Content, scope, allowed, snap)
	base := filepath.Join(dir, roleArtifact(role))
	if failure != nil {
		o.writeErrorArtifact(dir, role, scope, StateOutputInvalid, failure.Message, failure.Severity, failure.EvidenceMissing)
		os.Remove(base + ".json")
		os.Remove(base + ".md")
		return nil, failure, nil
	}

	if err := fsio.WriteJSONAtomic(base+".json", output); err != nil {
		return nil, nil, err
	}
	if err := fsio.WriteFileAtomic(base+".md", []byte(renderOutputMarkdown(role, output, snap))); err != nil {
		return nil, nil, err
	}
	os.Remove(base + ".error.json")
	return &output, nil, nil
}

func (o *Orchestrator) writeErrorArtifact(dir, role, scope, state, message, severity string, missing []string) {
	artifact := errorArtifact{
		Role:            role,
		Scope:           scope,
		State:           state,
		Message:         message,
		Severity:        severity,
		EvidenceMissing: missing,
		OccurredAt:      o.Now().UTC().Format(time.RFC3339),
	}
	path := filepath.Join(dir, roleArtifact(role)+".error.json")
	if err := fsio.WriteJSONAtomic(path, artifact); err != nil {
		logging.Get(logging.CategoryCommittee).Error("write error artifact %s: %v", path, err)
	}
}

func (o *Orchestrator) writeRepoStatus(repoID string, status types.CommitteeStatus) error {
	return fsio.WriteJSONAtomic(o.Paths.CommitteeStatusFile(repoID), status)
}

// RunAll executes repo committees for every target at the bounded pool,
// then the integration chair once all targets are valid.
func (o *Orchestrator) RunAll(ctx context.Context, repoIDs []string) ([]RunResult, error) {
	if len(repoIDs) == 0 {
		repoIDs = config.ActiveRepoIDs(o.Registry)
	}
	if len(repoIDs) == 0 {
		return nil, fmt.Errorf("no active repositories in the registry")
	}

	limit := o.Pool
	if limit > len(repoIDs) {
		limit = len(repoIDs)
	}

	results := make([]RunResult, len(repoIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, repoID := range repoIDs {
		i, repoID := i, repoID
		g.Go(func() error {
			res, err := o.RunRepo(gctx, repoID)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	allValid := true
	for _, res := range results {
		if res.State != StateEvidenceValid {
			allValid = false
		}
	}
	if allValid {
		res, err := o.RunIntegration(ctx)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

// RunIntegration executes the integration chair. It refuses unless every
// in-scope repo committee has a valid status.
func (o *Orchestrator) RunIntegration(ctx context.Context) (RunResult, error) {
	return o.runSystemRole(ctx, RoleIntegration)
}

// RunQAStrategist executes the QA strategist over the same inputs as the
// integration chair.
func (o *Orchestrator) RunQAStrategist(ctx context.Context) (RunResult, error) {
	return o.runSystemRole(ctx, RoleQAStrategist)
}

func (o *Orchestrator) runSystemRole(ctx context.Context, role string) (RunResult, error) {
	scope := types.ScopeSystem
	repoIDs := config.ActiveRepoIDs(o.Registry)

	snap, err := o.Stale.EvaluateScope(ctx, scope)
	if err != nil {
		return RunResult{}, err
	}
	if _, err := o.Stale.RecordObservation(scope, snap); err != nil {
		return RunResult{}, err
	}
	if snap.HardStale && !o.ForceOverride {
		if _, _, err := o.Decisions.CreateRefreshRequired(scope, snap); err != nil {
			return RunResult{}, err
		}
		return RunResult{
			Scope:      scope,
			State:      StateStaleBlocked,
			ReasonCode: ReasonStaleBlocked,
			Message:    fmt.Sprintf("knowledge for %s is hard-stale: %s", scope, firstReason(snap)),
		}, nil
	}

	// The chair runs only after every in-scope repo committee is valid.
	claims := map[string]types.CommitteeOutput{}
	indexes := map[string]types.RepoIndex{}
	allowed := map[string]bool{}
	var bundle []types.EvidenceSlice
	for _, repoID := range repoIDs {
		status, err := contract.Load[types.CommitteeStatus](o.Paths.CommitteeStatusFile(repoID), contract.KindCommitteeStatus)
		if err != nil || !status.EvidenceValid {
			return RunResult{
				Scope:   scope,
				State:   StateMissingInput,
				Message: fmt.Sprintf("repo %s has no valid committee status; run its committee first", repoID),
			}, nil
		}
		claims[repoID], err = contract.Load[types.CommitteeOutput](
			filepath.Join(o.Paths.RepoCommitteeDir(repoID), "skeptic_challenges.json"), contract.KindCommitteeOutput)
		if err != nil {
			return RunResult{Scope: scope, State: StateMissingInput, Message: err.Error()}, nil
		}
		if idx, err := contract.Load[types.RepoIndex](o.Paths.RepoIndexFile(repoID), contract.KindRepoIndex); err == nil {
			indexes[repoID] = idx
		}

		refs, err := o.Catalog.LoadRefs(repoID)
		if err != nil {
			return RunResult{Scope: scope, State: StateMissingInput, Message: err.Error()}, nil
		}
		slice, err := o.Catalog.BuildBundle(ctx, repoID, refs)
		if err != nil {
			return RunResult{Scope: scope, State: StateMissingInput, Message: err.Error()}, nil
		}
		bundle = append(bundle, slice...)
		for id := range evidence.AllowedSet(refs) {
			allowed[id] = true
		}
	}

	prior, err := o.priorDecisions(scope)
	if err != nil {
		return RunResult{}, err
	}
	payload := integrationPayload{
		Scope:           scope,
		Kickoff:         o.kickoffText(),
		PriorDecisions:  prior,
		RepoIndexes:     indexes,
		RepoClaims:      claims,
		AllowedEvidence: sortedIDs(allowed),
		Evidence:        bundle,
	}

	output, failure, err := o.runRole(ctx, role, o.Paths.IntegrationDir(), scope, payload, allowed, snap)
	if err != nil {
		return RunResult{Scope: scope, State: StateLLMError, Message: err.Error()}, nil
	}
	if failure != nil {
		if role == RoleIntegration {
			status := types.IntegrationStatus{EvidenceValid: false, DecisionNeeded: true}
			if err := fsio.WriteJSONAtomic(o.Paths.IntegrationStatusFile(), status); err != nil {
				return RunResult{}, err
			}
		}
		return RunResult{Scope: scope, State: StateOutputInvalid, Message: failure.Message}, nil
	}

	state := StateEvidenceValid
	if role == RoleIntegration {
		status := DeriveIntegrationStatus(*output)
		if err := fsio.WriteJSONAtomic(o.Paths.IntegrationStatusFile(), status); err != nil {
			return RunResult{}, err
		}
		if !status.EvidenceValid {
			state = StateEvidenceInval
		}
	} else if output.Verdict != types.VerdictEvidenceValid {
		state = StateEvidenceInval
	}
	return RunResult{Scope: scope, State: state, OK: state == StateEvidenceValid}, nil
}

// Ready reports whether the committee work for a scope is complete and
// valid: the repo status for repo scopes, every repo status plus the
// integration status for system.
func (o *Orchestrator) Ready(scope string) bool {
	if repoID, ok := types.ScopeRepoID(scope); ok {
		status, err := contract.Load[types.CommitteeStatus](o.Paths.CommitteeStatusFile(repoID), contract.KindCommitteeStatus)
		return err == nil && status.EvidenceValid
	}
	for _, repoID := range config.ActiveRepoIDs(o.Registry) {
		if !o.Ready(types.RepoScope(repoID)) {
			return false
		}
	}
	_, err := contract.Load[types.IntegrationStatus](o.Paths.IntegrationStatusFile(), contract.KindIntegrationStatus)
	return err == nil
}

// StepOnce advances committee work for a scope by exactly one run: the
// scope's own repo committee, the next repo lacking a valid status, or the
// integration chair. Returns done=true when nothing was left to do.
func (o *Orchestrator) StepOnce(ctx context.Context, scope string) (RunResult, bool, error) {
	if repoID, ok := types.ScopeRepoID(scope); ok {
		if o.Ready(scope) {
			return RunResult{}, true, nil
		}
		res, err := o.RunRepo(ctx, repoID)
		return res, false, err
	}

	for _, repoID := range config.ActiveRepoIDs(o.Registry) {
		if !o.Ready(types.RepoScope(repoID)) {
			res, err := o.RunRepo(ctx, repoID)
			return res, false, err
		}
	}
	if _, err := contract.Load[types.IntegrationStatus](o.Paths.IntegrationStatusFile(), contract.KindIntegrationStatus); err != nil {
		if !errors.Is(err, os.ErrNotExist) && !errors.Is(err, contract.ErrInvalid) {
			return RunResult{}, false, err
		}
		res, err := o.RunIntegration(ctx)
		return res, false, err
	}
	return RunResult{}, true, nil
}

func firstReason(snap types.StalenessSnapshot) string {
	if len(snap.Reasons) > 0 {
		return snap.Reasons[0]
	}
	return "stale"
}

func renderOutputMarkdown(role string, output types.CommitteeOutput, snap types.StalenessSnapshot) string {
	var b strings.Builder
	b.WriteString(Banner(snap))
	fmt.Fprintf(&b, "# %s — %s\n\nVerdict: **%s**\n\n", strings.ReplaceAll(role, "_", " "), output.Scope, output.Verdict)
	if len(output.Facts) > 0 {
		b.WriteString("## Facts\n\n")
		for _, f := range output.Facts {
			fmt.Fprintf(&b, "- %s (%s)\n", f.Text, strings.Join(f.EvidenceRefs, ", "))
		}
		b.WriteString("\n")
	}
	if len(output.Assumptions) > 0 {
		b.WriteString("## Assumptions\n\n")
		for _, a := range output.Assumptions {
			fmt.Fprintf(&b, "- %s\n", a.Text)
		}
		b.WriteString("\n")
	}
	if len(output.Unknowns) > 0 {
		b.WriteString("## Unknowns\n\n")
		for _, u := range output.Unknowns {
			fmt.Fprintf(&b, "- %s\n", u.Text)
		}
		b.WriteString("\n")
	}
	if len(output.IntegrationEdges) > 0 {
		b.WriteString("## Integration edges\n\n")
		for _, e := range output.IntegrationEdges {
			fmt.Fprintf(&b, "- %s -> %s (%s, confidence %.2f)\n", e.From, e.To, e.Type, e.Confidence)
		}
		b.WriteString("\n")
	}
	if len(output.Risks) > 0 {
		b.WriteString("## Risks\n\n")
		for _, r := range output.Risks {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	return b.String()
}

package committee

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"lanea/internal/types"
)

// issueID derives a stable blocking-issue id from its description, keeping
// re-runs byte-identical.
func issueID(description string) string {
	sum := sha256.Sum256([]byte(description))
	return "bi-" + hex.EncodeToString(sum[:])[:8]
}

// DeriveRepoStatus computes the deterministic committee status for a repo
// from the architect and skeptic outputs. Outputs that failed validation
// are represented by their ValidationFailure instead.
func DeriveRepoStatus(repoID string, outputs []types.CommitteeOutput, failures []*ValidationFailure, snap types.StalenessSnapshot) types.CommitteeStatus {
	var issues []types.BlockingIssue

	// One medium issue per unique evidence_missing entry across all
	// outputs and medium-severity failures; one high issue per non-valid
	// verdict or per failed role of any other severity.
	missingSeen := map[string]bool{}
	addMissing := func(entry string) {
		if entry == "" || missingSeen[entry] {
			return
		}
		missingSeen[entry] = true
		issues = append(issues, types.BlockingIssue{
			ID:              issueID(entry),
			Description:     entry,
			EvidenceMissing: []string{entry},
			Severity:        types.SeverityMedium,
		})
	}

	for _, out := range outputs {
		for _, a := range out.Assumptions {
			for _, m := range a.EvidenceMissing {
				addMissing(m)
			}
		}
		for _, u := range out.Unknowns {
			for _, m := range u.EvidenceMissing {
				addMissing(m)
			}
		}
		for _, e := range out.IntegrationEdges {
			for _, m := range e.EvidenceMissing {
				addMissing(m)
			}
		}
		if out.Verdict != types.VerdictEvidenceValid {
			desc := fmt.Sprintf("committee verdict for %s was %s", out.Scope, out.Verdict)
			issues = append(issues, types.BlockingIssue{
				ID:              issueID(desc),
				Description:     desc,
				EvidenceMissing: []string{},
				Severity:        types.SeverityHigh,
			})
		}
	}

	for _, f := range failures {
		if f == nil {
			continue
		}
		if f.Severity == types.SeverityMedium {
			for _, m := range f.EvidenceMissing {
				addMissing(m)
			}
			continue
		}
		issues = append(issues, types.BlockingIssue{
			ID:              issueID(f.Message),
			Description:     f.Message,
			EvidenceMissing: f.EvidenceMissing,
			Severity:        types.SeverityHigh,
		})
	}

	sort.Slice(issues, func(i, j int) bool { return issues[i].ID < issues[j].ID })

	hasHigh := false
	hasMissing := false
	for _, issue := range issues {
		if issue.Severity == types.SeverityHigh {
			hasHigh = true
		}
		if issue.Severity == types.SeverityMedium && len(issue.EvidenceMissing) > 0 {
			hasMissing = true
		}
	}

	status := types.CommitteeStatus{
		RepoID:         repoID,
		EvidenceValid:  !(hasHigh || hasMissing),
		BlockingIssues: issues,
	}
	switch {
	case hasMissing:
		status.NextAction = types.NextActionRescanNeeded
	case hasHigh:
		status.NextAction = types.NextActionDecisionNeeded
	default:
		status.NextAction = types.NextActionProceed
	}
	switch {
	case status.EvidenceValid:
		status.Confidence = types.SeverityHigh
	case hasMissing:
		status.Confidence = types.SeverityMedium
	default:
		status.Confidence = types.SeverityLow
	}

	if snap.Stale {
		status.Stale = true
		status.HardStale = snap.HardStale
		snapCopy := snap
		status.Staleness = &snapCopy
		if !snap.HardStale {
			status.Degraded = true
			status.DegradedReason = "soft_stale"
		}
	}
	return status
}

// gapSeverity maps edge confidence onto gap severity.
func gapSeverity(confidence float64) string {
	switch {
	case confidence < 0.35:
		return types.SeverityHigh
	case confidence < 0.60:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}

// DeriveIntegrationStatus computes the cross-repo status from the
// integration chair's output.
func DeriveIntegrationStatus(output types.CommitteeOutput) types.IntegrationStatus {
	var gaps []types.IntegrationGap
	for _, edge := range output.IntegrationEdges {
		if len(edge.EvidenceMissing) == 0 {
			continue
		}
		fromRepo, fromOK := types.ScopeRepoID(edge.From)
		toRepo, toOK := types.ScopeRepoID(edge.To)
		if !fromOK || !toOK {
			continue
		}
		desc := fmt.Sprintf("%s -> %s (%s): %s", edge.From, edge.To, edge.Type, edge.Contract)
		repos := []string{fromRepo, toRepo}
		sort.Strings(repos)
		gaps = append(gaps, types.IntegrationGap{
			ID:              issueID(desc),
			Repos:           repos,
			Description:     desc,
			EvidenceRefs:    edge.EvidenceRefs,
			EvidenceMissing: edge.EvidenceMissing,
			Severity:        gapSeverity(edge.Confidence),
		})
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i].ID < gaps[j].ID })
	if len(gaps) > 15 {
		gaps = gaps[:15]
	}

	hasHighGap := false
	for _, g := range gaps {
		if g.Severity == types.SeverityHigh {
			hasHighGap = true
		}
	}

	return types.IntegrationStatus{
		EvidenceValid: output.Verdict == types.VerdictEvidenceValid && !hasHighGap,
		IntegrationGaps: gaps,
		DecisionNeeded: output.Verdict != types.VerdictEvidenceValid ||
			len(gaps) > 0 || len(output.Assumptions) > 0 || len(output.Unknowns) > 0,
	}
}

package committee

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"lanea/internal/types"
)

var freshSnap = types.StalenessSnapshot{Scope: "repo:repo-a"}

func softSnap(scope string) types.StalenessSnapshot {
	return types.StalenessSnapshot{Scope: scope, Stale: true, Reasons: []string{types.ReasonHeadSHAMismatch}}
}

func validOutputJSON(scope string) string {
	return fmt.Sprintf(`{
  "scope": %q,
  "facts": [{"text": "entrypoint", "evidence_refs": ["E1"]}],
  "assumptions": [],
  "unknowns": [],
  "integration_edges": [],
  "risks": [],
  "verdict": "evidence_valid"
}`, scope)
}

func TestValidateOutputHappyPath(t *testing.T) {
	out, failure := ValidateOutput(validOutputJSON("repo:repo-a"), "repo:repo-a", map[string]bool{"E1": true}, freshSnap)
	require.Nil(t, failure)
	require.Equal(t, types.VerdictEvidenceValid, out.Verdict)
	require.False(t, out.Stale)
}

func TestValidateOutputParseFailure(t *testing.T) {
	_, failure := ValidateOutput("I think the repo is fine", "repo:repo-a", nil, freshSnap)
	require.NotNil(t, failure)
	require.Equal(t, FailParse, failure.Code)
	require.Equal(t, types.SeverityHigh, failure.Severity)
	require.Equal(t, types.NextActionDecisionNeeded, failure.NextAction())
}

func TestValidateOutputTrailingContent(t *testing.T) {
	_, failure := ValidateOutput(validOutputJSON("repo:repo-a")+"\nsure!", "repo:repo-a", map[string]bool{"E1": true}, freshSnap)
	require.NotNil(t, failure)
	require.Equal(t, FailParse, failure.Code)
}

func TestValidateOutputScopeMismatch(t *testing.T) {
	_, failure := ValidateOutput(validOutputJSON("repo:other"), "repo:repo-a", map[string]bool{"E1": true}, freshSnap)
	require.NotNil(t, failure)
	require.Equal(t, FailScope, failure.Code)
}

func TestValidateOutputUnknownRef(t *testing.T) {
	_, failure := ValidateOutput(validOutputJSON("repo:repo-a"), "repo:repo-a", map[string]bool{"E2": true}, freshSnap)
	require.NotNil(t, failure)
	require.Equal(t, FailUnknownRef, failure.Code)
	require.Equal(t, types.SeverityMedium, failure.Severity)
	require.Equal(t, types.NextActionRescanNeeded, failure.NextAction())
	require.Contains(t, failure.EvidenceMissing[0], "E1")
	require.Contains(t, failure.EvidenceMissing[0], "regenerate")
}

func TestValidateOutputCapsLists(t *testing.T) {
	out := map[string]any{
		"scope": "repo:repo-a", "verdict": "evidence_valid",
		"facts": []map[string]any{}, "assumptions": []map[string]any{},
		"unknowns": []map[string]any{}, "integration_edges": []map[string]any{},
		"risks": []string{},
	}
	var risks []string
	for i := 0; i < 30; i++ {
		risks = append(risks, fmt.Sprintf("risk-%02d", i))
	}
	out["risks"] = risks
	raw, _ := json.Marshal(out)

	validated, failure := ValidateOutput(string(raw), "repo:repo-a", nil, freshSnap)
	require.Nil(t, failure)
	require.Len(t, validated.Risks, 20, "over-long lists are capped, not rejected")
}

func TestValidateOutputSoftStaleMarker(t *testing.T) {
	snap := softSnap("repo:repo-a")
	out, failure := ValidateOutput(validOutputJSON("repo:repo-a"), "repo:repo-a", map[string]bool{"E1": true}, snap)
	require.Nil(t, failure)
	require.True(t, out.Stale)
	require.Len(t, out.Unknowns, 1)
	require.Contains(t, out.Unknowns[0].EvidenceMissing[0], "need refresh required:")
}

func TestDeriveRepoStatusAllValid(t *testing.T) {
	outputs := []types.CommitteeOutput{
		{Scope: "repo:repo-a", Verdict: types.VerdictEvidenceValid},
		{Scope: "repo:repo-a", Verdict: types.VerdictEvidenceValid},
	}
	status := DeriveRepoStatus("repo-a", outputs, nil, freshSnap)
	require.True(t, status.EvidenceValid)
	require.Empty(t, status.BlockingIssues)
	require.Equal(t, types.NextActionProceed, status.NextAction)
	require.Equal(t, types.SeverityHigh, status.Confidence)
}

func TestDeriveRepoStatusInvalidVerdict(t *testing.T) {
	outputs := []types.CommitteeOutput{
		{Scope: "repo:repo-a", Verdict: types.VerdictEvidenceValid},
		{Scope: "repo:repo-a", Verdict: types.VerdictEvidenceInvalid},
	}
	status := DeriveRepoStatus("repo-a", outputs, nil, freshSnap)
	require.False(t, status.EvidenceValid)
	require.Equal(t, types.NextActionDecisionNeeded, status.NextAction)
	require.Equal(t, types.SeverityLow, status.Confidence)
}

func TestDeriveRepoStatusMissingEvidenceWins(t *testing.T) {
	// Missing evidence plus an invalid verdict: rescan_needed wins the
	// next_action and confidence is medium.
	outputs := []types.CommitteeOutput{
		{
			Scope:   "repo:repo-a",
			Verdict: types.VerdictEvidenceInvalid,
			Unknowns: []types.Unknown{
				{Text: "auth flow unclear", EvidenceMissing: []string{"need src/auth.js scan"}},
				{Text: "dup entry", EvidenceMissing: []string{"need src/auth.js scan"}},
			},
		},
	}
	status := DeriveRepoStatus("repo-a", outputs, nil, freshSnap)
	require.False(t, status.EvidenceValid)
	require.Equal(t, types.NextActionRescanNeeded, status.NextAction)
	require.Equal(t, types.SeverityMedium, status.Confidence)

	medium := 0
	for _, issue := range status.BlockingIssues {
		if issue.Severity == types.SeverityMedium {
			medium++
		}
	}
	require.Equal(t, 1, medium, "one issue per unique evidence_missing entry")
}

func TestDeriveRepoStatusSoftStaleDegrades(t *testing.T) {
	outputs := []types.CommitteeOutput{{Scope: "repo:repo-a", Verdict: types.VerdictEvidenceValid}}
	status := DeriveRepoStatus("repo-a", outputs, nil, softSnap("repo:repo-a"))
	require.True(t, status.Degraded)
	require.Equal(t, "soft_stale", status.DegradedReason)
	require.True(t, status.Stale)
	require.NotNil(t, status.Staleness)
}

func TestDeriveRepoStatusDeterministic(t *testing.T) {
	outputs := []types.CommitteeOutput{
		{Scope: "repo:repo-a", Verdict: types.VerdictEvidenceInvalid,
			Assumptions: []types.Assumption{{Text: "a", EvidenceMissing: []string{"m2", "m1"}}}},
	}
	a := DeriveRepoStatus("repo-a", outputs, nil, freshSnap)
	b := DeriveRepoStatus("repo-a", outputs, nil, freshSnap)
	aj, _ := json.Marshal(a)
	bj, _ := json.Marshal(b)
	require.Equal(t, string(aj), string(bj))
}

func TestDeriveIntegrationStatusGapSeverity(t *testing.T) {
	edge := func(conf float64, missing ...string) types.IntegrationEdge {
		return types.IntegrationEdge{
			From: "repo:a", To: "repo:b", Type: "http", Contract: "REST",
			EvidenceMissing: missing, Confidence: conf,
		}
	}

	out := types.CommitteeOutput{
		Scope:   "system",
		Verdict: types.VerdictEvidenceValid,
		IntegrationEdges: []types.IntegrationEdge{
			edge(0.20, "need api spec"),
			edge(0.50, "need api spec 2"),
			edge(0.90, "need api spec 3"),
			edge(0.10), // no missing evidence: not a gap
			{From: "repo:a", To: "lib:util", Type: "import", EvidenceMissing: []string{"x"}, Confidence: 0.1}, // non-repo endpoint
		},
	}
	status := DeriveIntegrationStatus(out)
	require.Len(t, status.IntegrationGaps, 3)

	bySeverity := map[string]int{}
	for _, g := range status.IntegrationGaps {
		bySeverity[g.Severity]++
	}
	require.Equal(t, map[string]int{"high": 1, "medium": 1, "low": 1}, bySeverity)
	require.True(t, status.DecisionNeeded)
	require.False(t, status.EvidenceValid, "high gap forbids evidence_valid")
}

func TestDeriveIntegrationStatusClean(t *testing.T) {
	out := types.CommitteeOutput{Scope: "system", Verdict: types.VerdictEvidenceValid}
	status := DeriveIntegrationStatus(out)
	require.True(t, status.EvidenceValid)
	require.False(t, status.DecisionNeeded)
}

func TestDeriveIntegrationStatusAssumptionsForceDecision(t *testing.T) {
	out := types.CommitteeOutput{
		Scope:       "system",
		Verdict:     types.VerdictEvidenceValid,
		Assumptions: []types.Assumption{{Text: "services share a queue"}},
	}
	status := DeriveIntegrationStatus(out)
	require.True(t, status.DecisionNeeded)
	require.True(t, status.EvidenceValid)
}

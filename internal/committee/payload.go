package committee

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"lanea/internal/types"
)

// Committee roles.
const (
	RoleArchitect    = "architect"
	RoleSkeptic      = "skeptic"
	RoleIntegration  = "integration_chair"
	RoleQAStrategist = "qa_strategist"
)

// systemPrompts carry the per-role instructions. Every role answers with a
// single JSON document in the committee output schema and may cite only the
// evidence ids listed in the payload.
var systemPrompts = map[string]string{
	RoleArchitect: "You are the architect reviewer for one repository. From the evidence excerpts " +
		"in the payload, state what the repository does and how it is structured. Reply with one JSON " +
		"object: {scope, facts, assumptions, unknowns, integration_edges, risks, verdict}. Every fact " +
		"must cite evidence_refs drawn only from the allowed evidence ids; anything you cannot ground " +
		"goes under assumptions or unknowns with evidence_missing naming what would ground it. Set " +
		"verdict to evidence_valid only when your claims are fully grounded. No prose outside the JSON.",
	RoleSkeptic: "You are the skeptic reviewer for one repository. The payload includes the " +
		"architect's claims. Challenge them against the evidence excerpts: confirm what holds, move " +
		"anything ungrounded into assumptions or unknowns with evidence_missing, and record risks. " +
		"Reply with one JSON object in the same schema as the architect, citing only allowed evidence " +
		"ids. Set verdict to evidence_invalid if any architect claim fails its evidence. No prose " +
		"outside the JSON.",
	RoleIntegration: "You are the integration chair across all repositories. From the per-repo " +
		"committee claims and evidence in the payload, identify cross-repository integration edges " +
		"(from and to are repo:<id> scopes), their contracts, and gaps. Reply with one JSON object in " +
		"the committee output schema with scope \"system\", citing only allowed evidence ids; unknown " +
		"contracts get evidence_missing entries and a confidence estimate. No prose outside the JSON.",
	RoleQAStrategist: "You are the QA strategist across all repositories. From the committee claims " +
		"and evidence in the payload, state the verification strategy the system needs: what is " +
		"covered, what is untested, and where the risk concentrates. Reply with one JSON object in " +
		"the committee output schema with scope \"system\", citing only allowed evidence ids. No " +
		"prose outside the JSON.",
}

// SystemPrompt returns the opaque system prompt for a role.
func SystemPrompt(role string) string { return systemPrompts[role] }

// answeredDecision is the compact form of a prior human ruling included in
// payloads.
type answeredDecision struct {
	DecisionID string            `json:"decision_id"`
	Scope      string            `json:"scope"`
	Blocking   string            `json:"blocking_state"`
	Answers    map[string]string `json:"answers"`
}

// repoPayload is the user payload for architect and skeptic runs.
type repoPayload struct {
	Scope           string                 `json:"scope"`
	Kickoff         string                 `json:"kickoff,omitempty"`
	PriorDecisions  []answeredDecision     `json:"prior_decisions"`
	RepoIndex       *types.RepoIndex       `json:"repo_index,omitempty"`
	AllowedEvidence []string               `json:"allowed_evidence_ids"`
	Evidence        []types.EvidenceSlice  `json:"evidence"`
	ArchitectClaims *types.CommitteeOutput `json:"architect_claims,omitempty"`
}

// integrationPayload is the user payload for the integration chair and the
// QA strategist.
type integrationPayload struct {
	Scope           string                           `json:"scope"`
	Kickoff         string                           `json:"kickoff,omitempty"`
	PriorDecisions  []answeredDecision               `json:"prior_decisions"`
	RepoIndexes     map[string]types.RepoIndex       `json:"repo_indexes"`
	RepoClaims      map[string]types.CommitteeOutput `json:"repo_claims"`
	AllowedEvidence []string                         `json:"allowed_evidence_ids"`
	Evidence        []types.EvidenceSlice            `json:"evidence"`
}

// kickoffText reads the optional kickoff notes; absence is not an error.
func (o *Orchestrator) kickoffText() string {
	data, err := os.ReadFile(o.Paths.KickoffFile())
	if err != nil {
		return ""
	}
	return string(data)
}

func (o *Orchestrator) priorDecisions(scope string) ([]answeredDecision, error) {
	packets, err := o.Decisions.ListAnswered(types.ScopeSystem, scope)
	if err != nil {
		return nil, err
	}
	out := make([]answeredDecision, 0, len(packets))
	for _, p := range packets {
		out = append(out, answeredDecision{
			DecisionID: p.DecisionID,
			Scope:      p.Scope,
			Blocking:   p.BlockingState,
			Answers:    p.Answers,
		})
	}
	return out, nil
}

func marshalPayload(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal committee payload: %w", err)
	}
	return string(data), nil
}

func sortedIDs(allowed map[string]bool) []string {
	ids := make([]string, 0, len(allowed))
	for id := range allowed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

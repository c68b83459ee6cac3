package committee

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"lanea/internal/contract"
	"lanea/internal/staleness"
	"lanea/internal/types"
)

// Failure codes for the output validation pipeline.
const (
	FailParse      = "parse"
	FailSchema     = "schema"
	FailScope      = "scope"
	FailUnknownRef = "unknown_ref"
)

// ValidationFailure is the short-circuit value of a failed pipeline stage.
type ValidationFailure struct {
	Code            string   `json:"code"`
	Message         string   `json:"message"`
	Severity        string   `json:"severity"`
	EvidenceMissing []string `json:"evidence_missing,omitempty"`
}

func (f *ValidationFailure) Error() string { return f.Code + ": " + f.Message }

// NextAction maps the failure onto the derived status action.
func (f *ValidationFailure) NextAction() string {
	if f.Code == FailUnknownRef {
		return types.NextActionRescanNeeded
	}
	return types.NextActionDecisionNeeded
}

// ValidateOutput runs the committee output pipeline: strict JSON parse,
// schema validation with canonical capping and sorting, scope assertion,
// evidence-whitelist membership, and the soft-stale marker. Each stage
// short-circuits on the first failure.
func ValidateOutput(raw string, expectedScope string, allowed map[string]bool, snap types.StalenessSnapshot) (types.CommitteeOutput, *ValidationFailure) {
	var probe json.RawMessage
	decoder := json.NewDecoder(strings.NewReader(raw))
	if err := decoder.Decode(&probe); err != nil {
		return types.CommitteeOutput{}, &ValidationFailure{
			Code:     FailParse,
			Message:  "oracle output is not valid JSON: " + err.Error(),
			Severity: types.SeverityHigh,
		}
	}
	// Strict parse: nothing may follow the JSON document.
	if decoder.More() {
		return types.CommitteeOutput{}, &ValidationFailure{
			Code:     FailParse,
			Message:  "oracle output has trailing content after the JSON document",
			Severity: types.SeverityHigh,
		}
	}

	capped, err := capLists(probe)
	if err != nil {
		return types.CommitteeOutput{}, &ValidationFailure{
			Code:     FailSchema,
			Message:  err.Error(),
			Severity: types.SeverityHigh,
		}
	}

	output, failure := validateSchema(capped)
	if failure != nil {
		return types.CommitteeOutput{}, failure
	}

	if output.Scope != expectedScope {
		return types.CommitteeOutput{}, &ValidationFailure{
			Code:     FailScope,
			Message:  fmt.Sprintf("output scope %q does not match expected scope %q", output.Scope, expectedScope),
			Severity: types.SeverityHigh,
		}
	}

	if failure := checkEvidenceMembership(output, allowed); failure != nil {
		return types.CommitteeOutput{}, failure
	}

	if snap.Stale && !snap.HardStale {
		output = applySoftStaleMarker(output, snap)
		// Re-validate after mutation and re-check membership: the marker
		// must not smuggle anything past the contract.
		reRaw, err := json.Marshal(output)
		if err != nil {
			return types.CommitteeOutput{}, &ValidationFailure{Code: FailSchema, Message: err.Error(), Severity: types.SeverityHigh}
		}
		output, failure = validateSchema(reRaw)
		if failure != nil {
			return types.CommitteeOutput{}, failure
		}
		if failure := checkEvidenceMembership(output, allowed); failure != nil {
			return types.CommitteeOutput{}, failure
		}
	}

	return output, nil
}

func validateSchema(raw []byte) (types.CommitteeOutput, *ValidationFailure) {
	res := contract.ValidateValue(contract.KindCommitteeOutput, raw)
	if !res.OK {
		return types.CommitteeOutput{}, &ValidationFailure{
			Code:     FailSchema,
			Message:  res.Errors[0],
			Severity: types.SeverityHigh,
		}
	}
	return res.Normalized.(types.CommitteeOutput), nil
}

// capLists truncates each committee list to its cap before schema
// validation; an over-long oracle answer degrades, it does not fail.
func capLists(raw []byte) ([]byte, error) {
	var loose struct {
		Scope            json.RawMessage   `json:"scope"`
		Facts            []json.RawMessage `json:"facts"`
		Assumptions      []json.RawMessage `json:"assumptions"`
		Unknowns         []json.RawMessage `json:"unknowns"`
		IntegrationEdges []json.RawMessage `json:"integration_edges"`
		Risks            []json.RawMessage `json:"risks"`
		Verdict          json.RawMessage   `json:"verdict"`
		Stale            json.RawMessage   `json:"stale"`
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&loose); err != nil {
		return nil, fmt.Errorf("parse committee_output: %w", err)
	}

	cap20 := func(l []json.RawMessage) []json.RawMessage {
		if len(l) > 20 {
			return l[:20]
		}
		return l
	}
	loose.Facts = cap20(loose.Facts)
	loose.Assumptions = cap20(loose.Assumptions)
	loose.Unknowns = cap20(loose.Unknowns)
	loose.IntegrationEdges = cap20(loose.IntegrationEdges)
	loose.Risks = cap20(loose.Risks)

	return json.Marshal(loose)
}

// checkEvidenceMembership asserts every evidence_ref cited by facts or
// integration edges is in the allowed set supplied at invocation.
func checkEvidenceMembership(output types.CommitteeOutput, allowed map[string]bool) *ValidationFailure {
	var unknown []string
	seen := map[string]bool{}
	note := func(ref string) {
		if !allowed[ref] && !seen[ref] {
			seen[ref] = true
			unknown = append(unknown, ref)
		}
	}
	for _, fact := range output.Facts {
		for _, ref := range fact.EvidenceRefs {
			note(ref)
		}
	}
	for _, edge := range output.IntegrationEdges {
		for _, ref := range edge.EvidenceRefs {
			note(ref)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)

	missing := make([]string, len(unknown))
	for i, ref := range unknown {
		missing[i] = fmt.Sprintf("evidence ref %s is not in the allowed set; regenerate the evidence index and rescan", ref)
	}
	return &ValidationFailure{
		Code:            FailUnknownRef,
		Message:         fmt.Sprintf("output cites unknown evidence refs: %s", strings.Join(unknown, ", ")),
		Severity:        types.SeverityMedium,
		EvidenceMissing: missing,
	}
}

// applySoftStaleMarker degrades a soft-stale scope's output: the stale flag
// is set and an unknown with a refresh directive is appended.
func applySoftStaleMarker(output types.CommitteeOutput, snap types.StalenessSnapshot) types.CommitteeOutput {
	reason := "inputs older than live state"
	if len(snap.Reasons) > 0 {
		reason = snap.Reasons[0]
	}
	output.Stale = true
	if len(output.Unknowns) < 20 {
		output.Unknowns = append(output.Unknowns, types.Unknown{
			Text:            fmt.Sprintf("Knowledge for %s was soft-stale at review time; claims may trail the live repositories.", snap.Scope),
			EvidenceMissing: []string{fmt.Sprintf("need refresh required: rescan %s (%s)", snap.Scope, reason)},
		})
	}
	return output
}

// Banner re-exports the producer-facing soft-stale banner so artifact
// writers in this package have one source for it.
func Banner(snap types.StalenessSnapshot) string { return staleness.SoftStaleBanner(snap) }

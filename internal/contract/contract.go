// Package contract holds the per-kind validators every persisted artifact
// read passes through. A validator is pure and deterministic: it parses raw
// bytes, checks the kind's schema, and returns a normalized value (strings
// trimmed, lists sorted by canonical key, duplicates removed). A rejected
// artifact is treated by readers as absent-with-error, never as empty.
package contract

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// ErrInvalid marks a present-but-rejected artifact.
var ErrInvalid = errors.New("artifact failed validation")

// Result is the outcome of one validation.
type Result struct {
	OK         bool
	Errors     []string
	Normalized any
}

// Validator validates one artifact kind.
type Validator interface {
	Validate(raw []byte) Result
}

// ValidatorFunc adapts a plain function to Validator.
type ValidatorFunc func(raw []byte) Result

// Validate implements Validator.
func (f ValidatorFunc) Validate(raw []byte) Result { return f(raw) }

// Artifact kinds with registered validators.
const (
	KindEvidenceRef       = "evidence_ref"
	KindRepoIndex         = "repo_index"
	KindScan              = "scan"
	KindCommitteeOutput   = "committee_output"
	KindCommitteeStatus   = "committee_status"
	KindIntegrationStatus = "integration_status"
	KindSufficiencyRecord = "sufficiency_record"
	KindPhaseState        = "phase_state"
	KindMeetingSession    = "meeting_session"
	KindDecisionPacket    = "decision_packet"
	KindChangeRequest     = "change_request"
	KindWorkStatus        = "work_status"
	KindMergeEvent        = "merge_event"
)

var registry = map[string]Validator{
	KindEvidenceRef:       ValidatorFunc(validateEvidenceRef),
	KindRepoIndex:         ValidatorFunc(validateRepoIndex),
	KindScan:              ValidatorFunc(validateScan),
	KindCommitteeOutput:   ValidatorFunc(validateCommitteeOutput),
	KindCommitteeStatus:   ValidatorFunc(validateCommitteeStatus),
	KindIntegrationStatus: ValidatorFunc(validateIntegrationStatus),
	KindSufficiencyRecord: ValidatorFunc(validateSufficiencyRecord),
	KindPhaseState:        ValidatorFunc(validatePhaseState),
	KindMeetingSession:    ValidatorFunc(validateMeetingSession),
	KindDecisionPacket:    ValidatorFunc(validateDecisionPacket),
	KindChangeRequest:     ValidatorFunc(validateChangeRequest),
	KindWorkStatus:        ValidatorFunc(validateWorkStatus),
	KindMergeEvent:        ValidatorFunc(validateMergeEvent),
}

// For returns the validator registered for a kind.
func For(kind string) (Validator, error) {
	v, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("no validator registered for kind %q", kind)
	}
	return v, nil
}

// Kinds returns every registered kind, sorted.
func Kinds() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Load reads path and validates it as kind, returning the normalized value.
// A missing file surfaces the os error; a rejected file wraps ErrInvalid
// with the first validator error verbatim.
func Load[T any](path, kind string) (T, error) {
	var zero T
	v, err := For(kind)
	if err != nil {
		return zero, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return zero, fmt.Errorf("read %s: %w", path, err)
	}
	res := v.Validate(raw)
	if !res.OK {
		return zero, fmt.Errorf("%s: %w: %s", path, ErrInvalid, res.Errors[0])
	}
	typed, ok := res.Normalized.(T)
	if !ok {
		return zero, fmt.Errorf("%s: validator for %s returned %T", path, kind, res.Normalized)
	}
	return typed, nil
}

// ValidateValue marshals nothing: it runs the raw bytes of an already
// serialized value through the kind's validator. Used by writers that must
// guarantee what lands on disk passes the same contract readers apply.
func ValidateValue(kind string, raw []byte) Result {
	v, err := For(kind)
	if err != nil {
		return Result{Errors: []string{err.Error()}}
	}
	return v.Validate(raw)
}

// --- normalization helpers shared by the per-kind validators ---

func reject(errs ...string) Result { return Result{Errors: errs} }

func accept(v any) Result { return Result{OK: true, Normalized: v} }

// trimSortDedupe normalizes a string list: trim, drop empties, sort, dedupe.
func trimSortDedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

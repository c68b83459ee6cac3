// Package types defines the shared artifact shapes of the Lane A knowledge
// governance core. Every struct here maps one-to-one onto a persisted JSON
// or JSONL artifact; components exchange these values by identifier strings
// only, never by shared object graph.
package types

import "strings"

// ScopeSystem is the cross-repository scope string.
const ScopeSystem = "system"

// RepoScope returns the scope string for a single repository.
func RepoScope(repoID string) string {
	return "repo:" + repoID
}

// ScopeRepoID extracts the repo id from a "repo:<id>" scope.
// Returns "" and false for any other scope shape.
func ScopeRepoID(scope string) (string, bool) {
	if rest, ok := strings.CutPrefix(scope, "repo:"); ok && rest != "" {
		return rest, true
	}
	return "", false
}

// ScopeSlug converts a scope into a filesystem-safe fragment
// ("repo:api-core" -> "repo-api-core").
func ScopeSlug(scope string) string {
	return strings.ReplaceAll(strings.ReplaceAll(scope, ":", "-"), "/", "-")
}

// ---------------------------------------------------------------------------
// Repository registry
// ---------------------------------------------------------------------------

// RepoCommands describes how to operate inside a managed repository.
type RepoCommands struct {
	Cwd            string `json:"cwd"`
	PackageManager string `json:"package_manager"`
	Install        string `json:"install"`
	Lint           string `json:"lint"`
	Test           string `json:"test"`
	Build          string `json:"build"`
}

// RepoConfig is one entry of config/REPOS.json.
type RepoConfig struct {
	Path         string       `json:"path"`
	ActiveBranch string       `json:"active_branch"`
	TeamID       string       `json:"team_id"`
	Kind         string       `json:"kind"`
	Status       string       `json:"status"` // active | retired
	Commands     RepoCommands `json:"commands"`
}

// Repo registry statuses.
const (
	RepoStatusActive  = "active"
	RepoStatusRetired = "retired"
)

// RepoRegistry is the parsed config/REPOS.json.
type RepoRegistry struct {
	BaseDir string                `json:"base_dir"`
	Repos   map[string]RepoConfig `json:"repos"`
}

// ---------------------------------------------------------------------------
// Evidence
// ---------------------------------------------------------------------------

// EvidenceRef is a commit-pinned file-range pointer, the unit of ground
// truth for committee claims. Produced by the scanner; read-only here.
type EvidenceRef struct {
	EvidenceID string `json:"evidence_id"`
	RepoID     string `json:"repo_id"`
	CommitSHA  string `json:"commit_sha"`
	FilePath   string `json:"file_path"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
}

// EvidenceSlice is one entry of an evidence bundle: a ref plus the exact
// excerpt of the pinned commit.
type EvidenceSlice struct {
	EvidenceID string `json:"evidence_id"`
	FilePath   string `json:"file_path"`
	CommitSHA  string `json:"commit_sha"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
	Excerpt    string `json:"excerpt"`
}

// RepoIndex is the scanner's per-repo index artifact. Its head_sha and
// scanned_at are the authoritative "last scanned" reference.
type RepoIndex struct {
	ScannedAt             string           `json:"scanned_at"`
	HeadSHA               string           `json:"head_sha"`
	CrossRepoDependencies bool             `json:"cross_repo_dependencies"`
	Dependencies          RepoDependencies `json:"dependencies"`
}

// RepoDependencies lists the repos a repo depends on.
type RepoDependencies struct {
	DependsOn []string `json:"depends_on"`
}

// ScanInfo is the scanner's per-repo scan summary (scan.json).
type ScanInfo struct {
	RepoID       string `json:"repo_id"`
	ScannedAt    string `json:"scanned_at"`
	HeadSHA      string `json:"head_sha"`
	FilesScanned int    `json:"files_scanned"`
}

// ---------------------------------------------------------------------------
// Committee artifacts
// ---------------------------------------------------------------------------

// Verdict values a committee role may return.
const (
	VerdictEvidenceValid   = "evidence_valid"
	VerdictEvidenceInvalid = "evidence_invalid"
)

// Severity levels for blocking issues and integration gaps.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Fact is an evidence-grounded claim.
type Fact struct {
	Text         string   `json:"text"`
	EvidenceRefs []string `json:"evidence_refs"`
}

// Assumption is a claim made without evidence; EvidenceMissing names what
// would be needed to ground it.
type Assumption struct {
	Text            string   `json:"text"`
	EvidenceMissing []string `json:"evidence_missing"`
}

// Unknown is an open question the committee could not answer from evidence.
type Unknown struct {
	Text            string   `json:"text"`
	EvidenceMissing []string `json:"evidence_missing"`
}

// IntegrationEdge is a claimed cross-repo dependency edge.
type IntegrationEdge struct {
	From            string   `json:"from"`
	To              string   `json:"to"`
	Type            string   `json:"type"`
	Contract        string   `json:"contract"`
	EvidenceRefs    []string `json:"evidence_refs"`
	EvidenceMissing []string `json:"evidence_missing"`
	Confidence      float64  `json:"confidence"`
}

// CommitteeOutput is the validated artifact a committee role produces.
type CommitteeOutput struct {
	Scope            string            `json:"scope"`
	Facts            []Fact            `json:"facts"`
	Assumptions      []Assumption      `json:"assumptions"`
	Unknowns         []Unknown         `json:"unknowns"`
	IntegrationEdges []IntegrationEdge `json:"integration_edges"`
	Risks            []string          `json:"risks"`
	Verdict          string            `json:"verdict"`
	Stale            bool              `json:"stale,omitempty"`
}

// BlockingIssue is one derived blocker on a committee status.
type BlockingIssue struct {
	ID              string   `json:"id"`
	Description     string   `json:"description"`
	EvidenceMissing []string `json:"evidence_missing"`
	Severity        string   `json:"severity"`
}

// NextAction values derived onto committee statuses.
const (
	NextActionProceed        = "proceed"
	NextActionRescanNeeded   = "rescan_needed"
	NextActionDecisionNeeded = "decision_needed"
)

// CommitteeStatus is derived deterministically from committee outputs;
// it is never hand-written.
type CommitteeStatus struct {
	RepoID         string             `json:"repo_id,omitempty"`
	EvidenceValid  bool               `json:"evidence_valid"`
	BlockingIssues []BlockingIssue    `json:"blocking_issues"`
	Confidence     string             `json:"confidence"` // low | medium | high
	NextAction     string             `json:"next_action"`
	Degraded       bool               `json:"degraded,omitempty"`
	DegradedReason string             `json:"degraded_reason,omitempty"`
	Stale          bool               `json:"stale,omitempty"`
	HardStale      bool               `json:"hard_stale,omitempty"`
	Staleness      *StalenessSnapshot `json:"staleness,omitempty"`
}

// IntegrationGap is one derived cross-repo gap.
type IntegrationGap struct {
	ID              string   `json:"id"`
	Repos           []string `json:"repos"`
	Description     string   `json:"description"`
	EvidenceRefs    []string `json:"evidence_refs"`
	EvidenceMissing []string `json:"evidence_missing"`
	Severity        string   `json:"severity"`
}

// IntegrationStatus is derived from the integration chair's output.
type IntegrationStatus struct {
	EvidenceValid   bool             `json:"evidence_valid"`
	IntegrationGaps []IntegrationGap `json:"integration_gaps"`
	DecisionNeeded  bool             `json:"decision_needed"`
}

// ---------------------------------------------------------------------------
// Staleness
// ---------------------------------------------------------------------------

// Staleness reasons emitted by the policy engine.
const (
	ReasonCoverageIncomplete  = "coverage_incomplete"
	ReasonHeadSHAMismatch     = "head_sha_mismatch"
	ReasonMergeEventAfterScan = "merge_event_after_scan"
)

// Three-level staleness verdicts recorded on sufficiency records.
const (
	StaleStatusFresh     = "fresh"
	StaleStatusSoftStale = "soft_stale"
	StaleStatusHardStale = "hard_stale"
)

// StalenessSnapshot is the result of one staleness evaluation.
type StalenessSnapshot struct {
	Scope              string   `json:"scope"`
	Stale              bool     `json:"stale"`
	HardStale          bool     `json:"hard_stale"`
	Reasons            []string `json:"reasons"`
	StaleRepos         []string `json:"stale_repos"`
	HardStaleRepos     []string `json:"hard_stale_repos"`
	RepoID             string   `json:"repo_id,omitempty"`
	RepoHeadSHA        string   `json:"repo_head_sha,omitempty"`
	LastScannedHeadSHA string   `json:"last_scanned_head_sha,omitempty"`
	LastScanTime       string   `json:"last_scan_time,omitempty"`
	LastMergeEventTime string   `json:"last_merge_event_time,omitempty"`
}

// StaleStatus maps the snapshot onto the fresh/soft/hard ladder.
func (s StalenessSnapshot) StaleStatus() string {
	switch {
	case s.HardStale:
		return StaleStatusHardStale
	case s.Stale:
		return StaleStatusSoftStale
	default:
		return StaleStatusFresh
	}
}

// StaleObservation is one line of a scope's rolling observation record.
// The consecutive counter is an opaque input to future escalation policy;
// nothing in the core gates on it.
type StaleObservation struct {
	Scope            string `json:"scope"`
	ObservedAt       string `json:"observed_at"`
	Stale            bool   `json:"stale"`
	HardStale        bool   `json:"hard_stale"`
	ConsecutiveStale int    `json:"consecutive_stale"`
}

// MergeEvent is the only event-segment record kind the core consumes.
type MergeEvent struct {
	Type      string `json:"type"`
	Scope     string `json:"scope,omitempty"`
	RepoID    string `json:"repo_id"`
	Timestamp string `json:"timestamp"`
	EventID   string `json:"event_id"`
}

// ---------------------------------------------------------------------------
// Sufficiency
// ---------------------------------------------------------------------------

// Sufficiency statuses.
const (
	SufficiencyInsufficient = "insufficient"
	SufficiencyProposed     = "proposed_sufficient"
	SufficiencySufficient   = "sufficient"
)

// Blocker is one reason a scope's knowledge is not yet sufficient.
type Blocker struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Details string `json:"details"`
}

// SufficiencyRecord is keyed by (scope, knowledge_version). A record with
// status "sufficient" must carry no blockers.
type SufficiencyRecord struct {
	Scope            string    `json:"scope"`
	KnowledgeVersion string    `json:"knowledge_version"`
	Status           string    `json:"status"`
	DecidedBy        string    `json:"decided_by,omitempty"`
	DecidedAt        string    `json:"decided_at,omitempty"`
	RationaleMDPath  string    `json:"rationale_md_path,omitempty"`
	EvidenceBasis    []string  `json:"evidence_basis"`
	Blockers         []Blocker `json:"blockers"`
	StaleStatus      string    `json:"stale_status"`
}

// ---------------------------------------------------------------------------
// Phase lifecycle
// ---------------------------------------------------------------------------

// Phase names and statuses.
const (
	PhaseReverse = "reverse"
	PhaseForward = "forward"

	PhaseStatusOpen       = "open"
	PhaseStatusInProgress = "in_progress"
	PhaseStatusClosed     = "closed"
)

// PhaseInfo is the lifecycle record of one phase.
type PhaseInfo struct {
	Status    string `json:"status"`
	StartedAt string `json:"started_at,omitempty"`
	ClosedAt  string `json:"closed_at,omitempty"`
	ClosedBy  string `json:"closed_by,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// PhasePrereqs gates the reverse -> forward transition.
type PhasePrereqs struct {
	ScanComplete     bool   `json:"scan_complete"`
	Sufficiency      string `json:"sufficiency"`
	HumanConfirmedV1 bool   `json:"human_confirmed_v1"`
	HumanConfirmedAt string `json:"human_confirmed_at,omitempty"`
	HumanConfirmedBy string `json:"human_confirmed_by,omitempty"`
	HumanNotes       string `json:"human_notes,omitempty"`
}

// PhaseState is the persisted two-phase lifecycle (PHASE.json).
type PhaseState struct {
	CurrentPhase string       `json:"current_phase"`
	Reverse      PhaseInfo    `json:"reverse"`
	Forward      PhaseInfo    `json:"forward"`
	Prereqs      PhasePrereqs `json:"prereqs"`
}

// ---------------------------------------------------------------------------
// Meetings
// ---------------------------------------------------------------------------

// Meeting session statuses.
const (
	MeetingOpen             = "open"
	MeetingWaitingForAnswer = "waiting_for_answer"
	MeetingReadyToClose     = "ready_to_close"
	MeetingClosed           = "closed"
)

// MeetingInputs snapshots the gating facts observed at meeting start.
type MeetingInputs struct {
	CoverageComplete    bool              `json:"coverage_complete"`
	SufficiencyStatus   string            `json:"sufficiency_status"`
	CommitteeStatusPath string            `json:"committee_status_path,omitempty"`
	OpenDecisionIDs     []string          `json:"open_decision_ids"`
	IntegrationGapIDs   []string          `json:"integration_gap_ids"`
	Staleness           StalenessSnapshot `json:"staleness"`
	BoundChangeRequests []string          `json:"bound_change_requests"`
}

// Meeting kinds: update meetings intake change requests and bump versions;
// review meetings confirm or reject sufficiency.
const (
	MeetingKindUpdate = "update"
	MeetingKindReview = "review"
)

// MeetingSession is the persisted MEETING.json.
type MeetingSession struct {
	MeetingID              string        `json:"meeting_id"`
	Scope                  string        `json:"scope"`
	Kind                   string        `json:"kind"`
	Status                 string        `json:"status"`
	KnowledgeVersionTarget string        `json:"knowledge_version_target"`
	Inputs                 MeetingInputs `json:"inputs"`
	QuestionCursor         int           `json:"question_cursor"`
	AskedCount             int           `json:"asked_count"`
	AnsweredCount          int           `json:"answered_count"`
	CreatedAt              string        `json:"created_at"`
	UpdatedAt              string        `json:"updated_at"`
	ClosedAt               string        `json:"closed_at,omitempty"`
	ClosedDecision         string        `json:"closed_decision,omitempty"`
}

// QuestionRecord is one line of QUESTIONS.jsonl.
type QuestionRecord struct {
	QID      string `json:"qid"`
	Tier     string `json:"tier"`
	Question string `json:"question"`
	AskedAt  string `json:"asked_at"`
}

// AnswerRecord is one line of ANSWERS.jsonl.
type AnswerRecord struct {
	QID        string `json:"qid"`
	AnswerPath string `json:"answer_path"`
	AnsweredBy string `json:"answered_by,omitempty"`
	AnsweredAt string `json:"answered_at"`
}

// MeetingDecision is one line of DECISIONS.jsonl and the compact close
// record written under the knowledge store.
type MeetingDecision struct {
	MeetingID string `json:"meeting_id"`
	Scope     string `json:"scope"`
	Decision  string `json:"decision"`
	Notes     string `json:"notes,omitempty"`
	DecidedBy string `json:"decided_by"`
	DecidedAt string `json:"decided_at"`
}

// ---------------------------------------------------------------------------
// Decision packets
// ---------------------------------------------------------------------------

// Decision packet statuses and answer types.
const (
	DecisionOpen     = "open"
	DecisionAnswered = "answered"

	AnswerTypeText   = "text"
	AnswerTypeChoice = "choice"
)

// DecisionContext explains the blocked automation to a human.
type DecisionContext struct {
	Summary             string   `json:"summary"`
	WhyAutomationFailed string   `json:"why_automation_failed"`
	WhatIsKnown         []string `json:"what_is_known"`
}

// DecisionQuestion is one question a human must answer.
type DecisionQuestion struct {
	ID                 string   `json:"id"`
	Question           string   `json:"question"`
	ExpectedAnswerType string   `json:"expected_answer_type"`
	Constraints        string   `json:"constraints,omitempty"`
	Blocks             []string `json:"blocks"`
}

// DecisionPacket is a structured, file-backed human escalation.
type DecisionPacket struct {
	DecisionID              string             `json:"decision_id"`
	Scope                   string             `json:"scope"`
	Trigger                 string             `json:"trigger"`
	BlockingState           string             `json:"blocking_state"`
	Context                 DecisionContext    `json:"context"`
	Questions               []DecisionQuestion `json:"questions"`
	AssumptionsIfUnanswered string             `json:"assumptions_if_unanswered,omitempty"`
	CreatedAt               string             `json:"created_at"`
	Status                  string             `json:"status"`
	AnsweredAt              string             `json:"answered_at,omitempty"`
	Answers                 map[string]string  `json:"answers,omitempty"`
}

// ---------------------------------------------------------------------------
// Change requests
// ---------------------------------------------------------------------------

// Change request statuses.
const (
	ChangeRequestOpen      = "open"
	ChangeRequestInMeeting = "in_meeting"
	ChangeRequestProcessed = "processed"
)

// ChangeRequest is an externally filed request bound into update meetings.
type ChangeRequest struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	Title           string `json:"title"`
	Severity        string `json:"severity"`
	Scope           string `json:"scope"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at,omitempty"`
	LinkedMeetingID string `json:"linked_meeting_id,omitempty"`
}

// ---------------------------------------------------------------------------
// Work status
// ---------------------------------------------------------------------------

// WorkStages is the closed, forward-preferred stage sequence. Reversions
// are permitted but must be explicit.
var WorkStages = []string{
	"INTAKE_RECEIVED", "ROUTED", "TASKS_CREATED", "SWEEP_READY", "PROPOSED",
	"BUNDLED", "PATCH_PLANNED", "QA_PLANNED", "APPLY_APPROVAL_REQUESTED",
	"APPLY_APPROVAL_GRANTED", "APPLYING", "APPLIED", "CI_PENDING",
	"CI_FAILED", "CI_FIXING", "CI_GREEN", "MERGE_APPROVAL_REQUESTED",
	"MERGE_APPROVAL_GRANTED", "MERGED", "DONE", "FAILED", "BLOCKED",
}

// WorkHistoryEntry records one stage transition.
type WorkHistoryEntry struct {
	Timestamp string `json:"timestamp"`
	Stage     string `json:"stage"`
	Note      string `json:"note,omitempty"`
}

// RepoWorkState is the per-repo slice of a work item.
type RepoWorkState struct {
	Stage  string `json:"stage,omitempty"`
	Branch string `json:"branch,omitempty"`
	Note   string `json:"note,omitempty"`
}

// WorkStatus is the per-work-item checkpoint snapshot.
type WorkStatus struct {
	WorkID         string                   `json:"work_id"`
	CurrentStage   string                   `json:"current_stage"`
	LastUpdated    string                   `json:"last_updated"`
	Blocked        bool                     `json:"blocked"`
	BlockingReason string                   `json:"blocking_reason,omitempty"`
	Artifacts      map[string]string        `json:"artifacts"`
	Repos          map[string]RepoWorkState `json:"repos"`
	History        []WorkHistoryEntry       `json:"history"`
}

// ---------------------------------------------------------------------------
// Ledger and results
// ---------------------------------------------------------------------------

// Ledger entry types.
const (
	LedgerStaleOverride       = "stale_override"
	LedgerSufficiencyOverride = "sufficiency_override"
)

// LedgerEntry is one line of the append-only audit ledger.
type LedgerEntry struct {
	EventID   string            `json:"event_id"`
	Type      string            `json:"type"`
	Scope     string            `json:"scope"`
	Actor     string            `json:"actor,omitempty"`
	Timestamp string            `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
}

// Result is the structured outcome every core operation returns to callers.
// Expected failure modes (stale, invalid output, gate refusal) are reported
// here, never raised.
type Result struct {
	OK         bool   `json:"ok"`
	Message    string `json:"message,omitempty"`
	ReasonCode string `json:"reason_code,omitempty"`
}

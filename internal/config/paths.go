package config

import (
	"path/filepath"

	"lanea/internal/types"
)

// Paths resolves every persisted artifact location from two roots: the
// project "ops root" (config, phases, meetings, events) and the "knowledge
// repo root" (evidence, ssot, decisions). Paths is injectable so tests can
// point the whole core at a tempdir.
type Paths struct {
	OpsRoot       string
	KnowledgeRoot string
}

// NewPaths builds a resolver; an empty knowledge root defaults to
// <ops>/knowledge.
func NewPaths(opsRoot, knowledgeRoot string) Paths {
	if knowledgeRoot == "" {
		knowledgeRoot = filepath.Join(opsRoot, "knowledge")
	}
	return Paths{OpsRoot: opsRoot, KnowledgeRoot: knowledgeRoot}
}

func (p Paths) laneA(parts ...string) string {
	return filepath.Join(append([]string{p.OpsRoot, "ai", "lane_a"}, parts...)...)
}

// --- ops root: config ---

// ReposConfigFile is the static repository registry.
func (p Paths) ReposConfigFile() string {
	return filepath.Join(p.OpsRoot, "config", "REPOS.json")
}

// LLMProfilesFile is the static oracle profile registry.
func (p Paths) LLMProfilesFile() string {
	return filepath.Join(p.OpsRoot, "config", "LLM_PROFILES.json")
}

// LaneConfigFile is the optional ambient-knob config.
func (p Paths) LaneConfigFile() string {
	return filepath.Join(p.OpsRoot, "config", "lane.yaml")
}

// --- ops root: lane A state ---

// PhaseFile is the two-phase lifecycle state.
func (p Paths) PhaseFile() string { return p.laneA("phases", "PHASE.json") }

// ForwardBlockedFile enumerates why forward kickoff refused.
func (p Paths) ForwardBlockedFile() string { return p.laneA("phases", "FORWARD_BLOCKED.json") }

// MeetingsDir holds one directory per meeting session.
func (p Paths) MeetingsDir() string { return p.laneA("meetings") }

// MeetingDir is one session's directory.
func (p Paths) MeetingDir(meetingID string) string {
	return filepath.Join(p.MeetingsDir(), meetingID)
}

// SufficiencyFile is the newest sufficiency record.
func (p Paths) SufficiencyFile() string { return p.laneA("sufficiency", "SUFFICIENCY.json") }

// SufficiencyHistoryDir holds immutable timestamped history entries.
func (p Paths) SufficiencyHistoryDir() string { return p.laneA("sufficiency", "history") }

// KnowledgeVersionFile tracks the current knowledge version.
func (p Paths) KnowledgeVersionFile() string { return p.laneA("sufficiency", "VERSION.json") }

// EventSegmentsDir holds merge-event segment files (external producer).
func (p Paths) EventSegmentsDir() string { return p.laneA("events", "segments") }

// LastRefreshFile is the staleness engine's checkpoint.
func (p Paths) LastRefreshFile() string {
	return p.laneA("events", "checkpoints", "last_refresh.json")
}

// ObservationsFile is the rolling stale-observation record for a scope.
func (p Paths) ObservationsFile(scope string) string {
	return p.laneA("events", "observations", types.ScopeSlug(scope)+".jsonl")
}

// LedgerFile is the append-only override audit ledger.
func (p Paths) LedgerFile() string { return p.laneA("ledger.jsonl") }

// ChangeRequestsDir holds externally filed change requests.
func (p Paths) ChangeRequestsDir() string { return p.laneA("change_requests") }

// ChangeRequestFile is one change request.
func (p Paths) ChangeRequestFile(id string) string {
	return filepath.Join(p.ChangeRequestsDir(), "CR-"+id+".json")
}

// KickoffFile is the optional human kickoff notes included in committee
// payloads when present.
func (p Paths) KickoffFile() string { return p.laneA("KICKOFF.md") }

// LogsDir is where the categorized logger writes.
func (p Paths) LogsDir() string { return p.laneA("logs") }

// --- knowledge root: evidence ---

// RepoIndexFile is the scanner's per-repo index.
func (p Paths) RepoIndexFile(repoID string) string {
	return filepath.Join(p.KnowledgeRoot, "evidence", "index", "repos", repoID, "repo_index.json")
}

// EvidenceRefsFile is the scanner's per-repo evidence index.
func (p Paths) EvidenceRefsFile(repoID string) string {
	return filepath.Join(p.KnowledgeRoot, "evidence", "repos", repoID, "evidence_refs.jsonl")
}

// --- knowledge root: ssot ---

// ScanFile is the scanner's per-repo scan summary.
func (p Paths) ScanFile(repoID string) string {
	return filepath.Join(p.KnowledgeRoot, "ssot", "repos", repoID, "scan.json")
}

// RepoCommitteeDir holds a repo's committee artifacts.
func (p Paths) RepoCommitteeDir(repoID string) string {
	return filepath.Join(p.KnowledgeRoot, "ssot", "repos", repoID, "committee")
}

// CommitteeStatusFile is the derived per-repo committee status.
func (p Paths) CommitteeStatusFile(repoID string) string {
	return filepath.Join(p.RepoCommitteeDir(repoID), "committee_status.json")
}

// IntegrationDir holds the integration chair's artifacts.
func (p Paths) IntegrationDir() string {
	return filepath.Join(p.KnowledgeRoot, "ssot", "system", "committee", "integration")
}

// IntegrationStatusFile is the derived cross-repo status.
func (p Paths) IntegrationStatusFile() string {
	return filepath.Join(p.IntegrationDir(), "integration_status.json")
}

// --- knowledge root: decisions ---

// DecisionsDir holds decision packets.
func (p Paths) DecisionsDir() string {
	return filepath.Join(p.KnowledgeRoot, "decisions")
}

// SufficiencyLatestFile is the per-scope LATEST pointer index.
func (p Paths) SufficiencyLatestFile() string {
	return filepath.Join(p.KnowledgeRoot, "decisions", "sufficiency", "LATEST.json")
}

// MeetingDecisionsDir holds compact meeting close records.
func (p Paths) MeetingDecisionsDir() string {
	return filepath.Join(p.KnowledgeRoot, "decisions", "meetings")
}

// MeetingDecisionLatestFile is the per-scope pointer to the newest meeting
// close record.
func (p Paths) MeetingDecisionLatestFile(scope string) string {
	return filepath.Join(p.MeetingDecisionsDir(), types.ScopeSlug(scope)+"-LATEST.json")
}

// --- ops root: work status ---

// WorkDir is one work item's checkpoint directory.
func (p Paths) WorkDir(workID string) string { return p.laneA("work", workID) }

// WorkStatusFile is the work item's JSON snapshot.
func (p Paths) WorkStatusFile(workID string) string {
	return filepath.Join(p.WorkDir(workID), "status.json")
}

// WorkStatusHistoryFile holds prior snapshots, newest last.
func (p Paths) WorkStatusHistoryFile(workID string) string {
	return filepath.Join(p.WorkDir(workID), "status-history.json")
}

// WorkStatusMarkdownFile is the human rendering with the embedded snapshot.
func (p Paths) WorkStatusMarkdownFile(workID string) string {
	return filepath.Join(p.WorkDir(workID), "STATUS.md")
}

package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"lanea/internal/types"
)

const maxCommitteeListLen = 20
const maxIntegrationGaps = 15

var versionShape = regexp.MustCompile(`^v\d+(\.\d+(\.\d+)?)?$`)

func parseOpen(raw []byte, out any) error {
	return json.Unmarshal(raw, out)
}

// parseClosed rejects unknown fields; used for kinds whose schema is closed.
func parseClosed(raw []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func validTimestamp(s string) bool {
	_, err := time.Parse(time.RFC3339, s)
	return err == nil
}

func validSeverity(s string) bool {
	return s == types.SeverityLow || s == types.SeverityMedium || s == types.SeverityHigh
}

// --- scanner inputs ---

func validateEvidenceRef(raw []byte) Result {
	var ref types.EvidenceRef
	if err := parseOpen(raw, &ref); err != nil {
		return reject("parse evidence_ref: " + err.Error())
	}
	ref.EvidenceID = strings.TrimSpace(ref.EvidenceID)
	ref.RepoID = strings.TrimSpace(ref.RepoID)
	ref.CommitSHA = strings.TrimSpace(ref.CommitSHA)
	ref.FilePath = strings.TrimSpace(ref.FilePath)

	var errs []string
	if ref.EvidenceID == "" {
		errs = append(errs, "evidence_id is required")
	}
	if ref.RepoID == "" {
		errs = append(errs, "repo_id is required")
	}
	if ref.CommitSHA == "" {
		errs = append(errs, "commit_sha is required")
	}
	if ref.FilePath == "" {
		errs = append(errs, "file_path is required")
	}
	if ref.StartLine < 1 {
		errs = append(errs, "start_line must be >= 1")
	}
	if ref.EndLine < ref.StartLine {
		errs = append(errs, fmt.Sprintf("start_line %d > end_line %d", ref.StartLine, ref.EndLine))
	}
	if len(errs) > 0 {
		return reject(errs...)
	}
	return accept(ref)
}

func validateRepoIndex(raw []byte) Result {
	var idx types.RepoIndex
	if err := parseOpen(raw, &idx); err != nil {
		return reject("parse repo_index: " + err.Error())
	}
	idx.HeadSHA = strings.TrimSpace(idx.HeadSHA)
	idx.ScannedAt = strings.TrimSpace(idx.ScannedAt)

	var errs []string
	if idx.HeadSHA == "" {
		errs = append(errs, "head_sha is required")
	}
	if !validTimestamp(idx.ScannedAt) {
		errs = append(errs, "scanned_at is not a valid timestamp")
	}
	if len(errs) > 0 {
		return reject(errs...)
	}
	idx.Dependencies.DependsOn = trimSortDedupe(idx.Dependencies.DependsOn)
	return accept(idx)
}

func validateScan(raw []byte) Result {
	var scan types.ScanInfo
	if err := parseOpen(raw, &scan); err != nil {
		return reject("parse scan: " + err.Error())
	}
	scan.RepoID = strings.TrimSpace(scan.RepoID)
	scan.ScannedAt = strings.TrimSpace(scan.ScannedAt)

	if scan.RepoID == "" {
		return reject("repo_id is required")
	}
	if !validTimestamp(scan.ScannedAt) {
		return reject("scanned_at is not a valid timestamp")
	}
	return accept(scan)
}

// --- committee artifacts ---

func validateCommitteeOutput(raw []byte) Result {
	var out types.CommitteeOutput
	if err := parseClosed(raw, &out); err != nil {
		return reject("parse committee_output: " + err.Error())
	}

	out.Scope = strings.TrimSpace(out.Scope)
	var errs []string
	if out.Scope == "" {
		errs = append(errs, "scope is required")
	}
	if out.Verdict != types.VerdictEvidenceValid && out.Verdict != types.VerdictEvidenceInvalid {
		errs = append(errs, fmt.Sprintf("verdict %q is not evidence_valid|evidence_invalid", out.Verdict))
	}
	for name, n := range map[string]int{
		"facts":             len(out.Facts),
		"assumptions":       len(out.Assumptions),
		"unknowns":          len(out.Unknowns),
		"integration_edges": len(out.IntegrationEdges),
		"risks":             len(out.Risks),
	} {
		if n > maxCommitteeListLen {
			errs = append(errs, fmt.Sprintf("%s has %d entries, max %d", name, n, maxCommitteeListLen))
		}
	}
	for i, edge := range out.IntegrationEdges {
		if edge.Confidence < 0 || edge.Confidence > 1 {
			errs = append(errs, fmt.Sprintf("integration_edges[%d].confidence %v outside [0,1]", i, edge.Confidence))
		}
	}
	if len(errs) > 0 {
		return reject(errs...)
	}

	for i := range out.Facts {
		out.Facts[i].Text = strings.TrimSpace(out.Facts[i].Text)
		out.Facts[i].EvidenceRefs = trimSortDedupe(out.Facts[i].EvidenceRefs)
	}
	sort.Slice(out.Facts, func(i, j int) bool { return out.Facts[i].Text < out.Facts[j].Text })

	for i := range out.Assumptions {
		out.Assumptions[i].Text = strings.TrimSpace(out.Assumptions[i].Text)
		out.Assumptions[i].EvidenceMissing = trimSortDedupe(out.Assumptions[i].EvidenceMissing)
	}
	sort.Slice(out.Assumptions, func(i, j int) bool { return out.Assumptions[i].Text < out.Assumptions[j].Text })

	for i := range out.Unknowns {
		out.Unknowns[i].Text = strings.TrimSpace(out.Unknowns[i].Text)
		out.Unknowns[i].EvidenceMissing = trimSortDedupe(out.Unknowns[i].EvidenceMissing)
	}
	sort.Slice(out.Unknowns, func(i, j int) bool { return out.Unknowns[i].Text < out.Unknowns[j].Text })

	for i := range out.IntegrationEdges {
		e := &out.IntegrationEdges[i]
		e.From = strings.TrimSpace(e.From)
		e.To = strings.TrimSpace(e.To)
		e.Type = strings.TrimSpace(e.Type)
		e.EvidenceRefs = trimSortDedupe(e.EvidenceRefs)
		e.EvidenceMissing = trimSortDedupe(e.EvidenceMissing)
	}
	sort.Slice(out.IntegrationEdges, func(i, j int) bool {
		a, b := out.IntegrationEdges[i], out.IntegrationEdges[j]
		if a.From != b.From {
			return a.From < b.From
		}
		if a.To != b.To {
			return a.To < b.To
		}
		return a.Type < b.Type
	})

	out.Risks = trimSortDedupe(out.Risks)
	return accept(out)
}

func validateCommitteeStatus(raw []byte) Result {
	var status types.CommitteeStatus
	if err := parseOpen(raw, &status); err != nil {
		return reject("parse committee_status: " + err.Error())
	}

	var errs []string
	switch status.Confidence {
	case types.SeverityLow, types.SeverityMedium, types.SeverityHigh:
	default:
		errs = append(errs, fmt.Sprintf("confidence %q is not low|medium|high", status.Confidence))
	}
	switch status.NextAction {
	case types.NextActionProceed, types.NextActionRescanNeeded, types.NextActionDecisionNeeded:
	default:
		errs = append(errs, fmt.Sprintf("next_action %q is not proceed|rescan_needed|decision_needed", status.NextAction))
	}
	for i, issue := range status.BlockingIssues {
		if !validSeverity(issue.Severity) {
			errs = append(errs, fmt.Sprintf("blocking_issues[%d].severity %q invalid", i, issue.Severity))
		}
	}
	if len(errs) > 0 {
		return reject(errs...)
	}

	for i := range status.BlockingIssues {
		status.BlockingIssues[i].EvidenceMissing = trimSortDedupe(status.BlockingIssues[i].EvidenceMissing)
	}
	sort.Slice(status.BlockingIssues, func(i, j int) bool {
		return status.BlockingIssues[i].ID < status.BlockingIssues[j].ID
	})
	return accept(status)
}

func validateIntegrationStatus(raw []byte) Result {
	var status types.IntegrationStatus
	if err := parseOpen(raw, &status); err != nil {
		return reject("parse integration_status: " + err.Error())
	}

	var errs []string
	if len(status.IntegrationGaps) > maxIntegrationGaps {
		errs = append(errs, fmt.Sprintf("integration_gaps has %d entries, max %d", len(status.IntegrationGaps), maxIntegrationGaps))
	}
	for i, gap := range status.IntegrationGaps {
		if !validSeverity(gap.Severity) {
			errs = append(errs, fmt.Sprintf("integration_gaps[%d].severity %q invalid", i, gap.Severity))
		}
		if status.EvidenceValid && gap.Severity == types.SeverityHigh {
			errs = append(errs, "evidence_valid is true but a high-severity gap exists")
		}
	}
	if len(errs) > 0 {
		return reject(errs...)
	}

	for i := range status.IntegrationGaps {
		g := &status.IntegrationGaps[i]
		g.Repos = trimSortDedupe(g.Repos)
		g.EvidenceRefs = trimSortDedupe(g.EvidenceRefs)
		g.EvidenceMissing = trimSortDedupe(g.EvidenceMissing)
	}
	sort.Slice(status.IntegrationGaps, func(i, j int) bool {
		return status.IntegrationGaps[i].ID < status.IntegrationGaps[j].ID
	})
	return accept(status)
}

// --- sufficiency ---

func validateSufficiencyRecord(raw []byte) Result {
	var rec types.SufficiencyRecord
	if err := parseOpen(raw, &rec); err != nil {
		return reject("parse sufficiency_record: " + err.Error())
	}
	rec.Scope = strings.TrimSpace(rec.Scope)
	rec.KnowledgeVersion = strings.TrimSpace(rec.KnowledgeVersion)

	var errs []string
	if rec.Scope == "" {
		errs = append(errs, "scope is required")
	}
	if !versionShape.MatchString(rec.KnowledgeVersion) {
		errs = append(errs, fmt.Sprintf("knowledge_version %q does not match v<major>[.<minor>[.<patch>]]", rec.KnowledgeVersion))
	}
	switch rec.Status {
	case types.SufficiencyInsufficient, types.SufficiencyProposed, types.SufficiencySufficient:
	default:
		errs = append(errs, fmt.Sprintf("status %q invalid", rec.Status))
	}
	switch rec.StaleStatus {
	case types.StaleStatusFresh, types.StaleStatusSoftStale, types.StaleStatusHardStale:
	default:
		errs = append(errs, fmt.Sprintf("stale_status %q invalid", rec.StaleStatus))
	}
	if rec.Status == types.SufficiencySufficient && len(rec.Blockers) > 0 {
		errs = append(errs, "sufficient record must carry no blockers")
	}
	if len(errs) > 0 {
		return reject(errs...)
	}

	rec.EvidenceBasis = trimSortDedupe(rec.EvidenceBasis)
	sort.Slice(rec.Blockers, func(i, j int) bool { return rec.Blockers[i].ID < rec.Blockers[j].ID })
	return accept(rec)
}

// --- phase ---

func validatePhaseState(raw []byte) Result {
	var state types.PhaseState
	if err := parseOpen(raw, &state); err != nil {
		return reject("parse phase_state: " + err.Error())
	}

	var errs []string
	if state.CurrentPhase != types.PhaseReverse && state.CurrentPhase != types.PhaseForward {
		errs = append(errs, fmt.Sprintf("current_phase %q is not reverse|forward", state.CurrentPhase))
	}
	for name, status := range map[string]string{"reverse": state.Reverse.Status, "forward": state.Forward.Status} {
		switch status {
		case types.PhaseStatusOpen, types.PhaseStatusInProgress, types.PhaseStatusClosed:
		default:
			errs = append(errs, fmt.Sprintf("%s.status %q invalid", name, status))
		}
	}
	if len(errs) > 0 {
		return reject(errs...)
	}
	return accept(state)
}

// --- meetings ---

func validateMeetingSession(raw []byte) Result {
	var sess types.MeetingSession
	if err := parseOpen(raw, &sess); err != nil {
		return reject("parse meeting_session: " + err.Error())
	}

	var errs []string
	if strings.TrimSpace(sess.MeetingID) == "" {
		errs = append(errs, "meeting_id is required")
	}
	if strings.TrimSpace(sess.Scope) == "" {
		errs = append(errs, "scope is required")
	}
	switch sess.Status {
	case types.MeetingOpen, types.MeetingWaitingForAnswer, types.MeetingReadyToClose, types.MeetingClosed:
	default:
		errs = append(errs, fmt.Sprintf("status %q invalid", sess.Status))
	}
	if sess.AnsweredCount > sess.AskedCount {
		errs = append(errs, fmt.Sprintf("answered_count %d exceeds asked_count %d", sess.AnsweredCount, sess.AskedCount))
	}
	if sess.AskedCount < 0 || sess.AnsweredCount < 0 {
		errs = append(errs, "counts must be non-negative")
	}
	if len(errs) > 0 {
		return reject(errs...)
	}

	sess.Inputs.OpenDecisionIDs = trimSortDedupe(sess.Inputs.OpenDecisionIDs)
	sess.Inputs.IntegrationGapIDs = trimSortDedupe(sess.Inputs.IntegrationGapIDs)
	sess.Inputs.BoundChangeRequests = trimSortDedupe(sess.Inputs.BoundChangeRequests)
	return accept(sess)
}

// --- decision packets ---

func validateDecisionPacket(raw []byte) Result {
	var packet types.DecisionPacket
	if err := parseOpen(raw, &packet); err != nil {
		return reject("parse decision_packet: " + err.Error())
	}

	var errs []string
	if strings.TrimSpace(packet.DecisionID) == "" {
		errs = append(errs, "decision_id is required")
	}
	if strings.TrimSpace(packet.Scope) == "" {
		errs = append(errs, "scope is required")
	}
	if packet.Status != types.DecisionOpen && packet.Status != types.DecisionAnswered {
		errs = append(errs, fmt.Sprintf("status %q is not open|answered", packet.Status))
	}
	for i, q := range packet.Questions {
		if strings.TrimSpace(q.ID) == "" || strings.TrimSpace(q.Question) == "" {
			errs = append(errs, fmt.Sprintf("questions[%d] needs id and question", i))
		}
		if q.ExpectedAnswerType != types.AnswerTypeText && q.ExpectedAnswerType != types.AnswerTypeChoice {
			errs = append(errs, fmt.Sprintf("questions[%d].expected_answer_type %q is not text|choice", i, q.ExpectedAnswerType))
		}
	}
	if len(errs) > 0 {
		return reject(errs...)
	}

	packet.Context.WhatIsKnown = trimSortDedupe(packet.Context.WhatIsKnown)
	for i := range packet.Questions {
		packet.Questions[i].Blocks = trimSortDedupe(packet.Questions[i].Blocks)
	}
	return accept(packet)
}

// --- change requests ---

func validateChangeRequest(raw []byte) Result {
	var cr types.ChangeRequest
	if err := parseOpen(raw, &cr); err != nil {
		return reject("parse change_request: " + err.Error())
	}
	cr.ID = strings.TrimSpace(cr.ID)
	cr.Title = strings.TrimSpace(cr.Title)

	var errs []string
	if cr.ID == "" {
		errs = append(errs, "id is required")
	}
	if cr.Title == "" {
		errs = append(errs, "title is required")
	}
	switch cr.Status {
	case types.ChangeRequestOpen, types.ChangeRequestInMeeting, types.ChangeRequestProcessed:
	default:
		errs = append(errs, fmt.Sprintf("status %q invalid", cr.Status))
	}
	if len(errs) > 0 {
		return reject(errs...)
	}
	return accept(cr)
}

// --- work status ---

var workStageSet = func() map[string]bool {
	m := make(map[string]bool, len(types.WorkStages))
	for _, s := range types.WorkStages {
		m[s] = true
	}
	return m
}()

func validateWorkStatus(raw []byte) Result {
	var ws types.WorkStatus
	if err := parseOpen(raw, &ws); err != nil {
		return reject("parse work_status: " + err.Error())
	}

	var errs []string
	if strings.TrimSpace(ws.WorkID) == "" {
		errs = append(errs, "work_id is required")
	}
	if !workStageSet[ws.CurrentStage] {
		errs = append(errs, fmt.Sprintf("current_stage %q is not a known stage", ws.CurrentStage))
	}
	for i, h := range ws.History {
		if !workStageSet[h.Stage] {
			errs = append(errs, fmt.Sprintf("history[%d].stage %q is not a known stage", i, h.Stage))
		}
	}
	if len(errs) > 0 {
		return reject(errs...)
	}

	if ws.Artifacts == nil {
		ws.Artifacts = map[string]string{}
	}
	if ws.Repos == nil {
		ws.Repos = map[string]types.RepoWorkState{}
	}
	return accept(ws)
}

// --- events ---

func validateMergeEvent(raw []byte) Result {
	var ev types.MergeEvent
	if err := parseOpen(raw, &ev); err != nil {
		return reject("parse merge_event: " + err.Error())
	}
	ev.Type = strings.TrimSpace(ev.Type)
	ev.RepoID = strings.TrimSpace(ev.RepoID)

	var errs []string
	if ev.Type == "" {
		errs = append(errs, "type is required")
	}
	if !validTimestamp(ev.Timestamp) {
		errs = append(errs, "timestamp is not a valid timestamp")
	}
	if ev.Type == "merge" && ev.RepoID == "" {
		errs = append(errs, "merge events require repo_id")
	}
	if len(errs) > 0 {
		return reject(errs...)
	}
	return accept(ev)
}

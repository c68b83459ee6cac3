// Package meeting runs the review/update meeting subprotocol: a session
// directory per meeting, a one-question-at-a-time ladder, answer recording,
// change-request binding, and close decisions that trigger sufficiency
// transitions or knowledge-version bumps.
package meeting

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"lanea/internal/committee"
	"lanea/internal/config"
	"lanea/internal/contract"
	"lanea/internal/decision"
	"lanea/internal/fsio"
	"lanea/internal/logging"
	"lanea/internal/staleness"
	"lanea/internal/sufficiency"
	"lanea/internal/types"
)

// Close decisions allowed per meeting kind.
var (
	updateDecisions = map[string]bool{
		"approve_intake": true, "revise_scans": true, "open_decisions": true, "abort": true,
		sufficiency.BumpPatch: true, sufficiency.BumpMinor: true, sufficiency.BumpMajor: true, sufficiency.NoBump: true,
	}
	reviewDecisions = map[string]bool{
		"confirm_sufficiency": true, "reject_sufficiency": true, "defer": true,
	}
)

// OverrideSufficiencyToken in close notes lets approve_intake pass without
// a sufficient ledger state.
const OverrideSufficiencyToken = "[override-sufficiency]"

// Manager drives meeting sessions.
type Manager struct {
	Paths         config.Paths
	Registry      *types.RepoRegistry
	Stale         *staleness.Engine
	Committee     *committee.Orchestrator
	Ledger        *sufficiency.Ledger
	Decisions     *decision.Store
	CRs           *ChangeRequests
	MaxQuestions  int
	ForceOverride bool
	Now           func() time.Time
}

// NewManager wires a manager.
func NewManager(paths config.Paths, registry *types.RepoRegistry, stale *staleness.Engine, orch *committee.Orchestrator, ledger *sufficiency.Ledger, decisions *decision.Store, crs *ChangeRequests, maxQuestions int, now func() time.Time) *Manager {
	if maxQuestions < 1 {
		maxQuestions = config.DefaultMaxQuestions
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{
		Paths:        paths,
		Registry:     registry,
		Stale:        stale,
		Committee:    orch,
		Ledger:       ledger,
		Decisions:    decisions,
		CRs:          crs,
		MaxQuestions: maxQuestions,
		Now:          now,
	}
}

func (m *Manager) sessionFile(meetingID string) string {
	return filepath.Join(m.Paths.MeetingDir(meetingID), "MEETING.json")
}

func (m *Manager) loadSession(meetingID string) (types.MeetingSession, error) {
	return contract.Load[types.MeetingSession](m.sessionFile(meetingID), contract.KindMeetingSession)
}

func (m *Manager) saveSession(sess types.MeetingSession) error {
	sess.UpdatedAt = m.Now().UTC().Format(time.RFC3339)
	if err := fsio.WriteJSONAtomic(m.sessionFile(sess.MeetingID), sess); err != nil {
		return err
	}
	return fsio.WriteFileAtomic(filepath.Join(m.Paths.MeetingDir(sess.MeetingID), "MEETING.md"),
		[]byte(m.renderSessionMarkdown(sess)))
}

func (m *Manager) questions(meetingID string) ([]types.QuestionRecord, error) {
	return fsio.ReadJSONLines[types.QuestionRecord](filepath.Join(m.Paths.MeetingDir(meetingID), "QUESTIONS.jsonl"))
}

func (m *Manager) answers(meetingID string) ([]types.AnswerRecord, error) {
	return fsio.ReadJSONLines[types.AnswerRecord](filepath.Join(m.Paths.MeetingDir(meetingID), "ANSWERS.jsonl"))
}

// Start creates a meeting session: directory, MEETING.json with an inputs
// snapshot of the gating facts, and (for update meetings) up to 10 oldest
// open change requests bound in.
func (m *Manager) Start(ctx context.Context, scope, kind string) (types.MeetingSession, error) {
	if kind != types.MeetingKindUpdate && kind != types.MeetingKindReview {
		return types.MeetingSession{}, fmt.Errorf("unknown meeting kind %q", kind)
	}

	prefix := "UM-"
	if kind == types.MeetingKindReview {
		prefix = "RM-"
	}
	meetingID := prefix + m.Now().UTC().Format("20060102_150405") + "__" + types.ScopeSlug(scope)
	if fsio.Exists(m.sessionFile(meetingID)) {
		return types.MeetingSession{}, fmt.Errorf("meeting %s already exists", meetingID)
	}

	snap, err := m.Stale.EvaluateScope(ctx, scope)
	if err != nil {
		return types.MeetingSession{}, err
	}
	coverageOK, _ := m.Ledger.Coverage()
	version, err := m.Ledger.CurrentVersion()
	if err != nil {
		return types.MeetingSession{}, err
	}
	suffStatus, err := m.Ledger.Status(scope, version)
	if err != nil {
		return types.MeetingSession{}, err
	}
	open, err := m.Decisions.ListOpen(scope)
	if err != nil {
		return types.MeetingSession{}, err
	}
	openIDs := make([]string, 0, len(open))
	for _, p := range open {
		openIDs = append(openIDs, p.DecisionID)
	}

	gapIDs := []string{}
	if status, err := contract.Load[types.IntegrationStatus](m.Paths.IntegrationStatusFile(), contract.KindIntegrationStatus); err == nil {
		for _, g := range status.IntegrationGaps {
			gapIDs = append(gapIDs, g.ID)
		}
	}

	statusPath := m.Paths.IntegrationStatusFile()
	if repoID, ok := types.ScopeRepoID(scope); ok {
		statusPath = m.Paths.CommitteeStatusFile(repoID)
	}

	bound := []string{}
	if kind == types.MeetingKindUpdate {
		bound, err = m.CRs.BindOpen(scope, meetingID, config.DefaultMaxBoundChangeReqs)
		if err != nil {
			return types.MeetingSession{}, err
		}
	}

	now := m.Now().UTC().Format(time.RFC3339)
	sess := types.MeetingSession{
		MeetingID:              meetingID,
		Scope:                  scope,
		Kind:                   kind,
		Status:                 types.MeetingOpen,
		KnowledgeVersionTarget: version,
		Inputs: types.MeetingInputs{
			CoverageComplete:    coverageOK,
			SufficiencyStatus:   suffStatus,
			CommitteeStatusPath: statusPath,
			OpenDecisionIDs:     openIDs,
			IntegrationGapIDs:   gapIDs,
			Staleness:           snap,
			BoundChangeRequests: bound,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.saveSession(sess); err != nil {
		return types.MeetingSession{}, err
	}
	logging.Get(logging.CategoryMeeting).Info("meeting %s started (%d change requests bound)", meetingID, len(bound))
	return sess, nil
}

// Continue advances a meeting by exactly one move: nothing while an answer
// is pending, one committee step while the committee is not ready, one
// appended question otherwise, or ready_to_close when the ladder is done.
func (m *Manager) Continue(ctx context.Context, meetingID string) (types.MeetingSession, error) {
	sess, err := m.loadSession(meetingID)
	if err != nil {
		return types.MeetingSession{}, err
	}

	switch sess.Status {
	case types.MeetingWaitingForAnswer:
		return sess, nil
	case types.MeetingClosed:
		return sess, fmt.Errorf("meeting %s is closed", meetingID)
	case types.MeetingReadyToClose:
		return sess, nil
	}

	if !m.Committee.Ready(sess.Scope) {
		res, done, err := m.Committee.StepOnce(ctx, sess.Scope)
		if err != nil {
			return types.MeetingSession{}, err
		}
		if !done && res.State == committee.StateStaleBlocked {
			errPath := filepath.Join(m.Paths.MeetingDir(meetingID), "ERROR.json")
			if werr := fsio.WriteJSONAtomic(errPath, res); werr != nil {
				return types.MeetingSession{}, werr
			}
		}
		if err := m.saveSession(sess); err != nil {
			return types.MeetingSession{}, err
		}
		return sess, nil
	}

	answered, err := m.answeredTiers(meetingID)
	if err != nil {
		return types.MeetingSession{}, err
	}

	tier := nextTier(sess.Inputs.Staleness.Stale, sess.AskedCount, answered)
	if sess.AskedCount >= m.MaxQuestions || tier == "" {
		sess.Status = types.MeetingReadyToClose
		if err := m.saveSession(sess); err != nil {
			return types.MeetingSession{}, err
		}
		return sess, nil
	}

	question := types.QuestionRecord{
		QID:      "q-" + uuid.NewString()[:8],
		Tier:     tier,
		Question: fmt.Sprintf(tierQuestions[tier], sess.Scope),
		AskedAt:  m.Now().UTC().Format(time.RFC3339),
	}
	if err := fsio.AppendJSONLine(filepath.Join(m.Paths.MeetingDir(meetingID), "QUESTIONS.jsonl"), question); err != nil {
		return types.MeetingSession{}, err
	}

	sess.Status = types.MeetingWaitingForAnswer
	sess.AskedCount++
	sess.QuestionCursor++
	if err := m.saveSession(sess); err != nil {
		return types.MeetingSession{}, err
	}
	logging.Get(logging.CategoryMeeting).Info("meeting %s asked %s question %s", meetingID, tier, question.QID)
	return sess, nil
}

func (m *Manager) answeredTiers(meetingID string) (map[string]bool, error) {
	questions, err := m.questions(meetingID)
	if err != nil {
		return nil, err
	}
	answers, err := m.answers(meetingID)
	if err != nil {
		return nil, err
	}
	answeredQIDs := map[string]bool{}
	for _, a := range answers {
		answeredQIDs[a.QID] = true
	}
	tiers := map[string]bool{}
	for _, q := range questions {
		if answeredQIDs[q.QID] {
			tiers[q.Tier] = true
		}
	}
	return tiers, nil
}

// Answer records the human answer to the single pending question: the body
// lands in a per-question Markdown file, a record is appended to
// ANSWERS.jsonl, and the session returns to open.
func (m *Manager) Answer(meetingID, body, by string) (types.MeetingSession, error) {
	sess, err := m.loadSession(meetingID)
	if err != nil {
		return types.MeetingSession{}, err
	}
	if sess.Status != types.MeetingWaitingForAnswer {
		return sess, fmt.Errorf("meeting %s is not waiting for an answer (status %s)", meetingID, sess.Status)
	}

	questions, err := m.questions(meetingID)
	if err != nil {
		return types.MeetingSession{}, err
	}
	answers, err := m.answers(meetingID)
	if err != nil {
		return types.MeetingSession{}, err
	}
	answeredQIDs := map[string]bool{}
	for _, a := range answers {
		answeredQIDs[a.QID] = true
	}
	var pending []types.QuestionRecord
	for _, q := range questions {
		if !answeredQIDs[q.QID] {
			pending = append(pending, q)
		}
	}
	if len(pending) != 1 {
		return sess, fmt.Errorf("meeting %s has %d unanswered questions, want exactly 1", meetingID, len(pending))
	}

	q := pending[0]
	answerPath := filepath.Join(m.Paths.MeetingDir(meetingID), "answers", q.QID+".md")
	content := fmt.Sprintf("# %s (%s)\n\n%s\n\n%s\n", q.QID, q.Tier, q.Question, body)
	if err := fsio.WriteFileAtomic(answerPath, []byte(content)); err != nil {
		return types.MeetingSession{}, err
	}
	record := types.AnswerRecord{
		QID:        q.QID,
		AnswerPath: answerPath,
		AnsweredBy: by,
		AnsweredAt: m.Now().UTC().Format(time.RFC3339),
	}
	if err := fsio.AppendJSONLine(filepath.Join(m.Paths.MeetingDir(meetingID), "ANSWERS.jsonl"), record); err != nil {
		return types.MeetingSession{}, err
	}

	sess.Status = types.MeetingOpen
	sess.AnsweredCount++
	if err := m.saveSession(sess); err != nil {
		return types.MeetingSession{}, err
	}
	return sess, nil
}

// Close validates the decision against the meeting kind's allowed set,
// runs its post-actions, and writes the compact decision record plus the
// per-scope LATEST pointer.
func (m *Manager) Close(ctx context.Context, meetingID, decisionToken, by, notes string) (types.Result, error) {
	sess, err := m.loadSession(meetingID)
	if err != nil {
		return types.Result{}, err
	}
	if sess.Status == types.MeetingClosed {
		return types.Result{OK: false, Message: fmt.Sprintf("meeting %s is already closed", meetingID)}, nil
	}

	questions, err := m.questions(meetingID)
	if err != nil {
		return types.Result{}, err
	}
	answers, err := m.answers(meetingID)
	if err != nil {
		return types.Result{}, err
	}
	answeredQIDs := map[string]bool{}
	for _, a := range answers {
		answeredQIDs[a.QID] = true
	}
	for _, q := range questions {
		if !answeredQIDs[q.QID] {
			return types.Result{OK: false, Message: fmt.Sprintf("question %s is unanswered; every asked question needs an answer before close", q.QID)}, nil
		}
	}

	allowed := updateDecisions
	if sess.Kind == types.MeetingKindReview {
		allowed = reviewDecisions
	}
	if !allowed[decisionToken] {
		return types.Result{OK: false, Message: fmt.Sprintf("decision %q is not allowed for %s meetings", decisionToken, sess.Kind)}, nil
	}

	if res, err := m.applyCloseDecision(ctx, &sess, decisionToken, by, notes); err != nil {
		return types.Result{}, err
	} else if !res.OK {
		return res, nil
	}

	now := m.Now().UTC().Format(time.RFC3339)
	record := types.MeetingDecision{
		MeetingID: meetingID,
		Scope:     sess.Scope,
		Decision:  decisionToken,
		Notes:     notes,
		DecidedBy: by,
		DecidedAt: now,
	}
	if err := fsio.AppendJSONLine(filepath.Join(m.Paths.MeetingDir(meetingID), "DECISIONS.jsonl"), record); err != nil {
		return types.Result{}, err
	}
	if err := fsio.WriteJSONAtomic(filepath.Join(m.Paths.MeetingDecisionsDir(), meetingID+".json"), record); err != nil {
		return types.Result{}, err
	}
	if err := fsio.WriteJSONAtomic(m.Paths.MeetingDecisionLatestFile(sess.Scope), record); err != nil {
		return types.Result{}, err
	}

	sess.Status = types.MeetingClosed
	sess.ClosedAt = now
	sess.ClosedDecision = decisionToken
	if err := m.saveSession(sess); err != nil {
		return types.Result{}, err
	}
	logging.Get(logging.CategoryMeeting).Info("meeting %s closed: %s by %s", meetingID, decisionToken, by)
	return types.Result{OK: true, Message: fmt.Sprintf("meeting closed with %s", decisionToken)}, nil
}

// applyCloseDecision runs the decision-specific post-actions. A returned
// result with OK=false aborts the close.
func (m *Manager) applyCloseDecision(ctx context.Context, sess *types.MeetingSession, decisionToken, by, notes string) (types.Result, error) {
	switch decisionToken {
	case "approve_intake":
		return m.approveIntake(ctx, sess, notes)

	case "confirm_sufficiency":
		snap, err := m.Stale.EvaluateScope(ctx, sess.Scope)
		if err != nil {
			return types.Result{}, err
		}
		if snap.Stale {
			return types.Result{OK: false, Message: fmt.Sprintf("cannot confirm sufficiency: %s is stale (%s)", sess.Scope, firstReason(snap))}, nil
		}
		return m.Ledger.Approve(ctx, sess.Scope, sess.KnowledgeVersionTarget, by)

	case "reject_sufficiency":
		_, err := m.Ledger.Reject(ctx, sess.Scope, sess.KnowledgeVersionTarget, by, notes)
		if err != nil {
			return types.Result{}, err
		}
		return types.Result{OK: true}, nil

	case sufficiency.BumpPatch, sufficiency.BumpMinor, sufficiency.BumpMajor, sufficiency.NoBump:
		version, err := m.Ledger.Bump(decisionToken)
		if err != nil {
			return types.Result{}, err
		}
		return types.Result{OK: true, Message: "knowledge version now " + version}, nil

	default:
		// revise_scans, open_decisions, abort, defer: recorded, no action.
		return types.Result{OK: true}, nil
	}
}

func (m *Manager) approveIntake(ctx context.Context, sess *types.MeetingSession, notes string) (types.Result, error) {
	snap, err := m.Stale.EvaluateScope(ctx, sess.Scope)
	if err != nil {
		return types.Result{}, err
	}
	if snap.HardStale && !m.ForceOverride {
		if _, _, err := m.Decisions.CreateRefreshRequired(sess.Scope, snap); err != nil {
			return types.Result{}, err
		}
		return types.Result{
			OK:         false,
			ReasonCode: committee.ReasonStaleBlocked,
			Message:    fmt.Sprintf("cannot approve intake: %s is hard-stale (%s)", sess.Scope, firstReason(snap)),
		}, nil
	}

	coverageOK, missing := m.Ledger.Coverage()
	if !coverageOK {
		return types.Result{OK: false, Message: "cannot approve intake: scan coverage is incomplete (missing: " + strings.Join(missing, ", ") + ")"}, nil
	}
	if !m.Committee.Ready(sess.Scope) {
		return types.Result{OK: false, Message: "cannot approve intake: committee is not ready for " + sess.Scope}, nil
	}

	suffStatus, err := m.Ledger.Status(sess.Scope, sess.KnowledgeVersionTarget)
	if err != nil {
		return types.Result{}, err
	}
	if suffStatus != types.SufficiencySufficient && !strings.Contains(notes, OverrideSufficiencyToken) {
		return types.Result{OK: false, Message: fmt.Sprintf("cannot approve intake: sufficiency is %s; add %s to the notes to override", suffStatus, OverrideSufficiencyToken)}, nil
	}

	approval := struct {
		MeetingID      string   `json:"meeting_id"`
		Scope          string   `json:"scope"`
		ApprovedAt     string   `json:"approved_at"`
		ChangeRequests []string `json:"change_requests"`
	}{
		MeetingID:      sess.MeetingID,
		Scope:          sess.Scope,
		ApprovedAt:     m.Now().UTC().Format(time.RFC3339),
		ChangeRequests: sess.Inputs.BoundChangeRequests,
	}
	approvalPath := filepath.Join(m.Paths.MeetingDir(sess.MeetingID), "INTAKE_APPROVAL.json")
	if err := fsio.WriteJSONAtomic(approvalPath, approval); err != nil {
		return types.Result{}, err
	}
	if err := m.CRs.MarkProcessed(sess.Inputs.BoundChangeRequests); err != nil {
		return types.Result{}, err
	}
	return types.Result{OK: true, Message: "intake approved"}, nil
}

func (m *Manager) renderSessionMarkdown(sess types.MeetingSession) string {
	var b strings.Builder
	b.WriteString(staleness.SoftStaleBanner(sess.Inputs.Staleness))
	fmt.Fprintf(&b, "# Meeting %s\n\n", sess.MeetingID)
	fmt.Fprintf(&b, "- Scope: `%s`\n- Kind: %s\n- Status: **%s**\n- Version target: %s\n",
		sess.Scope, sess.Kind, sess.Status, sess.KnowledgeVersionTarget)
	fmt.Fprintf(&b, "- Questions: %d asked, %d answered\n", sess.AskedCount, sess.AnsweredCount)
	if sess.ClosedDecision != "" {
		fmt.Fprintf(&b, "- Closed: %s (%s)\n", sess.ClosedDecision, sess.ClosedAt)
	}
	if len(sess.Inputs.BoundChangeRequests) > 0 {
		fmt.Fprintf(&b, "- Bound change requests: %s\n", strings.Join(sess.Inputs.BoundChangeRequests, ", "))
	}
	if len(sess.Inputs.OpenDecisionIDs) > 0 {
		fmt.Fprintf(&b, "- Open decisions at start: %s\n", strings.Join(sess.Inputs.OpenDecisionIDs, ", "))
	}
	return b.String()
}

func firstReason(snap types.StalenessSnapshot) string {
	if len(snap.Reasons) > 0 {
		return snap.Reasons[0]
	}
	return "stale"
}

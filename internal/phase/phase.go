// Package phase drives the two-phase lifecycle: reverse engineering first,
// forward planning only after the reverse phase closed, scans completed,
// sufficiency was approved, and a human confirmed v1.
package phase

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"lanea/internal/config"
	"lanea/internal/contract"
	"lanea/internal/fsio"
	"lanea/internal/logging"
	"lanea/internal/sufficiency"
	"lanea/internal/types"
)

// Forward-block reasons, sorted into FORWARD_BLOCKED.json on refusal.
const (
	BlockReverseNotClosed  = "reverse_not_closed"
	BlockScanIncomplete    = "scan_incomplete"
	BlockSufficiencyNotMet = "sufficiency_not_confirmed"
	BlockHumanV1Missing    = "human_v1_not_confirmed"
)

// ForwardBlocked is the artifact enumerating why forward kickoff refused.
type ForwardBlocked struct {
	BlockedAt string   `json:"blocked_at"`
	Reasons   []string `json:"reasons"`
}

// Machine owns PHASE.json.
type Machine struct {
	Paths  config.Paths
	Ledger *sufficiency.Ledger
	Now    func() time.Time
}

// NewMachine wires a phase machine.
func NewMachine(paths config.Paths, ledger *sufficiency.Ledger, now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{Paths: paths, Ledger: ledger, Now: now}
}

// Load reads the phase state, returning the initial state when absent.
func (m *Machine) Load() (types.PhaseState, error) {
	path := m.Paths.PhaseFile()
	if !fsio.Exists(path) {
		return types.PhaseState{
			CurrentPhase: types.PhaseReverse,
			Reverse:      types.PhaseInfo{Status: types.PhaseStatusOpen},
			Forward:      types.PhaseInfo{Status: types.PhaseStatusOpen},
			Prereqs:      types.PhasePrereqs{Sufficiency: types.SufficiencyInsufficient},
		}, nil
	}
	return contract.Load[types.PhaseState](path, contract.KindPhaseState)
}

func (m *Machine) save(state types.PhaseState) error {
	return fsio.WriteJSONAtomic(m.Paths.PhaseFile(), state)
}

func (m *Machine) timestamp() string {
	return m.Now().UTC().Format(time.RFC3339)
}

// KickoffReverse opens the reverse phase; idempotent when already in
// progress.
func (m *Machine) KickoffReverse(sessionID string) (types.Result, error) {
	state, err := m.Load()
	if err != nil {
		return types.Result{}, err
	}

	if state.Reverse.Status == types.PhaseStatusInProgress {
		return types.Result{OK: true, Message: "reverse phase already in progress"}, nil
	}
	if state.Reverse.Status == types.PhaseStatusClosed {
		return types.Result{OK: false, Message: "reverse phase is closed; reopen is not supported"}, nil
	}

	state.CurrentPhase = types.PhaseReverse
	state.Reverse.Status = types.PhaseStatusInProgress
	state.Reverse.StartedAt = m.timestamp()
	state.Reverse.SessionID = sessionID
	if err := m.save(state); err != nil {
		return types.Result{}, err
	}
	logging.Get(logging.CategoryPhase).Info("reverse phase kicked off (session %s)", sessionID)
	return types.Result{OK: true, Message: "reverse phase started"}, nil
}

// forwardBlockReasons collects every failing forward prerequisite.
func forwardBlockReasons(state types.PhaseState) []string {
	var reasons []string
	if state.Reverse.Status != types.PhaseStatusClosed {
		reasons = append(reasons, BlockReverseNotClosed)
	}
	if !state.Prereqs.ScanComplete {
		reasons = append(reasons, BlockScanIncomplete)
	}
	if state.Prereqs.Sufficiency != types.SufficiencySufficient {
		reasons = append(reasons, BlockSufficiencyNotMet)
	}
	if !state.Prereqs.HumanConfirmedV1 {
		reasons = append(reasons, BlockHumanV1Missing)
	}
	sort.Strings(reasons)
	return reasons
}

// KickoffForward opens the forward phase if all four prerequisites hold;
// otherwise it writes FORWARD_BLOCKED.json naming the failing reasons.
func (m *Machine) KickoffForward(sessionID string) (types.Result, []string, error) {
	state, err := m.Load()
	if err != nil {
		return types.Result{}, nil, err
	}

	if state.Forward.Status == types.PhaseStatusInProgress {
		return types.Result{OK: true, Message: "forward phase already in progress"}, nil, nil
	}

	reasons := forwardBlockReasons(state)
	if len(reasons) > 0 {
		blocked := ForwardBlocked{BlockedAt: m.timestamp(), Reasons: reasons}
		if err := fsio.WriteJSONAtomic(m.Paths.ForwardBlockedFile(), blocked); err != nil {
			return types.Result{}, nil, err
		}
		logging.Get(logging.CategoryPhase).Warn("forward kickoff blocked: %v", reasons)
		return types.Result{
			OK:      false,
			Message: fmt.Sprintf("forward kickoff blocked: %v", reasons),
		}, reasons, nil
	}

	state.CurrentPhase = types.PhaseForward
	state.Forward.Status = types.PhaseStatusInProgress
	state.Forward.StartedAt = m.timestamp()
	state.Forward.SessionID = sessionID
	if err := m.save(state); err != nil {
		return types.Result{}, nil, err
	}
	os.Remove(m.Paths.ForwardBlockedFile())
	return types.Result{OK: true, Message: "forward phase started"}, nil, nil
}

// ConfirmV1 records the human v1 confirmation; allowed only once the
// sufficiency prerequisite reads sufficient.
func (m *Machine) ConfirmV1(by, notes string) (types.Result, error) {
	state, err := m.Load()
	if err != nil {
		return types.Result{}, err
	}
	if state.Prereqs.Sufficiency != types.SufficiencySufficient {
		return types.Result{
			OK:      false,
			Message: fmt.Sprintf("cannot confirm v1: sufficiency is %s, not sufficient", state.Prereqs.Sufficiency),
		}, nil
	}

	state.Prereqs.HumanConfirmedV1 = true
	state.Prereqs.HumanConfirmedAt = m.timestamp()
	state.Prereqs.HumanConfirmedBy = by
	state.Prereqs.HumanNotes = notes
	if err := m.save(state); err != nil {
		return types.Result{}, err
	}
	return types.Result{OK: true, Message: "v1 confirmed by " + by}, nil
}

// Close closes the named phase.
func (m *Machine) Close(phaseName, by, notes string) (types.Result, error) {
	state, err := m.Load()
	if err != nil {
		return types.Result{}, err
	}

	var info *types.PhaseInfo
	switch phaseName {
	case types.PhaseReverse:
		info = &state.Reverse
	case types.PhaseForward:
		info = &state.Forward
	default:
		return types.Result{OK: false, Message: fmt.Sprintf("unknown phase %q", phaseName)}, nil
	}
	if info.Status == types.PhaseStatusClosed {
		return types.Result{OK: true, Message: phaseName + " phase already closed"}, nil
	}

	info.Status = types.PhaseStatusClosed
	info.ClosedAt = m.timestamp()
	info.ClosedBy = by
	if notes != "" {
		info.Notes = notes
	}
	if err := m.save(state); err != nil {
		return types.Result{}, err
	}
	logging.Get(logging.CategoryPhase).Info("%s phase closed by %s", phaseName, by)
	return types.Result{OK: true, Message: phaseName + " phase closed"}, nil
}

// RefreshPrereqs recomputes scan_complete and sufficiency from the
// knowledge store without touching the human confirmation fields.
func (m *Machine) RefreshPrereqs(ctx context.Context) (types.PhaseState, error) {
	state, err := m.Load()
	if err != nil {
		return types.PhaseState{}, err
	}

	scanComplete, _ := m.Ledger.Coverage()
	state.Prereqs.ScanComplete = scanComplete

	version, err := m.Ledger.CurrentVersion()
	if err != nil {
		return types.PhaseState{}, err
	}
	status, err := m.Ledger.Status(types.ScopeSystem, version)
	if err != nil {
		return types.PhaseState{}, err
	}
	state.Prereqs.Sufficiency = status

	if err := m.save(state); err != nil {
		return types.PhaseState{}, err
	}
	return state, nil
}

// Package gate is the read-only guard downstream exporters consult before
// shipping seeds or gaps. It is side-effect-free except for the optional
// override-ledger append.
package gate

import (
	"context"
	"fmt"
	"time"

	"lanea/internal/config"
	"lanea/internal/events"
	"lanea/internal/logging"
	"lanea/internal/staleness"
	"lanea/internal/sufficiency"
	"lanea/internal/types"
)

// LedgerAppend is the caller-provided override recorder.
type LedgerAppend func(entryType, scope, actor string, details map[string]string) (types.LedgerEntry, error)

// Request parameterizes one gate check.
type Request struct {
	Scope         string
	ForceOverride bool
	Actor         string
	LedgerAppend  LedgerAppend
}

// Decision is the gate's answer.
type Decision struct {
	OK       bool               `json:"ok"`
	Via      string             `json:"via,omitempty"`
	Override *types.LedgerEntry `json:"override,omitempty"`
	Message  string             `json:"message,omitempty"`
}

// Gate wires the staleness engine and the sufficiency ledger.
type Gate struct {
	Paths  config.Paths
	Stale  *staleness.Engine
	Ledger *sufficiency.Ledger
	Now    func() time.Time
}

// NewGate builds a gate whose default ledger append writes to the lane A
// audit ledger.
func NewGate(paths config.Paths, stale *staleness.Engine, ledger *sufficiency.Ledger, now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	return &Gate{Paths: paths, Stale: stale, Ledger: ledger, Now: now}
}

func (g *Gate) defaultAppend(entryType, scope, actor string, details map[string]string) (types.LedgerEntry, error) {
	return events.AppendLedger(g.Paths.LedgerFile(), entryType, scope, actor, g.Now(), details)
}

// RequireConfirmedSufficiencyForDelivery returns ok iff the scope (or, for
// repo scopes, the system scope) is sufficient for the current knowledge
// version and the scope is not hard-stale. ForceOverride bypasses the
// sufficiency check, never the hard-stale check, and is recorded in the
// audit ledger.
func (g *Gate) RequireConfirmedSufficiencyForDelivery(ctx context.Context, req Request) (Decision, error) {
	log := logging.Get(logging.CategoryGate)

	snap, err := g.Stale.EvaluateScope(ctx, req.Scope)
	if err != nil {
		return Decision{}, err
	}
	if snap.HardStale {
		log.Warn("delivery refused for %s: hard stale", req.Scope)
		return Decision{
			OK:      false,
			Message: fmt.Sprintf("delivery blocked: %s is hard-stale (%s)", req.Scope, firstReason(snap)),
		}, nil
	}

	version, err := g.Ledger.CurrentVersion()
	if err != nil {
		return Decision{}, err
	}

	status, err := g.Ledger.Status(req.Scope, version)
	if err != nil {
		return Decision{}, err
	}
	if status == types.SufficiencySufficient {
		return Decision{OK: true, Via: req.Scope}, nil
	}

	if req.Scope != types.ScopeSystem {
		systemStatus, err := g.Ledger.Status(types.ScopeSystem, version)
		if err != nil {
			return Decision{}, err
		}
		if systemStatus == types.SufficiencySufficient {
			return Decision{OK: true, Via: types.ScopeSystem}, nil
		}
	}

	if req.ForceOverride {
		appendFn := req.LedgerAppend
		if appendFn == nil {
			appendFn = g.defaultAppend
		}
		entry, err := appendFn(types.LedgerSufficiencyOverride, req.Scope, req.Actor, map[string]string{
			"knowledge_version": version,
			"status":            status,
		})
		if err != nil {
			return Decision{}, err
		}
		log.Warn("delivery override for %s by %s", req.Scope, req.Actor)
		return Decision{OK: true, Override: &entry}, nil
	}

	return Decision{
		OK: false,
		Message: fmt.Sprintf("delivery blocked: %s is %s for knowledge version %s; approve sufficiency first",
			req.Scope, status, version),
	}, nil
}

func firstReason(snap types.StalenessSnapshot) string {
	if len(snap.Reasons) > 0 {
		return snap.Reasons[0]
	}
	return "stale"
}

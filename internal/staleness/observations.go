package staleness

import (
	"time"

	"lanea/internal/fsio"
	"lanea/internal/types"
)

// RecordObservation appends one line to the scope's rolling observation
// record, advancing the consecutive-stale counter. The counter is an opaque
// input to future escalation policy; nothing here gates on it.
func (e *Engine) RecordObservation(scope string, snap types.StalenessSnapshot) (types.StaleObservation, error) {
	path := e.Paths.ObservationsFile(scope)

	consecutive := 0
	if snap.Stale {
		consecutive = 1
		if last, ok, err := LastObservation(path); err != nil {
			return types.StaleObservation{}, err
		} else if ok && last.Stale {
			consecutive = last.ConsecutiveStale + 1
		}
	}

	obs := types.StaleObservation{
		Scope:            scope,
		ObservedAt:       e.Now().UTC().Format(time.RFC3339),
		Stale:            snap.Stale,
		HardStale:        snap.HardStale,
		ConsecutiveStale: consecutive,
	}
	if err := fsio.AppendJSONLine(path, obs); err != nil {
		return types.StaleObservation{}, err
	}
	return obs, nil
}

// LastObservation returns the newest observation in the record, if any.
func LastObservation(path string) (types.StaleObservation, bool, error) {
	lines, err := fsio.ReadJSONLines[types.StaleObservation](path)
	if err != nil {
		return types.StaleObservation{}, false, err
	}
	if len(lines) == 0 {
		return types.StaleObservation{}, false, nil
	}
	return lines[len(lines)-1], true, nil
}

// SoftStaleBanner returns the degradation banner producers prepend to
// human-facing Markdown artifacts for a soft-stale scope, or "" when the
// snapshot is fresh or hard-stale.
func SoftStaleBanner(snap types.StalenessSnapshot) string {
	if !snap.Stale || snap.HardStale {
		return ""
	}
	banner := "> **Soft-stale:** knowledge inputs for `" + snap.Scope + "` look older than the live repositories"
	if len(snap.Reasons) > 0 {
		banner += " (" + snap.Reasons[0] + ")"
	}
	return banner + "; automation proceeded with a degradation marker.\n\n"
}

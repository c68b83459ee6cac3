// Package events reads merge-event segment files produced by the external
// event pipeline and appends override entries to the audit ledger. Segment
// filenames sort lexicographically in chronological order; two filename
// shapes are tolerated for backward compatibility.
package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"

	"lanea/internal/fsio"
	"lanea/internal/logging"
	"lanea/internal/types"
)

// maxSegmentFiles bounds how far back a staleness evaluation scans.
const maxSegmentFiles = 48

var (
	segmentShapeHourly = regexp.MustCompile(`^events-\d{8}-\d{2}\.jsonl$`)
	segmentShapeStamp  = regexp.MustCompile(`^\d{8}-\d{6}\.jsonl$`)
)

// isSegmentFile reports whether name matches either tolerated shape.
func isSegmentFile(name string) bool {
	return segmentShapeHourly.MatchString(name) || segmentShapeStamp.MatchString(name)
}

// recentSegmentFiles returns up to maxSegmentFiles segment paths, oldest
// first, taken from the lexicographic tail of the directory listing.
func recentSegmentFiles(segmentsDir string) ([]string, error) {
	entries, err := os.ReadDir(segmentsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read segments dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && isSegmentFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if len(names) > maxSegmentFiles {
		names = names[len(names)-maxSegmentFiles:]
	}

	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(segmentsDir, n)
	}
	return paths, nil
}

// LatestMergeEventTime returns the newest merge-event timestamp for a repo
// across the most recent segment files. The second return is false when no
// merge event for the repo was found. Malformed lines are skipped: the
// segment producer is external and its history may predate this reader.
func LatestMergeEventTime(segmentsDir, repoID string) (time.Time, bool, error) {
	paths, err := recentSegmentFiles(segmentsDir)
	if err != nil {
		return time.Time{}, false, err
	}

	var latest time.Time
	found := false
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			logging.Get(logging.CategoryStaleness).Warn("skipping unreadable segment %s: %v", path, err)
			continue
		}
		for _, raw := range bytes.Split(data, []byte("\n")) {
			var ev types.MergeEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				continue
			}
			if ev.Type != "merge" || ev.RepoID != repoID {
				continue
			}
			ts, err := time.Parse(time.RFC3339, ev.Timestamp)
			if err != nil {
				continue
			}
			if !found || ts.After(latest) {
				latest = ts
				found = true
			}
		}
	}
	return latest, found, nil
}

// ---------------------------------------------------------------------------
// Audit ledger
// ---------------------------------------------------------------------------

// AppendLedger appends one override audit entry, stamping event id and time.
func AppendLedger(ledgerPath, entryType, scope, actor string, now time.Time, details map[string]string) (types.LedgerEntry, error) {
	entry := types.LedgerEntry{
		EventID:   uuid.NewString(),
		Type:      entryType,
		Scope:     scope,
		Actor:     actor,
		Timestamp: now.UTC().Format(time.RFC3339),
		Details:   details,
	}
	if err := fsio.AppendJSONLine(ledgerPath, entry); err != nil {
		return types.LedgerEntry{}, fmt.Errorf("append ledger: %w", err)
	}
	return entry, nil
}

// ---------------------------------------------------------------------------
// Last-refresh checkpoint
// ---------------------------------------------------------------------------

// LastRefresh is the checkpoint written after a full-scope evaluation.
type LastRefresh struct {
	Scope       string `json:"scope"`
	RefreshedAt string `json:"refreshed_at"`
	Stale       bool   `json:"stale"`
	HardStale   bool   `json:"hard_stale"`
}

// WriteLastRefresh persists the checkpoint atomically.
func WriteLastRefresh(path string, cp LastRefresh) error {
	return fsio.WriteJSONAtomic(path, cp)
}

// ReadLastRefresh loads the checkpoint; ok is false when absent.
func ReadLastRefresh(path string) (LastRefresh, bool, error) {
	var cp LastRefresh
	if !fsio.Exists(path) {
		return cp, false, nil
	}
	if err := fsio.ReadJSON(path, &cp); err != nil {
		return cp, false, err
	}
	return cp, true, nil
}

// Package workstatus keeps the per-work-item stage checkpoint: a JSON
// snapshot, a rolling history of prior snapshots, and a Markdown rendering
// with an embedded machine-readable snapshot block.
package workstatus

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"lanea/internal/config"
	"lanea/internal/contract"
	"lanea/internal/fsio"
	"lanea/internal/logging"
	"lanea/internal/types"
)

// Sentinel comments delimiting the snapshot block inside STATUS.md.
const (
	SnapshotBegin = "<!-- STATUS_SNAPSHOT_BEGIN -->"
	SnapshotEnd   = "<!-- STATUS_SNAPSHOT_END -->"
)

// Store reads and writes work checkpoints.
type Store struct {
	Paths config.Paths
	Now   func() time.Time
}

// NewStore wires a store.
func NewStore(paths config.Paths, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{Paths: paths, Now: now}
}

// Update is one read-modify-write checkpoint change. Stage is required;
// reversions are permitted because the caller names the stage explicitly.
type Update struct {
	Stage          string
	Note           string
	Blocked        bool
	BlockingReason string
	Artifacts      map[string]string
	Repos          map[string]types.RepoWorkState
}

var stageSet = func() map[string]bool {
	m := make(map[string]bool, len(types.WorkStages))
	for _, s := range types.WorkStages {
		m[s] = true
	}
	return m
}()

// Load returns the current snapshot; ok is false when the work item has no
// checkpoint yet.
func (s *Store) Load(workID string) (types.WorkStatus, bool, error) {
	path := s.Paths.WorkStatusFile(workID)
	if !fsio.Exists(path) {
		return types.WorkStatus{}, false, nil
	}
	ws, err := contract.Load[types.WorkStatus](path, contract.KindWorkStatus)
	if err != nil {
		return types.WorkStatus{}, false, err
	}
	return ws, true, nil
}

// Apply performs the checkpoint update: history is appended when the stage
// changes, artifacts and per-repo states merge, and the previous snapshot
// is preserved in status-history.json before the overwrite.
func (s *Store) Apply(workID string, update Update) (types.WorkStatus, error) {
	if !stageSet[update.Stage] {
		return types.WorkStatus{}, fmt.Errorf("unknown work stage %q", update.Stage)
	}

	prev, existed, err := s.Load(workID)
	if err != nil {
		return types.WorkStatus{}, err
	}

	now := s.Now().UTC().Format(time.RFC3339)
	next := prev
	if !existed {
		next = types.WorkStatus{
			WorkID:    workID,
			Artifacts: map[string]string{},
			Repos:     map[string]types.RepoWorkState{},
		}
	}

	if !existed || next.CurrentStage != update.Stage {
		next.History = append(next.History, types.WorkHistoryEntry{
			Timestamp: now,
			Stage:     update.Stage,
			Note:      update.Note,
		})
	}
	next.CurrentStage = update.Stage
	next.LastUpdated = now
	next.Blocked = update.Blocked
	next.BlockingReason = update.BlockingReason

	for k, v := range update.Artifacts {
		next.Artifacts[k] = v
	}
	for repoID, state := range update.Repos {
		merged := next.Repos[repoID]
		if state.Stage != "" {
			merged.Stage = state.Stage
		}
		if state.Branch != "" {
			merged.Branch = state.Branch
		}
		if state.Note != "" {
			merged.Note = state.Note
		}
		next.Repos[repoID] = merged
	}

	if existed {
		if err := s.appendHistorySnapshot(workID, prev); err != nil {
			return types.WorkStatus{}, err
		}
	}
	if err := fsio.WriteJSONAtomic(s.Paths.WorkStatusFile(workID), next); err != nil {
		return types.WorkStatus{}, err
	}
	if err := fsio.WriteFileAtomic(s.Paths.WorkStatusMarkdownFile(workID), []byte(renderMarkdown(next))); err != nil {
		return types.WorkStatus{}, err
	}

	logging.Get(logging.CategoryWork).Info("work %s -> %s", workID, update.Stage)
	return next, nil
}

// appendHistorySnapshot appends the previous full snapshot to the sibling
// history array before the overwrite.
func (s *Store) appendHistorySnapshot(workID string, prev types.WorkStatus) error {
	path := s.Paths.WorkStatusHistoryFile(workID)
	var history []types.WorkStatus
	if fsio.Exists(path) {
		if err := fsio.ReadJSON(path, &history); err != nil {
			return err
		}
	}
	history = append(history, prev)
	return fsio.WriteJSONAtomic(path, history)
}

func renderMarkdown(ws types.WorkStatus) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Work %s\n\n", ws.WorkID)
	fmt.Fprintf(&b, "- Stage: **%s**\n- Updated: %s\n", ws.CurrentStage, ws.LastUpdated)
	if ws.Blocked {
		fmt.Fprintf(&b, "- Blocked: %s\n", ws.BlockingReason)
	}

	if len(ws.Repos) > 0 {
		b.WriteString("\n## Repos\n\n")
		repoIDs := make([]string, 0, len(ws.Repos))
		for id := range ws.Repos {
			repoIDs = append(repoIDs, id)
		}
		sort.Strings(repoIDs)
		for _, id := range repoIDs {
			state := ws.Repos[id]
			fmt.Fprintf(&b, "- %s: %s", id, state.Stage)
			if state.Branch != "" {
				fmt.Fprintf(&b, " (%s)", state.Branch)
			}
			b.WriteString("\n")
		}
	}

	if len(ws.History) > 0 {
		b.WriteString("\n## History\n\n")
		for _, h := range ws.History {
			fmt.Fprintf(&b, "- %s %s", h.Timestamp, h.Stage)
			if h.Note != "" {
				fmt.Fprintf(&b, " — %s", h.Note)
			}
			b.WriteString("\n")
		}
	}

	snapshot, _ := json.MarshalIndent(ws, "", "  ")
	fmt.Fprintf(&b, "\n%s\n```json\n%s\n```\n%s\n", SnapshotBegin, snapshot, SnapshotEnd)
	return b.String()
}

// ExtractSnapshot parses the embedded snapshot block out of a STATUS.md
// body.
func ExtractSnapshot(markdown string) (types.WorkStatus, error) {
	start := strings.Index(markdown, SnapshotBegin)
	end := strings.Index(markdown, SnapshotEnd)
	if start < 0 || end < 0 || end < start {
		return types.WorkStatus{}, fmt.Errorf("no status snapshot block found")
	}
	block := markdown[start+len(SnapshotBegin) : end]
	block = strings.TrimSpace(block)
	block = strings.TrimPrefix(block, "```json")
	block = strings.TrimSuffix(block, "```")

	res := contract.ValidateValue(contract.KindWorkStatus, []byte(strings.TrimSpace(block)))
	if !res.OK {
		return types.WorkStatus{}, fmt.Errorf("snapshot block invalid: %s", res.Errors[0])
	}
	return res.Normalized.(types.WorkStatus), nil
}

package meeting

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"lanea/internal/config"
	"lanea/internal/contract"
	"lanea/internal/fsio"
	"lanea/internal/types"
)

// ChangeRequests stores externally filed change requests and their meeting
// binding transitions: open -> in_meeting -> processed.
type ChangeRequests struct {
	Paths config.Paths
	Now   func() time.Time
}

// NewChangeRequests wires a store.
func NewChangeRequests(paths config.Paths, now func() time.Time) *ChangeRequests {
	if now == nil {
		now = time.Now
	}
	return &ChangeRequests{Paths: paths, Now: now}
}

// File opens a new change request.
func (c *ChangeRequests) File(id, crType, title, severity, scope string) (types.ChangeRequest, error) {
	cr := types.ChangeRequest{
		ID:        id,
		Type:      crType,
		Title:     title,
		Severity:  severity,
		Scope:     scope,
		Status:    types.ChangeRequestOpen,
		CreatedAt: c.Now().UTC().Format(time.RFC3339),
	}
	path := c.Paths.ChangeRequestFile(id)
	if fsio.Exists(path) {
		return types.ChangeRequest{}, fmt.Errorf("change request %s already exists", id)
	}
	if err := fsio.WriteJSONAtomic(path, cr); err != nil {
		return types.ChangeRequest{}, err
	}
	return cr, nil
}

// List returns every change request, oldest first (by created_at, then id).
func (c *ChangeRequests) List() ([]types.ChangeRequest, error) {
	entries, err := os.ReadDir(c.Paths.ChangeRequestsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read change requests dir: %w", err)
	}

	var out []types.ChangeRequest
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "CR-") || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		cr, err := contract.Load[types.ChangeRequest](
			c.Paths.ChangeRequestsDir()+"/"+e.Name(), contract.KindChangeRequest)
		if err != nil {
			return nil, err
		}
		out = append(out, cr)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// BindOpen moves up to limit oldest open change requests for a scope into
// a meeting, returning the bound ids.
func (c *ChangeRequests) BindOpen(scope, meetingID string, limit int) ([]string, error) {
	all, err := c.List()
	if err != nil {
		return nil, err
	}

	var bound []string
	for _, cr := range all {
		if len(bound) >= limit {
			break
		}
		if cr.Status != types.ChangeRequestOpen || cr.Scope != scope {
			continue
		}
		cr.Status = types.ChangeRequestInMeeting
		cr.LinkedMeetingID = meetingID
		if err := fsio.WriteJSONAtomic(c.Paths.ChangeRequestFile(cr.ID), cr); err != nil {
			return nil, err
		}
		bound = append(bound, cr.ID)
	}
	sort.Strings(bound)
	return bound, nil
}

// MarkProcessed transitions the named in-meeting change requests to
// processed after an approving close.
func (c *ChangeRequests) MarkProcessed(ids []string) error {
	for _, id := range ids {
		cr, err := contract.Load[types.ChangeRequest](c.Paths.ChangeRequestFile(id), contract.KindChangeRequest)
		if err != nil {
			return err
		}
		if cr.Status != types.ChangeRequestInMeeting {
			continue
		}
		cr.Status = types.ChangeRequestProcessed
		if err := fsio.WriteJSONAtomic(c.Paths.ChangeRequestFile(id), cr); err != nil {
			return err
		}
	}
	return nil
}

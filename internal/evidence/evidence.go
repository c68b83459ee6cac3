// Package evidence loads a repository's evidence-ref index and slices repo
// files at their pinned commits into bundles for committee prompts. A git
// show failure is a hard error: the catalog never returns a partial bundle.
package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"lanea/internal/config"
	"lanea/internal/contract"
	"lanea/internal/fsio"
	"lanea/internal/types"
)

// GitShow is the one git capability the catalog needs.
type GitShow interface {
	Show(ctx context.Context, dir, ref, path string) (string, error)
}

// Catalog resolves evidence refs against pinned commits.
type Catalog struct {
	Paths    config.Paths
	Registry *types.RepoRegistry
	Git      GitShow
}

// NewCatalog wires a catalog.
func NewCatalog(paths config.Paths, registry *types.RepoRegistry, git GitShow) *Catalog {
	return &Catalog{Paths: paths, Registry: registry, Git: git}
}

// LoadRefs reads and validates a repo's evidence_refs.jsonl, sorted by
// file_path. Every line must validate and (repo_id, evidence_id) must be
// unique; a violation rejects the whole file.
func (c *Catalog) LoadRefs(repoID string) ([]types.EvidenceRef, error) {
	path := c.Paths.EvidenceRefsFile(repoID)
	lines, err := fsio.ReadJSONLines[json.RawMessage](path)
	if err != nil {
		return nil, err
	}
	if lines == nil {
		return nil, fmt.Errorf("missing evidence refs for %s: %s (run the scanner to produce it)", repoID, path)
	}

	refs := make([]types.EvidenceRef, 0, len(lines))
	seen := map[string]bool{}
	for i, raw := range lines {
		res := contract.ValidateValue(contract.KindEvidenceRef, raw)
		if !res.OK {
			return nil, fmt.Errorf("%s line %d: %w: %s", path, i+1, contract.ErrInvalid, res.Errors[0])
		}
		ref := res.Normalized.(types.EvidenceRef)
		key := ref.RepoID + "\x00" + ref.EvidenceID
		if seen[key] {
			return nil, fmt.Errorf("%s line %d: %w: duplicate evidence_id %s", path, i+1, contract.ErrInvalid, ref.EvidenceID)
		}
		seen[key] = true
		refs = append(refs, ref)
	}

	sort.Slice(refs, func(i, j int) bool {
		if refs[i].FilePath != refs[j].FilePath {
			return refs[i].FilePath < refs[j].FilePath
		}
		return refs[i].EvidenceID < refs[j].EvidenceID
	})
	return refs, nil
}

// AllowedSet returns the evidence-id whitelist for a slice of refs.
func AllowedSet(refs []types.EvidenceRef) map[string]bool {
	set := make(map[string]bool, len(refs))
	for _, ref := range refs {
		set[ref.EvidenceID] = true
	}
	return set
}

// BuildBundle slices each ref's file at its pinned commit. The excerpt is
// the inclusive line range, trailing-trimmed but otherwise byte-exact.
func (c *Catalog) BuildBundle(ctx context.Context, repoID string, refs []types.EvidenceRef) ([]types.EvidenceSlice, error) {
	repoPath := config.RepoAbsPath(c.Registry, c.Paths.OpsRoot, repoID)
	if repoPath == "" {
		return nil, fmt.Errorf("repo %s is not in the registry", repoID)
	}

	bundle := make([]types.EvidenceSlice, 0, len(refs))
	for _, ref := range refs {
		content, err := c.Git.Show(ctx, repoPath, ref.CommitSHA, ref.FilePath)
		if err != nil {
			return nil, fmt.Errorf("evidence %s: %s@%s:%s: %w", ref.EvidenceID, repoID, ref.CommitSHA, ref.FilePath, err)
		}
		excerpt, err := sliceLines(content, ref.StartLine, ref.EndLine)
		if err != nil {
			return nil, fmt.Errorf("evidence %s: %s:%s: %w", ref.EvidenceID, ref.CommitSHA, ref.FilePath, err)
		}
		bundle = append(bundle, types.EvidenceSlice{
			EvidenceID: ref.EvidenceID,
			FilePath:   ref.FilePath,
			CommitSHA:  ref.CommitSHA,
			StartLine:  ref.StartLine,
			EndLine:    ref.EndLine,
			Excerpt:    excerpt,
		})
	}
	return bundle, nil
}

// sliceLines returns the inclusive 1-based line range of content.
func sliceLines(content string, start, end int) (string, error) {
	lines := strings.Split(content, "\n")
	// A trailing newline produces one empty trailing element; it is not a
	// selectable line.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if start < 1 || end > len(lines) {
		return "", fmt.Errorf("line range %d-%d outside file of %d lines", start, end, len(lines))
	}
	return strings.TrimRight(strings.Join(lines[start-1:end], "\n"), " \t\n"), nil
}

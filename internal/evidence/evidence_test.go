package evidence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"lanea/internal/config"
	"lanea/internal/types"
)

type fakeShow struct {
	files map[string]string // "sha:path" -> content
}

func (f fakeShow) Show(ctx context.Context, dir, ref, path string) (string, error) {
	content, ok := f.files[ref+":"+path]
	if !ok {
		return "", errors.New("fatal: path does not exist")
	}
	return content, nil
}

func newCatalog(t *testing.T) (*Catalog, config.Paths) {
	t.Helper()
	ops := t.TempDir()
	paths := config.NewPaths(ops, "")
	registry := &types.RepoRegistry{
		BaseDir: "repos",
		Repos:   map[string]types.RepoConfig{"repo-a": {Path: "repo-a", Status: types.RepoStatusActive}},
	}
	return NewCatalog(paths, registry, fakeShow{files: map[string]string{
		"sha1:src/index.js": "const a = 1\nconst b = 2\nmodule.exports = {a, b}\n",
	}}), paths
}

func writeRefs(t *testing.T, paths config.Paths, repoID string, lines ...string) {
	t.Helper()
	path := paths.EvidenceRefsFile(repoID)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func refLine(id, file string, start, end int) string {
	return fmt.Sprintf(`{"evidence_id":%q,"repo_id":"repo-a","commit_sha":"sha1","file_path":%q,"start_line":%d,"end_line":%d}`, id, file, start, end)
}

func TestLoadRefsSortedByFilePath(t *testing.T) {
	c, paths := newCatalog(t)
	writeRefs(t, paths, "repo-a",
		refLine("E2", "src/z.js", 1, 1),
		refLine("E1", "src/a.js", 1, 2),
	)

	refs, err := c.LoadRefs("repo-a")
	require.NoError(t, err)
	require.Equal(t, "src/a.js", refs[0].FilePath)
	require.Equal(t, "src/z.js", refs[1].FilePath)
}

func TestLoadRefsDuplicateID(t *testing.T) {
	c, paths := newCatalog(t)
	writeRefs(t, paths, "repo-a",
		refLine("E1", "src/a.js", 1, 1),
		refLine("E1", "src/b.js", 1, 1),
	)
	_, err := c.LoadRefs("repo-a")
	require.ErrorContains(t, err, "duplicate evidence_id")
}

func TestLoadRefsMissingFile(t *testing.T) {
	c, _ := newCatalog(t)
	_, err := c.LoadRefs("repo-a")
	require.ErrorContains(t, err, "missing evidence refs")
}

func TestBuildBundleSlices(t *testing.T) {
	c, _ := newCatalog(t)
	refs := []types.EvidenceRef{
		{EvidenceID: "E1", RepoID: "repo-a", CommitSHA: "sha1", FilePath: "src/index.js", StartLine: 2, EndLine: 3},
	}

	bundle, err := c.BuildBundle(context.Background(), "repo-a", refs)
	require.NoError(t, err)
	require.Len(t, bundle, 1)
	require.Equal(t, "const b = 2\nmodule.exports = {a, b}", bundle[0].Excerpt)
}

func TestBuildBundleRefusesPartial(t *testing.T) {
	c, _ := newCatalog(t)
	refs := []types.EvidenceRef{
		{EvidenceID: "E1", RepoID: "repo-a", CommitSHA: "sha1", FilePath: "src/index.js", StartLine: 1, EndLine: 1},
		{EvidenceID: "E2", RepoID: "repo-a", CommitSHA: "sha1", FilePath: "src/gone.js", StartLine: 1, EndLine: 1},
	}

	bundle, err := c.BuildBundle(context.Background(), "repo-a", refs)
	require.Error(t, err, "git show failure is a hard error")
	require.Nil(t, bundle)
}

func TestBuildBundleRangeOutsideFile(t *testing.T) {
	c, _ := newCatalog(t)
	refs := []types.EvidenceRef{
		{EvidenceID: "E1", RepoID: "repo-a", CommitSHA: "sha1", FilePath: "src/index.js", StartLine: 2, EndLine: 99},
	}
	_, err := c.BuildBundle(context.Background(), "repo-a", refs)
	require.ErrorContains(t, err, "outside file")
}

func TestAllowedSet(t *testing.T) {
	set := AllowedSet([]types.EvidenceRef{{EvidenceID: "E1"}, {EvidenceID: "E2"}})
	require.True(t, set["E1"])
	require.False(t, set["E_GHOST"])
}

package sufficiency

import (
	"fmt"
	"strconv"
	"strings"

	"lanea/internal/fsio"
)

// Bump kinds the knowledge-version bumper accepts.
const (
	BumpPatch = "bump_patch"
	BumpMinor = "bump_minor"
	BumpMajor = "bump_major"
	NoBump    = "no_bump"
)

// versionFile is the persisted shape of VERSION.json.
type versionFile struct {
	CurrentVersion string `json:"current_version"`
}

// CurrentVersion returns the current knowledge version, defaulting to v0
// before the first bump is recorded.
func (l *Ledger) CurrentVersion() (string, error) {
	path := l.Paths.KnowledgeVersionFile()
	if !fsio.Exists(path) {
		return "v0", nil
	}
	var vf versionFile
	if err := fsio.ReadJSON(path, &vf); err != nil {
		return "", err
	}
	if vf.CurrentVersion == "" {
		return "v0", nil
	}
	return vf.CurrentVersion, nil
}

// Bump advances the current knowledge version and persists it. NoBump is a
// no-op that returns the current version.
func (l *Ledger) Bump(kind string) (string, error) {
	current, err := l.CurrentVersion()
	if err != nil {
		return "", err
	}
	if kind == NoBump {
		return current, nil
	}

	major, minor, patch, err := parseVersion(current)
	if err != nil {
		return "", err
	}
	switch kind {
	case BumpPatch:
		patch++
	case BumpMinor:
		minor++
		patch = 0
	case BumpMajor:
		major++
		minor = 0
		patch = 0
	default:
		return "", fmt.Errorf("unknown bump kind %q", kind)
	}

	next := fmt.Sprintf("v%d.%d.%d", major, minor, patch)
	if err := fsio.WriteJSONAtomic(l.Paths.KnowledgeVersionFile(), versionFile{CurrentVersion: next}); err != nil {
		return "", err
	}
	return next, nil
}

// parseVersion splits v<major>[.<minor>[.<patch>]]; omitted parts are zero.
func parseVersion(v string) (major, minor, patch int, err error) {
	rest, ok := strings.CutPrefix(v, "v")
	if !ok {
		return 0, 0, 0, fmt.Errorf("version %q does not start with v", v)
	}
	parts := strings.Split(rest, ".")
	if len(parts) > 3 {
		return 0, 0, 0, fmt.Errorf("version %q has more than three parts", v)
	}
	nums := make([]int, 3)
	for i, part := range parts {
		n, convErr := strconv.Atoi(part)
		if convErr != nil || n < 0 {
			return 0, 0, 0, fmt.Errorf("version %q part %q is not a number", v, part)
		}
		nums[i] = n
	}
	return nums[0], nums[1], nums[2], nil
}

// Package gitio is the read-only git command surface the core consumes:
// rev-parse HEAD, show <ref>:<path>, HEAD commit time, and remote URL.
// Invocations carry a timeout (default 30s); a timed-out command is a plain
// failure, never retried.
package gitio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"lanea/internal/logging"
)

// Runner executes git commands in a repository working tree.
type Runner struct {
	Binary  string
	Timeout time.Duration
}

// NewRunner returns a Runner with the default binary and timeout.
func NewRunner(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Runner{Binary: "git", Timeout: timeout}
}

func (r *Runner) run(ctx context.Context, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.Binary, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		logging.Get(logging.CategoryGit).Warn("git %s timed out in %s", strings.Join(args, " "), dir)
		return "", fmt.Errorf("git %s: timed out after %s", args[0], r.Timeout)
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("git %s: %s", args[0], msg)
	}
	return stdout.String(), nil
}

// RevParseHead returns the current HEAD sha of the repo at dir.
func (r *Runner) RevParseHead(ctx context.Context, dir string) (string, error) {
	out, err := r.run(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// HeadCommitTime returns the committer time of HEAD in strict ISO-8601.
func (r *Runner) HeadCommitTime(ctx context.Context, dir string) (time.Time, error) {
	out, err := r.run(ctx, dir, "show", "-s", "--format=%cI", "HEAD")
	if err != nil {
		return time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(out))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse HEAD commit time: %w", err)
	}
	return ts, nil
}

// Show returns the full contents of path at the given ref. Failure is a
// hard error for callers building evidence bundles: no partial content.
func (r *Runner) Show(ctx context.Context, dir, ref, path string) (string, error) {
	return r.run(ctx, dir, "show", ref+":"+path)
}

// RemoteURL returns the origin remote URL, or "" when none is configured.
func (r *Runner) RemoteURL(ctx context.Context, dir string) string {
	out, err := r.run(ctx, dir, "remote", "get-url", "origin")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

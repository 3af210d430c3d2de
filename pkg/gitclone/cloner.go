// Package gitclone clones a single repository into a local destination,
// treating an already-cloned destination as a successful no-op.
package gitclone

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/rs/zerolog"
)

// Status describes the outcome of a clone attempt.
type Status string

const (
	// StatusCloned means the repository was cloned into the destination.
	StatusCloned Status = "cloned"
	// StatusSkipped means the destination already holds a git working
	// tree and was left untouched.
	StatusSkipped Status = "skipped"
	// StatusFailed means the clone attempt errored.
	StatusFailed Status = "failed"
)

// Result records one clone attempt.
type Result struct {
	URL       string
	LocalPath string
	Status    Status
	Err       error
}

// GitCloner clones repositories with go-git. SSH URLs use the caller's
// ambient SSH agent and key configuration; this tool manages no
// credentials of its own.
type GitCloner struct {
	log      zerolog.Logger
	progress io.Writer
}

func New(log zerolog.Logger) *GitCloner {
	return &GitCloner{log: log, progress: io.Discard}
}

// WithProgress routes the transport's progress sideband to w.
func (c *GitCloner) WithProgress(w io.Writer) *GitCloner {
	c.progress = w
	return c
}

// Clone clones url into dest unless dest is already a git working tree,
// in which case it is a no-op reported as StatusSkipped. Intermediate
// directories are created as needed. A dest that exists but is not a git
// repository (for example a non-empty plain directory) fails the clone.
func (c *GitCloner) Clone(url, dest string) (*Result, error) {
	result := &Result{URL: url, LocalPath: dest}

	_, err := git.PlainOpen(dest)
	switch {
	case err == nil:
		c.log.Debug().Str("path", dest).Msg("already a git repository, skipping")
		result.Status = StatusSkipped
		return result, nil
	case !errors.Is(err, git.ErrRepositoryNotExists):
		result.Status = StatusFailed
		result.Err = fmt.Errorf("inspecting %s: %w", dest, err)
		return result, result.Err
	}

	// A non-empty destination that is not a repository would let the
	// checkout interleave with unrelated files. Match git's refusal.
	if entries, err := os.ReadDir(dest); err == nil && len(entries) > 0 {
		result.Status = StatusFailed
		result.Err = fmt.Errorf("destination %s exists and is not empty", dest)
		return result, result.Err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		result.Status = StatusFailed
		result.Err = fmt.Errorf("creating parent directory for %s: %w", dest, err)
		return result, result.Err
	}

	c.log.Info().Str("url", url).Str("path", dest).Msg("cloning")
	if _, err := git.PlainClone(dest, false, &git.CloneOptions{
		URL:      url,
		Progress: c.progress,
	}); err != nil {
		result.Status = StatusFailed
		result.Err = fmt.Errorf("cloning %s into %s: %w", url, dest, err)
		return result, result.Err
	}

	result.Status = StatusCloned
	return result, nil
}

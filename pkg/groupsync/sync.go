// Package groupsync ties discovery and cloning together: it walks every
// project under the root group and clones each one into a local directory
// tree that mirrors the remote group hierarchy.
package groupsync

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	gitlab "gitlab.com/gitlab-org/api/client-go"

	configs "github.com/carrolcox/gitlab-group-sync/pkg/config"
	"github.com/carrolcox/gitlab-group-sync/pkg/gitclone"
	"github.com/carrolcox/gitlab-group-sync/pkg/gitlabwalk"
)

// Cloner clones one repository URL into a destination directory.
type Cloner interface {
	Clone(url, dest string) (*gitclone.Result, error)
}

// Report summarizes a sync run.
type Report struct {
	Cloned  int
	Skipped int
	Failed  int
}

// Syncer runs one full traversal: authenticate, resolve the root group,
// walk its tree and clone every project.
type Syncer struct {
	walker   *gitlabwalk.Walker
	cloner   Cloner
	settings *configs.Settings
	log      zerolog.Logger
}

func New(walker *gitlabwalk.Walker, cloner Cloner, settings *configs.Settings, log zerolog.Logger) *Syncer {
	return &Syncer{
		walker:   walker,
		cloner:   cloner,
		settings: settings,
		log:      log,
	}
}

// Run clones every project under the configured root group. Fatal errors
// (authentication, unknown root group, a broken listing) abort the run;
// individual clone failures are logged, counted and aggregated into the
// returned error while the remaining projects are still attempted.
func (s *Syncer) Run() (*Report, error) {
	report := new(Report)

	if err := s.walker.CheckAuth(); err != nil {
		return report, err
	}

	root, err := s.walker.RootGroup(s.settings.RootGroupPath)
	if err != nil {
		return report, err
	}

	var failures *multierror.Error
	err = s.walker.Walk(root, func(project *gitlab.Project) error {
		dest := LocalPath(s.settings.LocalBasePath, root.FullPath, project.PathWithNamespace)

		result, err := s.cloner.Clone(project.SSHURLToRepo, dest)
		if err != nil {
			report.Failed++
			failures = multierror.Append(failures, fmt.Errorf("%s: %w", project.PathWithNamespace, err))
			s.log.Error().Err(err).
				Str("project", project.PathWithNamespace).
				Str("path", dest).
				Msg("clone failed")
			return nil
		}

		switch result.Status {
		case gitclone.StatusCloned:
			report.Cloned++
		case gitclone.StatusSkipped:
			report.Skipped++
		}
		s.log.Info().
			Str("project", project.PathWithNamespace).
			Str("path", dest).
			Str("status", string(result.Status)).
			Msg("project processed")
		return nil
	})
	if err != nil {
		return report, err
	}

	return report, failures.ErrorOrNil()
}

// LocalPath mirrors a project's remote namespace path under base, relative
// to the root group path. A project directly under the root group lands
// directly under base.
func LocalPath(base, rootGroupPath, projectPath string) string {
	root := strings.Trim(rootGroupPath, "/")
	rel := strings.Trim(projectPath, "/")

	if root != "" && strings.HasPrefix(rel, root+"/") {
		rel = rel[len(root)+1:]
	}

	return filepath.Join(base, filepath.FromSlash(rel))
}

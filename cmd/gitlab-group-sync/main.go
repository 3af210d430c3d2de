// Command gitlab-group-sync clones every project under a GitLab group,
// recursively across subgroups, mirroring the remote hierarchy under a
// local base directory. It takes no arguments; see the README for the
// config file and environment variables it reads.
package main

import (
	"errors"
	"os"

	"github.com/rs/zerolog"
	gitlab "gitlab.com/gitlab-org/api/client-go"

	configs "github.com/carrolcox/gitlab-group-sync/pkg/config"
	"github.com/carrolcox/gitlab-group-sync/pkg/gitclone"
	"github.com/carrolcox/gitlab-group-sync/pkg/gitlabwalk"
	"github.com/carrolcox/gitlab-group-sync/pkg/groupsync"
)

// The client library speaks the v4 REST API; any other configured version
// is a configuration error.
const supportedAPIVersion = "4"

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	settings, err := configs.NewResolver().Resolve()
	if err != nil {
		log.Fatal().Err(err).Msg("could not resolve configuration")
	}
	if settings.APIVersion != supportedAPIVersion {
		log.Fatal().Str("api_version", settings.APIVersion).Msg("unsupported GitLab API version, only v4 is supported")
	}

	client, err := gitlab.NewClient(settings.Token, gitlab.WithBaseURL(settings.URL))
	if err != nil {
		log.Fatal().Err(err).Str("url", settings.URL).Msg("could not create GitLab client")
	}

	// git's transport progress goes through the logger too, tagged so it
	// is distinguishable from the tool's own events.
	progressLog := log.With().Str("stream", "git").Logger()

	syncer := groupsync.New(
		gitlabwalk.New(client, log),
		gitclone.New(log).WithProgress(progressLog),
		settings,
		log,
	)

	report, err := syncer.Run()
	log.Info().
		Int("cloned", report.Cloned).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Str("group", settings.RootGroupPath).
		Str("path", settings.LocalBasePath).
		Msg("sync finished")

	if err != nil {
		var authErr *gitlabwalk.AuthenticationError
		var notFoundErr *gitlabwalk.NotFoundError
		switch {
		case errors.As(err, &authErr):
			log.Error().Err(err).Msg("GitLab rejected the configured token")
		case errors.As(err, &notFoundErr):
			log.Error().Err(err).Str("group", settings.RootGroupPath).Msg("root group not found")
		default:
			log.Error().Err(err).Msg("sync finished with errors")
		}
		os.Exit(1)
	}
}

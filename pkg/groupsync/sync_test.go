package groupsync_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carrolcox/gitlab-group-sync/internal/testutil"
	configs "github.com/carrolcox/gitlab-group-sync/pkg/config"
	"github.com/carrolcox/gitlab-group-sync/pkg/gitclone"
	"github.com/carrolcox/gitlab-group-sync/pkg/gitlabwalk"
	"github.com/carrolcox/gitlab-group-sync/pkg/groupsync"
)

type cloneCall struct {
	url  string
	dest string
}

// fakeCloner records clone requests and fails the URLs listed in failOn.
type fakeCloner struct {
	failOn map[string]bool
	skip   bool
	calls  []cloneCall
}

func (c *fakeCloner) Clone(url, dest string) (*gitclone.Result, error) {
	c.calls = append(c.calls, cloneCall{url: url, dest: dest})

	result := &gitclone.Result{URL: url, LocalPath: dest}
	if c.failOn[url] {
		result.Status = gitclone.StatusFailed
		result.Err = errors.New("simulated network failure")
		return result, result.Err
	}
	if c.skip {
		result.Status = gitclone.StatusSkipped
		return result, nil
	}
	result.Status = gitclone.StatusCloned
	return result, nil
}

func (c *fakeCloner) dests() []string {
	dests := make([]string, 0, len(c.calls))
	for _, call := range c.calls {
		dests = append(dests, call.dest)
	}
	return dests
}

func newFakeTree(t *testing.T) *testutil.FakeGitLab {
	t.Helper()

	fake := testutil.NewFakeGitLab(t)
	platform := fake.AddGroup(nil, "acme/platform")
	infra := fake.AddGroup(platform, "infra")
	fake.AddProject(platform, "api")
	fake.AddProject(platform, "web")
	fake.AddProject(infra, "gateway")
	return fake
}

func newSyncer(fake *testutil.FakeGitLab, cloner groupsync.Cloner, settings *configs.Settings) *groupsync.Syncer {
	walker := gitlabwalk.New(fake.Client(), zerolog.Nop())
	return groupsync.New(walker, cloner, settings, zerolog.Nop())
}

func TestRunMirrorsRemoteHierarchy(t *testing.T) {
	fake := newFakeTree(t)
	cloner := &fakeCloner{}
	settings := &configs.Settings{RootGroupPath: "acme/platform", LocalBasePath: "/work"}

	report, err := newSyncer(fake, cloner, settings).Run()
	require.NoError(t, err)

	assert.Equal(t, 3, report.Cloned)
	assert.Zero(t, report.Skipped)
	assert.Zero(t, report.Failed)
	assert.ElementsMatch(t, []string{
		filepath.Join("/work", "api"),
		filepath.Join("/work", "web"),
		filepath.Join("/work", "infra", "gateway"),
	}, cloner.dests())
}

func TestRunContinuesAfterCloneFailure(t *testing.T) {
	fake := newFakeTree(t)
	cloner := &fakeCloner{failOn: map[string]bool{
		"git@gitlab.example.com:acme/platform/web.git": true,
	}}
	settings := &configs.Settings{RootGroupPath: "acme/platform", LocalBasePath: "/work"}

	report, err := newSyncer(fake, cloner, settings).Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acme/platform/web")

	// Every project is still attempted despite the failure.
	assert.Len(t, cloner.calls, 3)
	assert.Equal(t, 2, report.Cloned)
	assert.Equal(t, 1, report.Failed)
}

func TestRunIsIdempotentOnSecondPass(t *testing.T) {
	fake := newFakeTree(t)
	cloner := &fakeCloner{skip: true}
	settings := &configs.Settings{RootGroupPath: "acme/platform", LocalBasePath: "/work"}

	report, err := newSyncer(fake, cloner, settings).Run()
	require.NoError(t, err)

	assert.Equal(t, 3, report.Skipped)
	assert.Zero(t, report.Cloned)
	assert.Zero(t, report.Failed)
}

func TestRunFailsOnUnknownRootGroup(t *testing.T) {
	fake := newFakeTree(t)
	cloner := &fakeCloner{}
	settings := &configs.Settings{RootGroupPath: "missing/group", LocalBasePath: "/work"}

	_, err := newSyncer(fake, cloner, settings).Run()

	var notFoundErr *gitlabwalk.NotFoundError
	require.ErrorAs(t, err, &notFoundErr)
	assert.Empty(t, cloner.calls)
}

func TestRunFailsOnRejectedToken(t *testing.T) {
	fake := newFakeTree(t)
	cloner := &fakeCloner{}
	settings := &configs.Settings{RootGroupPath: "acme/platform", LocalBasePath: "/work"}

	walker := gitlabwalk.New(fake.ClientWithToken("wrong-token"), zerolog.Nop())
	_, err := groupsync.New(walker, cloner, settings, zerolog.Nop()).Run()

	var authErr *gitlabwalk.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Empty(t, cloner.calls)
}

func TestLocalPath(t *testing.T) {
	tests := []struct {
		name        string
		base        string
		rootGroup   string
		projectPath string
		want        string
	}{
		{
			name:        "nested subgroup project",
			base:        "/work",
			rootGroup:   "acme/platform",
			projectPath: "acme/platform/infra/gateway",
			want:        filepath.Join("/work", "infra", "gateway"),
		},
		{
			name:        "project directly under root group",
			base:        "/work",
			rootGroup:   "acme/platform",
			projectPath: "acme/platform/api",
			want:        filepath.Join("/work", "api"),
		},
		{
			name:        "trailing and leading separators are normalized",
			base:        "/work",
			rootGroup:   "/acme/platform/",
			projectPath: "/acme/platform/api/",
			want:        filepath.Join("/work", "api"),
		},
		{
			name:        "similarly prefixed sibling group is not stripped",
			base:        "/work",
			rootGroup:   "acme/plat",
			projectPath: "acme/platform/api",
			want:        filepath.Join("/work", "acme", "platform", "api"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, groupsync.LocalPath(tt.base, tt.rootGroup, tt.projectPath))
		})
	}
}

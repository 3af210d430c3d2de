// Package gitlabwalk discovers every project under a GitLab group by
// recursive descent through its subgroup tree.
package gitlabwalk

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	gitlab "gitlab.com/gitlab-org/api/client-go"
)

// maxDepth bounds the recursive descent. GitLab group trees are acyclic
// and GitLab itself caps nesting at 20 levels, so hitting this limit
// means the API returned inconsistent data.
const maxDepth = 64

// NotFoundError reports that no group exists at the requested path.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("group %q not found", e.Path)
}

// AuthenticationError reports that the API rejected the configured token.
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// Walker lists groups, subgroups and projects through the GitLab API.
type Walker struct {
	client *gitlab.Client
	log    zerolog.Logger
}

func New(client *gitlab.Client, log zerolog.Logger) *Walker {
	return &Walker{client: client, log: log}
}

// CheckAuth probes the token against the API before any real work, so a
// bad token fails the run up front rather than partway through.
func (w *Walker) CheckAuth() error {
	_, resp, err := w.client.Users.CurrentUser()
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return &AuthenticationError{Err: err}
		}
		return fmt.Errorf("checking authentication: %w", err)
	}
	return nil
}

// RootGroup resolves a full group path to the group it names.
func (w *Walker) RootGroup(path string) (*gitlab.Group, error) {
	group, resp, err := w.client.Groups.GetGroup(path, nil)
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusNotFound:
				return nil, &NotFoundError{Path: path}
			case http.StatusUnauthorized:
				return nil, &AuthenticationError{Err: err}
			}
		}
		return nil, fmt.Errorf("resolving group %q: %w", path, err)
	}
	return group, nil
}

// Walk performs a depth-first traversal starting at root and calls visit
// once for every project found, in traversal order. Projects of a group
// are visited before its subgroups are descended into.
func (w *Walker) Walk(root *gitlab.Group, visit func(*gitlab.Project) error) error {
	seen := make(map[int]bool)
	return w.walk(root.ID, root.FullPath, 0, seen, visit)
}

func (w *Walker) walk(groupID int, fullPath string, depth int, seen map[int]bool, visit func(*gitlab.Project) error) error {
	if depth > maxDepth {
		w.log.Warn().Str("group", fullPath).Int("depth", depth).Msg("maximum group depth exceeded, skipping subtree")
		return nil
	}
	if seen[groupID] {
		w.log.Warn().Str("group", fullPath).Int("group_id", groupID).Msg("group already visited, skipping")
		return nil
	}
	seen[groupID] = true

	projects, err := collectPages(func(opts gitlab.ListOptions) ([]*gitlab.Project, *gitlab.Response, error) {
		return w.client.Groups.ListGroupProjects(groupID, &gitlab.ListGroupProjectsOptions{
			ListOptions: opts,
		})
	})
	if err != nil {
		return fmt.Errorf("listing projects of group %q: %w", fullPath, err)
	}
	for _, project := range projects {
		if err := visit(project); err != nil {
			return err
		}
	}

	subgroups, err := collectPages(func(opts gitlab.ListOptions) ([]*gitlab.Group, *gitlab.Response, error) {
		return w.client.Groups.ListSubGroups(groupID, &gitlab.ListSubGroupsOptions{
			ListOptions: opts,
		})
	})
	if err != nil {
		return fmt.Errorf("listing subgroups of group %q: %w", fullPath, err)
	}
	for _, subgroup := range subgroups {
		if err := w.walk(subgroup.ID, subgroup.FullPath, depth+1, seen, visit); err != nil {
			return err
		}
	}

	return nil
}

// collectPages drains a paginated list endpoint into a single slice,
// following Response.NextPage until the API reports no further pages.
func collectPages[T any](list func(gitlab.ListOptions) ([]T, *gitlab.Response, error)) ([]T, error) {
	opts := gitlab.ListOptions{PerPage: 100, Page: 1}

	var all []T
	for {
		items, resp, err := list(opts)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return all, nil
}

package testutil

import (
	"fmt"
	"strings"
)

// AddGroup registers a group under parent and returns it. A nil parent
// creates a top-level group; nested full paths such as "acme/platform" are
// allowed for the tree root.
func (f *FakeGitLab) AddGroup(parent *FakeGroup, path string) *FakeGroup {
	f.T.Helper()

	fullPath := path
	parentID := 0
	if parent != nil {
		fullPath = parent.FullPath + "/" + path
		parentID = parent.ID
	}

	f.nextID++
	group := &FakeGroup{
		ID:       f.nextID,
		Name:     lastSegment(path),
		Path:     lastSegment(path),
		FullPath: fullPath,
		ParentID: parentID,
	}
	f.groups[group.ID] = group
	f.byPath[group.FullPath] = group
	if parent != nil {
		f.subgroups[parent.ID] = append(f.subgroups[parent.ID], group)
	}

	return group
}

// AddProject registers a project inside group and returns it.
func (f *FakeGitLab) AddProject(group *FakeGroup, name string) *FakeProject {
	f.T.Helper()

	f.nextID++
	project := &FakeProject{
		ID:                f.nextID,
		Name:              name,
		PathWithNamespace: group.FullPath + "/" + name,
		SSHURLToRepo:      fmt.Sprintf("git@gitlab.example.com:%s/%s.git", group.FullPath, name),
	}
	f.projects[group.ID] = append(f.projects[group.ID], project)

	return project
}

// LinkSubgroup adds an extra subgroup edge between two existing groups.
// Real GitLab trees are acyclic; this exists to simulate inconsistent API
// responses when testing traversal defenses.
func (f *FakeGitLab) LinkSubgroup(parent, child *FakeGroup) {
	f.subgroups[parent.ID] = append(f.subgroups[parent.ID], child)
}

func lastSegment(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

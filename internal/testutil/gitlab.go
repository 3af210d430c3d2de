// Package testutil provides an in-process fake of the GitLab REST API for
// package tests: group lookup by path, paginated subgroup and project
// listings, and token checking.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	gitlab "gitlab.com/gitlab-org/api/client-go"
)

// Token is the private token the fake server accepts.
const Token = "test-token"

// FakeGroup is a group known to the fake server.
type FakeGroup struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	FullPath string `json:"full_path"`
	ParentID int    `json:"parent_id,omitempty"`
}

// FakeProject is a project known to the fake server.
type FakeProject struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	PathWithNamespace string `json:"path_with_namespace"`
	SSHURLToRepo      string `json:"ssh_url_to_repo"`
}

// FakeGitLab serves a configurable group/project tree over httptest.
// PageSize deliberately defaults to a small value so that listings span
// several pages and exercise the pagination handling of callers.
type FakeGitLab struct {
	T        *testing.T
	PageSize int

	server    *httptest.Server
	nextID    int
	groups    map[int]*FakeGroup
	byPath    map[string]*FakeGroup
	subgroups map[int][]*FakeGroup
	projects  map[int][]*FakeProject
}

// NewFakeGitLab starts a fake GitLab API server that is shut down when the
// test finishes.
func NewFakeGitLab(t *testing.T) *FakeGitLab {
	t.Helper()

	f := &FakeGitLab{
		T:         t,
		PageSize:  2,
		groups:    make(map[int]*FakeGroup),
		byPath:    make(map[string]*FakeGroup),
		subgroups: make(map[int][]*FakeGroup),
		projects:  make(map[int][]*FakeProject),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)

	return f
}

// URL returns the base URL of the fake server.
func (f *FakeGitLab) URL() string {
	return f.server.URL
}

// Client returns a GitLab API client pointed at the fake server and
// authenticated with the accepted token.
func (f *FakeGitLab) Client() *gitlab.Client {
	return f.ClientWithToken(Token)
}

// ClientWithToken returns a GitLab API client using an arbitrary token,
// which the fake server rejects unless it matches Token.
func (f *FakeGitLab) ClientWithToken(token string) *gitlab.Client {
	f.T.Helper()

	client, err := gitlab.NewClient(token, gitlab.WithBaseURL(f.server.URL))
	if err != nil {
		f.T.Fatalf("Failed to create GitLab client: %v", err)
	}
	return client
}

func (f *FakeGitLab) handle(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("PRIVATE-TOKEN") != Token {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "401 Unauthorized"})
		return
	}

	// EscapedPath keeps the %2F of path-addressed groups intact.
	path := strings.TrimPrefix(r.URL.EscapedPath(), "/api/v4/")
	switch {
	case path == "user":
		writeJSON(w, http.StatusOK, map[string]any{"id": 1, "username": "sync"})
	case strings.HasPrefix(path, "groups/"):
		f.handleGroups(w, r, strings.TrimPrefix(path, "groups/"))
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "404 Not Found"})
	}
}

func (f *FakeGitLab) handleGroups(w http.ResponseWriter, r *http.Request, rest string) {
	switch {
	case strings.HasSuffix(rest, "/subgroups"):
		id, ok := f.groupID(strings.TrimSuffix(rest, "/subgroups"))
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "404 Group Not Found"})
			return
		}
		writePage(f, w, r, f.subgroups[id])
	case strings.HasSuffix(rest, "/projects"):
		id, ok := f.groupID(strings.TrimSuffix(rest, "/projects"))
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "404 Group Not Found"})
			return
		}
		writePage(f, w, r, f.projects[id])
	default:
		id, ok := f.groupID(rest)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "404 Group Not Found"})
			return
		}
		writeJSON(w, http.StatusOK, f.groups[id])
	}
}

// groupID resolves a URL path segment that is either a numeric group ID or
// a URL-encoded full path.
func (f *FakeGitLab) groupID(key string) (int, bool) {
	if id, err := strconv.Atoi(key); err == nil {
		_, ok := f.groups[id]
		return id, ok
	}

	decoded, err := url.PathUnescape(key)
	if err != nil {
		return 0, false
	}
	group, ok := f.byPath[decoded]
	if !ok {
		return 0, false
	}
	return group.ID, true
}

// writePage emits one page of items with GitLab's pagination headers.
func writePage[T any](f *FakeGitLab, w http.ResponseWriter, r *http.Request, items []T) {
	page := 1
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}

	totalPages := (len(items) + f.PageSize - 1) / f.PageSize
	start := (page - 1) * f.PageSize
	end := start + f.PageSize
	if start > len(items) {
		start = len(items)
	}
	if end > len(items) {
		end = len(items)
	}

	w.Header().Set("X-Page", strconv.Itoa(page))
	w.Header().Set("X-Per-Page", strconv.Itoa(f.PageSize))
	w.Header().Set("X-Total", strconv.Itoa(len(items)))
	w.Header().Set("X-Total-Pages", strconv.Itoa(totalPages))
	if page < totalPages {
		w.Header().Set("X-Next-Page", strconv.Itoa(page+1))
	}

	writeJSON(w, http.StatusOK, items[start:end])
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		panic(fmt.Sprintf("encoding fake GitLab response: %v", err))
	}
}

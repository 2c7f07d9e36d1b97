package clone

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flexpertsdev/flexios-v1/internal/githost"
	"github.com/flexpertsdev/flexios-v1/internal/githost/githosttest"
	"github.com/flexpertsdev/flexios-v1/internal/models"
	"github.com/flexpertsdev/flexios-v1/internal/syncerr"
)

var target = models.SyncTarget{Owner: githosttest.DefaultOwner, Repo: "specs", Branch: "main"}

func newClient(t *testing.T, srv *githosttest.Server) *githost.Client {
	t.Helper()
	c, err := githost.New(srv.Token, githost.Options{BaseURL: srv.URL, BaseDelay: time.Millisecond})
	require.NoError(t, err)
	return c
}

func TestCloneNestedTree(t *testing.T) {
	srv := githosttest.New(t)
	srv.SetFiles(target.Owner, target.Repo, "main", map[string]string{
		"README.md":                 "not synced",
		"specs/notes.txt":           "not a document",
		"specs/features/1.json":     `{"name":"Auth"}`,
		"specs/features/2.json":     `{"name":"Billing"}`,
		"specs/library/docs/1.json": `{"title":"Start"}`,
		"specs/library/vision.json": `{"statement":"Ship"}`,
	})

	docs, err := New(newClient(t, srv), target, 0).Clone(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Document{
		{Key: "features/1", Content: `{"name":"Auth"}`},
		{Key: "features/2", Content: `{"name":"Billing"}`},
		{Key: "library/docs/1", Content: `{"title":"Start"}`},
		{Key: "library/vision", Content: `{"statement":"Ship"}`},
	}, docs)
}

func TestCloneMissingRoot(t *testing.T) {
	srv := githosttest.New(t)
	srv.SetFiles(target.Owner, target.Repo, "main", map[string]string{"README.md": "hi"})

	docs, err := New(newClient(t, srv), target, 0).Clone(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)

	// A branch that does not exist yet is an empty project too.
	other := target
	other.Branch = "nothing"
	docs, err = New(newClient(t, srv), other, 0).Clone(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestCloneFailure(t *testing.T) {
	srv := githosttest.New(t)
	srv.SetFiles(target.Owner, target.Repo, "main", map[string]string{"specs/a.json": "1"})
	srv.FailNext(githosttest.GetContents, http.StatusUnauthorized, 1)

	_, err := New(newClient(t, srv), target, 0).Clone(context.Background())
	assert.True(t, errors.Is(err, syncerr.ErrAuth), "got %v", err)
}

func TestListPaths(t *testing.T) {
	srv := githosttest.New(t)
	srv.SetFiles(target.Owner, target.Repo, "main", map[string]string{
		"specs/pages/2.json": "b",
		"specs/pages/1.json": "a",
		"specs/x.json.bak":   "skipped",
		"docs/readme.json":   "outside",
	})

	paths, err := New(newClient(t, srv), target, 0).ListPaths(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"specs/pages/1.json", "specs/pages/2.json"}, paths)
}

// wideRemote serves a namespace with many directories and files and records
// the peak number of concurrent calls.
type wideRemote struct {
	mu       sync.Mutex
	inFlight int
	peak     int
}

func (r *wideRemote) enter() func() {
	r.mu.Lock()
	r.inFlight++
	if r.inFlight > r.peak {
		r.peak = r.inFlight
	}
	r.mu.Unlock()
	time.Sleep(2 * time.Millisecond)
	return func() {
		r.mu.Lock()
		r.inFlight--
		r.mu.Unlock()
	}
}

func (r *wideRemote) ListDir(ctx context.Context, t models.SyncTarget, path string) ([]githost.ContentEntry, error) {
	defer r.enter()()
	var entries []githost.ContentEntry
	if path == "specs" {
		for i := 0; i < 10; i++ {
			entries = append(entries, githost.ContentEntry{Type: githost.EntryDir, Path: fmt.Sprintf("specs/d%d", i)})
		}
		return entries, nil
	}
	for i := 0; i < 3; i++ {
		entries = append(entries, githost.ContentEntry{Type: githost.EntryFile, Path: fmt.Sprintf("%s/%d.json", path, i)})
	}
	return entries, nil
}

func (r *wideRemote) GetFile(ctx context.Context, t models.SyncTarget, path string) (string, error) {
	defer r.enter()()
	return strings.TrimPrefix(path, "specs/"), nil
}

func TestCloneBoundsConcurrency(t *testing.T) {
	remote := &wideRemote{}

	docs, err := New(remote, target, 3).Clone(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 30)
	assert.Equal(t, "d0/0", docs[0].Key)
	assert.LessOrEqual(t, remote.peak, 3)
}

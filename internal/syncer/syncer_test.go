package syncer

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flexpertsdev/flexios-v1/internal/githost"
	"github.com/flexpertsdev/flexios-v1/internal/githost/githosttest"
	"github.com/flexpertsdev/flexios-v1/internal/models"
	"github.com/flexpertsdev/flexios-v1/internal/storage"
	"github.com/flexpertsdev/flexios-v1/internal/syncerr"
)

var target = models.SyncTarget{Owner: githosttest.DefaultOwner, Repo: "specs", Branch: "main"}

type fixture struct {
	srv   *githosttest.Server
	store *storage.Store
	sync  *Orchestrator
	clock clockwork.FakeClock
}

func setup(t *testing.T, docs ...models.Document) fixture {
	t.Helper()
	srv := githosttest.New(t)
	srv.AddRepo(target.Owner, target.Repo)

	client, err := githost.New(srv.Token, githost.Options{BaseURL: srv.URL, BaseDelay: time.Millisecond})
	require.NoError(t, err)

	store := openStore(t)
	require.NoError(t, store.BulkPut(context.Background(), docs))

	clock := clockwork.NewFakeClock()
	return fixture{
		srv:   srv,
		store: store,
		sync:  New(client, store, Options{Concurrency: 2, Clock: clock}),
		clock: clock,
	}
}

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func (f fixture) files() map[string]string {
	return f.srv.Files(target.Owner, target.Repo, target.Branch)
}

func (f fixture) head() string {
	return f.srv.Head(target.Owner, target.Repo, target.Branch)
}

func TestPushBootstrap(t *testing.T) {
	f := setup(t,
		models.Document{Key: "features/1", Content: `{"name":"Auth"}`},
		models.Document{Key: "library/vision", Content: `{"statement":"Ship"}`},
	)

	res, err := f.sync.Push(context.Background(), target, "first sync")
	require.NoError(t, err)
	assert.Equal(t, Bootstrap, res.Mode)
	assert.Empty(t, res.ParentSHA)
	assert.Equal(t, 2, res.Files)
	assert.Equal(t, res.CommitSHA, f.head())

	commit, ok := f.srv.Commit(target.Owner, target.Repo, res.CommitSHA)
	require.True(t, ok)
	assert.Empty(t, commit.Parents)
	assert.Equal(t, "first sync", commit.Message)
	assert.Equal(t, res.TreeSHA, commit.Tree)

	assert.Equal(t, map[string]string{
		"specs/features/1.json":     `{"name":"Auth"}`,
		"specs/library/vision.json": `{"statement":"Ship"}`,
	}, f.files())
}

func TestPushBootstrapNeedsDocuments(t *testing.T) {
	f := setup(t)

	_, err := f.sync.Push(context.Background(), target, "")
	assert.Error(t, err)
	assert.Equal(t, 0, f.srv.Calls(githosttest.CreateBlob))
}

func TestPushUpdateKeepsOtherFiles(t *testing.T) {
	f := setup(t, models.Document{Key: "features/1", Content: "new"})
	prior := f.srv.SetFiles(target.Owner, target.Repo, target.Branch, map[string]string{
		"README.md":              "readme",
		"specs/features/1.json":  "old",
		"specs/features/99.json": "deleted locally",
	})

	res, err := f.sync.Push(context.Background(), target, "")
	require.NoError(t, err)
	assert.Equal(t, Update, res.Mode)
	assert.Equal(t, prior, res.ParentSHA)

	commit, _ := f.srv.Commit(target.Owner, target.Repo, res.CommitSHA)
	assert.Equal(t, []string{prior}, commit.Parents)
	assert.Equal(t, "Sync 1 documents", commit.Message)

	// Push never deletes: the stale document and the README survive.
	assert.Equal(t, map[string]string{
		"README.md":              "readme",
		"specs/features/1.json":  "new",
		"specs/features/99.json": "deleted locally",
	}, f.files())
}

func TestTwoPushes(t *testing.T) {
	f := setup(t,
		models.Document{Key: "features/1", Content: "A"},
		models.Document{Key: "features/2", Content: "B"},
	)
	ctx := context.Background()

	first, err := f.sync.Push(ctx, target, "one")
	require.NoError(t, err)
	require.Equal(t, Bootstrap, first.Mode)

	require.NoError(t, f.store.Put(ctx, models.Document{Key: "features/2", Content: "B2"}))
	second, err := f.sync.Push(ctx, target, "two")
	require.NoError(t, err)
	assert.Equal(t, Update, second.Mode)
	assert.Equal(t, first.CommitSHA, second.ParentSHA)

	commit, _ := f.srv.Commit(target.Owner, target.Repo, second.CommitSHA)
	assert.Equal(t, []string{first.CommitSHA}, commit.Parents)

	before := f.srv.TreeEntries(target.Owner, target.Repo, first.TreeSHA)
	after := f.srv.TreeEntries(target.Owner, target.Repo, second.TreeSHA)
	assert.Equal(t, before["specs/features/1.json"], after["specs/features/1.json"], "unchanged content keeps its address")
	assert.NotEqual(t, before["specs/features/2.json"], after["specs/features/2.json"])
	assert.Equal(t, "B2", f.files()["specs/features/2.json"])
}

func TestPushThenCloneRoundTrips(t *testing.T) {
	seed, err := storage.SeedDocuments()
	require.NoError(t, err)
	seed = append(seed, models.Document{Key: "notes/unicode", Content: "naïve café ✓ 🚀"})
	f := setup(t, seed...)
	ctx := context.Background()

	_, err = f.sync.Push(ctx, target, "")
	require.NoError(t, err)

	// Clone into a store that has unrelated content.
	other := openStore(t)
	require.NoError(t, other.Put(ctx, models.Document{Key: "stale", Content: "x"}))
	client, err := githost.New(f.srv.Token, githost.Options{BaseURL: f.srv.URL})
	require.NoError(t, err)

	res, err := New(client, other, Options{}).Clone(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, len(seed), res.Documents)

	want, _ := f.store.ListAll(ctx)
	got, _ := other.ListAll(ctx)
	assert.Equal(t, want, got)
}

func TestCloneEmptyRepository(t *testing.T) {
	f := setup(t, models.Document{Key: "features/1", Content: "local"})
	f.srv.SetFiles(target.Owner, target.Repo, target.Branch, map[string]string{"README.md": "hi"})

	res, err := f.sync.Clone(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Documents)

	n, _ := f.store.Count(context.Background())
	assert.Equal(t, 0, n)
}

func TestCloneRepositoryWithoutCommits(t *testing.T) {
	f := setup(t, models.Document{Key: "features/1", Content: "local"})

	res, err := f.sync.Clone(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Documents)
	assert.Equal(t, 0, f.srv.Calls(githosttest.GetContents))
}

func TestCloneMissingTargetKeepsStore(t *testing.T) {
	tests := []struct {
		name   string
		target models.SyncTarget
	}{
		{"missing repository", models.SyncTarget{Owner: target.Owner, Repo: "no-such-repo", Branch: "main"}},
		{"missing branch", models.SyncTarget{Owner: target.Owner, Repo: target.Repo, Branch: "no-such-branch"}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := setup(t, models.Document{Key: "features/1", Content: "local"})
			f.srv.SetFiles(target.Owner, target.Repo, target.Branch, map[string]string{
				"specs/features/2.json": "remote",
			})

			_, err := f.sync.Clone(context.Background(), test.target)
			assert.True(t, errors.Is(err, syncerr.ErrNotFound), "got %v", err)

			docs, _ := f.store.ListAll(context.Background())
			assert.Equal(t, []models.Document{{Key: "features/1", Content: "local"}}, docs)
			assert.Equal(t, Failed, f.sync.Status().State)
		})
	}
}

// movingRemote pushes a new commit to the branch before the first file is
// fetched.
type movingRemote struct {
	*githost.Client
	srv   *githosttest.Server
	moved bool
}

func (m *movingRemote) GetFile(ctx context.Context, t models.SyncTarget, path string) (string, error) {
	if !m.moved {
		m.moved = true
		m.srv.SetFiles(target.Owner, target.Repo, target.Branch, map[string]string{
			"specs/features/1.json": "new",
			"specs/features/2.json": "new",
		})
	}
	return m.Client.GetFile(ctx, t, path)
}

func TestCloneReadsOneCommit(t *testing.T) {
	srv := githosttest.New(t)
	srv.SetFiles(target.Owner, target.Repo, target.Branch, map[string]string{
		"specs/features/1.json": "old",
		"specs/features/2.json": "old",
	})
	client, err := githost.New(srv.Token, githost.Options{BaseURL: srv.URL})
	require.NoError(t, err)
	store := openStore(t)

	// One fetch at a time, so the branch moves before the second file.
	remote := &movingRemote{Client: client, srv: srv}
	_, err = New(remote, store, Options{Concurrency: 1}).Clone(context.Background(), target)
	require.NoError(t, err)

	docs, _ := store.ListAll(context.Background())
	assert.Equal(t, []models.Document{
		{Key: "features/1", Content: "old"},
		{Key: "features/2", Content: "old"},
	}, docs)
}

func TestRunLogFailureDoesNotFailSync(t *testing.T) {
	f := setup(t, models.Document{Key: "features/1", Content: "{}"})

	db, err := sql.Open("sqlite3", "file:"+filepath.Join(f.store.DataDir(), storage.DBFile))
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`DROP TABLE sync_runs`)
	require.NoError(t, err)

	res, err := f.sync.Push(context.Background(), target, "")
	require.NoError(t, err)
	assert.Equal(t, res.CommitSHA, f.head())
	assert.Equal(t, Succeeded, f.sync.Status().State)
}

func TestCloneFailureKeepsStore(t *testing.T) {
	f := setup(t, models.Document{Key: "features/1", Content: "local"})
	f.srv.SetFiles(target.Owner, target.Repo, target.Branch, map[string]string{
		"specs/features/1.json": "remote",
		"specs/features/2.json": "remote",
	})
	f.srv.FailNext(githosttest.GetContents, http.StatusServiceUnavailable, 100)

	_, err := f.sync.Clone(context.Background(), target)
	assert.True(t, errors.Is(err, syncerr.ErrNetwork), "got %v", err)

	docs, _ := f.store.ListAll(context.Background())
	assert.Equal(t, []models.Document{{Key: "features/1", Content: "local"}}, docs)

	status := f.sync.Status()
	assert.Equal(t, Failed, status.State)
	assert.Contains(t, status.LastError, "could not be reached")
}

func TestPushConflict(t *testing.T) {
	f := setup(t, models.Document{Key: "features/1", Content: "mine"})
	f.srv.SetFiles(target.Owner, target.Repo, target.Branch, map[string]string{"README.md": "hi"})

	var theirs string
	f.srv.BeforeRefWrite(func() {
		theirs = f.srv.SetFiles(target.Owner, target.Repo, target.Branch, map[string]string{"README.md": "theirs"})
	})

	_, err := f.sync.Push(context.Background(), target, "")
	assert.True(t, errors.Is(err, syncerr.ErrRefConflict), "got %v", err)
	assert.Equal(t, theirs, f.head(), "the concurrent update is not overwritten")
	assert.Equal(t, 1, f.srv.Calls(githosttest.UpdateRef))
	assert.Equal(t, Failed, f.sync.Status().State)
}

func TestPushFailureLeavesBranch(t *testing.T) {
	f := setup(t, models.Document{Key: "features/1", Content: "mine"})
	prior := f.srv.SetFiles(target.Owner, target.Repo, target.Branch, map[string]string{"README.md": "hi"})
	f.srv.FailNext(githosttest.CreateTree, http.StatusInternalServerError, 1)

	_, err := f.sync.Push(context.Background(), target, "")
	assert.True(t, errors.Is(err, syncerr.ErrPartialPublish), "got %v", err)
	assert.Equal(t, prior, f.head())
	assert.Equal(t, 0, f.srv.Calls(githosttest.CreateCommit))
	assert.Equal(t, 0, f.srv.Calls(githosttest.UpdateRef))
}

func TestPushAuthFailure(t *testing.T) {
	f := setup(t, models.Document{Key: "features/1", Content: "mine"})
	f.srv.FailNext(githosttest.GetRef, http.StatusUnauthorized, 1)

	_, err := f.sync.Push(context.Background(), target, "")
	assert.True(t, errors.Is(err, syncerr.ErrAuth), "got %v", err)
	assert.Equal(t, 1, f.srv.Calls(githosttest.GetRef))
	assert.Equal(t, 0, f.srv.Calls(githosttest.CreateBlob))
}

func TestPushRejectsInvalidKey(t *testing.T) {
	f := setup(t,
		models.Document{Key: "features/1", Content: "ok"},
		models.Document{Key: "features/../escape", Content: "bad"},
	)

	_, err := f.sync.Push(context.Background(), target, "")
	assert.True(t, errors.Is(err, syncerr.ErrEncoding), "got %v", err)
	assert.Equal(t, 0, f.srv.Calls(githosttest.CreateBlob))
}

func TestSyncInProgress(t *testing.T) {
	f := setup(t, models.Document{Key: "features/1", Content: "mine"})

	entered := make(chan struct{})
	release := make(chan struct{})
	f.srv.BeforeRefWrite(func() {
		close(entered)
		<-release
	})

	done := make(chan error, 1)
	go func() {
		_, err := f.sync.Push(context.Background(), target, "")
		done <- err
	}()

	<-entered
	assert.Equal(t, Running, f.sync.Status().State)
	_, err := f.sync.Clone(context.Background(), target)
	assert.True(t, errors.Is(err, syncerr.ErrSyncInProgress), "got %v", err)
	_, err = f.sync.Push(context.Background(), target, "")
	assert.True(t, errors.Is(err, syncerr.ErrSyncInProgress), "got %v", err)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, Succeeded, f.sync.Status().State)
}

func TestPrune(t *testing.T) {
	f := setup(t, models.Document{Key: "features/1", Content: "keep"})
	prior := f.srv.SetFiles(target.Owner, target.Repo, target.Branch, map[string]string{
		"README.md":             "readme",
		"specs/notes.txt":       "not a document",
		"specs/features/1.json": "keep",
		"specs/features/2.json": "gone locally",
		"specs/pages/1.json":    "gone locally",
	})
	ctx := context.Background()

	res, err := f.sync.Prune(ctx, target, "")
	require.NoError(t, err)
	assert.Equal(t, prior, res.ParentSHA)
	assert.Equal(t, []string{"specs/features/2.json", "specs/pages/1.json"}, res.Removed)
	assert.Equal(t, map[string]string{
		"README.md":             "readme",
		"specs/notes.txt":       "not a document",
		"specs/features/1.json": "keep",
	}, f.files())

	// Nothing left to remove: no new commit.
	head := f.head()
	res, err = f.sync.Prune(ctx, target, "")
	require.NoError(t, err)
	assert.Empty(t, res.Removed)
	assert.Empty(t, res.CommitSHA)
	assert.Equal(t, head, f.head())
}

func TestPruneMissingBranch(t *testing.T) {
	f := setup(t)

	res, err := f.sync.Prune(context.Background(), target, "")
	require.NoError(t, err)
	assert.Empty(t, res.CommitSHA)
	assert.Equal(t, 0, f.srv.Calls(githosttest.CreateTree))
}

func TestCreateAndPush(t *testing.T) {
	f := setup(t, models.Document{Key: "features/1", Content: "A"})

	repo, res, err := f.sync.CreateAndPush(context.Background(), "hospital", "Hospital specs", true, "")
	require.NoError(t, err)
	assert.Equal(t, "hospital", repo.Name)
	assert.Equal(t, repo.Target(), res.Target)
	assert.Equal(t, Update, res.Mode)

	assert.Equal(t, map[string]string{
		"README.md":             "# hospital\n",
		"specs/features/1.json": "A",
	}, f.srv.Files(repo.Owner, repo.Name, repo.DefaultBranch))
	assert.Equal(t, repo.Target(), f.sync.Status().Target)
}

func TestStatusAndRunLog(t *testing.T) {
	f := setup(t, models.Document{Key: "features/1", Content: "A"})
	ctx := context.Background()

	assert.Equal(t, Idle, f.sync.Status().State)

	res, err := f.sync.Push(ctx, target, "")
	require.NoError(t, err)

	status := f.sync.Status()
	assert.Equal(t, Succeeded, status.State)
	assert.Equal(t, OpPush, status.Operation)
	assert.Equal(t, f.clock.Now(), status.StartedAt)
	require.NotNil(t, status.LastPush)
	assert.Equal(t, res.CommitSHA, status.LastPush.CommitSHA)

	f.srv.FailNext(githosttest.GetRef, http.StatusUnauthorized, 1)
	_, err = f.sync.Push(ctx, target, "")
	require.Error(t, err)

	runs, err := f.store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, storage.RunFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "authentication failed")
	assert.Equal(t, storage.RunSucceeded, runs[1].Status)
	assert.Equal(t, res.CommitSHA, runs[1].CommitSHA)

	last, err := f.store.LastCommit(ctx, target.String())
	require.NoError(t, err)
	assert.Equal(t, res.CommitSHA, last)

	// The last successful push is still reported after a failure.
	assert.Equal(t, res.CommitSHA, f.sync.Status().LastPush.CommitSHA)
}

func TestInvalidTarget(t *testing.T) {
	f := setup(t)
	_, err := f.sync.Push(context.Background(), models.SyncTarget{Repo: "x"}, "")
	assert.Error(t, err)
	assert.Equal(t, Idle, f.sync.Status().State)
}

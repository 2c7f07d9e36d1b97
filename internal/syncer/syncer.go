// Package syncer coordinates whole sync operations between the local store
// and a remote branch. Only one operation runs at a time.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/flexpertsdev/flexios-v1/internal/clone"
	"github.com/flexpertsdev/flexios-v1/internal/githost"
	"github.com/flexpertsdev/flexios-v1/internal/models"
	"github.com/flexpertsdev/flexios-v1/internal/pathcodec"
	"github.com/flexpertsdev/flexios-v1/internal/publish"
	"github.com/flexpertsdev/flexios-v1/internal/storage"
	"github.com/flexpertsdev/flexios-v1/internal/syncerr"
)

// Remote is everything the orchestrator needs from the Git host.
type Remote interface {
	publish.BlobCreator
	publish.TreeCreator
	publish.CommitCreator
	publish.RefWriter
	clone.Remote

	GetCommit(ctx context.Context, t models.SyncTarget, sha string) (githost.Commit, error)
	GetRepo(ctx context.Context, owner, name string) (githost.Repository, error)
	CreateRepo(ctx context.Context, name, description string, private, autoInit bool) (githost.Repository, error)
}

// State is the orchestrator's lifecycle state.
type State string

const (
	Idle      State = "idle"
	Running   State = "running"
	Succeeded State = "succeeded"
	Failed    State = "failed"
)

// Operation names, also used in the store's run log.
const (
	OpPush   = "push"
	OpClone  = "clone"
	OpPrune  = "prune"
	OpCreate = "create"
)

// Mode says whether a push created the branch or advanced it.
type Mode string

const (
	Bootstrap Mode = "bootstrap"
	Update    Mode = "update"
)

// PushResult describes a completed push or prune.
type PushResult struct {
	Target    models.SyncTarget `json:"target"`
	Mode      Mode              `json:"mode"`
	CommitSHA string            `json:"commit_sha,omitempty"`
	TreeSHA   string            `json:"tree_sha,omitempty"`
	ParentSHA string            `json:"parent_sha,omitempty"`
	Files     int               `json:"files"`
	Removed   []string          `json:"removed,omitempty"`
}

// CloneResult describes a completed clone.
type CloneResult struct {
	Target    models.SyncTarget `json:"target"`
	Documents int               `json:"documents"`
}

// Status is a snapshot of the orchestrator.
type Status struct {
	State      State             `json:"state"`
	Operation  string            `json:"operation,omitempty"`
	Target     models.SyncTarget `json:"target"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	LastError  string            `json:"last_error,omitempty"`
	LastPush   *PushResult       `json:"last_push,omitempty"`
	LastClone  *CloneResult      `json:"last_clone,omitempty"`
}

// Options tunes an Orchestrator. Zero values select the defaults.
type Options struct {
	Concurrency int

	// Clock stamps status transitions. Mocked out for unit testing.
	Clock clockwork.Clock
}

// Orchestrator runs push, clone, prune and create operations.
type Orchestrator struct {
	remote      Remote
	store       *storage.Store
	concurrency int
	clock       clockwork.Clock

	// running is held for the whole of an operation.
	running sync.Mutex

	mu     sync.Mutex
	status Status
}

// New returns an idle Orchestrator.
func New(remote Remote, store *storage.Store, opts Options) *Orchestrator {
	o := &Orchestrator{
		remote:      remote,
		store:       store,
		concurrency: opts.Concurrency,
		clock:       opts.Clock,
		status:      Status{State: Idle},
	}
	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}
	return o
}

// Status returns the current state and the outcome of the last operation.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Push publishes every local document to target and moves the branch to the
// new commit. If the branch does not exist it is created with a root commit;
// otherwise the documents are layered over the head's tree, so files outside
// the document namespace are kept. Push never removes remote files.
func (o *Orchestrator) Push(ctx context.Context, target models.SyncTarget, message string) (PushResult, error) {
	var res PushResult
	err := o.run(ctx, OpPush, target, func(ctx context.Context, target models.SyncTarget) (string, error) {
		var err error
		res, err = o.push(ctx, target, message)
		return res.CommitSHA, err
	})
	if err == nil {
		o.recordPush(res)
	}
	return res, err
}

// Clone replaces the local store with the documents on target. The store is
// left untouched if anything fails.
func (o *Orchestrator) Clone(ctx context.Context, target models.SyncTarget) (CloneResult, error) {
	var res CloneResult
	err := o.run(ctx, OpClone, target, func(ctx context.Context, target models.SyncTarget) (string, error) {
		head, err := o.cloneHead(ctx, target)
		if err != nil {
			return "", err
		}

		var docs []models.Document
		if head != "" {
			// Read every file from the same commit, even if the branch
			// moves during the walk.
			pinned := target
			pinned.Branch = head
			docs, err = clone.New(o.remote, pinned, o.concurrency).Clone(ctx)
			if err != nil {
				return "", err
			}
		}
		if err := o.store.ReplaceAll(ctx, docs); err != nil {
			return "", fmt.Errorf("replace local documents: %w", err)
		}
		res = CloneResult{Target: target, Documents: len(docs)}
		return "", nil
	})
	if err == nil {
		o.mu.Lock()
		o.status.LastClone = &res
		o.mu.Unlock()
	}
	return res, err
}

// Prune removes remote documents that no longer exist locally. It only
// touches files in the document namespace and creates no commit if there is
// nothing to remove.
func (o *Orchestrator) Prune(ctx context.Context, target models.SyncTarget, message string) (PushResult, error) {
	var res PushResult
	err := o.run(ctx, OpPrune, target, func(ctx context.Context, target models.SyncTarget) (string, error) {
		var err error
		res, err = o.prune(ctx, target, message)
		return res.CommitSHA, err
	})
	if err == nil && res.CommitSHA != "" {
		o.recordPush(res)
	}
	return res, err
}

// CreateAndPush creates a repository owned by the authenticated user and
// pushes the local documents to its default branch.
func (o *Orchestrator) CreateAndPush(ctx context.Context, name, description string, private bool, message string) (githost.Repository, PushResult, error) {
	var (
		repo githost.Repository
		res  PushResult
	)
	// The owner is only known once the host answers.
	placeholder := models.SyncTarget{Owner: "-", Repo: name}
	err := o.run(ctx, OpCreate, placeholder, func(ctx context.Context, _ models.SyncTarget) (string, error) {
		var err error
		// The Git data API needs at least one commit, so the host
		// initializes the repository with a README.
		repo, err = o.remote.CreateRepo(ctx, name, description, private, true)
		if err != nil {
			return "", syncerr.WrapErrorf(err, "create repository %s", name)
		}
		o.mu.Lock()
		o.status.Target = repo.Target()
		o.mu.Unlock()

		res, err = o.push(ctx, repo.Target(), message)
		return res.CommitSHA, err
	})
	if err == nil {
		o.recordPush(res)
	}
	return repo, res, err
}

func (o *Orchestrator) push(ctx context.Context, target models.SyncTarget, message string) (PushResult, error) {
	res := PushResult{Target: target, Mode: Update}
	logger := log.WithField("target", target.String())

	head, baseTree, err := o.readHead(ctx, target)
	if err != nil {
		return res, err
	}
	if head == "" {
		res.Mode = Bootstrap
	}
	res.ParentSHA = head

	docs, err := o.store.ListAll(ctx)
	if err != nil {
		return res, fmt.Errorf("snapshot local documents: %w", err)
	}
	if len(docs) == 0 && res.Mode == Bootstrap {
		return res, fmt.Errorf("nothing to push: the local store is empty")
	}

	paths := make([]string, len(docs))
	contents := make([]string, len(docs))
	for i, doc := range docs {
		path, err := encodePath(doc.Key)
		if err != nil {
			return res, err
		}
		paths[i] = path
		contents[i] = doc.Content
	}

	shas, err := publish.NewBlobPublisher(o.remote, target, o.concurrency).PublishAll(ctx, contents)
	if err != nil {
		return res, err
	}
	entries := make([]publish.TreeEntry, len(docs))
	for i := range docs {
		entries[i] = publish.TreeEntry{Path: paths[i], SHA: shas[contents[i]]}
	}

	if message == "" {
		message = fmt.Sprintf("Sync %d documents", len(docs))
	}
	res.Files = len(entries)
	if err := o.commit(ctx, target, entries, baseTree, head, message, &res); err != nil {
		return res, err
	}

	logger.WithFields(log.Fields{
		"mode":   res.Mode,
		"commit": res.CommitSHA,
		"files":  res.Files,
	}).Info("Pushed documents")
	return res, nil
}

func (o *Orchestrator) prune(ctx context.Context, target models.SyncTarget, message string) (PushResult, error) {
	res := PushResult{Target: target, Mode: Update}

	head, baseTree, err := o.readHead(ctx, target)
	if err != nil {
		return res, err
	}
	if head == "" {
		log.WithField("target", target.String()).Info("Branch does not exist, nothing to prune")
		return res, nil
	}
	res.ParentSHA = head

	// List the files of the commit being built on rather than whatever the
	// branch points at by now. The contents API takes a commit sha as ref.
	pinned := target
	pinned.Branch = head
	remotePaths, err := clone.New(o.remote, pinned, o.concurrency).ListPaths(ctx)
	if err != nil {
		return res, err
	}

	docs, err := o.store.ListAll(ctx)
	if err != nil {
		return res, fmt.Errorf("snapshot local documents: %w", err)
	}
	local := make(map[string]bool, len(docs))
	for _, doc := range docs {
		local[doc.Key] = true
	}

	var entries []publish.TreeEntry
	for _, path := range remotePaths {
		if key, _ := pathcodec.Decode(path); !local[key] {
			entries = append(entries, publish.TreeEntry{Path: path, Delete: true})
			res.Removed = append(res.Removed, path)
		}
	}
	if len(entries) == 0 {
		return res, nil
	}

	if message == "" {
		message = fmt.Sprintf("Remove %d documents", len(entries))
	}
	if err := o.commit(ctx, target, entries, baseTree, head, message, &res); err != nil {
		return res, err
	}
	log.WithFields(log.Fields{
		"target":  target.String(),
		"commit":  res.CommitSHA,
		"removed": len(res.Removed),
	}).Info("Pruned documents")
	return res, nil
}

// cloneHead checks that target's repository exists and returns the head of
// its branch. A repository without commits has no head yet and yields "". A
// missing repository or a missing branch other than the default one is
// ErrNotFound, since cloning it would wipe the local store.
func (o *Orchestrator) cloneHead(ctx context.Context, target models.SyncTarget) (string, error) {
	repo, err := o.remote.GetRepo(ctx, target.Owner, target.Repo)
	if err != nil {
		return "", fmt.Errorf("repository %s/%s: %w", target.Owner, target.Repo, err)
	}

	head, err := o.remote.GetBranchHead(ctx, target)
	switch {
	case errors.Is(err, syncerr.ErrNotFound) && target.Branch == repo.DefaultBranch:
		log.WithField("target", target.String()).Info("Repository has no commits, nothing to clone")
		return "", nil
	case errors.Is(err, syncerr.ErrNotFound):
		return "", fmt.Errorf("branch %s does not exist in %s/%s: %w",
			target.Branch, target.Owner, target.Repo, err)
	case err != nil:
		return "", fmt.Errorf("read branch %s: %w", target.Branch, err)
	}
	return head, nil
}

// readHead returns the branch head and its tree, or two empty strings if the
// branch does not exist.
func (o *Orchestrator) readHead(ctx context.Context, target models.SyncTarget) (head, tree string, err error) {
	head, err = o.remote.GetBranchHead(ctx, target)
	if errors.Is(err, syncerr.ErrNotFound) {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("read branch %s: %w", target.Branch, err)
	}
	commit, err := o.remote.GetCommit(ctx, target, head)
	if err != nil {
		return "", "", fmt.Errorf("read head commit %s: %w", head, err)
	}
	return head, commit.TreeSHA, nil
}

// commit builds the tree, commits it and moves the branch, filling in res.
func (o *Orchestrator) commit(ctx context.Context, target models.SyncTarget, entries []publish.TreeEntry, baseTree, parent, message string, res *PushResult) error {
	tree, err := publish.NewTreeBuilder(o.remote, target).Build(ctx, entries, baseTree)
	if err != nil {
		return err
	}
	res.TreeSHA = tree

	commit, err := publish.NewCommitPublisher(o.remote, target).Commit(ctx, tree, parent, message)
	if err != nil {
		return err
	}

	if err := publish.NewRefPublisher(o.remote, target).AdvanceRef(ctx, commit, parent); err != nil {
		return err
	}
	res.CommitSHA = commit
	return nil
}

// run executes one operation while holding the single sync slot, records it
// in the run log and updates the status.
func (o *Orchestrator) run(ctx context.Context, op string, target models.SyncTarget, fn func(context.Context, models.SyncTarget) (string, error)) error {
	target = target.WithDefaults()
	if op != OpCreate {
		if err := target.Validate(); err != nil {
			return err
		}
	}

	if !o.running.TryLock() {
		return syncerr.ErrSyncInProgress
	}
	defer o.running.Unlock()

	o.mu.Lock()
	o.status.State = Running
	o.status.Operation = op
	o.status.Target = target
	o.status.StartedAt = o.clock.Now()
	o.status.FinishedAt = time.Time{}
	o.status.LastError = ""
	o.mu.Unlock()

	logger := log.WithFields(log.Fields{"op": op, "target": target.String()})
	logger.Debug("Starting sync")

	runID, startErr := o.store.StartRun(ctx, op, target.String())
	if startErr != nil {
		logger.WithError(startErr).Warn("Failed to record sync run")
	}

	commit, err := fn(ctx, target)

	if startErr == nil {
		status := storage.RunSucceeded
		if err != nil {
			status = storage.RunFailed
		}
		// Record the outcome even if ctx was canceled.
		if finishErr := o.store.FinishRun(context.WithoutCancel(ctx), runID, status, commit, err); finishErr != nil {
			logger.WithError(finishErr).Warn("Failed to record sync run")
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.status.FinishedAt = o.clock.Now()
	if err != nil {
		o.status.State = Failed
		o.status.LastError = syncerr.Summary(err)
		logger.WithError(err).Error("Sync failed")
		return err
	}
	o.status.State = Succeeded
	return nil
}

func (o *Orchestrator) recordPush(res PushResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status.LastPush = &res
}

func encodePath(key string) (string, error) {
	path, err := pathcodec.Encode(key)
	if err != nil {
		return "", syncerr.Kind(syncerr.ErrEncoding, err)
	}
	return path, nil
}

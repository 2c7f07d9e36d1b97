// Package githost is a narrow client for the Git hosting provider's content
// and object REST API. Every response is converted into a small validated
// type; unexpected shapes are reported as syncerr.ErrEncoding.
//
// Read calls get a per-call timeout and a bounded number of retries on
// transient failures. Write calls get a timeout but are attempted once.
package githost

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/flexpertsdev/flexios-v1/internal/models"
	"github.com/flexpertsdev/flexios-v1/internal/syncerr"
)

const (
	// DefaultTimeout bounds a single remote call.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxAttempts is the number of tries for a read, including the
	// first one.
	DefaultMaxAttempts = 3

	// DefaultBaseDelay is the first retry delay. It doubles on every retry.
	DefaultBaseDelay = 200 * time.Millisecond
)

// Options configures a Client. Zero values select the defaults.
type Options struct {
	// BaseURL points the client at a different API root, e.g. a GitHub
	// Enterprise server or a test server.
	BaseURL string

	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration

	// Clock drives retry backoff. Mocked out for unit testing.
	Clock clockwork.Clock

	HTTPClient *http.Client
}

// Client talks to the Git hosting REST API on behalf of one credential.
type Client struct {
	gh          *github.Client
	timeout     time.Duration
	maxAttempts int
	baseDelay   time.Duration
	clock       clockwork.Clock
}

// New returns a Client that attaches token as a bearer credential to every
// call.
func New(token string, opts Options) (*Client, error) {
	if token == "" {
		return nil, syncerr.WrapError(syncerr.ErrAuth, "no access token configured")
	}

	gh := github.NewClient(opts.HTTPClient).WithAuthToken(token)
	if opts.BaseURL != "" {
		base := opts.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse api url: %w", err)
		}
		gh.BaseURL = u
	}

	c := &Client{
		gh:          gh,
		timeout:     opts.Timeout,
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.BaseDelay,
		clock:       opts.Clock,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultMaxAttempts
	}
	if c.baseDelay <= 0 {
		c.baseDelay = DefaultBaseDelay
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	return c, nil
}

// Repository is the identity of a hosted repository.
type Repository struct {
	Owner         string
	Name          string
	DefaultBranch string
	HTMLURL       string
	Private       bool
}

// Target returns the sync target for the repository's default branch.
func (r Repository) Target() models.SyncTarget {
	return models.SyncTarget{Owner: r.Owner, Repo: r.Name, Branch: r.DefaultBranch}.WithDefaults()
}

// Commit is a commit object.
type Commit struct {
	SHA     string
	TreeSHA string
	Parents []string
	Message string
}

// Entry types returned by ListDir.
const (
	EntryFile = "file"
	EntryDir  = "dir"
)

// ContentEntry is one item of a directory listing.
type ContentEntry struct {
	Type string
	Path string
	SHA  string
}

// TreeEntry binds a path to a blob inside a new tree. Delete removes the
// path from the base tree instead.
type TreeEntry struct {
	Path   string
	SHA    string
	Delete bool
}

const (
	fileMode = "100644"
	blobType = "blob"
)

// CreateRepo creates a repository owned by the authenticated user. autoInit
// makes the host create an initial commit on the default branch.
func (c *Client) CreateRepo(ctx context.Context, name, description string, private, autoInit bool) (Repository, error) {
	var repo *github.Repository
	err := c.write(ctx, "create repository", func(ctx context.Context) error {
		var err error
		repo, _, err = c.gh.Repositories.Create(ctx, "", &github.Repository{
			Name:        github.String(name),
			Description: github.String(description),
			Private:     github.Bool(private),
			AutoInit:    github.Bool(autoInit),
		})
		return err
	})
	if err != nil {
		return Repository{}, err
	}
	return toRepository(repo)
}

// GetRepo returns the identity of owner/name.
func (c *Client) GetRepo(ctx context.Context, owner, name string) (Repository, error) {
	var repo *github.Repository
	err := c.read(ctx, "get repository", func(ctx context.Context) error {
		var err error
		repo, _, err = c.gh.Repositories.Get(ctx, owner, name)
		return err
	})
	if err != nil {
		return Repository{}, err
	}
	return toRepository(repo)
}

// GetBranchHead returns the commit sha the tracked branch points at. It
// returns syncerr.ErrNotFound if the branch does not exist yet.
func (c *Client) GetBranchHead(ctx context.Context, t models.SyncTarget) (string, error) {
	var ref *github.Reference
	err := c.read(ctx, "get branch head", func(ctx context.Context) error {
		var err error
		ref, _, err = c.gh.Git.GetRef(ctx, t.Owner, t.Repo, "refs/heads/"+t.Branch)
		return err
	})
	if err != nil {
		// An empty repository has no refs at all.
		if StatusCode(err) == http.StatusConflict {
			return "", syncerr.Kind(syncerr.ErrNotFound, err)
		}
		return "", err
	}
	sha := ref.GetObject().GetSHA()
	if sha == "" {
		return "", malformed("ref %s has no target", t.Branch)
	}
	return sha, nil
}

// GetCommit fetches a commit object.
func (c *Client) GetCommit(ctx context.Context, t models.SyncTarget, sha string) (Commit, error) {
	var commit *github.Commit
	err := c.read(ctx, "get commit", func(ctx context.Context) error {
		var err error
		commit, _, err = c.gh.Git.GetCommit(ctx, t.Owner, t.Repo, sha)
		return err
	})
	if err != nil {
		return Commit{}, err
	}
	if commit.GetSHA() == "" || commit.GetTree().GetSHA() == "" {
		return Commit{}, malformed("commit %s has no tree", sha)
	}
	out := Commit{SHA: commit.GetSHA(), TreeSHA: commit.GetTree().GetSHA(), Message: commit.GetMessage()}
	for _, p := range commit.Parents {
		out.Parents = append(out.Parents, p.GetSHA())
	}
	return out, nil
}

// CreateBlob creates a blob from base64 encoded content and returns its sha.
func (c *Client) CreateBlob(ctx context.Context, t models.SyncTarget, b64 string) (string, error) {
	var blob *github.Blob
	err := c.write(ctx, "create blob", func(ctx context.Context) error {
		var err error
		blob, _, err = c.gh.Git.CreateBlob(ctx, t.Owner, t.Repo, &github.Blob{
			Content:  github.String(b64),
			Encoding: github.String("base64"),
		})
		return err
	})
	if err != nil {
		return "", err
	}
	if blob.GetSHA() == "" {
		return "", malformed("blob response has no sha")
	}
	return blob.GetSHA(), nil
}

// CreateTree creates a tree from entries, layered over baseTree if it is not
// empty, and returns its sha.
func (c *Client) CreateTree(ctx context.Context, t models.SyncTarget, baseTree string, entries []TreeEntry) (string, error) {
	ghEntries := make([]*github.TreeEntry, 0, len(entries))
	for _, e := range entries {
		entry := &github.TreeEntry{
			Path: github.String(e.Path),
			Mode: github.String(fileMode),
			Type: github.String(blobType),
		}
		// A nil SHA is sent as "sha": null, which removes the path.
		if !e.Delete {
			entry.SHA = github.String(e.SHA)
		}
		ghEntries = append(ghEntries, entry)
	}

	var tree *github.Tree
	err := c.write(ctx, "create tree", func(ctx context.Context) error {
		var err error
		tree, _, err = c.gh.Git.CreateTree(ctx, t.Owner, t.Repo, baseTree, ghEntries)
		return err
	})
	if err != nil {
		return "", err
	}
	if tree.GetSHA() == "" {
		return "", malformed("tree response has no sha")
	}
	return tree.GetSHA(), nil
}

// CreateCommit creates a commit object and returns its sha.
func (c *Client) CreateCommit(ctx context.Context, t models.SyncTarget, treeSHA string, parents []string, message string) (string, error) {
	commit := &github.Commit{
		Message: github.String(message),
		Tree:    &github.Tree{SHA: github.String(treeSHA)},
	}
	for _, p := range parents {
		commit.Parents = append(commit.Parents, &github.Commit{SHA: github.String(p)})
	}

	var created *github.Commit
	err := c.write(ctx, "create commit", func(ctx context.Context) error {
		var err error
		created, _, err = c.gh.Git.CreateCommit(ctx, t.Owner, t.Repo, commit, nil)
		return err
	})
	if err != nil {
		return "", err
	}
	if created.GetSHA() == "" {
		return "", malformed("commit response has no sha")
	}
	return created.GetSHA(), nil
}

// CreateRef creates the tracked branch pointing at sha.
func (c *Client) CreateRef(ctx context.Context, t models.SyncTarget, sha string) error {
	return c.write(ctx, "create ref", func(ctx context.Context) error {
		_, _, err := c.gh.Git.CreateRef(ctx, t.Owner, t.Repo, &github.Reference{
			Ref:    github.String("refs/heads/" + t.Branch),
			Object: &github.GitObject{SHA: github.String(sha)},
		})
		return err
	})
}

// UpdateRef moves the tracked branch to sha. The host rejects the update if
// it is not a fast-forward.
func (c *Client) UpdateRef(ctx context.Context, t models.SyncTarget, sha string) error {
	return c.write(ctx, "update ref", func(ctx context.Context) error {
		_, _, err := c.gh.Git.UpdateRef(ctx, t.Owner, t.Repo, &github.Reference{
			Ref:    github.String("refs/heads/" + t.Branch),
			Object: &github.GitObject{SHA: github.String(sha)},
		}, false)
		return err
	})
}

// ListDir lists the directory at path on the tracked branch. It returns
// syncerr.ErrNotFound if the path does not exist.
func (c *Client) ListDir(ctx context.Context, t models.SyncTarget, path string) ([]ContentEntry, error) {
	var file *github.RepositoryContent
	var dir []*github.RepositoryContent
	err := c.read(ctx, "list directory", func(ctx context.Context) error {
		var err error
		file, dir, _, err = c.gh.Repositories.GetContents(ctx, t.Owner, t.Repo, path,
			&github.RepositoryContentGetOptions{Ref: t.Branch})
		return err
	})
	if err != nil {
		return nil, err
	}
	if file != nil {
		return nil, malformed("%s is a file, expected a directory", path)
	}

	entries := make([]ContentEntry, 0, len(dir))
	for _, item := range dir {
		e := ContentEntry{Type: item.GetType(), Path: item.GetPath(), SHA: item.GetSHA()}
		if e.Path == "" {
			return nil, malformed("directory entry in %s has no path", path)
		}
		switch e.Type {
		case EntryFile, EntryDir:
		default:
			// Symlinks and submodules are never synced.
			log.WithFields(log.Fields{"path": e.Path, "type": e.Type}).Debug("Skipping unsupported entry")
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// GetFile returns the decoded content of the file at path on the tracked
// branch.
func (c *Client) GetFile(ctx context.Context, t models.SyncTarget, path string) (string, error) {
	var file *github.RepositoryContent
	err := c.read(ctx, "get file", func(ctx context.Context) error {
		var err error
		file, _, _, err = c.gh.Repositories.GetContents(ctx, t.Owner, t.Repo, path,
			&github.RepositoryContentGetOptions{Ref: t.Branch})
		return err
	})
	if err != nil {
		return "", err
	}
	if file == nil || file.GetType() != EntryFile {
		return "", malformed("%s is not a file", path)
	}

	// Files above the contents API size limit come back without content.
	if file.GetEncoding() == "none" {
		return c.getBlob(ctx, t, file.GetSHA())
	}
	content, err := file.GetContent()
	if err != nil {
		return "", syncerr.Kind(syncerr.ErrEncoding, fmt.Errorf("decode %s: %w", path, err))
	}
	return content, nil
}

func (c *Client) getBlob(ctx context.Context, t models.SyncTarget, sha string) (string, error) {
	if sha == "" {
		return "", malformed("file has neither content nor sha")
	}
	var raw []byte
	err := c.read(ctx, "get blob", func(ctx context.Context) error {
		var err error
		raw, _, err = c.gh.Git.GetBlobRaw(ctx, t.Owner, t.Repo, sha)
		return err
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func toRepository(repo *github.Repository) (Repository, error) {
	if repo == nil || repo.GetName() == "" || repo.GetOwner().GetLogin() == "" {
		return Repository{}, malformed("repository response has no owner or name")
	}
	return Repository{
		Owner:         repo.GetOwner().GetLogin(),
		Name:          repo.GetName(),
		DefaultBranch: repo.GetDefaultBranch(),
		HTMLURL:       repo.GetHTMLURL(),
		Private:       repo.GetPrivate(),
	}, nil
}

func malformed(format string, args ...interface{}) error {
	return syncerr.Kind(syncerr.ErrEncoding, fmt.Errorf("unexpected response: "+format, args...))
}

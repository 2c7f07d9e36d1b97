// Package clone reconstructs the local document set from the namespace
// directory of a remote branch.
package clone

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/flexpertsdev/flexios-v1/internal/githost"
	"github.com/flexpertsdev/flexios-v1/internal/models"
	"github.com/flexpertsdev/flexios-v1/internal/pathcodec"
	"github.com/flexpertsdev/flexios-v1/internal/syncerr"
)

// DefaultConcurrency is the number of listings or file fetches in flight at
// once.
const DefaultConcurrency = 4

// Remote reads directories and files of the tracked branch.
type Remote interface {
	ListDir(ctx context.Context, t models.SyncTarget, path string) ([]githost.ContentEntry, error)
	GetFile(ctx context.Context, t models.SyncTarget, path string) (string, error)
}

// Cloner walks the namespace directory of one sync target.
type Cloner struct {
	remote      Remote
	target      models.SyncTarget
	concurrency int
}

// New returns a Cloner for target. concurrency <= 0 selects
// DefaultConcurrency.
func New(remote Remote, target models.SyncTarget, concurrency int) *Cloner {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Cloner{remote: remote, target: target, concurrency: concurrency}
}

// Clone fetches every document stored under the namespace root, sorted by
// key. A missing root yields no documents.
func (c *Cloner) Clone(ctx context.Context) ([]models.Document, error) {
	paths, err := c.ListPaths(ctx)
	if err != nil {
		return nil, err
	}

	docs := make([]models.Document, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, path := range paths {
		g.Go(func() error {
			content, err := c.remote.GetFile(gctx, c.target, path)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", path, err)
			}
			key, _ := pathcodec.Decode(path)
			docs[i] = models.Document{Key: key, Content: content}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Key < docs[j].Key })
	log.WithFields(log.Fields{
		"target":    c.target.String(),
		"documents": len(docs),
	}).Info("Fetched remote documents")
	return docs, nil
}

// ListPaths returns the path of every file under the namespace root that
// decodes to a document key, sorted. Other files are skipped.
func (c *Cloner) ListPaths(ctx context.Context) ([]string, error) {
	var (
		mu    sync.Mutex
		files []string
	)

	// Directories are walked one level at a time; the worklist holds the
	// directories of the next level.
	pending := []string{pathcodec.Root}
	for depth := 0; len(pending) > 0; depth++ {
		var next []string
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.concurrency)
		for _, dir := range pending {
			g.Go(func() error {
				entries, err := c.remote.ListDir(gctx, c.target, dir)
				if errors.Is(err, syncerr.ErrNotFound) {
					// An absent root means an empty project. A directory
					// that vanished mid-walk has nothing left to clone.
					return nil
				}
				if err != nil {
					return fmt.Errorf("list %s: %w", dir, err)
				}

				mu.Lock()
				defer mu.Unlock()
				for _, e := range entries {
					switch e.Type {
					case githost.EntryDir:
						if pathcodec.IsNamespaceDir(e.Path) {
							next = append(next, e.Path)
						}
					case githost.EntryFile:
						if _, ok := pathcodec.Decode(e.Path); ok {
							files = append(files, e.Path)
						} else {
							log.WithField("path", e.Path).Debug("Skipping file outside the document namespace")
						}
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		log.WithFields(log.Fields{"depth": depth, "dirs": len(pending)}).Debug("Listed directories")
		pending = next
	}

	sort.Strings(files)
	return files, nil
}

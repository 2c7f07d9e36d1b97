// Package publish creates the remote objects of a push: blobs, a tree, a
// commit, and finally the branch ref. Objects are append-only on the remote;
// only AdvanceRef mutates remote state.
package publish

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/flexpertsdev/flexios-v1/internal/models"
	"github.com/flexpertsdev/flexios-v1/internal/syncerr"
)

// DefaultConcurrency is the number of blob uploads in flight at once.
const DefaultConcurrency = 4

// BlobCreator creates a blob from base64 content and returns its sha.
type BlobCreator interface {
	CreateBlob(ctx context.Context, t models.SyncTarget, b64 string) (string, error)
}

// BlobPublisher uploads document content as blobs.
type BlobPublisher struct {
	remote      BlobCreator
	target      models.SyncTarget
	concurrency int
}

// NewBlobPublisher returns a BlobPublisher for target. concurrency <= 0 selects
// DefaultConcurrency.
func NewBlobPublisher(remote BlobCreator, target models.SyncTarget, concurrency int) *BlobPublisher {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &BlobPublisher{remote: remote, target: target, concurrency: concurrency}
}

// Publish uploads content and returns the address the remote assigned. Equal
// content may come back with an address that already existed.
func (p *BlobPublisher) Publish(ctx context.Context, content string) (string, error) {
	if !utf8.ValidString(content) {
		return "", syncerr.Kind(syncerr.ErrEncoding, fmt.Errorf("content is not valid UTF-8"))
	}
	sha, err := p.remote.CreateBlob(ctx, p.target, base64.StdEncoding.EncodeToString([]byte(content)))
	if err != nil {
		return "", syncerr.Kind(syncerr.ErrPartialPublish, err)
	}
	return sha, nil
}

// PublishAll uploads every distinct value of contents once and returns a map
// from content to blob sha. The first failure cancels the remaining uploads.
func (p *BlobPublisher) PublishAll(ctx context.Context, contents []string) (map[string]string, error) {
	// Validate everything up front so bad input never reaches the remote.
	distinct := make([]string, 0, len(contents))
	seen := make(map[string]bool, len(contents))
	for _, c := range contents {
		if seen[c] {
			continue
		}
		if !utf8.ValidString(c) {
			return nil, syncerr.Kind(syncerr.ErrEncoding, fmt.Errorf("content is not valid UTF-8"))
		}
		seen[c] = true
		distinct = append(distinct, c)
	}

	var mu sync.Mutex
	shas := make(map[string]string, len(distinct))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, content := range distinct {
		g.Go(func() error {
			sha, err := p.Publish(gctx, content)
			if err != nil {
				return err
			}
			mu.Lock()
			shas[content] = sha
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"target": p.target.String(),
		"blobs":  len(shas),
	}).Debug("Published blobs")
	return shas, nil
}

package publish

import (
	"context"

	"github.com/flexpertsdev/flexios-v1/internal/models"
	"github.com/flexpertsdev/flexios-v1/internal/syncerr"
)

// CommitCreator creates a commit object.
type CommitCreator interface {
	CreateCommit(ctx context.Context, t models.SyncTarget, treeSHA string, parents []string, message string) (string, error)
}

// CommitPublisher creates commits with at most one parent.
type CommitPublisher struct {
	remote CommitCreator
	target models.SyncTarget
}

// NewCommitPublisher returns a CommitPublisher for target.
func NewCommitPublisher(remote CommitCreator, target models.SyncTarget) *CommitPublisher {
	return &CommitPublisher{remote: remote, target: target}
}

// Commit creates a commit of treeSHA. An empty parentSHA creates a root
// commit.
func (p *CommitPublisher) Commit(ctx context.Context, treeSHA, parentSHA, message string) (string, error) {
	var parents []string
	if parentSHA != "" {
		parents = []string{parentSHA}
	}
	sha, err := p.remote.CreateCommit(ctx, p.target, treeSHA, parents, message)
	if err != nil {
		return "", syncerr.Kind(syncerr.ErrPartialPublish, err)
	}
	return sha, nil
}

package publish

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/flexpertsdev/flexios-v1/internal/githost"
	"github.com/flexpertsdev/flexios-v1/internal/models"
	"github.com/flexpertsdev/flexios-v1/internal/syncerr"
)

// RefWriter reads and moves the tracked branch.
type RefWriter interface {
	GetBranchHead(ctx context.Context, t models.SyncTarget) (string, error)
	CreateRef(ctx context.Context, t models.SyncTarget, sha string) error
	UpdateRef(ctx context.Context, t models.SyncTarget, sha string) error
}

// RefPublisher moves the tracked branch. It is the only remote mutation of a
// push and always runs last.
type RefPublisher struct {
	remote RefWriter
	target models.SyncTarget
}

// NewRefPublisher returns a RefPublisher for target.
func NewRefPublisher(remote RefWriter, target models.SyncTarget) *RefPublisher {
	return &RefPublisher{remote: remote, target: target}
}

// AdvanceRef points the tracked branch at sha. An empty expectedPrior means
// the branch must not exist yet and is created. Otherwise the branch must
// still point at expectedPrior and is moved forward without force. Any
// disagreement is reported as syncerr.ErrRefConflict. It is never retried.
func (p *RefPublisher) AdvanceRef(ctx context.Context, sha, expectedPrior string) error {
	logger := log.WithFields(log.Fields{
		"target": p.target.String(),
		"commit": sha,
	})

	if expectedPrior == "" {
		err := p.remote.CreateRef(ctx, p.target, sha)
		if githost.StatusCode(err) == http.StatusUnprocessableEntity {
			return syncerr.Kind(syncerr.ErrRefConflict,
				fmt.Errorf("branch %s was created concurrently: %w", p.target.Branch, err))
		}
		if err != nil {
			return fmt.Errorf("create branch %s: %w", p.target.Branch, err)
		}
		logger.Info("Created branch")
		return nil
	}

	head, err := p.remote.GetBranchHead(ctx, p.target)
	if errors.Is(err, syncerr.ErrNotFound) {
		return syncerr.Kind(syncerr.ErrRefConflict,
			fmt.Errorf("branch %s was deleted concurrently", p.target.Branch))
	}
	if err != nil {
		return fmt.Errorf("read branch %s: %w", p.target.Branch, err)
	}
	if head != expectedPrior {
		return syncerr.Kind(syncerr.ErrRefConflict,
			fmt.Errorf("branch %s moved from %s to %s", p.target.Branch, expectedPrior, head))
	}

	err = p.remote.UpdateRef(ctx, p.target, sha)
	if githost.StatusCode(err) == http.StatusUnprocessableEntity {
		return syncerr.Kind(syncerr.ErrRefConflict,
			fmt.Errorf("branch %s rejected a non fast-forward update: %w", p.target.Branch, err))
	}
	if err != nil {
		return fmt.Errorf("update branch %s: %w", p.target.Branch, err)
	}
	logger.WithField("parent", expectedPrior).Info("Advanced branch")
	return nil
}

// Package util holds helpers shared by the flexios commands.
package util

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/flexpertsdev/flexios-v1/internal/config"
	"github.com/flexpertsdev/flexios-v1/internal/githost"
	"github.com/flexpertsdev/flexios-v1/internal/models"
	"github.com/flexpertsdev/flexios-v1/internal/storage"
	"github.com/flexpertsdev/flexios-v1/internal/syncer"
	"github.com/flexpertsdev/flexios-v1/internal/syncerr"
)

// Mocked for unit testing.
var (
	stderr     io.Writer = os.Stderr
	exit                 = os.Exit
	parseUser            = config.ParseUser
	openStore            = storage.Open
	syncErrors           = []error{
		syncerr.ErrSyncInProgress,
		syncerr.ErrAuth,
		syncerr.ErrNotFound,
		syncerr.ErrRefConflict,
		syncerr.ErrPartialPublish,
		syncerr.ErrEncoding,
		syncerr.ErrNetwork,
	}
)

// HandleFatalError prints err and exits. Sync failures are printed as their
// one line summary; the full chain is logged at debug level.
func HandleFatalError(err error) {
	log.WithError(err).Debug("Fatal error")
	msg := err.Error()
	for _, kind := range syncErrors {
		if errors.Is(err, kind) {
			msg = syncerr.Summary(err)
			break
		}
	}
	fmt.Fprintln(stderr, msg)
	exit(1)
}

// HandlePanic logs a panic with its stack before exiting.
func HandlePanic() {
	if r := recover(); r != nil {
		log.WithField("stack", string(debug.Stack())).Errorf("Panic: %v", r)
		exit(1)
	}
}

// SignalContext returns a context that is canceled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// TargetFlags lets a command override the configured sync target.
type TargetFlags struct {
	Owner, Repo, Branch string
}

// Register adds the --owner, --repo and --branch flags to cmd.
func (f *TargetFlags) Register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Owner, "owner", "",
		"Repository owner. Defaults to the owner in the user config.")
	cmd.Flags().StringVar(&f.Repo, "repo", "",
		"Repository name. Defaults to the repo in the user config.")
	cmd.Flags().StringVar(&f.Branch, "branch", "",
		"Tracked branch. Defaults to the branch in the user config, or main.")
}

// Resolve layers the flags over cfg and validates the result.
func (f TargetFlags) Resolve(cfg config.User) (models.SyncTarget, error) {
	target := models.SyncTarget{Owner: cfg.Owner, Repo: cfg.Repo, Branch: cfg.Branch}
	if f.Owner != "" {
		target.Owner = f.Owner
	}
	if f.Repo != "" {
		target.Repo = f.Repo
	}
	if f.Branch != "" {
		target.Branch = f.Branch
	}
	target = target.WithDefaults()
	if err := target.Validate(); err != nil {
		return models.SyncTarget{}, fmt.Errorf("%w. Set owner and repo in %s or pass --owner and --repo",
			err, config.UserConfigPath)
	}
	return target, nil
}

// Env is the state shared by commands that work on the local store.
type Env struct {
	Config config.User
	Store  *storage.Store
}

// OpenEnv parses the user config and opens the local store.
func OpenEnv() (*Env, error) {
	cfg, err := parseUser()
	if err != nil {
		return nil, fmt.Errorf("parse user config: %w", err)
	}
	store, err := openStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	log.WithField("dataDir", store.DataDir()).Debug("Opened local store")
	return &Env{Config: cfg, Store: store}, nil
}

// Close closes the local store.
func (e *Env) Close() {
	if err := e.Store.Close(); err != nil {
		log.WithError(err).Warn("Failed to close store")
	}
}

// Remote returns a Git host client using the configured token and API URL.
func (e *Env) Remote() (*githost.Client, error) {
	timeout, err := e.Config.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	client, err := githost.New(e.Config.Token, githost.Options{
		BaseURL: e.Config.APIURL,
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%w. Set %s to a token with repository access", err, config.TokenEnv)
	}
	return client, nil
}

// Orchestrator returns a sync orchestrator over the local store.
func (e *Env) Orchestrator() (*syncer.Orchestrator, error) {
	remote, err := e.Remote()
	if err != nil {
		return nil, err
	}
	return syncer.New(remote, e.Store, syncer.Options{Concurrency: e.Config.Concurrency}), nil
}

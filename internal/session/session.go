package session

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/flexpertsdev/flexios-v1/internal/models"
)

// Session holds the sync target chosen in one MCP session.
type Session struct {
	mu     sync.Mutex
	target models.SyncTarget
	set    bool
}

// New creates a session without a sync target.
func New() *Session {
	return &Session{}
}

// SetTarget validates target, fills in the default branch and makes it the
// session's sync target.
func (s *Session) SetTarget(target models.SyncTarget) (models.SyncTarget, error) {
	target = target.WithDefaults()
	if err := target.Validate(); err != nil {
		return models.SyncTarget{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = target
	s.set = true
	return target, nil
}

// Target returns the session's sync target, or false if none is set.
func (s *Session) Target() (models.SyncTarget, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target, s.set
}

// Registry keeps one Session per MCP session id. New sessions start with the
// configured default target, if it is valid.
type Registry struct {
	mu            sync.Mutex
	defaultTarget models.SyncTarget
	hasDefault    bool
	sessions      map[string]*Session
}

// NewRegistry creates an empty registry. An incomplete or invalid default
// target is logged and ignored, so new sessions start without one.
func NewRegistry(defaultTarget models.SyncTarget) *Registry {
	r := &Registry{sessions: map[string]*Session{}}
	if defaultTarget.Owner == "" && defaultTarget.Repo == "" {
		return r
	}

	target := defaultTarget.WithDefaults()
	if err := target.Validate(); err != nil {
		log.WithError(err).WithField("target", defaultTarget.String()).
			Warn("Ignoring invalid default sync target")
		return r
	}
	r.defaultTarget = target
	r.hasDefault = true
	return r
}

// Get returns the session for id, creating it if needed.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		return s
	}
	s := New()
	if r.hasDefault {
		s.target = r.defaultTarget
		s.set = true
	}
	r.sessions[id] = s
	return s
}

// Close drops every session, used during server shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = map[string]*Session{}
}

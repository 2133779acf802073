package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Lookup and lifecycle failures, wrapped with the session name. Callers
// branch with errors.Is.
var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
	ErrBusy     = errors.New("already running")
	ErrClosed   = errors.New("closed")
)

// Registry tracks live sessions by name. It owns lifecycle only; the
// sessions themselves never share state through it.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	logger   *zap.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger.Named("registry"),
	}
}

// Add registers a session under its name. Duplicate names are rejected;
// the caller keeps ownership of the rejected session.
func (r *Registry) Add(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.Name()]; ok {
		return fmt.Errorf("session %q %w", s.Name(), ErrExists)
	}
	r.sessions[s.Name()] = s
	r.logger.Info("Session registered",
		zap.String("session", s.Name()),
		zap.String("run_id", s.RunID()))
	return nil
}

// Get looks up a session by name.
func (r *Registry) Get(name string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[name]
	if !ok {
		return nil, fmt.Errorf("session %q %w", name, ErrNotFound)
	}
	return s, nil
}

// Remove deregisters and closes a session. The close error is returned
// but the entry is gone either way.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	s, ok := r.sessions[name]
	if ok {
		delete(r.sessions, name)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %q %w", name, ErrNotFound)
	}
	r.logger.Info("Session removed", zap.String("session", name))
	return s.Close()
}

// List returns all registered sessions sorted by name.
func (r *Registry) List() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// CloseAll closes every session best-effort and empties the registry,
// collecting per-session errors.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		s.Stop()
	}
	for _, s := range sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("session %q: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

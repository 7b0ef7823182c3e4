package admin

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lulukarama/izmirdisestetigi/internal/model"
	"github.com/lulukarama/izmirdisestetigi/internal/remote"
)

// State is a copy of the session as the console last saw it.
type State struct {
	IsAuthenticated bool            `json:"isAuthenticated"`
	IsLoading       bool            `json:"isLoading"`
	User            *model.Identity `json:"user"`
}

// SessionManager tracks whether an operator is signed in. It starts in the
// loading state, which only the first CheckAuth leaves and nothing re-enters.
type SessionManager struct {
	auth remote.Auth
	log  *slog.Logger

	mu    sync.RWMutex
	state State
	token string
	exp   time.Time
}

func NewSessionManager(a remote.Auth, log *slog.Logger) *SessionManager {
	if log == nil {
		log = slog.Default()
	}
	return &SessionManager{auth: a, log: log, state: State{IsLoading: true}}
}

func (m *SessionManager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.state
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

func (m *SessionManager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.IsAuthenticated
}

// CheckAuth restores a previous session if the remote still has one. Every
// failure lands in the signed-out state; it never returns an error.
func (m *SessionManager) CheckAuth(ctx context.Context) {
	sess, err := m.auth.GetSession(ctx)
	if err != nil {
		m.log.Warn("session check failed", "err", err)
		sess = nil
	}
	if sess == nil {
		m.set(State{}, nil)
		return
	}
	u := sess.User
	m.set(State{IsAuthenticated: true, User: &u}, sess)
}

func (m *SessionManager) Login(ctx context.Context, email, password string) error {
	sess, err := m.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		m.log.Info("login rejected", "email", email, "err", err)
		return &AuthError{Op: "login", Err: err}
	}
	u := sess.User
	m.mu.Lock()
	m.state.IsAuthenticated = true
	m.state.User = &u
	m.token, m.exp = sess.AccessToken, sess.ExpiresAt
	m.mu.Unlock()
	m.log.Info("operator signed in", "user", u.ID)
	return nil
}

// Logout keeps the operator signed in locally when the remote sign-out fails.
func (m *SessionManager) Logout(ctx context.Context) error {
	if err := m.auth.SignOut(ctx); err != nil {
		m.log.Warn("logout failed", "err", err)
		return &AuthError{Op: "logout", Err: err}
	}
	m.mu.Lock()
	m.state.IsAuthenticated = false
	m.state.User = nil
	m.token, m.exp = "", time.Time{}
	m.mu.Unlock()
	return nil
}

// AccessToken returns the bearer token of the current session, if any.
func (m *SessionManager) AccessToken() (string, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.exp
}

func (m *SessionManager) set(s State, sess *remote.Session) {
	m.mu.Lock()
	m.state = s
	m.token, m.exp = "", time.Time{}
	if sess != nil {
		m.token, m.exp = sess.AccessToken, sess.ExpiresAt
	}
	m.mu.Unlock()
}

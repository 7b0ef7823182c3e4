package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lulukarama/izmirdisestetigi/internal/auth"
	"github.com/lulukarama/izmirdisestetigi/internal/model"
	"github.com/lulukarama/izmirdisestetigi/internal/realtime"
	"github.com/lulukarama/izmirdisestetigi/internal/store"
)

type LocalConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Local serves the Client interface straight from the clinic database. The
// operator's tokens live in a TokenStore, the way a browser client keeps
// them in local storage.
type Local struct {
	store  *store.Store
	hub    realtime.Subscriber
	tokens TokenStore
	cfg    LocalConfig
	log    *slog.Logger
}

var _ Client = (*Local)(nil)

func NewLocal(st *store.Store, hub realtime.Subscriber, tokens TokenStore, cfg LocalConfig, log *slog.Logger) *Local {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if log == nil {
		log = slog.Default()
	}
	return &Local{store: st, hub: hub, tokens: tokens, cfg: cfg, log: log}
}

func (l *Local) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	u, err := l.store.UserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	sess, hash, err := l.issue(model.IdentityOf(u))
	if err != nil {
		return nil, err
	}
	if err := l.store.CreateSession(ctx, uuid.New().String(), u.ID, hash, time.Now().Add(l.cfg.RefreshTTL)); err != nil {
		return nil, err
	}
	if err := l.tokens.Save(&Tokens{AccessToken: sess.AccessToken, RefreshToken: sess.RefreshToken}); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	return sess, nil
}

// SignOut revokes every session of the signed-in user. Local tokens are only
// dropped once the revocation is stored.
func (l *Local) SignOut(ctx context.Context) error {
	t, err := l.tokens.Load()
	if err != nil {
		return err
	}
	if t == nil {
		return nil
	}
	as, err := l.store.SessionByTokenHash(ctx, auth.HashRefreshToken(t.RefreshToken))
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return err
	default:
		if err := l.store.RevokeUserSessions(ctx, as.UserID); err != nil {
			return err
		}
	}
	return l.tokens.Clear()
}

func (l *Local) GetSession(ctx context.Context) (*Session, error) {
	t, err := l.tokens.Load()
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, nil
	}

	as, err := l.store.SessionByTokenHash(ctx, auth.HashRefreshToken(t.RefreshToken))
	if errors.Is(err, store.ErrNotFound) {
		return nil, l.forget()
	}
	if err != nil {
		return nil, err
	}
	if !as.Live(time.Now()) {
		return nil, l.forget()
	}

	claims, err := auth.ParseToken(t.AccessToken, l.cfg.Secret)
	switch {
	case err == nil:
		return &Session{
			AccessToken:  t.AccessToken,
			RefreshToken: t.RefreshToken,
			ExpiresAt:    claims.ExpiresAt.Time,
			User:         claims.Identity(),
		}, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return l.refresh(ctx, as)
	default:
		l.log.Warn("discarding unreadable access token", "err", err)
		return nil, l.forget()
	}
}

// refresh trades the refresh token behind as for a new pair.
func (l *Local) refresh(ctx context.Context, as *store.AuthSession) (*Session, error) {
	u, err := l.store.UserByID(ctx, as.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, l.forget()
	}
	if err != nil {
		return nil, err
	}

	sess, hash, err := l.issue(model.IdentityOf(u))
	if err != nil {
		return nil, err
	}
	err = l.store.RotateSession(ctx, as.ID, uuid.New().String(), u.ID, hash, time.Now().Add(l.cfg.RefreshTTL))
	if errors.Is(err, store.ErrNotFound) {
		return nil, l.forget()
	}
	if err != nil {
		return nil, err
	}
	if err := l.tokens.Save(&Tokens{AccessToken: sess.AccessToken, RefreshToken: sess.RefreshToken}); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	return sess, nil
}

func (l *Local) issue(id model.Identity) (*Session, string, error) {
	access, exp, err := auth.MakeToken(id, l.cfg.Secret, l.cfg.AccessTTL)
	if err != nil {
		return nil, "", err
	}
	raw, hash, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, "", err
	}
	return &Session{AccessToken: access, RefreshToken: raw, ExpiresAt: exp, User: id}, hash, nil
}

func (l *Local) forget() error {
	return l.tokens.Clear()
}

func (l *Local) ListAppointments(ctx context.Context) ([]model.Appointment, error) {
	return l.store.ListAppointments(ctx)
}

func (l *Local) UpdateAppointmentStatus(ctx context.Context, id string, from, to model.Status) error {
	return l.store.UpdateAppointmentStatus(ctx, id, from, to)
}

func (l *Local) Subscribe(ctx context.Context, name string, scope realtime.Scope, h realtime.Handler) (realtime.Subscription, error) {
	return l.hub.Subscribe(ctx, name, scope, h)
}

func (l *Local) ListBlogPosts(ctx context.Context, publishedOnly bool) ([]model.BlogPost, error) {
	return l.store.ListBlogPosts(ctx, publishedOnly)
}

func (l *Local) BlogPost(ctx context.Context, id string) (*model.BlogPost, error) {
	return l.store.BlogPost(ctx, id)
}

func (l *Local) CreateBlogPost(ctx context.Context, p *model.BlogPost) error {
	return l.store.CreateBlogPost(ctx, p)
}

func (l *Local) UpdateBlogPost(ctx context.Context, p *model.BlogPost) error {
	return l.store.UpdateBlogPost(ctx, p)
}

func (l *Local) DeleteBlogPost(ctx context.Context, id string) error {
	return l.store.DeleteBlogPost(ctx, id)
}

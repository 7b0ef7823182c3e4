// Package remote is the data and auth service the admin console talks to:
// password sign-in with a persisted session, the appointments and blogs
// tables, and change channels.
package remote

import (
	"context"
	"errors"
	"time"

	"github.com/lulukarama/izmirdisestetigi/internal/model"
	"github.com/lulukarama/izmirdisestetigi/internal/realtime"
	"github.com/lulukarama/izmirdisestetigi/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotFound           = store.ErrNotFound
	ErrStatusConflict     = store.ErrStatusConflict
	ErrSlugTaken          = store.ErrSlugTaken
)

// Session is a signed-in operator.
type Session struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	ExpiresAt    time.Time      `json:"expires_at"`
	User         model.Identity `json:"user"`
}

type Auth interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context) error
	// GetSession returns the current session, or nil when there is none.
	GetSession(ctx context.Context) (*Session, error)
}

type Appointments interface {
	// ListAppointments returns every row ordered by created_at, newest first.
	ListAppointments(ctx context.Context) ([]model.Appointment, error)
	// UpdateAppointmentStatus writes to only while the row still holds from.
	UpdateAppointmentStatus(ctx context.Context, id string, from, to model.Status) error
}

type Channels interface {
	Subscribe(ctx context.Context, name string, scope realtime.Scope, h realtime.Handler) (realtime.Subscription, error)
}

type Blogs interface {
	ListBlogPosts(ctx context.Context, publishedOnly bool) ([]model.BlogPost, error)
	BlogPost(ctx context.Context, id string) (*model.BlogPost, error)
	CreateBlogPost(ctx context.Context, p *model.BlogPost) error
	UpdateBlogPost(ctx context.Context, p *model.BlogPost) error
	DeleteBlogPost(ctx context.Context, id string) error
}

type Client interface {
	Auth
	Appointments
	Channels
	Blogs
}

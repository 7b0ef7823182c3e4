// Package handler exposes the clinic over HTTP: the public site API
// (booking intake and blog reads) and the admin console API.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lulukarama/izmirdisestetigi/internal/admin"
	"github.com/lulukarama/izmirdisestetigi/internal/model"
	"github.com/lulukarama/izmirdisestetigi/internal/remote"
)

// Bookings stores booking requests from the public form.
type Bookings interface {
	CreateAppointment(ctx context.Context, a *model.Appointment) error
}

// PublishedPosts is the read side of the blog the public site needs.
type PublishedPosts interface {
	ListBlogPosts(ctx context.Context, publishedOnly bool) ([]model.BlogPost, error)
	BlogPostBySlug(ctx context.Context, slug string) (*model.BlogPost, error)
}

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Public serves the unauthenticated site API.
type Public struct {
	bookings Bookings
	posts    PublishedPosts
	db       Pinger
	log      *slog.Logger
}

func NewPublic(b Bookings, p PublishedPosts, db Pinger, log *slog.Logger) *Public {
	if log == nil {
		log = slog.Default()
	}
	return &Public{bookings: b, posts: p, db: db, log: log}
}

// Console serves the admin API on top of one long-lived admin.Console.
type Console struct {
	console *admin.Console
	blogs   remote.Blogs
	secret  string // verifies bearer tokens issued at login
	log     *slog.Logger
}

func NewConsole(c *admin.Console, blogs remote.Blogs, secret string, log *slog.Logger) *Console {
	if log == nil {
		log = slog.Default()
	}
	return &Console{console: c, blogs: blogs, secret: secret, log: log}
}

func fail(c echo.Context, code int, msg string) error {
	return c.JSON(code, echo.Map{"error": msg})
}

// failFor maps a console or store error onto a response.
func failFor(c echo.Context, log *slog.Logger, err error) error {
	var (
		auth *admin.AuthError
		tr   *admin.InvalidTransitionError
		pe   *admin.PersistenceError
	)
	switch {
	case errors.Is(err, admin.ErrNotAuthenticated):
		return fail(c, http.StatusUnauthorized, "not signed in")
	case errors.As(err, &auth) && errors.Is(err, remote.ErrInvalidCredentials):
		return fail(c, http.StatusUnauthorized, "invalid email or password")
	case errors.As(err, &tr):
		return fail(c, http.StatusConflict, tr.Error())
	case errors.Is(err, remote.ErrNotFound):
		return fail(c, http.StatusNotFound, "not found")
	case errors.Is(err, remote.ErrSlugTaken):
		return fail(c, http.StatusConflict, "slug already in use")
	case errors.As(err, &pe), errors.As(err, &auth):
		log.Warn("remote call failed", "path", c.Path(), "err", err)
		return fail(c, http.StatusBadGateway, "upstream error")
	}
	log.Error("request failed", "path", c.Path(), "err", err)
	return fail(c, http.StatusInternalServerError, "internal error")
}

func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

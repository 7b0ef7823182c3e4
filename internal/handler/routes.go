package handler

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/lulukarama/izmirdisestetigi/internal/middleware"
)

// Request body caps. Blog posts are the largest thing the console accepts.
const (
	PublicBodyLimit  = "64K"
	ConsoleBodyLimit = "1M"
)

func RegisterPublic(e *echo.Echo, h *Public, rl *middleware.RateLimiter) {
	e.Use(echomw.BodyLimit(PublicBodyLimit))
	e.GET("/healthz", h.Health)
	e.POST("/api/appointments", h.CreateAppointment, middleware.RateLimit(rl))
	e.GET("/api/blog", h.ListPosts)
	e.GET("/api/blog/:slug", h.GetPost)
}

func RegisterConsole(e *echo.Echo, h *Console, rl *middleware.RateLimiter) {
	e.Use(echomw.BodyLimit(ConsoleBodyLimit))
	e.GET("/healthz", Health)

	api := e.Group("/api")
	api.GET("/session", h.Session)
	api.POST("/login", h.Login, middleware.RateLimit(rl))

	g := api.Group("", middleware.RequireSession(h.console.Session, h.secret))
	g.POST("/logout", h.Logout)
	g.GET("/appointments", h.ListAppointments)
	g.POST("/appointments/refresh", h.Refresh)
	g.GET("/appointments/events", h.Events)
	g.PATCH("/appointments/:id", h.UpdateStatus)

	g.GET("/blog", h.ListPosts)
	g.POST("/blog", h.CreatePost)
	g.GET("/blog/:id", h.GetPost)
	g.PUT("/blog/:id", h.UpdatePost)
	g.DELETE("/blog/:id", h.DeletePost)
}

package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/lulukarama/izmirdisestetigi/internal/middleware"
	"github.com/lulukarama/izmirdisestetigi/internal/model"
	"github.com/lulukarama/izmirdisestetigi/internal/remote"
)

func (h *Public) ListPosts(c echo.Context) error {
	posts, err := h.posts.ListBlogPosts(c.Request().Context(), true)
	if err != nil {
		h.log.Error("list posts", "err", err)
		return fail(c, http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, echo.Map{"posts": posts})
}

// GetPost serves a published post by slug; drafts are reported as missing.
func (h *Public) GetPost(c echo.Context) error {
	p, err := h.posts.BlogPostBySlug(c.Request().Context(), c.Param("slug"))
	if errors.Is(err, remote.ErrNotFound) {
		return fail(c, http.StatusNotFound, "not found")
	}
	if err != nil {
		h.log.Error("get post", "err", err)
		return fail(c, http.StatusInternalServerError, "internal error")
	}
	if p.Status != model.PostPublished {
		return fail(c, http.StatusNotFound, "not found")
	}
	return c.JSON(http.StatusOK, p)
}

type postRequest struct {
	Title   string           `json:"title"`
	Slug    string           `json:"slug"`
	Content string           `json:"content"`
	Status  model.PostStatus `json:"status"`
	Author  string           `json:"author"`
}

func (r *postRequest) post(c echo.Context) (*model.BlogPost, string) {
	p := &model.BlogPost{
		Title:   strings.TrimSpace(r.Title),
		Content: r.Content,
		Status:  r.Status,
		Author:  strings.TrimSpace(r.Author),
	}
	if p.Title == "" {
		return nil, "title required"
	}
	if p.Status == "" {
		p.Status = model.PostDraft
	}
	if !p.Status.Valid() {
		return nil, "status must be draft or published"
	}
	slug := r.Slug
	if strings.TrimSpace(slug) == "" {
		slug = p.Title
	}
	if p.Slug = model.Slugify(slug); p.Slug == "" {
		return nil, "slug must contain letters or digits"
	}
	if p.Author == "" {
		if id, ok := c.Get(middleware.IdentityKey).(model.Identity); ok {
			p.Author = id.Name
		}
	}
	return p, ""
}

func (h *Console) ListPosts(c echo.Context) error {
	posts, err := h.blogs.ListBlogPosts(c.Request().Context(), false)
	if err != nil {
		return failFor(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"posts": posts})
}

func (h *Console) GetPost(c echo.Context) error {
	p, err := h.blogs.BlogPost(c.Request().Context(), c.Param("id"))
	if err != nil {
		return failFor(c, h.log, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Console) CreatePost(c echo.Context) error {
	var req postRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	p, problem := req.post(c)
	if problem != "" {
		return fail(c, http.StatusBadRequest, problem)
	}
	if err := h.blogs.CreateBlogPost(c.Request().Context(), p); err != nil {
		return failFor(c, h.log, err)
	}
	h.log.Info("post created", "id", p.ID, "slug", p.Slug)
	return c.JSON(http.StatusCreated, p)
}

func (h *Console) UpdatePost(c echo.Context) error {
	var req postRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	p, problem := req.post(c)
	if problem != "" {
		return fail(c, http.StatusBadRequest, problem)
	}
	p.ID = c.Param("id")
	if err := h.blogs.UpdateBlogPost(c.Request().Context(), p); err != nil {
		return failFor(c, h.log, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Console) DeletePost(c echo.Context) error {
	if err := h.blogs.DeleteBlogPost(c.Request().Context(), c.Param("id")); err != nil {
		return failFor(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

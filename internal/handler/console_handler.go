package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lulukarama/izmirdisestetigi/internal/admin"
	"github.com/lulukarama/izmirdisestetigi/internal/model"
)

const heartbeat = 25 * time.Second

func (h *Console) Session(c echo.Context) error {
	return c.JSON(http.StatusOK, h.console.Session.State())
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Console) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	if req.Email == "" || req.Password == "" {
		return fail(c, http.StatusBadRequest, "email and password required")
	}
	// a sign-in racing the startup restore would be overwritten by it
	if h.console.Session.State().IsLoading {
		c.Response().Header().Set("Retry-After", "1")
		return fail(c, http.StatusServiceUnavailable, "session check in progress")
	}
	if err := h.console.Login(c.Request().Context(), req.Email, req.Password); err != nil {
		return failFor(c, h.log, err)
	}
	tok, exp := h.console.Session.AccessToken()
	return c.JSON(http.StatusOK, loginResponse{State: h.console.Session.State(), AccessToken: tok, ExpiresAt: exp})
}

type loginResponse struct {
	admin.State
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (h *Console) Logout(c echo.Context) error {
	if err := h.console.Logout(c.Request().Context()); err != nil {
		return failFor(c, h.log, err)
	}
	return c.JSON(http.StatusOK, h.console.Session.State())
}

type appointmentsResponse struct {
	Appointments []model.Appointment `json:"appointments"`
	Total        int                 `json:"total"`
	FetchedAt    time.Time           `json:"fetched_at"`
	Version      uint64              `json:"version"`
	Query        admin.Query         `json:"query"`
}

// ListAppointments answers from the console's synchronized copy; it never
// reads the database itself.
func (h *Console) ListAppointments(c echo.Context) error {
	filter, err := admin.ParseStatusFilter(c.QueryParam("status"))
	if err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}
	q := admin.Query{Search: c.QueryParam("q"), Status: filter}
	snap := h.console.Appointments.Snapshot()
	return c.JSON(http.StatusOK, appointmentsResponse{
		Appointments: admin.Filter(snap.Appointments, q),
		Total:        len(snap.Appointments),
		FetchedAt:    snap.FetchedAt,
		Version:      snap.Version,
		Query:        q,
	})
}

func (h *Console) Refresh(c echo.Context) error {
	if err := h.console.Appointments.FetchAll(c.Request().Context()); err != nil {
		return failFor(c, h.log, err)
	}
	return c.JSON(http.StatusOK, h.console.Appointments.Snapshot())
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Console) UpdateStatus(c echo.Context) error {
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	to, err := model.ParseStatus(req.Status)
	if err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}
	id := c.Param("id")
	if err := h.console.View.SetStatus(c.Request().Context(), id, to); err != nil {
		return failFor(c, h.log, err)
	}
	if a, ok := h.console.Appointments.Get(id); ok {
		return c.JSON(http.StatusOK, a)
	}
	return c.NoContent(http.StatusNoContent)
}

// Events streams every new snapshot as a server-sent event until the client
// goes away. Slow clients skip intermediate snapshots and get the latest.
func (h *Console) Events(c echo.Context) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)

	updates := make(chan admin.Snapshot, 1)
	cancel := h.console.Appointments.OnChange(func(s admin.Snapshot) {
		select {
		case updates <- s:
		default:
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- s:
			default:
			}
		}
	})
	defer cancel()

	if err := writeEvent(res, "snapshot", h.console.Appointments.Snapshot()); err != nil {
		return nil
	}

	tick := time.NewTicker(heartbeat)
	defer tick.Stop()
	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-updates:
			if err := writeEvent(res, "snapshot", s); err != nil {
				h.log.Debug("event stream closed", "err", err)
				return nil
			}
		case <-tick.C:
			if _, err := fmt.Fprint(res, ": ping\n\n"); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

func writeEvent(res *echo.Response, name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", name, b); err != nil {
		return err
	}
	res.Flush()
	return nil
}

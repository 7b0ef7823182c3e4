package handler

import (
	"net/http"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/labstack/echo/v4"

	"github.com/lulukarama/izmirdisestetigi/internal/model"
)

const maxMessageRunes = 2000

type bookingRequest struct {
	FullName      string `json:"full_name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Service       string `json:"service"`
	Message       string `json:"message"`
	PreferredDate string `json:"preferred_date"`
}

func (r *bookingRequest) validate() (*model.Appointment, string) {
	a := &model.Appointment{
		FullName: strings.TrimSpace(r.FullName),
		Email:    strings.TrimSpace(r.Email),
		Phone:    strings.TrimSpace(r.Phone),
		Service:  strings.TrimSpace(r.Service),
	}
	if utf8.RuneCountInString(a.FullName) < 2 {
		return nil, "full_name must be at least 2 characters"
	}
	if addr, err := mail.ParseAddress(a.Email); err != nil || addr.Address != a.Email {
		return nil, "email is invalid"
	}
	if len(a.Phone) < 10 {
		return nil, "phone must be at least 10 characters"
	}
	if a.Service == "" {
		return nil, "service required"
	}
	d, err := model.ParseDate(r.PreferredDate)
	if err != nil {
		return nil, "preferred_date must be YYYY-MM-DD"
	}
	a.PreferredDate = d
	if utf8.RuneCountInString(r.Message) > maxMessageRunes {
		return nil, "message must be at most 2000 characters"
	}
	if msg := strings.TrimSpace(r.Message); msg != "" {
		a.Message = &msg
	}
	return a, ""
}

// CreateAppointment takes a booking from the public form. It always lands as
// pending; the console decides what happens next.
func (h *Public) CreateAppointment(c echo.Context) error {
	var req bookingRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid body")
	}
	a, problem := req.validate()
	if problem != "" {
		return fail(c, http.StatusBadRequest, problem)
	}
	if err := h.bookings.CreateAppointment(c.Request().Context(), a); err != nil {
		h.log.Error("store booking", "err", err)
		return fail(c, http.StatusInternalServerError, "internal error")
	}
	h.log.Info("booking received", "id", a.ID, "service", a.Service)
	return c.JSON(http.StatusCreated, echo.Map{"id": a.ID, "status": a.Status})
}

func (h *Public) Health(c echo.Context) error {
	if err := h.db.Ping(c.Request().Context()); err != nil {
		return fail(c, http.StatusServiceUnavailable, "database unavailable")
	}
	return Health(c)
}

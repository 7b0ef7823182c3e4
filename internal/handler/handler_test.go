package handler_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lulukarama/izmirdisestetigi/internal/admin"
	"github.com/lulukarama/izmirdisestetigi/internal/auth"
	"github.com/lulukarama/izmirdisestetigi/internal/handler"
	"github.com/lulukarama/izmirdisestetigi/internal/middleware"
	"github.com/lulukarama/izmirdisestetigi/internal/model"
	"github.com/lulukarama/izmirdisestetigi/internal/remote"
	"github.com/lulukarama/izmirdisestetigi/internal/remote/remotetest"
)

const (
	opsEmail = "ops@clinic.test"
	opsPass  = "s3cret-pass"
)

var base = time.Date(2024, time.April, 1, 9, 0, 0, 0, time.UTC)

func seedRows() []model.Appointment {
	mk := func(id, name, phone string, day int) model.Appointment {
		return model.Appointment{
			ID: id, FullName: name, Email: id + "@mail.test", Phone: phone, Service: "cleaning",
			PreferredDate: model.NewDate(2024, time.May, day), Status: model.StatusPending,
			CreatedAt: base.AddDate(0, 0, day),
		}
	}
	return []model.Appointment{
		mk("a1", "Ali Kaya", "5551000001", 1),
		mk("a2", "Maria Lopez", "5551000002", 2),
		mk("a3", "John Smith", "5551000003", 3),
	}
}

type consoleEnv struct {
	e       *echo.Echo
	fake    *remotetest.Fake
	console *admin.Console
	user    model.Identity
	token   string // sent as a bearer token by do
}

func newConsoleEnv(t *testing.T, start bool) *consoleEnv {
	t.Helper()
	f := remotetest.New()
	user := f.AddUser(opsEmail, opsPass, "Dr. Ayse")
	f.Seed(seedRows()...)

	c := admin.NewConsole(f, nil)
	t.Cleanup(c.Close)
	if start {
		c.Start(context.Background())
	}

	rl := middleware.NewRateLimiter(100, 100)
	t.Cleanup(rl.Stop)

	e := echo.New()
	handler.RegisterConsole(e, handler.NewConsole(c, f, remotetest.Secret, nil), rl)
	return &consoleEnv{e: e, fake: f, console: c, user: user}
}

func (env *consoleEnv) do(method, path, body string) *httptest.ResponseRecorder {
	return env.send(method, path, body, env.token)
}

func (env *consoleEnv) send(method, path, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

type loginBody struct {
	admin.State
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (env *consoleEnv) login(t *testing.T) {
	t.Helper()
	rec := env.do(http.MethodPost, "/api/login", `{"email":"`+opsEmail+`","password":"`+opsPass+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	env.token = decode[loginBody](t, rec).AccessToken
	require.NotEmpty(t, env.token)
}

type listBody struct {
	Appointments []model.Appointment `json:"appointments"`
	Total        int                 `json:"total"`
	Version      uint64              `json:"version"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestConsoleLoadingThenUnauthorized(t *testing.T) {
	env := newConsoleEnv(t, false)
	// a token from an earlier session, still signed and unexpired
	tok, _, err := auth.MakeToken(env.user, remotetest.Secret, time.Hour)
	require.NoError(t, err)
	env.token = tok

	assert.Equal(t, http.StatusServiceUnavailable, env.do(http.MethodGet, "/api/appointments", "").Code)
	st := decode[admin.State](t, env.do(http.MethodGet, "/api/session", ""))
	assert.True(t, st.IsLoading)

	env.console.Start(context.Background())
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/api/appointments", "").Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPatch, "/api/appointments/a1", `{"status":"confirmed"}`).Code)
	assert.Zero(t, env.fake.Lists)
}

func TestConsoleLogin(t *testing.T) {
	env := newConsoleEnv(t, true)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/login", `{"email":""}`).Code)
	assert.Equal(t, http.StatusUnauthorized,
		env.do(http.MethodPost, "/api/login", `{"email":"`+opsEmail+`","password":"wrong"}`).Code)

	rec := env.do(http.MethodPost, "/api/login", `{"email":"`+opsEmail+`","password":"`+opsPass+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[loginBody](t, rec)
	assert.True(t, st.IsAuthenticated)
	assert.False(t, st.IsLoading)
	require.NotNil(t, st.User)
	assert.Equal(t, "Dr. Ayse", st.User.Name)
	assert.True(t, st.ExpiresAt.After(time.Now()))

	claims, err := auth.ParseToken(st.AccessToken, remotetest.Secret)
	require.NoError(t, err)
	assert.Equal(t, st.User.ID, claims.UserID)

	env.token = st.AccessToken
	body := decode[listBody](t, env.do(http.MethodGet, "/api/appointments", ""))
	assert.Equal(t, 3, body.Total)
	assert.Equal(t, "a3", body.Appointments[0].ID)
}

func TestConsoleLogout(t *testing.T) {
	env := newConsoleEnv(t, true)
	env.login(t)

	env.fake.SignOutErr = errors.New("timeout")
	assert.Equal(t, http.StatusBadGateway, env.do(http.MethodPost, "/api/logout", "").Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/appointments", "").Code)

	env.fake.SignOutErr = nil
	rec := env.do(http.MethodPost, "/api/logout", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[admin.State](t, rec).IsAuthenticated)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/api/appointments", "").Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/api/logout", "").Code)
}

func TestConsoleRequiresBearerAfterLogin(t *testing.T) {
	env := newConsoleEnv(t, true)
	env.login(t)

	assert.Equal(t, http.StatusUnauthorized, env.send(http.MethodGet, "/api/appointments", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized,
		env.send(http.MethodPatch, "/api/appointments/a2", `{"status":"confirmed"}`, "").Code)
	assert.Equal(t, http.StatusUnauthorized, env.send(http.MethodGet, "/api/appointments/events", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, env.send(http.MethodPost, "/api/logout", "", "").Code)

	forged, _, err := auth.MakeToken(env.user, "not-the-secret", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, env.send(http.MethodGet, "/api/appointments", "", forged).Code)

	assert.Zero(t, env.fake.Updates)
	assert.Equal(t, model.StatusPending, env.fake.Rows()[1].Status)
	assert.True(t, env.console.Session.State().IsAuthenticated)

	// the operator's own token still works
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/appointments", "").Code)
}

func TestConsoleLoginWhileLoading(t *testing.T) {
	env := newConsoleEnv(t, false)

	rec := env.do(http.MethodPost, "/api/login", `{"email":"`+opsEmail+`","password":"`+opsPass+`"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.True(t, env.console.Session.State().IsLoading)
	assert.False(t, env.console.Session.State().IsAuthenticated)

	env.console.Start(context.Background())
	env.login(t)
	assert.True(t, env.console.Session.State().IsAuthenticated)
}

func TestConsoleListFilters(t *testing.T) {
	env := newConsoleEnv(t, true)
	env.login(t)

	body := decode[listBody](t, env.do(http.MethodGet, "/api/appointments?q=MARIA", ""))
	require.Len(t, body.Appointments, 1)
	assert.Equal(t, "a2", body.Appointments[0].ID)
	assert.Equal(t, 3, body.Total)

	body = decode[listBody](t, env.do(http.MethodGet, "/api/appointments?q=5551000003&status=pending", ""))
	require.Len(t, body.Appointments, 1)
	assert.Equal(t, "a3", body.Appointments[0].ID)

	rec := env.do(http.MethodGet, "/api/appointments?q=nobody&status=cancelled", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"appointments":[]`)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/appointments?status=archived", "").Code)
}

func TestConsoleUpdateStatus(t *testing.T) {
	env := newConsoleEnv(t, true)
	env.login(t)

	rec := env.do(http.MethodPatch, "/api/appointments/a2", `{"status":"confirmed"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.StatusConfirmed, decode[model.Appointment](t, rec).Status)

	body := decode[listBody](t, env.do(http.MethodGet, "/api/appointments", ""))
	assert.Equal(t, []model.Status{model.StatusPending, model.StatusConfirmed, model.StatusPending},
		[]model.Status{body.Appointments[0].Status, body.Appointments[1].Status, body.Appointments[2].Status})

	assert.Equal(t, http.StatusConflict, env.do(http.MethodPatch, "/api/appointments/a2", `{"status":"cancelled"}`).Code)
	assert.Equal(t, http.StatusConflict, env.do(http.MethodPatch, "/api/appointments/a1", `{"status":"pending"}`).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPatch, "/api/appointments/a1", `{"status":"done"}`).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodPatch, "/api/appointments/zzz", `{"status":"confirmed"}`).Code)

	env.fake.UpdateErr = errors.New("connection reset")
	assert.Equal(t, http.StatusBadGateway, env.do(http.MethodPatch, "/api/appointments/a1", `{"status":"confirmed"}`).Code)
}

func TestConsoleRefresh(t *testing.T) {
	env := newConsoleEnv(t, true)
	env.login(t)
	lists := env.fake.Lists

	rec := env.do(http.MethodPost, "/api/appointments/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, lists+1, env.fake.Lists)

	env.fake.ListErr = errors.New("503")
	assert.Equal(t, http.StatusBadGateway, env.do(http.MethodPost, "/api/appointments/refresh", "").Code)
}

func TestConsoleBlog(t *testing.T) {
	env := newConsoleEnv(t, true)
	env.login(t)

	rec := env.do(http.MethodPost, "/api/blog", `{"title":"Teeth Whitening: 5 Tips!","content":"..."}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	post := decode[model.BlogPost](t, rec)
	assert.Equal(t, "teeth-whitening-5-tips", post.Slug)
	assert.Equal(t, model.PostDraft, post.Status)
	assert.Equal(t, "Dr. Ayse", post.Author)

	assert.Equal(t, http.StatusConflict,
		env.do(http.MethodPost, "/api/blog", `{"title":"Other","slug":"Teeth whitening 5 tips"}`).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/blog", `{"title":""}`).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/blog", `{"title":"x","status":"live"}`).Code)

	rec = env.do(http.MethodPut, "/api/blog/"+post.ID, `{"title":"Whitening","status":"published","content":"new"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.PostPublished, decode[model.BlogPost](t, rec).Status)

	list, err := env.fake.ListBlogPosts(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "whitening", list[0].Slug)

	assert.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, "/api/blog/"+post.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/blog/"+post.ID, "").Code)
}

func TestConsoleEventStream(t *testing.T) {
	env := newConsoleEnv(t, true)
	env.login(t)

	srv := httptest.NewServer(env.e)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/appointments/events", nil)
	require.NoError(t, err)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+env.token)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "text/event-stream", res.Header.Get(echo.HeaderContentType))

	events := make(chan admin.Snapshot, 4)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sc := bufio.NewScanner(res.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			data, ok := strings.CutPrefix(sc.Text(), "data: ")
			if !ok {
				continue
			}
			var s admin.Snapshot
			if json.Unmarshal([]byte(data), &s) == nil {
				events <- s
			}
		}
	}()

	first := <-events
	assert.Len(t, first.Appointments, 3)

	env.fake.Book(context.Background(), model.Appointment{
		FullName: "Walk In", Email: "walk@mail.test", Phone: "5552223333", Service: "checkup",
		CreatedAt: base.AddDate(0, 0, 30),
	})

	select {
	case next := <-events:
		require.Len(t, next.Appointments, 4)
		assert.Equal(t, "Walk In", next.Appointments[0].FullName)
		assert.Greater(t, next.Version, first.Version)
	case <-time.After(5 * time.Second):
		t.Fatal("no snapshot after booking")
	}

	cancel()
	wg.Wait()
}

// ----- public site -----

type bookingSink struct {
	mu   sync.Mutex
	rows []model.Appointment
	err  error
}

func (b *bookingSink) CreateAppointment(_ context.Context, a *model.Appointment) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	a.ID = "new-id"
	a.Status = model.StatusPending
	b.rows = append(b.rows, *a)
	return nil
}

type postShelf []model.BlogPost

func (p postShelf) ListBlogPosts(_ context.Context, publishedOnly bool) ([]model.BlogPost, error) {
	out := []model.BlogPost{}
	for _, x := range p {
		if !publishedOnly || x.Status == model.PostPublished {
			out = append(out, x)
		}
	}
	return out, nil
}

func (p postShelf) BlogPostBySlug(_ context.Context, slug string) (*model.BlogPost, error) {
	for _, x := range p {
		if x.Slug == slug {
			return &x, nil
		}
	}
	return nil, remote.ErrNotFound
}

type pingErr struct{ err error }

func (p pingErr) Ping(context.Context) error { return p.err }

func newPublic(t *testing.T, sink *bookingSink, db error) *echo.Echo {
	t.Helper()
	shelf := postShelf{
		{ID: "p1", Title: "Whitening", Slug: "whitening", Status: model.PostPublished},
		{ID: "p2", Title: "Soon", Slug: "soon", Status: model.PostDraft},
	}
	rl := middleware.NewRateLimiter(100, 100)
	t.Cleanup(rl.Stop)
	e := echo.New()
	handler.RegisterPublic(e, handler.NewPublic(sink, shelf, pingErr{db}, nil), rl)
	return e
}

func post(e *echo.Echo, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func get(e *echo.Echo, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestBookingIntake(t *testing.T) {
	sink := &bookingSink{}
	e := newPublic(t, sink, nil)

	rec := post(e, "/api/appointments", `{"full_name":" Maria Lopez ","email":"maria@example.com",
		"phone":"5551234567","service":"whitening","message":"","preferred_date":"2024-05-02"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"id":"new-id","status":"pending"}`, rec.Body.String())

	require.Len(t, sink.rows, 1)
	got := sink.rows[0]
	assert.Equal(t, "Maria Lopez", got.FullName)
	assert.Nil(t, got.Message)
	assert.Equal(t, model.NewDate(2024, time.May, 2), got.PreferredDate)
}

func TestBookingValidation(t *testing.T) {
	e := newPublic(t, &bookingSink{}, nil)
	good := map[string]string{
		"full_name": "Maria Lopez", "email": "maria@example.com", "phone": "5551234567",
		"service": "whitening", "preferred_date": "2024-05-02",
	}
	tests := []struct {
		name  string
		field string
		value string
	}{
		{"short name", "full_name", "M"},
		{"bad email", "email", "maria-at-example"},
		{"display name email", "email", "Maria <maria@example.com>"},
		{"short phone", "phone", "555123"},
		{"no service", "service", "  "},
		{"bad date", "preferred_date", "02/05/2024"},
		{"long message", "message", strings.Repeat("ü", 2001)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := map[string]string{}
			for k, v := range good {
				body[k] = v
			}
			body[tt.field] = tt.value
			raw, _ := json.Marshal(body)
			rec := post(e, "/api/appointments", string(raw))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "error")
		})
	}
}

func TestBookingMessageAtLimit(t *testing.T) {
	sink := &bookingSink{}
	e := newPublic(t, sink, nil)
	raw, _ := json.Marshal(map[string]string{
		"full_name": "Maria Lopez", "email": "maria@example.com", "phone": "5551234567",
		"service": "whitening", "preferred_date": "2024-05-02", "message": strings.Repeat("ü", 2000),
	})
	rec := post(e, "/api/appointments", string(raw))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, sink.rows, 1)
	require.NotNil(t, sink.rows[0].Message)
}

func TestBookingBodyTooLarge(t *testing.T) {
	sink := &bookingSink{}
	e := newPublic(t, sink, nil)
	body := `{"full_name":"Maria Lopez","email":"maria@example.com","phone":"5551234567",` +
		`"service":"whitening","preferred_date":"2024-05-02","message":"` + strings.Repeat("a", 70*1024) + `"}`
	rec := post(e, "/api/appointments", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, sink.rows)
}

func TestBookingStoreFailure(t *testing.T) {
	e := newPublic(t, &bookingSink{err: errors.New("db down")}, nil)
	rec := post(e, "/api/appointments", `{"full_name":"Maria","email":"m@example.com","phone":"5551234567",
		"service":"x","preferred_date":"2024-05-02"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPublicBlog(t *testing.T) {
	e := newPublic(t, &bookingSink{}, nil)

	rec := get(e, "/api/blog")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Posts []model.BlogPost `json:"posts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Posts, 1)
	assert.Equal(t, "whitening", body.Posts[0].Slug)

	assert.Equal(t, http.StatusOK, get(e, "/api/blog/whitening").Code)
	assert.Equal(t, http.StatusNotFound, get(e, "/api/blog/soon").Code)
	assert.Equal(t, http.StatusNotFound, get(e, "/api/blog/missing").Code)
}

func TestPublicHealth(t *testing.T) {
	assert.Equal(t, http.StatusOK, get(newPublic(t, &bookingSink{}, nil), "/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(newPublic(t, &bookingSink{}, errors.New("down")), "/healthz").Code)
}

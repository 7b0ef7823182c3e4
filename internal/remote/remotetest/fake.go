// Package remotetest provides an in-memory remote.Client for tests.
package remotetest

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lulukarama/izmirdisestetigi/internal/auth"
	"github.com/lulukarama/izmirdisestetigi/internal/model"
	"github.com/lulukarama/izmirdisestetigi/internal/realtime"
	"github.com/lulukarama/izmirdisestetigi/internal/remote"
)

const channel = "appointments_changes"

// Secret signs the access tokens the fake hands out.
const Secret = "remotetest-secret"

func session(id model.Identity) *remote.Session {
	tok, exp, err := auth.MakeToken(id, Secret, time.Hour)
	if err != nil {
		panic(err)
	}
	return &remote.Session{AccessToken: tok, User: id, ExpiresAt: exp}
}

// Fake stores rows in memory and announces appointment writes on an
// in-process hub. The *Err fields inject failures into the matching call.
type Fake struct {
	mu       sync.Mutex
	users    map[string]fakeUser // by email
	current  *remote.Session
	rows     []model.Appointment // remote order: newest first
	posts    map[string]model.BlogPost
	Hub      *realtime.Memory
	now      func() time.Time
	listHook func()

	SignInErr     error
	SignOutErr    error
	GetSessionErr error
	ListErr       error
	UpdateErr     error
	SubscribeErr  error

	Lists   int
	Updates int
}

type fakeUser struct {
	password string
	identity model.Identity
}

var _ remote.Client = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		users: make(map[string]fakeUser),
		posts: make(map[string]model.BlogPost),
		Hub:   realtime.NewMemory(),
		now:   time.Now,
	}
}

// AddUser registers an operator account.
func (f *Fake) AddUser(email, password, name string) model.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := model.Identity{ID: uuid.New().String(), Email: email, Name: model.DisplayName(name, email)}
	f.users[email] = fakeUser{password: password, identity: id}
	return id
}

// Restore pretends a previous process left a session behind.
func (f *Fake) Restore(email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[email]
	f.current = session(u.identity)
}

// Seed inserts rows as if a booking form created them, without announcing.
func (f *Fake) Seed(rows ...model.Appointment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range rows {
		f.rows = append(f.rows, a.Clone())
	}
	sortRows(f.rows)
}

// Book inserts a pending row and announces it like an external booking.
func (f *Fake) Book(ctx context.Context, a model.Appointment) model.Appointment {
	f.mu.Lock()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = f.now()
	}
	a.Status = model.StatusPending
	f.rows = append(f.rows, a.Clone())
	sortRows(f.rows)
	f.mu.Unlock()

	f.announce(ctx, realtime.EventInsert, a.ID)
	return a
}

// SetRemoteStatus changes a row behind the console's back, as another admin
// would, and announces it.
func (f *Fake) SetRemoteStatus(ctx context.Context, id string, s model.Status) {
	f.mu.Lock()
	for i := range f.rows {
		if f.rows[i].ID == id {
			f.rows[i].Status = s
		}
	}
	f.mu.Unlock()
	f.announce(ctx, realtime.EventUpdate, id)
}

// OnList runs fn inside every ListAppointments call before it returns.
func (f *Fake) OnList(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listHook = fn
}

func (f *Fake) Rows() []model.Appointment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneRows(f.rows)
}

func (f *Fake) SignInWithPassword(_ context.Context, email, password string) (*remote.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SignInErr != nil {
		return nil, f.SignInErr
	}
	u, ok := f.users[email]
	if !ok || u.password != password {
		return nil, remote.ErrInvalidCredentials
	}
	f.current = session(u.identity)
	cp := *f.current
	return &cp, nil
}

func (f *Fake) SignOut(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SignOutErr != nil {
		return f.SignOutErr
	}
	f.current = nil
	return nil
}

func (f *Fake) GetSession(context.Context) (*remote.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GetSessionErr != nil {
		return nil, f.GetSessionErr
	}
	if f.current == nil {
		return nil, nil
	}
	cp := *f.current
	return &cp, nil
}

func (f *Fake) ListAppointments(context.Context) ([]model.Appointment, error) {
	f.mu.Lock()
	f.Lists++
	if f.ListErr != nil {
		err := f.ListErr
		f.mu.Unlock()
		return nil, err
	}
	out := cloneRows(f.rows)
	hook := f.listHook
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out, nil
}

func (f *Fake) UpdateAppointmentStatus(ctx context.Context, id string, from, to model.Status) error {
	f.mu.Lock()
	f.Updates++
	if f.UpdateErr != nil {
		err := f.UpdateErr
		f.mu.Unlock()
		return err
	}
	i := slices.IndexFunc(f.rows, func(a model.Appointment) bool { return a.ID == id })
	if i < 0 {
		f.mu.Unlock()
		return remote.ErrNotFound
	}
	if f.rows[i].Status != from {
		f.mu.Unlock()
		return remote.ErrStatusConflict
	}
	f.rows[i].Status = to
	f.mu.Unlock()

	f.announce(ctx, realtime.EventUpdate, id)
	return nil
}

func (f *Fake) Subscribe(ctx context.Context, name string, scope realtime.Scope, h realtime.Handler) (realtime.Subscription, error) {
	f.mu.Lock()
	err := f.SubscribeErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Hub.Subscribe(ctx, name, scope, h)
}

func (f *Fake) ListBlogPosts(_ context.Context, publishedOnly bool) ([]model.BlogPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.BlogPost{}
	for _, p := range f.posts {
		if publishedOnly && p.Status != model.PostPublished {
			continue
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b model.BlogPost) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (f *Fake) BlogPost(_ context.Context, id string) (*model.BlogPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok {
		return nil, remote.ErrNotFound
	}
	return &p, nil
}

func (f *Fake) CreateBlogPost(_ context.Context, p *model.BlogPost) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.slugTaken(p.Slug, "") {
		return remote.ErrSlugTaken
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = f.now()
	p.UpdatedAt = p.CreatedAt
	f.posts[p.ID] = *p
	return nil
}

func (f *Fake) UpdateBlogPost(_ context.Context, p *model.BlogPost) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	old, ok := f.posts[p.ID]
	if !ok {
		return remote.ErrNotFound
	}
	if f.slugTaken(p.Slug, p.ID) {
		return remote.ErrSlugTaken
	}
	p.CreatedAt = old.CreatedAt
	p.UpdatedAt = f.now()
	f.posts[p.ID] = *p
	return nil
}

func (f *Fake) DeleteBlogPost(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.posts[id]; !ok {
		return remote.ErrNotFound
	}
	delete(f.posts, id)
	return nil
}

func (f *Fake) slugTaken(slug, except string) bool {
	for id, p := range f.posts {
		if id != except && strings.EqualFold(p.Slug, slug) {
			return true
		}
	}
	return false
}

func (f *Fake) announce(ctx context.Context, op, id string) {
	raw, _ := json.Marshal(map[string]string{"id": id})
	_ = f.Hub.Publish(ctx, channel, realtime.Event{Type: op, Schema: "public", Table: "appointments", Record: raw})
}

func sortRows(rows []model.Appointment) {
	slices.SortStableFunc(rows, func(a, b model.Appointment) int { return b.CreatedAt.Compare(a.CreatedAt) })
}

func cloneRows(rows []model.Appointment) []model.Appointment {
	out := make([]model.Appointment, len(rows))
	for i, a := range rows {
		out[i] = a.Clone()
	}
	return out
}

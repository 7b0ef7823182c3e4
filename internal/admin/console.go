// Package admin is the operator side of the clinic: the signed-in session,
// a synchronized copy of the appointments table, and the change bridge that
// keeps that copy fresh.
package admin

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lulukarama/izmirdisestetigi/internal/remote"
)

// Remote is what the console needs from the remote service.
type Remote interface {
	remote.Auth
	remote.Appointments
	remote.Channels
}

// Console wires the session to the store and bridge: signing in mounts the
// bridge and loads the table, signing out tears the bridge down.
type Console struct {
	Session      *SessionManager
	Appointments *AppointmentStore
	Bridge       *Bridge
	View         *ViewModel

	log *slog.Logger

	mu      sync.Mutex
	unmount func()
}

func NewConsole(r Remote, log *slog.Logger) *Console {
	if log == nil {
		log = slog.Default()
	}
	sess := NewSessionManager(r, log.With("component", "session"))
	st := NewAppointmentStore(r, sess, log.With("component", "appointments"))
	return &Console{
		Session:      sess,
		Appointments: st,
		Bridge:       NewBridge(r, st, log.With("component", "bridge")),
		View:         NewViewModel(st),
		log:          log,
	}
}

// Start resolves the initial session and, when one was restored, activates.
func (c *Console) Start(ctx context.Context) {
	c.Session.CheckAuth(ctx)
	if c.Session.IsAuthenticated() {
		c.activate(ctx)
	}
}

func (c *Console) Login(ctx context.Context, email, password string) error {
	if err := c.Session.Login(ctx, email, password); err != nil {
		return err
	}
	c.activate(ctx)
	return nil
}

func (c *Console) Logout(ctx context.Context) error {
	if err := c.Session.Logout(ctx); err != nil {
		return err
	}
	c.deactivate()
	return nil
}

// Close releases the subscription and listeners.
func (c *Console) Close() {
	c.deactivate()
	c.Appointments.Close()
}

func (c *Console) activate(ctx context.Context) {
	c.mu.Lock()
	if c.unmount == nil {
		// The subscription outlives the request that signed in.
		c.unmount = c.Bridge.Mount(context.WithoutCancel(ctx))
	}
	c.mu.Unlock()

	if err := c.Appointments.FetchAll(ctx); err != nil {
		c.log.Warn("initial appointments load failed", "err", err)
	}
}

func (c *Console) deactivate() {
	c.mu.Lock()
	unmount := c.unmount
	c.unmount = nil
	c.mu.Unlock()
	if unmount != nil {
		unmount()
	}
}

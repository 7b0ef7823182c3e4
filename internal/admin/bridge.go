package admin

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lulukarama/izmirdisestetigi/internal/realtime"
	"github.com/lulukarama/izmirdisestetigi/internal/remote"
)

const ChangesChannel = "appointments_changes"

var AppointmentsScope = realtime.Scope{Schema: "public", Table: "appointments", Event: realtime.EventAll}

// Bridge turns change notifications into full reloads of the store. The
// event payload is never read.
type Bridge struct {
	channels remote.Channels
	reload   func(context.Context) error
	log      *slog.Logger

	mu  sync.Mutex
	err error
}

func NewBridge(ch remote.Channels, store *AppointmentStore, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{channels: ch, reload: store.FetchAll, log: log}
}

// Mount opens one subscription and returns the func that releases it. The
// returned func is safe to call more than once; only the first call acts.
// A subscription that cannot be established is logged and recorded in Err,
// and the console simply gets no push updates.
func (b *Bridge) Mount(ctx context.Context) (unmount func()) {
	ctx, cancel := context.WithCancel(ctx)

	sub, err := b.channels.Subscribe(ctx, ChangesChannel, AppointmentsScope, func(ev realtime.Event) {
		b.log.Debug("change received", "type", ev.Type)
		if err := b.reload(ctx); err != nil {
			b.log.Warn("reload after change failed", "err", err)
		}
	})
	if err != nil {
		if sub != nil {
			_ = sub.Unsubscribe()
		}
		cancel()
		b.setErr(&SubscriptionError{Channel: ChangesChannel, Err: err})
		b.log.Warn("realtime subscription unavailable", "channel", ChangesChannel, "err", err)
		return func() {}
	}
	b.setErr(nil)

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			if err := sub.Unsubscribe(); err != nil {
				b.log.Warn("unsubscribe failed", "channel", ChangesChannel, "err", err)
			}
		})
	}
}

// Err returns the *SubscriptionError of the last Mount, if it failed.
func (b *Bridge) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func (b *Bridge) setErr(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}

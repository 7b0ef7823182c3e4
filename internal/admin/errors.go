package admin

import (
	"errors"
	"fmt"

	"github.com/lulukarama/izmirdisestetigi/internal/model"
)

// ErrNotAuthenticated is returned, without contacting the remote, when a
// store operation runs while no operator is signed in.
var ErrNotAuthenticated = errors.New("admin: not authenticated")

// AuthError is a rejected sign-in or a failed sign-out.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("admin: %s: %v", e.Op, e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// PersistenceError is a failed read or write against the appointments table.
type PersistenceError struct {
	Op  string
	ID  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("admin: %s appointment %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("admin: %s appointments: %v", e.Op, e.Err)
}
func (e *PersistenceError) Unwrap() error { return e.Err }

// SubscriptionError means the change channel could not be established. It is
// recorded by the bridge and never returned from Mount.
type SubscriptionError struct {
	Channel string
	Err     error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("admin: subscribe %s: %v", e.Channel, e.Err)
}
func (e *SubscriptionError) Unwrap() error { return e.Err }

// InvalidTransitionError rejects a status change the state machine does not
// allow. From is empty when the current status is unknown locally, which is
// the case when the remote refused because the row was no longer pending.
type InvalidTransitionError struct {
	ID   string
	From model.Status
	To   model.Status
}

func (e *InvalidTransitionError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("admin: appointment %s: cannot move to %q: no longer pending", e.ID, e.To)
	}
	return fmt.Sprintf("admin: appointment %s: cannot move from %q to %q", e.ID, e.From, e.To)
}

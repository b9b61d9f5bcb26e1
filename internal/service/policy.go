package service

import "github.com/iliyamo/market-permanences/internal/model"

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID    uint64
	Username  string
	Superuser bool
}

// Authenticated reports whether the actor carries a user id.
func (a Actor) Authenticated() bool { return a.UserID != 0 }

// Action names an operation subject to authorization.
type Action string

const (
	ActionRegister    Action = "registration.create"
	ActionCancel      Action = "registration.cancel"
	ActionManageSlots Action = "slots.manage"
	ActionViewAdmin   Action = "admin.view"
)

// Authorize decides whether actor may perform action on resources owned by
// targetUserID.  Superusers may act on behalf of anyone; other users only
// on themselves, and never on the admin-only actions.
func Authorize(actor Actor, action Action, targetUserID uint64) error {
	if !actor.Authenticated() {
		return model.ErrForbidden
	}
	if actor.Superuser {
		return nil
	}
	switch action {
	case ActionRegister, ActionCancel:
		if targetUserID == actor.UserID {
			return nil
		}
	}
	return model.ErrForbidden
}

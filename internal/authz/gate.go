// Package authz decides whether an actor may perform an action on a link.
package authz

import "github.com/starford/linkpage/internal/models"

// Action names a capability checked by the Gate.
type Action string

const (
	ActionViewAny Action = "viewAny"
	ActionView    Action = "view"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
)

// Decision is the outcome of a check.
type Decision bool

const (
	Allow Decision = true
	Deny  Decision = false
)

// Gate is a pure ownership-based policy. The zero value is ready to use.
type Gate struct{}

// Check decides whether actor may perform action. target is required for
// view, update and delete; a nil target is denied for those actions.
func (Gate) Check(actor models.Actor, action Action, target *models.Link) Decision {
	if !actor.Authenticated() {
		return Deny
	}
	switch action {
	case ActionViewAny, ActionCreate:
		return Allow
	case ActionView, ActionUpdate, ActionDelete:
		if target != nil && target.OwnerID == actor.ID {
			return Allow
		}
		return Deny
	default:
		return Deny
	}
}

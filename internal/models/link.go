// Package models defines the domain types for the link page service.
package models

import (
	"encoding/json"
	"time"
)

// Link is a single owner-scoped entry on a profile page.
//
// Attributes is an opaque JSON object (title, url, icon, ...) that is
// persisted and returned unchanged.
type Link struct {
	ID         string          `json:"id"`
	OwnerID    string          `json:"owner_id"`
	Order      int             `json:"order"`
	Attributes json.RawMessage `json:"attributes"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Actor is the identity attempting an operation. A zero Actor is unauthenticated.
type Actor struct {
	ID string `json:"id"`
}

// Authenticated reports whether the actor carries a verified identity.
func (a Actor) Authenticated() bool {
	return a.ID != ""
}

// Package ordering keeps each owner's links densely numbered 1..N across
// create, reorder and delete.
//
// Every Engine method runs against a store.Tx; callers are expected to
// open the transaction so that the whole structural change commits or
// rolls back as one unit.
package ordering

import (
	"context"
	"encoding/json"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/starford/linkpage/internal/apperr"
	"github.com/starford/linkpage/internal/authz"
	"github.com/starford/linkpage/internal/models"
	"github.com/starford/linkpage/internal/store"
)

// Engine computes and applies order values.
type Engine struct {
	gate authz.Gate
}

// NewEngine creates an Engine that authorizes reorder batches with gate.
func NewEngine(gate authz.Gate) *Engine {
	return &Engine{gate: gate}
}

// NextOrder returns the order a new link of ownerID receives.
func NextOrder(ctx context.Context, tx store.Tx, ownerID string) (int, error) {
	last, ok, err := tx.LastOrder(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 1, nil
	}
	return last + 1, nil
}

// Append inserts a link for ownerID after its current last link.
func (e *Engine) Append(ctx context.Context, tx store.Tx, ownerID string, attributes json.RawMessage) (*models.Link, error) {
	order, err := NextOrder(ctx, tx, ownerID)
	if err != nil {
		return nil, err
	}
	return tx.Create(ctx, ownerID, attributes, order)
}

// ValidateSequence checks the structure of a reorder request: it must be
// non-empty and name each id once.
func ValidateSequence(ids []string) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: reorder list is empty", apperr.ErrValidation)
	}
	seen := mapset.NewThreadUnsafeSet[string]()
	for i, id := range ids {
		if id == "" {
			return fmt.Errorf("%w: empty id at position %d", apperr.ErrValidation, i)
		}
		if !seen.Add(id) {
			return fmt.Errorf("%w: duplicate id %s", apperr.ErrValidation, id)
		}
	}
	return nil
}

// Reorder assigns order k+1 to ids[k]. Every id is resolved and checked
// before any order is written; an id that does not exist or belongs to
// someone else fails the whole batch with ErrUnauthorized. The batch must
// cover all of the actor's links.
func (e *Engine) Reorder(ctx context.Context, tx store.Tx, actor models.Actor, ids []string) ([]models.Link, error) {
	if err := ValidateSequence(ids); err != nil {
		return nil, err
	}

	for _, id := range ids {
		l, err := tx.Get(ctx, id)
		if err != nil {
			if apperr.IsNotFound(err) {
				return nil, fmt.Errorf("%w: link %s", apperr.ErrUnauthorized, id)
			}
			return nil, err
		}
		if e.gate.Check(actor, authz.ActionUpdate, l) == authz.Deny {
			return nil, fmt.Errorf("%w: link %s", apperr.ErrUnauthorized, id)
		}
	}

	current, err := tx.ListByOwner(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if len(current) != len(ids) {
		return nil, fmt.Errorf("%w: reorder names %d of %d links", apperr.ErrValidation, len(ids), len(current))
	}

	if err := tx.ParkOrders(ctx, actor.ID); err != nil {
		return nil, err
	}
	for k, id := range ids {
		if _, err := tx.UpdateOrder(ctx, id, k+1); err != nil {
			return nil, err
		}
	}
	return tx.ListByOwner(ctx, actor.ID)
}

// Remove deletes l and closes the gap it leaves in its owner's ordering.
func (e *Engine) Remove(ctx context.Context, tx store.Tx, l *models.Link) error {
	if err := tx.Delete(ctx, l.ID); err != nil {
		return err
	}
	return tx.ShiftDown(ctx, l.OwnerID, l.Order)
}

// Dense reports whether links carry exactly the orders 1..len(links).
func Dense(links []models.Link) bool {
	seen := make([]bool, len(links)+1)
	for _, l := range links {
		if l.Order < 1 || l.Order > len(links) || seen[l.Order] {
			return false
		}
		seen[l.Order] = true
	}
	return true
}

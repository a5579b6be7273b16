// Package linkservice implements the owner-scoped link use cases: list,
// get, create, reorder, update and delete. Every operation checks the
// authorization gate before touching storage.
package linkservice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/starford/linkpage/internal/apperr"
	"github.com/starford/linkpage/internal/authz"
	"github.com/starford/linkpage/internal/checksum"
	"github.com/starford/linkpage/internal/models"
	"github.com/starford/linkpage/internal/ordering"
	"github.com/starford/linkpage/internal/store"
)

// Event kinds published after a committed mutation.
const (
	EventCreated   = "link.created"
	EventUpdated   = "link.updated"
	EventDeleted   = "link.deleted"
	EventReordered = "links.reordered"
)

// EventPublisher receives owner-scoped change notifications.
type EventPublisher interface {
	PublishLinkEvent(ownerID, kind string, data any)
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the publisher notified after each committed mutation.
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) {
		s.events = p
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// Service coordinates the gate, the ordering engine and the store.
type Service struct {
	store  store.Store
	gate   authz.Gate
	engine *ordering.Engine
	events EventPublisher
	logger *slog.Logger
}

// NewService creates a new link service.
func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:  st,
		logger: slog.Default(),
	}
	s.engine = ordering.NewEngine(s.gate)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns the actor's own links ordered by ascending order.
func (s *Service) List(ctx context.Context, actor models.Actor) ([]models.Link, error) {
	if err := s.allow(actor, authz.ActionViewAny, nil); err != nil {
		return nil, err
	}
	return s.store.ListByOwner(ctx, actor.ID)
}

// ListChecksum returns the actor's links together with a digest of the
// sequence, suitable for an ETag.
func (s *Service) ListChecksum(ctx context.Context, actor models.Actor) ([]models.Link, string, error) {
	links, err := s.List(ctx, actor)
	if err != nil {
		return nil, "", err
	}
	return links, checksum.Links(links), nil
}

// Get returns a single link. An unknown id is ErrNotFound for every actor;
// a link owned by someone else is ErrUnauthorized.
func (s *Service) Get(ctx context.Context, actor models.Actor, id string) (*models.Link, error) {
	if !actor.Authenticated() {
		return nil, apperr.ErrUnauthenticated
	}
	l, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.allow(actor, authz.ActionView, l); err != nil {
		return nil, err
	}
	return l, nil
}

// Create appends a new link owned by the actor.
func (s *Service) Create(ctx context.Context, actor models.Actor, attributes json.RawMessage) (*models.Link, error) {
	if err := s.allow(actor, authz.ActionCreate, nil); err != nil {
		return nil, err
	}
	attributes, err := normalizeAttributes(attributes)
	if err != nil {
		return nil, err
	}

	var created *models.Link
	err = s.store.Transaction(ctx, actor.ID, func(tx store.Tx) error {
		l, err := s.engine.Append(ctx, tx, actor.ID, attributes)
		if err != nil {
			return err
		}
		created = l
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("link created",
		slog.String("owner", actor.ID),
		slog.String("id", created.ID),
		slog.Int("order", created.Order))
	s.publish(actor.ID, EventCreated, created)
	return created, nil
}

// Reorder assigns order k+1 to ids[k]. The batch is all-or-nothing.
func (s *Service) Reorder(ctx context.Context, actor models.Actor, ids []string) ([]models.Link, error) {
	if !actor.Authenticated() {
		return nil, apperr.ErrUnauthenticated
	}
	if err := ordering.ValidateSequence(ids); err != nil {
		return nil, err
	}

	var links []models.Link
	err := s.store.Transaction(ctx, actor.ID, func(tx store.Tx) error {
		out, err := s.engine.Reorder(ctx, tx, actor, ids)
		if err != nil {
			return err
		}
		links = out
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("links reordered", slog.String("owner", actor.ID), slog.Int("count", len(links)))
	s.publish(actor.ID, EventReordered, orderPairs(links))
	return links, nil
}

// UpdateAttributes replaces the attributes of a link the actor owns. A
// non-empty ifMatch must equal the checksum of the current attributes.
func (s *Service) UpdateAttributes(ctx context.Context, actor models.Actor, id string, attributes json.RawMessage, ifMatch string) (*models.Link, error) {
	if !actor.Authenticated() {
		return nil, apperr.ErrUnauthenticated
	}
	attributes, err := normalizeAttributes(attributes)
	if err != nil {
		return nil, err
	}

	var updated *models.Link
	err = s.store.Transaction(ctx, actor.ID, func(tx store.Tx) error {
		l, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := s.allow(actor, authz.ActionUpdate, l); err != nil {
			return err
		}
		if ifMatch != "" && ifMatch != checksum.Sum(l.Attributes) {
			return fmt.Errorf("%w: link %s changed", apperr.ErrConflict, id)
		}
		updated, err = tx.UpdateAttributes(ctx, id, attributes)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("link updated", slog.String("owner", actor.ID), slog.String("id", id))
	s.publish(actor.ID, EventUpdated, updated)
	return updated, nil
}

// Delete removes a link the actor owns and compacts the remaining orders.
func (s *Service) Delete(ctx context.Context, actor models.Actor, id string) error {
	if !actor.Authenticated() {
		return apperr.ErrUnauthenticated
	}

	err := s.store.Transaction(ctx, actor.ID, func(tx store.Tx) error {
		l, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := s.allow(actor, authz.ActionDelete, l); err != nil {
			return err
		}
		return s.engine.Remove(ctx, tx, l)
	})
	if err != nil {
		return err
	}

	s.logger.Debug("link deleted", slog.String("owner", actor.ID), slog.String("id", id))
	s.publish(actor.ID, EventDeleted, map[string]string{"id": id})
	return nil
}

func (s *Service) allow(actor models.Actor, action authz.Action, target *models.Link) error {
	if s.gate.Check(actor, action, target) == authz.Allow {
		return nil
	}
	if !actor.Authenticated() {
		return apperr.ErrUnauthenticated
	}
	if target != nil {
		return fmt.Errorf("%w: %s link %s", apperr.ErrUnauthorized, action, target.ID)
	}
	return fmt.Errorf("%w: %s", apperr.ErrUnauthorized, action)
}

func (s *Service) publish(ownerID, kind string, data any) {
	if s.events != nil {
		s.events.PublishLinkEvent(ownerID, kind, data)
	}
}

// normalizeAttributes defaults an empty payload to {} and rejects anything
// that is not a JSON object.
func normalizeAttributes(attributes json.RawMessage) (json.RawMessage, error) {
	if len(attributes) == 0 {
		return json.RawMessage(`{}`), nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(attributes, &obj); err != nil || obj == nil {
		return nil, fmt.Errorf("%w: attributes must be a JSON object", apperr.ErrValidation)
	}
	return attributes, nil
}

type orderPair struct {
	ID    string `json:"id"`
	Order int    `json:"order"`
}

func orderPairs(links []models.Link) []orderPair {
	out := make([]orderPair, len(links))
	for i, l := range links {
		out[i] = orderPair{ID: l.ID, Order: l.Order}
	}
	return out
}

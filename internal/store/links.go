package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/starford/linkpage/internal/apperr"
	"github.com/starford/linkpage/internal/models"
)

const linkColumns = `id, owner_id, ord, attributes, created_at, updated_at`

// links implements Tx on top of either the pool or an open transaction.
type links struct {
	q querier
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLink(row scanner) (*models.Link, error) {
	var (
		l     models.Link
		attrs string
	)
	if err := row.Scan(&l.ID, &l.OwnerID, &l.Order, &attrs, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	l.Attributes = json.RawMessage(attrs)
	return &l, nil
}

func (s links) Get(ctx context.Context, id string) (*models.Link, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM links WHERE id = ?`, id)
	l, err := scanLink(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, storageErr("get link", err)
	}
	return l, nil
}

func (s links) ListByOwner(ctx context.Context, ownerID string) ([]models.Link, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+linkColumns+` FROM links WHERE owner_id = ? ORDER BY ord ASC`, ownerID)
	if err != nil {
		return nil, storageErr("list links", err)
	}
	defer rows.Close()

	out := []models.Link{}
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, storageErr("scan link", err)
		}
		out = append(out, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list links", err)
	}
	return out, nil
}

func (s links) LastOrder(ctx context.Context, ownerID string) (int, bool, error) {
	var last sql.NullInt64
	err := s.q.QueryRowContext(ctx, `SELECT MAX(ord) FROM links WHERE owner_id = ?`, ownerID).Scan(&last)
	if err != nil {
		return 0, false, storageErr("last order", err)
	}
	if !last.Valid {
		return 0, false, nil
	}
	return int(last.Int64), true, nil
}

func (s links) Create(ctx context.Context, ownerID string, attributes json.RawMessage, order int) (*models.Link, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, storageErr("generate id", err)
	}
	now := time.Now().UTC()
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO links (id, owner_id, ord, attributes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id.String(), ownerID, order, string(attributes), now, now)
	if err != nil {
		return nil, storageErr("insert link", err)
	}
	return &models.Link{
		ID:         id.String(),
		OwnerID:    ownerID,
		Order:      order,
		Attributes: attributes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (s links) UpdateAttributes(ctx context.Context, id string, attributes json.RawMessage) (*models.Link, error) {
	res, err := s.q.ExecContext(ctx, `UPDATE links SET attributes = ?, updated_at = ? WHERE id = ?`,
		string(attributes), time.Now().UTC(), id)
	if err != nil {
		return nil, storageErr("update attributes", err)
	}
	if err := requireRow(res, "update attributes"); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s links) UpdateOrder(ctx context.Context, id string, order int) (*models.Link, error) {
	res, err := s.q.ExecContext(ctx, `UPDATE links SET ord = ? WHERE id = ?`, order, id)
	if err != nil {
		return nil, storageErr("update order", err)
	}
	if err := requireRow(res, "update order"); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s links) Delete(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM links WHERE id = ?`, id)
	if err != nil {
		return storageErr("delete link", err)
	}
	return requireRow(res, "delete link")
}

func (s links) ParkOrders(ctx context.Context, ownerID string) error {
	if _, err := s.q.ExecContext(ctx, `UPDATE links SET ord = -ord WHERE owner_id = ? AND ord > 0`, ownerID); err != nil {
		return storageErr("park orders", err)
	}
	return nil
}

func (s links) ShiftDown(ctx context.Context, ownerID string, after int) error {
	// Two passes through negative values keep (owner_id, ord) unique at every row step.
	if _, err := s.q.ExecContext(ctx, `UPDATE links SET ord = -(ord - 1) WHERE owner_id = ? AND ord > ?`, ownerID, after); err != nil {
		return storageErr("shift orders", err)
	}
	if _, err := s.q.ExecContext(ctx, `UPDATE links SET ord = -ord WHERE owner_id = ? AND ord < 0`, ownerID); err != nil {
		return storageErr("shift orders", err)
	}
	return nil
}

func requireRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr(op, err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

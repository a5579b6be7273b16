// Package twofactor issues and verifies one-time codes that elevate a
// session after primary login. A code can be verified successfully once.
package twofactor

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS two_factor_sessions (
	id          TEXT PRIMARY KEY,
	actor_id    TEXT NOT NULL,
	code_hash   BLOB,
	expires_at  DATETIME NOT NULL,
	attempts    INTEGER NOT NULL DEFAULT 0,
	elevated_at DATETIME,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_two_factor_actor ON two_factor_sessions(actor_id);
`

// CodeDigits is the length of an issued code.
const CodeDigits = 6

// Result is the outcome of Verify.
type Result int

const (
	Invalid Result = iota
	Success
)

func (r Result) String() string {
	if r == Success {
		return "success"
	}
	return "invalid"
}

// Sender delivers a freshly issued code to the actor.
type Sender interface {
	SendCode(ctx context.Context, actorID, sessionID, code string) error
}

// LogSender writes codes to a logger. It stands in for a real delivery
// channel (SMS, mail) in development setups.
type LogSender struct {
	Logger *slog.Logger
}

// SendCode implements Sender.
func (s LogSender) SendCode(_ context.Context, actorID, sessionID, code string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("two-factor code issued",
		slog.String("actor", actorID),
		slog.String("session_id", sessionID),
		slog.String("code", code))
	return nil
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithCodeTTL sets how long an issued code stays valid.
func WithCodeTTL(d time.Duration) Option {
	return func(v *Verifier) { v.codeTTL = d }
}

// WithSessionTTL sets how long an elevated session stays elevated.
func WithSessionTTL(d time.Duration) Option {
	return func(v *Verifier) { v.sessionTTL = d }
}

// WithMaxAttempts caps failed verifications per session.
func WithMaxAttempts(n int) Option {
	return func(v *Verifier) { v.maxAttempts = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// Verifier stores pending and elevated sessions in SQLite.
type Verifier struct {
	db          *sql.DB
	sender      Sender
	codeTTL     time.Duration
	sessionTTL  time.Duration
	maxAttempts int
	now         func() time.Time
}

// New applies the session schema to db and returns a Verifier.
func New(db *sql.DB, sender Sender, opts ...Option) (*Verifier, error) {
	v := &Verifier{
		db:          db,
		sender:      sender,
		codeTTL:     5 * time.Minute,
		sessionTTL:  24 * time.Hour,
		maxAttempts: 5,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.sender == nil {
		v.sender = LogSender{}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("twofactor: apply schema: %w", err)
	}
	return v, nil
}

// Issue opens a pending session for actorID and sends it a new code.
func (v *Verifier) Issue(ctx context.Context, actorID string) (string, error) {
	if actorID == "" {
		return "", errors.New("twofactor: actor is required")
	}
	code, err := newCode()
	if err != nil {
		return "", fmt.Errorf("twofactor: generate code: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("twofactor: hash code: %w", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("twofactor: session id: %w", err)
	}

	now := v.now().UTC()
	_, err = v.db.ExecContext(ctx, `
		INSERT INTO two_factor_sessions (id, actor_id, code_hash, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id.String(), actorID, hash, now.Add(v.codeTTL), now)
	if err != nil {
		return "", fmt.Errorf("twofactor: insert session: %w", err)
	}

	if err := v.sender.SendCode(ctx, actorID, id.String(), code); err != nil {
		return "", fmt.Errorf("twofactor: send code: %w", err)
	}
	return id.String(), nil
}

// Verify checks code against the pending session. A successful check
// elevates the session and consumes the code. Unknown sessions, expired or
// already used codes, and sessions past the attempt limit are Invalid.
func (v *Verifier) Verify(ctx context.Context, sessionID, code string) (Result, error) {
	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return Invalid, fmt.Errorf("twofactor: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var (
		hash      []byte
		expiresAt time.Time
		attempts  int
	)
	err = tx.QueryRowContext(ctx, `
		SELECT code_hash, expires_at, attempts FROM two_factor_sessions
		WHERE id = ? AND elevated_at IS NULL
	`, sessionID).Scan(&hash, &expiresAt, &attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return Invalid, nil
	}
	if err != nil {
		return Invalid, fmt.Errorf("twofactor: load session: %w", err)
	}

	now := v.now().UTC()
	if len(hash) == 0 || !now.Before(expiresAt) || attempts >= v.maxAttempts {
		return Invalid, nil
	}

	if !wellFormed(code) || bcrypt.CompareHashAndPassword(hash, []byte(code)) != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE two_factor_sessions SET attempts = attempts + 1 WHERE id = ?`, sessionID); err != nil {
			return Invalid, fmt.Errorf("twofactor: record attempt: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return Invalid, fmt.Errorf("twofactor: commit: %w", err)
		}
		return Invalid, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE two_factor_sessions SET elevated_at = ?, code_hash = NULL WHERE id = ?
	`, now, sessionID); err != nil {
		return Invalid, fmt.Errorf("twofactor: elevate session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Invalid, fmt.Errorf("twofactor: commit: %w", err)
	}
	return Success, nil
}

// Elevated reports whether sessionID belongs to actorID and has been
// verified within the session TTL.
func (v *Verifier) Elevated(ctx context.Context, sessionID, actorID string) (bool, error) {
	var elevatedAt sql.NullTime
	err := v.db.QueryRowContext(ctx, `
		SELECT elevated_at FROM two_factor_sessions WHERE id = ? AND actor_id = ?
	`, sessionID, actorID).Scan(&elevatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("twofactor: load session: %w", err)
	}
	if !elevatedAt.Valid {
		return false, nil
	}
	return v.now().UTC().Before(elevatedAt.Time.Add(v.sessionTTL)), nil
}

// Prune deletes sessions that can no longer be verified or used: pending
// sessions past their code TTL and elevated sessions past the session TTL.
func (v *Verifier) Prune(ctx context.Context) (int64, error) {
	now := v.now().UTC()
	res, err := v.db.ExecContext(ctx, `
		DELETE FROM two_factor_sessions
		WHERE (elevated_at IS NULL AND expires_at <= ?)
		   OR (elevated_at IS NOT NULL AND elevated_at <= ?)
	`, now, now.Add(-v.sessionTTL))
	if err != nil {
		return 0, fmt.Errorf("twofactor: prune sessions: %w", err)
	}
	return res.RowsAffected()
}

func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func wellFormed(code string) bool {
	if len(code) != CodeDigits {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

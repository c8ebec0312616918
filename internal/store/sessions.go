// Package store implements the SQL persistence layer for sessions and
// permit applications.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"permit-intake/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

const sessionColumns = "id, phone_number, status, channel_name, form_data, created_at, updated_at"

// SessionStore persists intake sessions, including the form data collected
// so far. Every field update is written through synchronously so in-flight
// voice data survives a process restart.
type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

// CreateSession generates an id, derives the relay channel name, and
// persists a new active session. phoneNumber may be empty.
func (s *SessionStore) CreateSession(ctx context.Context, phoneNumber string) (*models.Session, error) {
	id := uuid.NewString()
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO sessions (id, phone_number, status, channel_name, form_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, '{}'::jsonb, NOW(), NOW())
		RETURNING `+sessionColumns,
		id, nullString(phoneNumber), models.SessionStatusActive, models.ChannelName(id),
	)
	session, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// GetSession looks a session up by id.
func (s *SessionStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// GetSessionByPhone resolves an inbound call to an existing session by
// caller id. When multiple sessions share a phone number the most recently
// created one wins.
func (s *SessionStore) GetSessionByPhone(ctx context.Context, phoneNumber string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE phone_number = $1 ORDER BY created_at DESC LIMIT 1`,
		phoneNumber)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session by phone: %w", err)
	}
	return session, nil
}

// UpdateSessionStatus transitions a session's lifecycle status and returns
// the updated record.
func (s *SessionStore) UpdateSessionStatus(ctx context.Context, id string, status models.SessionStatus) (*models.Session, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid session status %q", status)
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE sessions SET status = $2, updated_at = NOW() WHERE id = $1
		RETURNING `+sessionColumns,
		id, status)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update session status: %w", err)
	}
	return session, nil
}

// UpdateSessionField merges one collected field into the session's form
// data. The value must already be validated and normalized.
func (s *SessionStore) UpdateSessionField(ctx context.Context, id, field, value string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET form_data = form_data || jsonb_build_object($2::text, $3::text), updated_at = NOW()
		WHERE id = $1`,
		id, field, value)
	if err != nil {
		return fmt.Errorf("failed to update session field: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update session field: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSessionFormData reads back the collected form data for a session.
func (s *SessionStore) GetSessionFormData(ctx context.Context, id string) (map[string]string, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT form_data FROM sessions WHERE id = $1`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session form data: %w", err)
	}
	return decodeFormData(raw)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		session  models.Session
		phone    sql.NullString
		formData []byte
	)
	if err := row.Scan(
		&session.ID, &phone, &session.Status, &session.ChannelName,
		&formData, &session.CreatedAt, &session.UpdatedAt,
	); err != nil {
		return nil, err
	}
	session.PhoneNumber = phone.String
	data, err := decodeFormData(formData)
	if err != nil {
		return nil, err
	}
	session.FormData = data
	return &session, nil
}

func decodeFormData(raw []byte) (map[string]string, error) {
	data := map[string]string{}
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("malformed form_data: %w", err)
	}
	return data, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

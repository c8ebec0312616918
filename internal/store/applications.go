// internal/store/applications.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"permit-intake/internal/models"
	"permit-intake/internal/permit"
)

const applicationColumns = `id, tracking_id, establishment_name, street_address,
	establishment_phone, establishment_email, owner_name, owner_phone, owner_email,
	establishment_type, planned_opening_date, submission_channel, session_id,
	raw_data, created_at, submitted_at`

// trackingIDAttempts bounds retries when a generated tracking id collides
// with an existing row.
const trackingIDAttempts = 3

// ApplicationStore persists finalized permit applications. Records are
// immutable after creation.
type ApplicationStore struct {
	db *sql.DB
}

func NewApplicationStore(db *sql.DB) *ApplicationStore {
	return &ApplicationStore{db: db}
}

// CreateApplicationParams carries the validated, normalized input for one
// application record. Fields must hold all nine required domain fields.
type CreateApplicationParams struct {
	Fields            map[string]string
	SubmissionChannel models.SubmissionChannel
	SessionID         string
	RawData           json.RawMessage
}

// CreateApplication stamps timestamps, generates the tracking id
// server-side, and persists the record plus the raw payload snapshot. A
// tracking id collision is retried with a fresh id.
func (s *ApplicationStore) CreateApplication(ctx context.Context, params CreateApplicationParams) (*models.Application, error) {
	if !params.SubmissionChannel.Valid() {
		return nil, fmt.Errorf("invalid submission channel %q", params.SubmissionChannel)
	}
	for _, field := range permit.RequiredFields {
		if params.Fields[field] == "" {
			return nil, fmt.Errorf("missing required field %q", field)
		}
	}

	now := time.Now().UTC()
	app := &models.Application{
		ID:                 uuid.NewString(),
		EstablishmentName:  params.Fields["establishmentName"],
		StreetAddress:      params.Fields["streetAddress"],
		EstablishmentPhone: params.Fields["establishmentPhone"],
		EstablishmentEmail: params.Fields["establishmentEmail"],
		OwnerName:          params.Fields["ownerName"],
		OwnerPhone:         params.Fields["ownerPhone"],
		OwnerEmail:         params.Fields["ownerEmail"],
		EstablishmentType:  params.Fields["establishmentType"],
		PlannedOpeningDate: params.Fields["plannedOpeningDate"],
		SubmissionChannel:  params.SubmissionChannel,
		SessionID:          params.SessionID,
		RawData:            params.RawData,
		CreatedAt:          now,
		SubmittedAt:        &now,
	}

	var lastErr error
	for attempt := 0; attempt < trackingIDAttempts; attempt++ {
		app.TrackingID = permit.GenerateTrackingID()
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO applications (`+applicationColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			app.ID, app.TrackingID, app.EstablishmentName, app.StreetAddress,
			app.EstablishmentPhone, app.EstablishmentEmail, app.OwnerName,
			app.OwnerPhone, app.OwnerEmail, app.EstablishmentType,
			app.PlannedOpeningDate, app.SubmissionChannel, nullString(app.SessionID),
			[]byte(app.RawData), app.CreatedAt, app.SubmittedAt,
		)
		if err == nil {
			return app, nil
		}
		lastErr = err
		if !isUniqueViolation(err) {
			break
		}
	}
	return nil, fmt.Errorf("failed to create application: %w", lastErr)
}

// GetApplication looks an application up by internal id.
func (s *ApplicationStore) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id)
	app, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return app, nil
}

// GetApplicationByTrackingID looks an application up by its public
// tracking id.
func (s *ApplicationStore) GetApplicationByTrackingID(ctx context.Context, trackingID string) (*models.Application, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE tracking_id = $1`, trackingID)
	app, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get application by tracking id: %w", err)
	}
	return app, nil
}

// ApplicationFilters narrows and pages the admin list view. The returned
// total reflects the filtered count, not the unfiltered table size.
type ApplicationFilters struct {
	Limit             int
	Offset            int
	EstablishmentName string
	SubmissionChannel string
}

// GetAllApplications lists applications newest-first with a
// case-insensitive substring match on establishment name and an exact
// match on submission channel.
func (s *ApplicationStore) GetAllApplications(ctx context.Context, filters ApplicationFilters) ([]*models.Application, int, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if filters.EstablishmentName != "" {
		args = append(args, "%"+filters.EstablishmentName+"%")
		conditions = append(conditions, fmt.Sprintf("establishment_name ILIKE $%d", len(args)))
	}
	if filters.SubmissionChannel != "" {
		args = append(args, filters.SubmissionChannel)
		conditions = append(conditions, fmt.Sprintf("submission_channel = $%d", len(args)))
	}
	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM applications`+whereClause, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count applications: %w", err)
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := filters.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+applicationColumns+` FROM applications`+whereClause+
			fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var apps []*models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to list applications: %w", err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list applications: %w", err)
	}
	return apps, total, nil
}

// GetApplicationsBySession returns the applications created from one
// session, newest first.
func (s *ApplicationStore) GetApplicationsBySession(ctx context.Context, sessionID string) ([]*models.Application, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE session_id = $1 ORDER BY created_at DESC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get applications by session: %w", err)
	}
	defer rows.Close()

	var apps []*models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to get applications by session: %w", err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get applications by session: %w", err)
	}
	return apps, nil
}

func scanApplication(row rowScanner) (*models.Application, error) {
	var (
		app       models.Application
		sessionID sql.NullString
		rawData   []byte
		submitted sql.NullTime
	)
	if err := row.Scan(
		&app.ID, &app.TrackingID, &app.EstablishmentName, &app.StreetAddress,
		&app.EstablishmentPhone, &app.EstablishmentEmail, &app.OwnerName,
		&app.OwnerPhone, &app.OwnerEmail, &app.EstablishmentType,
		&app.PlannedOpeningDate, &app.SubmissionChannel, &sessionID,
		&rawData, &app.CreatedAt, &submitted,
	); err != nil {
		return nil, err
	}
	app.SessionID = sessionID.String
	if len(rawData) > 0 {
		app.RawData = json.RawMessage(rawData)
	}
	if submitted.Valid {
		t := submitted.Time
		app.SubmittedAt = &t
	}
	return &app, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

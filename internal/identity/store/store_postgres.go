package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	form "github.com/genialityco/gen-live-web-sub000/internal/form/models"
	"github.com/genialityco/gen-live-web-sub000/internal/identity/models"
	id "github.com/genialityco/gen-live-web-sub000/pkg/domain"
	"github.com/genialityco/gen-live-web-sub000/pkg/platform/sentinel"
	"github.com/genialityco/gen-live-web-sub000/pkg/platform/tx"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

// Migrate creates the attendee tables when they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate identity schema: %w", err)
	}
	return nil
}

// PostgresAttendeeStore persists attendees in PostgreSQL. Calls join the
// transaction carried by ctx, if any.
type PostgresAttendeeStore struct {
	db *sql.DB
}

func NewPostgresAttendeeStore(db *sql.DB) *PostgresAttendeeStore {
	return &PostgresAttendeeStore{db: db}
}

const attendeeColumns = `id, org_id, email, registration_data, created_at, updated_at`

func (s *PostgresAttendeeStore) FindByID(ctx context.Context, attendeeID id.AttendeeID) (*models.Attendee, error) {
	row := tx.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+attendeeColumns+` FROM attendees WHERE id = $1`, attendeeID.String())
	a, err := scanAttendee(row)
	if err != nil {
		return nil, fmt.Errorf("find attendee: %w", err)
	}
	return a, nil
}

func (s *PostgresAttendeeStore) FindByEmail(ctx context.Context, orgID id.OrgID, email string) (*models.Attendee, error) {
	row := tx.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+attendeeColumns+` FROM attendees WHERE org_id = $1 AND email = $2`, orgID.String(), email)
	a, err := scanAttendee(row)
	if err != nil {
		return nil, fmt.Errorf("find attendee by email: %w", err)
	}
	return a, nil
}

func (s *PostgresAttendeeStore) ListByOrg(ctx context.Context, orgID id.OrgID) ([]*models.Attendee, error) {
	rows, err := tx.Conn(ctx, s.db).QueryContext(ctx,
		`SELECT `+attendeeColumns+` FROM attendees WHERE org_id = $1 ORDER BY created_at, id`, orgID.String())
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	defer rows.Close()

	var out []*models.Attendee
	for rows.Next() {
		a, err := scanAttendee(rows)
		if err != nil {
			return nil, fmt.Errorf("list attendees: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	return out, nil
}

func (s *PostgresAttendeeStore) Save(ctx context.Context, attendee *models.Attendee) error {
	data, err := json.Marshal(attendee.Values)
	if err != nil {
		return fmt.Errorf("encode registration data: %w", err)
	}
	query := `
		INSERT INTO attendees (id, org_id, email, registration_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			registration_data = EXCLUDED.registration_data,
			updated_at = EXCLUDED.updated_at
	`
	_, err = tx.Conn(ctx, s.db).ExecContext(ctx, query,
		attendee.ID.String(),
		attendee.OrgID.String(),
		attendee.Email,
		data,
		attendee.CreatedAt,
		attendee.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("save attendee: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAttendee(row scanner) (*models.Attendee, error) {
	var a models.Attendee
	var attendeeID, orgID string
	var data []byte
	err := row.Scan(&attendeeID, &orgID, &a.Email, &data, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.ID = id.AttendeeID(attendeeID)
	a.OrgID = id.OrgID(orgID)
	a.Values = form.ValueSet{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &a.Values); err != nil {
			return nil, fmt.Errorf("decode registration data: %w", err)
		}
	}
	return &a, nil
}

// PostgresEventUserStore persists event registrations in PostgreSQL.
type PostgresEventUserStore struct {
	db *sql.DB
}

func NewPostgresEventUserStore(db *sql.DB) *PostgresEventUserStore {
	return &PostgresEventUserStore{db: db}
}

const eventUserColumns = `id, event_id, attendee_id, session_id, attended, registered_at`

func (s *PostgresEventUserStore) Find(ctx context.Context, eventID id.EventID, attendeeID id.AttendeeID) (*models.EventUser, error) {
	row := tx.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+eventUserColumns+` FROM event_users WHERE event_id = $1 AND attendee_id = $2`,
		eventID.String(), attendeeID.String())
	eu, err := scanEventUser(row)
	if err != nil {
		return nil, fmt.Errorf("find event user: %w", err)
	}
	return eu, nil
}

func (s *PostgresEventUserStore) ListByEvent(ctx context.Context, eventID id.EventID) ([]*models.EventUser, error) {
	rows, err := tx.Conn(ctx, s.db).QueryContext(ctx,
		`SELECT `+eventUserColumns+` FROM event_users WHERE event_id = $1 ORDER BY registered_at, id`, eventID.String())
	if err != nil {
		return nil, fmt.Errorf("list event users: %w", err)
	}
	defer rows.Close()

	var out []*models.EventUser
	for rows.Next() {
		eu, err := scanEventUser(rows)
		if err != nil {
			return nil, fmt.Errorf("list event users: %w", err)
		}
		out = append(out, eu)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list event users: %w", err)
	}
	return out, nil
}

// Save inserts or updates the registration for (event, attendee). The row id
// of an existing registration is kept.
func (s *PostgresEventUserStore) Save(ctx context.Context, eventUser *models.EventUser) error {
	query := `
		INSERT INTO event_users (id, event_id, attendee_id, session_id, attended, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id, attendee_id) DO UPDATE SET
			session_id = EXCLUDED.session_id,
			attended = EXCLUDED.attended
	`
	_, err := tx.Conn(ctx, s.db).ExecContext(ctx, query,
		eventUser.ID.String(),
		eventUser.EventID.String(),
		eventUser.AttendeeID.String(),
		eventUser.SessionID.String(),
		eventUser.Attended,
		eventUser.RegisteredAt,
	)
	if err != nil {
		return fmt.Errorf("save event user: %w", err)
	}
	return nil
}

func scanEventUser(row scanner) (*models.EventUser, error) {
	var eu models.EventUser
	var eventUserID, eventID, attendeeID, sessionID string
	err := row.Scan(&eventUserID, &eventID, &attendeeID, &sessionID, &eu.Attended, &eu.RegisteredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	eu.ID = id.EventUserID(eventUserID)
	eu.EventID = id.EventID(eventID)
	eu.AttendeeID = id.AttendeeID(attendeeID)
	eu.SessionID = id.SessionID(sessionID)
	return &eu, nil
}

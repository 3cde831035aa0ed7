package audit

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/google/uuid"

	id "github.com/genialityco/gen-live-web-sub000/pkg/domain"
)

//go:embed schema.sql
var schemaSQL string

// Migrate creates the audit table when it does not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate audit schema: %w", err)
	}
	return nil
}

// PostgresStore appends audit events to PostgreSQL. Duplicate ids are
// ignored so a retried batch does not double-write.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const eventColumns = `id, timestamp, action, visit_id, org_id, event_id, from_state, to_state, outcome, session_id, request_id, reason, client_ip, device`

const insertEvent = `INSERT INTO audit_events (` + eventColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (id) DO NOTHING`

func (s *PostgresStore) Append(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range events {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		_, err := tx.ExecContext(ctx, insertEvent,
			e.ID,
			e.Timestamp,
			string(e.Action),
			e.VisitID.String(),
			e.OrgID.String(),
			e.EventID.String(),
			e.From,
			e.To,
			e.Outcome,
			e.SessionID.String(),
			e.RequestID,
			e.Reason,
			e.ClientIP,
			e.Device,
		)
		if err != nil {
			return fmt.Errorf("insert audit event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit batch: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByVisit(ctx context.Context, visitID id.VisitID) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM audit_events WHERE visit_id = $1 ORDER BY timestamp, id`, visitID.String())
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var (
			e                                     Event
			action, visitID, orgID, eventID, sess string
		)
		err := rows.Scan(&e.ID, &e.Timestamp, &action, &visitID, &orgID, &eventID,
			&e.From, &e.To, &e.Outcome, &sess, &e.RequestID, &e.Reason, &e.ClientIP, &e.Device)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		parsed, err := id.ParseVisitID(visitID)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Action = Action(action)
		e.VisitID = parsed
		e.OrgID = id.OrgID(orgID)
		e.EventID = id.EventID(eventID)
		e.SessionID = id.SessionID(sess)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan audit events: %w", err)
	}
	return out, nil
}

package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	form "github.com/genialityco/gen-live-web-sub000/internal/form/models"
	"github.com/genialityco/gen-live-web-sub000/internal/identity/models"
	"github.com/genialityco/gen-live-web-sub000/pkg/platform/sentinel"
)

func newMock(t *testing.T) (sqlmock.Sqlmock, *PostgresAttendeeStore, *PostgresEventUserStore) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return mock, NewPostgresAttendeeStore(db), NewPostgresEventUserStore(db)
}

var attendeeCols = []string{"id", "org_id", "email", "registration_data", "created_at", "updated_at"}

func TestPostgresAttendeeStore_FindByEmail(t *testing.T) {
	mock, attendees, _ := newMock(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+attendeeColumns+" FROM attendees WHERE org_id = $1 AND email = $2")).
		WithArgs("org1", "ana@x.com").
		WillReturnRows(sqlmock.NewRows(attendeeCols).
			AddRow("a1", "org1", "ana@x.com", []byte(`{"email":"ana@x.com","doc":"123"}`), created, created))

	got, err := attendees.FindByEmail(ctx, "org1", "ana@x.com")
	require.NoError(t, err)
	assert.Equal(t, form.ValueSet{"email": "ana@x.com", "doc": "123"}, got.Values)
	assert.Equal(t, created, got.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAttendeeStore_NotFound(t *testing.T) {
	mock, attendees, _ := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + attendeeColumns + " FROM attendees WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(attendeeCols))

	_, err := attendees.FindByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPostgresAttendeeStore_ListByOrg(t *testing.T) {
	mock, attendees, _ := newMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM attendees WHERE org_id = $1 ORDER BY created_at, id")).
		WithArgs("org1").
		WillReturnRows(sqlmock.NewRows(attendeeCols).
			AddRow("a1", "org1", "ana@x.com", []byte(`{}`), now, now).
			AddRow("a2", "org1", "bo@x.com", []byte(`{"age":31}`), now, now))

	list, err := attendees.ListByOrg(context.Background(), "org1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 31.0, list[1].Values["age"])
}

func TestPostgresAttendeeStore_Save(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	a := &models.Attendee{ID: "a1", OrgID: "org1", Email: "ana@x.com", Values: form.ValueSet{"email": "ana@x.com"}, CreatedAt: now, UpdatedAt: now}

	t.Run("upsert", func(t *testing.T) {
		mock, attendees, _ := newMock(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendees")).
			WithArgs("a1", "org1", "ana@x.com", []byte(`{"email":"ana@x.com"}`), now, now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, attendees.Save(ctx, a))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate email is a conflict", func(t *testing.T) {
		mock, attendees, _ := newMock(t)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendees")).
			WillReturnError(&pq.Error{Code: uniqueViolation})
		assert.ErrorIs(t, attendees.Save(ctx, a), sentinel.ErrConflict)
	})
}

func TestPostgresEventUserStore(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	cols := []string{"id", "event_id", "attendee_id", "session_id", "attended", "registered_at"}

	t.Run("find", func(t *testing.T) {
		mock, _, eventUsers := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM event_users WHERE event_id = $1 AND attendee_id = $2")).
			WithArgs("ev1", "a1").
			WillReturnRows(sqlmock.NewRows(cols).AddRow("eu1", "ev1", "a1", "sess-1", false, now))

		eu, err := eventUsers.Find(ctx, "ev1", "a1")
		require.NoError(t, err)
		assert.Equal(t, "sess-1", eu.SessionID.String())
	})

	t.Run("save keeps one row per event and attendee", func(t *testing.T) {
		mock, _, eventUsers := newMock(t)
		mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (event_id, attendee_id) DO UPDATE")).
			WithArgs("eu1", "ev1", "a1", "", false, now).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := eventUsers.Save(ctx, &models.EventUser{ID: "eu1", EventID: "ev1", AttendeeID: "a1", RegisteredAt: now})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("driver failure is wrapped", func(t *testing.T) {
		mock, _, eventUsers := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM event_users WHERE event_id = $1 ORDER BY")).
			WillReturnError(driver.ErrBadConn)
		_, err := eventUsers.ListByEvent(ctx, "ev1")
		assert.ErrorIs(t, err, driver.ErrBadConn)
	})
}

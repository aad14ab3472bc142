package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/bookcal/internal/logging"
	"github.com/teemow/bookcal/internal/store"
)

func TestDecodeAppointment(t *testing.T) {
	doc := []byte(`{"usuario":"0991234567","email":"ana@example.com","nombre":"Ana","tipo_cita":"Consulta","fecha":"2024-12-16T09:00:00-05:00","user_id":"u1"}`)

	appt, err := decodeAppointment("42", doc)
	require.NoError(t, err)

	assert.Equal(t, "42", appt.ID)
	assert.Equal(t, "u1", appt.UserID)
	assert.Equal(t, "Consulta", appt.AppointmentType)
	require.NotNil(t, appt.Timestamp)
	assert.Equal(t, time.UTC, appt.Timestamp.Location())
	assert.Equal(t, 14, appt.Timestamp.Hour())
}

func TestDecodeAppointment_MissingTimestamp(t *testing.T) {
	appt, err := decodeAppointment("1", []byte(`{"user_id":"u1"}`))
	require.NoError(t, err)
	assert.Nil(t, appt.Timestamp)
}

func TestDecodeAppointment_Invalid(t *testing.T) {
	_, err := decodeAppointment("7", []byte(`{`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "appointment 7")
}

func TestAppointmentFromRow(t *testing.T) {
	s := &Store{logger: logging.Discard().Logger()}
	fecha := time.Date(2024, 12, 16, 14, 0, 0, 0, time.FixedZone("ECT", -5*3600))

	appt, ok := s.appointmentFromRow("1", &fecha, []byte(`{"usuario":"0991234567","fecha":"2024-12-16T09:00:00","user_id":"u1"}`))
	require.True(t, ok)
	require.NotNil(t, appt.Timestamp)
	assert.Equal(t, time.Date(2024, 12, 16, 19, 0, 0, 0, time.UTC), *appt.Timestamp, "the fecha column wins")

	_, ok = s.appointmentFromRow("2", &fecha, []byte(`{"fecha":"16/12/2024 09:00","user_id":"u1"}`))
	assert.False(t, ok)

	_, ok = s.appointmentFromRow("3", nil, []byte(`{`))
	assert.False(t, ok)
}

// openTestStore connects to BOOKCAL_TEST_DATABASE_URL or skips.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("BOOKCAL_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("BOOKCAL_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, url)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.EnsureSchema(ctx))
	return s
}

func TestStore_Integration(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	suffix := time.Now().Format("150405.000000")
	company := "acme-" + suffix
	userID := "user-" + suffix

	t.Run("identity round trip", func(t *testing.T) {
		_, err := s.GetIdentity(ctx, company)
		assert.ErrorIs(t, err, store.ErrNotFound)

		require.NoError(t, s.SaveIdentity(ctx, &store.Identity{
			CompanyName:  company,
			UserID:       userID,
			AccessToken:  "old",
			RefreshToken: "refresh",
		}))

		expiry := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, s.UpdateAccessToken(ctx, company, "new", expiry))

		got, err := s.GetIdentity(ctx, company)
		require.NoError(t, err)
		assert.Equal(t, "new", got.AccessToken)
		assert.Equal(t, "refresh", got.RefreshToken)
		assert.True(t, expiry.Equal(got.Expiry))
	})

	t.Run("update unknown identity", func(t *testing.T) {
		err := s.UpdateAccessToken(ctx, "missing-"+suffix, "x", time.Now())
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("config round trip", func(t *testing.T) {
		cfg := &store.SchedulingConfig{
			UserID:          userID,
			SessionMinutes:  30,
			LookaheadDays:   5,
			PerWeekdayHours: map[store.Weekday][]string{store.Monday: {"09:00-12:00"}},
		}
		require.NoError(t, s.SaveConfig(ctx, cfg))

		got, err := s.GetConfig(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, cfg, got)
	})

	t.Run("appointments range", func(t *testing.T) {
		inside := time.Date(2024, 12, 16, 14, 0, 0, 0, time.UTC)
		outside := time.Date(2024, 12, 17, 0, 0, 0, 0, time.UTC)
		for _, ts := range []time.Time{inside, outside} {
			ts := ts
			require.NoError(t, s.InsertAppointment(ctx, &store.Appointment{UserID: userID, Timestamp: &ts}))
		}

		from := time.Date(2024, 12, 16, 0, 0, 0, 0, time.UTC)
		got, err := s.ListAppointments(ctx, userID, from, from.Add(24*time.Hour))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, inside.Equal(*got[0].Timestamp))
		assert.NotEmpty(t, got[0].ID)
	})

	t.Run("malformed appointment is skipped", func(t *testing.T) {
		at := time.Date(2024, 12, 18, 14, 0, 0, 0, time.UTC)
		_, err := s.pool.Exec(ctx, `INSERT INTO citas (user_id, fecha, doc) VALUES ($1, $2, $3)`,
			userID, at, []byte(`{"fecha":"18/12/2024 09:00","user_id":"`+userID+`"}`))
		require.NoError(t, err)
		good := at.Add(time.Hour)
		require.NoError(t, s.InsertAppointment(ctx, &store.Appointment{UserID: userID, Timestamp: &good}))

		from := time.Date(2024, 12, 18, 0, 0, 0, 0, time.UTC)
		got, err := s.ListAppointments(ctx, userID, from, from.Add(24*time.Hour))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, good.Equal(*got[0].Timestamp))
	})

	t.Run("reservations", func(t *testing.T) {
		at := time.Date(2024, 12, 16, 14, 0, 0, 0, time.UTC)
		require.NoError(t, s.Reserve(ctx, userID, at))
		assert.ErrorIs(t, s.Reserve(ctx, userID, at), store.ErrSlotTaken)
		require.NoError(t, s.Release(ctx, userID, at))
		require.NoError(t, s.Reserve(ctx, userID, at))
	})
}

package appointments

import (
	"context"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/bookcal/internal/apperr"
	"github.com/teemow/bookcal/internal/logging"
	"github.com/teemow/bookcal/internal/store"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func utc(y int, m time.Month, d, h, min int) *time.Time {
	ts := time.Date(y, m, d, h, min, 0, 0, time.UTC)
	return &ts
}

type failingStore struct{ store.AppointmentStore }

func (failingStore) ListAppointments(context.Context, string, time.Time, time.Time) ([]store.Appointment, error) {
	return nil, errors.New("timeout")
}

func (failingStore) InsertAppointment(context.Context, *store.Appointment) error {
	return errors.New("timeout")
}

func TestDayBounds(t *testing.T) {
	day := time.Date(2024, 12, 16, 0, 0, 0, 0, time.UTC)

	from, to := DayBounds(day, time.UTC)
	assert.Equal(t, time.Date(2024, 12, 16, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, 12, 17, 0, 0, 0, 0, time.UTC), to)

	from, to = DayBounds(day, mustLoad(t, "America/Guayaquil"))
	assert.Equal(t, time.Date(2024, 12, 16, 5, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, 12, 17, 5, 0, 0, 0, time.UTC), to)
}

func TestDayBounds_DSTDay(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	from, to := DayBounds(time.Date(2024, 3, 10, 0, 0, 0, 0, ny), ny)
	assert.Equal(t, 23*time.Hour, to.Sub(from))
}

func TestListAppointments(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	require.NoError(t, st.InsertAppointment(ctx, &store.Appointment{UserID: "u1", Timestamp: utc(2024, 12, 16, 14, 0)}))
	require.NoError(t, st.InsertAppointment(ctx, &store.Appointment{UserID: "u1", Timestamp: utc(2024, 12, 17, 1, 0)}))
	require.NoError(t, st.InsertAppointment(ctx, &store.Appointment{UserID: "u1"}))
	require.NoError(t, st.InsertAppointment(ctx, &store.Appointment{UserID: "u2", Timestamp: utc(2024, 12, 16, 14, 0)}))

	l := NewLookup(st, logging.Discard())
	day := time.Date(2024, 12, 16, 0, 0, 0, 0, time.UTC)

	t.Run("utc window", func(t *testing.T) {
		got, err := l.ListAppointments(ctx, "u1", day, time.UTC)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, []string{"14:00:00"}, BookedTimes(got, time.UTC))
	})

	t.Run("local window includes evening booking", func(t *testing.T) {
		gye := mustLoad(t, "America/Guayaquil")
		got, err := l.ListAppointments(ctx, "u1", day, gye)
		require.NoError(t, err)
		assert.Equal(t, []string{"09:00:00", "20:00:00"}, BookedTimes(got, gye))
	})
}

func TestListAppointments_StoreFailure(t *testing.T) {
	l := NewLookup(failingStore{}, logging.Discard())
	_, err := l.ListAppointments(context.Background(), "u1", time.Now(), time.UTC)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUnexpected))
}

func TestToLocalTimeOfDay(t *testing.T) {
	appt := store.Appointment{Timestamp: utc(2024, 12, 16, 14, 0)}

	assert.Equal(t, "14:00:00", ToLocalTimeOfDay(appt, time.UTC))
	assert.Equal(t, "09:00:00", ToLocalTimeOfDay(appt, mustLoad(t, "America/Guayaquil")))
	assert.Equal(t, "15:00:00", ToLocalTimeOfDay(appt, mustLoad(t, "Europe/Madrid")))
	assert.Equal(t, "", ToLocalTimeOfDay(store.Appointment{}, time.UTC))
}

func TestBookedTimes_SkipsMissing(t *testing.T) {
	appts := []store.Appointment{
		{Timestamp: utc(2024, 12, 16, 9, 0)},
		{},
		{Timestamp: utc(2024, 12, 16, 10, 30)},
	}
	assert.Equal(t, []string{"09:00:00", "10:30:00"}, BookedTimes(appts, time.UTC))
	assert.Empty(t, BookedTimes(nil, time.UTC))
}

func TestRecord(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	l := NewLookup(st, logging.Discard())

	local := time.Date(2024, 12, 16, 9, 0, 0, 0, mustLoad(t, "America/Guayaquil"))
	appt := &store.Appointment{UserID: "u1", CustomerEmail: "ana@example.com", Timestamp: &local}
	require.NoError(t, l.Record(ctx, appt))

	assert.NotEmpty(t, appt.ID)
	assert.Equal(t, time.UTC, appt.Timestamp.Location())
	assert.Equal(t, 14, appt.Timestamp.Hour())

	got, err := l.ListAppointments(ctx, "u1", local, time.UTC)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestRecord_Errors(t *testing.T) {
	ctx := context.Background()

	err := NewLookup(store.NewMemory(), logging.Discard()).Record(ctx, &store.Appointment{UserID: "u1"})
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))

	err = NewLookup(failingStore{}, logging.Discard()).Record(ctx, &store.Appointment{Timestamp: utc(2024, 1, 1, 0, 0)})
	assert.True(t, apperr.Is(err, apperr.KindUnexpected))
}

// Package appointments reads and writes booked appointments.
package appointments

import (
	"context"
	"time"

	"github.com/teemow/bookcal/internal/apperr"
	"github.com/teemow/bookcal/internal/logging"
	"github.com/teemow/bookcal/internal/store"
	"github.com/teemow/bookcal/internal/timewindow"
)

// Lookup queries and records appointments.
type Lookup struct {
	store  store.AppointmentStore
	logger logging.Logger
}

// NewLookup creates a Lookup. A nil logger uses the default logger.
func NewLookup(st store.AppointmentStore, logger logging.Logger) *Lookup {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Lookup{store: st, logger: logger}
}

// DayBounds returns the instants covering the civil date of day in loc,
// from local midnight up to the next local midnight.
func DayBounds(day time.Time, loc *time.Location) (from, to time.Time) {
	y, m, d := day.Date()
	from = time.Date(y, m, d, 0, 0, 0, 0, loc)
	to = time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	return from.UTC(), to.UTC()
}

// ListAppointments returns the user's appointments on the civil date of day
// in loc. Records without a timestamp are dropped.
func (l *Lookup) ListAppointments(ctx context.Context, userID string, day time.Time, loc *time.Location) ([]store.Appointment, error) {
	from, to := DayBounds(day, loc)

	records, err := l.store.ListAppointments(ctx, userID, from, to)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnexpected, err, "failed to list appointments")
	}

	out := records[:0]
	for _, r := range records {
		if r.Timestamp == nil {
			l.logger.Warn("skipping appointment without timestamp",
				logging.KeyUserID, userID, "appointment_id", r.ID)
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Record stores a new appointment. The timestamp is normalized to UTC.
func (l *Lookup) Record(ctx context.Context, appt *store.Appointment) error {
	if appt.Timestamp == nil {
		return apperr.InvalidInput("appointment timestamp is required")
	}
	ts := appt.Timestamp.UTC()
	appt.Timestamp = &ts

	if err := l.store.InsertAppointment(ctx, appt); err != nil {
		return apperr.Wrap(apperr.KindUnexpected, err, "failed to record appointment")
	}
	l.logger.Info("appointment recorded",
		logging.KeyUserID, appt.UserID,
		logging.KeyUserHash, logging.AnonymizeEmail(appt.CustomerEmail),
		logging.KeyDate, ts.Format(time.RFC3339))
	return nil
}

// ToLocalTimeOfDay formats the appointment start as HH:MM:SS in loc.
func ToLocalTimeOfDay(appt store.Appointment, loc *time.Location) string {
	if appt.Timestamp == nil {
		return ""
	}
	return timewindow.Of(appt.Timestamp.In(loc)).String()
}

// BookedTimes returns the local HH:MM:SS start of each appointment.
func BookedTimes(appts []store.Appointment, loc *time.Location) []string {
	out := make([]string, 0, len(appts))
	for _, a := range appts {
		if a.Timestamp == nil {
			continue
		}
		out = append(out, ToLocalTimeOfDay(a, loc))
	}
	return out
}

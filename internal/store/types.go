package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Weekday is the key used in SchedulingConfig.PerWeekdayHours.
type Weekday string

const (
	Monday    Weekday = "lunes"
	Tuesday   Weekday = "martes"
	Wednesday Weekday = "miercoles"
	Thursday  Weekday = "jueves"
	Friday    Weekday = "viernes"
	Saturday  Weekday = "sabado"
	Sunday    Weekday = "domingo"
)

// weekdays is indexed by time.Weekday (Sunday == 0).
var weekdays = [7]Weekday{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

// WeekdayOf returns the configuration key for the civil weekday of t.
func WeekdayOf(t time.Time) Weekday {
	return weekdays[t.Weekday()]
}

// SchedulingConfig is a company's scheduling configuration document
// (collection configuracion_calendar, keyed by user_id).
//
// Time ranges are kept in their stored "HH:MM-HH:MM" form; the availability
// engine parses them and drops malformed entries.
type SchedulingConfig struct {
	UserID           string               `json:"user_id"`
	GlobalStart      string               `json:"hora_inicio"`
	GlobalEnd        string               `json:"hora_fin"`
	SessionMinutes   int                  `json:"tiempoSesion"`
	LookaheadDays    int                  `json:"dia_disponibles"`
	BlockedWindows   []string             `json:"hora_bloqueada_list"`
	AllDay           bool                 `json:"all_day"`
	UseGlobalHours   bool                 `json:"time_global"`
	PerWeekdayHours  map[Weekday][]string `json:"days"`
	EventTitle       string               `json:"titulo_evento"`
	CalendarID       string               `json:"calendar_id"`
	EventDescription string               `json:"description_event"`
}

// Session returns the session length as a duration.
func (c *SchedulingConfig) Session() time.Duration {
	return time.Duration(c.SessionMinutes) * time.Minute
}

// Appointment is a booked appointment (collection citas).
type Appointment struct {
	ID              string `json:"id,omitempty"`
	CustomerPhone   string `json:"usuario"`
	CustomerEmail   string `json:"email"`
	CustomerName    string `json:"nombre"`
	AppointmentType string `json:"tipo_cita"`
	// Timestamp is the appointment start, always interpreted as UTC.
	// Nil when the stored record has no timestamp.
	Timestamp *time.Time `json:"fecha"`
	UserID    string     `json:"user_id"`
}

// naiveLayouts are accepted for timestamps written without a zone.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// UnmarshalJSON decodes an appointment document. A fecha without a zone
// designator is read as UTC.
func (a *Appointment) UnmarshalJSON(data []byte) error {
	type plain Appointment
	aux := struct {
		*plain
		Timestamp json.RawMessage `json:"fecha"`
	}{plain: (*plain)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	a.Timestamp = nil
	if len(aux.Timestamp) == 0 || bytes.Equal(aux.Timestamp, []byte("null")) {
		return nil
	}
	var text string
	if err := json.Unmarshal(aux.Timestamp, &text); err != nil {
		return fmt.Errorf("fecha: %w", err)
	}
	ts, err := parseTimestamp(text)
	if err != nil {
		return err
	}
	a.Timestamp = &ts
	return nil
}

func parseTimestamp(text string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, text); err == nil {
		return ts.UTC(), nil
	}
	for _, layout := range naiveLayouts {
		if ts, err := time.ParseInLocation(layout, text, time.UTC); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("fecha: unrecognized timestamp %q", text)
}

// Identity is a company's stored OAuth credential record
// (collection credentials, keyed by name_company).
type Identity struct {
	CompanyName  string    `json:"name_company"`
	UserID       string    `json:"user_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	Scope        string    `json:"scope"`
	Expiry       time.Time `json:"expiry_time"`
}

// Expired reports whether the access token must be refreshed at now.
// A record without an expiry is treated as expired.
func (i *Identity) Expired(now time.Time) bool {
	return !now.Before(i.Expiry)
}

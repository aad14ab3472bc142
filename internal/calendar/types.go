package calendar

import (
	"strings"
	"time"

	calendar "google.golang.org/api/calendar/v3"

	"github.com/teemow/bookcal/internal/apperr"
)

// CreateEventInput is a booking request for one slot.
type CreateEventInput struct {
	StartTime     string `json:"start_time" validate:"required"`
	AttendeeEmail string `json:"assistant_email" validate:"required,email"`
	CustomerPhone string `json:"usuario" validate:"required"`
	CustomerName  string `json:"nombre" validate:"required"`
}

// DeleteResult is returned after an event was deleted.
type DeleteResult struct {
	Status string `json:"status"`
}

// Deleted is the result of a successful delete.
var Deleted = DeleteResult{Status: "deleted"}

// ConferenceSolution is the conference type requested for new events.
const ConferenceSolution = "hangoutsMeet"

const (
	eventLinkLabel = "Enlace del evento: "
	meetLinkLabel  = "Enlace Meet: "
)

// JoinLink returns the video entry point of an event, or "".
func JoinLink(event *calendar.Event) string {
	if event == nil || event.ConferenceData == nil {
		return ""
	}
	for _, ep := range event.ConferenceData.EntryPoints {
		if ep != nil && ep.EntryPointType == "video" {
			return ep.Uri
		}
	}
	return ""
}

// LinkedDescription appends the event link and, when present, the join link
// to description.
func LinkedDescription(description, htmlLink, joinLink string) string {
	var b strings.Builder
	b.WriteString(description)
	b.WriteString("\n\n")
	b.WriteString(eventLinkLabel)
	b.WriteString(htmlLink)
	if joinLink != "" {
		b.WriteString("\n")
		b.WriteString(meetLinkLabel)
		b.WriteString(joinLink)
	}
	return b.String()
}

var timeMinLayouts = []string{"2006-01-02T15:04", "2006-01-02 15:04"}

// ConvertToRFC3339 normalizes "YYYY-MM-DD HH:MM" or "YYYY-MM-DDTHH:MM",
// read as UTC, to "YYYY-MM-DDTHH:MM:SSZ".
func ConvertToRFC3339(value string) (string, error) {
	layout := timeMinLayouts[1]
	if strings.Contains(value, "T") {
		layout = timeMinLayouts[0]
	}
	t, err := time.ParseInLocation(layout, value, time.UTC)
	if err != nil {
		return "", apperr.InvalidInput("Invalid datetime format: %s. Expected 'YYYY-MM-DD HH:MM' or 'YYYY-MM-DDTHH:MM'", value)
	}
	return t.Format("2006-01-02T15:04:05Z"), nil
}

var startTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseStartTime parses an RFC3339 start instant. Values without an offset
// are read in loc.
func ParseStartTime(value string, loc *time.Location) (time.Time, error) {
	for _, layout := range startTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, apperr.InvalidInput("invalid start_time %q: use RFC3339", value)
}

func newEvent(title, description, attendee, zone, requestID string, start, end time.Time) *calendar.Event {
	return &calendar.Event{
		Summary:     title,
		Description: description,
		Start: &calendar.EventDateTime{
			DateTime: start.Format(time.RFC3339),
			TimeZone: zone,
		},
		End: &calendar.EventDateTime{
			DateTime: end.Format(time.RFC3339),
			TimeZone: zone,
		},
		Attendees: []*calendar.EventAttendee{{Email: attendee}},
		Reminders: &calendar.EventReminders{UseDefault: true},
		ConferenceData: &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId:             requestID,
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{Type: ConferenceSolution},
			},
		},
	}
}

func calendarIDOrDefault(id string) string {
	if id == "" {
		return DefaultCalendarID
	}
	return id
}

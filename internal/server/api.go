package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	gcal "google.golang.org/api/calendar/v3"

	"github.com/teemow/bookcal/internal/apperr"
	"github.com/teemow/bookcal/internal/availability"
	"github.com/teemow/bookcal/internal/calendar"
	"github.com/teemow/bookcal/internal/logging"
)

// maxBodyBytes limits request bodies on event endpoints.
const maxBodyBytes = 1 << 20

// AvailabilityService answers availability queries.
type AvailabilityService interface {
	AvailableDays(ctx context.Context, company string, loc *time.Location) ([]string, error)
	AvailableHours(ctx context.Context, company, dateISO, zoneName string) ([]availability.Slot, error)
}

// EventService manages calendar events.
type EventService interface {
	ListEvents(ctx context.Context, company, calendarID, timeMin string) (*gcal.Events, error)
	GetEvent(ctx context.Context, company, calendarID, eventID string) (*gcal.Event, error)
	CreateEvent(ctx context.Context, company string, in calendar.CreateEventInput) (*gcal.Event, error)
	UpdateEvent(ctx context.Context, company, calendarID, eventID string, body *gcal.Event) (*gcal.Event, error)
	DeleteEvent(ctx context.Context, company, calendarID, eventID string) (calendar.DeleteResult, error)
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// API serves the availability and event endpoints.
type API struct {
	availability AvailabilityService
	events       EventService
	validate     *validator.Validate
	logger       *slog.Logger
}

// NewAPI creates an API. A nil validate uses validator.New(). Validation
// errors name fields by their JSON tag.
func NewAPI(avail AvailabilityService, events EventService, validate *validator.Validate, logger *slog.Logger) *API {
	if validate == nil {
		validate = validator.New()
	}
	validate.RegisterTagNameFunc(jsonTagName)
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		availability: avail,
		events:       events,
		validate:     validate,
		logger:       logger,
	}
}

// Register adds the API routes to mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /availability/days", a.availableDays)
	mux.HandleFunc("GET /availability/hours", a.availableHours)
	mux.HandleFunc("GET /events", a.listEvents)
	mux.HandleFunc("POST /events", a.createEvent)
	mux.HandleFunc("GET /events/{event_id}", a.getEvent)
	mux.HandleFunc("PUT /events/{event_id}", a.updateEvent)
	mux.HandleFunc("DELETE /events/{event_id}", a.deleteEvent)
}

func (a *API) availableDays(w http.ResponseWriter, r *http.Request) {
	company, ok := a.company(w, r)
	if !ok {
		return
	}

	var loc *time.Location
	if zone := r.URL.Query().Get("time_zone"); zone != "" {
		parsed, err := availability.ParseZone(zone)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		loc = parsed
	}

	days, err := a.availability.AvailableDays(r.Context(), company, loc)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, days)
}

func (a *API) availableHours(w http.ResponseWriter, r *http.Request) {
	company, ok := a.company(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	date := q.Get("date_select")
	if date == "" {
		a.writeError(w, r, apperr.InvalidInput("date_select is required"))
		return
	}

	slots, err := a.availability.AvailableHours(r.Context(), company, date, q.Get("time_zone"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

func (a *API) listEvents(w http.ResponseWriter, r *http.Request) {
	company, ok := a.company(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	events, err := a.events.ListEvents(r.Context(), company, q.Get("calendar_id"), q.Get("time_min"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (a *API) getEvent(w http.ResponseWriter, r *http.Request) {
	company, ok := a.company(w, r)
	if !ok {
		return
	}

	event, err := a.events.GetEvent(r.Context(), company, r.URL.Query().Get("calendar_id"), r.PathValue("event_id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (a *API) createEvent(w http.ResponseWriter, r *http.Request) {
	company, ok := a.company(w, r)
	if !ok {
		return
	}

	var in calendar.CreateEventInput
	if err := decodeBody(w, r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.validate.Struct(in); err != nil {
		a.writeError(w, r, validationError(err))
		return
	}

	event, err := a.events.CreateEvent(r.Context(), company, in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (a *API) updateEvent(w http.ResponseWriter, r *http.Request) {
	company, ok := a.company(w, r)
	if !ok {
		return
	}

	var body gcal.Event
	if err := decodeBody(w, r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}

	event, err := a.events.UpdateEvent(r.Context(), company, r.URL.Query().Get("calendar_id"), r.PathValue("event_id"), &body)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (a *API) deleteEvent(w http.ResponseWriter, r *http.Request) {
	company, ok := a.company(w, r)
	if !ok {
		return
	}

	result, err := a.events.DeleteEvent(r.Context(), company, r.URL.Query().Get("calendar_id"), r.PathValue("event_id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// company reads the required name_company query parameter.
func (a *API) company(w http.ResponseWriter, r *http.Request) (string, bool) {
	company := strings.TrimSpace(r.URL.Query().Get("name_company"))
	if company == "" {
		a.writeError(w, r, apperr.InvalidInput("name_company is required"))
		return "", false
	}
	return company, true
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	attrs := []any{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", RequestIDFromContext(r.Context())),
		logging.Status(string(apperr.KindOf(err))),
		logging.Err(err),
	}
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", attrs...)
	} else {
		a.logger.Debug("request rejected", attrs...)
	}
	writeJSON(w, status, ErrorResponse{Detail: apperr.Detail(err)})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return apperr.InvalidInput("invalid request body: %v", err)
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.InvalidInput("invalid request body: %v", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return apperr.InvalidInput("invalid fields: %s", strings.Join(fields, ", "))
}

// jsonTagName reports struct fields by their JSON name in validation errors.
func jsonTagName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

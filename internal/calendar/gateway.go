package calendar

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"

	"github.com/teemow/bookcal/internal/apperr"
	"github.com/teemow/bookcal/internal/google"
	"github.com/teemow/bookcal/internal/instrumentation"
	"github.com/teemow/bookcal/internal/logging"
	"github.com/teemow/bookcal/internal/store"
)

// Resolver resolves a company's identity and scheduling configuration.
type Resolver interface {
	ResolveIdentity(ctx context.Context, company string) (*store.Identity, error)
	ResolveConfig(ctx context.Context, userID string) (*store.SchedulingConfig, error)
}

// AppointmentRecorder persists a booked appointment.
type AppointmentRecorder interface {
	Record(ctx context.Context, appt *store.Appointment) error
}

// GatewayOptions configures a Gateway.
type GatewayOptions struct {
	Client ClientOptions

	// TimeZone is sent with new events and used to read start times
	// without an offset.
	TimeZone *time.Location

	// Reservations enables slot reservation before events are created.
	Reservations store.ReservationStore

	// RequestID generates conference request ids. Defaults to uuid.NewString.
	RequestID func() string

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
	Audit   *instrumentation.AuditLogger
}

// Gateway performs calendar event operations on behalf of a company.
//
// Every call runs with a valid access token. A 401 from the Calendar API
// triggers one retry after a forced refresh; other failures are returned as
// apperr.KindUpstream errors carrying the provider's status and body.
//
// Creating an event and recording the appointment are two sequential writes.
// When recording fails the event stays in the calendar.
type Gateway struct {
	tokens       google.TokenProvider
	resolver     Resolver
	recorder     AppointmentRecorder
	reservations store.ReservationStore
	client       ClientOptions
	zone         *time.Location
	requestID    func() string
	logger       *slog.Logger
	metrics      *instrumentation.Metrics
	audit        *instrumentation.AuditLogger
}

// NewGateway creates a Gateway.
func NewGateway(tokens google.TokenProvider, resolver Resolver, recorder AppointmentRecorder, opts GatewayOptions) *Gateway {
	g := &Gateway{
		tokens:       tokens,
		resolver:     resolver,
		recorder:     recorder,
		reservations: opts.Reservations,
		client:       opts.Client,
		zone:         opts.TimeZone,
		requestID:    opts.RequestID,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		audit:        opts.Audit,
	}
	if g.zone == nil {
		g.zone = time.UTC
	}
	if g.requestID == nil {
		g.requestID = uuid.NewString
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

// ListEvents lists events of a calendar. timeMin is either empty or in one
// of the formats accepted by ConvertToRFC3339.
func (g *Gateway) ListEvents(ctx context.Context, company, calendarID, timeMin string) (*calendar.Events, error) {
	if timeMin != "" {
		normalized, err := ConvertToRFC3339(timeMin)
		if err != nil {
			return nil, err
		}
		timeMin = normalized
	}

	var events *calendar.Events
	err := g.call(ctx, company, instrumentation.OperationList, "", func(ctx context.Context, c *Client) (err error) {
		events, err = c.ListEvents(ctx, calendarIDOrDefault(calendarID), timeMin)
		return err
	})
	return events, err
}

// GetEvent retrieves one event.
func (g *Gateway) GetEvent(ctx context.Context, company, calendarID, eventID string) (*calendar.Event, error) {
	var event *calendar.Event
	err := g.call(ctx, company, instrumentation.OperationGet, eventID, func(ctx context.Context, c *Client) (err error) {
		event, err = c.GetEvent(ctx, calendarIDOrDefault(calendarID), eventID)
		return err
	})
	return event, err
}

// UpdateEvent replaces an event with body.
func (g *Gateway) UpdateEvent(ctx context.Context, company, calendarID, eventID string, body *calendar.Event) (event *calendar.Event, err error) {
	audit := instrumentation.NewEventAudit(instrumentation.OperationUpdate, company).WithEvent(eventID, time.Time{})
	defer func() { g.audit.Log(ctx, audit.WithSpanContext(ctx).Complete(err)) }()

	err = g.call(ctx, company, instrumentation.OperationUpdate, eventID, func(ctx context.Context, c *Client) (err error) {
		event, err = c.UpdateEvent(ctx, calendarIDOrDefault(calendarID), eventID, body)
		return err
	})
	return event, err
}

// DeleteEvent deletes one event.
func (g *Gateway) DeleteEvent(ctx context.Context, company, calendarID, eventID string) (result DeleteResult, err error) {
	audit := instrumentation.NewEventAudit(instrumentation.OperationDelete, company).WithEvent(eventID, time.Time{})
	defer func() { g.audit.Log(ctx, audit.WithSpanContext(ctx).Complete(err)) }()

	err = g.call(ctx, company, instrumentation.OperationDelete, eventID, func(ctx context.Context, c *Client) error {
		return c.DeleteEvent(ctx, calendarIDOrDefault(calendarID), eventID)
	})
	if err != nil {
		return DeleteResult{}, err
	}
	return Deleted, nil
}

// CreateEvent books a slot: it creates the event with a Meet conference,
// links the event from its description and records the appointment.
func (g *Gateway) CreateEvent(ctx context.Context, company string, in CreateEventInput) (event *calendar.Event, err error) {
	logger := logging.WithOperation(logging.WithCompany(g.logger, company), "create_event")
	audit := instrumentation.NewEventAudit(instrumentation.OperationCreate, company).WithCustomer(in.AttendeeEmail)
	defer func() { g.audit.Log(ctx, audit.WithSpanContext(ctx).Complete(err)) }()

	identity, err := g.resolver.ResolveIdentity(ctx, company)
	if err != nil {
		return nil, err
	}
	cfg, err := g.resolver.ResolveConfig(ctx, identity.UserID)
	if err != nil {
		return nil, err
	}
	if cfg.Session() <= 0 {
		return nil, apperr.Configuration("company %q has a non-positive session length", company)
	}

	start, err := ParseStartTime(in.StartTime, g.zone)
	if err != nil {
		return nil, err
	}
	end := start.Add(cfg.Session())
	calendarID := calendarIDOrDefault(cfg.CalendarID)
	audit.WithEvent("", start)

	if err := g.reserve(ctx, identity.UserID, start); err != nil {
		return nil, err
	}

	draft := newEvent(cfg.EventTitle, cfg.EventDescription, in.AttendeeEmail, g.zone.String(), g.requestID(), start, end)
	err = g.call(ctx, company, instrumentation.OperationCreate, "", func(ctx context.Context, c *Client) (err error) {
		event, err = c.InsertEvent(ctx, calendarID, draft)
		return err
	})
	if err != nil {
		g.release(ctx, identity.UserID, start)
		return nil, err
	}
	audit.WithEvent(event.Id, start)

	if event.HtmlLink != "" {
		description := LinkedDescription(cfg.EventDescription, event.HtmlLink, JoinLink(event))
		var patched *calendar.Event
		err = g.call(ctx, company, instrumentation.OperationPatch, event.Id, func(ctx context.Context, c *Client) (err error) {
			patched, err = c.PatchDescription(ctx, calendarID, event.Id, description)
			return err
		})
		if err != nil {
			logger.Warn("event created but description could not be linked",
				slog.String(logging.KeyEventID, event.Id), logging.Err(err))
			return nil, err
		}
		event = patched
	}

	fecha := start.UTC()
	appt := &store.Appointment{
		CustomerPhone:   in.CustomerPhone,
		CustomerEmail:   in.AttendeeEmail,
		CustomerName:    in.CustomerName,
		AppointmentType: cfg.EventTitle,
		Timestamp:       &fecha,
		UserID:          identity.UserID,
	}
	if err := g.recorder.Record(ctx, appt); err != nil {
		g.metrics.RecordAppointment(ctx, company, instrumentation.StatusError)
		logger.Error("event created but appointment could not be recorded",
			slog.String(logging.KeyEventID, event.Id), logging.Err(err))
		return nil, err
	}
	g.metrics.RecordAppointment(ctx, company, instrumentation.StatusSuccess)

	logger.Info("event created",
		slog.String(logging.KeyEventID, event.Id),
		logging.UserHash(in.AttendeeEmail),
		slog.String("start", fecha.Format(time.RFC3339)))
	return event, nil
}

func (g *Gateway) reserve(ctx context.Context, userID string, at time.Time) error {
	if g.reservations == nil {
		return nil
	}
	err := g.reservations.Reserve(ctx, userID, at)
	switch {
	case errors.Is(err, store.ErrSlotTaken):
		g.metrics.RecordReservation(ctx, instrumentation.ReservationConflict)
		return apperr.Conflict("slot %s is already booked", at.Format(time.RFC3339))
	case err != nil:
		return apperr.Wrap(apperr.KindUnexpected, err, "failed to reserve slot")
	}
	g.metrics.RecordReservation(ctx, instrumentation.ReservationAcquired)
	return nil
}

func (g *Gateway) release(ctx context.Context, userID string, at time.Time) {
	if g.reservations == nil {
		return
	}
	if err := g.reservations.Release(ctx, userID, at); err != nil {
		g.logger.Warn("failed to release slot reservation", logging.UserID(userID), logging.Err(err))
		return
	}
	g.metrics.RecordReservation(ctx, instrumentation.ReservationReleased)
}

// call runs fn with a client for company, retrying once with a refreshed
// token when the Calendar API answers 401.
func (g *Gateway) call(ctx context.Context, company, operation, eventID string, fn func(context.Context, *Client) error) (err error) {
	attrs := instrumentation.NewSpanAttributeBuilder().WithCompany(company)
	if eventID != "" {
		attrs = attrs.WithEventID(eventID)
	}
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceCalendar, operation, attrs.Build()...)
	start := time.Now()
	defer func() {
		instrumentation.SetSpanError(span, err)
		span.End()
		status := instrumentation.StatusSuccess
		if err != nil {
			status = instrumentation.StatusError
		}
		g.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceCalendar, operation, status, time.Since(start))
	}()

	token, err := g.tokens.Token(ctx, company)
	if err != nil {
		return err
	}
	err = g.attempt(ctx, token, fn)
	if !isUnauthorized(err) {
		return upstreamError(err)
	}

	g.logger.Info("calendar rejected access token, refreshing",
		logging.Company(company), logging.Operation(operation))
	token, err = g.tokens.ForceRefresh(ctx, company)
	if err != nil {
		return err
	}
	return upstreamError(g.attempt(ctx, token, fn))
}

func (g *Gateway) attempt(ctx context.Context, token *oauth2.Token, fn func(context.Context, *Client) error) error {
	client, err := NewClient(ctx, token, g.client)
	if err != nil {
		return apperr.Wrap(apperr.KindUnexpected, err, "failed to create calendar client")
	}
	return fn(ctx, client)
}

func isUnauthorized(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusUnauthorized
}

// upstreamError converts a Calendar API error into an apperr.Error.
func upstreamError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		body := gerr.Body
		if body == "" {
			body = gerr.Message
		}
		return &apperr.Error{Kind: apperr.KindUpstream, Status: gerr.Code, Message: body, Err: err}
	}
	return apperr.Wrap(apperr.KindUnexpected, err, "calendar request failed")
}

package calendar

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// DefaultCalendarID is used when no calendar id is configured or requested.
const DefaultCalendarID = "primary"

// Client is a Google Calendar client bound to a single access token.
type Client struct {
	svc *calendar.Service
}

// ClientOptions configures how a Client reaches the Calendar API.
type ClientOptions struct {
	// Endpoint overrides the Calendar API base URL. Used by tests.
	Endpoint string

	// HTTPClient is the base client under the oauth2 transport.
	HTTPClient *http.Client
}

// NewClient creates a Calendar client authorized with token.
func NewClient(ctx context.Context, token *oauth2.Token, opts ClientOptions) (*Client, error) {
	if opts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, opts.HTTPClient)
	}
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	clientOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}

	svc, err := calendar.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// ListEvents lists events of a calendar. When timeMin is set, recurring
// events are expanded and ordered by start time.
func (c *Client) ListEvents(ctx context.Context, calendarID, timeMin string) (*calendar.Events, error) {
	call := c.svc.Events.List(calendarID).Context(ctx)
	if timeMin != "" {
		call = call.TimeMin(timeMin).
			SingleEvents(true).
			OrderBy("startTime")
	}

	events, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

// GetEvent retrieves a specific event by ID
func (c *Client) GetEvent(ctx context.Context, calendarID, eventID string) (*calendar.Event, error) {
	event, err := c.svc.Events.Get(calendarID, eventID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return event, nil
}

// InsertEvent creates an event. Conference data in the event is honoured.
func (c *Client) InsertEvent(ctx context.Context, calendarID string, event *calendar.Event) (*calendar.Event, error) {
	created, err := c.svc.Events.Insert(calendarID, event).
		ConferenceDataVersion(1).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	return created, nil
}

// PatchDescription replaces only the description of an event.
func (c *Client) PatchDescription(ctx context.Context, calendarID, eventID, description string) (*calendar.Event, error) {
	patch := &calendar.Event{Description: description}
	updated, err := c.svc.Events.Patch(calendarID, eventID, patch).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to patch event description: %w", err)
	}
	return updated, nil
}

// UpdateEvent replaces an event with the given body.
func (c *Client) UpdateEvent(ctx context.Context, calendarID, eventID string, event *calendar.Event) (*calendar.Event, error) {
	updated, err := c.svc.Events.Update(calendarID, eventID, event).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	return updated, nil
}

// DeleteEvent deletes a calendar event
func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	if err := c.svc.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"

	"github.com/teemow/bookcal/internal/apperr"
	"github.com/teemow/bookcal/internal/appointments"
	"github.com/teemow/bookcal/internal/logging"
	"github.com/teemow/bookcal/internal/resolver"
	"github.com/teemow/bookcal/internal/store"
)

const (
	testHTMLLink = "https://calendar.google.com/event?eid=evt1"
	testMeetLink = "https://meet.google.com/abc-defg-hij"
	notFoundBody = `{"error":{"code":404,"message":"Not Found","errors":[{"domain":"global","reason":"notFound","message":"Not Found"}]}}`
)

// fakeCalendar serves the subset of the Calendar v3 API used by Gateway.
type fakeCalendar struct {
	mu sync.Mutex

	rejectTokens map[string]bool
	failInsert   int
	failPatch    int

	calls       []string
	tokensSeen  []string
	inserted    *calendar.Event
	insertQuery url.Values
	patched     string
	listQuery   url.Values
	updated     *calendar.Event
}

func (f *fakeCalendar) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, r.Method+" "+r.URL.Path)
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	f.tokensSeen = append(f.tokensSeen, token)
	if f.rejectTokens[token] {
		writeAPIError(w, http.StatusUnauthorized, "Invalid Credentials")
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/calendars/"), "/")
	if len(parts) < 2 || parts[1] != "events" {
		writeAPIError(w, http.StatusNotFound, "Not Found")
		return
	}
	eventID := ""
	if len(parts) > 2 {
		eventID = parts[2]
	}

	switch {
	case r.Method == http.MethodPost && eventID == "":
		if f.failInsert != 0 {
			writeAPIError(w, f.failInsert, "insert failed")
			return
		}
		var event calendar.Event
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			writeAPIError(w, http.StatusBadRequest, err.Error())
			return
		}
		inserted := event
		f.inserted = &inserted
		f.insertQuery = r.URL.Query()
		event.Id = "evt1"
		event.HtmlLink = testHTMLLink
		event.ConferenceData = &calendar.ConferenceData{EntryPoints: []*calendar.EntryPoint{
			{EntryPointType: "video", Uri: testMeetLink},
		}}
		writeJSON(w, http.StatusOK, &event)

	case r.Method == http.MethodPatch && eventID != "":
		if f.failPatch != 0 {
			writeAPIError(w, f.failPatch, "patch failed")
			return
		}
		var patch calendar.Event
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeAPIError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.patched = patch.Description
		writeJSON(w, http.StatusOK, &calendar.Event{Id: eventID, Description: patch.Description, HtmlLink: testHTMLLink})

	case r.Method == http.MethodGet && eventID == "":
		f.listQuery = r.URL.Query()
		writeJSON(w, http.StatusOK, &calendar.Events{Items: []*calendar.Event{{Id: "evt1"}, {Id: "evt2"}}})

	case r.Method == http.MethodGet && eventID == "evt1":
		writeJSON(w, http.StatusOK, &calendar.Event{Id: "evt1", Summary: "Consulta"})

	case r.Method == http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, notFoundBody)

	case r.Method == http.MethodPut:
		var event calendar.Event
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			writeAPIError(w, http.StatusBadRequest, err.Error())
			return
		}
		event.Id = eventID
		f.updated = &event
		writeJSON(w, http.StatusOK, &event)

	case r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)

	default:
		writeAPIError(w, http.StatusMethodNotAllowed, "unsupported")
	}
}

func (f *fakeCalendar) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":{"code":%d,"message":%q}}`, status, message)
}

type fakeTokens struct {
	current    string
	refreshed  string
	refreshErr error

	tokenCalls   int
	refreshCalls int
}

func (f *fakeTokens) Token(context.Context, string) (*oauth2.Token, error) {
	f.tokenCalls++
	return &oauth2.Token{AccessToken: f.current, TokenType: "Bearer"}, nil
}

func (f *fakeTokens) ForceRefresh(context.Context, string) (*oauth2.Token, error) {
	f.refreshCalls++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	f.current = f.refreshed
	return &oauth2.Token{AccessToken: f.refreshed, TokenType: "Bearer"}, nil
}

var guayaquil = func() *time.Location {
	loc, err := time.LoadLocation("America/Guayaquil")
	if err != nil {
		panic(err)
	}
	return loc
}()

func newTestGateway(t *testing.T, api *fakeCalendar, tokens *fakeTokens, configure ...func(*GatewayOptions, *store.Memory)) (*Gateway, *store.Memory) {
	t.Helper()
	ctx := context.Background()

	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	st := store.NewMemory()
	require.NoError(t, st.SaveIdentity(ctx, &store.Identity{
		CompanyName:  "acme",
		UserID:       "u1",
		AccessToken:  "stale",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
	}))
	require.NoError(t, st.SaveConfig(ctx, &store.SchedulingConfig{
		UserID:           "u1",
		SessionMinutes:   30,
		EventTitle:       "Consulta",
		EventDescription: "Cita con Acme",
	}))

	logger := logging.Discard()
	opts := GatewayOptions{
		Client:    ClientOptions{Endpoint: srv.URL + "/", HTTPClient: srv.Client()},
		TimeZone:  guayaquil,
		RequestID: func() string { return "req-1" },
		Logger:    logger.Logger(),
	}
	for _, fn := range configure {
		fn(&opts, st)
	}

	res := resolver.New(st, st, resolver.NewMemoryCache(time.Minute), logger.Logger())
	return NewGateway(tokens, res, appointments.NewLookup(st, logger), opts), st
}

func withReservations(o *GatewayOptions, st *store.Memory) {
	o.Reservations = st
}

func bookingInput() CreateEventInput {
	return CreateEventInput{
		StartTime:     "2024-12-16T09:00:00-05:00",
		AttendeeEmail: "ana@example.com",
		CustomerPhone: "+593999999999",
		CustomerName:  "Ana",
	}
}

func storedAppointments(t *testing.T, st *store.Memory) []store.Appointment {
	t.Helper()
	from, to := appointments.DayBounds(time.Date(2024, 12, 16, 0, 0, 0, 0, guayaquil), guayaquil)
	appts, err := st.ListAppointments(context.Background(), "u1", from, to)
	require.NoError(t, err)
	return appts
}

func TestGateway_CreateEvent(t *testing.T) {
	api := &fakeCalendar{}
	gw, st := newTestGateway(t, api, &fakeTokens{current: "valid"})

	event, err := gw.CreateEvent(context.Background(), "acme", bookingInput())
	require.NoError(t, err)

	require.NotNil(t, api.inserted)
	assert.Equal(t, "1", api.insertQuery.Get("conferenceDataVersion"))
	assert.Equal(t, "Consulta", api.inserted.Summary)
	assert.Equal(t, "Cita con Acme", api.inserted.Description)
	assert.Equal(t, "2024-12-16T09:00:00-05:00", api.inserted.Start.DateTime)
	assert.Equal(t, "2024-12-16T09:30:00-05:00", api.inserted.End.DateTime)
	assert.Equal(t, "America/Guayaquil", api.inserted.Start.TimeZone)
	require.Len(t, api.inserted.Attendees, 1)
	assert.Equal(t, "ana@example.com", api.inserted.Attendees[0].Email)
	require.NotNil(t, api.inserted.ConferenceData)
	assert.Equal(t, "req-1", api.inserted.ConferenceData.CreateRequest.RequestId)
	assert.Equal(t, "hangoutsMeet", api.inserted.ConferenceData.CreateRequest.ConferenceSolutionKey.Type)

	wantDescription := "Cita con Acme\n\nEnlace del evento: " + testHTMLLink + "\nEnlace Meet: " + testMeetLink
	assert.Equal(t, wantDescription, api.patched)
	assert.Equal(t, "evt1", event.Id)
	assert.Equal(t, wantDescription, event.Description)

	appts := storedAppointments(t, st)
	require.Len(t, appts, 1)
	assert.Equal(t, time.Date(2024, 12, 16, 14, 0, 0, 0, time.UTC), *appts[0].Timestamp)
	assert.Equal(t, "Consulta", appts[0].AppointmentType)
	assert.Equal(t, "ana@example.com", appts[0].CustomerEmail)
	assert.Equal(t, "+593999999999", appts[0].CustomerPhone)
	assert.Equal(t, "Ana", appts[0].CustomerName)
	assert.Equal(t, "u1", appts[0].UserID)
}

func TestGateway_CreateEvent_UsesConfiguredCalendar(t *testing.T) {
	api := &fakeCalendar{}
	gw, st := newTestGateway(t, api, &fakeTokens{current: "valid"})
	require.NoError(t, st.SaveConfig(context.Background(), &store.SchedulingConfig{
		UserID:         "u1",
		SessionMinutes: 45,
		EventTitle:     "Consulta",
		CalendarID:     "team",
	}))

	_, err := gw.CreateEvent(context.Background(), "acme", bookingInput())
	require.NoError(t, err)

	assert.Equal(t, []string{"POST /calendars/team/events", "PATCH /calendars/team/events/evt1"}, api.calls)
	assert.Equal(t, "2024-12-16T09:45:00-05:00", api.inserted.End.DateTime)
}

func TestGateway_CreateEvent_InvalidInput(t *testing.T) {
	api := &fakeCalendar{}
	gw, _ := newTestGateway(t, api, &fakeTokens{current: "valid"})

	in := bookingInput()
	in.StartTime = "mañana"
	_, err := gw.CreateEvent(context.Background(), "acme", in)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(err))

	_, err = gw.CreateEvent(context.Background(), "unknown", bookingInput())
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, apperr.HTTPStatus(err))

	assert.Zero(t, api.callCount())
}

func TestGateway_CreateEvent_PatchFailurePropagates(t *testing.T) {
	api := &fakeCalendar{failPatch: http.StatusForbidden}
	gw, st := newTestGateway(t, api, &fakeTokens{current: "valid"})

	_, err := gw.CreateEvent(context.Background(), "acme", bookingInput())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
	assert.Equal(t, http.StatusForbidden, apperr.HTTPStatus(err))
	assert.Empty(t, storedAppointments(t, st))
}

func TestGateway_CreateEvent_Reservations(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 12, 16, 14, 0, 0, 0, time.UTC)

	t.Run("taken slot conflicts", func(t *testing.T) {
		api := &fakeCalendar{}
		gw, st := newTestGateway(t, api, &fakeTokens{current: "valid"}, withReservations)
		require.NoError(t, st.Reserve(ctx, "u1", start))

		_, err := gw.CreateEvent(ctx, "acme", bookingInput())
		require.Error(t, err)
		assert.Equal(t, http.StatusConflict, apperr.HTTPStatus(err))
		assert.Zero(t, api.callCount())
	})

	t.Run("failed insert releases the slot", func(t *testing.T) {
		api := &fakeCalendar{failInsert: http.StatusInternalServerError}
		gw, st := newTestGateway(t, api, &fakeTokens{current: "valid"}, withReservations)

		_, err := gw.CreateEvent(ctx, "acme", bookingInput())
		require.Error(t, err)
		assert.Equal(t, http.StatusInternalServerError, apperr.HTTPStatus(err))
		assert.True(t, apperr.Is(err, apperr.KindUpstream))

		assert.NoError(t, st.Reserve(ctx, "u1", start))
		assert.Empty(t, storedAppointments(t, st))
	})

	t.Run("second booking of the same slot conflicts", func(t *testing.T) {
		api := &fakeCalendar{}
		gw, st := newTestGateway(t, api, &fakeTokens{current: "valid"}, withReservations)

		_, err := gw.CreateEvent(ctx, "acme", bookingInput())
		require.NoError(t, err)
		_, err = gw.CreateEvent(ctx, "acme", bookingInput())
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.KindConflict))
		assert.Len(t, storedAppointments(t, st), 1)
	})
}

func TestGateway_RetriesOnceAfterUnauthorized(t *testing.T) {
	api := &fakeCalendar{rejectTokens: map[string]bool{"stale": true}}
	tokens := &fakeTokens{current: "stale", refreshed: "fresh"}
	gw, _ := newTestGateway(t, api, tokens)

	event, err := gw.GetEvent(context.Background(), "acme", "", "evt1")
	require.NoError(t, err)
	assert.Equal(t, "Consulta", event.Summary)

	assert.Equal(t, 1, tokens.refreshCalls)
	assert.Equal(t, []string{"stale", "fresh"}, api.tokensSeen)
}

func TestGateway_SecondUnauthorizedPropagates(t *testing.T) {
	api := &fakeCalendar{rejectTokens: map[string]bool{"stale": true, "fresh": true}}
	tokens := &fakeTokens{current: "stale", refreshed: "fresh"}
	gw, _ := newTestGateway(t, api, tokens)

	_, err := gw.GetEvent(context.Background(), "acme", "", "evt1")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
	assert.Equal(t, http.StatusUnauthorized, apperr.HTTPStatus(err))
	assert.Equal(t, 1, tokens.refreshCalls)
	assert.Equal(t, 2, api.callCount())
}

func TestGateway_RefreshFailureIsUnauthorized(t *testing.T) {
	api := &fakeCalendar{rejectTokens: map[string]bool{"stale": true}}
	tokens := &fakeTokens{current: "stale", refreshErr: apperr.Unauthorized("cannot refresh token")}
	gw, _ := newTestGateway(t, api, tokens)

	_, err := gw.DeleteEvent(context.Background(), "acme", "", "evt1")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	assert.Equal(t, 1, api.callCount())
}

func TestGateway_UpstreamErrorKeepsStatusAndBody(t *testing.T) {
	api := &fakeCalendar{}
	tokens := &fakeTokens{current: "valid"}
	gw, _ := newTestGateway(t, api, tokens)

	_, err := gw.GetEvent(context.Background(), "acme", "", "missing")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, apperr.HTTPStatus(err))
	assert.Equal(t, notFoundBody, apperr.Detail(err))
	assert.Zero(t, tokens.refreshCalls)
}

func TestGateway_ListEvents(t *testing.T) {
	t.Run("with time_min", func(t *testing.T) {
		api := &fakeCalendar{}
		gw, _ := newTestGateway(t, api, &fakeTokens{current: "valid"})

		events, err := gw.ListEvents(context.Background(), "acme", "", "2024-12-16 08:00")
		require.NoError(t, err)
		assert.Len(t, events.Items, 2)
		assert.Equal(t, "2024-12-16T08:00:00Z", api.listQuery.Get("timeMin"))
		assert.Equal(t, "true", api.listQuery.Get("singleEvents"))
		assert.Equal(t, "startTime", api.listQuery.Get("orderBy"))
		assert.Equal(t, []string{"GET /calendars/primary/events"}, api.calls)
	})

	t.Run("without time_min", func(t *testing.T) {
		api := &fakeCalendar{}
		gw, _ := newTestGateway(t, api, &fakeTokens{current: "valid"})

		_, err := gw.ListEvents(context.Background(), "acme", "team", "")
		require.NoError(t, err)
		assert.False(t, api.listQuery.Has("timeMin"))
		assert.False(t, api.listQuery.Has("orderBy"))
		assert.Equal(t, []string{"GET /calendars/team/events"}, api.calls)
	})

	t.Run("invalid time_min", func(t *testing.T) {
		api := &fakeCalendar{}
		gw, _ := newTestGateway(t, api, &fakeTokens{current: "valid"})

		_, err := gw.ListEvents(context.Background(), "acme", "", "16-12-2024")
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(err))
		assert.Zero(t, api.callCount())
	})
}

func TestGateway_UpdateEvent(t *testing.T) {
	api := &fakeCalendar{}
	gw, _ := newTestGateway(t, api, &fakeTokens{current: "valid"})

	updated, err := gw.UpdateEvent(context.Background(), "acme", "", "evt1", &calendar.Event{Summary: "Reprogramada"})
	require.NoError(t, err)
	assert.Equal(t, "evt1", updated.Id)
	assert.Equal(t, "Reprogramada", updated.Summary)
	require.NotNil(t, api.updated)
	assert.Equal(t, []string{"PUT /calendars/primary/events/evt1"}, api.calls)
}

func TestGateway_DeleteEvent(t *testing.T) {
	api := &fakeCalendar{}
	gw, _ := newTestGateway(t, api, &fakeTokens{current: "valid"})

	result, err := gw.DeleteEvent(context.Background(), "acme", "", "evt1")
	require.NoError(t, err)
	assert.Equal(t, Deleted, result)

	body, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"deleted"}`, string(body))
	assert.Equal(t, []string{"DELETE /calendars/primary/events/evt1"}, api.calls)
}

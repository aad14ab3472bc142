package availability

import (
	"context"
	"strings"
	"time"
	_ "time/tzdata" // DefaultTimeZone must load on hosts without zoneinfo

	"github.com/teemow/bookcal/internal/apperr"
	"github.com/teemow/bookcal/internal/appointments"
	"github.com/teemow/bookcal/internal/instrumentation"
	"github.com/teemow/bookcal/internal/logging"
	"github.com/teemow/bookcal/internal/store"
	"github.com/teemow/bookcal/internal/timewindow"
)

const (
	// DefaultTimeZone is used when a caller does not name a zone.
	DefaultTimeZone = "America/Guayaquil"

	// DefaultHorizonDays bounds the available-days scan.
	DefaultHorizonDays = 370

	dateLayout = "2006-01-02"
)

// Resolver resolves a company's identity and its scheduling configuration.
type Resolver interface {
	ResolveIdentity(ctx context.Context, company string) (*store.Identity, error)
	ResolveConfig(ctx context.Context, userID string) (*store.SchedulingConfig, error)
}

// AppointmentLister lists a user's appointments on a civil date in loc.
type AppointmentLister interface {
	ListAppointments(ctx context.Context, userID string, day time.Time, loc *time.Location) ([]store.Appointment, error)
}

// Slot is one bookable time on a day.
type Slot struct {
	ID         int    `json:"id"`
	Hora       string `json:"hora"`
	HoraFormat string `json:"horaFormat"`
}

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	// DefaultZone is used by AvailableDays when no zone is given.
	DefaultZone *time.Location

	// HorizonDays is the maximum number of calendar days AvailableDays examines.
	HorizonDays int

	// Now returns the current instant. Defaults to time.Now.
	Now func() time.Time

	Logger  logging.Logger
	Metrics *instrumentation.Metrics
}

// Engine answers availability queries.
type Engine struct {
	resolver     Resolver
	appointments AppointmentLister
	defaultZone  *time.Location
	horizonDays  int
	now          func() time.Time
	logger       logging.Logger
	metrics      *instrumentation.Metrics
}

// New creates an Engine.
func New(resolver Resolver, lister AppointmentLister, opts Options) *Engine {
	e := &Engine{
		resolver:     resolver,
		appointments: lister,
		defaultZone:  opts.DefaultZone,
		horizonDays:  opts.HorizonDays,
		now:          opts.Now,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
	}
	if e.defaultZone == nil {
		if loc, err := time.LoadLocation(DefaultTimeZone); err == nil {
			e.defaultZone = loc
		} else {
			e.defaultZone = time.UTC
		}
	}
	if e.horizonDays <= 0 {
		e.horizonDays = DefaultHorizonDays
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.logger == nil {
		e.logger = logging.DefaultLogger()
	}
	return e
}

// DefaultZone returns the zone used when a caller does not name one.
func (e *Engine) DefaultZone() *time.Location {
	return e.defaultZone
}

// EligibleHoursForWeekday returns the working ranges configured for weekday.
// A weekday absent from the configuration is closed even under global hours.
func (e *Engine) EligibleHoursForWeekday(weekday store.Weekday, cfg *store.SchedulingConfig) []timewindow.TimeRange {
	ranges, open := cfg.PerWeekdayHours[weekday]
	if !open {
		return nil
	}
	if cfg.UseGlobalHours {
		return timewindow.ParseRanges(e.logger, []string{cfg.GlobalStart + "-" + cfg.GlobalEnd})
	}
	return timewindow.ParseRanges(e.logger, ranges)
}

// ComputeAvailableSlots returns the open slots on the civil date of day.
// booked holds HH:MM:SS appointment starts in loc.
func (e *Engine) ComputeAvailableSlots(day time.Time, cfg *store.SchedulingConfig, booked []string, loc *time.Location) []Slot {
	y, m, d := day.Date()
	local := time.Date(y, m, d, 0, 0, 0, 0, loc)

	hours := e.EligibleHoursForWeekday(store.WeekdayOf(local), cfg)
	if len(hours) == 0 {
		return []Slot{}
	}

	blocked := timewindow.ParseRanges(e.logger, cfg.BlockedWindows)
	e.logger.Debug("computing slots",
		logging.KeyDate, local.Format(dateLayout),
		"hours", timewindow.JoinRanges(hours),
		"blocked", timewindow.JoinRanges(blocked))
	taken := make(map[string]struct{}, len(booked))
	for _, b := range booked {
		taken[b] = struct{}{}
	}

	slots := []Slot{}
	for _, candidate := range timewindow.GenerateSlots(hours, cfg.Session()) {
		if timewindow.IsBlocked(candidate, blocked) {
			continue
		}
		hora := candidate.String()
		if _, ok := taken[hora]; ok {
			continue
		}
		slots = append(slots, Slot{
			ID:         len(slots) + 1,
			Hora:       hora,
			HoraFormat: timewindow.FormatTwelveHour(hora),
		})
	}
	return slots
}

// AvailableDays returns up to lookaheadDays ISO dates, starting tomorrow in
// loc, that have at least one open slot. A nil loc uses the default zone.
func (e *Engine) AvailableDays(ctx context.Context, company string, loc *time.Location) (days []string, err error) {
	if loc == nil {
		loc = e.defaultZone
	}
	start := time.Now()
	ctx, span := instrumentation.StartSpan(ctx, "availability.days",
		instrumentation.NewSpanAttributeBuilder().WithCompany(company).WithTimeZone(loc.String()).Build()...)
	defer func() {
		instrumentation.SetSpanError(span, err)
		span.End()
		e.metrics.RecordAvailabilityQuery(ctx, instrumentation.QueryDays, company, statusOf(err), time.Since(start))
	}()

	identity, cfg, err := e.resolve(ctx, company)
	if err != nil {
		return nil, err
	}

	days = []string{}
	if cfg.LookaheadDays <= 0 {
		return days, nil
	}

	y, m, d := e.now().In(loc).Date()
	scanned := 0
	defer func() { e.metrics.RecordDaysScanned(ctx, scanned) }()

	for offset := 1; len(days) < cfg.LookaheadDays; offset++ {
		if offset > e.horizonDays {
			e.logger.Warn("available-days scan exhausted horizon",
				logging.KeyCompany, company,
				logging.KeyUserID, identity.UserID,
				"horizon_days", e.horizonDays,
				"found", len(days),
				"wanted", cfg.LookaheadDays)
			return nil, apperr.Configuration(
				"no more available days within %d days for company %q: found %d of %d",
				e.horizonDays, company, len(days), cfg.LookaheadDays)
		}
		scanned++

		day := time.Date(y, m, d+offset, 0, 0, 0, 0, loc)
		if len(e.EligibleHoursForWeekday(store.WeekdayOf(day), cfg)) == 0 {
			continue
		}

		slots, err := e.slotsOn(ctx, identity.UserID, day, cfg, loc)
		if err != nil {
			return nil, err
		}
		if len(slots) > 0 {
			days = append(days, day.Format(dateLayout))
		}
	}

	e.logger.Debug("available days computed",
		logging.KeyCompany, company,
		logging.KeyTimeZone, loc.String(),
		"days_scanned", scanned,
		"found", len(days))
	return days, nil
}

// AvailableHours returns the open slots on dateISO (YYYY-MM-DD) in zoneName.
func (e *Engine) AvailableHours(ctx context.Context, company, dateISO, zoneName string) (slots []Slot, err error) {
	start := time.Now()
	ctx, span := instrumentation.StartSpan(ctx, "availability.hours",
		instrumentation.NewSpanAttributeBuilder().WithCompany(company).WithTimeZone(zoneName).WithDate(dateISO).Build()...)
	defer func() {
		instrumentation.SetSpanError(span, err)
		span.End()
		e.metrics.RecordAvailabilityQuery(ctx, instrumentation.QueryHours, company, statusOf(err), time.Since(start))
	}()

	loc, err := ParseZone(zoneName)
	if err != nil {
		return nil, err
	}
	day, err := time.ParseInLocation(dateLayout, strings.TrimSpace(dateISO), loc)
	if err != nil {
		return nil, apperr.InvalidInput("invalid date_select %q, use YYYY-MM-DD", dateISO)
	}

	identity, cfg, err := e.resolve(ctx, company)
	if err != nil {
		return nil, err
	}
	return e.slotsOn(ctx, identity.UserID, day, cfg, loc)
}

// ParseZone loads an IANA zone. Failure is an InvalidInput error.
func ParseZone(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.InvalidInput("time_zone is required")
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, apperr.InvalidInput("invalid time zone: %s", name)
	}
	return loc, nil
}

func (e *Engine) resolve(ctx context.Context, company string) (*store.Identity, *store.SchedulingConfig, error) {
	identity, err := e.resolver.ResolveIdentity(ctx, company)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := e.resolver.ResolveConfig(ctx, identity.UserID)
	if err != nil {
		return nil, nil, err
	}
	if cfg.SessionMinutes <= 0 {
		return nil, nil, apperr.Configuration("session length for user %q must be positive, got %d", identity.UserID, cfg.SessionMinutes)
	}
	return identity, cfg, nil
}

func (e *Engine) slotsOn(ctx context.Context, userID string, day time.Time, cfg *store.SchedulingConfig, loc *time.Location) ([]Slot, error) {
	appts, err := e.appointments.ListAppointments(ctx, userID, day, loc)
	if err != nil {
		return nil, err
	}
	return e.ComputeAvailableSlots(day, cfg, appointments.BookedTimes(appts, loc), loc), nil
}

func statusOf(err error) string {
	if err != nil {
		return instrumentation.StatusError
	}
	return instrumentation.StatusSuccess
}

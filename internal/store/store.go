package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrSlotTaken is returned by Reserve when the (user, instant) pair is already reserved.
	ErrSlotTaken = errors.New("slot already reserved")
)

// IdentityStore holds company OAuth credentials.
type IdentityStore interface {
	// GetIdentity returns the credential record for a company or ErrNotFound.
	GetIdentity(ctx context.Context, company string) (*Identity, error)

	// SaveIdentity inserts or replaces a credential record.
	SaveIdentity(ctx context.Context, identity *Identity) error

	// UpdateAccessToken replaces the access token and expiry of an existing record.
	UpdateAccessToken(ctx context.Context, company, accessToken string, expiry time.Time) error
}

// ConfigStore holds per-user scheduling configuration.
type ConfigStore interface {
	// GetConfig returns the configuration for a user or ErrNotFound.
	GetConfig(ctx context.Context, userID string) (*SchedulingConfig, error)

	// SaveConfig inserts or replaces a configuration.
	SaveConfig(ctx context.Context, cfg *SchedulingConfig) error
}

// AppointmentStore holds booked appointments.
type AppointmentStore interface {
	// ListAppointments returns the user's appointments with from <= timestamp < to.
	ListAppointments(ctx context.Context, userID string, from, to time.Time) ([]Appointment, error)

	// InsertAppointment stores a new appointment and sets its ID.
	InsertAppointment(ctx context.Context, appt *Appointment) error
}

// ReservationStore provides a conditional insert keyed on (user, instant).
type ReservationStore interface {
	// Reserve claims the instant for the user or returns ErrSlotTaken.
	Reserve(ctx context.Context, userID string, at time.Time) error

	// Release drops a reservation. Releasing an unknown reservation is not an error.
	Release(ctx context.Context, userID string, at time.Time) error
}

// Store is the full document store used by the service.
type Store interface {
	IdentityStore
	ConfigStore
	AppointmentStore
	ReservationStore

	// Ping checks the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close()
}

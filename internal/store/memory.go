package store

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Memory is an in-process Store. It backs tests and local development.
type Memory struct {
	mu           sync.RWMutex
	identities   map[string]Identity
	configs      map[string]SchedulingConfig
	appointments []Appointment
	reservations map[string]struct{}
	nextID       int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		identities:   make(map[string]Identity),
		configs:      make(map[string]SchedulingConfig),
		reservations: make(map[string]struct{}),
	}
}

// GetIdentity implements IdentityStore.
func (m *Memory) GetIdentity(_ context.Context, company string) (*Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	identity, ok := m.identities[company]
	if !ok {
		return nil, ErrNotFound
	}
	return &identity, nil
}

// SaveIdentity implements IdentityStore.
func (m *Memory) SaveIdentity(_ context.Context, identity *Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[identity.CompanyName] = *identity
	return nil
}

// UpdateAccessToken implements IdentityStore.
func (m *Memory) UpdateAccessToken(_ context.Context, company, accessToken string, expiry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	identity, ok := m.identities[company]
	if !ok {
		return ErrNotFound
	}
	identity.AccessToken = accessToken
	identity.Expiry = expiry
	m.identities[company] = identity
	return nil
}

// GetConfig implements ConfigStore.
func (m *Memory) GetConfig(_ context.Context, userID string) (*SchedulingConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg, ok := m.configs[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &cfg, nil
}

// SaveConfig implements ConfigStore.
func (m *Memory) SaveConfig(_ context.Context, cfg *SchedulingConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[cfg.UserID] = *cfg
	return nil
}

// ListAppointments implements AppointmentStore.
// Records without a timestamp are returned as they are; callers filter them.
func (m *Memory) ListAppointments(_ context.Context, userID string, from, to time.Time) ([]Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Appointment
	for _, a := range m.appointments {
		if a.UserID != userID {
			continue
		}
		if a.Timestamp != nil && (a.Timestamp.Before(from) || !a.Timestamp.Before(to)) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// InsertAppointment implements AppointmentStore.
func (m *Memory) InsertAppointment(_ context.Context, appt *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	appt.ID = strconv.Itoa(m.nextID)
	m.appointments = append(m.appointments, *appt)
	return nil
}

// Reserve implements ReservationStore.
func (m *Memory) Reserve(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := reservationKey(userID, at)
	if _, taken := m.reservations[key]; taken {
		return ErrSlotTaken
	}
	m.reservations[key] = struct{}{}
	return nil
}

// Release implements ReservationStore.
func (m *Memory) Release(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reservations, reservationKey(userID, at))
	return nil
}

// Ping implements Store.
func (m *Memory) Ping(context.Context) error { return nil }

// Close implements Store.
func (m *Memory) Close() {}

func reservationKey(userID string, at time.Time) string {
	return userID + "|" + at.UTC().Format(time.RFC3339)
}

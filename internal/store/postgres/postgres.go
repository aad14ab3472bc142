// Package postgres stores bookcal documents as JSONB rows in PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teemow/bookcal/internal/logging"
	"github.com/teemow/bookcal/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS credentials (
	name_company TEXT PRIMARY KEY,
	doc          JSONB NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS configuracion_calendar (
	user_id    TEXT PRIMARY KEY,
	doc        JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS citas (
	id         BIGSERIAL PRIMARY KEY,
	user_id    TEXT NOT NULL,
	fecha      TIMESTAMPTZ,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS citas_user_fecha_idx ON citas (user_id, fecha);

CREATE TABLE IF NOT EXISTS reservas (
	user_id    TEXT NOT NULL,
	fecha      TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, fecha)
);
`

// Store implements store.Store on a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

// Open connects to databaseURL and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return &Store{pool: pool, logger: slog.Default()}, nil
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Ping implements store.Store.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return errors.New("database not configured")
	}
	return s.pool.Ping(ctx)
}

// Close implements store.Store.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// GetIdentity implements store.IdentityStore.
func (s *Store) GetIdentity(ctx context.Context, company string) (*store.Identity, error) {
	var identity store.Identity
	if err := s.getDoc(ctx, `SELECT doc FROM credentials WHERE name_company = $1`, company, &identity); err != nil {
		return nil, err
	}
	return &identity, nil
}

// SaveIdentity implements store.IdentityStore.
func (s *Store) SaveIdentity(ctx context.Context, identity *store.Identity) error {
	doc, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("failed to encode identity: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO credentials (name_company, doc)
		VALUES ($1, $2)
		ON CONFLICT (name_company) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()
	`, identity.CompanyName, doc)
	return err
}

// UpdateAccessToken implements store.IdentityStore.
func (s *Store) UpdateAccessToken(ctx context.Context, company, accessToken string, expiry time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE credentials
		SET doc = doc || jsonb_build_object('access_token', $2::text, 'expiry_time', $3::text),
			updated_at = now()
		WHERE name_company = $1
	`, company, accessToken, expiry.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetConfig implements store.ConfigStore.
func (s *Store) GetConfig(ctx context.Context, userID string) (*store.SchedulingConfig, error) {
	var cfg store.SchedulingConfig
	if err := s.getDoc(ctx, `SELECT doc FROM configuracion_calendar WHERE user_id = $1`, userID, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveConfig implements store.ConfigStore.
func (s *Store) SaveConfig(ctx context.Context, cfg *store.SchedulingConfig) error {
	doc, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO configuracion_calendar (user_id, doc)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()
	`, cfg.UserID, doc)
	return err
}

// ListAppointments implements store.AppointmentStore.
func (s *Store) ListAppointments(ctx context.Context, userID string, from, to time.Time) ([]store.Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, fecha, doc
		FROM citas
		WHERE user_id = $1 AND fecha >= $2 AND fecha < $3
		ORDER BY fecha
	`, userID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Appointment
	for rows.Next() {
		var (
			id    string
			fecha *time.Time
			doc   []byte
		)
		if err := rows.Scan(&id, &fecha, &doc); err != nil {
			return nil, err
		}
		if appt, ok := s.appointmentFromRow(id, fecha, doc); ok {
			out = append(out, appt)
		}
	}
	return out, rows.Err()
}

// InsertAppointment implements store.AppointmentStore.
func (s *Store) InsertAppointment(ctx context.Context, appt *store.Appointment) error {
	doc, err := json.Marshal(appt)
	if err != nil {
		return fmt.Errorf("failed to encode appointment: %w", err)
	}
	var fecha *time.Time
	if appt.Timestamp != nil {
		t := appt.Timestamp.UTC()
		fecha = &t
	}

	var id string
	err = s.pool.QueryRow(ctx, `
		INSERT INTO citas (user_id, fecha, doc)
		VALUES ($1, $2, $3)
		RETURNING id::text
	`, appt.UserID, fecha, doc).Scan(&id)
	if err != nil {
		return err
	}
	appt.ID = id
	return nil
}

// Reserve implements store.ReservationStore.
func (s *Store) Reserve(ctx context.Context, userID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO reservas (user_id, fecha)
		VALUES ($1, $2)
		ON CONFLICT (user_id, fecha) DO NOTHING
	`, userID, at.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrSlotTaken
	}
	return nil
}

// Release implements store.ReservationStore.
func (s *Store) Release(ctx context.Context, userID string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM reservas WHERE user_id = $1 AND fecha = $2`, userID, at.UTC())
	return err
}

func (s *Store) getDoc(ctx context.Context, query, key string, dst any) error {
	var doc []byte
	if err := s.pool.QueryRow(ctx, query, key).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	if err := json.Unmarshal(doc, dst); err != nil {
		return fmt.Errorf("failed to decode document %q: %w", key, err)
	}
	return nil
}

// appointmentFromRow decodes a citas row. The indexed fecha column is the
// timestamp of record. Undecodable documents are skipped.
func (s *Store) appointmentFromRow(id string, fecha *time.Time, doc []byte) (store.Appointment, bool) {
	appt, err := decodeAppointment(id, doc)
	if err != nil {
		s.logger.Warn("skipping malformed appointment", slog.String("appointment_id", id), logging.Err(err))
		return store.Appointment{}, false
	}
	if fecha != nil {
		t := fecha.UTC()
		appt.Timestamp = &t
	}
	return appt, true
}

func decodeAppointment(id string, doc []byte) (store.Appointment, error) {
	var appt store.Appointment
	if err := json.Unmarshal(doc, &appt); err != nil {
		return store.Appointment{}, fmt.Errorf("failed to decode appointment %s: %w", id, err)
	}
	appt.ID = id
	if appt.Timestamp != nil {
		t := appt.Timestamp.UTC()
		appt.Timestamp = &t
	}
	return appt, nil
}

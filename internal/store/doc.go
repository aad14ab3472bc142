// Package store defines the documents persisted by bookcal and the capability
// interfaces the rest of the service depends on.
//
// Three collections exist conceptually:
//
//	configuracion_calendar  SchedulingConfig, keyed by user_id
//	citas                   Appointment, auto id, range-queried by user_id + fecha
//	credentials             Identity, keyed by name_company
//
// A fourth collection, reservas, backs the optional reservation step that
// guarantees at most one booking per (user, instant).
//
// Memory is an in-process implementation; the postgres subpackage stores the
// same documents as JSONB.
package store

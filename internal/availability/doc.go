// Package availability computes bookable days and bookable time slots for a
// company from its scheduling configuration and existing appointments.
//
// Slot arithmetic is wall-clock time-of-day arithmetic in the caller's zone:
// a 09:00-11:00 range on a DST transition day still yields 09:00 and 10:00.
// A booked appointment suppresses only the slot whose HH:MM:SS start matches
// it exactly; overlapping slots of a different grid alignment stay open.
//
// The available-days scan starts tomorrow in the caller's zone, skips closed
// weekdays without consuming the lookahead budget, and gives up with a
// configuration error once HorizonDays calendar days have been examined.
package availability

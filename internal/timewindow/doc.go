// Package timewindow implements the time-of-day algebra used by the
// availability engine: parsing "HH:MM-HH:MM" ranges, generating fixed
// interval slot grids and testing slots against blocked windows.
//
// All arithmetic happens on wall-clock time of day (seconds since local
// midnight). Ranges carry no date and no zone; the caller decides which zone
// the wall clock belongs to.
package timewindow

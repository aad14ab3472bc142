// Package logging provides structured logging utilities for bookcal.
//
// Logging goes through the standard library's slog package. This package
// centralizes attribute names so that log lines emitted by the HTTP layer, the
// availability engine and the calendar gateway can be correlated:
//
//	logger := logging.WithOperation(slog.Default(), "availability.days")
//	logger.Info("scan finished",
//	    logging.Company(company),
//	    logging.Status(logging.StatusSuccess))
//
// Customer emails are hashed (UserHash) and tokens are never logged directly
// (SanitizeToken).
package logging

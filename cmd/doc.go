// Package cmd implements the command-line interface for bookcal.
//
// This package provides the following commands:
//   - serve: Start the HTTP API with health and metrics endpoints
//   - version: Display version information
package cmd

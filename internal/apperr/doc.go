// Package apperr defines the error taxonomy shared by the availability engine,
// the calendar gateway and the HTTP layer.
//
// Errors are classified by Kind and mapped to HTTP status codes in one place
// (HTTPStatus) so that handlers never decide status codes on their own:
//
//	NotFound      404  missing identity or configuration
//	InvalidInput  400  bad date, time or zone formats
//	Unauthorized  401  missing or unrefreshable token
//	Upstream      the provider's own status, body kept verbatim
//	Conflict      409  slot already reserved
//	Configuration 500  configuration that never yields availability
//	Unexpected    500  anything else
package apperr

package instrumentation

import "strings"

// ExtractUserDomain returns the domain part of an email address, or "unknown".
// Used instead of the full address wherever a label or log field must stay
// low-cardinality.
//
//	ExtractUserDomain("ana@example.com")  // "example.com"
//	ExtractUserDomain("invalid")          // "unknown"
func ExtractUserDomain(email string) string {
	_, domain, ok := strings.Cut(email, "@")
	if !ok || domain == "" || strings.Contains(domain, "@") {
		return "unknown"
	}
	return domain
}

// Operation types for Google API metrics and event audit records.
const (
	OperationList    = "list"
	OperationGet     = "get"
	OperationCreate  = "create"
	OperationUpdate  = "update"
	OperationPatch   = "patch"
	OperationDelete  = "delete"
	OperationRefresh = "refresh"
)

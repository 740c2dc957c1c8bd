package probe

import "fmt"

// User-facing check error messages. These appear verbatim in result details
// and notification emails, so treat them as part of the external contract.
const (
	msgUnexpected       = "An unexpected error occurred during monitoring"
	msgConnectionFailed = "Failed to establish connection"
	msgContentNotFound  = "Required content not found in response"
	msgSSLFailed        = "SSL/TLS verification failed"
	msgQueryConnection  = "Failed to execute query due to connection error"
	msgQueryFailed      = "Failed to execute query"
)

func msgTimeout(seconds int) string {
	return fmt.Sprintf("Request timed out after %d seconds", seconds)
}

func msgStatusMismatch(expected, actual int) string {
	return fmt.Sprintf("Expected status code %d, got %d", expected, actual)
}

func msgUnsupportedDB(dbType string) string {
	return fmt.Sprintf("Unsupported database type: %s", dbType)
}

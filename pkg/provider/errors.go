package provider

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

// ProviderAuthError means the provider kept rejecting the connection's credentials.
// It aborts the whole run for the connection.
type ProviderAuthError struct {
	ConnectionId int
	Err          error
}

func (e *ProviderAuthError) Error() string {
	return fmt.Sprintf("provider rejected credentials of connection %d: %v", e.ConnectionId, e.Err)
}

func (e *ProviderAuthError) Unwrap() error {
	return e.Err
}

// StatusError is a non-2xx provider response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider responded with status %d: %s", e.StatusCode, e.Body)
}

func statusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

func isUnauthorized(err error) bool {
	return statusCode(err) == http.StatusUnauthorized
}

// isGone reports a missing remote resource, which counts as success for deletes.
func isGone(err error) bool {
	code := statusCode(err)
	return code == http.StatusNotFound || code == http.StatusGone
}

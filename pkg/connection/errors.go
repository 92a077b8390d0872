package connection

import (
	"errors"
	"fmt"
)

var ErrConnectionNotFound = errors.New("connection not found")
var ErrStateNotFound = errors.New("authorization state not found")
var ErrUnknownProvider = errors.New("unknown provider")

// AuthExchangeError means the authorization code could not be turned into tokens.
type AuthExchangeError struct {
	Provider Provider
	Err      error
}

func (e *AuthExchangeError) Error() string {
	return fmt.Sprintf("%s authorization exchange failed: %v", e.Provider, e.Err)
}

func (e *AuthExchangeError) Unwrap() error {
	return e.Err
}

// ReauthorizationRequiredError means the refresh token was revoked and the user must connect again.
type ReauthorizationRequiredError struct {
	ConnectionId int
}

func (e *ReauthorizationRequiredError) Error() string {
	return fmt.Sprintf("connection %d requires re-authorization", e.ConnectionId)
}

package connection

import (
	"time"

	"golang.org/x/oauth2"
)

type Provider string

const (
	Google    Provider = "google"
	Microsoft Provider = "microsoft"
)

func ParseProvider(s string) (Provider, bool) {
	switch Provider(s) {
	case Google, Microsoft:
		return Provider(s), true
	}
	return "", false
}

type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// Connection is a user's authorized link to one external calendar provider.
// Inactive connections carry no tokens.
type Connection struct {
	Id             int
	UserId         int
	Provider       Provider
	ProviderUserId string
	AccessToken    string
	RefreshToken   string
	TokenExpiry    time.Time
	Status         Status
	// ReauthRequired is set once the provider rejected the refresh token.
	ReauthRequired bool
	LastSyncedAt   *time.Time
}

func (c Connection) IsActive() bool {
	return c.Status == StatusActive
}

func (c Connection) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		Expiry:       c.TokenExpiry,
		TokenType:    "Bearer",
	}
}

// AuthState is a pending authorization started by BuildAuthorizationURL.
type AuthState struct {
	State    string
	UserId   int
	Provider Provider
	FinalUrl string
}

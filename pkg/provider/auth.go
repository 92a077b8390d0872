package provider

import (
	"context"
	"errors"
	"net/http"

	"github.com/calshare/calshare/pkg/connection"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// TokenRefresher keeps a connection's access token usable.
type TokenRefresher interface {
	EnsureFreshToken(ctx context.Context, conn connection.Connection) (connection.Connection, error)
	ForceRefresh(ctx context.Context, conn connection.Connection) (connection.Connection, error)
}

// authenticatedRequest runs call with a fresh token. A 401 triggers one forced refresh and
// one retry; a second 401, or a 401 without a refresh token, becomes a ProviderAuthError.
func authenticatedRequest[T any](
	ctx context.Context,
	tokens TokenRefresher,
	base *http.Client,
	conn connection.Connection,
	call func(ctx context.Context, client *http.Client) (T, error),
) (T, error) {
	var zero T

	fresh, err := tokens.EnsureFreshToken(ctx, conn)
	if err != nil {
		return zero, err
	}

	result, err := call(ctx, authorizedClient(base, fresh))
	if !isUnauthorized(err) {
		return result, err
	}

	if fresh.RefreshToken == "" {
		return zero, &ProviderAuthError{ConnectionId: conn.Id, Err: err}
	}
	log.Debugf("provider returned 401 for connection %d, forcing token refresh", conn.Id)

	fresh, err = tokens.ForceRefresh(ctx, fresh)
	if err != nil {
		var reauthErr *connection.ReauthorizationRequiredError
		if errors.As(err, &reauthErr) {
			return zero, err
		}
		return zero, &ProviderAuthError{ConnectionId: conn.Id, Err: err}
	}

	result, err = call(ctx, authorizedClient(base, fresh))
	if isUnauthorized(err) {
		return zero, &ProviderAuthError{ConnectionId: conn.Id, Err: err}
	}
	return result, err
}

// authorizedClient attaches the connection's current access token without any refresh logic,
// so that refreshes always go through the TokenRefresher.
func authorizedClient(base *http.Client, conn connection.Connection) *http.Client {
	return &http.Client{
		Timeout: base.Timeout,
		Transport: &oauth2.Transport{
			Base:   base.Transport,
			Source: oauth2.StaticTokenSource(conn.Token()),
		},
	}
}

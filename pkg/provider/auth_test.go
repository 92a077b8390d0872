package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/calshare/calshare/internal/config"
	"github.com/calshare/calshare/internal/utils"
	"github.com/calshare/calshare/pkg/connection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type tokenRefresherStub struct {
	forced   atomic.Int32
	forceErr error
}

func (s *tokenRefresherStub) EnsureFreshToken(ctx context.Context, conn connection.Connection) (connection.Connection, error) {
	return conn, nil
}

func (s *tokenRefresherStub) ForceRefresh(ctx context.Context, conn connection.Connection) (connection.Connection, error) {
	s.forced.Add(1)
	if s.forceErr != nil {
		return conn, s.forceErr
	}
	conn.AccessToken = "refreshed"
	return conn, nil
}

func testWindow() Window {
	return NewWindow(config.Sync{LookBackDays: 30, LookAheadDays: 90}, utils.NewMockClock(now))
}

func testConnection() connection.Connection {
	return connection.Connection{Id: 7, UserId: 1, Provider: connection.Google, AccessToken: "stale", RefreshToken: "r", Status: connection.StatusActive}
}

// bearerServer answers 401 unless the request carries the expected access token.
func bearerServer(t *testing.T, token string) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server
}

func call(url string) func(ctx context.Context, client *http.Client) (int, error) {
	return func(ctx context.Context, client *http.Client) (int, error) {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		resp, err := client.Do(req)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return 0, &StatusError{StatusCode: resp.StatusCode}
		}
		return resp.StatusCode, nil
	}
}

func TestAuthenticatedRequest_RetriesOnceAfterRefresh(t *testing.T) {
	// given
	server := bearerServer(t, "refreshed")
	tokens := &tokenRefresherStub{}

	// when
	status, err := authenticatedRequest(context.Background(), tokens, server.Client(), testConnection(), call(server.URL))

	// then
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, int32(1), tokens.forced.Load())
}

func TestAuthenticatedRequest_SecondUnauthorizedIsAuthError(t *testing.T) {
	// given
	server := bearerServer(t, "never-issued")
	tokens := &tokenRefresherStub{}

	// when
	_, err := authenticatedRequest(context.Background(), tokens, server.Client(), testConnection(), call(server.URL))

	// then
	var authErr *ProviderAuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, 7, authErr.ConnectionId)
	assert.Equal(t, int32(1), tokens.forced.Load())
}

func TestAuthenticatedRequest_NoRefreshToken(t *testing.T) {
	// given
	server := bearerServer(t, "refreshed")
	tokens := &tokenRefresherStub{}
	conn := testConnection()
	conn.RefreshToken = ""

	// when
	_, err := authenticatedRequest(context.Background(), tokens, server.Client(), conn, call(server.URL))

	// then
	var authErr *ProviderAuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, int32(0), tokens.forced.Load())
}

func TestAuthenticatedRequest_RevokedDuringRefresh(t *testing.T) {
	// given
	server := bearerServer(t, "refreshed")
	tokens := &tokenRefresherStub{forceErr: &connection.ReauthorizationRequiredError{ConnectionId: 7}}

	// when
	_, err := authenticatedRequest(context.Background(), tokens, server.Client(), testConnection(), call(server.URL))

	// then
	var reauthErr *connection.ReauthorizationRequiredError
	assert.ErrorAs(t, err, &reauthErr)
	var authErr *ProviderAuthError
	assert.False(t, errors.As(err, &authErr))
}

func TestAuthenticatedRequest_OtherErrorsPassThrough(t *testing.T) {
	// given
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)
	tokens := &tokenRefresherStub{}

	// when
	_, err := authenticatedRequest(context.Background(), tokens, server.Client(), testConnection(), call(server.URL))

	// then
	assert.Equal(t, http.StatusInternalServerError, statusCode(err))
	assert.Equal(t, int32(0), tokens.forced.Load())
}

func TestWindow(t *testing.T) {
	w := testWindow()

	from, to := w.Range()

	assert.Equal(t, now.AddDate(0, 0, -30), from)
	assert.Equal(t, now.AddDate(0, 0, 90), to)
	assert.True(t, w.Contains(now, now.Add(time.Hour)))
	assert.True(t, w.Contains(from.Add(-time.Hour), from.Add(time.Minute)))
	assert.False(t, w.Contains(to, to.Add(time.Hour)))
	assert.False(t, w.Contains(from.Add(-2*time.Hour), from))
}

func TestNewWindow_CapsLookAhead(t *testing.T) {
	w := NewWindow(config.Sync{LookBackDays: 1, LookAheadDays: 5000}, utils.NewMockClock(now))

	assert.Equal(t, time.Duration(config.MaxLookAheadDays)*24*time.Hour, w.LookAhead)
}

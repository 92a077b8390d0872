package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/calshare/calshare/internal/config"
	"github.com/calshare/calshare/internal/utils"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
	gcal "google.golang.org/api/calendar/v3"
)

// RefreshMargin is how close to expiry a token is refreshed ahead of use.
const RefreshMargin = 60 * time.Second

const (
	googleProfileURL    = "https://www.googleapis.com/oauth2/v2/userinfo"
	microsoftProfileURL = "https://graph.microsoft.com/v1.0/me"
)

// OAuthProvider describes how to authorize against one provider.
type OAuthProvider struct {
	Config *oauth2.Config
	// ProfileURL returns a JSON document whose "id" field identifies the account.
	ProfileURL string
}

type TokenManager struct {
	repo       Repository
	providers  map[Provider]OAuthProvider
	clock      utils.Clock
	httpClient *http.Client
	locks      sync.Map
}

func NewTokenManager(repo Repository, providers map[Provider]OAuthProvider, clock utils.Clock) *TokenManager {
	return &TokenManager{
		repo:       repo,
		providers:  providers,
		clock:      clock,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// OAuthProviders builds the provider registry from the application config.
func OAuthProviders(cfg config.Application) map[Provider]OAuthProvider {
	return map[Provider]OAuthProvider{
		Google: {
			Config: &oauth2.Config{
				ClientID:     cfg.Google.ClientId,
				ClientSecret: cfg.Google.ClientSecret,
				Endpoint:     google.Endpoint,
				RedirectURL:  cfg.Host + "/api/integrations/google/auth/callback",
				Scopes:       []string{gcal.CalendarScope, "openid", "email"},
			},
			ProfileURL: googleProfileURL,
		},
		Microsoft: {
			Config: &oauth2.Config{
				ClientID:     cfg.Microsoft.ClientId,
				ClientSecret: cfg.Microsoft.ClientSecret,
				Endpoint:     microsoft.AzureADEndpoint(cfg.Microsoft.Tenant),
				RedirectURL:  cfg.Host + "/api/integrations/microsoft/auth/callback",
				Scopes:       []string{"offline_access", "User.Read", "Calendars.ReadWrite"},
			},
			ProfileURL: microsoftProfileURL,
		},
	}
}

// BuildAuthorizationURL starts the consent flow. The returned URL asks for offline access
// and forces the consent screen so that a refresh token is always issued.
func (tm *TokenManager) BuildAuthorizationURL(ctx context.Context, provider Provider, userId int, finalUrl string) (string, error) {
	p, ok := tm.providers[provider]
	if !ok {
		return "", ErrUnknownProvider
	}

	state := uuid.NewString()
	if err := tm.repo.StoreState(ctx, AuthState{State: state, UserId: userId, Provider: provider, FinalUrl: finalUrl}); err != nil {
		return "", err
	}

	log.Tracef("Redirecting user %d to %s consent with state %s", userId, provider, state)
	return p.Config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// CompleteAuthorization exchanges the code and stores an ACTIVE connection. An existing
// connection is left untouched when the exchange fails.
func (tm *TokenManager) CompleteAuthorization(ctx context.Context, provider Provider, code string, userId int) (Connection, error) {
	p, ok := tm.providers[provider]
	if !ok {
		return Connection{}, ErrUnknownProvider
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, tm.httpClient)
	token, err := p.Config.Exchange(ctx, code)
	if err != nil {
		log.Errorf("unable to exchange %s code for token: %v", provider, err)
		return Connection{}, &AuthExchangeError{Provider: provider, Err: err}
	}

	providerUserId, err := tm.fetchAccountId(ctx, p, token)
	if err != nil {
		log.Errorf("unable to identify %s account: %v", provider, err)
		return Connection{}, &AuthExchangeError{Provider: provider, Err: err}
	}

	conn, err := tm.repo.Upsert(ctx, Connection{
		UserId:         userId,
		Provider:       provider,
		ProviderUserId: providerUserId,
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
		TokenExpiry:    token.Expiry,
		Status:         StatusActive,
	})
	if err != nil {
		return Connection{}, err
	}
	log.Infof("User %d connected %s account %s (connection %d)", userId, provider, providerUserId, conn.Id)
	return conn, nil
}

// ConsumeState resolves the state returned to the OAuth callback.
func (tm *TokenManager) ConsumeState(ctx context.Context, state string) (AuthState, error) {
	return tm.repo.ConsumeState(ctx, state)
}

// EnsureFreshToken returns the connection with a token that stays valid for at least RefreshMargin.
// A connection without a refresh token is returned unchanged.
func (tm *TokenManager) EnsureFreshToken(ctx context.Context, conn Connection) (Connection, error) {
	if conn.ReauthRequired {
		return conn, &ReauthorizationRequiredError{ConnectionId: conn.Id}
	}
	if tm.isFresh(conn) {
		return conn, nil
	}
	if conn.RefreshToken == "" {
		log.Warnf("connection %d token expires at %s and has no refresh token", conn.Id, conn.TokenExpiry)
		return conn, nil
	}
	return tm.refresh(ctx, conn, false)
}

// ForceRefresh refreshes the access token regardless of its expiry.
func (tm *TokenManager) ForceRefresh(ctx context.Context, conn Connection) (Connection, error) {
	if conn.ReauthRequired {
		return conn, &ReauthorizationRequiredError{ConnectionId: conn.Id}
	}
	if conn.RefreshToken == "" {
		return conn, fmt.Errorf("connection %d has no refresh token", conn.Id)
	}
	return tm.refresh(ctx, conn, true)
}

func (tm *TokenManager) isFresh(conn Connection) bool {
	return conn.TokenExpiry.IsZero() || conn.TokenExpiry.After(tm.clock.Now().Add(RefreshMargin))
}

func (tm *TokenManager) refresh(ctx context.Context, conn Connection, force bool) (Connection, error) {
	p, ok := tm.providers[conn.Provider]
	if !ok {
		return conn, ErrUnknownProvider
	}

	lock := tm.lockFor(conn.Id)
	lock.Lock()
	defer lock.Unlock()

	// Another caller may have refreshed while we waited.
	if stored, err := tm.repo.GetById(ctx, conn.Id); err == nil {
		if !force && stored.AccessToken != conn.AccessToken && tm.isFresh(stored) {
			return stored, nil
		}
		if stored.ReauthRequired {
			return stored, &ReauthorizationRequiredError{ConnectionId: conn.Id}
		}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, tm.httpClient)
	expired := &oauth2.Token{RefreshToken: conn.RefreshToken, Expiry: tm.clock.Now().Add(-time.Hour)}
	token, err := p.Config.TokenSource(ctx, expired).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode == "invalid_grant" {
			log.Warnf("refresh token of connection %d was revoked", conn.Id)
			if markErr := tm.repo.MarkReauthRequired(ctx, conn.Id); markErr != nil {
				log.Errorf("failed to flag connection %d for re-authorization: %v", conn.Id, markErr)
			}
			return conn, &ReauthorizationRequiredError{ConnectionId: conn.Id}
		}
		err = fmt.Errorf("failed to refresh token of connection %d: %w", conn.Id, err)
		log.Error(err)
		return conn, err
	}

	conn.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		conn.RefreshToken = token.RefreshToken
	}
	conn.TokenExpiry = token.Expiry
	if err := tm.repo.UpdateTokens(ctx, conn.Id, conn.AccessToken, conn.RefreshToken, conn.TokenExpiry); err != nil {
		return conn, err
	}
	log.Debugf("Refreshed token of connection %d, valid until %s", conn.Id, conn.TokenExpiry)
	return conn, nil
}

func (tm *TokenManager) lockFor(connectionId int) *sync.Mutex {
	lock, _ := tm.locks.LoadOrStore(connectionId, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func (tm *TokenManager) fetchAccountId(ctx context.Context, p OAuthProvider, token *oauth2.Token) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.ProfileURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := p.Config.Client(ctx, token).Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("profile request returned status %d", resp.StatusCode)
	}

	var profile struct {
		Id string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return "", fmt.Errorf("unable to decode profile: %w", err)
	}
	if profile.Id == "" {
		return "", errors.New("profile has no id")
	}
	return profile.Id, nil
}

package connection

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/calshare/calshare/internal/rest"
	"github.com/calshare/calshare/pkg/user"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type authRedirect struct {
	RedirectUrl string `json:"redirectUrl"`
}

type AuthHandler struct {
	tokens *TokenManager
}

func NewAuthHandler(tokens *TokenManager) *AuthHandler {
	return &AuthHandler{tokens: tokens}
}

func (h *AuthHandler) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	provider, ok := ParseProvider(mux.Vars(r)["provider"])
	if !ok {
		rest.WriteError(w, http.StatusNotFound, "Unknown provider", mux.Vars(r)["provider"])
		return
	}
	userId, err := user.CurrentId(r.Context())
	if err != nil {
		rest.WriteError(w, http.StatusUnauthorized, "Unauthenticated", "")
		return
	}

	redirectUrl, err := h.tokens.BuildAuthorizationURL(r.Context(), provider, userId, r.URL.Query().Get("finalUrl"))
	if err != nil {
		log.Errorf("failed to start %s authorization for user %d: %v", provider, userId, err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to handle authentication", "")
		return
	}
	rest.WriteJSON(w, http.StatusOK, authRedirect{RedirectUrl: redirectUrl})
}

// OAuthCallback completes the flow and redirects the browser to the final URL captured at login.
func (h *AuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider, ok := ParseProvider(mux.Vars(r)["provider"])
	if !ok {
		rest.WriteError(w, http.StatusNotFound, "Unknown provider", mux.Vars(r)["provider"])
		return
	}

	state, err := h.tokens.ConsumeState(r.Context(), r.FormValue("state"))
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			rest.WriteError(w, http.StatusBadRequest, "Invalid authorization state", "")
			return
		}
		rest.WriteError(w, http.StatusInternalServerError, "Failed to handle authentication", "")
		return
	}
	if state.Provider != provider {
		rest.WriteError(w, http.StatusBadRequest, "Invalid authorization state", "provider mismatch")
		return
	}

	if providerErr := r.FormValue("error"); providerErr != "" {
		log.Warnf("%s authorization for user %d was declined: %s", provider, state.UserId, providerErr)
		http.Redirect(w, r, withSuccess(state.FinalUrl, false), http.StatusFound)
		return
	}

	_, err = h.tokens.CompleteAuthorization(r.Context(), provider, r.FormValue("code"), state.UserId)
	if err != nil {
		http.Redirect(w, r, withSuccess(state.FinalUrl, false), http.StatusFound)
		return
	}
	http.Redirect(w, r, withSuccess(state.FinalUrl, true), http.StatusFound)
}

func withSuccess(finalUrl string, success bool) string {
	u, err := url.Parse(finalUrl)
	if err != nil || finalUrl == "" {
		u = &url.URL{Path: "/"}
	}
	q := u.Query()
	if success {
		q.Set("success", "true")
	} else {
		q.Set("success", "false")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

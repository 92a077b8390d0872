package calendar_sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/calshare/calshare/pkg/connection"
	"github.com/calshare/calshare/pkg/provider"
	"github.com/calshare/calshare/pkg/user"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupHandlerTest(t *testing.T) (*syncFixture, http.Handler) {
	f := setupSyncTest(t)
	handler := NewHandler(f.orchestrator)
	r := mux.NewRouter()
	r.HandleFunc("/api/integrations/{provider}", handler.Disconnect).Methods("DELETE")
	r.HandleFunc("/api/integrations/{provider}/status", handler.Status).Methods("GET")
	r.HandleFunc("/api/integrations/{provider}/calendars", handler.ListCalendars).Methods("GET")
	r.HandleFunc("/api/integrations/{provider}/pairings", handler.AddPairing).Methods("POST")
	r.HandleFunc("/api/integrations/{provider}/pairings/{pairingId}", handler.RemovePairing).Methods("DELETE")
	r.HandleFunc("/api/integrations/{provider}/sync", handler.Sync).Methods("POST")

	withUser := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.ServeHTTP(w, req.WithContext(user.WithUser(req.Context(), user.User{Id: 1})))
	})
	return f, withUser
}

func serve(h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, reader))
	return w
}

func TestHandler_Status(t *testing.T) {
	_, h := setupHandlerTest(t)

	w := serve(h, http.MethodGet, "/api/integrations/google/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status StatusDTO
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.True(t, status.Connected)
	require.Len(t, status.Pairings, 1)
	assert.Equal(t, "primary", status.Pairings[0].ExternalCalendarId)

	w = serve(h, http.MethodGet, "/api/integrations/microsoft/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	status = StatusDTO{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.False(t, status.Connected)
	assert.Empty(t, status.Pairings)
}

func TestHandler_UnknownProvider(t *testing.T) {
	_, h := setupHandlerTest(t)

	w := serve(h, http.MethodGet, "/api/integrations/yahoo/status", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_ListCalendars(t *testing.T) {
	f, h := setupHandlerTest(t)
	f.google.SetCalendars(provider.CalendarInfo{Id: "primary", Name: "Anna", IsPrimary: true})

	w := serve(h, http.MethodGet, "/api/integrations/google/calendars", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var calendars []ProviderCalendarDTO
	require.NoError(t, json.NewDecoder(w.Body).Decode(&calendars))
	assert.Equal(t, []ProviderCalendarDTO{{Id: "primary", Name: "Anna", Primary: true}}, calendars)

	w = serve(h, http.MethodGet, "/api/integrations/microsoft/calendars", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_AddAndRemovePairing(t *testing.T) {
	// given
	f, h := setupHandlerTest(t)
	unidirectional := false

	// when
	w := serve(h, http.MethodPost, "/api/integrations/google/pairings", NewPairingDTO{
		ExternalCalendarId: "team",
		Name:               "Team",
		Bidirectional:      &unidirectional,
	})

	// then
	require.Equal(t, http.StatusCreated, w.Code)
	var created PairingDTO
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	assert.Equal(t, "Team", created.Name)
	assert.False(t, created.Bidirectional)

	w = serve(h, http.MethodPost, "/api/integrations/google/pairings", NewPairingDTO{ExternalCalendarId: "team"})
	assert.Equal(t, http.StatusConflict, w.Code)

	// when
	w = serve(h, http.MethodDelete, fmt.Sprintf("/api/integrations/google/pairings/%d", created.Id), nil)

	// then
	assert.Equal(t, http.StatusNoContent, w.Code)
	pairings, _ := f.pairings.ListByConnection(context.Background(), f.conn.Id)
	assert.Len(t, pairings, 1)

	w = serve(h, http.MethodDelete, fmt.Sprintf("/api/integrations/google/pairings/%d", created.Id), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_Sync(t *testing.T) {
	f, h := setupHandlerTest(t)
	f.google.Put("primary", standup())

	w := serve(h, http.MethodPost, "/api/integrations/google/sync", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var result map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.Equal(t, float64(1), result["pulledCreated"])
}

func TestHandler_SyncErrors(t *testing.T) {
	f, h := setupHandlerTest(t)
	require.NoError(t, f.connections.MarkReauthRequired(context.Background(), f.conn.Id))

	w := serve(h, http.MethodPost, "/api/integrations/google/sync", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	conn, _ := f.connections.GetById(context.Background(), f.conn.Id)
	conn.ReauthRequired = false
	f.connections.Put(conn)
	f.google.FetchErr = &provider.ProviderAuthError{ConnectionId: conn.Id}

	w = serve(h, http.MethodPost, "/api/integrations/google/sync", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestHandler_Disconnect(t *testing.T) {
	f, h := setupHandlerTest(t)

	w := serve(h, http.MethodDelete, "/api/integrations/google", nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	conn, _ := f.connections.GetById(context.Background(), f.conn.Id)
	assert.Equal(t, connection.StatusInactive, conn.Status)

	w = serve(h, http.MethodDelete, "/api/integrations/google", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

package calendar_sync

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/calshare/calshare/internal/rest"
	"github.com/calshare/calshare/pkg/connection"
	"github.com/calshare/calshare/pkg/provider"
	"github.com/calshare/calshare/pkg/user"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type PairingDTO struct {
	Id                 int        `json:"id"`
	LocalCalendarId    int        `json:"localCalendarId"`
	ExternalCalendarId string     `json:"externalCalendarId"`
	Name               string     `json:"name"`
	Bidirectional      bool       `json:"bidirectional"`
	LastSyncedAt       *time.Time `json:"lastSyncedAt,omitempty"`
}

type StatusDTO struct {
	Provider       string       `json:"provider"`
	Connected      bool         `json:"connected"`
	ReauthRequired bool         `json:"reauthRequired"`
	LastSyncedAt   *time.Time   `json:"lastSyncedAt,omitempty"`
	Pairings       []PairingDTO `json:"pairings"`
}

type ProviderCalendarDTO struct {
	Id      string `json:"id"`
	Name    string `json:"name"`
	Primary bool   `json:"primary"`
}

type NewPairingDTO struct {
	ExternalCalendarId string `json:"externalCalendarId"`
	Name               string `json:"name"`
	Bidirectional      *bool  `json:"bidirectional,omitempty"`
}

type Handler struct {
	orchestrator *Orchestrator
}

func NewHandler(orchestrator *Orchestrator) *Handler {
	return &Handler{orchestrator: orchestrator}
}

// request resolves the provider path variable and the current user. It writes the error
// response and returns false when either is missing.
func (h *Handler) request(w http.ResponseWriter, r *http.Request) (connection.Provider, int, bool) {
	p, ok := connection.ParseProvider(mux.Vars(r)["provider"])
	if !ok {
		rest.WriteError(w, http.StatusNotFound, "Unknown provider", mux.Vars(r)["provider"])
		return "", 0, false
	}
	userId, err := user.CurrentId(r.Context())
	if err != nil {
		rest.WriteError(w, http.StatusUnauthorized, "Unauthenticated", "")
		return "", 0, false
	}
	return p, userId, true
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	p, userId, ok := h.request(w, r)
	if !ok {
		return
	}
	status, err := h.orchestrator.Status(r.Context(), userId, p)
	if err != nil {
		writeSyncError(w, err)
		return
	}
	dto := StatusDTO{
		Provider:       string(status.Provider),
		Connected:      status.Connected,
		ReauthRequired: status.ReauthRequired,
		LastSyncedAt:   status.LastSyncedAt,
		Pairings:       make([]PairingDTO, 0, len(status.Pairings)),
	}
	for _, pairing := range status.Pairings {
		dto.Pairings = append(dto.Pairings, pairingToDTO(pairing))
	}
	rest.WriteJSON(w, http.StatusOK, dto)
}

func (h *Handler) ListCalendars(w http.ResponseWriter, r *http.Request) {
	p, userId, ok := h.request(w, r)
	if !ok {
		return
	}
	calendars, err := h.orchestrator.ListProviderCalendars(r.Context(), userId, p)
	if err != nil {
		writeSyncError(w, err)
		return
	}
	dtos := make([]ProviderCalendarDTO, 0, len(calendars))
	for _, c := range calendars {
		dtos = append(dtos, ProviderCalendarDTO{Id: c.Id, Name: c.Name, Primary: c.IsPrimary})
	}
	rest.WriteJSON(w, http.StatusOK, dtos)
}

func (h *Handler) AddPairing(w http.ResponseWriter, r *http.Request) {
	p, userId, ok := h.request(w, r)
	if !ok {
		return
	}
	var dto NewPairingDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	bidirectional := true
	if dto.Bidirectional != nil {
		bidirectional = *dto.Bidirectional
	}

	pairing, err := h.orchestrator.AddPairing(r.Context(), userId, p, NewPairing{
		ExternalCalendarId: dto.ExternalCalendarId,
		Name:               dto.Name,
		Bidirectional:      bidirectional,
	})
	if err != nil {
		writeSyncError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, pairingToDTO(pairing))
}

func (h *Handler) RemovePairing(w http.ResponseWriter, r *http.Request) {
	p, userId, ok := h.request(w, r)
	if !ok {
		return
	}
	pairingId, err := strconv.Atoi(mux.Vars(r)["pairingId"])
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid pairing id", "")
		return
	}
	if err := h.orchestrator.RemovePairing(r.Context(), userId, p, pairingId); err != nil {
		writeSyncError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	p, userId, ok := h.request(w, r)
	if !ok {
		return
	}
	if err := h.orchestrator.Disconnect(r.Context(), userId, p); err != nil {
		writeSyncError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	p, userId, ok := h.request(w, r)
	if !ok {
		return
	}
	result, err := h.orchestrator.ForceSync(r.Context(), userId, p)
	if err != nil {
		writeSyncError(w, err)
		return
	}
	if result.Skipped {
		writeSyncError(w, ErrSyncInProgress)
		return
	}
	rest.WriteJSON(w, http.StatusOK, result)
}

func pairingToDTO(p Pairing) PairingDTO {
	return PairingDTO{
		Id:                 p.Id,
		LocalCalendarId:    p.LocalCalendarId,
		ExternalCalendarId: p.ExternalCalendarId,
		Name:               p.ExternalName,
		Bidirectional:      p.Bidirectional,
		LastSyncedAt:       p.LastSyncedAt,
	}
}

func writeSyncError(w http.ResponseWriter, err error) {
	var reauthErr *connection.ReauthorizationRequiredError
	var authErr *provider.ProviderAuthError
	switch {
	case errors.Is(err, ErrNotConnected):
		rest.WriteError(w, http.StatusNotFound, "Provider is not connected", "")
	case errors.Is(err, ErrPairingNotFound):
		rest.WriteError(w, http.StatusNotFound, "Pairing not found", "")
	case errors.Is(err, ErrPairingExists):
		rest.WriteError(w, http.StatusConflict, "Calendar is already paired", "")
	case errors.Is(err, ErrSyncInProgress):
		rest.WriteError(w, http.StatusConflict, "Synchronization is in progress", "")
	case errors.Is(err, ErrInvalidPairing):
		rest.WriteError(w, http.StatusBadRequest, "Invalid pairing", err.Error())
	case errors.As(err, &reauthErr):
		rest.WriteError(w, http.StatusForbidden, "Provider requires re-authorization", "")
	case errors.As(err, &authErr):
		rest.WriteError(w, http.StatusBadGateway, "Provider rejected the credentials", "")
	default:
		log.Errorf("calendar sync request failed: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Internal server error", "")
	}
}

package calendar

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/calshare/calshare/internal/rest"
	"github.com/calshare/calshare/pkg/user"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	calendar *Service
}

type CalendarDTO struct {
	Id    int    `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type EventDTO struct {
	Id            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Location      string    `json:"location"`
	AllDay        bool      `json:"allDay"`
	StartDate     string    `json:"startDate"`
	StartTime     *string   `json:"startTime,omitempty"`
	EndDate       string    `json:"endDate"`
	EndTime       *string   `json:"endTime,omitempty"`
	Timezone      string    `json:"timezone"`
	Recurrence    string    `json:"recurrence,omitempty"`
	SeriesId      string    `json:"seriesId,omitempty"`
	OriginalStart string    `json:"originalStart,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func NewHandler(s *Service) *Handler {
	return &Handler{s}
}

func (h *Handler) CreateCalendar(w http.ResponseWriter, r *http.Request) {
	var dto CalendarDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if dto.Name == "" {
		rest.WriteError(w, http.StatusBadRequest, "Calendar name is required", "")
		return
	}

	cal, err := h.calendar.CreateCalendar(r.Context(), dto.Name, dto.Color)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, CalendarDTO{Id: cal.Id, Name: cal.Name, Color: cal.Color})
}

func (h *Handler) ListCalendars(w http.ResponseWriter, r *http.Request) {
	calendars, err := h.calendar.ListCalendars(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	dtos := make([]CalendarDTO, 0, len(calendars))
	for _, cal := range calendars {
		dtos = append(dtos, CalendarDTO{Id: cal.Id, Name: cal.Name, Color: cal.Color})
	}
	rest.WriteJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	calendarId, ok := calendarIdVar(w, r)
	if !ok {
		return
	}
	from, err := time.Parse(DateLayout, r.URL.Query().Get("from"))
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid from (date) format", "'from' must be in YYYY-MM-DD format")
		return
	}
	to, err := time.Parse(DateLayout, r.URL.Query().Get("to"))
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid to (date) format", "'to' must be in YYYY-MM-DD format")
		return
	}

	events, err := h.calendar.GetEvents(r.Context(), calendarId, from, to)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	dtos := make([]EventDTO, 0, len(events))
	for _, e := range events {
		dtos = append(dtos, eventToDTO(e))
	}
	rest.WriteJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	calendarId, ok := calendarIdVar(w, r)
	if !ok {
		return
	}
	var dto EventDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	event, err := h.withCurrentTimezone(r, dtoToEvent(dto))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	created, err := h.calendar.AddEvent(r.Context(), calendarId, event)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, eventToDTO(created))
}

func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	calendarId, ok := calendarIdVar(w, r)
	if !ok {
		return
	}
	eventId, err := uuid.Parse(mux.Vars(r)["eventUid"])
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid event id", err.Error())
		return
	}
	var dto EventDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	event, err := h.withCurrentTimezone(r, dtoToEvent(dto))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	event.Id = eventId

	updated, err := h.calendar.ModifyEvent(r.Context(), calendarId, event)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, eventToDTO(updated))
}

func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	calendarId, ok := calendarIdVar(w, r)
	if !ok {
		return
	}
	eventId, err := uuid.Parse(mux.Vars(r)["eventUid"])
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid event id", err.Error())
		return
	}
	if err := h.calendar.DeleteEvent(r.Context(), calendarId, eventId); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) withCurrentTimezone(r *http.Request, e Event) (Event, error) {
	if e.Timezone != "" {
		return e, nil
	}
	u, err := user.CurrentUser(r.Context())
	if err != nil {
		return Event{}, err
	}
	e.Timezone = u.Settings.Timezone
	return e, nil
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, user.ErrNoUser):
		rest.WriteError(w, http.StatusUnauthorized, "Unauthenticated", "")
	case errors.Is(err, ErrForbidden):
		rest.WriteError(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrCalendarNotFound), errors.Is(err, ErrEventNotFound):
		rest.WriteError(w, http.StatusNotFound, "Not found", err.Error())
	case errors.Is(err, ErrInvalidEvent):
		rest.WriteError(w, http.StatusBadRequest, "Invalid event", err.Error())
	default:
		log.Errorf("calendar request failed: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "Internal error", err.Error())
	}
}

func calendarIdVar(w http.ResponseWriter, r *http.Request) (int, bool) {
	calendarId, err := strconv.Atoi(mux.Vars(r)["calendarId"])
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid calendar id", err.Error())
		return 0, false
	}
	return calendarId, true
}

func eventToDTO(e Event) EventDTO {
	return EventDTO{
		Id:            e.Id.String(),
		Title:         e.Title,
		Description:   e.Description,
		Location:      e.Location,
		AllDay:        e.AllDay,
		StartDate:     e.StartDate,
		StartTime:     e.StartTime,
		EndDate:       e.EndDate,
		EndTime:       e.EndTime,
		Timezone:      e.Timezone,
		Recurrence:    e.Recurrence,
		SeriesId:      e.SeriesId,
		OriginalStart: e.OriginalStart,
		UpdatedAt:     e.UpdatedAt,
	}
}

func dtoToEvent(dto EventDTO) Event {
	return Event{
		Title:         dto.Title,
		Description:   dto.Description,
		Location:      dto.Location,
		AllDay:        dto.AllDay,
		StartDate:     dto.StartDate,
		StartTime:     dto.StartTime,
		EndDate:       dto.EndDate,
		EndTime:       dto.EndTime,
		Timezone:      dto.Timezone,
		Recurrence:    dto.Recurrence,
		SeriesId:      dto.SeriesId,
		OriginalStart: dto.OriginalStart,
	}
}

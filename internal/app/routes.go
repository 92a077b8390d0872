package app

import (
	"github.com/gorilla/mux"
)

// RegisterRoutes registers all API endpoints.
func RegisterRoutes(r *mux.Router, deps *Dependencies) {

	// Local calendars
	r.HandleFunc("/api/calendar", deps.CalendarHandler.ListCalendars).Methods("GET")
	r.HandleFunc("/api/calendar", deps.CalendarHandler.CreateCalendar).Methods("POST")
	r.HandleFunc("/api/calendar/{calendarId}/event", deps.CalendarHandler.GetEvents).Queries("from", "{from}", "to", "{to}").Methods("GET")
	r.HandleFunc("/api/calendar/{calendarId}/event", deps.CalendarHandler.CreateEvent).Methods("POST")
	r.HandleFunc("/api/calendar/{calendarId}/event/{eventUid}", deps.CalendarHandler.UpdateEvent).Methods("PUT")
	r.HandleFunc("/api/calendar/{calendarId}/event/{eventUid}", deps.CalendarHandler.DeleteEvent).Methods("DELETE")

	// Provider integrations
	r.HandleFunc("/api/integrations/{provider}/auth/login", deps.AuthHandler.OAuthLogin).Methods("GET")
	r.HandleFunc("/api/integrations/{provider}/auth/callback", deps.AuthHandler.OAuthCallback).Methods("GET")
	r.HandleFunc("/api/integrations/{provider}", deps.SyncHandler.Disconnect).Methods("DELETE")
	r.HandleFunc("/api/integrations/{provider}/status", deps.SyncHandler.Status).Methods("GET")
	r.HandleFunc("/api/integrations/{provider}/calendars", deps.SyncHandler.ListCalendars).Methods("GET")
	r.HandleFunc("/api/integrations/{provider}/pairings", deps.SyncHandler.AddPairing).Methods("POST")
	r.HandleFunc("/api/integrations/{provider}/pairings/{pairingId}", deps.SyncHandler.RemovePairing).Methods("DELETE")
	r.HandleFunc("/api/integrations/{provider}/sync", deps.SyncHandler.Sync).Methods("POST")
}

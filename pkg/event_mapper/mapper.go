package event_mapper

import (
	"errors"
	"fmt"
	"time"

	"github.com/calshare/calshare/pkg/calendar"
	"github.com/calshare/calshare/pkg/connection"
	"github.com/calshare/calshare/pkg/provider"
)

var ErrRecurrenceTemplate = errors.New("recurrence templates are not synced")
var ErrInsufficientData = errors.New("insufficient data to map event")

const graphWallClock = "2006-01-02T15:04:05"

// ToLocalEvent converts a provider event into a local event expressed in the user's timezone.
// The result has no id, calendar or owner; the caller assigns them.
func ToLocalEvent(p connection.Provider, remote provider.RemoteEvent, userTimezone string) (calendar.Event, error) {
	if remote.IsSeriesMaster {
		return calendar.Event{}, ErrRecurrenceTemplate
	}

	userLoc, ok := ResolveZone(userTimezone)
	if !ok {
		userLoc = time.UTC
	}

	event := calendar.Event{
		Title:         remote.Summary,
		Description:   remote.Description,
		Location:      remote.Location,
		Timezone:      userLoc.String(),
		SeriesId:      remote.SeriesMasterId,
		OriginalStart: remote.OriginalStart,
	}

	if remote.AllDay || remote.Start.Date != "" {
		start, end, err := allDayRange(remote)
		if err != nil {
			return calendar.Event{}, fmt.Errorf("%w: %s event %s: %v", ErrInsufficientData, p, remote.Id, err)
		}
		event.AllDay = true
		event.StartDate = start.Format(calendar.DateLayout)
		event.EndDate = end.Format(calendar.DateLayout)
		return event, nil
	}

	if remote.Start.DateTime == "" || remote.End.DateTime == "" {
		return calendar.Event{}, fmt.Errorf("%w: %s event %s has no start or end", ErrInsufficientData, p, remote.Id)
	}
	start, err := parseDateTime(remote.Start.DateTime, sourceLocation(remote.Start.TimeZone, remote.OriginalTimeZone))
	if err != nil {
		return calendar.Event{}, fmt.Errorf("%w: %s event %s: %v", ErrInsufficientData, p, remote.Id, err)
	}
	end, err := parseDateTime(remote.End.DateTime, sourceLocation(remote.End.TimeZone, remote.Start.TimeZone, remote.OriginalTimeZone))
	if err != nil {
		return calendar.Event{}, fmt.Errorf("%w: %s event %s: %v", ErrInsufficientData, p, remote.Id, err)
	}
	if end.Before(start) {
		end = start
	}

	start, end = start.In(userLoc), end.In(userLoc)
	event.StartDate = start.Format(calendar.DateLayout)
	event.StartTime = calendar.TimeOf(start)
	event.EndDate = end.Format(calendar.DateLayout)
	event.EndTime = calendar.TimeOf(end)
	return event, nil
}

// ToExternalPayload converts a local event into the provider's wire shape. It returns nil
// for recurrence templates and for events that lack the data to be expressed remotely.
func ToExternalPayload(p connection.Provider, event calendar.Event, userTimezone string) *provider.RemoteEvent {
	if event.IsRecurrenceTemplate() || event.StartDate == "" {
		return nil
	}

	zone := event.Timezone
	loc, ok := ResolveZone(zone)
	if !ok {
		zone = userTimezone
		if loc, ok = ResolveZone(zone); !ok {
			zone, loc = "UTC", time.UTC
		}
	}

	payload := &provider.RemoteEvent{
		Summary:        event.Title,
		Description:    event.Description,
		Location:       event.Location,
		AllDay:         event.AllDay,
		SeriesMasterId: event.SeriesId,
		OriginalStart:  event.OriginalStart,
	}

	if event.AllDay {
		start, err := time.Parse(calendar.DateLayout, event.StartDate)
		if err != nil {
			return nil
		}
		end := start
		if event.EndDate != "" {
			if end, err = time.Parse(calendar.DateLayout, event.EndDate); err != nil {
				return nil
			}
		}
		if end.Before(start) {
			end = start
		}
		exclusiveEnd := end.AddDate(0, 0, 1)
		if p == connection.Microsoft {
			windowsZone := graphZone(zone)
			payload.Start = provider.EventTime{DateTime: start.Format(graphWallClock), TimeZone: windowsZone}
			payload.End = provider.EventTime{DateTime: exclusiveEnd.Format(graphWallClock), TimeZone: windowsZone}
		} else {
			payload.Start = provider.EventTime{Date: start.Format(calendar.DateLayout)}
			payload.End = provider.EventTime{Date: exclusiveEnd.Format(calendar.DateLayout)}
		}
		return payload
	}

	if event.StartTime == nil || event.EndTime == nil {
		return nil
	}
	event.Timezone = zone
	start, end, err := event.Bounds()
	if err != nil {
		return nil
	}
	start, end = start.In(loc), end.In(loc)

	if p == connection.Microsoft {
		windowsZone := graphZone(zone)
		payload.Start = provider.EventTime{DateTime: start.Format(graphWallClock), TimeZone: windowsZone}
		payload.End = provider.EventTime{DateTime: end.Format(graphWallClock), TimeZone: windowsZone}
	} else {
		payload.Start = provider.EventTime{DateTime: start.Format(time.RFC3339), TimeZone: loc.String()}
		payload.End = provider.EventTime{DateTime: end.Format(time.RFC3339), TimeZone: loc.String()}
	}
	return payload
}

// allDayRange turns the provider's exclusive end date into an inclusive one, never before the start.
func allDayRange(remote provider.RemoteEvent) (time.Time, time.Time, error) {
	startDate := remote.Start.Date
	if startDate == "" && len(remote.Start.DateTime) >= len(calendar.DateLayout) {
		startDate = remote.Start.DateTime[:len(calendar.DateLayout)]
	}
	start, err := time.Parse(calendar.DateLayout, startDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad all-day start %q", startDate)
	}

	endDate := remote.End.Date
	if endDate == "" && len(remote.End.DateTime) >= len(calendar.DateLayout) {
		endDate = remote.End.DateTime[:len(calendar.DateLayout)]
	}
	if endDate == "" {
		return start, start, nil
	}
	end, err := time.Parse(calendar.DateLayout, endDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad all-day end %q", endDate)
	}
	end = end.AddDate(0, 0, -1)
	if end.Before(start) {
		end = start
	}
	return start, end, nil
}

// sourceLocation picks the first resolvable zone, falling back to UTC.
func sourceLocation(zones ...string) *time.Location {
	for _, z := range zones {
		if loc, ok := ResolveZone(z); ok {
			return loc
		}
	}
	return time.UTC
}

// parseDateTime accepts RFC 3339 timestamps and offset-less wall-clock values with optional
// fractional seconds, which are read in loc.
func parseDateTime(value string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	for _, layout := range []string{graphWallClock, "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date-time %q", value)
}

func graphZone(iana string) string {
	if windows, ok := IanaToWindows(iana); ok {
		return windows
	}
	return "UTC"
}

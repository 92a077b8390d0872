package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/calshare/calshare/pkg/connection"
	log "github.com/sirupsen/logrus"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	seriesIdProperty      = "calshareSeriesId"
	originalStartProperty = "calshareOriginalStart"
)

type GoogleAdapter struct {
	tokens   TokenRefresher
	window   Window
	client   *http.Client
	endpoint string
}

func NewGoogleAdapter(tokens TokenRefresher, window Window) *GoogleAdapter {
	return &GoogleAdapter{
		tokens: tokens,
		window: window,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithEndpoint points the adapter at a different API root.
func (a *GoogleAdapter) WithEndpoint(endpoint string) *GoogleAdapter {
	a.endpoint = endpoint
	return a
}

func (a *GoogleAdapter) service(ctx context.Context, client *http.Client) (*gcal.Service, error) {
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if a.endpoint != "" {
		opts = append(opts, option.WithEndpoint(a.endpoint))
	}
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Google Calendar client: %w", err)
	}
	return svc, nil
}

func (a *GoogleAdapter) FetchCalendarList(ctx context.Context, conn connection.Connection) []CalendarInfo {
	calendars, err := authenticatedRequest(ctx, a.tokens, a.client, conn, func(ctx context.Context, client *http.Client) ([]CalendarInfo, error) {
		svc, err := a.service(ctx, client)
		if err != nil {
			return nil, err
		}
		var result []CalendarInfo
		err = svc.CalendarList.List().Pages(ctx, func(page *gcal.CalendarList) error {
			for _, item := range page.Items {
				result = append(result, CalendarInfo{Id: item.Id, Name: item.Summary, IsPrimary: item.Primary})
			}
			return nil
		})
		return result, err
	})
	if err != nil {
		log.Errorf("unable to retrieve calendars of connection %d from Google Calendar: %v", conn.Id, err)
		return []CalendarInfo{}
	}
	return calendars
}

func (a *GoogleAdapter) FetchEventDelta(ctx context.Context, conn connection.Connection, calendarId, cursor string) (Delta, error) {
	return authenticatedRequest(ctx, a.tokens, a.client, conn, func(ctx context.Context, client *http.Client) (Delta, error) {
		svc, err := a.service(ctx, client)
		if err != nil {
			return Delta{}, err
		}
		if cursor != "" {
			delta, err := a.listEvents(ctx, svc, calendarId, cursor)
			if err == nil || !isExpiredSyncToken(err) {
				return delta, err
			}
			log.Infof("sync token of calendar %s expired, fetching the full window", calendarId)
		}
		return a.listEvents(ctx, svc, calendarId, "")
	})
}

func (a *GoogleAdapter) listEvents(ctx context.Context, svc *gcal.Service, calendarId, syncToken string) (Delta, error) {
	call := svc.Events.List(calendarId).SingleEvents(true).MaxResults(250)
	if syncToken != "" {
		call = call.SyncToken(syncToken)
	} else {
		from, to := a.window.Range()
		call = call.TimeMin(from.Format(time.RFC3339)).TimeMax(to.Format(time.RFC3339))
	}

	delta := Delta{Complete: syncToken == ""}
	err := call.Pages(ctx, func(page *gcal.Events) error {
		for _, item := range page.Items {
			if item.Status == "cancelled" {
				delta.DeletedIds = append(delta.DeletedIds, item.Id)
				continue
			}
			delta.Events = append(delta.Events, fromGoogleEvent(item))
		}
		if page.NextSyncToken != "" {
			delta.NextCursor = page.NextSyncToken
		}
		return nil
	})
	if err != nil {
		return Delta{}, err
	}
	return delta, nil
}

// isExpiredSyncToken matches the 410 Google returns for stale tokens and the 400 it returns
// for tokens it cannot parse.
func isExpiredSyncToken(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code == http.StatusGone {
		return true
	}
	return apiErr.Code == http.StatusBadRequest && strings.Contains(strings.ToLower(apiErr.Message), "sync")
}

func (a *GoogleAdapter) PushEvent(ctx context.Context, conn connection.Connection, calendarId string, op PushOp, externalId string, payload *RemoteEvent) (PushResult, error) {
	return authenticatedRequest(ctx, a.tokens, a.client, conn, func(ctx context.Context, client *http.Client) (PushResult, error) {
		svc, err := a.service(ctx, client)
		if err != nil {
			return PushResult{}, err
		}

		var stored *gcal.Event
		switch op {
		case OpCreate:
			stored, err = svc.Events.Insert(calendarId, toGoogleEvent(payload)).Context(ctx).Do()
		case OpUpdate:
			stored, err = svc.Events.Update(calendarId, externalId, toGoogleEvent(payload)).Context(ctx).Do()
		case OpDelete:
			err = svc.Events.Delete(calendarId, externalId).Context(ctx).Do()
			if err != nil && isGone(err) {
				log.Debugf("event %s already gone from Google calendar %s", externalId, calendarId)
				return PushResult{ExternalId: externalId}, nil
			}
			return PushResult{ExternalId: externalId}, err
		default:
			return PushResult{}, fmt.Errorf("unsupported push operation %q", op)
		}
		if err != nil {
			return PushResult{}, err
		}
		return PushResult{ExternalId: stored.Id, LastModified: parseTimestamp(stored.Updated)}, nil
	})
}

func fromGoogleEvent(item *gcal.Event) RemoteEvent {
	e := RemoteEvent{
		Id:             item.Id,
		Summary:        item.Summary,
		Description:    item.Description,
		Location:       item.Location,
		LastModified:   parseTimestamp(item.Updated),
		SeriesMasterId: item.RecurringEventId,
		IsSeriesMaster: len(item.Recurrence) > 0 && item.RecurringEventId == "",
	}
	if item.Start != nil {
		e.Start = EventTime{DateTime: item.Start.DateTime, TimeZone: item.Start.TimeZone, Date: item.Start.Date}
		e.AllDay = item.Start.Date != ""
	}
	if item.End != nil {
		e.End = EventTime{DateTime: item.End.DateTime, TimeZone: item.End.TimeZone, Date: item.End.Date}
	}
	if item.OriginalStartTime != nil {
		e.OriginalStart = item.OriginalStartTime.DateTime
		if e.OriginalStart == "" {
			e.OriginalStart = item.OriginalStartTime.Date
		}
		e.OriginalTimeZone = item.OriginalStartTime.TimeZone
	}
	return e
}

func toGoogleEvent(e *RemoteEvent) *gcal.Event {
	if e == nil {
		return &gcal.Event{}
	}
	ev := &gcal.Event{
		Summary:     e.Summary,
		Description: e.Description,
		Location:    e.Location,
		Start:       toGoogleTime(e.Start),
		End:         toGoogleTime(e.End),
	}
	if e.SeriesMasterId != "" {
		ev.ExtendedProperties = &gcal.EventExtendedProperties{
			Private: map[string]string{
				seriesIdProperty:      e.SeriesMasterId,
				originalStartProperty: e.OriginalStart,
			},
		}
	}
	return ev
}

func toGoogleTime(t EventTime) *gcal.EventDateTime {
	// The opposite form is sent as null so switching between all-day and timed replaces it.
	if t.Date != "" {
		return &gcal.EventDateTime{Date: t.Date, NullFields: []string{"DateTime", "TimeZone"}}
	}
	return &gcal.EventDateTime{DateTime: t.DateTime, TimeZone: t.TimeZone, NullFields: []string{"Date"}}
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		log.Debugf("unparseable provider timestamp %q", s)
		return time.Time{}
	}
	return t.UTC()
}

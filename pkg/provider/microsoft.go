package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/calshare/calshare/pkg/connection"
	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
)

const (
	graphBaseURL = "https://graph.microsoft.com/v1.0"
	// PS_PUBLIC_STRINGS property set, used for named extended properties.
	graphPropertySet = "{00020329-0000-0000-C000-000000000046}"
)

type graphDateTimeZone struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphLocation struct {
	DisplayName string `json:"displayName"`
}

type graphExtendedProperty struct {
	Id    string `json:"id"`
	Value string `json:"value"`
}

type graphEvent struct {
	Id                    string                  `json:"id,omitempty"`
	Subject               string                  `json:"subject"`
	Body                  *graphBody              `json:"body,omitempty"`
	Location              *graphLocation          `json:"location,omitempty"`
	Start                 *graphDateTimeZone      `json:"start,omitempty"`
	End                   *graphDateTimeZone      `json:"end,omitempty"`
	IsAllDay              bool                    `json:"isAllDay"`
	LastModifiedDateTime  string                  `json:"lastModifiedDateTime,omitempty"`
	SeriesMasterId        string                  `json:"seriesMasterId,omitempty"`
	Type                  string                  `json:"type,omitempty"`
	OriginalStart         string                  `json:"originalStart,omitempty"`
	OriginalStartTimeZone string                  `json:"originalStartTimeZone,omitempty"`
	ExtendedProperties    []graphExtendedProperty `json:"singleValueExtendedProperties,omitempty"`
	Removed               *struct {
		Reason string `json:"reason"`
	} `json:"@removed,omitempty"`
}

type graphCalendar struct {
	Id                string `json:"id"`
	Name              string `json:"name"`
	IsDefaultCalendar bool   `json:"isDefaultCalendar"`
}

type graphPage[T any] struct {
	Value     []T    `json:"value"`
	NextLink  string `json:"@odata.nextLink"`
	DeltaLink string `json:"@odata.deltaLink"`
}

// MicrosoftAdapter talks to the Microsoft Graph calendar API. Delta cursors are Graph delta links.
type MicrosoftAdapter struct {
	tokens  TokenRefresher
	window  Window
	client  *http.Client
	baseURL string
}

func NewMicrosoftAdapter(tokens TokenRefresher, window Window) *MicrosoftAdapter {
	return &MicrosoftAdapter{
		tokens:  tokens,
		window:  window,
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: graphBaseURL,
	}
}

func (a *MicrosoftAdapter) WithBaseURL(baseURL string) *MicrosoftAdapter {
	a.baseURL = strings.TrimSuffix(baseURL, "/")
	return a
}

func (a *MicrosoftAdapter) FetchCalendarList(ctx context.Context, conn connection.Connection) []CalendarInfo {
	calendars, err := authenticatedRequest(ctx, a.tokens, a.client, conn, func(ctx context.Context, client *http.Client) ([]CalendarInfo, error) {
		var result []CalendarInfo
		next := a.baseURL + "/me/calendars"
		for next != "" {
			var page graphPage[graphCalendar]
			if err := a.do(ctx, client, http.MethodGet, next, nil, &page); err != nil {
				return nil, err
			}
			for _, c := range page.Value {
				result = append(result, CalendarInfo{Id: c.Id, Name: c.Name, IsPrimary: c.IsDefaultCalendar})
			}
			next = page.NextLink
		}
		return result, nil
	})
	if err != nil {
		log.Errorf("unable to retrieve calendars of connection %d from Microsoft Graph: %v", conn.Id, err)
		return []CalendarInfo{}
	}
	return calendars
}

func (a *MicrosoftAdapter) FetchEventDelta(ctx context.Context, conn connection.Connection, calendarId, cursor string) (Delta, error) {
	return authenticatedRequest(ctx, a.tokens, a.client, conn, func(ctx context.Context, client *http.Client) (Delta, error) {
		if cursor != "" {
			delta, err := a.followDelta(ctx, client, cursor, false)
			if err == nil || !isExpiredDeltaLink(err) {
				return delta, err
			}
			log.Infof("delta link of calendar %s expired, fetching the full window", calendarId)
		}
		from, to := a.window.Range()
		q := url.Values{}
		q.Set("startDateTime", from.Format(time.RFC3339))
		q.Set("endDateTime", to.Format(time.RFC3339))
		start := fmt.Sprintf("%s/me/calendars/%s/calendarView/delta?%s", a.baseURL, url.PathEscape(calendarId), q.Encode())
		return a.followDelta(ctx, client, start, true)
	})
}

func (a *MicrosoftAdapter) followDelta(ctx context.Context, client *http.Client, link string, complete bool) (Delta, error) {
	delta := Delta{Complete: complete}
	for link != "" {
		var page graphPage[graphEvent]
		if err := a.do(ctx, client, http.MethodGet, link, nil, &page); err != nil {
			return Delta{}, err
		}
		for _, item := range page.Value {
			if item.Removed != nil {
				delta.DeletedIds = append(delta.DeletedIds, item.Id)
				continue
			}
			delta.Events = append(delta.Events, fromGraphEvent(item))
		}
		if page.DeltaLink != "" {
			delta.NextCursor = page.DeltaLink
		}
		link = page.NextLink
	}
	return delta, nil
}

// isExpiredDeltaLink matches Graph's syncStateNotFound and syncStateInvalid responses.
func isExpiredDeltaLink(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.StatusCode == http.StatusGone ||
		(statusErr.StatusCode == http.StatusBadRequest && strings.Contains(statusErr.Body, "syncState"))
}

func (a *MicrosoftAdapter) PushEvent(ctx context.Context, conn connection.Connection, calendarId string, op PushOp, externalId string, payload *RemoteEvent) (PushResult, error) {
	return authenticatedRequest(ctx, a.tokens, a.client, conn, func(ctx context.Context, client *http.Client) (PushResult, error) {
		var stored graphEvent
		var err error
		switch op {
		case OpCreate:
			err = a.do(ctx, client, http.MethodPost, fmt.Sprintf("%s/me/calendars/%s/events", a.baseURL, url.PathEscape(calendarId)), toGraphEvent(payload), &stored)
		case OpUpdate:
			err = a.do(ctx, client, http.MethodPatch, fmt.Sprintf("%s/me/events/%s", a.baseURL, url.PathEscape(externalId)), toGraphEvent(payload), &stored)
		case OpDelete:
			err = a.do(ctx, client, http.MethodDelete, fmt.Sprintf("%s/me/events/%s", a.baseURL, url.PathEscape(externalId)), nil, nil)
			if err != nil && isGone(err) {
				log.Debugf("event %s already gone from Graph calendar %s", externalId, calendarId)
				return PushResult{ExternalId: externalId}, nil
			}
			return PushResult{ExternalId: externalId}, err
		default:
			return PushResult{}, fmt.Errorf("unsupported push operation %q", op)
		}
		if err != nil {
			return PushResult{}, err
		}
		return PushResult{ExternalId: stored.Id, LastModified: parseTimestamp(stored.LastModifiedDateTime)}, nil
	})
}

func (a *MicrosoftAdapter) do(ctx context.Context, client *http.Client, method, link string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("unable to encode Graph request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, link, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Prefer", `odata.maxpagesize=100, outlook.timezone="UTC"`)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unable to decode Graph response: %w", err)
	}
	return nil
}

func fromGraphEvent(item graphEvent) RemoteEvent {
	e := RemoteEvent{
		Id:               item.Id,
		Summary:          item.Subject,
		AllDay:           item.IsAllDay,
		LastModified:     parseTimestamp(item.LastModifiedDateTime),
		SeriesMasterId:   item.SeriesMasterId,
		OriginalStart:    item.OriginalStart,
		OriginalTimeZone: item.OriginalStartTimeZone,
		IsSeriesMaster:   item.Type == "seriesMaster",
	}
	if item.Body != nil {
		e.Description = item.Body.Content
	}
	if item.Location != nil {
		e.Location = item.Location.DisplayName
	}
	e.Start = fromGraphTime(item.Start, item.IsAllDay)
	e.End = fromGraphTime(item.End, item.IsAllDay)
	return e
}

// fromGraphTime reports all-day values as plain dates, the same way Google does.
func fromGraphTime(t *graphDateTimeZone, allDay bool) EventTime {
	if t == nil {
		return EventTime{}
	}
	if allDay && len(t.DateTime) >= len("2006-01-02") {
		return EventTime{Date: t.DateTime[:len("2006-01-02")]}
	}
	return EventTime{DateTime: t.DateTime, TimeZone: t.TimeZone}
}

func toGraphEvent(e *RemoteEvent) graphEvent {
	if e == nil {
		return graphEvent{}
	}
	ev := graphEvent{
		Subject:  e.Summary,
		Body:     &graphBody{ContentType: "text", Content: e.Description},
		Location: &graphLocation{DisplayName: e.Location},
		Start:    toGraphTime(e.Start),
		End:      toGraphTime(e.End),
		IsAllDay: e.AllDay,
	}
	if e.SeriesMasterId != "" {
		ev.ExtendedProperties = []graphExtendedProperty{
			{Id: graphPropertyId(seriesIdProperty), Value: e.SeriesMasterId},
			{Id: graphPropertyId(originalStartProperty), Value: e.OriginalStart},
		}
	}
	return ev
}

func toGraphTime(t EventTime) *graphDateTimeZone {
	if t.Date != "" {
		return &graphDateTimeZone{DateTime: t.Date + "T00:00:00.0000000", TimeZone: "UTC"}
	}
	zone := t.TimeZone
	if zone == "" {
		zone = "UTC"
	}
	return &graphDateTimeZone{DateTime: t.DateTime, TimeZone: zone}
}

func graphPropertyId(name string) string {
	return fmt.Sprintf("String %s Name %s", graphPropertySet, name)
}

package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGraph struct {
	*httptest.Server
	requests []recordedRequest
}

func newFakeGraph(t *testing.T, handle func(w http.ResponseWriter, r *http.Request, base string)) *fakeGraph {
	f := &fakeGraph{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Query: map[string]string{}}
		for k := range r.URL.Query() {
			rec.Query[k] = r.URL.Query().Get(k)
		}
		if body, _ := io.ReadAll(r.Body); len(body) > 0 {
			_ = json.Unmarshal(body, &rec.Body)
		}
		f.requests = append(f.requests, rec)
		w.Header().Set("Content-Type", "application/json")
		handle(w, r, "http://"+r.Host)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeGraph) adapter(tokens TokenRefresher) *MicrosoftAdapter {
	return NewMicrosoftAdapter(tokens, testWindow()).WithBaseURL(f.URL)
}

func TestMicrosoftAdapter_FetchEventDelta_FullWindow(t *testing.T) {
	// given
	server := newFakeGraph(t, func(w http.ResponseWriter, r *http.Request, base string) {
		if r.URL.Query().Get("$skiptoken") == "" {
			_, _ = fmt.Fprintf(w, `{"value":[
				{"id":"m1","subject":"Planning","isAllDay":false,"type":"singleInstance",
				 "lastModifiedDateTime":"2024-06-01T10:00:00.1234567Z",
				 "body":{"contentType":"text","content":"agenda"},"location":{"displayName":"Room 1"},
				 "start":{"dateTime":"2024-06-03T07:00:00.0000000","timeZone":"UTC"},
				 "end":{"dateTime":"2024-06-03T08:00:00.0000000","timeZone":"UTC"}},
				{"id":"m2","@removed":{"reason":"deleted"}}
			],"@odata.nextLink":"%s/me/calendars/cal-1/calendarView/delta?$skiptoken=page2"}`, base)
			return
		}
		_, _ = fmt.Fprintf(w, `{"value":[
			{"id":"m3","subject":"Off","isAllDay":true,"lastModifiedDateTime":"2024-05-30T08:00:00Z",
			 "start":{"dateTime":"2024-06-04T00:00:00.0000000","timeZone":"UTC"},
			 "end":{"dateTime":"2024-06-05T00:00:00.0000000","timeZone":"UTC"}},
			{"id":"m4","subject":"Weekly","type":"occurrence","seriesMasterId":"series-1",
			 "originalStart":"2024-06-05T10:00:00Z","originalStartTimeZone":"W. Europe Standard Time",
			 "start":{"dateTime":"2024-06-05T10:00:00.0000000","timeZone":"UTC"},
			 "end":{"dateTime":"2024-06-05T11:00:00.0000000","timeZone":"UTC"}}
		],"@odata.deltaLink":"%s/me/calendars/cal-1/calendarView/delta?$deltatoken=d1"}`, base)
	})

	// when
	delta, err := server.adapter(&tokenRefresherStub{}).FetchEventDelta(context.Background(), testConnection(), "cal-1", "")

	// then
	require.NoError(t, err)
	assert.True(t, delta.Complete)
	assert.Equal(t, server.URL+"/me/calendars/cal-1/calendarView/delta?$deltatoken=d1", delta.NextCursor)
	assert.Equal(t, []string{"m2"}, delta.DeletedIds)
	require.Len(t, delta.Events, 3)

	assert.Equal(t, RemoteEvent{
		Id:           "m1",
		Summary:      "Planning",
		Description:  "agenda",
		Location:     "Room 1",
		Start:        EventTime{DateTime: "2024-06-03T07:00:00.0000000", TimeZone: "UTC"},
		End:          EventTime{DateTime: "2024-06-03T08:00:00.0000000", TimeZone: "UTC"},
		LastModified: time.Date(2024, 6, 1, 10, 0, 0, 123456700, time.UTC),
	}, delta.Events[0])
	assert.True(t, delta.Events[1].AllDay)
	assert.Equal(t, EventTime{Date: "2024-06-04"}, delta.Events[1].Start)
	assert.Equal(t, EventTime{Date: "2024-06-05"}, delta.Events[1].End)
	assert.Equal(t, "series-1", delta.Events[2].SeriesMasterId)
	assert.Equal(t, "W. Europe Standard Time", delta.Events[2].OriginalTimeZone)

	first := server.requests[0]
	assert.Equal(t, "/me/calendars/cal-1/calendarView/delta", first.Path)
	assert.Equal(t, "2024-05-02T12:00:00Z", first.Query["startDateTime"])
	assert.Equal(t, "2024-08-30T12:00:00Z", first.Query["endDateTime"])
}

func TestMicrosoftAdapter_FetchEventDelta_FollowsCursor(t *testing.T) {
	// given
	server := newFakeGraph(t, func(w http.ResponseWriter, r *http.Request, base string) {
		_, _ = fmt.Fprintf(w, `{"value":[{"id":"m1","@removed":{"reason":"deleted"}}],"@odata.deltaLink":"%s/next?$deltatoken=d2"}`, base)
	})

	// when
	delta, err := server.adapter(&tokenRefresherStub{}).FetchEventDelta(context.Background(), testConnection(), "cal-1", server.URL+"/next?$deltatoken=d1")

	// then
	require.NoError(t, err)
	assert.False(t, delta.Complete)
	assert.Equal(t, []string{"m1"}, delta.DeletedIds)
	assert.Equal(t, server.URL+"/next?$deltatoken=d2", delta.NextCursor)
	assert.Equal(t, "d1", server.requests[0].Query["$deltatoken"])
}

func TestMicrosoftAdapter_FetchEventDelta_ExpiredCursor(t *testing.T) {
	// given
	server := newFakeGraph(t, func(w http.ResponseWriter, r *http.Request, base string) {
		if r.URL.Path == "/stale" {
			w.WriteHeader(http.StatusGone)
			_, _ = w.Write([]byte(`{"error":{"code":"syncStateNotFound","message":"gone"}}`))
			return
		}
		_, _ = fmt.Fprintf(w, `{"value":[],"@odata.deltaLink":"%s/fresh"}`, base)
	})

	// when
	delta, err := server.adapter(&tokenRefresherStub{}).FetchEventDelta(context.Background(), testConnection(), "cal-1", server.URL+"/stale")

	// then
	require.NoError(t, err)
	assert.True(t, delta.Complete)
	assert.Equal(t, server.URL+"/fresh", delta.NextCursor)
	require.Len(t, server.requests, 2)
	assert.Equal(t, "/me/calendars/cal-1/calendarView/delta", server.requests[1].Path)
}

func TestMicrosoftAdapter_FetchEventDelta_PersistentUnauthorized(t *testing.T) {
	// given
	server := newFakeGraph(t, func(w http.ResponseWriter, r *http.Request, base string) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	tokens := &tokenRefresherStub{}

	// when
	_, err := server.adapter(tokens).FetchEventDelta(context.Background(), testConnection(), "cal-1", "")

	// then
	var authErr *ProviderAuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, int32(1), tokens.forced.Load())
	assert.Len(t, server.requests, 2)
}

func TestMicrosoftAdapter_FetchCalendarList(t *testing.T) {
	// given
	server := newFakeGraph(t, func(w http.ResponseWriter, r *http.Request, base string) {
		if r.URL.Query().Get("$skip") == "" {
			_, _ = fmt.Fprintf(w, `{"value":[{"id":"cal-1","name":"Calendar","isDefaultCalendar":true}],"@odata.nextLink":"%s/me/calendars?$skip=1"}`, base)
			return
		}
		_, _ = w.Write([]byte(`{"value":[{"id":"cal-2","name":"Birthdays"}]}`))
	})

	// when
	calendars := server.adapter(&tokenRefresherStub{}).FetchCalendarList(context.Background(), testConnection())

	// then
	assert.Equal(t, []CalendarInfo{
		{Id: "cal-1", Name: "Calendar", IsPrimary: true},
		{Id: "cal-2", Name: "Birthdays"},
	}, calendars)
}

func TestMicrosoftAdapter_PushEvent(t *testing.T) {
	// given
	server := newFakeGraph(t, func(w http.ResponseWriter, r *http.Request, base string) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"new-1","lastModifiedDateTime":"2024-06-01T12:00:01Z"}`))
		case http.MethodPatch:
			_, _ = w.Write([]byte(`{"id":"m1","lastModifiedDateTime":"2024-06-01T12:00:02Z"}`))
		case http.MethodDelete:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	adapter := server.adapter(&tokenRefresherStub{})
	payload := &RemoteEvent{
		Summary: "Off",
		AllDay:  true,
		Start:   EventTime{DateTime: "2024-06-04T00:00:00", TimeZone: "W. Europe Standard Time"},
		End:     EventTime{DateTime: "2024-06-05T00:00:00", TimeZone: "W. Europe Standard Time"},
	}

	// when
	created, createErr := adapter.PushEvent(context.Background(), testConnection(), "cal-1", OpCreate, "", payload)
	updated, updateErr := adapter.PushEvent(context.Background(), testConnection(), "cal-1", OpUpdate, "m1", payload)
	deleted, deleteErr := adapter.PushEvent(context.Background(), testConnection(), "cal-1", OpDelete, "gone", nil)

	// then
	require.NoError(t, createErr)
	require.NoError(t, updateErr)
	require.NoError(t, deleteErr)
	assert.Equal(t, PushResult{ExternalId: "new-1", LastModified: time.Date(2024, 6, 1, 12, 0, 1, 0, time.UTC)}, created)
	assert.Equal(t, "m1", updated.ExternalId)
	assert.Equal(t, "gone", deleted.ExternalId)

	require.Len(t, server.requests, 3)
	assert.Equal(t, http.MethodPost, server.requests[0].Method)
	assert.Equal(t, "/me/calendars/cal-1/events", server.requests[0].Path)
	assert.Equal(t, true, server.requests[0].Body["isAllDay"])
	assert.Equal(t, map[string]any{"dateTime": "2024-06-04T00:00:00", "timeZone": "W. Europe Standard Time"}, server.requests[0].Body["start"])
	assert.Equal(t, "/me/events/m1", server.requests[1].Path)
	assert.Equal(t, "/me/events/gone", server.requests[2].Path)
}

func TestMicrosoftAdapter_PushEvent_Rejected(t *testing.T) {
	server := newFakeGraph(t, func(w http.ResponseWriter, r *http.Request, base string) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"ErrorInvalidRequest"}}`))
	})

	_, err := server.adapter(&tokenRefresherStub{}).PushEvent(context.Background(), testConnection(), "cal-1", OpCreate, "", &RemoteEvent{Summary: "x"})

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "ErrorInvalidRequest")
}

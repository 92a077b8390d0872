package provider

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"

	"github.com/calshare/calshare/internal/utils"
	"github.com/calshare/calshare/pkg/connection"
)

// AdapterStub is an in-memory provider. Cursors are change-log versions; an unknown or
// empty cursor yields a complete listing.
type AdapterStub struct {
	mu        sync.Mutex
	clock     utils.Clock
	calendars []CalendarInfo
	events    map[string]map[string]RemoteEvent
	changed   map[string]map[string]int
	deleted   map[string]map[string]int
	version   int
	nextId    int

	calls     []string
	FetchErr  error
	PushErr   error
	fetchGate chan struct{}
	entered   chan struct{}
}

func NewAdapterStub(clock utils.Clock) *AdapterStub {
	return &AdapterStub{
		clock:   clock,
		events:  make(map[string]map[string]RemoteEvent),
		changed: make(map[string]map[string]int),
		deleted: make(map[string]map[string]int),
	}
}

func (s *AdapterStub) SetCalendars(calendars ...CalendarInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calendars = calendars
}

// Put stores an event as if it was changed on the provider side.
func (s *AdapterStub) Put(calendarId string, e RemoteEvent) RemoteEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(calendarId, e)
}

// Remove deletes an event as if it was deleted on the provider side.
func (s *AdapterStub) Remove(calendarId, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(calendarId, id)
}

func (s *AdapterStub) Event(calendarId, id string) (RemoteEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[calendarId][id]
	return e, ok
}

func (s *AdapterStub) Events(calendarId string) []RemoteEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedEvents(calendarId)
}

// Calls lists the operations the stub served, like "fetch:primary" or "push:update:primary".
func (s *AdapterStub) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// BlockFetch makes FetchEventDelta wait until release is called. entered is closed once a
// fetch is waiting.
func (s *AdapterStub) BlockFetch() (entered <-chan struct{}, release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchGate = make(chan struct{})
	s.entered = make(chan struct{})
	gate := s.fetchGate
	return s.entered, func() { close(gate) }
}

func (s *AdapterStub) FetchCalendarList(ctx context.Context, conn connection.Connection) []CalendarInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "calendars")
	return append([]CalendarInfo{}, s.calendars...)
}

func (s *AdapterStub) FetchEventDelta(ctx context.Context, conn connection.Connection, calendarId, cursor string) (Delta, error) {
	s.mu.Lock()
	s.calls = append(s.calls, "fetch:"+calendarId)
	gate, entered := s.fetchGate, s.entered
	s.fetchGate, s.entered = nil, nil
	s.mu.Unlock()

	if gate != nil {
		close(entered)
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FetchErr != nil {
		return Delta{}, s.FetchErr
	}

	since, err := strconv.Atoi(cursor)
	if err != nil || since > s.version {
		return Delta{Events: s.sortedEvents(calendarId), Complete: true, NextCursor: strconv.Itoa(s.version)}, nil
	}

	delta := Delta{NextCursor: strconv.Itoa(s.version)}
	for _, e := range s.sortedEvents(calendarId) {
		if s.changed[calendarId][e.Id] > since {
			delta.Events = append(delta.Events, e)
		}
	}
	for id, v := range s.deleted[calendarId] {
		if v > since {
			delta.DeletedIds = append(delta.DeletedIds, id)
		}
	}
	sort.Strings(delta.DeletedIds)
	return delta, nil
}

func (s *AdapterStub) PushEvent(ctx context.Context, conn connection.Connection, calendarId string, op PushOp, externalId string, payload *RemoteEvent) (PushResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, fmt.Sprintf("push:%s:%s", op, calendarId))
	if s.PushErr != nil {
		return PushResult{}, s.PushErr
	}

	switch op {
	case OpCreate:
		s.nextId++
		e := *payload
		e.Id = fmt.Sprintf("stub-%d", s.nextId)
		e.LastModified = s.clock.Now()
		stored := s.put(calendarId, e)
		return PushResult{ExternalId: stored.Id, LastModified: stored.LastModified}, nil
	case OpUpdate:
		if _, ok := s.events[calendarId][externalId]; !ok {
			return PushResult{}, &StatusError{StatusCode: http.StatusNotFound, Body: externalId}
		}
		e := *payload
		e.Id = externalId
		e.LastModified = s.clock.Now()
		stored := s.put(calendarId, e)
		return PushResult{ExternalId: stored.Id, LastModified: stored.LastModified}, nil
	case OpDelete:
		s.remove(calendarId, externalId)
		return PushResult{ExternalId: externalId}, nil
	}
	return PushResult{}, fmt.Errorf("unsupported push operation %q", op)
}

func (s *AdapterStub) put(calendarId string, e RemoteEvent) RemoteEvent {
	if e.Id == "" {
		s.nextId++
		e.Id = fmt.Sprintf("stub-%d", s.nextId)
	}
	if e.LastModified.IsZero() {
		e.LastModified = s.clock.Now()
	}
	if s.events[calendarId] == nil {
		s.events[calendarId] = make(map[string]RemoteEvent)
		s.changed[calendarId] = make(map[string]int)
		s.deleted[calendarId] = make(map[string]int)
	}
	s.version++
	s.events[calendarId][e.Id] = e
	s.changed[calendarId][e.Id] = s.version
	delete(s.deleted[calendarId], e.Id)
	return e
}

func (s *AdapterStub) remove(calendarId, id string) {
	if _, ok := s.events[calendarId][id]; !ok {
		return
	}
	s.version++
	delete(s.events[calendarId], id)
	delete(s.changed[calendarId], id)
	s.deleted[calendarId][id] = s.version
}

func (s *AdapterStub) sortedEvents(calendarId string) []RemoteEvent {
	result := make([]RemoteEvent, 0, len(s.events[calendarId]))
	for _, e := range s.events[calendarId] {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Id < result[j].Id })
	return result
}

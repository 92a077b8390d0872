package calendar_sync

import (
	"context"
	"sort"
	"sync"
	"time"
)

type PairingRepositoryStub struct {
	mu       sync.RWMutex
	pairings map[int]Pairing
	nextId   int
}

func NewPairingRepositoryStub() *PairingRepositoryStub {
	return &PairingRepositoryStub{pairings: make(map[int]Pairing)}
}

func (r *PairingRepositoryStub) Get(ctx context.Context, id int) (Pairing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pairings[id]
	if !ok {
		return Pairing{}, ErrPairingNotFound
	}
	return p, nil
}

func (r *PairingRepositoryStub) ListByConnection(ctx context.Context, connectionId int) ([]Pairing, error) {
	return r.filter(func(p Pairing) bool { return p.ConnectionId == connectionId }), nil
}

func (r *PairingRepositoryStub) ListByLocalCalendar(ctx context.Context, calendarId int) ([]Pairing, error) {
	return r.filter(func(p Pairing) bool { return p.LocalCalendarId == calendarId }), nil
}

func (r *PairingRepositoryStub) filter(match func(p Pairing) bool) []Pairing {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Pairing, 0)
	for _, p := range r.pairings {
		if match(p) {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Id < result[j].Id })
	return result
}

func (r *PairingRepositoryStub) Create(ctx context.Context, p Pairing) (Pairing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.pairings {
		if existing.ConnectionId == p.ConnectionId && existing.ExternalCalendarId == p.ExternalCalendarId {
			return Pairing{}, ErrPairingExists
		}
	}
	r.nextId++
	p.Id = r.nextId
	r.pairings[p.Id] = p
	return p, nil
}

func (r *PairingRepositoryStub) UpdateCursor(ctx context.Context, id int, cursor string) error {
	return r.update(id, func(p *Pairing) { p.Cursor = cursor })
}

func (r *PairingRepositoryStub) UpdateLastSync(ctx context.Context, id int, at time.Time) error {
	return r.update(id, func(p *Pairing) { p.LastSyncedAt = &at })
}

func (r *PairingRepositoryStub) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pairings[id]; !ok {
		return ErrPairingNotFound
	}
	delete(r.pairings, id)
	return nil
}

func (r *PairingRepositoryStub) update(id int, fn func(p *Pairing)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pairings[id]
	if !ok {
		return ErrPairingNotFound
	}
	fn(&p)
	r.pairings[id] = p
	return nil
}

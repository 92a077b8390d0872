package correlation

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type RepositoryStub struct {
	mu           sync.Mutex
	correlations map[int]Correlation
	nextId       int
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{correlations: make(map[int]Correlation)}
}

func (r *RepositoryStub) ListByPairing(ctx context.Context, pairingId int) ([]Correlation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]Correlation, 0)
	for _, c := range r.correlations {
		if c.PairingId == pairingId {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Id < result[j].Id })
	return result, nil
}

func (r *RepositoryStub) FindByExternalId(ctx context.Context, pairingId int, externalEventId string) (Correlation, error) {
	return r.find(func(c Correlation) bool {
		return c.PairingId == pairingId && c.ExternalEventId == externalEventId
	})
}

func (r *RepositoryStub) FindByLocalId(ctx context.Context, pairingId int, localEventId uuid.UUID) (Correlation, error) {
	return r.find(func(c Correlation) bool {
		return c.PairingId == pairingId && c.LocalEventId == localEventId
	})
}

func (r *RepositoryStub) find(match func(c Correlation) bool) (Correlation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.correlations {
		if match(c) {
			return c, nil
		}
	}
	return Correlation{}, ErrCorrelationNotFound
}

func (r *RepositoryStub) Create(ctx context.Context, c Correlation) (Correlation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.correlations {
		if existing.PairingId == c.PairingId &&
			(existing.LocalEventId == c.LocalEventId || existing.ExternalEventId == c.ExternalEventId) {
			return Correlation{}, ErrDuplicateCorrelation
		}
	}
	r.nextId++
	c.Id = r.nextId
	r.correlations[c.Id] = c
	return c, nil
}

func (r *RepositoryStub) Update(ctx context.Context, c Correlation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.correlations[c.Id]; !ok {
		return ErrCorrelationNotFound
	}
	r.correlations[c.Id] = c
	return nil
}

func (r *RepositoryStub) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.correlations, id)
	return nil
}

func (r *RepositoryStub) DeleteByPairing(ctx context.Context, pairingId int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.correlations {
		if c.PairingId == pairingId {
			delete(r.correlations, id)
		}
	}
	return nil
}

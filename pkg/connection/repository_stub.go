package connection

import (
	"context"
	"sort"
	"sync"
	"time"
)

type RepositoryStub struct {
	mu          sync.RWMutex
	connections map[int]Connection
	states      map[string]AuthState
	nextId      int
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{
		connections: make(map[int]Connection),
		states:      make(map[string]AuthState),
	}
}

func (r *RepositoryStub) GetById(ctx context.Context, id int) (Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[id]
	if !ok {
		return Connection{}, ErrConnectionNotFound
	}
	return conn, nil
}

func (r *RepositoryStub) FindByUserAndProvider(ctx context.Context, userId int, provider Provider) (Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, conn := range r.connections {
		if conn.UserId == userId && conn.Provider == provider {
			return conn, nil
		}
	}
	return Connection{}, ErrConnectionNotFound
}

func (r *RepositoryStub) ListActive(ctx context.Context) ([]Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Connection, 0)
	for _, conn := range r.connections {
		if conn.IsActive() {
			result = append(result, conn)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Id < result[j].Id })
	return result, nil
}

func (r *RepositoryStub) Upsert(ctx context.Context, conn Connection) (Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, existing := range r.connections {
		if existing.UserId == conn.UserId && existing.Provider == conn.Provider {
			conn.Id = id
			conn.LastSyncedAt = existing.LastSyncedAt
			if conn.RefreshToken == "" {
				conn.RefreshToken = existing.RefreshToken
			}
		}
	}
	if conn.Id == 0 {
		r.nextId++
		conn.Id = r.nextId
	}
	conn.Status = StatusActive
	conn.ReauthRequired = false
	r.connections[conn.Id] = conn
	return conn, nil
}

// Put stores the connection as given, for test setup.
func (r *RepositoryStub) Put(conn Connection) Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn.Id == 0 {
		r.nextId++
		conn.Id = r.nextId
	} else if conn.Id > r.nextId {
		r.nextId = conn.Id
	}
	r.connections[conn.Id] = conn
	return conn
}

func (r *RepositoryStub) UpdateTokens(ctx context.Context, id int, accessToken, refreshToken string, expiry time.Time) error {
	return r.update(id, func(c *Connection) {
		c.AccessToken = accessToken
		if refreshToken != "" {
			c.RefreshToken = refreshToken
		}
		c.TokenExpiry = expiry
	})
}

func (r *RepositoryStub) MarkReauthRequired(ctx context.Context, id int) error {
	return r.update(id, func(c *Connection) { c.ReauthRequired = true })
}

func (r *RepositoryStub) Deactivate(ctx context.Context, id int) error {
	return r.update(id, func(c *Connection) {
		c.Status = StatusInactive
		c.AccessToken = ""
		c.RefreshToken = ""
		c.TokenExpiry = time.Time{}
	})
}

func (r *RepositoryStub) UpdateLastSync(ctx context.Context, id int, at time.Time) error {
	return r.update(id, func(c *Connection) { c.LastSyncedAt = &at })
}

func (r *RepositoryStub) StoreState(ctx context.Context, state AuthState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state.State] = state
	return nil
}

func (r *RepositoryStub) ConsumeState(ctx context.Context, state string) (AuthState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[state]
	if !ok {
		return AuthState{}, ErrStateNotFound
	}
	delete(r.states, state)
	return s, nil
}

func (r *RepositoryStub) update(id int, fn func(c *Connection)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.connections[id]
	if !ok {
		return ErrConnectionNotFound
	}
	fn(&conn)
	r.connections[id] = conn
	return nil
}

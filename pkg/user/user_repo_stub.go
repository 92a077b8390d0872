package user

import (
	"context"
	"sync"
)

type RepoStub struct {
	mu     sync.RWMutex
	nextId int
	data   map[int]User
}

func NewRepoStub() *RepoStub {
	return &RepoStub{nextId: 0, data: map[int]User{}}
}

func (s *RepoStub) CreateUser(ctx context.Context, user User) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.Id == 0 {
		s.nextId++
		user.Id = s.nextId
	}
	s.data[user.Id] = user
	return user.Id, nil
}

func (s *RepoStub) GetUser(ctx context.Context, id int) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.data[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (s *RepoStub) GetUserByUid(ctx context.Context, uid string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.data {
		if user.Uid == uid {
			return user, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (s *RepoStub) FindUserTimezone(ctx context.Context, userId int) (string, error) {
	user, err := s.GetUser(ctx, userId)
	if err != nil {
		return "", err
	}
	return validTimezone(user.Settings.Timezone), nil
}

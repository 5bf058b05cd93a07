package store

import (
	"sort"
	"sync"

	"github.com/efreitasn/tradesim/internal/domain"
)

// UserStore is a thread-safe in-memory registry of users,
// keyed by username.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

// NewUserStore creates an empty UserStore.
func NewUserStore() *UserStore {
	return &UserStore{
		users: make(map[string]*domain.User),
	}
}

// Create adds a user to the store. It returns
// domain.ErrDuplicateUsername if the username is taken.
func (s *UserStore) Create(u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[u.Username]; exists {
		return domain.ErrDuplicateUsername
	}
	s.users[u.Username] = u
	return nil
}

// Get retrieves a user by username. It returns
// domain.ErrUserNotFound if the user does not exist.
func (s *UserStore) Get(username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

// Exists returns true if a user with the given username exists.
func (s *UserStore) Exists(username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[username]
	return ok
}

// List returns every user sorted by username.
func (s *UserStore) List() []*domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.User, 0, len(s.users))
	for _, u := range s.users {
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Username < result[j].Username
	})
	return result
}

package issuer

import (
	"errors"
	"strings"
	"sync"
)

// ErrUserNotFound is returned by [UserTable.Lookup] for an unknown username.
var ErrUserNotFound = errors.New("issuer: user not found")

// User is one account the issuer can authenticate.
type User struct {
	Username     string
	PasswordHash string
	IsAdmin      bool
	Disabled     bool
}

// UserTable is an in-memory set of users keyed by username.
type UserTable struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewUserTable returns an empty table.
func NewUserTable() *UserTable {
	return &UserTable{users: make(map[string]User)}
}

// Put adds or replaces u.
func (t *UserTable) Put(u User) error {
	u.Username = strings.TrimSpace(u.Username)
	if u.Username == "" {
		return errors.New("issuer: username required")
	}
	if u.PasswordHash == "" {
		return errors.New("issuer: password hash required")
	}

	t.mu.Lock()
	t.users[u.Username] = u
	t.mu.Unlock()
	return nil
}

// Lookup returns the user named username.
func (t *UserTable) Lookup(username string) (User, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	u, ok := t.users[username]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

// Len returns the number of users.
func (t *UserTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.users)
}

// Package presence tracks which users are online and announces the sorted
// list on the public topic.
package presence

import (
	"encoding/json"
	"sort"
	"sync"
)

// Registry maps online users to the connection that announced them. The owner
// is an opaque connection id; a later JOIN of the same user takes it over.
type Registry struct {
	mu    sync.Mutex
	users map[string]string // user -> owner
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{users: make(map[string]string)}
}

// Join marks user online for owner. It reports whether the user list changed.
func (r *Registry) Join(owner, user string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, known := r.users[user]
	r.users[user] = owner
	return !known
}

// Leave removes user if owner still holds it. It reports whether the user
// list changed.
func (r *Registry) Leave(owner, user string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if held, ok := r.users[user]; !ok || held != owner {
		return false
	}
	delete(r.users, user)
	return true
}

// Drop removes every user held by owner and returns them sorted.
func (r *Registry) Drop(owner string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var gone []string
	for user, held := range r.users {
		if held == owner {
			delete(r.users, user)
			gone = append(gone, user)
		}
	}
	sort.Strings(gone)
	return gone
}

// Owner returns the connection holding user.
func (r *Registry) Owner(user string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.users[user]
	return owner, ok
}

// Users returns the online users sorted by name.
func (r *Registry) Users() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]string, 0, len(r.users))
	for user := range r.users {
		users = append(users, user)
	}
	sort.Strings(users)
	return users
}

// Snapshot returns the JSON array published on the public topic.
func (r *Registry) Snapshot() []byte {
	data, _ := json.Marshal(r.Users())
	return data
}

// DecodeUsers parses a public topic body.
func DecodeUsers(body []byte) ([]string, error) {
	var users []string
	if err := json.Unmarshal(body, &users); err != nil {
		return nil, err
	}
	return users, nil
}

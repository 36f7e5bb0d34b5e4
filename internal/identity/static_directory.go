package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// StaticDirectory serves user records from a JSON document for local development.
type StaticDirectory struct {
	mu    sync.RWMutex
	users []User
}

// NewStaticDirectory parses the provided JSON payload and stores users in memory.
func NewStaticDirectory(data []byte) (*StaticDirectory, error) {
	type doc struct {
		Users []User `json:"users"`
	}
	var parsed doc
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("identity: parse fixture: %w", err)
	}

	dir := &StaticDirectory{
		users: make([]User, 0, len(parsed.Users)),
	}
	for _, u := range parsed.Users {
		if u.UID == "" {
			return nil, errors.New("identity: fixture contains user without uid")
		}
		dir.users = append(dir.users, u)
	}
	return dir, nil
}

// GetUser returns the user whose UID matches exactly.
func (d *StaticDirectory) GetUser(_ context.Context, uid string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	i := d.indexOf(uid)
	if i < 0 {
		return nil, ErrNotFound
	}
	user := d.users[i]
	return &user, nil
}

// UpdateUser applies the profile update in memory and returns the updated record.
func (d *StaticDirectory) UpdateUser(_ context.Context, uid string, update ProfileUpdate) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	i := d.indexOf(uid)
	if i < 0 {
		return nil, ErrNotFound
	}
	update.Apply(&d.users[i])
	user := d.users[i]
	return &user, nil
}

// ListUsers returns users in fixture order starting at offset.
func (d *StaticDirectory) ListUsers(_ context.Context, offset, limit int) (UserPage, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if offset < 0 {
		offset = 0
	}
	if offset >= len(d.users) || limit <= 0 {
		return UserPage{Users: []User{}, NextOffset: offset}, nil
	}
	end := min(offset+limit, len(d.users))
	out := make([]User, end-offset)
	copy(out, d.users[offset:end])
	return UserPage{
		Users:      out,
		NextOffset: end,
		HasMore:    end < len(d.users),
	}, nil
}

func (d *StaticDirectory) indexOf(uid string) int {
	for i := range d.users {
		if d.users[i].UID == uid {
			return i
		}
	}
	return -1
}

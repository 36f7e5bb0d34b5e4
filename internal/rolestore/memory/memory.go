// Package memory is a role store held in process memory, loaded from a JSON export of the
// realtime database: {"supplier": {key: doc, ...}, "admin": {key: doc, ...}}.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/tailscale-portfolio/role-gateway/internal/roles"
)

// Store keeps both collections keyed by record id. Iteration follows roles.KeyLess, the child
// ordering of the realtime database (integer-like keys numerically first, then the rest).
type Store struct {
	mu        sync.RWMutex
	suppliers map[string]roles.SupplierRecord
	admins    map[string]roles.AdminRecord
}

// New returns an empty store.
func New() *Store {
	return &Store{
		suppliers: map[string]roles.SupplierRecord{},
		admins:    map[string]roles.AdminRecord{},
	}
}

// Fixture is the on-disk registry document.
type Fixture struct {
	Supplier map[string]roles.SupplierRecord `json:"supplier"`
	Admin    map[string]roles.AdminRecord    `json:"admin"`
}

// ParseFixture decodes a registry document and stamps each record with its key.
func ParseFixture(data []byte) (*Fixture, error) {
	var fx Fixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("memory: parse fixture: %w", err)
	}
	for key, rec := range fx.Supplier {
		if key == "" {
			return nil, errors.New("memory: supplier with empty key")
		}
		rec.RecordID = key
		fx.Supplier[key] = rec
	}
	for key, rec := range fx.Admin {
		if key == "" {
			return nil, errors.New("memory: admin with empty key")
		}
		rec.RecordID = key
		fx.Admin[key] = rec
	}
	return &fx, nil
}

// NewFromJSON builds a store from a registry document.
func NewFromJSON(data []byte) (*Store, error) {
	fx, err := ParseFixture(data)
	if err != nil {
		return nil, err
	}
	s := New()
	for k, v := range fx.Supplier {
		s.suppliers[k] = v
	}
	for k, v := range fx.Admin {
		s.admins[k] = v
	}
	return s, nil
}

func (s *Store) Name() string { return "memory" }

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Suppliers(context.Context) ([]roles.SupplierRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]roles.SupplierRecord, 0, len(s.suppliers))
	for _, key := range sortedKeys(s.suppliers) {
		out = append(out, s.suppliers[key])
	}
	return out, nil
}

func (s *Store) AdminsByEmail(_ context.Context, email string) ([]roles.AdminRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []roles.AdminRecord
	for _, key := range sortedKeys(s.admins) {
		if s.admins[key].Email == email {
			out = append(out, s.admins[key])
		}
	}
	return out, nil
}

func (s *Store) PutSupplier(_ context.Context, rec roles.SupplierRecord) error {
	if rec.RecordID == "" {
		return errors.New("memory: supplier record id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppliers[rec.RecordID] = rec
	return nil
}

func (s *Store) PutAdmin(_ context.Context, rec roles.AdminRecord) error {
	if rec.RecordID == "" {
		return errors.New("memory: admin record id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins[rec.RecordID] = rec
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	roles.SortKeys(keys)
	return keys
}

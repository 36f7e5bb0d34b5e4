// Package redis keeps the role registry in Redis hashes.
//
// Layout (prefix defaults to "roles:"):
//
//	<prefix>supplier            hash  record id -> JSON document
//	<prefix>admin               hash  record id -> JSON document
//	<prefix>admin:email:<email> set   record ids of admins with that exact email
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/tailscale-portfolio/role-gateway/internal/roles"
)

const DefaultPrefix = "roles:"

type Store struct {
	rdb    goredis.UniversalClient
	prefix string
}

// New wraps an existing client.
func New(rdb goredis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix}
}

// Dial opens a single-node client.
func Dial(addr, password string, db int, prefix string) *Store {
	return New(goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), prefix)
}

func (s *Store) Name() string { return "redis" }

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) supplierKey() string { return s.prefix + "supplier" }
func (s *Store) adminKey() string    { return s.prefix + "admin" }
func (s *Store) emailKey(email string) string {
	return s.prefix + "admin:email:" + email
}

// Suppliers returns every supplier record ordered by record id.
func (s *Store) Suppliers(ctx context.Context) ([]roles.SupplierRecord, error) {
	docs, err := s.rdb.HGetAll(ctx, s.supplierKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: hgetall suppliers: %w", err)
	}

	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	roles.SortKeys(ids)

	out := make([]roles.SupplierRecord, 0, len(ids))
	for _, id := range ids {
		var rec roles.SupplierRecord
		if err := json.Unmarshal([]byte(docs[id]), &rec); err != nil {
			return nil, fmt.Errorf("redis: decode supplier %q: %w", id, err)
		}
		rec.RecordID = id
		out = append(out, rec)
	}
	return out, nil
}

// AdminsByEmail resolves the email index and fetches the referenced documents.
func (s *Store) AdminsByEmail(ctx context.Context, email string) ([]roles.AdminRecord, error) {
	ids, err := s.rdb.SMembers(ctx, s.emailKey(email)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: smembers admin index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	roles.SortKeys(ids)

	vals, err := s.rdb.HMGet(ctx, s.adminKey(), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: hmget admins: %w", err)
	}

	out := make([]roles.AdminRecord, 0, len(vals))
	for i, v := range vals {
		doc, ok := v.(string)
		if !ok {
			// stale index entry
			continue
		}
		var rec roles.AdminRecord
		if err := json.Unmarshal([]byte(doc), &rec); err != nil {
			return nil, fmt.Errorf("redis: decode admin %q: %w", ids[i], err)
		}
		rec.RecordID = ids[i]
		if rec.Email != email {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) PutSupplier(ctx context.Context, rec roles.SupplierRecord) error {
	if rec.RecordID == "" {
		return errors.New("redis: supplier record id required")
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redis: encode supplier: %w", err)
	}
	if err := s.rdb.HSet(ctx, s.supplierKey(), rec.RecordID, doc).Err(); err != nil {
		return fmt.Errorf("redis: hset supplier: %w", err)
	}
	return nil
}

// PutAdmin writes the document and moves the record between email index sets when its
// email changed.
func (s *Store) PutAdmin(ctx context.Context, rec roles.AdminRecord) error {
	if rec.RecordID == "" {
		return errors.New("redis: admin record id required")
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redis: encode admin: %w", err)
	}

	var prevEmail string
	prev, err := s.rdb.HGet(ctx, s.adminKey(), rec.RecordID).Result()
	switch {
	case errors.Is(err, goredis.Nil):
	case err != nil:
		return fmt.Errorf("redis: hget admin: %w", err)
	default:
		var old roles.AdminRecord
		if json.Unmarshal([]byte(prev), &old) == nil {
			prevEmail = old.Email
		}
	}

	_, err = s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		if prevEmail != "" && prevEmail != rec.Email {
			p.SRem(ctx, s.emailKey(prevEmail), rec.RecordID)
		}
		p.HSet(ctx, s.adminKey(), rec.RecordID, doc)
		p.SAdd(ctx, s.emailKey(rec.Email), rec.RecordID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: write admin: %w", err)
	}
	return nil
}

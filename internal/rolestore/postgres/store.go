// Package postgres stores both role collections in a single JSONB table.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tailscale-portfolio/role-gateway/internal/roles"
)

const (
	collectionSupplier = "supplier"
	collectionAdmin    = "admin"
)

const schema = `
CREATE TABLE IF NOT EXISTS role_records (
	collection TEXT        NOT NULL,
	record_id  TEXT        NOT NULL,
	doc        JSONB       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, record_id)
);
CREATE INDEX IF NOT EXISTS role_records_email_idx ON role_records (collection, (doc->>'email'));
`

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

type Store struct {
	db    DB
	close func()
}

func New(db DB) *Store {
	return &Store{db: db}
}

// Open connects a pool and verifies it.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Store{db: pool, close: pool.Close}, nil
}

func (s *Store) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}

func (s *Store) Name() string { return "postgres" }

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// EnsureSchema creates the table and email index if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}

func (s *Store) Suppliers(ctx context.Context) ([]roles.SupplierRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT record_id, doc FROM role_records WHERE collection = $1 ORDER BY record_id`,
		collectionSupplier)
	if err != nil {
		return nil, fmt.Errorf("postgres: query suppliers: %w", err)
	}
	docs, err := collectDocs(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan suppliers: %w", err)
	}
	sortDocs(docs)

	out := make([]roles.SupplierRecord, 0, len(docs))
	for _, d := range docs {
		rec, err := decodeSupplier(d)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) AdminsByEmail(ctx context.Context, email string) ([]roles.AdminRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT record_id, doc FROM role_records
		 WHERE collection = $1 AND doc->>'email' = $2
		 ORDER BY record_id`,
		collectionAdmin, email)
	if err != nil {
		return nil, fmt.Errorf("postgres: query admins: %w", err)
	}
	docs, err := collectDocs(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan admins: %w", err)
	}
	sortDocs(docs)

	var out []roles.AdminRecord
	for _, d := range docs {
		rec, err := decodeAdmin(d)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) PutSupplier(ctx context.Context, rec roles.SupplierRecord) error {
	return s.put(ctx, collectionSupplier, rec.RecordID, rec)
}

func (s *Store) PutAdmin(ctx context.Context, rec roles.AdminRecord) error {
	return s.put(ctx, collectionAdmin, rec.RecordID, rec)
}

func (s *Store) put(ctx context.Context, collection, id string, v any) error {
	if id == "" {
		return fmt.Errorf("postgres: %s record id required", collection)
	}
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("postgres: encode %s: %w", collection, err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO role_records (collection, record_id, doc)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, record_id)
		DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		collection, id, doc)
	if err != nil {
		return fmt.Errorf("postgres: upsert %s: %w", collection, err)
	}
	return nil
}

type rawDoc struct {
	ID  string
	Doc []byte
}

func collectDocs(rows pgx.Rows) ([]rawDoc, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (rawDoc, error) {
		var d rawDoc
		err := row.Scan(&d.ID, &d.Doc)
		return d, err
	})
}

// sortDocs reorders rows by registry key; ORDER BY record_id is plain text collation.
func sortDocs(docs []rawDoc) {
	sort.SliceStable(docs, func(i, j int) bool { return roles.KeyLess(docs[i].ID, docs[j].ID) })
}

var errEmptyDoc = errors.New("empty document")

func decodeSupplier(d rawDoc) (roles.SupplierRecord, error) {
	var rec roles.SupplierRecord
	if len(d.Doc) == 0 {
		return rec, fmt.Errorf("postgres: supplier %q: %w", d.ID, errEmptyDoc)
	}
	if err := json.Unmarshal(d.Doc, &rec); err != nil {
		return rec, fmt.Errorf("postgres: decode supplier %q: %w", d.ID, err)
	}
	rec.RecordID = d.ID
	return rec, nil
}

func decodeAdmin(d rawDoc) (roles.AdminRecord, error) {
	var rec roles.AdminRecord
	if len(d.Doc) == 0 {
		return rec, fmt.Errorf("postgres: admin %q: %w", d.ID, errEmptyDoc)
	}
	if err := json.Unmarshal(d.Doc, &rec); err != nil {
		return rec, fmt.Errorf("postgres: decode admin %q: %w", d.ID, err)
	}
	rec.RecordID = d.ID
	return rec, nil
}

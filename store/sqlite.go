package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLite stores documents as JSON text in a single table keyed by
// collection. Equality filters are evaluated with json_extract.
type SQLite struct {
	db *sql.DB
}

var _ DocumentStore = (*SQLite)(nil)

// OpenSQLite opens (creating if needed) the database at dbPath.
func OpenSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; the crawl is sequential.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLite) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		collection TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);

	CREATE TABLE IF NOT EXISTS state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// InsertOne stores doc in collection under a fresh identifier. An _id
// already present in doc is kept as the identifier.
func (s *SQLite) InsertOne(ctx context.Context, collection string, doc Document) error {
	id := uuid.New().String()
	body := make(Document, len(doc))
	for k, v := range doc {
		if k == IDField {
			if str, ok := v.(string); ok && str != "" {
				id = str
			}
			continue
		}
		body[k] = v
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, collection, body, created_at) VALUES (?, ?, ?, ?)`,
		id, collection, string(data), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert into %s: %w", collection, err)
	}
	return nil
}

// FindOne returns the first document of collection matching filter, or
// ErrNotFound.
func (s *SQLite) FindOne(ctx context.Context, collection string, filter Filter) (Document, error) {
	docs, err := s.Find(ctx, collection, filter, WithLimit(1))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return docs[0], nil
}

// Find returns the documents of collection matching filter in insertion
// order.
func (s *SQLite) Find(ctx context.Context, collection string, filter Filter, opts ...FindOption) ([]Document, error) {
	var options FindOptions
	for _, opt := range opts {
		opt(&options)
	}

	where, args, err := compileFilter(collection, filter)
	if err != nil {
		return nil, err
	}

	query := "SELECT id, body FROM documents WHERE " + where + " ORDER BY rowid"
	if options.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", options.Limit)
	} else if options.Offset > 0 {
		query += " LIMIT -1"
	}
	if options.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", options.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}

		var doc Document
		if err := json.Unmarshal([]byte(body), &doc); err != nil {
			return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
		}
		doc[IDField] = id
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

// Count returns how many documents of collection match filter.
func (s *SQLite) Count(ctx context.Context, collection string, filter Filter) (int, error) {
	where, args, err := compileFilter(collection, filter)
	if err != nil {
		return 0, err
	}

	var n int
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE "+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", collection, err)
	}
	return n, nil
}

// compileFilter turns filter into a WHERE clause. Keys are sorted so the
// same filter always yields the same statement.
func compileFilter(collection string, filter Filter) (string, []any, error) {
	clauses := []string{"collection = ?"}
	args := []any{collection}

	for _, key := range slices.Sorted(maps.Keys(filter)) {
		value := filter[key]

		if key == IDField {
			clauses = append(clauses, "id = ?")
			args = append(args, value)
			continue
		}

		path := `$."` + strings.ReplaceAll(key, `"`, `\"`) + `"`
		switch v := value.(type) {
		case nil:
			clauses = append(clauses, "json_extract(body, ?) IS NULL")
			args = append(args, path)
		case string, bool, int, int32, int64, float32, float64:
			clauses = append(clauses, "json_extract(body, ?) = ?")
			args = append(args, path, v)
		default:
			data, err := json.Marshal(v)
			if err != nil {
				return "", nil, fmt.Errorf("unsupported filter value for %q: %w", key, err)
			}
			clauses = append(clauses, "json_extract(body, ?) = json(?)")
			args = append(args, path, string(data))
		}
	}

	return strings.Join(clauses, " AND "), args, nil
}

// GetState returns the value stored under key, or ErrNotFound.
func (s *SQLite) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read state %q: %w", key, err)
	}
	return value, nil
}

// SetState stores value under key, replacing any previous value.
func (s *SQLite) SetState(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to write state %q: %w", key, err)
	}
	return nil
}

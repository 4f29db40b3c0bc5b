// Package store persists schema-less JSON documents grouped in named
// collections.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// IDField is the key under which a stored document carries its identifier.
const IDField = "_id"

var ErrNotFound = errors.New("document not found")

// Document is a loosely-typed stored record. Values follow encoding/json
// decoding rules: numbers are float64, objects are map[string]any.
type Document map[string]any

// Filter matches documents whose fields equal the given values. A nil
// value matches an absent or null field.
type Filter map[string]any

// DocumentStore is the document database used by ingestion and queries.
type DocumentStore interface {
	FindOne(ctx context.Context, collection string, filter Filter) (Document, error)
	InsertOne(ctx context.Context, collection string, doc Document) error
	Find(ctx context.Context, collection string, filter Filter, opts ...FindOption) ([]Document, error)
}

// FindOptions pages through a Find result.
type FindOptions struct {
	Limit  int
	Offset int
}

type FindOption func(*FindOptions)

// WithLimit caps the number of documents returned. Zero means no cap.
func WithLimit(n int) FindOption {
	return func(o *FindOptions) { o.Limit = n }
}

// WithOffset skips the first n matching documents.
func WithOffset(n int) FindOption {
	return func(o *FindOptions) { o.Offset = n }
}

// ToDocument converts any JSON-serializable record to a Document.
func ToDocument(record any) (Document, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("record is not a JSON object: %w", err)
	}
	return doc, nil
}

// KeyFilter builds an equality filter over keys of doc. Keys missing from
// doc filter on null.
func KeyFilter(doc Document, keys []string) Filter {
	filter := make(Filter, len(keys))
	for _, k := range keys {
		filter[k] = doc[k]
	}
	return filter
}

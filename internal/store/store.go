// Package store provides typed persistence for bookmark records, with a
// Postgres backend for hosted installs and a SQLite backend for
// single-user ones.
package store

import (
	"context"

	"github.com/inkshelf/enricher/internal/model"
)

// UpsertOutcome is the per-record result of a batch upsert.
type UpsertOutcome struct {
	URL string
	Err error
}

// Store defines the persistence interface for bookmark records. Upserts
// are idempotent: re-writing identical content is a no-op in effect.
// Enrichment fields merge field-level on conflict — an unset field in the
// incoming record never erases a previously stored value.
type Store interface {
	FetchAll(ctx context.Context) ([]model.Record, error)
	// FetchByURL returns nil with no error when the record does not exist.
	FetchByURL(ctx context.Context, url string) (*model.Record, error)
	UpsertOne(ctx context.Context, rec model.Record) error
	// UpsertBatch persists up to len(recs) records and reports a per-record
	// outcome. The returned error is reserved for failures that prevented
	// the batch from executing at all.
	UpsertBatch(ctx context.Context, recs []model.Record) ([]UpsertOutcome, error)
	DeleteByURL(ctx context.Context, url string) error

	Migrate(ctx context.Context) error
	Close() error
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/inkshelf/enricher/internal/model"
)

// SQLiteStore implements Store on a local SQLite file for single-user
// installs. Semantics match the Postgres backend: field-level COALESCE
// merge on conflict, idempotent upserts.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS bookmarks (
	url               TEXT PRIMARY KEY,
	title             TEXT,
	description       TEXT,
	research_text     TEXT,
	extracted_content TEXT,
	rating            INTEGER,
	language          TEXT,
	icon              TEXT,
	tags              TEXT,
	insight_engineer  TEXT,
	insight_founder   TEXT,
	insight_creator   TEXT,
	researched_at     TEXT,
	classified_at     TEXT,
	published_at      TEXT,
	created_at        TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
	updated_at        TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);

CREATE INDEX IF NOT EXISTS idx_bookmarks_classified_at ON bookmarks(classified_at);
`

const sqliteUpsert = `INSERT INTO bookmarks (url, title, description, research_text, extracted_content,
	rating, language, icon, tags,
	insight_engineer, insight_founder, insight_creator,
	researched_at, classified_at, published_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, strftime('%Y-%m-%dT%H:%M:%SZ','now'))
ON CONFLICT (url) DO UPDATE SET
	title             = COALESCE(excluded.title, bookmarks.title),
	description       = COALESCE(excluded.description, bookmarks.description),
	research_text     = COALESCE(excluded.research_text, bookmarks.research_text),
	extracted_content = COALESCE(excluded.extracted_content, bookmarks.extracted_content),
	rating            = COALESCE(excluded.rating, bookmarks.rating),
	language          = COALESCE(excluded.language, bookmarks.language),
	icon              = COALESCE(excluded.icon, bookmarks.icon),
	tags              = COALESCE(excluded.tags, bookmarks.tags),
	insight_engineer  = COALESCE(excluded.insight_engineer, bookmarks.insight_engineer),
	insight_founder   = COALESCE(excluded.insight_founder, bookmarks.insight_founder),
	insight_creator   = COALESCE(excluded.insight_creator, bookmarks.insight_creator),
	researched_at     = COALESCE(excluded.researched_at, bookmarks.researched_at),
	classified_at     = COALESCE(excluded.classified_at, bookmarks.classified_at),
	published_at      = COALESCE(excluded.published_at, bookmarks.published_at),
	updated_at        = strftime('%Y-%m-%dT%H:%M:%SZ','now')`

const sqliteSelect = `SELECT url, title, description, research_text, extracted_content,
	rating, language, icon, tags,
	insight_engineer, insight_founder, insight_creator,
	researched_at, classified_at, published_at, created_at, updated_at
FROM bookmarks`

// NewSQLite opens (or creates) a SQLite store at path.
func NewSQLite(path string) (*SQLiteStore, error) {
	handle, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: open %s", path)
	}
	// SQLite allows one writer at a time; serialize access through a
	// single connection rather than racing on SQLITE_BUSY.
	handle.SetMaxOpenConns(1)
	return &SQLiteStore{db: handle}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) FetchAll(ctx context.Context) ([]model.Record, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSelect+` ORDER BY created_at`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list bookmarks")
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan bookmark")
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate bookmarks")
	}
	return records, nil
}

func (s *SQLiteStore) FetchByURL(ctx context.Context, url string) (*model.Record, error) {
	row := s.db.QueryRowContext(ctx, sqliteSelect+` WHERE url = ?`, url)
	rec, err := scanSQLiteRecord(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get bookmark %s", url)
	}
	return rec, nil
}

func (s *SQLiteStore) UpsertOne(ctx context.Context, rec model.Record) error {
	args, err := sqliteUpsertArgs(rec)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, sqliteUpsert, args...); err != nil {
		return eris.Wrapf(err, "sqlite: upsert bookmark %s", rec.URL)
	}
	return nil
}

func (s *SQLiteStore) UpsertBatch(ctx context.Context, recs []model.Record) ([]UpsertOutcome, error) {
	if len(recs) == 0 {
		return nil, nil
	}

	outcomes := make([]UpsertOutcome, len(recs))
	for i, rec := range recs {
		outcomes[i] = UpsertOutcome{URL: rec.URL, Err: s.UpsertOne(ctx, rec)}
	}
	return outcomes, nil
}

func (s *SQLiteStore) DeleteByURL(ctx context.Context, url string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM bookmarks WHERE url = ?`, url); err != nil {
		return eris.Wrapf(err, "sqlite: delete bookmark %s", url)
	}
	return nil
}

func sqliteUpsertArgs(rec model.Record) ([]any, error) {
	var tags *string
	if len(rec.Tags) > 0 {
		encoded, err := json.Marshal(rec.Tags)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: encode tags for %s", rec.URL)
		}
		s := string(encoded)
		tags = &s
	}

	return []any{
		rec.URL,
		nullIfEmpty(rec.Title),
		nullIfEmpty(rec.Description),
		nullIfEmpty(rec.ResearchText),
		nullIfEmpty(rec.ExtractedContent),
		nullIfZero(rec.Rating),
		nullIfEmpty(rec.Language),
		nullIfEmpty(rec.Icon),
		tags,
		nullIfEmpty(rec.InsightEngineer),
		nullIfEmpty(rec.InsightFounder),
		nullIfEmpty(rec.InsightCreator),
		formatTime(rec.ResearchedAt),
		formatTime(rec.ClassifiedAt),
		formatTime(rec.PublishedAt),
	}, nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func parseTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func scanSQLiteRecord(scan func(dest ...any) error) (*model.Record, error) {
	var rec model.Record
	var title, desc, research, extr sql.NullString
	var rating sql.NullInt64
	var lang, icon, tags sql.NullString
	var insEng, insFnd, insCre sql.NullString
	var researchedAt, classifiedAt, publishedAt sql.NullString
	var createdAt, updatedAt sql.NullString

	err := scan(
		&rec.URL, &title, &desc, &research, &extr,
		&rating, &lang, &icon, &tags,
		&insEng, &insFnd, &insCre,
		&researchedAt, &classifiedAt, &publishedAt,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Title = title.String
	rec.Description = desc.String
	rec.ResearchText = research.String
	rec.ExtractedContent = extr.String
	rec.Rating = int(rating.Int64)
	rec.Language = lang.String
	rec.Icon = icon.String
	rec.InsightEngineer = insEng.String
	rec.InsightFounder = insFnd.String
	rec.InsightCreator = insCre.String
	rec.ResearchedAt = parseTime(researchedAt)
	rec.ClassifiedAt = parseTime(classifiedAt)
	rec.PublishedAt = parseTime(publishedAt)
	if t := parseTime(createdAt); t != nil {
		rec.CreatedAt = *t
	}
	if t := parseTime(updatedAt); t != nil {
		rec.UpdatedAt = *t
	}

	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &rec.Tags); err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode tags for %s", rec.URL)
		}
	}

	return &rec, nil
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/inkshelf/enricher/internal/db"
	"github.com/inkshelf/enricher/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

const recordColumns = `url, title, description, research_text, extracted_content,
	rating, language, icon, tags,
	insight_engineer, insight_founder, insight_creator,
	researched_at, classified_at, published_at, created_at, updated_at`

// upsertSQL merges field-level on conflict: an incoming NULL keeps the
// stored value, so partial-step runs never erase prior enrichment.
const upsertSQL = `INSERT INTO bookmarks (url, title, description, research_text, extracted_content,
	rating, language, icon, tags,
	insight_engineer, insight_founder, insight_creator,
	researched_at, classified_at, published_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now())
ON CONFLICT (url) DO UPDATE SET
	title             = COALESCE(EXCLUDED.title, bookmarks.title),
	description       = COALESCE(EXCLUDED.description, bookmarks.description),
	research_text     = COALESCE(EXCLUDED.research_text, bookmarks.research_text),
	extracted_content = COALESCE(EXCLUDED.extracted_content, bookmarks.extracted_content),
	rating            = COALESCE(EXCLUDED.rating, bookmarks.rating),
	language          = COALESCE(EXCLUDED.language, bookmarks.language),
	icon              = COALESCE(EXCLUDED.icon, bookmarks.icon),
	tags              = COALESCE(EXCLUDED.tags, bookmarks.tags),
	insight_engineer  = COALESCE(EXCLUDED.insight_engineer, bookmarks.insight_engineer),
	insight_founder   = COALESCE(EXCLUDED.insight_founder, bookmarks.insight_founder),
	insight_creator   = COALESCE(EXCLUDED.insight_creator, bookmarks.insight_creator),
	researched_at     = COALESCE(EXCLUDED.researched_at, bookmarks.researched_at),
	classified_at     = COALESCE(EXCLUDED.classified_at, bookmarks.classified_at),
	published_at      = COALESCE(EXCLUDED.published_at, bookmarks.published_at),
	updated_at        = now()`

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"upsert_bookmark": upsertSQL,
	"get_bookmark":    `SELECT ` + recordColumns + ` FROM bookmarks WHERE url = $1`,
	"list_bookmarks":  `SELECT ` + recordColumns + ` FROM bookmarks ORDER BY created_at`,
	"delete_bookmark": `DELETE FROM bookmarks WHERE url = $1`,
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS bookmarks (
	url               TEXT PRIMARY KEY,
	title             TEXT,
	description       TEXT,
	research_text     TEXT,
	extracted_content TEXT,
	rating            INT,
	language          TEXT,
	icon              TEXT,
	tags              TEXT[],
	insight_engineer  TEXT,
	insight_founder   TEXT,
	insight_creator   TEXT,
	researched_at     TIMESTAMPTZ,
	classified_at     TIMESTAMPTZ,
	published_at      TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_bookmarks_classified_at ON bookmarks(classified_at);
`

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the bookmarks schema if missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) FetchAll(ctx context.Context) ([]model.Record, error) {
	rows, err := s.pool.Query(ctx, preparedStatements["list_bookmarks"])
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list bookmarks")
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan bookmark")
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate bookmarks")
	}
	return records, nil
}

func (s *PostgresStore) FetchByURL(ctx context.Context, url string) (*model.Record, error) {
	row := s.pool.QueryRow(ctx, preparedStatements["get_bookmark"], url)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get bookmark %s", url)
	}
	return rec, nil
}

func (s *PostgresStore) UpsertOne(ctx context.Context, rec model.Record) error {
	if _, err := s.pool.Exec(ctx, upsertSQL, upsertArgs(rec)...); err != nil {
		return eris.Wrapf(err, "postgres: upsert bookmark %s", rec.URL)
	}
	return nil
}

// UpsertBatch sends one upsert per record in a single pgx batch. Each
// record gets its own outcome; a connection-level failure surfaces as an
// error on every remaining entry rather than silently dropping the batch.
func (s *PostgresStore) UpsertBatch(ctx context.Context, recs []model.Record) ([]UpsertOutcome, error) {
	if len(recs) == 0 {
		return nil, nil
	}

	batch := &pgx.Batch{}
	for _, rec := range recs {
		batch.Queue(upsertSQL, upsertArgs(rec)...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	outcomes := make([]UpsertOutcome, len(recs))
	for i, rec := range recs {
		_, err := br.Exec()
		outcomes[i] = UpsertOutcome{URL: rec.URL}
		if err != nil {
			outcomes[i].Err = eris.Wrapf(err, "postgres: upsert bookmark %s", rec.URL)
		}
	}
	return outcomes, nil
}

func (s *PostgresStore) DeleteByURL(ctx context.Context, url string) error {
	if _, err := s.pool.Exec(ctx, preparedStatements["delete_bookmark"], url); err != nil {
		return eris.Wrapf(err, "postgres: delete bookmark %s", url)
	}
	return nil
}

// upsertArgs maps a record to upsertSQL's placeholders, passing NULL for
// unset fields so COALESCE keeps stored values.
func upsertArgs(rec model.Record) []any {
	return []any{
		rec.URL,
		nullIfEmpty(rec.Title),
		nullIfEmpty(rec.Description),
		nullIfEmpty(rec.ResearchText),
		nullIfEmpty(rec.ExtractedContent),
		nullIfZero(rec.Rating),
		nullIfEmpty(rec.Language),
		nullIfEmpty(rec.Icon),
		nullIfNoTags(rec.Tags),
		nullIfEmpty(rec.InsightEngineer),
		nullIfEmpty(rec.InsightFounder),
		nullIfEmpty(rec.InsightCreator),
		rec.ResearchedAt,
		rec.ClassifiedAt,
		rec.PublishedAt,
	}
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullIfZero(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}

func nullIfNoTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	return tags
}

// scanRecord reads one bookmarks row in recordColumns order.
func scanRecord(row pgx.Row) (*model.Record, error) {
	var rec model.Record
	var title, desc, research, extr *string
	var rating *int
	var lang, icon *string
	var tags []string
	var insEng, insFnd, insCre *string

	err := row.Scan(
		&rec.URL, &title, &desc, &research, &extr,
		&rating, &lang, &icon, &tags,
		&insEng, &insFnd, &insCre,
		&rec.ResearchedAt, &rec.ClassifiedAt, &rec.PublishedAt,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Title = deref(title)
	rec.Description = deref(desc)
	rec.ResearchText = deref(research)
	rec.ExtractedContent = deref(extr)
	if rating != nil {
		rec.Rating = *rating
	}
	rec.Language = deref(lang)
	rec.Icon = deref(icon)
	rec.Tags = tags
	rec.InsightEngineer = deref(insEng)
	rec.InsightFounder = deref(insFnd)
	rec.InsightCreator = deref(insCre)

	return &rec, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

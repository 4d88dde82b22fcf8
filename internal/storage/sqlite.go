// Package storage persists canonical postings. The SQLite store is the
// default sink; it upserts on the (source_site, source_id) identity so
// re-running a job is idempotent.
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Register sqlite driver

	"jobharbor/pkg/models"
	"jobharbor/pkg/utils"
)

//go:embed migrations/001_initial.sql
var migration string

const timeFormat = time.RFC3339Nano

// SQLiteStore implements the pipeline sink on a single SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

func Open(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// In-memory databases are per-connection; multiple connections each get
	// a separate empty database. Limit to one connection so migrations and
	// queries all see the same data.
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(migration); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Upsert inserts the posting or refreshes the existing row. first_seen_at is
// preserved across updates; last_seen_at always advances. Failures are
// reported as SinkError so the caller can retry them.
func (s *SQLiteStore) Upsert(ctx context.Context, p *models.Posting) error {
	skills, err := json.Marshal(p.Skills)
	if err != nil {
		return utils.NewSinkError(p.CanonicalID(), fmt.Errorf("encode skills: %w", err))
	}
	if p.Skills == nil {
		skills = []byte("[]")
	}

	var postedAt any
	if p.PostedAt != nil {
		postedAt = p.PostedAt.UTC().Format(timeFormat)
	}

	const query = `INSERT INTO postings
		(source_site, source_id, title, company_name, location, description_text,
		 skills, posted_at, url, fingerprint, experience_level, job_type,
		 first_seen_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_site, source_id) DO UPDATE SET
		 title = excluded.title,
		 company_name = excluded.company_name,
		 location = excluded.location,
		 description_text = excluded.description_text,
		 skills = excluded.skills,
		 posted_at = excluded.posted_at,
		 url = excluded.url,
		 fingerprint = excluded.fingerprint,
		 experience_level = excluded.experience_level,
		 job_type = excluded.job_type,
		 last_seen_at = excluded.last_seen_at`

	_, err = s.db.ExecContext(ctx, query,
		p.SourceSite, p.SourceID, p.Title, p.CompanyName, p.Location, p.DescriptionText,
		string(skills), postedAt, p.URL, p.Fingerprint, p.ExperienceLevel, p.JobType,
		p.FirstSeenAt.UTC().Format(timeFormat), p.LastSeenAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return utils.NewSinkError(p.CanonicalID(), fmt.Errorf("upsert posting: %w", err))
	}
	return nil
}

// Get returns one posting by its source identity, or sql.ErrNoRows.
func (s *SQLiteStore) Get(ctx context.Context, site, sourceID string) (*models.Posting, error) {
	const query = `SELECT source_site, source_id, title, company_name, location,
		 description_text, skills, posted_at, url, fingerprint,
		 experience_level, job_type, first_seen_at, last_seen_at
		FROM postings WHERE source_site = ? AND source_id = ?`

	return scanPosting(s.db.QueryRowContext(ctx, query, site, sourceID))
}

// List returns postings for a site ordered by last_seen_at descending, or
// across all sites when site is empty.
func (s *SQLiteStore) List(ctx context.Context, site string, limit int) ([]models.Posting, error) {
	query := `SELECT source_site, source_id, title, company_name, location,
		 description_text, skills, posted_at, url, fingerprint,
		 experience_level, job_type, first_seen_at, last_seen_at
		FROM postings`
	args := []any{}
	if site != "" {
		query += " WHERE source_site = ?"
		args = append(args, site)
	}
	query += " ORDER BY last_seen_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list postings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var postings []models.Posting
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, err
		}
		postings = append(postings, *p)
	}
	return postings, rows.Err()
}

// Count returns the number of stored postings for a site, or all postings
// when site is empty.
func (s *SQLiteStore) Count(ctx context.Context, site string) (int64, error) {
	var (
		n   int64
		err error
	)
	if site == "" {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM postings").Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM postings WHERE source_site = ?", site).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count postings: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosting(row rowScanner) (*models.Posting, error) {
	var (
		p         models.Posting
		skills    string
		postedAt  sql.NullString
		firstSeen string
		lastSeen  string
	)
	err := row.Scan(&p.SourceSite, &p.SourceID, &p.Title, &p.CompanyName, &p.Location,
		&p.DescriptionText, &skills, &postedAt, &p.URL, &p.Fingerprint,
		&p.ExperienceLevel, &p.JobType, &firstSeen, &lastSeen)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(skills), &p.Skills); err != nil {
		return nil, fmt.Errorf("decode skills: %w", err)
	}
	if postedAt.Valid {
		if t, err := time.Parse(timeFormat, postedAt.String); err == nil {
			p.PostedAt = &t
		}
	}
	if t, err := time.Parse(timeFormat, firstSeen); err == nil {
		p.FirstSeenAt = t
	}
	if t, err := time.Parse(timeFormat, lastSeen); err == nil {
		p.LastSeenAt = t
	}
	return &p, nil
}

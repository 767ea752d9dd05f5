// Package cache provides the durable SQLite-backed store for ComicVine
// volumes, issues and series-name mappings, with age-based expiry.
package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lepinkainen/longbox/internal/comicvine"
)

// DefaultExpiry is the default time-to-live for cached entries (30 days).
const DefaultExpiry = 720 * time.Hour

// Timestamps are stored in this layout, in UTC. CURRENT_TIMESTAMP-style
// text keeps lexical and chronological order identical, so expiry
// cutoffs can be compared directly in SQL.
const timestampLayout = "2006-01-02 15:04:05"

// timestampGlob matches well-formed cached_at values; anything else is
// treated as expired.
const timestampGlob = "[0-9][0-9][0-9][0-9]-[0-9][0-9]-[0-9][0-9] [0-9][0-9]:[0-9][0-9]:[0-9][0-9]"

// Stats reports row counts per table, regardless of expiry.
type Stats struct {
	Volumes  int
	Issues   int
	Mappings int
}

// Store is a persistent cache for ComicVine data. All multi-row writes
// run in a single transaction; concurrent readers never observe an
// issue row without its lookup-index row.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	path   string
	expiry time.Duration
}

// Open opens (creating if needed) the cache database at path. Entries
// older than expiry are invisible to readers and removed by
// PurgeExpired.
func Open(path string, expiry time.Duration) (*Store, error) {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("failed to connect to cache database: %w", err), closeErr)
	}

	if _, err := db.Exec(schema); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("failed to create cache schema: %w", err), closeErr)
	}

	return &Store{
		db:     db,
		path:   path,
		expiry: expiry,
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) now() string {
	return time.Now().UTC().Format(timestampLayout)
}

func (s *Store) cutoff() string {
	return time.Now().UTC().Add(-s.expiry).Format(timestampLayout)
}

// isExpired reports whether a stored timestamp is past the expiry
// duration. Malformed timestamps count as expired so corrupt rows are
// re-fetched rather than served.
func (s *Store) isExpired(cachedAt string) bool {
	ts, err := time.ParseInLocation(timestampLayout, cachedAt, time.UTC)
	if err != nil {
		return true
	}
	return time.Now().UTC().Sub(ts) > s.expiry
}

// GetVolume returns the cached volume, or nil if absent or expired.
func (s *Store) GetVolume(volumeID int) (*comicvine.Volume, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT cv_volume_id, name, start_year, publisher, issue_count, aliases, cached_at
		FROM volumes WHERE cv_volume_id = ?
	`, volumeID)

	var v comicvine.Volume
	var startYear, issueCount sql.NullInt64
	var publisher, aliases sql.NullString
	var cachedAt string

	err := row.Scan(&v.ID, &v.Name, &startYear, &publisher, &issueCount, &aliases, &cachedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query volume %d: %w", volumeID, err)
	}

	if s.isExpired(cachedAt) {
		return nil, nil
	}

	v.StartYear = int(startYear.Int64)
	v.Publisher = publisher.String
	v.IssueCount = int(issueCount.Int64)
	if aliases.String != "" {
		if err := json.Unmarshal([]byte(aliases.String), &v.Aliases); err != nil {
			slog.Warn("Malformed alias data in cache, ignoring", "volume_id", volumeID, "error", err)
		}
	}

	return &v, nil
}

// PutVolume upserts a volume by catalog id and refreshes its age.
func (s *Store) PutVolume(v *comicvine.Volume) error {
	aliases, err := json.Marshal(v.Aliases)
	if err != nil {
		return fmt.Errorf("failed to marshal aliases: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO volumes
		(cv_volume_id, name, start_year, publisher, issue_count, aliases, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, v.ID, v.Name, v.StartYear, v.Publisher, v.IssueCount, string(aliases), s.now())
	if err != nil {
		return fmt.Errorf("failed to cache volume %d: %w", v.ID, err)
	}
	return nil
}

// GetIssue looks up an issue by its (volume id, issue number) composite
// key. Returns nil if absent or expired.
func (s *Store) GetIssue(volumeID int, issueNumber string) (*comicvine.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT i.cv_issue_id, i.cv_volume_id, i.issue_number, i.cover_date, i.title, i.cached_at
		FROM issues i
		JOIN issue_lookup l ON i.cv_issue_id = l.cv_issue_id
		WHERE l.cv_volume_id = ? AND l.issue_number = ?
	`, volumeID, issueNumber)

	issue, cachedAt, err := scanIssue(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query issue %d #%s: %w", volumeID, issueNumber, err)
	}
	if s.isExpired(cachedAt) {
		return nil, nil
	}
	return issue, nil
}

// PutIssue upserts an issue and its lookup-index row atomically.
func (s *Store) PutIssue(issue *comicvine.Issue) error {
	return s.PutIssues([]comicvine.Issue{*issue})
}

// PutIssues upserts many issues and their lookup-index rows in a single
// transaction. A failure leaves the store unchanged.
func (s *Store) PutIssues(issues []comicvine.Issue) error {
	if len(issues) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now()
	for i := range issues {
		issue := &issues[i]
		if _, err := tx.Exec(`
			INSERT OR REPLACE INTO issues
			(cv_issue_id, cv_volume_id, issue_number, cover_date, title, cached_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, issue.ID, issue.VolumeID, issue.IssueNumber, issue.CoverDate, issue.Title, now); err != nil {
			return fmt.Errorf("failed to cache issue %d: %w", issue.ID, err)
		}

		var pubYear any
		if year := coverYear(issue.CoverDate); year != 0 {
			pubYear = year
		}

		if _, err := tx.Exec(`
			INSERT OR REPLACE INTO issue_lookup
			(cv_volume_id, issue_number, cv_issue_id, publication_year)
			VALUES (?, ?, ?, ?)
		`, issue.VolumeID, issue.IssueNumber, issue.ID, pubYear); err != nil {
			return fmt.Errorf("failed to index issue %d: %w", issue.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit issues: %w", err)
	}
	return nil
}

// GetVolumeIssues returns all non-expired issues for a volume, ordered
// by issue-number string ascending. The order is lexical on the raw
// string, matching the catalog's own sort convention.
func (s *Store) GetVolumeIssues(volumeID int) ([]comicvine.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT cv_issue_id, cv_volume_id, issue_number, cover_date, title, cached_at
		FROM issues WHERE cv_volume_id = ?
		ORDER BY issue_number
	`, volumeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query issues for volume %d: %w", volumeID, err)
	}
	defer func() { _ = rows.Close() }()

	var issues []comicvine.Issue
	for rows.Next() {
		issue, cachedAt, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issue row: %w", err)
		}
		if s.isExpired(cachedAt) {
			continue
		}
		issues = append(issues, *issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read issue rows: %w", err)
	}
	return issues, nil
}

// GetVolumeForSeries resolves a normalized series name to a cached
// volume id. With a nonzero year the lookup is an exact composite-key
// match; otherwise the best mapping wins by confidence descending, then
// most recent start year. Returns 0 when no live mapping exists.
func (s *Store) GetVolumeForSeries(normalizedName string, year int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var row *sql.Row
	if year != 0 {
		row = s.db.QueryRow(`
			SELECT cv_volume_id, cached_at FROM series_mapping
			WHERE normalized_name = ? AND start_year = ?
		`, normalizedName, year)
	} else {
		row = s.db.QueryRow(`
			SELECT cv_volume_id, cached_at FROM series_mapping
			WHERE normalized_name = ?
			ORDER BY confidence DESC, start_year DESC
			LIMIT 1
		`, normalizedName)
	}

	var volumeID int
	var cachedAt string
	err := row.Scan(&volumeID, &cachedAt)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query series mapping for %q: %w", normalizedName, err)
	}
	if s.isExpired(cachedAt) {
		return 0, nil
	}
	return volumeID, nil
}

// PutSeriesMapping upserts a normalized-name → volume mapping keyed by
// (name, start year).
func (s *Store) PutSeriesMapping(normalizedName string, year, volumeID int, confidence float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO series_mapping
		(normalized_name, start_year, cv_volume_id, confidence, cached_at)
		VALUES (?, ?, ?, ?, ?)
	`, normalizedName, year, volumeID, confidence, s.now())
	if err != nil {
		return fmt.Errorf("failed to cache series mapping for %q: %w", normalizedName, err)
	}
	return nil
}

// Stats returns row counts for all tables, regardless of expiry.
func (s *Store) Stats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	for _, q := range []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM volumes", &st.Volumes},
		{"SELECT COUNT(*) FROM issues", &st.Issues},
		{"SELECT COUNT(*) FROM series_mapping", &st.Mappings},
	} {
		if err := s.db.QueryRow(q.query).Scan(q.dest); err != nil {
			return Stats{}, fmt.Errorf("failed to count cache rows: %w", err)
		}
	}
	return st, nil
}

// PurgeExpired deletes all expired volumes, issues and series mappings,
// plus lookup-index rows left referencing a deleted issue. Returns the
// total number of rows removed across all categories.
func (s *Store) PurgeExpired() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cutoff := s.cutoff()
	var removed int64

	for _, table := range []string{"volumes", "issues", "series_mapping"} {
		result, err := tx.Exec(
			fmt.Sprintf("DELETE FROM %s WHERE cached_at < ? OR cached_at NOT GLOB ?", table),
			cutoff, timestampGlob,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to purge %s: %w", table, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to count purged rows: %w", err)
		}
		removed += rows
	}

	result, err := tx.Exec(`
		DELETE FROM issue_lookup
		WHERE cv_issue_id NOT IN (SELECT cv_issue_id FROM issues)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge orphaned lookups: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged lookups: %w", err)
	}
	removed += rows

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit purge: %w", err)
	}

	if removed > 0 {
		slog.Info("Purged expired cache entries", "count", removed)
	}
	return removed, nil
}

// scanner abstracts sql.Row and sql.Rows for scanIssue.
type scanner interface {
	Scan(dest ...any) error
}

func scanIssue(row scanner) (*comicvine.Issue, string, error) {
	var issue comicvine.Issue
	var coverDate, title sql.NullString
	var cachedAt string

	err := row.Scan(&issue.ID, &issue.VolumeID, &issue.IssueNumber, &coverDate, &title, &cachedAt)
	if err != nil {
		return nil, "", err
	}
	issue.CoverDate = coverDate.String
	issue.Title = title.String
	return &issue, cachedAt, nil
}

// coverYear extracts the publication year from an ISO cover date,
// returning 0 when absent or malformed.
func coverYear(coverDate string) int {
	if len(coverDate) < 4 {
		return 0
	}
	year := 0
	for _, r := range coverDate[:4] {
		if r < '0' || r > '9' {
			return 0
		}
		year = year*10 + int(r-'0')
	}
	return year
}

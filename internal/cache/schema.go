package cache

// Schema for the persistent ComicVine cache. All rows carry a
// cached_at timestamp in "YYYY-MM-DD HH:MM:SS" UTC form; expiry is
// evaluated lazily at read time and enforced by PurgeExpired.
const schema = `
CREATE TABLE IF NOT EXISTS volumes (
	cv_volume_id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	start_year INTEGER,
	publisher TEXT,
	issue_count INTEGER,
	aliases TEXT,
	cached_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS issues (
	cv_issue_id INTEGER PRIMARY KEY,
	cv_volume_id INTEGER NOT NULL,
	issue_number TEXT NOT NULL,
	cover_date TEXT,
	title TEXT,
	cached_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS series_mapping (
	normalized_name TEXT NOT NULL,
	start_year INTEGER NOT NULL,
	cv_volume_id INTEGER NOT NULL,
	confidence REAL NOT NULL DEFAULT 1.0,
	cached_at TEXT NOT NULL,
	PRIMARY KEY (normalized_name, start_year)
);

CREATE TABLE IF NOT EXISTS issue_lookup (
	cv_volume_id INTEGER NOT NULL,
	issue_number TEXT NOT NULL,
	cv_issue_id INTEGER NOT NULL,
	publication_year INTEGER,
	PRIMARY KEY (cv_volume_id, issue_number)
);

CREATE INDEX IF NOT EXISTS idx_volumes_name ON volumes(name);
CREATE INDEX IF NOT EXISTS idx_volumes_start_year ON volumes(start_year);
CREATE INDEX IF NOT EXISTS idx_volumes_cached_at ON volumes(cached_at);
CREATE INDEX IF NOT EXISTS idx_issues_volume ON issues(cv_volume_id);
CREATE INDEX IF NOT EXISTS idx_issues_cached_at ON issues(cached_at);
CREATE INDEX IF NOT EXISTS idx_series_mapping_name ON series_mapping(normalized_name);
`

package comicvine

import "github.com/google/uuid"

// Volume is a series/collection in the ComicVine catalog. Instances are
// built from API responses and are not modified after construction;
// re-fetching the same id supersedes the old value.
type Volume struct {
	ID         int      `json:"id"`
	Name       string   `json:"name"`
	StartYear  int      `json:"start_year"` // 0 when unknown
	Publisher  string   `json:"publisher"`  // empty when unknown
	IssueCount int      `json:"issue_count"`
	Aliases    []string `json:"aliases,omitempty"`
}

// Issue is one published installment within a Volume. The issue number
// is a string: numbers like "1A" and "½" occur in the catalog.
type Issue struct {
	ID          int    `json:"id"`
	VolumeID    int    `json:"volume_id"`
	IssueNumber string `json:"issue_number"`
	CoverDate   string `json:"cover_date"` // ISO YYYY-MM-DD, or empty
	Title       string `json:"title,omitempty"`
}

// ParsedIssue is a raw issue reference produced by the reading-order
// scraper. Duplicates are permitted and meaningful: a reading order may
// revisit the same title.
type ParsedIssue struct {
	SeriesName  string
	IssueNumber string
	VolumeHint  string // e.g. "2" from "Vol. 2"
	YearHint    string // e.g. "2009" from "(2009)"
	Format      string // e.g. "Annual"
	Notes       string
}

// MatchedBook is a fully resolved (or explicitly unresolved) reading
// list entry. Volume holds the resolving volume's start year as a
// string, matching the ComicRack schema convention. Confidence is 1.0
// for a resolved match and 0.0 for an unmatched placeholder that still
// occupies its position in the output order.
type MatchedBook struct {
	Series     string
	Number     string
	Volume     string
	Year       string
	Format     string
	BookID     string
	VolumeID   int // ComicVine volume id, 0 when unmatched
	IssueID    int // ComicVine issue id, 0 when unmatched
	Confidence float64
}

// NewBookID generates a unique identifier for a reading list entry.
func NewBookID() string {
	return uuid.NewString()
}

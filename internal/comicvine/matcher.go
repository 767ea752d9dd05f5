package comicvine

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/lepinkainen/longbox/internal/normalize"
)

// Catalog is the subset of the ComicVine client the matcher needs.
type Catalog interface {
	SearchVolumes(ctx context.Context, query string, limit int) ([]Volume, error)
	GetVolumeIssues(ctx context.Context, volumeID int) ([]Issue, error)
}

// Store is the persistent cache surface the matcher resolves against
// before touching the catalog.
type Store interface {
	GetVolume(volumeID int) (*Volume, error)
	PutVolume(v *Volume) error
	GetIssue(volumeID int, issueNumber string) (*Issue, error)
	PutIssues(issues []Issue) error
	GetVolumeForSeries(normalizedName string, year int) (int, error)
	PutSeriesMapping(normalizedName string, year, volumeID int, confidence float64) error
}

// VolumePicker resolves an ambiguous series interactively. Returning
// nil declines the match; an error aborts the run.
type VolumePicker func(seriesName string, candidates []Volume) (*Volume, error)

// Mapping confidences: an automatic exact match outranks a human
// selection, which outranks an unverified prepopulated seed.
const (
	confidenceAutomatic = 1.0
	confidenceManual    = 0.9

	// A candidate below this score is not a confident match.
	scoreThreshold = 50

	defaultSearchLimit = 15
)

// Matcher resolves parsed issue references to ComicVine volumes and
// issues, cache-first. It is owned by a single sequential caller; the
// per-run issue memo is not synchronized.
type Matcher struct {
	catalog     Catalog
	store       Store
	picker      VolumePicker
	searchLimit int

	// Issue lists fetched this run, keyed by volume id then normalized
	// issue number. A volume's full list is fetched at most once per
	// process run.
	issueMemo map[int]map[string]Issue
}

// MatcherOption configures a Matcher.
type MatcherOption func(*Matcher)

// WithVolumePicker enables interactive resolution of ambiguous series.
func WithVolumePicker(picker VolumePicker) MatcherOption {
	return func(m *Matcher) {
		m.picker = picker
	}
}

// WithSearchLimit bounds the number of candidate volumes requested per
// catalog search.
func WithSearchLimit(limit int) MatcherOption {
	return func(m *Matcher) {
		if limit > 0 {
			m.searchLimit = limit
		}
	}
}

// NewMatcher creates a matcher over the given catalog and cache.
func NewMatcher(catalog Catalog, store Store, opts ...MatcherOption) *Matcher {
	m := &Matcher{
		catalog:     catalog,
		store:       store,
		searchLimit: defaultSearchLimit,
		issueMemo:   make(map[int]map[string]Issue),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Match resolves one parsed reference to a MatchedBook. A nil result
// with nil error means no confident match exists; callers synthesize
// the order-preserving placeholder. Catalog and storage failures
// propagate unretried.
func (m *Matcher) Match(ctx context.Context, parsed ParsedIssue) (*MatchedBook, error) {
	normalized := normalize.SeriesName(parsed.SeriesName)
	slog.Debug("Matching issue",
		"series", parsed.SeriesName,
		"number", parsed.IssueNumber,
		"normalized", normalized)

	volume, err := m.findVolume(ctx, normalized, parsed)
	if err != nil {
		return nil, err
	}
	if volume == nil {
		slog.Debug("No volume match", "series", parsed.SeriesName)
		return nil, nil
	}

	slog.Debug("Volume matched",
		"name", volume.Name,
		"start_year", volume.StartYear,
		"cv_volume_id", volume.ID)

	issue, err := m.findIssue(ctx, volume, parsed.IssueNumber)
	if err != nil {
		return nil, err
	}
	if issue == nil {
		slog.Debug("Issue not found in volume",
			"number", parsed.IssueNumber,
			"cv_volume_id", volume.ID)
		return nil, nil
	}

	// The publication year prefers the issue's cover date, falling
	// back to the volume's start year.
	pubYear := strconv.Itoa(volume.StartYear)
	if year := coverDateYear(issue.CoverDate); year != "" {
		pubYear = year
	}

	return &MatchedBook{
		Series:     volume.Name,
		Number:     parsed.IssueNumber,
		Volume:     strconv.Itoa(volume.StartYear),
		Year:       pubYear,
		Format:     parsed.Format,
		BookID:     NewBookID(),
		VolumeID:   volume.ID,
		IssueID:    issue.ID,
		Confidence: 1.0,
	}, nil
}

// targetYear derives the year to disambiguate against, in priority
// order: explicit year hint, a volume hint plausible as a year, then a
// year embedded in the raw series name. Zero means unknown.
func targetYear(parsed ParsedIssue) int {
	if parsed.YearHint != "" {
		if year, err := strconv.Atoi(parsed.YearHint); err == nil {
			return year
		}
	}
	if parsed.VolumeHint != "" {
		if vol, err := strconv.Atoi(parsed.VolumeHint); err == nil && vol > 1900 {
			return vol
		}
	}
	return normalize.YearFromName(parsed.SeriesName)
}

func (m *Matcher) findVolume(ctx context.Context, normalized string, parsed ParsedIssue) (*Volume, error) {
	year := targetYear(parsed)

	// Cache first. Prepopulated mappings carry an unresolved sentinel
	// id (-1) until verified against the catalog, so only positive ids
	// short-circuit the search.
	cachedID, err := m.store.GetVolumeForSeries(normalized, year)
	if err != nil {
		return nil, err
	}
	if cachedID > 0 {
		volume, err := m.store.GetVolume(cachedID)
		if err != nil {
			return nil, err
		}
		if volume != nil {
			slog.Debug("Series cache hit",
				"normalized", normalized,
				"name", volume.Name,
				"start_year", volume.StartYear)
			return volume, nil
		}
	}

	query := normalize.SearchQuery(parsed.SeriesName)
	slog.Debug("Searching ComicVine", "query", query)

	candidates, err := m.catalog.SearchVolumes(ctx, query, m.searchLimit)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		slog.Debug("No volumes found", "query", query)
		return nil, nil
	}

	// Persist every candidate, not just the winner, to accelerate
	// future disambiguation runs.
	for i := range candidates {
		if err := m.store.PutVolume(&candidates[i]); err != nil {
			return nil, err
		}
	}

	best := SelectBestVolume(candidates, normalized, year)
	if best != nil {
		if err := m.store.PutSeriesMapping(normalized, best.StartYear, best.ID, confidenceAutomatic); err != nil {
			return nil, err
		}
		return best, nil
	}

	if m.picker != nil {
		selected, err := m.picker(parsed.SeriesName, candidates)
		if err != nil {
			return nil, err
		}
		if selected != nil {
			if err := m.store.PutSeriesMapping(normalized, selected.StartYear, selected.ID, confidenceManual); err != nil {
				return nil, err
			}
			return selected, nil
		}
	}

	return nil, nil
}

// SelectBestVolume scores each candidate against the normalized query
// and the target year (0 for unknown) and returns the highest scorer,
// or nil when no candidate reaches the confidence threshold. Ties keep
// the earliest candidate in search order.
func SelectBestVolume(candidates []Volume, normalizedName string, year int) *Volume {
	bestScore := -1
	var best *Volume

	for i := range candidates {
		candidate := &candidates[i]
		score := scoreVolume(candidate, normalizedName, year)

		slog.Debug("Candidate scored",
			"name", candidate.Name,
			"start_year", candidate.StartYear,
			"score", score)

		if score > bestScore {
			bestScore = score
			best = candidate
		}
	}

	if bestScore >= scoreThreshold {
		return best
	}

	slog.Debug("Best candidate below threshold", "score", bestScore)
	return nil
}

func scoreVolume(candidate *Volume, normalizedName string, year int) int {
	score := 0
	candidateName := normalize.SeriesName(candidate.Name)

	if candidateName == normalizedName {
		score += 100
	} else if contains(candidateName, normalizedName) {
		score += 50
	}

	for _, alias := range candidate.Aliases {
		aliasName := normalize.SeriesName(alias)
		if aliasName == normalizedName {
			score += 80
			break
		}
		if contains(aliasName, normalizedName) {
			score += 30
		}
	}

	if year != 0 && candidate.StartYear != 0 {
		diff := candidate.StartYear - year
		if diff < 0 {
			diff = -diff
		}
		switch {
		case diff == 0:
			score += 30
		case diff == 1:
			score += 20
		case diff <= 3:
			score += 10
		}
	}

	// Larger runs are more likely the main series. Only the higher
	// bonus applies.
	if candidate.IssueCount > 50 {
		score += 10
	} else if candidate.IssueCount > 10 {
		score += 5
	}

	return score
}

func contains(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func (m *Matcher) findIssue(ctx context.Context, volume *Volume, issueNumber string) (*Issue, error) {
	lookup := normalize.IssueNumber(issueNumber)

	// Durable cache first, by the raw number then its canonical form.
	cached, err := m.store.GetIssue(volume.ID, issueNumber)
	if err != nil {
		return nil, err
	}
	if cached == nil && lookup != issueNumber {
		cached, err = m.store.GetIssue(volume.ID, lookup)
		if err != nil {
			return nil, err
		}
	}
	if cached != nil {
		return cached, nil
	}

	// Then the per-run memo, so a volume's full list is fetched at
	// most once per process run.
	if memo, ok := m.issueMemo[volume.ID]; ok {
		if issue, ok := memo[lookup]; ok {
			return &issue, nil
		}
		return nil, nil
	}

	issues, err := m.catalog.GetVolumeIssues(ctx, volume.ID)
	if err != nil {
		return nil, err
	}

	if err := m.store.PutIssues(issues); err != nil {
		return nil, err
	}

	memo := make(map[string]Issue, len(issues))
	for _, issue := range issues {
		key := normalize.IssueNumber(issue.IssueNumber)
		if _, exists := memo[key]; !exists {
			memo[key] = issue
		}
	}
	m.issueMemo[volume.ID] = memo

	if issue, ok := memo[lookup]; ok {
		return &issue, nil
	}
	return nil, nil
}

// coverDateYear returns the year portion of an ISO cover date, or ""
// when the date is absent or malformed.
func coverDateYear(coverDate string) string {
	if len(coverDate) < 4 {
		return ""
	}
	for _, r := range coverDate[:4] {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return coverDate[:4]
}

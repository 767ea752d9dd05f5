// Package scraper extracts ordered issue references from
// comicbookreadingorders.com reading order pages.
package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/lepinkainen/longbox/internal/comicvine"
	"github.com/lepinkainen/longbox/internal/ratelimit"
)

const (
	// DefaultBaseURL is the CBRO site root.
	DefaultBaseURL = "https://www.comicbookreadingorders.com"

	// DefaultCrawlDelay matches the site's robots.txt crawl-delay.
	DefaultCrawlDelay = 5 * time.Second

	userAgent = "longbox/1.0 (ComicRack list generator; respects robots.txt crawl-delay)"
)

var (
	// "Series Name #123" with optional volume, year in parentheses and
	// notes after a dash.
	issuePattern = regexp.MustCompile(
		`(?i)^(?P<series>.+?)\s*` +
			`(?:Vol\.?\s*(?P<volume>\d+)\s*)?` +
			`#(?P<number>[\d½]+(?:[./][\dA-Za-z]+)?)` +
			`(?:\s*\((?P<year>\d{4})\))?` +
			`(?:\s*[-–—]\s*(?P<notes>.+))?$`)

	// "Series Name Vol. X #Y" where the volume marker is mandatory.
	altPattern = regexp.MustCompile(
		`(?i)^(?P<series>.+?)\s+` +
			`Vol(?:ume)?\.?\s*(?P<volume>\d+)\s*` +
			`#(?P<number>[\d½]+(?:[./][\dA-Za-z]+)?)` +
			`(?:\s*\((?P<year>\d{4})\))?` +
			`(?:\s*[-–—]\s*(?P<notes>.+))?$`)

	// Trade paperback section titles look like "Blackest Night (2011)",
	// a title with a year but no # marker. They start the TPB breakdown
	// the parser must skip.
	tpbTitlePattern = regexp.MustCompile(`^[A-Za-z][\w\s:'\-]+\s*\(\d{4}\)$`)

	// Issue ranges like "#0-8" list TPB contents, not reading order.
	issueRangePattern = regexp.MustCompile(`#\d+\s*[-–—]\s*\d+`)

	yearLinePattern      = regexp.MustCompile(`^\(\d{4}\)$`)
	metadataLabelPattern = regexp.MustCompile(`^[A-Za-z ]+:  `)

	readingOrderSuffix = regexp.MustCompile(`(?i)-reading-order$`)
)

// Lines with these prefixes are navigation or page metadata.
var skipPrefixes = []string{
	"Read", "Click", "See", "Check", "Note:", "Powers:", "Created by",
}

// HTTPDoer is an interface for making HTTP requests.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Scraper fetches and parses CBRO pages. All fetches pass through a
// shared limiter that enforces the site's crawl delay.
type Scraper struct {
	baseURL    string
	httpClient HTTPDoer
	limiter    *ratelimit.Limiter
}

// Option is a functional option for configuring the Scraper.
type Option func(*Scraper)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c HTTPDoer) Option {
	return func(s *Scraper) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// WithBaseURL sets the site root used to resolve relative paths.
func WithBaseURL(base string) Option {
	return func(s *Scraper) {
		if base != "" {
			s.baseURL = strings.TrimSuffix(base, "/")
		}
	}
}

// WithCrawlDelay overrides the delay between page fetches.
func WithCrawlDelay(delay time.Duration) Option {
	return func(s *Scraper) {
		s.limiter = ratelimit.New("CBRO", 10000, time.Hour, delay)
	}
}

// New creates a scraper with the default site root and crawl delay.
func New(opts ...Option) *Scraper {
	s := &Scraper{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    ratelimit.New("CBRO", 10000, time.Hour, DefaultCrawlDelay),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// FetchReadingOrder fetches a reading order page and parses it into an
// ordered list of issue references. Relative paths are resolved against
// the site root.
func (s *Scraper) FetchReadingOrder(ctx context.Context, pageURL string) ([]comicvine.ParsedIssue, error) {
	body, err := s.fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	root, err := html.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page %s: %w", pageURL, err)
	}

	return parseReadingOrder(root), nil
}

func (s *Scraper) fetch(ctx context.Context, pageURL string) (io.ReadCloser, error) {
	if !strings.HasPrefix(pageURL, "http") {
		resolved, err := url.JoinPath(s.baseURL, pageURL)
		if err != nil {
			return nil, fmt.Errorf("invalid page path %q: %w", pageURL, err)
		}
		pageURL = resolved
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, pageURL)
	}

	return resp.Body, nil
}

// parseStats tracks how page lines were classified, for debug logging.
type parseStats struct {
	totalLines  int
	emptyLines  int
	tpbSection  int
	yearLines   int
	rangeLines  int
	noHash      int
	headerLines int
	noMatch     int
	shortSeries int
	parsed      int
}

// parseReadingOrder walks the page content and classifies each text
// line, stopping issue collection once the trade paperback breakdown
// section starts.
func parseReadingOrder(root *html.Node) []comicvine.ParsedIssue {
	content := findContent(root)
	lines := textLines(content)

	var issues []comicvine.ParsedIssue
	stats := parseStats{totalLines: len(lines)}
	inTPBSection := false

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			stats.emptyLines++
			continue
		}

		if isTPBSectionTitle(line) {
			inTPBSection = true
			slog.Debug("TPB section started", "line", line)
			continue
		}
		if inTPBSection {
			stats.tpbSection++
			continue
		}

		if yearLinePattern.MatchString(line) {
			stats.yearLines++
			continue
		}

		if issueRangePattern.MatchString(line) {
			stats.rangeLines++
			slog.Debug("Skipped range line", "line", line)
			continue
		}

		if parsed := parseIssueLine(line, &stats); parsed != nil {
			issues = append(issues, *parsed)
			stats.parsed++
		}
	}

	slog.Info("Parsing complete", "issues", stats.parsed, "lines", stats.totalLines)
	slog.Debug("Line breakdown",
		"empty", stats.emptyLines,
		"tpb_section", stats.tpbSection,
		"year", stats.yearLines,
		"range", stats.rangeLines,
		"no_hash", stats.noHash,
		"headers", stats.headerLines,
		"no_match", stats.noMatch,
		"short_series", stats.shortSeries)

	return issues
}

// findContent returns the page's article or entry-content element,
// falling back to the whole document.
func findContent(root *html.Node) *html.Node {
	if article := findElement(root, "article", "", ""); article != nil {
		return article
	}
	if div := findElement(root, "div", "class", "entry-content"); div != nil {
		return div
	}
	slog.Debug("No article or entry-content element, using full page")
	return root
}

func findElement(n *html.Node, tag, attrKey, attrValue string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		if attrKey == "" {
			return n
		}
		for _, attr := range n.Attr {
			if attr.Key == attrKey && strings.Contains(attr.Val, attrValue) {
				return n
			}
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findElement(child, tag, attrKey, attrValue); found != nil {
			return found
		}
	}
	return nil
}

// textLines collects the trimmed text nodes under n in document order,
// one line per node, skipping script and style content.
func textLines(n *html.Node) []string {
	var lines []string

	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && (node.Data == "script" || node.Data == "style") {
			return
		}
		if node.Type == html.TextNode {
			if text := strings.TrimSpace(node.Data); text != "" {
				lines = append(lines, text)
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)

	return lines
}

func isTPBSectionTitle(line string) bool {
	if strings.Contains(line, "#") {
		return false
	}
	return tpbTitlePattern.MatchString(line)
}

// parseIssueLine parses one text line into an issue reference, or nil
// when the line is navigation, metadata or otherwise not an issue.
func parseIssueLine(line string, stats *parseStats) *comicvine.ParsedIssue {
	if len(line) < 5 || !strings.Contains(line, "#") {
		stats.noHash++
		return nil
	}

	for _, prefix := range skipPrefixes {
		if strings.HasPrefix(line, prefix) {
			stats.headerLines++
			slog.Debug("Skipped header line", "line", line)
			return nil
		}
	}

	// Lines starting with ":" continue a metadata field from the
	// previous line, e.g. "First Appearance" / ":  Issue #1".
	if strings.HasPrefix(line, ":") {
		stats.headerLines++
		return nil
	}
	if strings.Contains(line, ":  ") && metadataLabelPattern.MatchString(line) {
		stats.headerLines++
		slog.Debug("Skipped metadata line", "line", line)
		return nil
	}

	groups := matchGroups(issuePattern, line)
	if groups == nil {
		groups = matchGroups(altPattern, line)
	}
	if groups == nil {
		stats.noMatch++
		slog.Debug("No pattern match", "line", line)
		return nil
	}

	series := strings.TrimSpace(groups["series"])
	if len(series) < 2 {
		stats.shortSeries++
		return nil
	}

	notes := groups["notes"]
	format := detectFormat(series, notes)

	return &comicvine.ParsedIssue{
		SeriesName:  series,
		IssueNumber: groups["number"],
		VolumeHint:  groups["volume"],
		YearHint:    groups["year"],
		Format:      format,
		Notes:       notes,
	}
}

func matchGroups(pattern *regexp.Regexp, line string) map[string]string {
	match := pattern.FindStringSubmatch(line)
	if match == nil {
		return nil
	}

	groups := make(map[string]string)
	for i, name := range pattern.SubexpNames() {
		if name != "" {
			groups[name] = match[i]
		}
	}
	return groups
}

// detectFormat derives a book format from the series name or the notes
// following the issue number. Notes outrank the series name.
func detectFormat(series, notes string) string {
	format := ""

	switch seriesLower := strings.ToLower(series); {
	case strings.Contains(seriesLower, "annual"):
		format = "Annual"
	case strings.Contains(seriesLower, "special"):
		format = "Special"
	case strings.Contains(seriesLower, "giant"):
		format = "Giant-Size"
	}

	if notes != "" {
		switch notesLower := strings.ToLower(notes); {
		case strings.Contains(notesLower, "second feature"):
			format = "Second Feature"
		case strings.Contains(notesLower, "backup"):
			format = "Backup"
		}
	}

	return format
}

var titleCaser = cases.Title(language.English)

// ReadingOrderName derives a human-readable list name from a reading
// order URL slug.
func ReadingOrderName(pageURL string) string {
	path := strings.TrimRight(pageURL, "/")
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		path = path[idx+1:]
	}

	path = readingOrderSuffix.ReplaceAllString(path, "")
	return titleCaser.String(strings.ReplaceAll(path, "-", " "))
}

package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// IndexPage is one CBRO index page to scan for reading order links.
type IndexPage struct {
	URL       string
	Publisher string
	Category  string
}

// DefaultIndexPages lists the site's known index pages. Master reading
// order pages are reading orders themselves, not link indexes.
var DefaultIndexPages = []IndexPage{
	{URL: DefaultBaseURL + "/marvel/characters/", Publisher: "Marvel", Category: "characters"},
	{URL: DefaultBaseURL + "/marvel/events/", Publisher: "Marvel", Category: "events"},
	{URL: DefaultBaseURL + "/marvel/marvel-master-reading-order-part-1/", Publisher: "Marvel", Category: "master"},
	{URL: DefaultBaseURL + "/dc/characters/", Publisher: "DC", Category: "characters"},
	{URL: DefaultBaseURL + "/dc/events/", Publisher: "DC", Category: "events"},
	{URL: DefaultBaseURL + "/dc/dc-master-reading-order-part-1/", Publisher: "DC", Category: "master"},
	{URL: DefaultBaseURL + "/other/", Publisher: "Other", Category: "characters"},
}

// ReadingOrderEntry is one discovered reading order.
type ReadingOrderEntry struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	Publisher string `json:"publisher"`
	Category  string `json:"category"`
}

// DisplayName returns the entry formatted for pickers and listings.
func (e ReadingOrderEntry) DisplayName() string {
	return fmt.Sprintf("%s (%s - %s)", e.Name, e.Publisher, titleCaser.String(e.Category))
}

// orderCache is the on-disk discovery cache.
type orderCache struct {
	CachedAt string              `json:"cached_at"`
	Entries  []ReadingOrderEntry `json:"entries"`
}

// ProgressFunc reports discovery progress as current/total plus a
// human-readable message.
type ProgressFunc func(current, total int, message string)

// LoadCachedOrders loads previously discovered reading orders from the
// cache file. Returns nil without error when no usable cache exists.
func LoadCachedOrders(path string) ([]ReadingOrderEntry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		slog.Debug("No reading order cache found", "path", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read reading order cache: %w", err)
	}

	var cached orderCache
	if err := json.Unmarshal(data, &cached); err != nil {
		slog.Warn("Failed to parse reading order cache", "path", path, "error", err)
		return nil, nil
	}

	slog.Info("Loaded cached reading orders", "count", len(cached.Entries), "cached_at", cached.CachedAt)
	return cached.Entries, nil
}

// SaveOrdersCache writes discovered reading orders to the cache file.
func SaveOrdersCache(path string, entries []ReadingOrderEntry) error {
	cached := orderCache{
		CachedAt: time.Now().UTC().Format("2006-01-02 15:04:05"),
		Entries:  entries,
	}

	data, err := json.MarshalIndent(cached, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal reading order cache: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create cache directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write reading order cache: %w", err)
	}

	slog.Info("Saved reading orders to cache", "count", len(entries), "path", path)
	return nil
}

// FetchAllReadingOrders scans the given index pages and returns every
// discovered reading order, sorted by publisher, category and name.
// Failed index pages are logged and skipped.
func (s *Scraper) FetchAllReadingOrders(ctx context.Context, pages []IndexPage, progress ProgressFunc) ([]ReadingOrderEntry, error) {
	var entries []ReadingOrderEntry

	for i, page := range pages {
		if progress != nil {
			progress(i, len(pages), fmt.Sprintf("Fetching %s %s...", page.Publisher, page.Category))
		}

		if page.Category == "master" {
			entries = append(entries, ReadingOrderEntry{
				Name:      fmt.Sprintf("%s Master Reading Order", page.Publisher),
				URL:       page.URL,
				Publisher: page.Publisher,
				Category:  page.Category,
			})
			continue
		}

		pageEntries, err := s.fetchIndexPage(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			slog.Warn("Failed to fetch index page", "url", page.URL, "error", err)
			continue
		}
		entries = append(entries, pageEntries...)
	}

	if progress != nil {
		progress(len(pages), len(pages), "Done")
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Publisher != entries[j].Publisher {
			return entries[i].Publisher < entries[j].Publisher
		}
		if entries[i].Category != entries[j].Category {
			return entries[i].Category < entries[j].Category
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})

	return entries, nil
}

func (s *Scraper) fetchIndexPage(ctx context.Context, page IndexPage) ([]ReadingOrderEntry, error) {
	body, err := s.fetch(ctx, page.URL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	root, err := html.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse index page %s: %w", page.URL, err)
	}

	return parseIndexPage(root, page), nil
}

// parseIndexPage extracts reading order links from an index page.
func parseIndexPage(root *html.Node, page IndexPage) []ReadingOrderEntry {
	base, err := url.Parse(page.URL)
	if err != nil {
		return nil
	}

	content := findContent(root)
	seen := make(map[string]struct{})
	var entries []ReadingOrderEntry

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if entry, ok := linkEntry(n, base, page); ok {
				if _, dup := seen[entry.URL]; !dup {
					seen[entry.URL] = struct{}{}
					entries = append(entries, entry)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(content)

	return entries
}

func linkEntry(n *html.Node, base *url.URL, page IndexPage) (ReadingOrderEntry, bool) {
	var href string
	for _, attr := range n.Attr {
		if attr.Key == "href" {
			href = attr.Val
			break
		}
	}
	if !isReadingOrderLink(href) {
		return ReadingOrderEntry{}, false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ReadingOrderEntry{}, false
	}
	fullURL := base.ResolveReference(ref).String()

	name := strings.TrimSpace(nodeText(n))
	if len(name) < 2 {
		name = ReadingOrderName(href)
	}
	if name == "" {
		return ReadingOrderEntry{}, false
	}

	return ReadingOrderEntry{
		Name:      name,
		URL:       fullURL,
		Publisher: page.Publisher,
		Category:  page.Category,
	}, true
}

// isReadingOrderLink filters index page links down to reading order
// pages, dropping anchors, assets and admin links.
func isReadingOrderLink(href string) bool {
	lower := strings.ToLower(href)
	if !strings.Contains(lower, "reading-order") {
		return false
	}
	if strings.HasPrefix(href, "#") || strings.Contains(href, "wp-content") {
		return false
	}
	for _, fragment := range []string{"wp-admin", "wp-login", "feed", "comment", "?"} {
		if strings.Contains(lower, fragment) {
			return false
		}
	}
	return true
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return sb.String()
}

package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/longbox/internal/comicvine"
)

func newTestScraper(server *httptest.Server) *Scraper {
	return New(
		WithBaseURL(server.URL),
		WithHTTPClient(server.Client()),
		WithCrawlDelay(0),
	)
}

func TestParseIssueLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want *comicvine.ParsedIssue
	}{
		{
			name: "plain issue",
			line: "Green Lantern #43",
			want: &comicvine.ParsedIssue{SeriesName: "Green Lantern", IssueNumber: "43"},
		},
		{
			name: "volume marker",
			line: "Green Lantern Vol. 2 #76",
			want: &comicvine.ParsedIssue{SeriesName: "Green Lantern", IssueNumber: "76", VolumeHint: "2"},
		},
		{
			name: "volume and year",
			line: "Iron Man Vol. 3 #1 (1998)",
			want: &comicvine.ParsedIssue{SeriesName: "Iron Man", IssueNumber: "1", VolumeHint: "3", YearHint: "1998"},
		},
		{
			name: "notes after dash",
			line: "Tales of Suspense #39 - First Iron Man",
			want: &comicvine.ParsedIssue{SeriesName: "Tales of Suspense", IssueNumber: "39", Notes: "First Iron Man"},
		},
		{
			name: "annual format from series",
			line: "Batman Annual #14",
			want: &comicvine.ParsedIssue{SeriesName: "Batman Annual", IssueNumber: "14", Format: "Annual"},
		},
		{
			name: "second feature from notes",
			line: "Detective Comics #854 - Second Feature",
			want: &comicvine.ParsedIssue{SeriesName: "Detective Comics", IssueNumber: "854", Notes: "Second Feature", Format: "Second Feature"},
		},
		{
			name: "fraction issue number",
			line: "Gen 13 #½",
			want: &comicvine.ParsedIssue{SeriesName: "Gen 13", IssueNumber: "½"},
		},
		{
			name: "decimal issue number",
			line: "Dark Reign: The List #8.1",
			want: &comicvine.ParsedIssue{SeriesName: "Dark Reign: The List", IssueNumber: "8.1"},
		},
		{name: "no hash", line: "Some prose about comics", want: nil},
		{name: "too short", line: "#1", want: nil},
		{name: "navigation", line: "Read the Blackest Night order here #1", want: nil},
		{name: "metadata continuation", line: ":  Issue #1", want: nil},
		{name: "metadata label", line: "First Appearance:  Issue #1", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stats parseStats
			got := parseIssueLine(tt.line, &stats)
			assert.Equal(t, tt.want, got)
		})
	}
}

const readingOrderHTML = `<html><body>
<article>
<h1>Blackest Night Reading Order</h1>
<p>Green Lantern #43</p>
<p>Blackest Night #1</p>
<p>(2009)</p>
<p>Green Lantern Vol. 4 #44</p>
<p>Blackest Night #0-8</p>
<p>Blackest Night (2011)</p>
<p>Green Lantern #45</p>
</article>
<div>Footer text #99</div>
</body></html>`

func TestFetchReadingOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/dc/events/blackest-night-reading-order/", r.URL.Path)
		assert.Contains(t, r.Header.Get("User-Agent"), "longbox")
		_, _ = w.Write([]byte(readingOrderHTML))
	}))
	defer server.Close()

	s := newTestScraper(server)
	issues, err := s.FetchReadingOrder(context.Background(), "/dc/events/blackest-night-reading-order/")
	require.NoError(t, err)

	// The standalone year, the issue range, everything after the TPB
	// section title and content outside the article are all skipped.
	require.Len(t, issues, 3)
	assert.Equal(t, "Green Lantern", issues[0].SeriesName)
	assert.Equal(t, "43", issues[0].IssueNumber)
	assert.Equal(t, "Blackest Night", issues[1].SeriesName)
	assert.Equal(t, "Green Lantern", issues[2].SeriesName)
	assert.Equal(t, "4", issues[2].VolumeHint)
	assert.Equal(t, "44", issues[2].IssueNumber)
}

func TestFetchReadingOrderHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	s := newTestScraper(server)
	_, err := s.FetchReadingOrder(context.Background(), "/gone/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestFetchRespectsCrawlDelay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><article></article></body></html>`))
	}))
	defer server.Close()

	s := New(
		WithBaseURL(server.URL),
		WithHTTPClient(server.Client()),
		WithCrawlDelay(50*time.Millisecond),
	)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := s.FetchReadingOrder(context.Background(), "/page/")
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestIsTPBSectionTitle(t *testing.T) {
	assert.True(t, isTPBSectionTitle("Blackest Night (2011)"))
	assert.True(t, isTPBSectionTitle("Green Lantern: Rebirth (2005)"))
	assert.False(t, isTPBSectionTitle("Green Lantern #43 (2009)"))
	assert.False(t, isTPBSectionTitle("Just a heading"))
}

func TestReadingOrderName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"/dc/characters/batman-reading-order/", "Batman"},
		{"/marvel/events/secret-wars-reading-order", "Secret Wars"},
		{"https://www.comicbookreadingorders.com/dc/events/blackest-night-reading-order/", "Blackest Night"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ReadingOrderName(tt.url))
	}
}

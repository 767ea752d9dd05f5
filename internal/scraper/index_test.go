package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/longbox/internal/testutil"
)

const indexHTML = `<html><body>
<div class="entry-content">
<a href="/dc/characters/batman-reading-order/">Batman</a>
<a href="/dc/characters/batman-reading-order/">Batman again</a>
<a href="/dc/characters/nightwing-reading-order/"></a>
<a href="/wp-content/uploads/batman-reading-order.jpg">image</a>
<a href="/dc/characters/flash-reading-order/?replytocom=5">reply</a>
<a href="#top">back to top</a>
<a href="/about/">About</a>
</div>
</body></html>`

func TestFetchAllReadingOrders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(indexHTML))
	}))
	defer server.Close()

	s := newTestScraper(server)
	pages := []IndexPage{
		{URL: server.URL + "/dc/characters/", Publisher: "DC", Category: "characters"},
		{URL: server.URL + "/dc/dc-master-reading-order-part-1/", Publisher: "DC", Category: "master"},
	}

	var messages []string
	entries, err := s.FetchAllReadingOrders(context.Background(), pages, func(current, total int, message string) {
		messages = append(messages, message)
	})
	require.NoError(t, err)

	// Duplicates, asset links, query links and anchors are filtered;
	// the nameless link falls back to its URL slug; the master page
	// becomes an entry directly.
	require.Len(t, entries, 3)
	assert.Equal(t, "Batman", entries[0].Name)
	assert.Equal(t, server.URL+"/dc/characters/batman-reading-order/", entries[0].URL)
	assert.Equal(t, "Nightwing", entries[1].Name)
	assert.Equal(t, "DC Master Reading Order", entries[2].Name)
	assert.Equal(t, "master", entries[2].Category)

	require.NotEmpty(t, messages)
	assert.Equal(t, "Done", messages[len(messages)-1])
}

func TestFetchAllReadingOrdersSkipsFailedPages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken/" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(indexHTML))
	}))
	defer server.Close()

	s := newTestScraper(server)
	pages := []IndexPage{
		{URL: server.URL + "/broken/", Publisher: "Marvel", Category: "events"},
		{URL: server.URL + "/dc/characters/", Publisher: "DC", Category: "characters"},
	}

	entries, err := s.FetchAllReadingOrders(context.Background(), pages, nil)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestOrdersCacheRoundTrip(t *testing.T) {
	env := testutil.NewTestEnv(t)
	path := env.Path("cache", "reading_orders_cache.json")

	entries := []ReadingOrderEntry{
		{Name: "Batman", URL: "https://example.com/batman-reading-order/", Publisher: "DC", Category: "characters"},
		{Name: "Secret Wars", URL: "https://example.com/secret-wars-reading-order/", Publisher: "Marvel", Category: "events"},
	}
	require.NoError(t, SaveOrdersCache(path, entries))

	loaded, err := LoadCachedOrders(path)
	require.NoError(t, err)
	assert.Equal(t, entries, loaded)
}

func TestLoadCachedOrdersMissing(t *testing.T) {
	env := testutil.NewTestEnv(t)

	loaded, err := LoadCachedOrders(env.Path("nope.json"))
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestLoadCachedOrdersCorrupt(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.WriteFileString("cache.json", "{not json")

	loaded, err := LoadCachedOrders(env.Path("cache.json"))
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestDisplayName(t *testing.T) {
	entry := ReadingOrderEntry{Name: "Batman", Publisher: "DC", Category: "characters"}
	assert.Equal(t, "Batman (DC - Characters)", entry.DisplayName())
}

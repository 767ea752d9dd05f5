package comicvine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	searchResults []Volume
	issuesByVol   map[int][]Issue

	searchCalls int
	issueCalls  int
}

func (f *fakeCatalog) SearchVolumes(_ context.Context, _ string, _ int) ([]Volume, error) {
	f.searchCalls++
	return f.searchResults, nil
}

func (f *fakeCatalog) GetVolumeIssues(_ context.Context, volumeID int) ([]Issue, error) {
	f.issueCalls++
	return f.issuesByVol[volumeID], nil
}

type mappingKey struct {
	name string
	year int
}

type fakeStore struct {
	volumes  map[int]Volume
	issues   map[int]map[string]Issue
	mappings map[mappingKey]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		volumes:  make(map[int]Volume),
		issues:   make(map[int]map[string]Issue),
		mappings: make(map[mappingKey]int),
	}
}

func (f *fakeStore) GetVolume(volumeID int) (*Volume, error) {
	if v, ok := f.volumes[volumeID]; ok {
		return &v, nil
	}
	return nil, nil
}

func (f *fakeStore) PutVolume(v *Volume) error {
	f.volumes[v.ID] = *v
	return nil
}

func (f *fakeStore) GetIssue(volumeID int, issueNumber string) (*Issue, error) {
	if issue, ok := f.issues[volumeID][issueNumber]; ok {
		return &issue, nil
	}
	return nil, nil
}

func (f *fakeStore) PutIssues(issues []Issue) error {
	for _, issue := range issues {
		if f.issues[issue.VolumeID] == nil {
			f.issues[issue.VolumeID] = make(map[string]Issue)
		}
		f.issues[issue.VolumeID][issue.IssueNumber] = issue
	}
	return nil
}

func (f *fakeStore) GetVolumeForSeries(normalizedName string, year int) (int, error) {
	if id, ok := f.mappings[mappingKey{normalizedName, year}]; ok {
		return id, nil
	}
	// Year-agnostic fallback mirrors the real store's behavior.
	for key, id := range f.mappings {
		if key.name == normalizedName {
			return id, nil
		}
	}
	return 0, nil
}

func (f *fakeStore) PutSeriesMapping(normalizedName string, year, volumeID int, _ float64) error {
	f.mappings[mappingKey{normalizedName, year}] = volumeID
	return nil
}

func TestScoreVolumeExactName(t *testing.T) {
	v := &Volume{Name: "Batman", StartYear: 2011, IssueCount: 5}
	assert.Equal(t, 100, scoreVolume(v, "batman", 0))
}

func TestScoreVolumeSubstring(t *testing.T) {
	v := &Volume{Name: "Batman and Robin", IssueCount: 5}
	assert.Equal(t, 50, scoreVolume(v, "batman", 0))
}

func TestScoreVolumeAliasExactWins(t *testing.T) {
	// The first exact alias ends alias scoring; a later substring
	// alias contributes nothing.
	v := &Volume{
		Name:    "The Uncanny X-Men",
		Aliases: []string{"X-Men", "X-Men Adventures"},
	}
	// name substring 50 + alias exact 80
	assert.Equal(t, 130, scoreVolume(v, "x men", 0))
}

func TestScoreVolumeAliasSubstringsAccumulate(t *testing.T) {
	v := &Volume{
		Name:    "Something Else",
		Aliases: []string{"Batman Chronicles", "Batman Tales"},
	}
	assert.Equal(t, 60, scoreVolume(v, "batman", 0))
}

func TestScoreVolumeYearProximity(t *testing.T) {
	tests := []struct {
		name      string
		startYear int
		year      int
		want      int
	}{
		{"exact", 1999, 1999, 130},
		{"off by one", 2000, 1999, 120},
		{"off by three", 2002, 1999, 110},
		{"off by four", 2003, 1999, 100},
		{"unknown target", 1999, 0, 100},
		{"unknown start", 0, 1999, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &Volume{Name: "Batman", StartYear: tt.startYear}
			assert.Equal(t, tt.want, scoreVolume(v, "batman", tt.year))
		})
	}
}

func TestScoreVolumeSizeBonusExclusive(t *testing.T) {
	// A 200-issue run earns the large-run bonus only, not both tiers.
	large := &Volume{Name: "Batman", IssueCount: 200}
	assert.Equal(t, 110, scoreVolume(large, "batman", 0))

	medium := &Volume{Name: "Batman", IssueCount: 25}
	assert.Equal(t, 105, scoreVolume(medium, "batman", 0))

	small := &Volume{Name: "Batman", IssueCount: 10}
	assert.Equal(t, 100, scoreVolume(small, "batman", 0))
}

func TestSelectBestVolumeThreshold(t *testing.T) {
	candidates := []Volume{
		{ID: 1, Name: "Totally Unrelated", IssueCount: 500},
	}
	assert.Nil(t, SelectBestVolume(candidates, "batman", 0))
}

func TestSelectBestVolumeTieKeepsSearchOrder(t *testing.T) {
	candidates := []Volume{
		{ID: 10, Name: "Batman", StartYear: 1999},
		{ID: 20, Name: "Batman", StartYear: 1999},
	}
	best := SelectBestVolume(candidates, "batman", 1999)
	require.NotNil(t, best)
	assert.Equal(t, 10, best.ID)
}

func TestMatchConfidentResult(t *testing.T) {
	catalog := &fakeCatalog{
		searchResults: []Volume{
			{ID: 2127, Name: "Amazing Spider-Man", StartYear: 1999, IssueCount: 58},
			{ID: 9999, Name: "Spider-Man Unlimited", StartYear: 1993, IssueCount: 22},
		},
		issuesByVol: map[int][]Issue{
			2127: {
				{ID: 105001, VolumeID: 2127, IssueNumber: "1", CoverDate: "1999-01-01"},
				{ID: 105002, VolumeID: 2127, IssueNumber: "2", CoverDate: "1999-02-01"},
			},
		},
	}
	store := newFakeStore()
	m := NewMatcher(catalog, store)

	book, err := m.Match(context.Background(), ParsedIssue{
		SeriesName:  "The Amazing Spider-Man Vol. 2 (1999)",
		IssueNumber: "2",
	})
	require.NoError(t, err)
	require.NotNil(t, book)

	assert.Equal(t, "Amazing Spider-Man", book.Series)
	assert.Equal(t, "2", book.Number)
	assert.Equal(t, "1999", book.Volume)
	assert.Equal(t, "1999", book.Year)
	assert.Equal(t, 2127, book.VolumeID)
	assert.Equal(t, 105002, book.IssueID)
	assert.Equal(t, 1.0, book.Confidence)
	assert.NotEmpty(t, book.BookID)

	// The winning mapping and all candidates were persisted.
	assert.Len(t, store.volumes, 2)
	id, err := store.GetVolumeForSeries("amazing spider man", 1999)
	require.NoError(t, err)
	assert.Equal(t, 2127, id)
}

func TestMatchCacheHitSkipsSearch(t *testing.T) {
	catalog := &fakeCatalog{}
	store := newFakeStore()
	require.NoError(t, store.PutVolume(&Volume{ID: 2127, Name: "Amazing Spider-Man", StartYear: 1999}))
	require.NoError(t, store.PutSeriesMapping("amazing spider man", 1999, 2127, 1.0))
	require.NoError(t, store.PutIssues([]Issue{
		{ID: 105001, VolumeID: 2127, IssueNumber: "1", CoverDate: "1999-01-01"},
	}))

	m := NewMatcher(catalog, store)
	book, err := m.Match(context.Background(), ParsedIssue{
		SeriesName:  "Amazing Spider-Man (1999)",
		IssueNumber: "1",
	})
	require.NoError(t, err)
	require.NotNil(t, book)

	assert.Equal(t, 0, catalog.searchCalls)
	assert.Equal(t, 0, catalog.issueCalls)
}

func TestMatchUnresolvedSentinelTriggersSearch(t *testing.T) {
	// Prepopulated mappings carry -1 until verified against the
	// catalog; they must not short-circuit the search.
	catalog := &fakeCatalog{
		searchResults: []Volume{
			{ID: 2127, Name: "Amazing Spider-Man", StartYear: 1999, IssueCount: 58},
		},
		issuesByVol: map[int][]Issue{
			2127: {{ID: 105001, VolumeID: 2127, IssueNumber: "1", CoverDate: "1999-01-01"}},
		},
	}
	store := newFakeStore()
	require.NoError(t, store.PutSeriesMapping("amazing spider man", 1999, -1, 0.5))

	m := NewMatcher(catalog, store)
	book, err := m.Match(context.Background(), ParsedIssue{
		SeriesName:  "Amazing Spider-Man (1999)",
		IssueNumber: "1",
	})
	require.NoError(t, err)
	require.NotNil(t, book)
	assert.Equal(t, 1, catalog.searchCalls)

	id, err := store.GetVolumeForSeries("amazing spider man", 1999)
	require.NoError(t, err)
	assert.Equal(t, 2127, id)
}

func TestMatchAmbiguousInvokesPicker(t *testing.T) {
	candidates := []Volume{
		{ID: 1, Name: "Alpha Flight Special", StartYear: 1991},
		{ID: 2, Name: "Alpha Flight Annual", StartYear: 1986},
	}
	catalog := &fakeCatalog{
		searchResults: candidates,
		issuesByVol: map[int][]Issue{
			2: {{ID: 7, VolumeID: 2, IssueNumber: "1", CoverDate: "1986-06-01"}},
		},
	}
	store := newFakeStore()

	var pickerSeries string
	picker := func(series string, got []Volume) (*Volume, error) {
		pickerSeries = series
		return &got[1], nil
	}
	m := NewMatcher(catalog, store, WithVolumePicker(picker))

	book, err := m.Match(context.Background(), ParsedIssue{
		SeriesName:  "Some Obscure Run",
		IssueNumber: "1",
	})
	require.NoError(t, err)
	require.NotNil(t, book)

	assert.Equal(t, "Some Obscure Run", pickerSeries)
	assert.Equal(t, 2, book.VolumeID)

	id, err := store.GetVolumeForSeries("some obscure run", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, id)
}

func TestMatchPickerSkipYieldsNoMatch(t *testing.T) {
	catalog := &fakeCatalog{
		searchResults: []Volume{{ID: 1, Name: "Unrelated Thing"}},
	}
	m := NewMatcher(catalog, newFakeStore(), WithVolumePicker(
		func(string, []Volume) (*Volume, error) { return nil, nil },
	))

	book, err := m.Match(context.Background(), ParsedIssue{
		SeriesName:  "Some Obscure Run",
		IssueNumber: "1",
	})
	require.NoError(t, err)
	assert.Nil(t, book)
}

func TestMatchPickerErrorPropagates(t *testing.T) {
	catalog := &fakeCatalog{
		searchResults: []Volume{{ID: 1, Name: "Unrelated Thing"}},
	}
	abort := errors.New("stop processing")
	m := NewMatcher(catalog, newFakeStore(), WithVolumePicker(
		func(string, []Volume) (*Volume, error) { return nil, abort },
	))

	_, err := m.Match(context.Background(), ParsedIssue{
		SeriesName:  "Some Obscure Run",
		IssueNumber: "1",
	})
	assert.ErrorIs(t, err, abort)
}

func TestMatchFetchesVolumeIssuesOncePerRun(t *testing.T) {
	catalog := &fakeCatalog{
		searchResults: []Volume{
			{ID: 2127, Name: "Amazing Spider-Man", StartYear: 1999, IssueCount: 58},
		},
		issuesByVol: map[int][]Issue{
			2127: {{ID: 105001, VolumeID: 2127, IssueNumber: "1", CoverDate: "1999-01-01"}},
		},
	}
	store := newFakeStore()
	m := NewMatcher(catalog, store)

	for _, number := range []string{"1", "500", "501"} {
		_, err := m.Match(context.Background(), ParsedIssue{
			SeriesName:  "Amazing Spider-Man (1999)",
			IssueNumber: number,
		})
		require.NoError(t, err)
	}

	// One fetch populated the memo; the misses did not refetch.
	assert.Equal(t, 1, catalog.issueCalls)
}

func TestMatchNormalizesIssueNumberForLookup(t *testing.T) {
	catalog := &fakeCatalog{
		searchResults: []Volume{
			{ID: 300, Name: "Gen 13", StartYear: 1995, IssueCount: 77},
		},
		issuesByVol: map[int][]Issue{
			300: {{ID: 42, VolumeID: 300, IssueNumber: "0.5", CoverDate: "1995-03-01"}},
		},
	}
	m := NewMatcher(catalog, newFakeStore())

	book, err := m.Match(context.Background(), ParsedIssue{
		SeriesName:  "Gen 13 (1995)",
		IssueNumber: "1/2",
	})
	require.NoError(t, err)
	require.NotNil(t, book)

	assert.Equal(t, 42, book.IssueID)
	// The reference keeps its original form in the output.
	assert.Equal(t, "1/2", book.Number)
}

func TestMatchIssueMissingYieldsNoMatch(t *testing.T) {
	catalog := &fakeCatalog{
		searchResults: []Volume{
			{ID: 2127, Name: "Amazing Spider-Man", StartYear: 1999, IssueCount: 58},
		},
		issuesByVol: map[int][]Issue{2127: {}},
	}
	m := NewMatcher(catalog, newFakeStore())

	book, err := m.Match(context.Background(), ParsedIssue{
		SeriesName:  "Amazing Spider-Man (1999)",
		IssueNumber: "700",
	})
	require.NoError(t, err)
	assert.Nil(t, book)
}

func TestCoverDateYear(t *testing.T) {
	assert.Equal(t, "1999", coverDateYear("1999-01-01"))
	assert.Equal(t, "", coverDateYear(""))
	assert.Equal(t, "", coverDateYear("n/a"))
}

func TestTargetYearPriority(t *testing.T) {
	tests := []struct {
		name   string
		parsed ParsedIssue
		want   int
	}{
		{"year hint wins", ParsedIssue{SeriesName: "Batman (1940)", YearHint: "2011", VolumeHint: "2016"}, 2011},
		{"volume hint as year", ParsedIssue{SeriesName: "Batman (1940)", VolumeHint: "2016"}, 2016},
		{"small volume hint ignored", ParsedIssue{SeriesName: "Batman (1940)", VolumeHint: "2"}, 1940},
		{"name year fallback", ParsedIssue{SeriesName: "Batman (1940)"}, 1940},
		{"unknown", ParsedIssue{SeriesName: "Batman"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, targetYear(tt.parsed))
		})
	}
}

// Package runner drives matching over whole reading orders, preserving
// the 1:1 input-to-output ordering the list format requires.
package runner

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/lepinkainen/longbox/internal/comicvine"
)

// Matcher resolves one parsed reference at a time.
type Matcher interface {
	Match(ctx context.Context, parsed comicvine.ParsedIssue) (*comicvine.MatchedBook, error)
}

// Result is the outcome of matching one ordered reference list.
// Books always has exactly one entry per input reference, in input
// order; references with no confident match become zero-confidence
// placeholders so the reading order survives intact.
type Result struct {
	Books     []comicvine.MatchedBook
	Matched   int
	Unmatched []comicvine.ParsedIssue
}

// MatchAll resolves every reference in order. Matching stops at the
// first error; cancellation is checked between references so a stop
// request never interrupts a reference mid-resolution.
func MatchAll(ctx context.Context, matcher Matcher, parsed []comicvine.ParsedIssue) (*Result, error) {
	result := &Result{Books: make([]comicvine.MatchedBook, 0, len(parsed))}

	for i, ref := range parsed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		slog.Debug("Matching reference",
			"position", i+1,
			"total", len(parsed),
			"series", ref.SeriesName,
			"number", ref.IssueNumber)

		book, err := matcher.Match(ctx, ref)
		if err != nil {
			return nil, err
		}

		if book != nil {
			result.Books = append(result.Books, *book)
			result.Matched++
			continue
		}

		result.Books = append(result.Books, placeholderBook(ref))
		result.Unmatched = append(result.Unmatched, ref)
	}

	slog.Info("Matching complete",
		"matched", result.Matched,
		"unmatched", len(result.Unmatched))
	logUnmatched(result.Unmatched)

	return result, nil
}

// placeholderBook keeps an unresolvable reference in the output at its
// original position, carrying whatever hints the page gave.
func placeholderBook(ref comicvine.ParsedIssue) comicvine.MatchedBook {
	volume := ref.VolumeHint
	if volume == "" {
		volume = ref.YearHint
	}
	if volume == "" {
		volume = "0"
	}

	year := ref.YearHint
	if year == "" {
		year = "0"
	}

	return comicvine.MatchedBook{
		Series:     ref.SeriesName,
		Number:     ref.IssueNumber,
		Volume:     volume,
		Year:       year,
		Format:     ref.Format,
		BookID:     comicvine.NewBookID(),
		Confidence: 0,
	}
}

func logUnmatched(unmatched []comicvine.ParsedIssue) {
	if len(unmatched) == 0 {
		return
	}

	bySeries := make(map[string][]string)
	for _, ref := range unmatched {
		bySeries[ref.SeriesName] = append(bySeries[ref.SeriesName], ref.IssueNumber)
	}

	series := make([]string, 0, len(bySeries))
	for name := range bySeries {
		series = append(series, name)
	}
	sort.Strings(series)

	for _, name := range series {
		numbers := bySeries[name]
		if len(numbers) > 5 {
			slog.Warn("Unmatched issues",
				"series", name,
				"numbers", "#"+strings.Join(numbers[:3], ", #")+"...",
				"count", len(numbers))
			continue
		}
		slog.Warn("Unmatched issues",
			"series", name,
			"numbers", "#"+strings.Join(numbers, ", #"))
	}
}

package cbl

import (
	"encoding/xml"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Read parses a .cbl file into a ReadingList. A list without a Name
// element falls back to the file's base name.
func Read(path string) (*ReadingList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var doc document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	name := doc.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return &ReadingList{Name: name, Books: doc.Books.Book}, nil
}

// ReadAll reads every .cbl file under dir recursively. Unparseable
// files are logged and skipped so one bad file doesn't sink a whole
// library scan.
func ReadAll(dir string) ([]*ReadingList, error) {
	var lists []*ReadingList

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".cbl") {
			return nil
		}

		list, err := Read(path)
		if err != nil {
			slog.Warn("Skipping unreadable reading list", "path", path, "error", err)
			return nil
		}
		lists = append(lists, list)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	return lists, nil
}

// SeriesVolume is a unique series name and volume start year pair
// found in existing reading lists.
type SeriesVolume struct {
	Series string
	Volume string
}

// SeriesVolumePairs extracts the sorted unique series/volume pairs
// from all reading lists under dir. Books missing either field are
// skipped.
func SeriesVolumePairs(dir string) ([]SeriesVolume, error) {
	lists, err := ReadAll(dir)
	if err != nil {
		return nil, err
	}

	seen := make(map[SeriesVolume]struct{})
	for _, list := range lists {
		for _, book := range list.Books {
			if book.Series == "" || book.Volume == "" {
				continue
			}
			seen[SeriesVolume{Series: book.Series, Volume: book.Volume}] = struct{}{}
		}
	}

	pairs := make([]SeriesVolume, 0, len(seen))
	for pair := range seen {
		pairs = append(pairs, pair)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Series != pairs[j].Series {
			return pairs[i].Series < pairs[j].Series
		}
		return pairs[i].Volume < pairs[j].Volume
	})

	return pairs, nil
}

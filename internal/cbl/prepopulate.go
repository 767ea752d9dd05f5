package cbl

import (
	"log/slog"
	"strconv"

	"github.com/lepinkainen/longbox/internal/normalize"
)

// UnresolvedVolumeID marks a prepopulated mapping whose catalog id has
// not been verified yet. The matcher replaces it on first real use.
const UnresolvedVolumeID = -1

// Seed confidence sits below both automatic and manual matches so any
// later verification supersedes it.
const seedConfidence = 0.5

// MappingStore is the cache surface prepopulation writes to.
type MappingStore interface {
	PutSeriesMapping(normalizedName string, year, volumeID int, confidence float64) error
}

// Prepopulate seeds series mappings from existing reading lists under
// dir without any catalog calls. Volumes that are not plain years are
// skipped. Returns the number of mappings written.
func Prepopulate(store MappingStore, dir string) (int, error) {
	pairs, err := SeriesVolumePairs(dir)
	if err != nil {
		return 0, err
	}

	added := 0
	for _, pair := range pairs {
		startYear, err := strconv.Atoi(pair.Volume)
		if err != nil {
			slog.Debug("Skipping non-numeric volume", "series", pair.Series, "volume", pair.Volume)
			continue
		}

		normalized := normalize.SeriesName(pair.Series)
		if err := store.PutSeriesMapping(normalized, startYear, UnresolvedVolumeID, seedConfidence); err != nil {
			return added, err
		}
		added++
	}

	slog.Info("Prepopulated series mappings", "count", added, "dir", dir)
	return added, nil
}

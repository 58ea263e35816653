package conceptset

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Store holds the active snapshot. Readers take the current pointer once per
// request and use it start to finish; Reload builds a new index off to the
// side and swaps it in atomically.
type Store struct {
	current atomic.Pointer[DatasetIndex]
	logger  zerolog.Logger
}

// NewStore creates a store, optionally seeded with an initial snapshot.
func NewStore(logger zerolog.Logger, initial *DatasetIndex) *Store {
	s := &Store{logger: logger}
	if initial != nil {
		s.current.Store(initial)
	}
	return s
}

// Current returns the active snapshot or ErrNoSnapshot.
func (s *Store) Current() (*DatasetIndex, error) {
	idx := s.current.Load()
	if idx == nil {
		return nil, ErrNoSnapshot
	}
	return idx, nil
}

// Swap installs idx and returns the snapshot it replaced (nil on first use).
func (s *Store) Swap(idx *DatasetIndex) *DatasetIndex {
	old := s.current.Swap(idx)
	evt := s.logger.Info().Str("version", idx.Version()).
		Int("concepts", idx.stats.Concepts).
		Int("concept_sets", idx.stats.ConceptSets).
		Int("members", idx.stats.Members).
		Int("ancestor_edges", idx.stats.AncestorEdges).
		Int("relationship_edges", idx.stats.RelationshipEdges)
	if old != nil {
		evt = evt.Str("previous_version", old.Version())
	}
	evt.Msg("dataset snapshot installed")
	return old
}

// Reload reads all tables through loader and swaps in the resulting index.
// On failure the active snapshot is left untouched.
func (s *Store) Reload(ctx context.Context, loader Loader) (*DatasetIndex, error) {
	tables, err := loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("reload dataset: %w", err)
	}
	idx := NewDatasetIndex(tables)
	s.Swap(idx)
	return idx, nil
}

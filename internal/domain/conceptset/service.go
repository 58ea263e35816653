package conceptset

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Limits bound the cost of a single hierarchy request. Zero disables a limit.
type Limits struct {
	MaxFilteredEdges  int
	MaxTraversalDepth int
	MaxHierarchyRows  int
}

// Service answers concept-set queries against the store's current snapshot.
// Each call takes the snapshot once and uses it throughout.
type Service struct {
	store  *Store
	limits Limits
	logger zerolog.Logger
}

// NewService creates a new concept-set service.
func NewService(store *Store, limits Limits, logger zerolog.Logger) *Service {
	return &Service{store: store, limits: limits, logger: logger}
}

// Store returns the snapshot store the service reads from.
func (s *Service) Store() *Store { return s.store }

func (s *Service) membership(ctx context.Context, codesetIDs []int64) (*DatasetIndex, *MembershipIndex, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	idx, err := s.store.Current()
	if err != nil {
		return nil, nil, err
	}
	return idx, ComputeMembership(idx, codesetIDs), nil
}

func (s *Service) edges(ctx context.Context, idx *DatasetIndex, m *MembershipIndex, source EdgeSource) ([]Edge, error) {
	edges, err := FilterEdges(idx, m.Universe(), source, s.limits.MaxFilteredEdges)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("source", source.String()).
			Int("universe", len(m.Concepts())).
			Ints64("codeset_ids", m.Requested()).
			Msg("edge filter rejected")
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return edges, nil
}

// ConceptSetsWithConcepts returns the requested codesets with their member
// concepts.
func (s *Service) ConceptSetsWithConcepts(ctx context.Context, codesetIDs []int64) ([]*CodesetRecord, error) {
	_, m, err := s.membership(ctx, codesetIDs)
	if err != nil {
		return nil, err
	}
	return CodesetRecords(m), nil
}

// ConceptSetsByConcept returns every concept of the requested codesets with
// the codesets containing it.
func (s *Service) ConceptSetsByConcept(ctx context.Context, codesetIDs []int64) (*ConceptsByConcept, error) {
	_, m, err := s.membership(ctx, codesetIDs)
	if err != nil {
		return nil, err
	}
	return ConceptRecords(m), nil
}

// OverlapSimple returns the flat O/X overlap table.
func (s *Service) OverlapSimple(ctx context.Context, codesetIDs []int64) ([]*Row, error) {
	_, m, err := s.membership(ctx, codesetIDs)
	if err != nil {
		return nil, err
	}
	return SimpleOverlapRows(m), nil
}

// OverlapSimpleHierarchy returns the ancestor-indented overlap table.
func (s *Service) OverlapSimpleHierarchy(ctx context.Context, codesetIDs []int64) ([]*Row, error) {
	idx, m, err := s.membership(ctx, codesetIDs)
	if err != nil {
		return nil, err
	}
	edges, err := s.edges(ctx, idx, m, SourceAncestorWithSelf)
	if err != nil {
		return nil, err
	}
	return SimpleHierarchyRows(idx, m, edges)
}

// CRHierarchy returns the Subsumes tree expansion in the requested format.
// An empty format means FormatDefault.
func (s *Service) CRHierarchy(ctx context.Context, codesetIDs []int64, format string) ([]*Row, error) {
	switch format {
	case "":
		format = FormatDefault
	case FormatDefault, FormatXO:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	idx, m, err := s.membership(ctx, codesetIDs)
	if err != nil {
		return nil, err
	}
	edges, err := s.edges(ctx, idx, m, SourceRelationship)
	if err != nil {
		return nil, err
	}
	strategy := TreeExpansion{MaxDepth: s.limits.MaxTraversalDepth, MaxRows: s.limits.MaxHierarchyRows}
	hier, err := strategy.Flatten(edges)
	if err != nil {
		s.logger.Warn().Err(err).Str("strategy", strategy.Name()).Int("edges", len(edges)).Msg("hierarchy flatten failed")
		return nil, err
	}
	return CRHierarchyRows(m, hier, format)
}

// HierarchyAgain returns the direct ancestor/descendant pairs of the
// requested codesets' concepts.
func (s *Service) HierarchyAgain(ctx context.Context, codesetIDs []int64) ([]HierarchyAgainRow, error) {
	idx, m, err := s.membership(ctx, codesetIDs)
	if err != nil {
		return nil, err
	}
	edges, err := s.edges(ctx, idx, m, SourceAncestor)
	if err != nil {
		return nil, err
	}
	strategy := LevelGrouping{}
	hier, err := strategy.Flatten(edges)
	if err != nil {
		return nil, err
	}
	return HierarchyAgainRows(m, hier)
}

// CsetVersions lists the versions of every concept set by name.
func (s *Service) CsetVersions(ctx context.Context) (*Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx, err := s.store.Current()
	if err != nil {
		return nil, err
	}
	return CsetVersions(idx), nil
}

// Stats returns the counts of the current snapshot.
func (s *Service) Stats(ctx context.Context) (DatasetStats, error) {
	idx, err := s.store.Current()
	if err != nil {
		return DatasetStats{}, err
	}
	return idx.Stats(), nil
}

package conceptset

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Sentinel errors returned by the engine. Callers match them with errors.Is;
// the structured variants below unwrap to the matching sentinel.
var (
	// ErrDatasetUnavailable means a required reference table could not be
	// loaded. The server must not start serving with such a snapshot.
	ErrDatasetUnavailable = errors.New("conceptset: dataset unavailable")

	// ErrLabelNotFound means a concept or codeset id in a rendered table has
	// no label row. The whole response is aborted.
	ErrLabelNotFound = errors.New("conceptset: label not found")

	// ErrMalformedIdentifier means a codeset_id segment is not an integer.
	ErrMalformedIdentifier = errors.New("conceptset: malformed identifier")

	// ErrCyclicRelation means hierarchy traversal revisited a concept on the
	// current path or exceeded the depth cap.
	ErrCyclicRelation = errors.New("conceptset: cyclic relation")

	// ErrEdgeLimitExceeded means the filtered edge set is larger than the
	// configured ceiling.
	ErrEdgeLimitExceeded = errors.New("conceptset: filtered edge limit exceeded")

	// ErrRowLimitExceeded means tree expansion produced more rows than the
	// configured ceiling.
	ErrRowLimitExceeded = errors.New("conceptset: hierarchy row limit exceeded")

	// ErrUnsupportedFormat means a cr-hierarchy format other than "default"
	// or "xo" was requested.
	ErrUnsupportedFormat = errors.New("conceptset: unsupported format")

	// ErrNoSnapshot means the store has not been populated yet.
	ErrNoSnapshot = errors.New("conceptset: no dataset snapshot loaded")
)

// Label kinds reported by LabelNotFoundError.
const (
	LabelConcept = "concept"
	LabelCodeset = "codeset"
)

// LabelNotFoundError identifies the id that had no label row.
type LabelNotFoundError struct {
	Kind string
	ID   int64
}

func (e *LabelNotFoundError) Error() string {
	return fmt.Sprintf("%s: no %s label for id %d", ErrLabelNotFound, e.Kind, e.ID)
}

func (e *LabelNotFoundError) Unwrap() error { return ErrLabelNotFound }

// CyclicRelationError carries the traversal path at the point the cycle or
// depth overrun was detected.
type CyclicRelationError struct {
	Path          []int64
	DepthExceeded bool
	MaxDepth      int
}

func (e *CyclicRelationError) Error() string {
	ids := make([]string, len(e.Path))
	for i, id := range e.Path {
		ids[i] = strconv.FormatInt(id, 10)
	}
	if e.DepthExceeded {
		return fmt.Sprintf("%s: depth limit %d exceeded along %s",
			ErrCyclicRelation, e.MaxDepth, strings.Join(ids, " -> "))
	}
	return fmt.Sprintf("%s: %s", ErrCyclicRelation, strings.Join(ids, " -> "))
}

func (e *CyclicRelationError) Unwrap() error { return ErrCyclicRelation }

// IsLabelNotFoundErr returns true if err is or wraps ErrLabelNotFound.
func IsLabelNotFoundErr(err error) bool {
	return errors.Is(err, ErrLabelNotFound)
}

// IsCyclicRelationErr returns true if err is or wraps ErrCyclicRelation.
func IsCyclicRelationErr(err error) bool {
	return errors.Is(err, ErrCyclicRelation)
}

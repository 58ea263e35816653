package conceptset

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
)

// Handler provides the concept-set query endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new concept-set handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the query routes, the dataset health check and
// the route listing on e.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.ListRoutes)
	e.GET("/cset-versions", h.CsetVersions)
	e.GET("/concept-sets-with-concepts", h.ConceptSetsWithConcepts)
	e.GET("/concept-sets-by-concept", h.ConceptSetsByConcept)
	e.GET("/concept-set-overlap-table-data-simple", h.OverlapSimple)
	e.GET("/concept-set-overlap-table-data-simple-hierarchy", h.OverlapSimpleHierarchy)
	e.GET("/cr-hierarchy", h.CRHierarchy)
	e.GET("/hierarchy-again", h.HierarchyAgain)
	e.GET("/health/dataset", h.DatasetHealth)
}

// codesetIDs reads codeset_id, which may be pipe-delimited, repeated, or both.
func codesetIDs(c echo.Context) ([]int64, error) {
	raw := strings.Join(c.QueryParams()["codeset_id"], "|")
	ids, err := ParseCodesetIDs(raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return ids, nil
}

// httpError maps engine errors to HTTP errors.
func httpError(err error) error {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he
	case errors.Is(err, ErrMalformedIdentifier), errors.Is(err, ErrUnsupportedFormat):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrCyclicRelation), errors.Is(err, ErrEdgeLimitExceeded), errors.Is(err, ErrRowLimitExceeded):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrNoSnapshot), errors.Is(err, ErrDatasetUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ErrLabelNotFound):
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	default:
		return err
	}
}

// ConceptSetsWithConcepts handles GET /concept-sets-with-concepts?codeset_id=...
func (h *Handler) ConceptSetsWithConcepts(c echo.Context) error {
	ids, err := codesetIDs(c)
	if err != nil {
		return err
	}
	result, err := h.svc.ConceptSetsWithConcepts(c.Request().Context(), ids)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// ConceptSetsByConcept handles GET /concept-sets-by-concept?codeset_id=...
func (h *Handler) ConceptSetsByConcept(c echo.Context) error {
	ids, err := codesetIDs(c)
	if err != nil {
		return err
	}
	result, err := h.svc.ConceptSetsByConcept(c.Request().Context(), ids)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// OverlapSimple handles GET /concept-set-overlap-table-data-simple?codeset_id=...
func (h *Handler) OverlapSimple(c echo.Context) error {
	ids, err := codesetIDs(c)
	if err != nil {
		return err
	}
	rows, err := h.svc.OverlapSimple(c.Request().Context(), ids)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rows)
}

// OverlapSimpleHierarchy handles GET /concept-set-overlap-table-data-simple-hierarchy?codeset_id=...
func (h *Handler) OverlapSimpleHierarchy(c echo.Context) error {
	ids, err := codesetIDs(c)
	if err != nil {
		return err
	}
	rows, err := h.svc.OverlapSimpleHierarchy(c.Request().Context(), ids)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rows)
}

// CRHierarchy handles GET /cr-hierarchy?codeset_id=...&format=default|xo
func (h *Handler) CRHierarchy(c echo.Context) error {
	ids, err := codesetIDs(c)
	if err != nil {
		return err
	}
	rows, err := h.svc.CRHierarchy(c.Request().Context(), ids, c.QueryParam("format"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rows)
}

// HierarchyAgain handles GET /hierarchy-again?codeset_id=...
func (h *Handler) HierarchyAgain(c echo.Context) error {
	ids, err := codesetIDs(c)
	if err != nil {
		return err
	}
	rows, err := h.svc.HierarchyAgain(c.Request().Context(), ids)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rows)
}

// CsetVersions handles GET /cset-versions
func (h *Handler) CsetVersions(c echo.Context) error {
	versions, err := h.svc.CsetVersions(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, versions)
}

// DatasetHealth handles GET /health/dataset
func (h *Handler) DatasetHealth(c echo.Context) error {
	stats, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unavailable",
			"error":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"dataset": stats,
	})
}

// ListRoutes handles GET / by listing the registered GET routes.
func (h *Handler) ListRoutes(c echo.Context) error {
	var paths []string
	seen := make(map[string]bool)
	for _, r := range c.Echo().Routes() {
		if r.Method != http.MethodGet || seen[r.Path] {
			continue
		}
		seen[r.Path] = true
		paths = append(paths, r.Path)
	}
	sort.Strings(paths)
	return c.JSON(http.StatusOK, map[string]interface{}{"routes": paths})
}

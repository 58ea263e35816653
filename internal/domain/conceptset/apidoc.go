package conceptset

import (
	"net/http"

	"github.com/termhub/termhub/internal/platform/openapi"
)

var codesetIDParam = openapi.Param{
	Name:        "codeset_id",
	Description: "Concept set identifiers, pipe-delimited or repeated.",
	Required:    true,
	Explode:     true,
}

var queryErrors = map[int]openapi.Response{
	http.StatusBadRequest:         {Description: "Malformed codeset_id or format"},
	http.StatusServiceUnavailable: {Description: "No dataset snapshot loaded"},
}

func withErrors(ok openapi.Response, extra map[int]openapi.Response) map[int]openapi.Response {
	out := map[int]openapi.Response{http.StatusOK: ok}
	for code, r := range queryErrors {
		out[code] = r
	}
	for code, r := range extra {
		out[code] = r
	}
	return out
}

var hierarchyErrors = map[int]openapi.Response{
	http.StatusUnprocessableEntity: {Description: "Cyclic Subsumes relation or traversal limit exceeded"},
}

var simpleHierarchyErrors = map[int]openapi.Response{
	http.StatusUnprocessableEntity: {Description: "Traversal limit exceeded"},
	http.StatusInternalServerError: {Description: "A concept has no name in the dataset"},
}

var formatParam = openapi.Param{
	Name:        "format",
	Description: "Row rendering.",
	Enum:        []string{FormatDefault, FormatXO},
}

// APIOperations describes the routes registered by Handler.RegisterRoutes.
func APIOperations() []openapi.Operation {
	return []openapi.Operation{
		{
			Path:        "/",
			OperationID: "listRoutes",
			Summary:     "List the available GET routes",
			Responses:   map[int]openapi.Response{http.StatusOK: {Description: "Route paths"}},
		},
		{
			Path:        "/cset-versions",
			OperationID: "csetVersions",
			Tag:         "concept-sets",
			Summary:     "Versions of every concept set, grouped by name",
			Responses:   withErrors(openapi.Response{Description: "Versions keyed by concept set name", Schema: "CsetVersions"}, nil),
		},
		{
			Path:        "/concept-sets-with-concepts",
			OperationID: "conceptSetsWithConcepts",
			Tag:         "concept-sets",
			Summary:     "Concept sets with their member concepts",
			Params:      []openapi.Param{codesetIDParam},
			Responses:   withErrors(openapi.Response{Description: "One record per requested concept set", Schema: "CodesetRecord", Array: true}, nil),
		},
		{
			Path:        "/concept-sets-by-concept",
			OperationID: "conceptSetsByConcept",
			Tag:         "concept-sets",
			Summary:     "Member concepts with the requested concept sets containing each",
			Params:      []openapi.Param{codesetIDParam},
			Responses:   withErrors(openapi.Response{Description: "Concepts and concept sets keyed by id", Schema: "ConceptsByConcept"}, nil),
		},
		{
			Path:        "/concept-set-overlap-table-data-simple",
			OperationID: "overlapSimple",
			Tag:         "overlap",
			Summary:     "Flat membership table of the union of the requested concept sets",
			Params:      []openapi.Param{codesetIDParam},
			Responses:   withErrors(openapi.Response{Description: "Overlap rows", Schema: "Row", Array: true}, nil),
		},
		{
			Path:        "/concept-set-overlap-table-data-simple-hierarchy",
			OperationID: "overlapSimpleHierarchy",
			Tag:         "overlap",
			Summary:     "Membership table grouped by ancestor level",
			Params:      []openapi.Param{codesetIDParam},
			Responses:   withErrors(openapi.Response{Description: "Overlap rows with level columns", Schema: "Row", Array: true}, simpleHierarchyErrors),
		},
		{
			Path:        "/cr-hierarchy",
			OperationID: "crHierarchy",
			Tag:         "overlap",
			Summary:     "Depth-first Subsumes hierarchy with one membership column per concept set",
			Params:      []openapi.Param{codesetIDParam, formatParam},
			Responses:   withErrors(openapi.Response{Description: "Hierarchy rows", Schema: "Row", Array: true}, hierarchyErrors),
		},
		{
			Path:        "/hierarchy-again",
			OperationID: "hierarchyAgain",
			Tag:         "overlap",
			Summary:     "Depth-first Subsumes hierarchy as level, id and name",
			Params:      []openapi.Param{codesetIDParam},
			Responses:   withErrors(openapi.Response{Description: "Hierarchy rows", Schema: "HierarchyAgainRow", Array: true}, hierarchyErrors),
		},
		{
			Path:        "/health/dataset",
			OperationID: "datasetHealth",
			Tag:         "health",
			Summary:     "Counts for the active dataset snapshot",
			Responses: map[int]openapi.Response{
				http.StatusOK:                 {Description: "Snapshot loaded", Schema: "DatasetHealth"},
				http.StatusServiceUnavailable: {Description: "No dataset snapshot loaded"},
			},
		},
	}
}

func object(props map[string]interface{}, required ...string) map[string]interface{} {
	s := map[string]interface{}{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func ref(name string) map[string]interface{} {
	return map[string]interface{}{"$ref": "#/components/schemas/" + name}
}

var (
	intSchema    = map[string]interface{}{"type": "integer", "format": "int64"}
	stringSchema = map[string]interface{}{"type": "string"}
)

// APISchemas returns the component schemas referenced by APIOperations.
func APISchemas() map[string]interface{} {
	member := object(map[string]interface{}{
		"codeset_id":       intSchema,
		"concept_id":       intSchema,
		"concept_name":     stringSchema,
		"concept_set_name": stringSchema,
	}, "codeset_id", "concept_id")

	return map[string]interface{}{
		"MembershipRow": member,
		"CodesetRecord": object(map[string]interface{}{
			"codeset_id":       intSchema,
			"concept_set_name": stringSchema,
			"version":          intSchema,
			"concepts": map[string]interface{}{
				"type":                 "object",
				"additionalProperties": ref("MembershipRow"),
			},
		}, "codeset_id", "concepts"),
		"ConceptRecord": map[string]interface{}{
			"allOf": []interface{}{
				ref("MembershipRow"),
				object(map[string]interface{}{
					"concept_sets": map[string]interface{}{"type": "array", "items": intSchema},
				}, "concept_sets"),
			},
		},
		"ConceptsByConcept": object(map[string]interface{}{
			"concepts":     map[string]interface{}{"type": "object", "additionalProperties": ref("ConceptRecord")},
			"concept_sets": map[string]interface{}{"type": "object", "additionalProperties": ref("CodesetRecord")},
		}, "concepts", "concept_sets"),
		"CsetVersions": map[string]interface{}{
			"type": "object",
			"additionalProperties": map[string]interface{}{
				"type": "array",
				"items": object(map[string]interface{}{
					"version":    intSchema,
					"codeset_id": intSchema,
				}),
			},
		},
		"Row": map[string]interface{}{
			"type":                 "object",
			"description":          "Ordered columns; keys depend on the requested concept sets.",
			"additionalProperties": true,
		},
		"HierarchyAgainRow": object(map[string]interface{}{
			"lvl":  map[string]interface{}{"type": "integer"},
			"cid":  intSchema,
			"name": stringSchema,
		}, "lvl", "cid", "name"),
		"DatasetHealth": object(map[string]interface{}{
			"status": stringSchema,
			"dataset": object(map[string]interface{}{
				"version":                stringSchema,
				"loaded_at":              map[string]interface{}{"type": "string", "format": "date-time"},
				"concepts":               map[string]interface{}{"type": "integer"},
				"concept_sets":           map[string]interface{}{"type": "integer"},
				"members":                map[string]interface{}{"type": "integer"},
				"ancestor_edges":         map[string]interface{}{"type": "integer"},
				"relationship_edges":     map[string]interface{}{"type": "integer"},
				"duplicate_concepts":     map[string]interface{}{"type": "integer"},
				"duplicate_concept_sets": map[string]interface{}{"type": "integer"},
			}),
		}, "status"),
	}
}

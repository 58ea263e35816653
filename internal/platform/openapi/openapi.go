// Package openapi serves an OpenAPI 3.0 document and a Swagger UI page for a
// set of read-only query operations.
package openapi

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Param describes a query parameter.
type Param struct {
	Name        string
	Description string
	Required    bool
	Type        string // OpenAPI scalar type; defaults to string
	Enum        []string
	Explode     bool // parameter may be repeated
}

// Response describes one status code of an operation. Schema names a
// component schema and may be empty.
type Response struct {
	Description string
	Schema      string
	Array       bool
}

// Operation describes a GET endpoint.
type Operation struct {
	Path        string
	OperationID string
	Summary     string
	Tag         string
	Params      []Param
	Responses   map[int]Response
}

// Generator builds an OpenAPI 3.0 document from a list of operations.
type Generator struct {
	title   string
	version string
	baseURL string
	ops     []Operation
	schemas map[string]interface{}
}

// NewGenerator creates a new OpenAPI document generator. schemas holds the
// component schemas referenced by the operations' responses.
func NewGenerator(title, version, baseURL string, ops []Operation, schemas map[string]interface{}) *Generator {
	return &Generator{title: title, version: version, baseURL: baseURL, ops: ops, schemas: schemas}
}

// GenerateSpec produces the OpenAPI 3.0 document as a map.
func (g *Generator) GenerateSpec() map[string]interface{} {
	paths := make(map[string]interface{}, len(g.ops))
	for _, op := range g.ops {
		get := map[string]interface{}{
			"summary":     op.Summary,
			"operationId": op.OperationID,
			"parameters":  buildParameters(op.Params),
			"responses":   buildResponses(op.Responses),
		}
		if op.Tag != "" {
			get["tags"] = []string{op.Tag}
		}
		paths[op.Path] = map[string]interface{}{"get": get}
	}

	schemas := map[string]interface{}{
		"Error": buildErrorSchema(),
	}
	for name, s := range g.schemas {
		schemas[name] = s
	}

	spec := map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":   g.title,
			"version": g.version,
		},
		"paths": paths,
		"components": map[string]interface{}{
			"schemas": schemas,
		},
	}
	if g.baseURL != "" {
		spec["servers"] = []map[string]string{{"url": g.baseURL}}
	}
	return spec
}

// buildParameters builds the OpenAPI parameter array for a GET operation.
func buildParameters(params []Param) []map[string]interface{} {
	result := make([]map[string]interface{}, 0, len(params))
	for _, p := range params {
		typ := p.Type
		if typ == "" {
			typ = "string"
		}
		schema := map[string]interface{}{"type": typ}
		if len(p.Enum) > 0 {
			schema["enum"] = p.Enum
		}
		param := map[string]interface{}{
			"name":     p.Name,
			"in":       "query",
			"required": p.Required,
			"schema":   schema,
		}
		if p.Description != "" {
			param["description"] = p.Description
		}
		if p.Explode {
			param["schema"] = map[string]interface{}{"type": "array", "items": schema}
			param["style"] = "form"
			param["explode"] = true
		}
		result = append(result, param)
	}
	return result
}

// buildResponses builds the responses object. Error statuses without a
// schema reference the shared Error schema.
func buildResponses(responses map[int]Response) map[string]interface{} {
	codes := make([]int, 0, len(responses))
	for code := range responses {
		codes = append(codes, code)
	}
	sort.Ints(codes)

	out := make(map[string]interface{}, len(codes))
	for _, code := range codes {
		r := responses[code]
		schemaName := r.Schema
		if schemaName == "" && code >= 400 {
			schemaName = "Error"
		}
		out[strconv.Itoa(code)] = buildResponseWithSchema(r.Description, schemaName, r.Array)
	}
	return out
}

// buildResponseWithSchema creates an OpenAPI response with an optional
// content schema reference.
func buildResponseWithSchema(description, schemaName string, array bool) map[string]interface{} {
	resp := map[string]interface{}{"description": description}
	if schemaName == "" {
		return resp
	}
	var schema map[string]interface{}
	ref := map[string]interface{}{"$ref": "#/components/schemas/" + schemaName}
	if array {
		schema = map[string]interface{}{"type": "array", "items": ref}
	} else {
		schema = ref
	}
	resp["content"] = map[string]interface{}{
		"application/json": map[string]interface{}{"schema": schema},
	}
	return resp
}

// buildErrorSchema describes the JSON body echo writes for an HTTP error.
func buildErrorSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"message": map[string]interface{}{"type": "string"},
		},
		"required": []string{"message"},
	}
}

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>termhub API</title>
  <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" >
  <style>
    body { margin: 0; background: #fafafa; }
  </style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: "/openapi.json",
      dom_id: '#swagger-ui',
      deepLinking: true,
      presets: [SwaggerUIBundle.presets.apis],
    })
  </script>
</body>
</html>`

// docsCSP allows the Swagger UI assets. It replaces any stricter policy set
// by earlier middleware for the /docs page only.
const docsCSP = "default-src 'none'; script-src 'unsafe-inline' https://unpkg.com; " +
	"style-src 'unsafe-inline' https://unpkg.com; img-src data: https://unpkg.com; " +
	"connect-src 'self'; frame-ancestors 'none'"

// RegisterRoutes registers GET /openapi.json and GET /docs on e.
func (g *Generator) RegisterRoutes(e *echo.Echo) {
	e.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, g.GenerateSpec())
	})
	e.GET("/docs", func(c echo.Context) error {
		c.Response().Header().Set("Content-Security-Policy", docsCSP)
		return c.HTML(http.StatusOK, swaggerUIHTML)
	})
}

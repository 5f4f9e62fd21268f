package openapi

import (
	"log/slog"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/i2y/sqlgenmcp/internal/domain"
)

// CallPath returns the admin HTTP path that invokes the named operation.
func CallPath(name string) string {
	return "/admin/operations/" + name + "/call"
}

// DocumentGenerator renders the registered operations as an OpenAPI 3 document,
// one POST path per operation, with the operation's input shape as request body.
type DocumentGenerator struct {
	title   string
	version string
	logger  *slog.Logger
}

// NewDocumentGenerator creates a new DocumentGenerator.
func NewDocumentGenerator(title, version string, logger *slog.Logger) *DocumentGenerator {
	return &DocumentGenerator{
		title:   title,
		version: version,
		logger:  logger.With("component", "openapi_document"),
	}
}

// Generate builds the document for ops.
func (g *DocumentGenerator) Generate(ops []domain.Operation) *openapi3.T {
	paths := openapi3.NewPaths()
	for _, op := range ops {
		operation := openapi3.NewOperation()
		operation.OperationID = op.Name
		operation.Summary = op.Name
		operation.Description = op.Description
		operation.RequestBody = &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().
				WithRequired(true).
				WithDescription("Operation arguments").
				WithJSONSchema(ConvertShape(op.InputShape)),
		}
		operation.Responses = openapi3.NewResponses(
			openapi3.WithName("200", openapi3.NewResponse().
				WithDescription("Call result; failures carry failure.errorKind").
				WithJSONSchema(callResultSchema())),
		)
		paths.Set(CallPath(op.Name), &openapi3.PathItem{Post: operation})
	}

	g.logger.Debug("Generated OpenAPI document", slog.Int("paths", len(ops)))
	return &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:   g.title,
			Version: g.version,
		},
		Paths: paths,
	}
}

// ConvertShape converts a domain.Shape into an openapi3.Schema.
// This is recursive and handles objects, arrays and primitive types.
func ConvertShape(shape domain.Shape) *openapi3.Schema {
	schema := &openapi3.Schema{Description: shape.Description}
	if shape.Type != "" {
		schema.Type = &openapi3.Types{shape.Type}
	}

	switch shape.Type {
	case domain.KindObject:
		if len(shape.Properties) > 0 {
			schema.Properties = make(openapi3.Schemas, len(shape.Properties))
			for name, prop := range shape.Properties {
				schema.Properties[name] = openapi3.NewSchemaRef("", ConvertShape(prop))
			}
		}
		schema.Required = append([]string(nil), shape.Required...)
	case domain.KindArray:
		if shape.Items != nil {
			schema.Items = openapi3.NewSchemaRef("", ConvertShape(*shape.Items))
		}
	}
	return schema
}

func callResultSchema() *openapi3.Schema {
	content := openapi3.NewObjectSchema().
		WithProperty("type", openapi3.NewStringSchema()).
		WithProperty("text", openapi3.NewStringSchema())
	failure := openapi3.NewObjectSchema().
		WithProperty("errorKind", openapi3.NewStringSchema().WithEnum(
			string(domain.ErrorKindMethodNotFound),
			string(domain.ErrorKindInvalidParams),
			string(domain.ErrorKindInternalError),
		)).
		WithProperty("message", openapi3.NewStringSchema())
	return openapi3.NewObjectSchema().
		WithProperty("content", openapi3.NewArraySchema().WithItems(content)).
		WithProperty("failure", failure)
}

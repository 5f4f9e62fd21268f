package sqlgen

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/i2y/sqlgenmcp/internal/domain"
	"github.com/i2y/sqlgenmcp/internal/usecase"
)

// OperationName is the name under which the generator is registered.
const OperationName = "generate_sql"

// StagingSuffix is appended to the input table name to name the deduplicated staging table.
const StagingSuffix = "_dedup"

// Field is one column declared in the caller's table schema.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TableSchema is the caller-supplied description of the input table.
type TableSchema struct {
	Fields []Field `json:"fields"`
}

// Request holds the decoded generate_sql arguments.
type Request struct {
	Schema          TableSchema `json:"schema"`
	TableName       string      `json:"table_name"`
	OutputTableName string      `json:"output_table_name"`
}

// Generator renders the transaction normalization script. It implements usecase.OperationHandler.
type Generator struct {
	mapping FieldMapping
	logger  *slog.Logger
}

// NewGenerator creates a Generator. A nil mapping selects DefaultMapping.
func NewGenerator(mapping FieldMapping, logger *slog.Logger) *Generator {
	if mapping == nil {
		mapping = DefaultMapping
	}
	return &Generator{
		mapping: mapping,
		logger:  logger.With("component", "sqlgen"),
	}
}

// Operation returns the descriptor the generator is registered under.
func (g *Generator) Operation() domain.Operation {
	return domain.Operation{
		Name: OperationName,
		Description: "Generate a BigQuery SQL script that deduplicates table_name into a staging table, " +
			"maps its columns to the PSP transaction layout with credit/debit and week-of-month columns, " +
			"and writes the result to output_table_name.",
		InputShape: InputShape(),
	}
}

// InputShape declares the arguments accepted by generate_sql.
func InputShape() domain.Shape {
	return domain.Shape{
		Type: domain.KindObject,
		Properties: map[string]domain.Shape{
			"schema": {
				Type:        domain.KindObject,
				Description: "Schema of the input table",
				Properties: map[string]domain.Shape{
					"fields": {
						Type: domain.KindArray,
						Items: &domain.Shape{
							Type: domain.KindObject,
							Properties: map[string]domain.Shape{
								"name": {Type: domain.KindString, Description: "Column name"},
								"type": {Type: domain.KindString, Description: "Column type"},
							},
							Required: []string{"name", "type"},
						},
					},
				},
				Required: []string{"fields"},
			},
			"table_name":        {Type: domain.KindString, Description: "Input table to deduplicate and transform"},
			"output_table_name": {Type: domain.KindString, Description: "Table the result is written to"},
		},
		Required: []string{"schema", "table_name", "output_table_name"},
	}
}

// Handle decodes shape-validated arguments and renders the script as one text block.
func (g *Generator) Handle(ctx context.Context, args map[string]any) ([]domain.Content, error) {
	req, err := DecodeRequest(args)
	if err != nil {
		return nil, err
	}
	log := g.logger.With(slog.String("table_name", req.TableName), slog.String("output_table_name", req.OutputTableName))
	if unmapped := g.unmappedFields(req.Schema); len(unmapped) > 0 {
		log.Debug("Schema declares columns the mapping does not read", slog.Any("columns", unmapped))
	}
	script := g.Render(req)
	log.Debug("Rendered SQL script", slog.Int("bytes", len(script)))
	return []domain.Content{domain.TextContent(script)}, nil
}

// DecodeRequest extracts a Request from decoded JSON arguments.
func DecodeRequest(args map[string]any) (Request, error) {
	var req Request
	var ok bool
	if req.TableName, ok = args["table_name"].(string); !ok {
		return Request{}, fmt.Errorf("%w: table_name must be a string", usecase.ErrInvalidArguments)
	}
	if req.OutputTableName, ok = args["output_table_name"].(string); !ok {
		return Request{}, fmt.Errorf("%w: output_table_name must be a string", usecase.ErrInvalidArguments)
	}
	schema, ok := args["schema"].(map[string]any)
	if !ok {
		return Request{}, fmt.Errorf("%w: schema must be an object", usecase.ErrInvalidArguments)
	}
	fields, _ := schema["fields"].([]any)
	for i, raw := range fields {
		f, ok := raw.(map[string]any)
		if !ok {
			return Request{}, fmt.Errorf("%w: schema.fields[%d] must be an object", usecase.ErrInvalidArguments, i)
		}
		name, _ := f["name"].(string)
		typ, _ := f["type"].(string)
		req.Schema.Fields = append(req.Schema.Fields, Field{Name: name, Type: typ})
	}
	return req, nil
}

// Render builds the script. It is a pure function of req and the mapping.
func (g *Generator) Render(req Request) string {
	staging := req.TableName + StagingSuffix

	var b strings.Builder
	b.WriteString("-- Step 1: deduplicate the input table into a staging table\n")
	fmt.Fprintf(&b, "CREATE OR REPLACE TABLE `%s` AS\n", staging)
	b.WriteString("SELECT DISTINCT *\n")
	fmt.Fprintf(&b, "FROM `%s`;\n\n", req.TableName)

	b.WriteString("-- Step 2: map columns, derive PSP columns and write the result table\n")
	fmt.Fprintf(&b, "CREATE OR REPLACE TABLE `%s` AS\n", req.OutputTableName)
	b.WriteString("WITH mapped AS (\n")
	b.WriteString("  SELECT\n")
	b.WriteString("    " + strings.Join(g.mapping.Clauses(req.Schema), ",\n    ") + "\n")
	fmt.Fprintf(&b, "  FROM `%s`\n", staging)
	b.WriteString(")\n")
	b.WriteString("SELECT\n")
	b.WriteString("  mapped.*,\n")
	b.WriteString("  CASE\n")
	fmt.Fprintf(&b, "    WHEN %s >= 0 THEN 'Credit'\n", ColumnAmount)
	b.WriteString("    ELSE 'Debit'\n")
	b.WriteString("  END AS PSP_Credit_Debit,\n")
	b.WriteString("  CASE\n")
	fmt.Fprintf(&b, "    WHEN EXTRACT(DAY FROM %s) <= 7 THEN 'Week 1'\n", ColumnDatetime)
	fmt.Fprintf(&b, "    WHEN EXTRACT(DAY FROM %s) <= 14 THEN 'Week 2'\n", ColumnDatetime)
	fmt.Fprintf(&b, "    WHEN EXTRACT(DAY FROM %s) <= 21 THEN 'Week 3'\n", ColumnDatetime)
	b.WriteString("    ELSE 'Week 4'\n")
	b.WriteString("  END AS PSP_Week\n")
	b.WriteString("FROM mapped;\n")
	return b.String()
}

// unmappedFields lists declared columns the mapping never reads. The result is
// only logged; the mapping does not consult the schema.
func (g *Generator) unmappedFields(schema TableSchema) []string {
	fixed, ok := g.mapping.(FixedMapping)
	if !ok {
		return nil
	}
	known := make(map[string]struct{}, len(fixed))
	for _, s := range fixed.Sources() {
		known[s] = struct{}{}
	}
	var unmapped []string
	for _, f := range schema.Fields {
		if _, ok := known[f.Name]; !ok {
			unmapped = append(unmapped, f.Name)
		}
	}
	return unmapped
}

package sqlgen_test

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i2y/sqlgenmcp/internal/adapter/outbound/sqlgen"
	"github.com/i2y/sqlgenmcp/internal/domain"
	"github.com/i2y/sqlgenmcp/internal/usecase"
)

func newTestGenerator(t *testing.T) *sqlgen.Generator {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return sqlgen.NewGenerator(nil, logger)
}

func args(fields []any, table, output string) map[string]any {
	return map[string]any{
		"schema":            map[string]any{"fields": fields},
		"table_name":        table,
		"output_table_name": output,
	}
}

func render(t *testing.T, g *sqlgen.Generator, a map[string]any) string {
	t.Helper()
	content, err := g.Handle(context.Background(), a)
	require.NoError(t, err)
	require.Len(t, content, 1)
	assert.Equal(t, domain.ContentTypeText, content[0].Type)
	return content[0].Text
}

func TestGenerator_MinimalSchema(t *testing.T) {
	g := newTestGenerator(t)
	script := render(t, g, args([]any{map[string]any{"name": "Date", "type": "string"}}, "raw_tx", "final_tx"))

	// Deduplication reads the input table into the staging table.
	assert.Contains(t, script, "CREATE OR REPLACE TABLE `raw_tx_dedup` AS\nSELECT DISTINCT *\nFROM `raw_tx`;")
	assert.Contains(t, script, "FROM `raw_tx_dedup`")

	// Week-of-month buckets gated on day 7/14/21.
	assert.Contains(t, script, "WHEN EXTRACT(DAY FROM PSP_Datetime) <= 7 THEN 'Week 1'")
	assert.Contains(t, script, "WHEN EXTRACT(DAY FROM PSP_Datetime) <= 14 THEN 'Week 2'")
	assert.Contains(t, script, "WHEN EXTRACT(DAY FROM PSP_Datetime) <= 21 THEN 'Week 3'")
	assert.Contains(t, script, "ELSE 'Week 4'")
	assert.Contains(t, script, "END AS PSP_Week")
	for _, label := range []string{"Week 1", "Week 2", "Week 3", "Week 4"} {
		assert.Equal(t, 1, strings.Count(script, label), label)
	}
	assert.NotContains(t, script, "Week 5")

	// Credit/debit flag.
	assert.Contains(t, script, "END AS PSP_Credit_Debit")

	// The script ends by writing the output table.
	last := strings.LastIndex(script, "CREATE OR REPLACE TABLE")
	require.NotEqual(t, -1, last)
	assert.True(t, strings.HasPrefix(script[last:], "CREATE OR REPLACE TABLE `final_tx` AS"))
	assert.True(t, strings.HasSuffix(script, "FROM mapped;\n"))
}

func TestGenerator_OutputAndStagingNames(t *testing.T) {
	g := newTestGenerator(t)
	tests := []struct {
		table, output string
	}{
		{"raw_tx", "final_tx"},
		{"project.dataset.payments", "project.dataset.payments_clean"},
		{"a", "b"},
	}
	for _, tt := range tests {
		t.Run(tt.table, func(t *testing.T) {
			script := render(t, g, args([]any{}, tt.table, tt.output))
			assert.Contains(t, script, "CREATE OR REPLACE TABLE `"+tt.output+"`")
			assert.Contains(t, script, "`"+tt.table+sqlgen.StagingSuffix+"`")
		})
	}
}

func TestGenerator_MappingClausesInFixedOrder(t *testing.T) {
	g := newTestGenerator(t)
	script := render(t, g, args([]any{}, "raw_tx", "final_tx"))

	clauses := sqlgen.DefaultMapping.Clauses(sqlgen.TableSchema{})
	assert.Contains(t, script, strings.Join(clauses, ",\n    "))

	prev := -1
	for _, c := range clauses {
		idx := strings.Index(script, c)
		require.NotEqual(t, -1, idx, c)
		assert.Greater(t, idx, prev, "clause out of order: %s", c)
		prev = idx
	}
}

func TestGenerator_Deterministic(t *testing.T) {
	g := newTestGenerator(t)
	a := args([]any{map[string]any{"name": "Date", "type": "string"}}, "raw_tx", "final_tx")
	first := render(t, g, a)
	second := render(t, g, a)
	assert.Equal(t, first, second)

	other := sqlgen.NewGenerator(nil, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	assert.Equal(t, first, render(t, other, a))
}

// The caller's schema is validated for shape only; the fixed mapping is
// applied no matter which columns it declares.
func TestGenerator_SchemaFieldsAreNotConsulted(t *testing.T) {
	g := newTestGenerator(t)
	known := render(t, g, args([]any{
		map[string]any{"name": "Date", "type": "string"},
		map[string]any{"name": "Amount", "type": "numeric"},
	}, "raw_tx", "final_tx"))
	unrelated := render(t, g, args([]any{
		map[string]any{"name": "foo", "type": "string"},
		map[string]any{"name": "bar", "type": "int64"},
	}, "raw_tx", "final_tx"))
	empty := render(t, g, args([]any{}, "raw_tx", "final_tx"))

	assert.Equal(t, known, unrelated)
	assert.Equal(t, known, empty)
	assert.NotContains(t, unrelated, "foo")
	assert.NotContains(t, unrelated, "bar")
}

type recordingMapping struct {
	got sqlgen.TableSchema
}

func (m *recordingMapping) Clauses(schema sqlgen.TableSchema) []string {
	m.got = schema
	return []string{"1 AS one", "2 AS two"}
}

func TestGenerator_CustomMapping(t *testing.T) {
	mapping := &recordingMapping{}
	g := sqlgen.NewGenerator(mapping, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	script := render(t, g, args([]any{map[string]any{"name": "Date", "type": "string"}}, "in", "out"))

	assert.Contains(t, script, "    1 AS one,\n    2 AS two\n")
	assert.Equal(t, sqlgen.TableSchema{Fields: []sqlgen.Field{{Name: "Date", Type: "string"}}}, mapping.got)
}

func TestGenerator_Operation(t *testing.T) {
	op := newTestGenerator(t).Operation()
	assert.Equal(t, "generate_sql", op.Name)
	assert.NotEmpty(t, op.Description)
	require.NoError(t, op.InputShape.Check())
	assert.ElementsMatch(t, []string{"schema", "table_name", "output_table_name"}, op.InputShape.Required)

	valid := args([]any{map[string]any{"name": "Date", "type": "string"}}, "raw_tx", "final_tx")
	assert.NoError(t, domain.Validate(op.InputShape, valid))

	missingType := args([]any{map[string]any{"name": "Date"}}, "raw_tx", "final_tx")
	assert.EqualError(t, domain.Validate(op.InputShape, missingType), `schema.fields[0]: missing required field "type"`)
}

func TestDecodeRequest(t *testing.T) {
	req, err := sqlgen.DecodeRequest(args([]any{map[string]any{"name": "Date", "type": "string"}}, "raw_tx", "final_tx"))
	require.NoError(t, err)
	assert.Equal(t, sqlgen.Request{
		Schema:          sqlgen.TableSchema{Fields: []sqlgen.Field{{Name: "Date", Type: "string"}}},
		TableName:       "raw_tx",
		OutputTableName: "final_tx",
	}, req)

	_, err = sqlgen.DecodeRequest(map[string]any{"table_name": "t"})
	assert.ErrorIs(t, err, usecase.ErrInvalidArguments)
}

func TestFixedMapping_Sources(t *testing.T) {
	assert.Equal(t,
		[]string{"Date", "Transaction ID", "Merchant", "Amount", "Currency", "Status", "Payment Method", "Fee"},
		sqlgen.DefaultMapping.Sources())
}

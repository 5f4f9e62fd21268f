package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i2y/sqlgenmcp/internal/domain"
)

func fieldsShape() domain.Shape {
	return domain.Shape{
		Type: domain.KindObject,
		Properties: map[string]domain.Shape{
			"schema": {
				Type: domain.KindObject,
				Properties: map[string]domain.Shape{
					"fields": {
						Type: domain.KindArray,
						Items: &domain.Shape{
							Type: domain.KindObject,
							Properties: map[string]domain.Shape{
								"name": {Type: domain.KindString},
								"type": {Type: domain.KindString},
							},
							Required: []string{"name", "type"},
						},
					},
				},
				Required: []string{"fields"},
			},
			"table_name": {Type: domain.KindString},
			"limit":      {Type: domain.KindInteger},
			"ratio":      {Type: domain.KindNumber},
			"dry_run":    {Type: domain.KindBoolean},
		},
		Required: []string{"schema", "table_name"},
	}
}

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantPath string
		wantErr  string
	}{
		{
			name:  "valid minimal",
			input: `{"schema":{"fields":[{"name":"Date","type":"string"}]},"table_name":"raw_tx"}`,
		},
		{
			name:  "valid with optional fields",
			input: `{"schema":{"fields":[]},"table_name":"t","limit":10,"ratio":0.5,"dry_run":true,"extra":"ignored"}`,
		},
		{
			name:     "missing top-level required",
			input:    `{"schema":{"fields":[]}}`,
			wantPath: "",
			wantErr:  `arguments: missing required field "table_name"`,
		},
		{
			name:     "wrong root kind",
			input:    `["not","an","object"]`,
			wantPath: "",
			wantErr:  "arguments: expected object, got array",
		},
		{
			name:     "nested missing required",
			input:    `{"schema":{},"table_name":"t"}`,
			wantPath: "schema",
			wantErr:  `schema: missing required field "fields"`,
		},
		{
			name:     "array expected",
			input:    `{"schema":{"fields":"Date"},"table_name":"t"}`,
			wantPath: "schema.fields",
			wantErr:  "schema.fields: expected array, got string",
		},
		{
			name:     "item missing required",
			input:    `{"schema":{"fields":[{"name":"Date","type":"string"},{"name":"Amount"}]},"table_name":"t"}`,
			wantPath: "schema.fields[1]",
			wantErr:  `schema.fields[1]: missing required field "type"`,
		},
		{
			name:     "item field wrong kind",
			input:    `{"schema":{"fields":[{"name":5,"type":"string"}]},"table_name":"t"}`,
			wantPath: "schema.fields[0].name",
			wantErr:  "schema.fields[0].name: expected string, got integer",
		},
		{
			name:     "null is not a string",
			input:    `{"schema":{"fields":[]},"table_name":null}`,
			wantPath: "table_name",
			wantErr:  "table_name: expected string, got null",
		},
		{
			name:     "fractional number is not an integer",
			input:    `{"schema":{"fields":[]},"table_name":"t","limit":1.5}`,
			wantPath: "limit",
			wantErr:  "limit: expected integer, got number",
		},
		{
			name:     "boolean kind",
			input:    `{"schema":{"fields":[]},"table_name":"t","dry_run":"yes"}`,
			wantPath: "dry_run",
			wantErr:  "dry_run: expected boolean, got string",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := domain.Validate(fieldsShape(), decode(t, tt.input))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var shapeErr *domain.ShapeError
			require.ErrorAs(t, err, &shapeErr)
			assert.Equal(t, tt.wantPath, shapeErr.Path)
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestValidate_NilArgumentsTreatedAsEmptyObject(t *testing.T) {
	err := domain.Validate(fieldsShape(), nil)
	assert.EqualError(t, err, `arguments: missing required field "schema"`)

	assert.NoError(t, domain.Validate(domain.Shape{Type: domain.KindObject}, nil))
}

func TestValidate_FailFastIsDeterministic(t *testing.T) {
	// Two violations; the same one must always be reported.
	input := decode(t, `{"schema":{"fields":[]},"table_name":"t","limit":"x","ratio":"y"}`)
	for i := 0; i < 20; i++ {
		assert.EqualError(t, domain.Validate(fieldsShape(), input), "limit: expected integer, got string")
	}
}

func TestValidate_UntypedShapeAcceptsAnything(t *testing.T) {
	assert.NoError(t, domain.Validate(domain.Shape{}, 42.0))
	assert.NoError(t, domain.Validate(domain.Shape{}, nil))
}

func TestShape_Check(t *testing.T) {
	assert.NoError(t, fieldsShape().Check())

	bad := domain.Shape{
		Type: domain.KindObject,
		Properties: map[string]domain.Shape{
			"list": {
				Type: domain.KindArray,
				Items: &domain.Shape{
					Type:       domain.KindObject,
					Properties: map[string]domain.Shape{"a": {Type: domain.KindString}},
					Required:   []string{"a", "b"},
				},
			},
		},
	}
	err := bad.Check()
	assert.ErrorIs(t, err, domain.ErrInvalidShape)
	assert.Contains(t, err.Error(), `required field "b" is not declared at list[]`)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, "null", domain.KindOf(nil))
	assert.Equal(t, "object", domain.KindOf(map[string]any{}))
	assert.Equal(t, "array", domain.KindOf([]any{}))
	assert.Equal(t, "string", domain.KindOf(""))
	assert.Equal(t, "boolean", domain.KindOf(false))
	assert.Equal(t, "integer", domain.KindOf(3.0))
	assert.Equal(t, "number", domain.KindOf(3.25))
	assert.Equal(t, "integer", domain.KindOf(json.Number("7")))
}

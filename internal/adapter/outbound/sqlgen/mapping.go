package sqlgen

// FieldMapping produces the column clauses of the transformation step.
// The generator only talks to this interface, so a schema-driven mapping can
// replace the fixed one without touching the dispatcher or the template.
type FieldMapping interface {
	Clauses(schema TableSchema) []string
}

// MappedField maps one input column to its output SQL expression.
type MappedField struct {
	Source     string // input column name
	Expression string // full select clause, including the alias
}

// FixedMapping is a constant, ordered field mapping. It ignores the caller's
// schema: every entry is emitted whether or not the column was declared.
type FixedMapping []MappedField

// Clauses returns the expressions in mapping order.
func (m FixedMapping) Clauses(TableSchema) []string {
	clauses := make([]string, 0, len(m))
	for _, f := range m {
		clauses = append(clauses, f.Expression)
	}
	return clauses
}

// Sources returns the input column names the mapping reads, in order.
func (m FixedMapping) Sources() []string {
	sources := make([]string, 0, len(m))
	for _, f := range m {
		sources = append(sources, f.Source)
	}
	return sources
}

// Output column names produced by DefaultMapping and used by the derived columns.
const (
	ColumnDatetime = "PSP_Datetime"
	ColumnAmount   = "PSP_Amount"
)

// DefaultMapping is the payment service provider transaction mapping.
var DefaultMapping = FixedMapping{
	{Source: "Date", Expression: "SAFE.PARSE_DATETIME('%Y-%m-%d %H:%M:%S', CAST(`Date` AS STRING)) AS " + ColumnDatetime},
	{Source: "Transaction ID", Expression: "CAST(`Transaction ID` AS STRING) AS PSP_Transaction_ID"},
	{Source: "Merchant", Expression: "TRIM(`Merchant`) AS PSP_Merchant"},
	{Source: "Amount", Expression: "SAFE_CAST(`Amount` AS NUMERIC) AS " + ColumnAmount},
	{Source: "Currency", Expression: "UPPER(TRIM(`Currency`)) AS PSP_Currency"},
	{Source: "Status", Expression: "LOWER(TRIM(`Status`)) AS PSP_Status"},
	{Source: "Payment Method", Expression: "`Payment Method` AS PSP_Payment_Method"},
	{Source: "Fee", Expression: "SAFE_CAST(`Fee` AS NUMERIC) AS PSP_Fee"},
}

package sqlcall

import "context"

// Statement is the driver-side callable statement primitive the adapter
// delegates to. Implementations wrap one prepared stored-procedure
// invocation against an already-connected session; the adapter owns the
// statement exclusively for the duration of one logical call.
//
// The result protocol follows the standard callable model: Execute reports
// whether the first outcome is a result set; MoreResults advances to the
// next outcome; UpdateCount returns -1 once no outcomes remain.
type Statement interface {
	// Bind binds one input parameter. A Param with Null set carries a
	// typed NULL in its Type field.
	Bind(p Param) error

	// RegisterOut declares one output parameter before execution.
	RegisterOut(p OutParam) error

	// Execute runs the statement and reports whether the first outcome
	// is a result set.
	Execute(ctx context.Context) (bool, error)

	// MoreResults advances to the next outcome and reports whether it is
	// a result set.
	MoreResults() (bool, error)

	// UpdateCount returns the update count of the current outcome, or -1
	// when no more outcomes remain.
	UpdateCount() (int64, error)

	// ResultSet returns a cursor over the current result set.
	ResultSet() (Cursor, error)

	// OutValue retrieves the value of a registered output parameter.
	OutValue(p OutParam) (interface{}, error)

	// ClearParams clears bound parameter state.
	ClearParams() error

	// Release frees the statement. After Release no other method may be
	// called.
	Release() error
}

// Cursor is a result-set cursor. *sql.Rows satisfies it as-is, and its
// shape is accepted by the sqlx scan helpers.
type Cursor interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
	Close() error
}

// Extractor consumes one entire result set and produces a value. The
// extractor owns the cursor: it must fully consume and close it before
// returning, so the caller never receives a dangling cursor.
type Extractor func(Cursor) (interface{}, error)

// RowMapper converts the current row of a cursor into a value. It must not
// advance or close the cursor.
type RowMapper func(Cursor) (interface{}, error)

// RowFilter reports whether the current row should be mapped. It must not
// advance or close the cursor.
type RowFilter func(Cursor) (bool, error)

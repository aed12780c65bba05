package sqlcall

import (
	"context"
	"database/sql"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// SQLStatement is a Statement over database/sql, for drivers that accept
// output parameters through sql.Out on a query (SQL Server, SAP HANA and
// friends). The query text is the driver's native call syntax, e.g.
// "EXEC my_proc @a, @rc OUTPUT" or "call my_proc(?, ?)".
//
// database/sql does not surface per-result update counts, so UpdateCount
// reports the -1 sentinel once the current rows are exhausted and the
// drain protocol degrades to result sets only. Output destinations are
// read only after the rows handle has been finished, since drivers
// populate sql.Out once the result stream is fully processed.
type SQLStatement struct {
	db     *sqlx.DB
	query  string
	params []Param
	outs   []sqlOutBinding
	rows   *sql.Rows
	view   *rowsView
}

type sqlOutBinding struct {
	param OutParam
	dest  *interface{}
}

var _ Statement = (*SQLStatement)(nil)

// NewSQLStatement creates a Statement executing the given call text
// against a database/sql connection.
func NewSQLStatement(db *sqlx.DB, query string) *SQLStatement {
	return &SQLStatement{db: db, query: query}
}

func (s *SQLStatement) Bind(p Param) error {
	if p.Null {
		p.Value = TypedNull(p.Type)
	}
	s.params = append(s.params, p)
	return nil
}

func (s *SQLStatement) RegisterOut(p OutParam) error {
	s.outs = append(s.outs, sqlOutBinding{param: p, dest: new(interface{})})
	return nil
}

func (s *SQLStatement) Execute(ctx context.Context) (bool, error) {
	rows, err := s.db.QueryContext(ctx, s.query, s.buildArgs()...)
	if err != nil {
		return false, errors.Wrap(err, "executing callable statement")
	}
	s.rows = rows
	cols, err := rows.Columns()
	if err != nil {
		return false, errors.Wrap(err, "reading result columns")
	}
	if len(cols) == 0 {
		return false, nil
	}
	s.view = &rowsView{rows: rows}
	return true, nil
}

func (s *SQLStatement) MoreResults() (bool, error) {
	if s.rows == nil {
		return false, nil
	}
	if s.view != nil {
		// the previous result set must be drained before advancing
		if err := s.view.Close(); err != nil {
			return false, err
		}
		s.view = nil
	}
	if !s.rows.NextResultSet() {
		return false, s.rows.Err()
	}
	s.view = &rowsView{rows: s.rows}
	return true, nil
}

func (s *SQLStatement) UpdateCount() (int64, error) {
	return -1, nil
}

func (s *SQLStatement) ResultSet() (Cursor, error) {
	if s.view == nil {
		return nil, errors.New("no current result set")
	}
	return s.view, nil
}

func (s *SQLStatement) OutValue(p OutParam) (interface{}, error) {
	// drivers only populate sql.Out destinations once the result stream
	// has been fully processed, so finish the rows before the first read
	if s.rows != nil {
		rows := s.rows
		s.rows, s.view = nil, nil
		if err := rows.Close(); err != nil {
			return nil, errors.Wrap(err, "finishing result stream")
		}
	}
	for _, b := range s.outs {
		if b.param.Key() == p.Key() {
			return *b.dest, nil
		}
	}
	return nil, errors.Errorf("output parameter %s was not registered", p.Key())
}

func (s *SQLStatement) ClearParams() error {
	s.params = nil
	s.outs = nil
	return nil
}

func (s *SQLStatement) Release() error {
	if s.rows == nil {
		return nil
	}
	rows := s.rows
	s.rows, s.view = nil, nil
	return rows.Close()
}

// buildArgs lays ordinal parameters out by position and appends named ones
// as sql.Named, with output parameters wrapped in sql.Out.
func (s *SQLStatement) buildArgs() []interface{} {
	type slot struct {
		ordinal int
		value   interface{}
	}
	var positional []slot
	var named []interface{}

	for _, p := range s.params {
		if p.Name != "" {
			named = append(named, sql.Named(p.Name, p.Value))
			continue
		}
		positional = append(positional, slot{p.Ordinal, p.Value})
	}
	for _, b := range s.outs {
		out := sql.Out{Dest: b.dest}
		if b.param.Name != "" {
			named = append(named, sql.Named(b.param.Name, out))
			continue
		}
		positional = append(positional, slot{b.param.Ordinal, out})
	}
	sort.SliceStable(positional, func(i, j int) bool { return positional[i].ordinal < positional[j].ordinal })

	args := make([]interface{}, 0, len(positional)+len(named))
	for _, sl := range positional {
		args = append(args, sl.value)
	}
	return append(args, named...)
}

// rowsView scopes one result set of a multi-result *sql.Rows. Closing the
// view drains the current set without closing the underlying rows, which
// stay owned by the statement until Release.
type rowsView struct {
	rows *sql.Rows
	done bool
}

func (v *rowsView) Columns() ([]string, error) { return v.rows.Columns() }

func (v *rowsView) Next() bool {
	if v.done {
		return false
	}
	if !v.rows.Next() {
		v.done = true
		return false
	}
	return true
}

func (v *rowsView) Scan(dest ...interface{}) error { return v.rows.Scan(dest...) }

func (v *rowsView) Err() error { return v.rows.Err() }

func (v *rowsView) Close() error {
	for v.Next() {
	}
	return v.rows.Err()
}

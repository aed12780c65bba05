package oracle

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	ora "github.com/sijms/go-ora/v2"

	"github.com/ignaciocaff/sqlcall"
	"github.com/ignaciocaff/sqlcall/internal/core"
)

// Statement is a callable statement over the go-ora driver. Cursor output
// parameters are bound as ora.RefCursor and drained in registration order
// as the result-set stream.
type Statement struct {
	db       *sqlx.DB
	proc     string
	slots    []slot
	cursors  []*ora.RefCursor
	scalars  map[string]interface{}
	current  int
	executed bool
}

var _ sqlcall.Statement = (*Statement)(nil)

// NewStatement creates a go-ora backed statement invoking the given
// stored procedure.
func NewStatement(db *sqlx.DB, procedureName string) *Statement {
	return &Statement{db: db, proc: procedureName, scalars: map[string]interface{}{}}
}

func (s *Statement) Bind(p sqlcall.Param) error {
	arg := p.Value
	if p.Null {
		arg = sqlcall.TypedNull(p.Type)
	}
	s.slots = append(s.slots, slot{name: p.Name, ordinal: p.Ordinal, arg: arg})
	return nil
}

func (s *Statement) RegisterOut(p sqlcall.OutParam) error {
	var arg interface{}
	if p.Type == sqlcall.TypeCursor {
		cursor := &ora.RefCursor{}
		s.cursors = append(s.cursors, cursor)
		arg = sql.Out{Dest: cursor}
	} else {
		dest := destFor(p.Type)
		s.scalars[p.Key()] = dest
		arg = sql.Out{Dest: dest}
	}
	s.slots = append(s.slots, slot{name: p.Name, ordinal: p.Ordinal, arg: arg})
	return nil
}

func (s *Statement) Execute(ctx context.Context) (bool, error) {
	text, args := assemble(s.proc, s.slots)
	if _, err := s.db.ExecContext(ctx, text, args...); err != nil {
		return false, errors.Wrap(err, "executing "+s.proc)
	}
	s.executed = true
	s.current = 0
	return len(s.cursors) > 0, nil
}

func (s *Statement) MoreResults() (bool, error) {
	s.current++
	return s.current < len(s.cursors), nil
}

func (s *Statement) UpdateCount() (int64, error) {
	return -1, nil
}

func (s *Statement) ResultSet() (sqlcall.Cursor, error) {
	if s.current >= len(s.cursors) {
		return nil, errors.New("no current result set")
	}
	ds, err := s.cursors[s.current].Query()
	if err != nil {
		return nil, errors.Wrap(err, "opening ref cursor")
	}
	cols := ds.Columns()
	return &dataSetCursor{ds: ds, cols: cols, row: make([]driver.Value, len(cols))}, nil
}

func (s *Statement) OutValue(p sqlcall.OutParam) (interface{}, error) {
	if p.Type == sqlcall.TypeCursor {
		return nil, errors.Errorf("output parameter %s is a cursor, it is consumed as a result set", p.Key())
	}
	dest, ok := s.scalars[p.Key()]
	if !ok {
		return nil, errors.Errorf("output parameter %s was not registered", p.Key())
	}
	return deref(dest), nil
}

func (s *Statement) ClearParams() error {
	s.slots = nil
	return nil
}

func (s *Statement) Release() error {
	var first error
	// cursors are only backed by a connection once an execution populated
	// them, closing an unexecuted one would dereference a nil session
	if s.executed {
		for _, cursor := range s.cursors {
			if err := cursor.Close(); err != nil && first == nil {
				first = errors.Wrap(err, "closing ref cursor")
			}
		}
	}
	s.cursors = nil
	s.scalars = nil
	return first
}

// dataSetCursor adapts a go-ora DataSet to the Cursor contract, coercing
// driver values into the caller's scan destinations.
type dataSetCursor struct {
	ds     *ora.DataSet
	cols   []string
	row    []driver.Value
	err    error
	closed bool
}

func (c *dataSetCursor) Columns() ([]string, error) {
	return c.cols, nil
}

func (c *dataSetCursor) Next() bool {
	if c.closed || c.err != nil {
		return false
	}
	if err := c.ds.Next(c.row); err != nil {
		if err != io.EOF {
			c.err = err
		}
		return false
	}
	return true
}

func (c *dataSetCursor) Scan(dest ...interface{}) error {
	if len(dest) != len(c.cols) {
		return errors.Errorf("scan: expected %d destinations, got %d", len(c.cols), len(dest))
	}
	for i, d := range dest {
		if err := core.Coerce(d, c.row[i]); err != nil {
			return err
		}
	}
	return nil
}

func (c *dataSetCursor) Err() error {
	return c.err
}

func (c *dataSetCursor) Close() error {
	c.closed = true
	return nil
}

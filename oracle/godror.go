package oracle

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"

	"github.com/godror/godror"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/ignaciocaff/sqlcall"
	"github.com/ignaciocaff/sqlcall/internal/core"
)

// GodrorStatement is a callable statement over the godror driver. Cursor
// output parameters are bound as driver.Rows destinations, which is how
// godror hands back a SYS_REFCURSOR.
type GodrorStatement struct {
	db      *sqlx.DB
	proc    string
	slots   []slot
	cursors []*driver.Rows
	scalars map[string]interface{}
	current int
}

var _ sqlcall.Statement = (*GodrorStatement)(nil)

// NewGodrorStatement creates a godror backed statement invoking the given
// stored procedure.
func NewGodrorStatement(db *sqlx.DB, procedureName string) *GodrorStatement {
	return &GodrorStatement{db: db, proc: procedureName, scalars: map[string]interface{}{}}
}

func (s *GodrorStatement) Bind(p sqlcall.Param) error {
	arg := p.Value
	if p.Null {
		arg = sqlcall.TypedNull(p.Type)
	}
	s.slots = append(s.slots, slot{name: p.Name, ordinal: p.Ordinal, arg: arg})
	return nil
}

func (s *GodrorStatement) RegisterOut(p sqlcall.OutParam) error {
	var arg interface{}
	if p.Type == sqlcall.TypeCursor {
		rows := new(driver.Rows)
		s.cursors = append(s.cursors, rows)
		arg = sql.Out{Dest: rows}
	} else {
		dest := destFor(p.Type)
		s.scalars[p.Key()] = dest
		arg = sql.Out{Dest: dest}
	}
	s.slots = append(s.slots, slot{name: p.Name, ordinal: p.Ordinal, arg: arg})
	return nil
}

func (s *GodrorStatement) Execute(ctx context.Context) (bool, error) {
	text, args := assemble(s.proc, s.slots)
	if _, err := s.db.ExecContext(ctx, text, args...); err != nil {
		return false, errors.Wrap(err, "executing "+s.proc)
	}
	s.current = 0
	return len(s.cursors) > 0, nil
}

func (s *GodrorStatement) MoreResults() (bool, error) {
	s.current++
	return s.current < len(s.cursors), nil
}

func (s *GodrorStatement) UpdateCount() (int64, error) {
	return -1, nil
}

func (s *GodrorStatement) ResultSet() (sqlcall.Cursor, error) {
	if s.current >= len(s.cursors) {
		return nil, errors.New("no current result set")
	}
	rows := *s.cursors[s.current]
	if rows == nil {
		return nil, errors.New("ref cursor was not populated by the driver")
	}
	cols := rows.Columns()
	return &driverRowsCursor{rows: rows, cols: cols, row: make([]driver.Value, len(cols))}, nil
}

func (s *GodrorStatement) OutValue(p sqlcall.OutParam) (interface{}, error) {
	if p.Type == sqlcall.TypeCursor {
		return nil, errors.Errorf("output parameter %s is a cursor, it is consumed as a result set", p.Key())
	}
	dest, ok := s.scalars[p.Key()]
	if !ok {
		return nil, errors.Errorf("output parameter %s was not registered", p.Key())
	}
	return deref(dest), nil
}

func (s *GodrorStatement) ClearParams() error {
	s.slots = nil
	return nil
}

func (s *GodrorStatement) Release() error {
	var first error
	for _, rows := range s.cursors {
		if *rows == nil {
			continue
		}
		if err := (*rows).Close(); err != nil && first == nil {
			first = errors.Wrap(err, "closing ref cursor")
		}
	}
	s.cursors = nil
	s.scalars = nil
	return first
}

// driverRowsCursor adapts the driver.Rows godror returns for a ref cursor
// to the Cursor contract.
type driverRowsCursor struct {
	rows   driver.Rows
	cols   []string
	row    []driver.Value
	err    error
	closed bool
}

func (c *driverRowsCursor) Columns() ([]string, error) {
	return c.cols, nil
}

func (c *driverRowsCursor) Next() bool {
	if c.closed || c.err != nil {
		return false
	}
	if err := c.rows.Next(c.row); err != nil {
		if err != io.EOF {
			c.err = err
		}
		return false
	}
	return true
}

func (c *driverRowsCursor) Scan(dest ...interface{}) error {
	if len(dest) != len(c.cols) {
		return errors.Errorf("scan: expected %d destinations, got %d", len(c.cols), len(dest))
	}
	for i, d := range dest {
		if err := core.Coerce(d, normalizeValue(c.row[i])); err != nil {
			return err
		}
	}
	return nil
}

func (c *driverRowsCursor) Err() error {
	return c.err
}

func (c *driverRowsCursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rows.Close()
}

// normalizeValue converts godror-specific value types into the plain
// representations the coercion layer understands. NUMBER columns come back
// as godror.Number, a decimal string.
func normalizeValue(v driver.Value) driver.Value {
	if n, ok := v.(godror.Number); ok {
		return string(n)
	}
	return v
}

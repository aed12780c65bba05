package sqlcall

import (
	"context"

	"github.com/go-logr/logr"
)

// Call is a fluent handle over one callable statement invocation. It binds
// input parameters, registers output parameters, executes, drains result
// sets through caller-supplied extraction functions and collects output
// values, guaranteeing that the underlying statement is released on every
// exit path.
//
// A Call is owned by one caller for its entire lifetime; concurrent use
// from multiple goroutines is not supported.
type Call struct {
	stmt     Statement
	ctx      context.Context
	log      logr.Logger
	outs     []OutParam
	keepOpen bool
	closed   bool
}

// Option configures a Call at construction time.
type Option func(*Call)

// WithContext sets the context passed to the driver on execution.
func WithContext(ctx context.Context) Option {
	return func(c *Call) {
		if ctx != nil {
			c.ctx = ctx
		}
	}
}

// WithLogger sets the logger used for suppressed close-time failures and
// execution tracing.
func WithLogger(log logr.Logger) Option {
	return func(c *Call) { c.log = log }
}

// KeepOpen defers closing to an explicit Close call instead of closing the
// handle at the end of each query. Exec always closes regardless.
func KeepOpen() Option {
	return func(c *Call) { c.keepOpen = true }
}

// NewCall creates a Call over the given driver statement. The Call takes
// exclusive ownership of the statement and releases it on Close.
func NewCall(stmt Statement, opts ...Option) *Call {
	c := &Call{
		stmt: stmt,
		ctx:  context.Background(),
		log:  logr.Discard(),
		outs: []OutParam{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Set binds an input parameter. The identifier is a parameter name or a
// 1-based ordinal. A nil typed pointer binds a typed NULL whose SQL type
// is derived from the pointer's element type; for an untyped nil use
// SetType instead.
func (c *Call) Set(id interface{}, value interface{}) error {
	return c.bind("Set", id, value, TypeUnknown, 0, "")
}

// SetType binds an input parameter with an explicit SQL type.
func (c *Call) SetType(id interface{}, value interface{}, t SQLType) error {
	return c.bind("SetType", id, value, t, 0, "")
}

// SetScale binds a numeric input parameter with an explicit SQL type and
// scale.
func (c *Call) SetScale(id interface{}, value interface{}, t SQLType, scale int) error {
	return c.bind("SetScale", id, value, t, scale, "")
}

// SetTypeName binds an input parameter of a user-defined SQL type.
func (c *Call) SetTypeName(id interface{}, value interface{}, t SQLType, typeName string) error {
	return c.bind("SetTypeName", id, value, t, 0, typeName)
}

func (c *Call) bind(op string, id interface{}, value interface{}, t SQLType, scale int, typeName string) error {
	if err := c.ensureOpen(op); err != nil {
		return err
	}
	name, ordinal, err := identifier(op, id)
	if err != nil {
		return err
	}
	p := Param{Name: name, Ordinal: ordinal, Value: value, Type: t, Scale: scale, TypeName: typeName}
	if isNull(value) {
		p.Null = true
		p.Value = nil
		if p.Type == TypeUnknown {
			p.Type = nullTypeOf(value)
		}
		if p.Type == TypeUnknown {
			return &ArgumentError{Op: op, Message: "cannot derive a SQL type for NULL, bind it with SetType"}
		}
	}
	return driverErr(op, c.stmt.Bind(p))
}

// Register declares an output parameter. Must be called before execution.
func (c *Call) Register(id interface{}, t SQLType) error {
	return c.register("Register", id, t, 0, "")
}

// RegisterScale declares a numeric output parameter with a scale.
func (c *Call) RegisterScale(id interface{}, t SQLType, scale int) error {
	return c.register("RegisterScale", id, t, scale, "")
}

// RegisterTypeName declares an output parameter of a user-defined SQL type.
func (c *Call) RegisterTypeName(id interface{}, t SQLType, typeName string) error {
	return c.register("RegisterTypeName", id, t, 0, typeName)
}

func (c *Call) register(op string, id interface{}, t SQLType, scale int, typeName string) error {
	if err := c.ensureOpen(op); err != nil {
		return err
	}
	name, ordinal, err := identifier(op, id)
	if err != nil {
		return err
	}
	p := OutParam{Name: name, Ordinal: ordinal, Type: t, Scale: scale, TypeName: typeName}
	if err := c.stmt.RegisterOut(p); err != nil {
		return driverErr(op, err)
	}
	// bookkeeping only after the driver accepted the registration
	c.outs = append(c.outs, p)
	return nil
}

// RegisterVia invokes fn with the Call to perform a batch of Register
// calls. If fn fails the handle is closed before the error propagates, so
// registration failures leak no open statement.
func (c *Call) RegisterVia(fn func(*Call) error) error {
	if fn == nil {
		return &ArgumentError{Op: "RegisterVia", Message: "callback is required"}
	}
	if err := c.ensureOpen("RegisterVia"); err != nil {
		return err
	}
	if err := fn(c); err != nil {
		if cerr := c.Close(); cerr != nil {
			c.log.Error(cerr, "closing after failed output registration")
		}
		return err
	}
	return nil
}

// Exec executes the statement with no result extraction and collects the
// values of all registered output parameters. The handle is always closed
// afterward, on success or failure.
func (c *Call) Exec() (out *OutParams, err error) {
	if err = c.ensureOpen("Exec"); err != nil {
		return nil, err
	}
	defer func() { err = c.closeAfter(err, true) }()
	c.log.V(1).Info("executing callable statement", "outputs", len(c.outs))
	if _, err = c.stmt.Execute(c.ctx); err != nil {
		return nil, driverErr("Exec", err)
	}
	return c.collectOuts()
}

// Query executes and returns the first result set, or ok=false when the
// call produced none before exhausting its outcomes. The caller owns the
// returned cursor and must close it before requesting anything else from
// the handle; the handle itself stays open until Close. Failures close
// the handle before propagating.
func (c *Call) Query() (cur Cursor, ok bool, err error) {
	if err = c.ensureOpen("Query"); err != nil {
		return nil, false, err
	}
	if cur, ok, err = c.firstResultSet(); err != nil {
		return nil, false, c.closeAfter(err, false)
	}
	return cur, ok, nil
}

// QueryOne executes and extracts the first result set through ex, paired
// with the collected output values. When the call produces no result set
// the extracted value is nil and ex is not invoked.
func (c *Call) QueryOne(ex Extractor) (value interface{}, out *OutParams, err error) {
	if ex == nil {
		return nil, nil, &ArgumentError{Op: "QueryOne", Message: "extractor is required"}
	}
	if err = c.ensureOpen("QueryOne"); err != nil {
		return nil, nil, err
	}
	defer func() { err = c.closeAfter(err, false) }()
	cur, ok, err := c.firstResultSet()
	if err != nil {
		return nil, nil, err
	}
	if ok {
		if value, err = ex(cur); err != nil {
			return nil, nil, err
		}
	}
	out, err = c.collectOuts()
	return value, out, err
}

// QueryAll executes and drains every result set in driver order, one
// extracted value per result set. Each result set is closed by the
// extractor before the next is requested.
func (c *Call) QueryAll(ex Extractor) (values []interface{}, out *OutParams, err error) {
	if ex == nil {
		return nil, nil, &ArgumentError{Op: "QueryAll", Message: "extractor is required"}
	}
	if err = c.ensureOpen("QueryAll"); err != nil {
		return nil, nil, err
	}
	defer func() { err = c.closeAfter(err, false) }()
	cur, ok, err := c.firstResultSet()
	for err == nil && ok {
		var v interface{}
		if v, err = ex(cur); err != nil {
			return nil, nil, err
		}
		values = append(values, v)
		cur, ok, err = c.nextResultSet()
	}
	if err != nil {
		return nil, nil, err
	}
	out, err = c.collectOuts()
	return values, out, err
}

// QueryN executes and extracts a fixed number of leading result sets, one
// extractor per position. Positions beyond the number of result sets the
// call actually produced are left nil.
func (c *Call) QueryN(exs ...Extractor) (values []interface{}, out *OutParams, err error) {
	if len(exs) == 0 {
		return nil, nil, &ArgumentError{Op: "QueryN", Message: "at least one extractor is required"}
	}
	for _, ex := range exs {
		if ex == nil {
			return nil, nil, &ArgumentError{Op: "QueryN", Message: "extractor is required"}
		}
	}
	if err = c.ensureOpen("QueryN"); err != nil {
		return nil, nil, err
	}
	defer func() { err = c.closeAfter(err, false) }()
	values = make([]interface{}, len(exs))
	cur, ok, err := c.firstResultSet()
	for i := 0; err == nil && ok && i < len(exs); i++ {
		if values[i], err = exs[i](cur); err != nil {
			return nil, nil, err
		}
		if i+1 < len(exs) {
			cur, ok, err = c.nextResultSet()
		}
	}
	if err != nil {
		return nil, nil, err
	}
	out, err = c.collectOuts()
	return values, out, err
}

// ListRows executes and drains the first result set row by row through the
// mapper, optionally filtering rows before mapping.
func (c *Call) ListRows(m RowMapper, filter ...RowFilter) (values []interface{}, out *OutParams, err error) {
	if m == nil {
		return nil, nil, &ArgumentError{Op: "ListRows", Message: "row mapper is required"}
	}
	if err = c.ensureOpen("ListRows"); err != nil {
		return nil, nil, err
	}
	defer func() { err = c.closeAfter(err, false) }()
	cur, ok, err := c.firstResultSet()
	if err != nil {
		return nil, nil, err
	}
	if ok {
		if values, err = c.mapRows("ListRows", cur, m, first(filter)); err != nil {
			return nil, nil, err
		}
	}
	out, err = c.collectOuts()
	return values, out, err
}

// ListAllRows is ListRows across every result set, producing one mapped
// slice per result set.
func (c *Call) ListAllRows(m RowMapper, filter ...RowFilter) (values [][]interface{}, out *OutParams, err error) {
	if m == nil {
		return nil, nil, &ArgumentError{Op: "ListAllRows", Message: "row mapper is required"}
	}
	if err = c.ensureOpen("ListAllRows"); err != nil {
		return nil, nil, err
	}
	defer func() { err = c.closeAfter(err, false) }()
	cur, ok, err := c.firstResultSet()
	for err == nil && ok {
		var vals []interface{}
		if vals, err = c.mapRows("ListAllRows", cur, m, first(filter)); err != nil {
			return nil, nil, err
		}
		values = append(values, vals)
		cur, ok, err = c.nextResultSet()
	}
	if err != nil {
		return nil, nil, err
	}
	out, err = c.collectOuts()
	return values, out, err
}

// Close releases the handle. Bound parameter state is cleared first; a
// failure of the clear step is logged and suppressed so that closing
// always completes. Close is idempotent, later calls are no-ops.
func (c *Call) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.stmt.ClearParams(); err != nil {
		c.log.Error(err, "clearing bound parameters failed")
	}
	if err := c.stmt.Release(); err != nil {
		return driverErr("Close", err)
	}
	return nil
}

// firstResultSet runs the statement and finds the first result set, if
// any, skipping update counts. Callable procedures may report an update
// count before or between result sets, so a plain "execute and read"
// is not enough: the statement has to be advanced until either a result
// set appears or the -1 update-count sentinel reports exhaustion.
func (c *Call) firstResultSet() (Cursor, bool, error) {
	c.log.V(1).Info("executing callable statement", "outputs", len(c.outs))
	has, err := c.stmt.Execute(c.ctx)
	if err != nil {
		return nil, false, driverErr("execute", err)
	}
	return c.advance(has)
}

// nextResultSet advances past the current result set to the next one.
func (c *Call) nextResultSet() (Cursor, bool, error) {
	has, err := c.stmt.MoreResults()
	if err != nil {
		return nil, false, driverErr("more results", err)
	}
	return c.advance(has)
}

func (c *Call) advance(has bool) (Cursor, bool, error) {
	for {
		if has {
			cur, err := c.stmt.ResultSet()
			if err != nil {
				return nil, false, driverErr("result set", err)
			}
			return cur, true, nil
		}
		n, err := c.stmt.UpdateCount()
		if err != nil {
			return nil, false, driverErr("update count", err)
		}
		if n == -1 {
			return nil, false, nil
		}
		if has, err = c.stmt.MoreResults(); err != nil {
			return nil, false, driverErr("more results", err)
		}
	}
}

func (c *Call) mapRows(op string, cur Cursor, m RowMapper, f RowFilter) (values []interface{}, err error) {
	defer func() {
		if cerr := cur.Close(); err == nil && cerr != nil {
			err = driverErr(op, cerr)
		}
	}()
	for cur.Next() {
		if f != nil {
			ok, ferr := f(cur)
			if ferr != nil {
				return nil, ferr
			}
			if !ok {
				continue
			}
		}
		v, merr := m(cur)
		if merr != nil {
			return nil, merr
		}
		values = append(values, v)
	}
	if rerr := cur.Err(); rerr != nil {
		return nil, driverErr(op, rerr)
	}
	return values, nil
}

func (c *Call) collectOuts() (*OutParams, error) {
	// cursor outputs are consumed as the result-set stream, they have no
	// materialized value to retrieve
	scalars := make([]OutParam, 0, len(c.outs))
	for _, p := range c.outs {
		if p.Type == TypeCursor {
			continue
		}
		scalars = append(scalars, p)
	}
	out := newOutParams(scalars)
	for _, p := range scalars {
		v, err := c.stmt.OutValue(p)
		if err != nil {
			return nil, driverErr("output value "+p.Key(), err)
		}
		out.values[p.Key()] = v
	}
	return out, nil
}

// closeAfter applies the close-after-execution policy at the end of an
// execution-triggering method. Error paths close unconditionally so that
// a failure never leaves the statement open.
func (c *Call) closeAfter(err error, always bool) error {
	if err == nil && !always && c.keepOpen {
		return nil
	}
	if cerr := c.Close(); cerr != nil && err == nil {
		return cerr
	}
	return err
}

func (c *Call) ensureOpen(op string) error {
	if c.closed {
		return &StateError{Op: op, Message: "call already closed"}
	}
	return nil
}

func identifier(op string, id interface{}) (string, int, error) {
	switch v := id.(type) {
	case string:
		if v != "" {
			return v, 0, nil
		}
	case int:
		if v >= 1 {
			return "", v, nil
		}
	}
	return "", 0, &ArgumentError{Op: op, Message: "identifier must be a parameter name or a 1-based ordinal"}
}

func first(filters []RowFilter) RowFilter {
	if len(filters) > 0 {
		return filters[0]
	}
	return nil
}

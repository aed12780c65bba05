package sqlcall

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"

	"github.com/ignaciocaff/sqlcall/internal/core"
)

// stubResult is one scripted outcome of a stub execution: a result set or
// an update count.
type stubResult struct {
	hasRows bool
	count   int64
	cursor  *stubCursor
}

type stubStatement struct {
	t           *testing.T
	script      []stubResult
	pos         int
	binds       []Param
	outs        []OutParam
	outValues   map[string]interface{}
	registerErr error
	execErr     error
	clearErr    error
	clearCalls  int
	releases    int
	requested   []*stubCursor
}

func (s *stubStatement) Bind(p Param) error {
	s.binds = append(s.binds, p)
	return nil
}

func (s *stubStatement) RegisterOut(p OutParam) error {
	if s.registerErr != nil {
		return s.registerErr
	}
	s.outs = append(s.outs, p)
	return nil
}

func (s *stubStatement) Execute(ctx context.Context) (bool, error) {
	if s.execErr != nil {
		return false, s.execErr
	}
	s.pos = 0
	return s.has(), nil
}

func (s *stubStatement) has() bool {
	return s.pos < len(s.script) && s.script[s.pos].hasRows
}

func (s *stubStatement) MoreResults() (bool, error) {
	s.pos++
	return s.has(), nil
}

func (s *stubStatement) UpdateCount() (int64, error) {
	if s.pos >= len(s.script) {
		return -1, nil
	}
	return s.script[s.pos].count, nil
}

func (s *stubStatement) ResultSet() (Cursor, error) {
	if len(s.requested) > 0 {
		if prev := s.requested[len(s.requested)-1]; !prev.closed {
			s.t.Error("previous result set was not closed before the next one was requested")
		}
	}
	cur := s.script[s.pos].cursor
	s.requested = append(s.requested, cur)
	return cur, nil
}

func (s *stubStatement) OutValue(p OutParam) (interface{}, error) {
	if p.Type == TypeCursor {
		return nil, fmt.Errorf("output parameter %s is a cursor", p.Key())
	}
	v, ok := s.outValues[p.Key()]
	if !ok {
		return nil, fmt.Errorf("no value for %s", p.Key())
	}
	return v, nil
}

func (s *stubStatement) ClearParams() error {
	s.clearCalls++
	return s.clearErr
}

func (s *stubStatement) Release() error {
	s.releases++
	return nil
}

type stubCursor struct {
	cols   []string
	rows   [][]interface{}
	idx    int
	closed bool
}

func (c *stubCursor) Columns() ([]string, error) { return c.cols, nil }

func (c *stubCursor) Next() bool {
	if c.closed || c.idx >= len(c.rows) {
		return false
	}
	c.idx++
	return true
}

func (c *stubCursor) Scan(dest ...interface{}) error {
	row := c.rows[c.idx-1]
	for i, d := range dest {
		if err := core.Coerce(d, row[i]); err != nil {
			return err
		}
	}
	return nil
}

func (c *stubCursor) Err() error { return nil }

func (c *stubCursor) Close() error {
	c.closed = true
	return nil
}

func TestBindForwardsValues(t *testing.T) {
	stub := &stubStatement{t: t}
	call := NewCall(stub)
	if err := call.Set("p_id", 42); err != nil {
		t.Fatal(err)
	}
	if err := call.Set(2, "ana"); err != nil {
		t.Fatal(err)
	}
	if len(stub.binds) != 2 {
		t.Fatalf("expected 2 binds, got %d", len(stub.binds))
	}
	if stub.binds[0].Name != "p_id" || stub.binds[0].Value != 42 || stub.binds[0].Null {
		t.Errorf("unexpected first bind: %+v", stub.binds[0])
	}
	if stub.binds[1].Ordinal != 2 || stub.binds[1].Value != "ana" {
		t.Errorf("unexpected second bind: %+v", stub.binds[1])
	}
}

func TestTypedNullInference(t *testing.T) {
	cases := []struct {
		name  string
		value interface{}
		want  SQLType
	}{
		{"bool", (*bool)(nil), TypeBool},
		{"int", (*int)(nil), TypeBigInt},
		{"int64", (*int64)(nil), TypeBigInt},
		{"int32", (*int32)(nil), TypeInt},
		{"float32", (*float32)(nil), TypeFloat},
		{"float64", (*float64)(nil), TypeDouble},
		{"string", (*string)(nil), TypeVarchar},
		{"time", (*time.Time)(nil), TypeTimestamp},
		{"bytes", []byte(nil), TypeBinary},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubStatement{t: t}
			call := NewCall(stub)
			if err := call.Set("p", tc.value); err != nil {
				t.Fatal(err)
			}
			p := stub.binds[0]
			if !p.Null || p.Value != nil {
				t.Errorf("expected a NULL bind, got %+v", p)
			}
			if p.Type != tc.want {
				t.Errorf("expected NULL typed %s, got %s", tc.want, p.Type)
			}
		})
	}
}

func TestUntypedNullRequiresExplicitType(t *testing.T) {
	stub := &stubStatement{t: t}
	call := NewCall(stub)
	err := call.Set("p", nil)
	var argErr *ArgumentError
	if !errors.As(err, &argErr) {
		t.Fatalf("expected ArgumentError, got %v", err)
	}
	if err := call.SetType("p", nil, TypeDecimal); err != nil {
		t.Fatal(err)
	}
	if p := stub.binds[0]; !p.Null || p.Type != TypeDecimal {
		t.Errorf("expected a DECIMAL NULL, got %+v", p)
	}
}

func TestExecCollectsOutputsInOrder(t *testing.T) {
	stub := &stubStatement{t: t, outValues: map[string]interface{}{
		"msg":  "hola  ",
		"#2":   int64(7),
		"flag": "S",
	}}
	call := NewCall(stub)
	if err := call.Register("msg", TypeVarchar); err != nil {
		t.Fatal(err)
	}
	if err := call.Register(2, TypeInt); err != nil {
		t.Fatal(err)
	}
	if err := call.Register("flag", TypeChar); err != nil {
		t.Fatal(err)
	}
	out, err := call.Exec()
	if err != nil {
		t.Fatal(err)
	}
	if out.Len() != 3 {
		t.Fatalf("expected 3 outputs, got %d", out.Len())
	}
	params := out.Params()
	if params[0].Name != "msg" || params[1].Ordinal != 2 || params[2].Name != "flag" {
		t.Errorf("registration order not preserved: %+v", params)
	}
	if s, err := out.String("msg"); err != nil || s != "hola" {
		t.Errorf("String(msg) = %q, %v", s, err)
	}
	if n, err := out.Int64(2); err != nil || n != 7 {
		t.Errorf("Int64(2) = %d, %v", n, err)
	}
	if b, err := out.Bool("flag"); err != nil || !b {
		t.Errorf("Bool(flag) = %v, %v", b, err)
	}
	if stub.releases != 1 {
		t.Errorf("Exec must always close the handle, releases = %d", stub.releases)
	}
}

func TestCursorOutputsCollectAsResultSets(t *testing.T) {
	cursor := &stubCursor{cols: []string{"id"}, rows: [][]interface{}{{1}}}
	stub := &stubStatement{t: t,
		script:    []stubResult{{hasRows: true, cursor: cursor}},
		outValues: map[string]interface{}{"rc": int64(0)},
	}
	call := NewCall(stub)
	if err := call.Register(1, TypeCursor); err != nil {
		t.Fatal(err)
	}
	if err := call.Register("rc", TypeInt); err != nil {
		t.Fatal(err)
	}
	value, out, err := call.QueryOne(Maps())
	if err != nil {
		t.Fatalf("cursor output broke collection: %v", err)
	}
	if value == nil {
		t.Error("expected the extracted result set")
	}
	if out.Len() != 1 {
		t.Fatalf("expected only the scalar output, got %d", out.Len())
	}
	if _, ok := out.Get(1); ok {
		t.Error("cursor output must not be materialized as a value")
	}
	if n, err := out.Int64("rc"); err != nil || n != 0 {
		t.Errorf("Int64(rc) = %d, %v", n, err)
	}
}

func TestNoResultSetBeforeExhaustion(t *testing.T) {
	// an update count of 3, then nothing: no result set is found
	stub := &stubStatement{t: t, script: []stubResult{{hasRows: false, count: 3}}}
	call := NewCall(stub)
	calls := 0
	value, out, err := call.QueryOne(func(cur Cursor) (interface{}, error) {
		calls++
		return nil, cur.Close()
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 0 {
		t.Errorf("extractor invoked %d times for a call with no result set", calls)
	}
	if value != nil {
		t.Errorf("expected nil value, got %v", value)
	}
	if out == nil || out.Len() != 0 {
		t.Errorf("expected empty output params, got %v", out)
	}
	if stub.releases != 1 {
		t.Errorf("handle not released, releases = %d", stub.releases)
	}
}

func TestQueryAllDrainsInOrder(t *testing.T) {
	cursors := []*stubCursor{
		{cols: []string{"n"}}, {cols: []string{"n"}}, {cols: []string{"n"}},
	}
	stub := &stubStatement{t: t, script: []stubResult{
		{hasRows: true, cursor: cursors[0]},
		{hasRows: false, count: 2},
		{hasRows: true, cursor: cursors[1]},
		{hasRows: true, cursor: cursors[2]},
	}}
	call := NewCall(stub)
	calls := 0
	values, _, err := call.QueryAll(func(cur Cursor) (interface{}, error) {
		calls++
		return calls, cur.Close()
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Fatalf("extractor invoked %d times, expected 3", calls)
	}
	for i, v := range values {
		if v != i+1 {
			t.Errorf("values out of order: %v", values)
			break
		}
	}
	for i, cur := range cursors {
		if !cur.closed {
			t.Errorf("cursor %d left open", i)
		}
	}
	if stub.releases != 1 {
		t.Errorf("handle not released, releases = %d", stub.releases)
	}
}

func TestQueryNPadsMissingResultSets(t *testing.T) {
	stub := &stubStatement{t: t, script: []stubResult{
		{hasRows: true, cursor: &stubCursor{cols: []string{"n"}}},
	}}
	call := NewCall(stub)
	used := make([]int, 3)
	ex := func(i int) Extractor {
		return func(cur Cursor) (interface{}, error) {
			used[i]++
			return i, cur.Close()
		}
	}
	values, _, err := call.QueryN(ex(0), ex(1), ex(2))
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 3 {
		t.Fatalf("expected 3 positions, got %d", len(values))
	}
	if values[0] != 0 || values[1] != nil || values[2] != nil {
		t.Errorf("expected trailing nils, got %v", values)
	}
	if used[1] != 0 || used[2] != 0 {
		t.Errorf("extractors invoked for missing result sets: %v", used)
	}
}

func TestListRowsWithFilter(t *testing.T) {
	cursor := &stubCursor{cols: []string{"n"}, rows: [][]interface{}{{1}, {2}, {3}, {4}}}
	stub := &stubStatement{t: t, script: []stubResult{{hasRows: true, cursor: cursor}}}
	call := NewCall(stub)
	mapper := func(cur Cursor) (interface{}, error) {
		var n int
		if err := cur.Scan(&n); err != nil {
			return nil, err
		}
		return n, nil
	}
	odd := func(cur Cursor) (bool, error) {
		var n int
		if err := cur.Scan(&n); err != nil {
			return false, err
		}
		return n%2 == 1, nil
	}
	values, out, err := call.ListRows(mapper, odd)
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 2 {
		t.Fatalf("expected 2 rows after filtering, got %v", values)
	}
	if out == nil {
		t.Error("expected output params")
	}
	if !cursor.closed {
		t.Error("cursor left open")
	}
}

func TestListAllRows(t *testing.T) {
	stub := &stubStatement{t: t, script: []stubResult{
		{hasRows: true, cursor: &stubCursor{cols: []string{"n"}, rows: [][]interface{}{{1}, {2}}}},
		{hasRows: true, cursor: &stubCursor{cols: []string{"n"}, rows: [][]interface{}{{3}}}},
	}}
	call := NewCall(stub)
	mapper := func(cur Cursor) (interface{}, error) {
		var n int
		if err := cur.Scan(&n); err != nil {
			return nil, err
		}
		return n, nil
	}
	values, _, err := call.ListAllRows(mapper)
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 2 || len(values[0]) != 2 || len(values[1]) != 1 {
		t.Errorf("unexpected shape: %v", values)
	}
}

func TestOperationsAfterCloseFail(t *testing.T) {
	stub := &stubStatement{t: t}
	call := NewCall(stub)
	if err := call.Close(); err != nil {
		t.Fatal(err)
	}
	var stateErr *StateError
	if err := call.Set("p", 1); !errors.As(err, &stateErr) {
		t.Errorf("Set after Close: expected StateError, got %v", err)
	}
	if err := call.Register("p", TypeInt); !errors.As(err, &stateErr) {
		t.Errorf("Register after Close: expected StateError, got %v", err)
	}
	if _, err := call.Exec(); !errors.As(err, &stateErr) {
		t.Errorf("Exec after Close: expected StateError, got %v", err)
	}
	if _, _, err := call.QueryOne(Maps()); !errors.As(err, &stateErr) {
		t.Errorf("QueryOne after Close: expected StateError, got %v", err)
	}
}

func TestRegisterViaFailureClosesHandle(t *testing.T) {
	stub := &stubStatement{t: t}
	call := NewCall(stub)
	boom := errors.New("registration failed")
	err := call.RegisterVia(func(c *Call) error {
		if err := c.Register("rc", TypeInt); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the callback error, got %v", err)
	}
	if stub.releases != 1 {
		t.Errorf("statement not released after failed registration, releases = %d", stub.releases)
	}
}

func TestRegisterDriverRejectionAddsNoDescriptor(t *testing.T) {
	stub := &stubStatement{t: t, registerErr: errors.New("unknown parameter")}
	call := NewCall(stub)
	err := call.Register("nope", TypeInt)
	var dErr *DriverError
	if !errors.As(err, &dErr) {
		t.Fatalf("expected DriverError, got %v", err)
	}
	stub.registerErr = nil
	stub.outValues = map[string]interface{}{}
	out, err := call.Exec()
	if err != nil {
		t.Fatal(err)
	}
	if out.Len() != 0 {
		t.Errorf("rejected registration still bookkept: %d descriptors", out.Len())
	}
}

func TestCloseIsIdempotentAndSuppressesClearFailure(t *testing.T) {
	stub := &stubStatement{t: t, clearErr: errors.New("clear failed")}
	call := NewCall(stub, WithLogger(testr.New(t)))
	if err := call.Close(); err != nil {
		t.Fatalf("clear failure must be suppressed, got %v", err)
	}
	if stub.clearCalls != 1 || stub.releases != 1 {
		t.Errorf("clear/release = %d/%d, expected 1/1", stub.clearCalls, stub.releases)
	}
	if err := call.Close(); err != nil {
		t.Fatalf("second Close must be a no-op, got %v", err)
	}
	if stub.releases != 1 {
		t.Errorf("second Close touched the driver, releases = %d", stub.releases)
	}
}

func TestKeepOpenDefersClosing(t *testing.T) {
	stub := &stubStatement{t: t, script: []stubResult{
		{hasRows: true, cursor: &stubCursor{cols: []string{"n"}}},
	}}
	call := NewCall(stub, KeepOpen())
	if _, _, err := call.QueryOne(Maps()); err != nil {
		t.Fatal(err)
	}
	if stub.releases != 0 {
		t.Fatalf("KeepOpen handle closed after query, releases = %d", stub.releases)
	}
	if err := call.Close(); err != nil {
		t.Fatal(err)
	}
	if stub.releases != 1 {
		t.Errorf("explicit Close did not release, releases = %d", stub.releases)
	}
}

func TestErrorPathsCloseEvenWhenKeptOpen(t *testing.T) {
	stub := &stubStatement{t: t, script: []stubResult{
		{hasRows: true, cursor: &stubCursor{cols: []string{"n"}}},
	}}
	call := NewCall(stub, KeepOpen())
	boom := errors.New("extraction failed")
	_, _, err := call.QueryOne(func(cur Cursor) (interface{}, error) {
		_ = cur.Close()
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected extraction error, got %v", err)
	}
	if stub.releases != 1 {
		t.Errorf("failed query left the statement open, releases = %d", stub.releases)
	}
}

func TestExecuteFailurePropagatesAsDriverError(t *testing.T) {
	stub := &stubStatement{t: t, execErr: errors.New("ORA-06550")}
	call := NewCall(stub)
	_, err := call.Exec()
	var dErr *DriverError
	if !errors.As(err, &dErr) {
		t.Fatalf("expected DriverError, got %v", err)
	}
	if stub.releases != 1 {
		t.Errorf("failed execution left the statement open, releases = %d", stub.releases)
	}
}

func TestQueryHandsOverTheCursor(t *testing.T) {
	cursor := &stubCursor{cols: []string{"n"}, rows: [][]interface{}{{1}}}
	stub := &stubStatement{t: t, script: []stubResult{{hasRows: true, cursor: cursor}}}
	call := NewCall(stub)
	cur, ok, err := call.Query()
	if err != nil || !ok {
		t.Fatalf("expected a result set, got ok=%v, err=%v", ok, err)
	}
	if stub.releases != 0 {
		t.Fatal("handle closed while the caller still owns the cursor")
	}
	var n int
	if !cur.Next() {
		t.Fatal("expected a row")
	}
	if err := cur.Scan(&n); err != nil || n != 1 {
		t.Errorf("scan: %d, %v", n, err)
	}
	if err := cur.Close(); err != nil {
		t.Fatal(err)
	}
	if err := call.Close(); err != nil {
		t.Fatal(err)
	}
	if stub.releases != 1 {
		t.Errorf("explicit Close did not release, releases = %d", stub.releases)
	}
}

func TestMissingExtractorOrMapper(t *testing.T) {
	call := NewCall(&stubStatement{t: t})
	var argErr *ArgumentError
	if _, _, err := call.QueryOne(nil); !errors.As(err, &argErr) {
		t.Errorf("QueryOne(nil): expected ArgumentError, got %v", err)
	}
	if _, _, err := call.QueryAll(nil); !errors.As(err, &argErr) {
		t.Errorf("QueryAll(nil): expected ArgumentError, got %v", err)
	}
	if _, _, err := call.ListRows(nil); !errors.As(err, &argErr) {
		t.Errorf("ListRows(nil): expected ArgumentError, got %v", err)
	}
	if err := call.RegisterVia(nil); !errors.As(err, &argErr) {
		t.Errorf("RegisterVia(nil): expected ArgumentError, got %v", err)
	}
}

package sqlcall

import (
	"time"

	"github.com/ignaciocaff/sqlcall/internal/core"
)

// OutParams holds the materialized values of the registered output
// parameters after execution, keyed by the identifier used at
// registration. Cursor-typed outputs are consumed as result sets and do
// not appear here. It is created once, after execution, and read-only
// afterward.
type OutParams struct {
	params []OutParam
	values map[string]interface{}
}

func newOutParams(params []OutParam) *OutParams {
	ps := make([]OutParam, len(params))
	copy(ps, params)
	return &OutParams{params: ps, values: make(map[string]interface{}, len(ps))}
}

// Len returns the number of registered output parameters.
func (o *OutParams) Len() int { return len(o.params) }

// Params returns the output parameter descriptors in registration order.
func (o *OutParams) Params() []OutParam {
	ps := make([]OutParam, len(o.params))
	copy(ps, o.params)
	return ps
}

// Get returns the raw value of an output parameter by the name or 1-based
// ordinal it was registered under.
func (o *OutParams) Get(id interface{}) (interface{}, bool) {
	name, ordinal, err := identifier("Get", id)
	if err != nil {
		return nil, false
	}
	v, ok := o.values[OutParam{Name: name, Ordinal: ordinal}.Key()]
	return v, ok
}

// String returns an output parameter coerced to string.
func (o *OutParams) String(id interface{}) (string, error) {
	var s string
	err := o.coerce(id, &s)
	return s, err
}

// Int64 returns an output parameter coerced to int64.
func (o *OutParams) Int64(id interface{}) (int64, error) {
	var n int64
	err := o.coerce(id, &n)
	return n, err
}

// Float64 returns an output parameter coerced to float64.
func (o *OutParams) Float64(id interface{}) (float64, error) {
	var f float64
	err := o.coerce(id, &f)
	return f, err
}

// Bool returns an output parameter coerced to bool. Single-character
// "S"/"N" flag columns coerce the way the mapping layer treats them.
func (o *OutParams) Bool(id interface{}) (bool, error) {
	var b bool
	err := o.coerce(id, &b)
	return b, err
}

// Time returns an output parameter coerced to time.Time.
func (o *OutParams) Time(id interface{}) (time.Time, error) {
	var t time.Time
	err := o.coerce(id, &t)
	return t, err
}

func (o *OutParams) coerce(id interface{}, dst interface{}) error {
	v, ok := o.Get(id)
	if !ok {
		return &ArgumentError{Op: "OutParams", Message: "no output parameter registered under the given identifier"}
	}
	return core.Coerce(dst, v)
}

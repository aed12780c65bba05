package sqlcall

import (
	"reflect"
	"strconv"
	"time"
)

// SQLType is the semantic SQL type of a parameter. It is a reduced set of
// type codes, enough to tell the driver how a NULL should be typed and how
// an output parameter should be registered.
type SQLType int

const (
	TypeUnknown SQLType = iota
	TypeBool
	TypeInt
	TypeBigInt
	TypeFloat
	TypeDouble
	TypeDecimal
	TypeChar
	TypeVarchar
	TypeDate
	TypeTime
	TypeTimestamp
	TypeBinary
	TypeBlob
	TypeClob
	TypeCursor
	TypeStruct
)

var typeNames = map[SQLType]string{
	TypeUnknown:   "UNKNOWN",
	TypeBool:      "BOOLEAN",
	TypeInt:       "INTEGER",
	TypeBigInt:    "BIGINT",
	TypeFloat:     "FLOAT",
	TypeDouble:    "DOUBLE",
	TypeDecimal:   "DECIMAL",
	TypeChar:      "CHAR",
	TypeVarchar:   "VARCHAR",
	TypeDate:      "DATE",
	TypeTime:      "TIME",
	TypeTimestamp: "TIMESTAMP",
	TypeBinary:    "BINARY",
	TypeBlob:      "BLOB",
	TypeClob:      "CLOB",
	TypeCursor:    "CURSOR",
	TypeStruct:    "STRUCT",
}

func (t SQLType) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return "SQLType(" + strconv.Itoa(int(t)) + ")"
}

// Param is one bound input parameter, identified by Name or by a 1-based
// Ordinal (Name wins when both are set). Null carries a typed NULL: Value
// is nil and Type holds the semantic SQL type the driver should use.
type Param struct {
	Name     string
	Ordinal  int
	Value    interface{}
	Type     SQLType
	Scale    int
	TypeName string
	Null     bool
}

// OutParam identifies one registered output parameter. It is created at
// registration time and immutable afterward; the adapter keeps them in
// registration order so output values can be retrieved later without
// re-deriving which parameters were declared as outputs.
type OutParam struct {
	Name     string
	Ordinal  int
	Type     SQLType
	Scale    int
	TypeName string
}

// Key returns the identifier the parameter was registered under, for maps
// keyed by mixed name/ordinal identity.
func (p OutParam) Key() string {
	if p.Name != "" {
		return p.Name
	}
	return "#" + strconv.Itoa(p.Ordinal)
}

// nullKinds maps the element kind of a nil typed pointer to the SQL type
// of the NULL that gets bound in its place.
var nullKinds = map[reflect.Kind]SQLType{
	reflect.Bool:    TypeBool,
	reflect.Int:     TypeBigInt,
	reflect.Int8:    TypeInt,
	reflect.Int16:   TypeInt,
	reflect.Int32:   TypeInt,
	reflect.Int64:   TypeBigInt,
	reflect.Uint:    TypeBigInt,
	reflect.Uint8:   TypeInt,
	reflect.Uint16:  TypeInt,
	reflect.Uint32:  TypeBigInt,
	reflect.Uint64:  TypeBigInt,
	reflect.Float32: TypeFloat,
	reflect.Float64: TypeDouble,
	reflect.String:  TypeVarchar,
}

var timeType = reflect.TypeOf(time.Time{})

// nullTypeOf derives the semantic SQL type for a NULL from the static type
// of the value it replaces. The value must be a nil pointer (or nil slice);
// TypeUnknown signals that nothing could be derived and the caller must
// supply the type explicitly.
func nullTypeOf(value interface{}) SQLType {
	if value == nil {
		return TypeUnknown
	}
	t := reflect.TypeOf(value)
	if t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8 {
		return TypeBinary
	}
	if t.Kind() != reflect.Ptr {
		return TypeUnknown
	}
	elem := t.Elem()
	if elem == timeType {
		return TypeTimestamp
	}
	if st, ok := nullKinds[elem.Kind()]; ok {
		return st
	}
	return TypeUnknown
}

// TypedNull returns a nil typed pointer matching the semantic SQL type,
// so a NULL reaches the driver carrying its type instead of as a bare
// untyped nil.
func TypedNull(t SQLType) interface{} {
	switch t {
	case TypeBool:
		return (*bool)(nil)
	case TypeInt, TypeBigInt:
		return (*int64)(nil)
	case TypeFloat, TypeDouble, TypeDecimal:
		return (*float64)(nil)
	case TypeDate, TypeTime, TypeTimestamp:
		return (*time.Time)(nil)
	case TypeBinary, TypeBlob:
		return []byte(nil)
	default:
		return (*string)(nil)
	}
}

// isNull reports whether a bound value stands for SQL NULL: untyped nil,
// a nil pointer, or a nil byte slice.
func isNull(value interface{}) bool {
	if value == nil {
		return true
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Ptr, reflect.Slice:
		return v.IsNil()
	}
	return false
}

package sqlcall

import (
	"reflect"

	"github.com/jmoiron/sqlx"
)

// Structs returns an Extractor scanning every row of a result set into
// dest, a pointer to a slice of structs, matching columns to fields by
// db tag the way sqlx does.
func Structs(dest interface{}) Extractor {
	return func(cur Cursor) (_ interface{}, err error) {
		defer closeCursor(cur, &err)
		if dest == nil {
			return nil, &ArgumentError{Op: "Structs", Message: "destination is required"}
		}
		if err = sqlx.StructScan(cur, dest); err != nil {
			return nil, err
		}
		return dest, nil
	}
}

// Struct returns an Extractor scanning the first row of a result set into
// dest, a pointer to a struct. The result set is fully consumed either
// way; when it is empty dest is left untouched.
func Struct(dest interface{}) Extractor {
	return func(cur Cursor) (_ interface{}, err error) {
		defer closeCursor(cur, &err)
		v := reflect.ValueOf(dest)
		if dest == nil || v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
			return nil, &ArgumentError{Op: "Struct", Message: "destination must be a pointer to a struct"}
		}
		slice := reflect.New(reflect.SliceOf(v.Type().Elem()))
		if err = sqlx.StructScan(cur, slice.Interface()); err != nil {
			return nil, err
		}
		if slice.Elem().Len() > 0 {
			v.Elem().Set(slice.Elem().Index(0))
		}
		return dest, nil
	}
}

// Maps returns an Extractor producing one map per row, keyed by column
// name.
func Maps() Extractor {
	return func(cur Cursor) (_ interface{}, err error) {
		defer closeCursor(cur, &err)
		var out []map[string]interface{}
		for cur.Next() {
			m := map[string]interface{}{}
			if err = sqlx.MapScan(cur, m); err != nil {
				return nil, err
			}
			out = append(out, m)
		}
		if err = cur.Err(); err != nil {
			return nil, err
		}
		return out, nil
	}
}

// Slices returns an Extractor producing one []interface{} per row, in
// column order.
func Slices() Extractor {
	return func(cur Cursor) (_ interface{}, err error) {
		defer closeCursor(cur, &err)
		var out [][]interface{}
		for cur.Next() {
			row, serr := sqlx.SliceScan(cur)
			if serr != nil {
				return nil, serr
			}
			out = append(out, row)
		}
		if err = cur.Err(); err != nil {
			return nil, err
		}
		return out, nil
	}
}

// MapRow is a RowMapper producing a map keyed by column name for the
// current row.
func MapRow(cur Cursor) (interface{}, error) {
	m := map[string]interface{}{}
	if err := sqlx.MapScan(cur, m); err != nil {
		return nil, err
	}
	return m, nil
}

// SliceRow is a RowMapper producing the current row as a []interface{} in
// column order.
func SliceRow(cur Cursor) (interface{}, error) {
	return sqlx.SliceScan(cur)
}

func closeCursor(cur Cursor, err *error) {
	if cerr := cur.Close(); *err == nil && cerr != nil {
		*err = cerr
	}
}

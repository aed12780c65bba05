// Package oracle provides callable Statement implementations for the two
// Oracle drivers, go-ora and godror. Stored procedures return rows through
// SYS_REFCURSOR output parameters, so registered cursor outputs become the
// adapter's result-set stream.
package oracle

import (
	"context"
	"database/sql"
	"reflect"
	"sort"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ignaciocaff/sqlcall"
)

// slot is one parameter position of the PL/SQL call, input or output, with
// the argument that gets passed to the driver.
type slot struct {
	name    string
	ordinal int
	arg     interface{}
}

// assemble builds the anonymous block invoking the procedure and the
// driver arguments in placeholder order. Ordinal parameters come first as
// :1..:n (PL/SQL requires positional before named); named parameters are
// appended as name => :name.
func assemble(proc string, slots []slot) (string, []interface{}) {
	positional := make([]slot, 0, len(slots))
	named := make([]slot, 0)
	for _, s := range slots {
		if s.name != "" {
			named = append(named, s)
			continue
		}
		positional = append(positional, s)
	}
	sort.SliceStable(positional, func(i, j int) bool { return positional[i].ordinal < positional[j].ordinal })

	text := "BEGIN " + proc + "("
	args := make([]interface{}, 0, len(slots))
	for i, s := range positional {
		if i > 0 {
			text += ", "
		}
		text += ":" + strconv.Itoa(i+1)
		args = append(args, s.arg)
	}
	for i, s := range named {
		if i > 0 || len(positional) > 0 {
			text += ", "
		}
		text += s.name + " => :" + s.name
		args = append(args, sql.Named(s.name, s.arg))
	}
	text += "); END;"
	return text, args
}

// destFor returns a typed destination pointer for a scalar output
// parameter.
func destFor(t sqlcall.SQLType) interface{} {
	switch t {
	case sqlcall.TypeBool:
		return new(bool)
	case sqlcall.TypeInt, sqlcall.TypeBigInt:
		return new(int64)
	case sqlcall.TypeFloat, sqlcall.TypeDouble, sqlcall.TypeDecimal:
		return new(float64)
	case sqlcall.TypeDate, sqlcall.TypeTime, sqlcall.TypeTimestamp:
		return new(time.Time)
	case sqlcall.TypeBinary, sqlcall.TypeBlob:
		return new([]byte)
	default:
		return new(string)
	}
}

func deref(dest interface{}) interface{} {
	v := reflect.ValueOf(dest)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return nil
	}
	return v.Elem().Interface()
}

// Execute runs a stored procedure whose first parameter is a SYS_REFCURSOR
// and maps the cursor rows to the provided result parameter, a pointer to
// a struct or to a slice of structs. It takes a database connection, a
// context, the stored procedure name, the result and optional arguments
// bound from position 2 on.
func Execute(db *sqlx.DB, ctx context.Context, procedureName string, result interface{}, args ...interface{}) error {
	if db == nil {
		return &sqlcall.ArgumentError{Op: "oracle.Execute", Message: "database connection is required"}
	}
	call := sqlcall.NewCall(NewStatement(db, procedureName), sqlcall.WithContext(ctx))
	err := call.RegisterVia(func(c *sqlcall.Call) error {
		if err := c.Register(1, sqlcall.TypeCursor); err != nil {
			return err
		}
		for i, a := range args {
			if err := c.Set(i+2, a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	ex := sqlcall.Struct(result)
	rv := reflect.ValueOf(result)
	if rv.Kind() == reflect.Ptr && rv.Elem().Kind() == reflect.Slice {
		ex = sqlcall.Structs(result)
	}
	_, _, err = call.QueryOne(ex)
	return err
}

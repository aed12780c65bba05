package pkg

import (
	"github.com/ignaciocaff/sqlcall/internal/core"
	"github.com/ignaciocaff/sqlcall/oracle"
)

// Execute executes a stored procedure and maps the results to the provided
// result parameter, using the globally configured database connection and
// context (see sqlcall.Configure). It takes the stored procedure name, a
// result (pointer to a struct or to a slice of structs) and optional
// arguments.
func Execute(procedureName string, result interface{}, args ...interface{}) error {
	return oracle.Execute(core.GetDB(), core.GetContext(), procedureName, result, args...)
}

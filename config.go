// Package sqlcall is a fluent adapter for invoking stored procedures
// through a callable statement: typed input parameter binding, output
// parameter registration and retrieval, result-set extraction through
// pluggable functions and deterministic statement release.
//
// The adapter delegates everything to a driver-side Statement; the
// oracle subpackage provides Statement implementations for the go-ora
// and godror drivers, and SQLStatement covers database/sql drivers that
// support output parameters via sql.Out.
package sqlcall

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/jmoiron/sqlx"

	"github.com/ignaciocaff/sqlcall/internal/core"
)

// Configure sets up the global database connection and application context.
// It takes a database connection (dbConn) and a context (ctx) as parameters
// and assigns them to the global variables used by the pkg convenience surface.
// If the connection is missing, it panics with an error message indicating the missing configuration.

func Configure(dbConn *sqlx.DB, ctx context.Context) {
	core.Configure(dbConn, ctx)
}

// SetLogger sets the logger used by the global convenience surface.
func SetLogger(log logr.Logger) {
	core.SetLogger(log)
}

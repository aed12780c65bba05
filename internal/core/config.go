package core

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/jmoiron/sqlx"
)

var (
	db         *sqlx.DB
	appContext context.Context
	logger     = logr.Discard()
)

func Configure(dbConn *sqlx.DB, ctx context.Context) {
	if dbConn == nil {
		panic("Configuración de base de datos y/o contexto no proporcionados")
	}
	db = dbConn
	appContext = ctx
}

func SetLogger(log logr.Logger) {
	logger = log
}

func GetDB() *sqlx.DB {
	return db
}

func GetContext() context.Context {
	return appContext
}

func GetLogger() logr.Logger {
	return logger
}

package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context carries the request context and, inside a catalog transaction, the
// transaction handle. Repos run against Tx when set and their own pool
// otherwise.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// New binds ctx to db, which may be nil to use the repo's pool.
func New(ctx context.Context, db *gorm.DB) Context {
	return Context{Ctx: ctx, Tx: db}
}

// Context returns the request context, never nil.
func (c Context) Context() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

// DB returns the handle a statement should run on: the bound transaction, or
// fallback when none is bound. The result always carries the request context.
func (c Context) DB(fallback *gorm.DB) *gorm.DB {
	db := c.Tx
	if db == nil {
		db = fallback
	}
	return db.WithContext(c.Context())
}

// Transaction runs fn with a Context bound to a transaction on c's handle (or
// fallback). Nested calls become savepoints. Without any handle fn runs on c
// unchanged.
func Transaction(c Context, fallback *gorm.DB, fn func(Context) error) error {
	db := c.Tx
	if db == nil {
		db = fallback
	}
	if db == nil {
		return fn(c)
	}
	return db.WithContext(c.Context()).Transaction(func(tx *gorm.DB) error {
		return fn(Context{Ctx: c.Context(), Tx: tx})
	})
}

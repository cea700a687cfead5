// Package repository stores groups, authors and publications in PostgreSQL.
//
// Every write is an upsert on a unique key the schema enforces, so
// concurrent reconciliation jobs never check-then-insert:
//
//	research_groups(name)
//	authors(first_name, last_name, research_group_id)
//	publications(title, publication_date)
//	author_publications(author_id, publication_id, author_order)
//
// Repositories take a DBTX and therefore run on the pool or inside a
// transaction. PgRecordStore commits one fetched record per transaction.
package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/yohaboy/research-tracker/internal/database"
)

// DBTX is either the pool or an open transaction.
type DBTX = database.DBTX

// page bounds the limit/offset of list queries.
type page struct{ limit, offset int }

var listPage = struct{ fallback, max int }{fallback: 100, max: 1000}

// clamp fills a missing limit, caps an oversized one and floors offset at 0.
func (p page) clamp() page {
	switch {
	case p.limit <= 0:
		p.limit = listPage.fallback
	case p.limit > listPage.max:
		p.limit = listPage.max
	}
	p.offset = max(p.offset, 0)
	return p
}

// SQLSTATE codes the repositories branch on.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return ""
	}
	return pgErr.Code
}

// isConflict is true for write races that re-reading the row resolves.
func isConflict(err error) bool {
	code := pgErrorCode(err)
	return code == pgUniqueViolation || code == pgSerializationFailure || code == pgDeadlockDetected
}

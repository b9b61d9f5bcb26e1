// Package repository implements the MySQL persistence of the scheduler.
// Repositories translate driver errors into the model error taxonomy:
// sql.ErrNoRows becomes a *model.LookupError for the entity, and a
// duplicate-key violation (MySQL error 1062) becomes a *model.DuplicateError.
// Handlers therefore never see driver-specific errors.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// isDuplicateKey reports whether err is a unique constraint violation.
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDuplicateEntry
	}
	return false
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// inClause returns "?,?,?" for n placeholders and the ids as arguments.
func inClause(ids []uint64) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}

package sqlite

import (
	"errors"

	"github.com/mattn/go-sqlite3"

	"tombstone/internal/core/apperror"
)

func mapError(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.Code != sqlite3.ErrConstraint {
		return err
	}
	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintForeignKey:
		return apperror.NewConflict("cannot delete: record is referenced by other entities").WithCause(err)
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return apperror.NewConflict("record already exists").WithCause(err)
	}
	return err
}

package errors

import (
	"database/sql"
	"errors"

	sqlite "modernc.org/sqlite"
)

// SQLite primary and extended result codes recognised by MapDBError.
// Extended codes are base | (sub << 8) per the SQLite result code scheme.
const (
	sqliteConstraint           = 19
	sqliteConstraintCheck      = 275
	sqliteConstraintForeignKey = 787
	sqliteConstraintNotNull    = 1299
	sqliteConstraintPrimaryKey = 1555
	sqliteConstraintUnique     = 2067
)

// MapDBError maps database errors to AppError instances.
// It handles common database error patterns including:
// - sql.ErrNoRows → NotFound
// - Unique / primary key violations → Conflict
// - CHECK and NOT NULL violations → Validation
//
// If the error is not a recognized database error, it returns the original error.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return &AppError{
			Code:    ErrCodeNotFound,
			Message: "resource not found",
			Cause:   err,
		}
	}

	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		return mapSQLiteError(sqErr)
	}

	// Return original error if not a recognized database error
	return err
}

// mapSQLiteError maps SQLite-specific result codes to AppError instances.
func mapSQLiteError(sqErr *sqlite.Error) error {
	switch sqErr.Code() {
	case sqliteConstraintUnique, sqliteConstraintPrimaryKey:
		return &AppError{
			Code:    ErrCodeConflict,
			Message: "record already exists",
			Cause:   sqErr,
		}
	case sqliteConstraintNotNull:
		return &AppError{
			Code:    ErrCodeValidation,
			Message: "required field is missing",
			Cause:   sqErr,
		}
	case sqliteConstraintCheck:
		return &AppError{
			Code:    ErrCodeValidation,
			Message: "field has an invalid value",
			Cause:   sqErr,
		}
	case sqliteConstraint, sqliteConstraintForeignKey:
		return &AppError{
			Code:    ErrCodeConflict,
			Message: "constraint violation",
			Cause:   sqErr,
		}
	default:
		return &AppError{
			Code:    ErrCodeInternal,
			Message: "a database error occurred",
			Cause:   sqErr,
		}
	}
}

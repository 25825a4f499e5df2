package spmcp

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorKind classifies gateway failures.
type ErrorKind string

const (
	// KindNotInitialized means the pool was used before Open or after Close.
	// It is a programming error and callers should not retry.
	KindNotInitialized ErrorKind = "not_initialized"
	// KindConnection covers acquisition, network and other non-database failures.
	KindConnection ErrorKind = "connection"
	// KindStatement is an error reported by the database for the statement.
	KindStatement ErrorKind = "statement"
	// KindInvalidInput is raised before any database access.
	KindInvalidInput ErrorKind = "invalid_input"
	// KindNotFound is returned when a table lookup yields no columns.
	KindNotFound ErrorKind = "not_found"
)

// ErrNotInitialized is wrapped by every error returned while no pool is open.
var ErrNotInitialized = errors.New("database connection pool not initialized, call Open first")

// Error is the single error type returned by Gateway operations.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Hint    string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Display returns the message followed by any matched hints, as shown to agents.
func (e *Error) Display() string {
	if e.Hint == "" {
		return e.Message
	}
	return e.Message + "\n\n" + e.Hint
}

// KindOf returns the ErrorKind of err, or "" if err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// classifyError turns a driver error into an *Error. Database-reported errors keep
// only the primary diagnostic message.
func classifyError(op string, err error) *Error {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr
	}
	if errors.Is(err, ErrNotInitialized) {
		return &Error{Kind: KindNotInitialized, Op: op, Message: err.Error(), Err: err}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		msg := pgErr.Message
		if msg == "" {
			msg = err.Error()
		}
		return &Error{Kind: KindStatement, Op: op, Message: "Database error: " + msg, Err: err}
	}
	return &Error{Kind: KindConnection, Op: op, Message: fmt.Sprintf("Query execution failed: %v", err), Err: err}
}

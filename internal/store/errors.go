package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
)

// ErrConnection marks a lost or unreachable database. Callers treat it as
// fatal for the current task instead of counting it as a storage error.
var ErrConnection = eris.New("store: connection lost")

// ErrInvalidRecord is returned for records missing the fields an upsert keys on.
var ErrInvalidRecord = eris.New("store: invalid record")

type connError struct {
	op  string
	err error
}

func (e *connError) Error() string { return "store: " + e.op + ": connection lost: " + e.err.Error() }

func (e *connError) Unwrap() []error { return []error{ErrConnection, e.err} }

// classify wraps err for op, tagging connection-level failures with
// ErrConnection.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConnection) {
		return err
	}
	if IsConnectionError(err) {
		return &connError{op: op, err: err}
	}
	return eris.Wrap(err, "store: "+op)
}

// IsConnectionError reports whether err means the database could not be
// reached or the connection dropped mid-operation.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConnection) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exception.
		return len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08"
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if pgconn.Timeout(err) {
		return true
	}

	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, pgx.ErrTxClosed),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

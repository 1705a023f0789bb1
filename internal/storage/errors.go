package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies a failure reported by the backing store.
type Kind string

const (
	KindConnectionLost    Kind = "CONNECTION_LOST"
	KindConnectionRefused Kind = "CONNECTION_REFUSED"
	KindConnectionReset   Kind = "CONNECTION_RESET"
	KindBrokenPipe        Kind = "BROKEN_PIPE"
	KindEnqueueAfterFatal Kind = "ENQUEUE_AFTER_FATAL"
	KindFatal             Kind = "FATAL"
)

// Retryable reports whether a failure of this kind is recovered by rebuilding the handle.
func (k Kind) Retryable() bool {
	switch k {
	case KindConnectionLost, KindConnectionRefused, KindConnectionReset, KindBrokenPipe, KindEnqueueAfterFatal:
		return true
	default:
		return false
	}
}

// StorageError is returned by the Executor for every failure it does not pass through.
type StorageError struct {
	Kind Kind
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", strings.ToLower(string(e.Kind)), e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsUnavailable reports whether err is a transient fault that survived the executor's retry.
func IsUnavailable(err error) bool {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Kind.Retryable()
	}
	return false
}

// message fragments used when a driver flattens the underlying cause into text
var transientMessages = []struct {
	fragment string
	kind     Kind
}{
	{"connection refused", KindConnectionRefused},
	{"connection reset", KindConnectionReset},
	{"broken pipe", KindBrokenPipe},
	{"conn closed", KindEnqueueAfterFatal},
	{"enqueue after fatal", KindEnqueueAfterFatal},
	{"unexpected eof", KindConnectionLost},
	{"server closed the connection", KindConnectionLost},
	{"connection lost", KindConnectionLost},
}

// Classify maps err onto the closed set of transport-fault kinds. Anything it does
// not recognise is KindFatal.
func Classify(err error) Kind {
	if err == nil {
		return KindFatal
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED:
			return KindConnectionRefused
		case syscall.ECONNRESET:
			return KindConnectionReset
		case syscall.EPIPE:
			return KindBrokenPipe
		}
	}

	if errors.Is(err, sql.ErrConnDone) {
		return KindEnqueueAfterFatal
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 08 is connection exception; 57P01-57P03 are server shutdown/unavailable
		if strings.HasPrefix(pgErr.Code, "08") || pgErr.Code == "57P01" || pgErr.Code == "57P02" || pgErr.Code == "57P03" {
			return KindConnectionLost
		}
		return KindFatal
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return KindConnectionLost
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && !opErr.Timeout() {
		return KindConnectionLost
	}

	msg := strings.ToLower(err.Error())
	for _, m := range transientMessages {
		if strings.Contains(msg, m.fragment) {
			return m.kind
		}
	}

	return KindFatal
}

// passThrough errors are not store faults and are returned to the caller untouched.
func passThrough(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

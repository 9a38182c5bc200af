// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package kv

import "github.com/pkg/errors"

// Kind classifies a StorageError so callers can tell an I/O failure,
// which must abort and retry the whole apply, from an AppError, which
// is a rule violation the apply engine turns into a normal response.
type Kind int

const (
	IO Kind = iota
	Conflict
	Corruption
	NotFound
	// AppError is a transparent pass-through: it carries an
	// application-level rule violation out of a transaction closure
	// without the transaction machinery treating it as an I/O failure.
	AppError
)

func (k Kind) String() string {
	switch k {
	case IO:
		return "io"
	case Conflict:
		return "conflict"
	case Corruption:
		return "corruption"
	case NotFound:
		return "not_found"
	case AppError:
		return "app_error"
	default:
		return "unknown"
	}
}

// StorageError is the only error type that crosses the A/Txn boundary.
// Cause holds the original application error for Kind == AppError so the
// caller can recover it with errors.As without string matching.
type StorageError struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *StorageError) Error() string {
	if e.Cause != nil {
		return e.Kind.String() + ": " + e.Msg + ": " + e.Cause.Error()
	}
	return e.Kind.String() + ": " + e.Msg
}

func (e *StorageError) Unwrap() error { return e.Cause }

func NewIOError(msg string, cause error) *StorageError {
	return &StorageError{Kind: IO, Msg: msg, Cause: cause}
}

func NewCorruptionError(msg string) *StorageError {
	return &StorageError{Kind: Corruption, Msg: msg}
}

// NewAppError wraps an application-level rule violation so it can pass
// through a Txn closure without aborting the batch as an I/O failure.
func NewAppError(cause error) *StorageError {
	return &StorageError{Kind: AppError, Msg: cause.Error(), Cause: cause}
}

func IsAppError(err error) (cause error, ok bool) {
	var se *StorageError
	if errors.As(err, &se) && se.Kind == AppError {
		return se.Cause, true
	}
	return nil, false
}

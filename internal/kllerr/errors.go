// Copyright (C) 2023 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package kllerr distinguishes the two error kinds the percentile
// aggregation core can raise: a UserError, which the query should report
// to its caller and otherwise keep running, and an InvariantError, which
// means the operator's internal state is no longer trustworthy and the
// query must be torn down.
package kllerr

import (
	"errors"
	"fmt"
)

// UserError reports a problem with caller-supplied input: an out-of-range
// argument, an unbound percentile expression, a value outside the
// supported numeric domain. The query should surface it and continue.
type UserError struct {
	Op  string
	Msg string
}

func (e *UserError) Error() string {
	if e.Op == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

// NewUser constructs a UserError, formatting Msg like fmt.Sprintf.
func NewUser(op, format string, args ...any) *UserError {
	return &UserError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// InvariantError reports that an internal invariant the operator relies on
// no longer holds: an undecodable spilled view, a checksum mismatch on a
// restored spill, a sketch merge between incompatible numeric kinds. The
// query that raised it cannot continue.
type InvariantError struct {
	Op  string
	Msg string
}

func (e *InvariantError) Error() string {
	if e.Op == "" {
		return "internal invariant violated: " + e.Msg
	}
	return fmt.Sprintf("internal invariant violated in %s: %s", e.Op, e.Msg)
}

// NewInvariant constructs an InvariantError, formatting Msg like fmt.Sprintf.
func NewInvariant(op, format string, args ...any) *InvariantError {
	return &InvariantError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// IsUser reports whether err is (or wraps) a *UserError.
func IsUser(err error) bool {
	var e *UserError
	return errors.As(err, &e)
}

// IsInvariant reports whether err is (or wraps) an *InvariantError.
func IsInvariant(err error) bool {
	var e *InvariantError
	return errors.As(err, &e)
}

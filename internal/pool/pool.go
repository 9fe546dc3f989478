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

// Package pool implements the two allocator scopes the percentile
// aggregation core distinguishes: a Session, bump-allocated and owned
// exclusively by the operator goroutine that holds it, and a Process,
// page-bitmap-backed and safe to share with a spill writer running on a
// different goroutine. GroupAccumulator.Compact (package vm) is the only
// caller of a Process: it charges one page per compacted sketch copy.
package pool

// Allocator obtains and releases byte buffers; Session and Process both
// implement it.
type Allocator interface {
	// Alloc returns a buffer of at least n bytes. Its capacity may exceed
	// n; callers must slice it down themselves.
	Alloc(n int) []byte
	// Free returns buf to the allocator. buf must have been returned by
	// Alloc on the same Allocator and must not be used afterward.
	Free(buf []byte)
}

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

// Package telemetry logs batch- and operator-level events for the
// percentile aggregation core using the standard log package, the same
// logging style the rest of the engine uses.
package telemetry

import (
	"log"

	"github.com/google/uuid"
)

// Operator tags every log line with a per-instance id so that events from
// concurrently running aggregate operators in the same process can be
// told apart in a shared log stream.
type Operator struct {
	id     uuid.UUID
	logger *log.Logger
}

// NewOperator returns an Operator with a fresh instance id, logging
// through the standard logger.
func NewOperator() *Operator {
	return &Operator{id: uuid.New(), logger: log.Default()}
}

func (o *Operator) ID() uuid.UUID { return o.id }

func (o *Operator) logf(format string, args ...any) {
	o.logger.Printf("percentile[%s] "+format, append([]any{o.id}, args...)...)
}

// ArgumentLatched logs the first batch's percentile/accuracy binding.
func (o *Operator) ArgumentLatched(k uint16, numRanks int) {
	o.logf("argument latched: k=%d ranks=%d", k, numRanks)
}

// Flushed logs a GroupAccumulator flush that drained its large-weight
// buffer into its sketch.
func (o *Operator) Flushed(groupIdx int, bufferedPairs int) {
	o.logf("flush: group=%d buffered_pairs=%d", groupIdx, bufferedPairs)
}

// Spilled logs a compact-for-spill of one group's accumulator.
func (o *Operator) Spilled(groupIdx int, compressedBytes int) {
	o.logf("spill: group=%d compressed_bytes=%d", groupIdx, compressedBytes)
}

// Merged logs an addIntermediateResults merge for one group.
func (o *Operator) Merged(groupIdx int, sourceN uint64) {
	o.logf("merge: group=%d source_n=%d", groupIdx, sourceN)
}

// RejectedArgument logs a batch rejected for violating the
// constant-argument invariant (spec.md §8 property 8).
func (o *Operator) RejectedArgument(reason string) {
	o.logf("rejected batch: %s", reason)
}

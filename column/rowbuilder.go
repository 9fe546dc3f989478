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

package column

// SketchRow is the columnar wire shape of one finalized sketch: the
// compact six-field serialization (spec.md §4.1) for one group, plus
// whether that group ever received a non-null value. A null row
// represents an empty group (spec.md §8 "Empty-group null").
type SketchRow[T Numeric] struct {
	Null     bool
	K        uint16
	N        uint64
	MinValue T
	MaxValue T
	Items    []T
	Levels   []uint32
}

// RowBatch is a batch of SketchRow values, the shape AggregateOperator's
// extractAccumulators produces and addIntermediateResults consumes at a
// phase boundary. The engine that turns this into wire columns, or wire
// columns back into this, lives outside the percentile core.
type RowBatch[T Numeric] struct {
	Rows []SketchRow[T]
}

// ResultColumn is the scalar or array output column a finalized
// AggregateOperator.extractValues produces: one value per group, or one
// array per group when the percentile argument was itself a vector of
// ranks.
type ResultColumn[T Numeric] struct {
	Null   []bool
	Scalar []T
	Array  [][]T
}

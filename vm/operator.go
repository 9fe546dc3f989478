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

// Package vm implements the approximate-percentile aggregate operator:
// the per-group accumulator, the argument binder latching percentile and
// accuracy arguments, and the three-phase aggregation contract the
// surrounding vectorized engine drives via addRawInput/addIntermediateResults
// /extractAccumulators/extractValues.
package vm

import (
	"golang.org/x/exp/slices"

	"github.com/sneller-contrib/kllpercentile/column"
	"github.com/sneller-contrib/kllpercentile/config"
	"github.com/sneller-contrib/kllpercentile/internal/kllerr"
	"github.com/sneller-contrib/kllpercentile/internal/percentile"
	"github.com/sneller-contrib/kllpercentile/internal/pool"
	"github.com/sneller-contrib/kllpercentile/internal/telemetry"
)

// numeric is the shared type set column.Numeric and percentile.Ordered
// both describe; declaring it once lets AggregateOperator instantiate
// both generic families from a single type parameter.
type numeric interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

// RawArgs carries one batch's decoded raw-input arguments: the value and
// optional weight columns, plus the latched-or-latching percentile and
// accuracy arguments.
type RawArgs[T numeric] struct {
	Value       column.Column[T]
	Weight      *column.Column[int64] // nil when the aggregate has no weight argument
	Percentiles []float64
	IsArray     bool
	Accuracy    *float64
}

// IntermediateArgs carries one batch's decoded intermediate-phase row
// plus its constant header fields, mirroring the row type spec.md §6
// defines.
type IntermediateArgs[T numeric] struct {
	Rows        column.RowBatch[T]
	Percentiles []float64
	IsArray     bool
	Accuracy    *float64
}

// AggregateOperator implements the three-phase approx-percentile
// aggregate contract over one group space. One instance serves exactly
// one aggregate expression in one query; the surrounding engine
// serializes every call against a given instance.
type AggregateOperator[T numeric] struct {
	binder    *ArgumentBinder
	groups    []*GroupAccumulator[T]
	cfg       *config.QueryConfig
	telemetry *telemetry.Operator
	proc      *pool.Process
}

// NewAggregateOperator returns an operator with no groups yet allocated.
func NewAggregateOperator[T numeric](cfg *config.QueryConfig, proc *pool.Process) *AggregateOperator[T] {
	if cfg == nil {
		cfg = config.Default()
	}
	return &AggregateOperator[T]{
		binder:    NewArgumentBinder(),
		cfg:       cfg,
		telemetry: telemetry.NewOperator(),
		proc:      proc,
	}
}

// initializeNewGroups reserves newGroupCount additional group slots,
// growing the slice as needed. Newly created slots start nil (Empty, unmarked) and get their sketch lazily on first append
// via initRawAccumulator, since the accuracy argument may not yet be
// latched at allocation time.
func (op *AggregateOperator[T]) initializeNewGroups(newGroupCount int) {
	need := len(op.groups) + newGroupCount
	if need <= cap(op.groups) {
		op.groups = op.groups[:need]
		return
	}
	grown := make([]*GroupAccumulator[T], need)
	copy(grown, op.groups)
	op.groups = grown
}

// initRawAccumulator lazily constructs the accumulator at groups[idx] the
// first time it is touched, picking up whatever accuracy has been latched
// by then (spec.md §4.3's "applied lazily at each accumulator's first
// use").
func (op *AggregateOperator[T]) initRawAccumulator(idx int) (*GroupAccumulator[T], error) {
	if op.groups[idx] != nil {
		return op.groups[idx], nil
	}
	acc, err := NewGroupAccumulator[T](op.binder.K(), op.cfg.FixedRandomSeed)
	if err != nil {
		return nil, err
	}
	op.groups[idx] = acc
	return acc, nil
}

// addRawInput implements the partial phase for a multi-group batch: bind
// arguments, then for every selected row with a matched group and a
// non-null value (and non-null weight, when present) append it to that
// row's accumulator.
func (op *AggregateOperator[T]) addRawInput(groups column.Groups, sel column.Selection, args RawArgs[T]) error {
	if err := op.binder.BindPercentile(args.Percentiles, args.IsArray); err != nil {
		op.telemetry.RejectedArgument(err.Error())
		return err
	}
	if err := op.binder.BindAccuracy(args.Accuracy); err != nil {
		op.telemetry.RejectedArgument(err.Error())
		return err
	}
	for row := 0; row < args.Value.Len(); row++ {
		if !groups.Active(sel, row) {
			continue
		}
		if !args.Value.IsValid(row) {
			continue
		}
		g := int(groups[row])
		if g >= len(op.groups) {
			return kllerr.NewInvariant("AggregateOperator.addRawInput", "group index %d out of range (have %d groups)", g, len(op.groups))
		}
		acc, err := op.initRawAccumulator(g)
		if err != nil {
			return err
		}
		if args.Weight == nil {
			acc.Append(args.Value.At(row))
			continue
		}
		if !args.Weight.IsValid(row) {
			continue
		}
		w := args.Weight.At(row)
		if w < 1 {
			return kllerr.NewUser("AggregateOperator.addRawInput", "weight must be in [1, %d], got %d", maxWeight, w)
		}
		if err := acc.AppendWeighted(args.Value.At(row), uint64(w), op.cfg.FixedRandomSeed); err != nil {
			return err
		}
	}
	return nil
}

// addSingleGroupRawInput is addRawInput specialized to one global
// accumulator, the shape used for a non-grouped aggregation.
func (op *AggregateOperator[T]) addSingleGroupRawInput(group int, args RawArgs[T]) error {
	groups := make(column.Groups, args.Value.Len())
	for i := range groups {
		groups[i] = uint64(group)
	}
	return op.addRawInput(groups, nil, args)
}

// addIntermediateResults implements the merge phase for a multi-group
// batch: bind the header fields, then for every selected non-null row
// build a view over its flat children and merge it into the accumulator
// at groups[row].
func (op *AggregateOperator[T]) addIntermediateResults(groups column.Groups, sel column.Selection, args IntermediateArgs[T]) error {
	if err := op.binder.BindIntermediate(args.Percentiles, args.IsArray, args.Accuracy); err != nil {
		op.telemetry.RejectedArgument(err.Error())
		return err
	}
	strict := op.cfg.StrictIntermediateValidation
	for row := 0; row < len(args.Rows.Rows); row++ {
		if !groups.Active(sel, row) {
			continue
		}
		r := args.Rows.Rows[row]
		if r.Null {
			continue
		}
		g := int(groups[row])
		if g >= len(op.groups) {
			return kllerr.NewInvariant("AggregateOperator.addIntermediateResults", "group index %d out of range (have %d groups)", g, len(op.groups))
		}
		acc, err := op.initRawAccumulator(g)
		if err != nil {
			return err
		}
		view := rowToView(r)
		if err := acc.AppendView(view, strict, op.cfg.FixedRandomSeed); err != nil {
			return err
		}
		op.telemetry.Merged(g, r.N)
	}
	return nil
}

// addSingleGroupIntermediateResults collects every selected row's view
// first, then merges them into the one global accumulator in a single
// batched call, per spec.md §4.4.
func (op *AggregateOperator[T]) addSingleGroupIntermediateResults(group int, sel column.Selection, args IntermediateArgs[T]) error {
	if err := op.binder.BindIntermediate(args.Percentiles, args.IsArray, args.Accuracy); err != nil {
		op.telemetry.RejectedArgument(err.Error())
		return err
	}
	strict := op.cfg.StrictIntermediateValidation
	views := make([]percentile.View[T], 0, len(args.Rows.Rows))
	var sourceN uint64
	for row, r := range args.Rows.Rows {
		if sel != nil && !sel[row] {
			continue
		}
		if r.Null {
			continue
		}
		views = append(views, rowToView(r))
		sourceN += r.N
	}
	if len(views) == 0 {
		return nil
	}
	acc, err := op.initRawAccumulator(group)
	if err != nil {
		return err
	}
	if err := acc.AppendViews(views, strict, op.cfg.FixedRandomSeed); err != nil {
		return err
	}
	op.telemetry.Merged(group, sourceN)
	return nil
}

func rowToView[T numeric](r column.SketchRow[T]) percentile.View[T] {
	return percentile.View[T]{
		K:        r.K,
		N:        r.N,
		MinValue: r.MinValue,
		MaxValue: r.MaxValue,
		Items:    r.Items,
		Levels:   r.Levels,
	}
}

// extractAccumulators serializes each group's accumulator into a row of
// the intermediate-state batch: compact() into a process-allocator copy
// so this can run concurrently with further addRawInput work on other
// groups, and leave per-group state untouched.
func (op *AggregateOperator[T]) extractAccumulators(result *column.RowBatch[T]) {
	if !op.binder.Latched() {
		result.Rows = make([]column.SketchRow[T], len(op.groups))
		for i := range result.Rows {
			result.Rows[i] = column.SketchRow[T]{Null: true}
		}
		return
	}
	result.Rows = make([]column.SketchRow[T], len(op.groups))
	for i, acc := range op.groups {
		if acc == nil || acc.N() == 0 {
			result.Rows[i] = column.SketchRow[T]{Null: true}
			continue
		}
		cp, release := acc.Compact(op.proc, op.cfg.FixedRandomSeed)
		v := cp.ToView()
		result.Rows[i] = column.SketchRow[T]{
			K:        v.K,
			N:        v.N,
			MinValue: v.MinValue,
			MaxValue: v.MaxValue,
			Items:    slices.Clone(v.Items),
			Levels:   slices.Clone(v.Levels),
		}
		release()
		op.telemetry.Spilled(i, len(result.Rows[i].Items))
	}
}

// extractValues implements the final phase: flush each group's
// accumulator, then query it for either a scalar quantile or the array of
// quantiles the latched percentile argument requested.
func (op *AggregateOperator[T]) extractValues(result *column.ResultColumn[T]) error {
	percentiles, isArray := op.binder.Percentiles()
	if !op.binder.Latched() {
		result.Null = make([]bool, len(op.groups))
		for i := range result.Null {
			result.Null[i] = true
		}
		return nil
	}
	result.Null = make([]bool, len(op.groups))
	if isArray {
		result.Array = make([][]T, len(op.groups))
	} else {
		result.Scalar = make([]T, len(op.groups))
	}
	ranks := sortedRanks(percentiles)
	for i, acc := range op.groups {
		if acc == nil || acc.N() == 0 {
			result.Null[i] = true
			continue
		}
		acc.Flush(op.cfg.FixedRandomSeed)
		if isArray {
			vals, err := acc.sketch.Quantiles(ranks, true)
			if err != nil {
				return err
			}
			result.Array[i] = reorderLike(vals, ranks, percentiles)
		} else {
			val, err := acc.sketch.Quantile(percentiles[0], true)
			if err != nil {
				return err
			}
			result.Scalar[i] = val
		}
	}
	return nil
}

// sortedRanks returns percentiles sorted ascending. extractValues queries
// the sketch in that order, one Quantile lookup per rank (not a single
// shared pass), and reorderLike maps the results back.
func sortedRanks(percentiles []float64) []float64 {
	out := slices.Clone(percentiles)
	slices.Sort(out)
	return out
}

// reorderLike maps values computed against sortedRanks back into the
// caller's original percentile order.
func reorderLike[T numeric](values []T, sortedRanks, original []float64) []T {
	out := make([]T, len(original))
	used := make([]bool, len(sortedRanks))
	for oi, want := range original {
		for si, got := range sortedRanks {
			if !used[si] && got == want {
				out[oi] = values[si]
				used[si] = true
				break
			}
		}
	}
	return out
}

// destroy releases every initialized accumulator in the given groups,
// making them eligible for garbage collection.
func (op *AggregateOperator[T]) destroy(groups []int) {
	for _, g := range groups {
		if g >= 0 && g < len(op.groups) {
			op.groups[g] = nil
		}
	}
}

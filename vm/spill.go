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

package vm

import (
	"bytes"
	"encoding/binary"

	"github.com/sneller-contrib/kllpercentile/internal/kllerr"
	"github.com/sneller-contrib/kllpercentile/internal/percentile"
	"github.com/sneller-contrib/kllpercentile/internal/spillcodec"
)

// SpillGroup compacts one group's accumulator into a process-allocator
// copy, encodes its six-field view as a flat buffer, and hands the result
// through spillcodec so it can be written out by a concurrent spill
// writer without racing the owning operator thread (spec.md §5).
func (op *AggregateOperator[T]) SpillGroup(idx int) (spillcodec.Frame, error) {
	if idx < 0 || idx >= len(op.groups) || op.groups[idx] == nil {
		return spillcodec.Frame{}, kllerr.NewInvariant("AggregateOperator.SpillGroup", "group %d has no accumulator", idx)
	}
	cp, release := op.groups[idx].Compact(op.proc, op.cfg.FixedRandomSeed)
	defer release()

	raw, err := marshalView(cp.ToView())
	if err != nil {
		return spillcodec.Frame{}, err
	}
	f := spillcodec.Encode(raw)
	op.telemetry.Spilled(idx, len(f.Payload))
	return f, nil
}

// RestoreSpilledGroup decodes a spilled frame and merges it into group
// idx's accumulator, creating the accumulator if this is its first use.
func (op *AggregateOperator[T]) RestoreSpilledGroup(idx int, f spillcodec.Frame) error {
	strict := op.cfg.StrictIntermediateValidation
	raw, err := spillcodec.Decode(f, strict)
	if err != nil {
		return err
	}
	v, err := unmarshalView[T](raw)
	if err != nil {
		return err
	}
	acc, err := op.initRawAccumulator(idx)
	if err != nil {
		return err
	}
	return acc.AppendView(v, strict, op.cfg.FixedRandomSeed)
}

// marshalView writes a View's six fields as K, N, MinValue, MaxValue,
// len(Items), Items, len(Levels), Levels, all fixed-width little-endian.
func marshalView[T numeric](v percentile.View[T]) ([]byte, error) {
	var buf bytes.Buffer
	fields := []any{
		v.K, v.N, v.MinValue, v.MaxValue,
		uint32(len(v.Items)), v.Items,
		uint32(len(v.Levels)), v.Levels,
	}
	for _, f := range fields {
		if err := binary.Write(&buf, binary.LittleEndian, f); err != nil {
			return nil, kllerr.NewInvariant("vm.marshalView", "encoding view field: %v", err)
		}
	}
	return buf.Bytes(), nil
}

func unmarshalView[T numeric](raw []byte) (percentile.View[T], error) {
	var v percentile.View[T]
	r := bytes.NewReader(raw)
	if err := binary.Read(r, binary.LittleEndian, &v.K); err != nil {
		return v, kllerr.NewInvariant("vm.unmarshalView", "decoding k: %v", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &v.N); err != nil {
		return v, kllerr.NewInvariant("vm.unmarshalView", "decoding n: %v", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &v.MinValue); err != nil {
		return v, kllerr.NewInvariant("vm.unmarshalView", "decoding min: %v", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &v.MaxValue); err != nil {
		return v, kllerr.NewInvariant("vm.unmarshalView", "decoding max: %v", err)
	}
	var numItems uint32
	if err := binary.Read(r, binary.LittleEndian, &numItems); err != nil {
		return v, kllerr.NewInvariant("vm.unmarshalView", "decoding items length: %v", err)
	}
	v.Items = make([]T, numItems)
	if err := binary.Read(r, binary.LittleEndian, v.Items); err != nil {
		return v, kllerr.NewInvariant("vm.unmarshalView", "decoding items: %v", err)
	}
	var numLevels uint32
	if err := binary.Read(r, binary.LittleEndian, &numLevels); err != nil {
		return v, kllerr.NewInvariant("vm.unmarshalView", "decoding levels length: %v", err)
	}
	v.Levels = make([]uint32, numLevels)
	if err := binary.Read(r, binary.LittleEndian, v.Levels); err != nil {
		return v, kllerr.NewInvariant("vm.unmarshalView", "decoding levels: %v", err)
	}
	return v, nil
}

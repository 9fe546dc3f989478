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
	"testing"

	"github.com/sneller-contrib/kllpercentile/column"
)

func TestSpillGroupRoundTrip(t *testing.T) {
	src := newTestOperator(t)
	src.initializeNewGroups(1)
	values := make([]int64, 8000)
	for i := range values {
		values[i] = int64(i % 4000)
	}
	args := RawArgs[int64]{
		Value:       column.Column[int64]{Values: values},
		Percentiles: []float64{0.5},
	}
	if err := src.addRawInput(make(column.Groups, len(values)), nil, args); err != nil {
		t.Fatal(err)
	}

	frame, err := src.SpillGroup(0)
	if err != nil {
		t.Fatal(err)
	}

	dst := newTestOperator(t)
	dst.initializeNewGroups(1)
	if err := dst.binder.BindPercentile(args.Percentiles, args.IsArray); err != nil {
		t.Fatal(err)
	}
	if err := dst.RestoreSpilledGroup(0, frame); err != nil {
		t.Fatal(err)
	}

	var result column.ResultColumn[int64]
	if err := dst.extractValues(&result); err != nil {
		t.Fatal(err)
	}
	if result.Null[0] {
		t.Fatal("restored group should not be null")
	}
}

func TestSpillGroupRejectsUnknownGroup(t *testing.T) {
	op := newTestOperator(t)
	op.initializeNewGroups(1)
	if _, err := op.SpillGroup(5); err == nil {
		t.Fatal("expected spilling an out-of-range group to fail")
	}
}

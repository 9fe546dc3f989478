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
	"fmt"

	"github.com/sneller-contrib/kllpercentile/internal/kllerr"
	"github.com/sneller-contrib/kllpercentile/internal/percentile"
)

// unsetAccuracy is the sentinel meaning "no accuracy argument was given".
const unsetAccuracy = -1.0

// defaultK is the accuracy parameter used while no accuracy argument has
// been latched; it is the same k percentile.NewDefault uses.
const defaultK = uint16(200)

// ArgumentBinder validates and latches the percentile vector and the
// optional accuracy argument the first time either is observed, then
// rejects any later batch that disagrees.
type ArgumentBinder struct {
	latched     bool
	percentiles []float64
	isArray     bool

	accuracySet bool
	accuracy    float64
	k           uint16
}

// NewArgumentBinder returns an unlatched binder.
func NewArgumentBinder() *ArgumentBinder {
	return &ArgumentBinder{accuracy: unsetAccuracy}
}

// Latched reports whether the percentile argument has been bound yet.
func (b *ArgumentBinder) Latched() bool { return b.latched }

// Percentiles returns the latched percentile vector and its array-shape
// flag. Callers must check Latched first.
func (b *ArgumentBinder) Percentiles() ([]float64, bool) { return b.percentiles, b.isArray }

// K returns the accuracy parameter currently in effect, deriving it from
// the latched accuracy (if any) or falling back to the sketch family's
// default.
func (b *ArgumentBinder) K() uint16 {
	if !b.accuracySet {
		return defaultK
	}
	return b.k
}

// BindPercentile latches (on first call) or validates (on later calls) the
// percentile argument for the raw-input phase, per spec.md §4.3.
func (b *ArgumentBinder) BindPercentile(values []float64, isArray bool) error {
	if len(values) == 0 {
		return kllerr.NewUser("percentile", "percentile argument must be non-null and non-empty")
	}
	for _, v := range values {
		if v < 0 || v > 1 {
			return kllerr.NewUser("percentile", "percentile value %v out of range [0, 1]", v)
		}
	}
	if !b.latched {
		b.percentiles = append([]float64(nil), values...)
		b.isArray = isArray
		b.latched = true
		return nil
	}
	if isArray != b.isArray {
		return kllerr.NewUser("percentile", "percentile argument shape changed mid-query")
	}
	if !equalFloat64Slices(values, b.percentiles) {
		return kllerr.NewUser("percentile", "percentile argument is not constant across batches")
	}
	return nil
}

// BindAccuracy latches (on first call) or validates the accuracy argument.
// A nil accuracy means "unset" and is always accepted once no conflicting
// value has been latched.
func (b *ArgumentBinder) BindAccuracy(accuracy *float64) error {
	if accuracy == nil {
		return nil
	}
	v := *accuracy
	if v <= 0 || v > 1 {
		return kllerr.NewUser("percentile", "accuracy %v out of range (0, 1]", v)
	}
	if !b.accuracySet {
		b.accuracy = v
		b.k = percentile.KFromEpsilon(v)
		b.accuracySet = true
		return nil
	}
	if v != b.accuracy {
		return kllerr.NewUser("percentile", "accuracy argument is not constant across batches: %v vs latched %v", v, b.accuracy)
	}
	return nil
}

// BindIntermediate validates the header fields of an intermediate row
// against whatever has already been latched, per spec.md §4.3's
// intermediate-phase rule: it must check isArray and percentile contents
// match any already-latched value, latching them if this is the first
// intermediate row observed.
func (b *ArgumentBinder) BindIntermediate(percentiles []float64, isArray bool, accuracy *float64) error {
	if err := b.BindPercentile(percentiles, isArray); err != nil {
		return err
	}
	return b.BindAccuracy(accuracy)
}

func equalFloat64Slices(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (b *ArgumentBinder) String() string {
	return fmt.Sprintf("ArgumentBinder{latched=%v isArray=%v percentiles=%v accuracySet=%v k=%d}",
		b.latched, b.isArray, b.percentiles, b.accuracySet, b.K())
}

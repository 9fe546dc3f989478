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

package percentile

import (
	"math/rand"
	"time"
)

// coin is the per-sketch source of compaction coin flips. Unlike the
// upstream KLL reference, which draws from the global math/rand source,
// every sketch carries its own *rand.Rand so that a caller-supplied seed
// (spec.md's debug_aggregation_approx_percentile_fixed_random_seed) makes
// compaction, and therefore the whole sketch, fully reproducible.
type coin struct {
	r *rand.Rand
}

// newCoin returns a coin seeded from seed. seed == nil asks for a
// non-reproducible, process-random seed.
func newCoin(seed *uint64) coin {
	var s uint64
	if seed != nil {
		s = *seed
	} else {
		s = uint64(time.Now().UnixNano())
	}
	return coin{r: rand.New(rand.NewSource(int64(s)))}
}

// flip returns true or false with equal probability.
func (c coin) flip() bool {
	return c.r.Int63()&1 == 0
}

// subSeed returns the seed for the auxiliary sketch built while flushing
// the large-weight buffer (spec.md §4.5). Per the Open Question in
// spec.md §9, auxiliary sketches reuse the parent sketch's own seed
// rather than deriving an independent sub-seed per ordinal, so two equal
// runs of buffered flushes reproduce bit-for-bit. ordinal is unused; it
// is kept as a parameter so call sites read the same way regardless of
// which resolution this Open Question takes.
func subSeed(parent *uint64, ordinal int) *uint64 {
	return parent
}

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

import "math"

const (
	defaultK = uint16(200)
	defaultM = uint8(8)
	minK     = uint16(defaultM)
	maxK     = uint16(1<<16 - 1)
	minM     = uint8(2)
	maxM     = uint8(8)
)

// powersOfThree[i] == 3^i, tabulated up to the largest depth a level
// capacity computation can reach before intCapAux splits the exponent in
// two to avoid overflow.
var powersOfThree = []uint64{
	1, 3, 9, 27, 81, 243, 729, 2187, 6561, 19683, 59049, 177147, 531441,
	1594323, 4782969, 14348907, 43046721, 129140163, 387420489, 1162261467,
	3486784401, 10460353203, 31381059609, 94143178827, 282429536481,
	847288609443, 2541865828329, 7625597484987, 22876792454961, 68630377364883,
	205891132094649,
}

// levelCapacity returns how many items level may hold before it must be
// compacted, given the sketch currently has numLevels levels. Capacity
// decays geometrically (roughly 2/3 per level counting from the top) down
// to a floor of m, the sketch's minimum level width.
func levelCapacity(k uint16, numLevels uint8, level uint8, m uint8) uint32 {
	depth := numLevels - level - 1
	cap := intCapAux(k, depth)
	if uint32(m) > cap {
		return uint32(m)
	}
	return cap
}

func intCapAux(k uint16, depth uint8) uint32 {
	if depth <= 30 {
		return intCapAuxAux(k, depth)
	}
	half := depth / 2
	rest := depth - half
	tmp := intCapAuxAux(k, half)
	return intCapAuxAux(uint16(tmp), rest)
}

// intCapAuxAux computes round(k * (2/3)^depth), clamped to k.
func intCapAuxAux(k uint16, depth uint8) uint32 {
	twok := uint64(k) << 1
	tmp := (twok << depth) / powersOfThree[depth]
	result := (tmp + 1) >> 1
	if result <= uint64(k) {
		return uint32(result)
	}
	return uint32(k)
}

func computeTotalItemCapacity(k uint16, m uint8, numLevels uint8) uint32 {
	var total uint32
	for level := uint8(0); level < numLevels; level++ {
		total += levelCapacity(k, numLevels, level, m)
	}
	return total
}

// rankErrorConstant and rankErrorExponent are the empirical 99%-confidence
// fit from the KLL reference implementation relating k to normalized rank
// error: error ≈ rankErrorConstant / k^rankErrorExponent (about 1.65% at
// k = 200).
const (
	rankErrorConstant = 2.446
	rankErrorExponent = 0.9433
)

// NormalizedRankError returns this sketch's approximate normalized rank
// error, the ε a caller gets back out of the k it (or KFromEpsilon) chose.
func (s *Sketch[T]) NormalizedRankError() float64 {
	return rankErrorConstant / math.Pow(float64(s.minK), rankErrorExponent)
}

// KFromEpsilon derives the accuracy parameter k from a desired normalized
// rank error epsilon in (0, 1], per spec.md §3's "k = f(ε), monotone
// decreasing in ε". The result is clamped to the sketch family's valid
// [minK, maxK] range.
func KFromEpsilon(epsilon float64) uint16 {
	if epsilon <= 0 {
		return maxK
	}
	k := math.Ceil(math.Pow(rankErrorConstant/epsilon, 1/rankErrorExponent))
	if k < float64(minK) {
		return minK
	}
	if k > float64(maxK) {
		return maxK
	}
	return uint16(k)
}

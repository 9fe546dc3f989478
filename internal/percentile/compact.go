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
	"math/bits"
	"sort"
)

// findLevelToCompact returns the lowest level whose population has reached
// its capacity, the level compressWhileUpdatingSketch must shrink next.
func findLevelToCompact(k uint16, m uint8, numLevels uint8, levels []uint32) uint8 {
	level := uint8(0)
	for {
		pop := levels[level+1] - levels[level]
		if pop >= levelCapacity(k, numLevels, level, m) {
			return level
		}
		level++
	}
}

func currentLevelSizeItems(level, numLevels uint8, levels []uint32) uint32 {
	if level >= numLevels {
		return 0
	}
	return levels[level+1] - levels[level]
}

func getNumRetainedAboveLevelZero(numLevels uint8, levels []uint32) uint32 {
	return levels[numLevels] - levels[1]
}

// ubOnNumLevels is an upper bound on the number of levels a sketch holding
// n items can ever reach.
func ubOnNumLevels(n uint64) int {
	if n == 0 {
		return 1
	}
	return 1 + bits.Len64(n)
}

func randomlyHalveUpItems[T any](c coin, buf []T, start, length uint32) {
	half := length / 2
	offset := uint32(0)
	if c.flip() {
		offset = 1
	}
	j := start + length - 1 - offset
	for i := start + length - 1; i >= start+half; i-- {
		buf[i] = buf[j]
		j -= 2
	}
}

func randomlyHalveDownItems[T any](c coin, buf []T, start, length uint32) {
	half := length / 2
	offset := uint32(0)
	if c.flip() {
		offset = 1
	}
	j := start + offset
	for i := start; i < start+half; i++ {
		buf[i] = buf[j]
		j += 2
	}
}

func mergeSortedItemsArrays[T Ordered](
	bufA []T, startA, lenA uint32,
	bufB []T, startB, lenB uint32,
	bufC []T, startC uint32, less Less[T],
) {
	lenC := lenA + lenB
	limA, limB, limC := startA+lenA, startB+lenB, startC+lenC
	a, b := startA, startB
	for c := startC; c < limC; c++ {
		switch {
		case a == limA:
			bufC[c] = bufB[b]
			b++
		case b == limB:
			bufC[c] = bufA[a]
			a++
		case less(bufA[a], bufB[b]):
			bufC[c] = bufA[a]
			a++
		default:
			bufC[c] = bufB[b]
			b++
		}
	}
}

func sortSlice[T Ordered](s []T, less Less[T]) {
	sort.Slice(s, func(i, j int) bool { return less(s[i], s[j]) })
}

func populateItemWorkArrays[T Ordered](
	workbuf []T, worklevels []uint32, provisionalNumLevels uint8,
	myCurNumLevels uint8, myCurLevelsArr []uint32, myCurItemsArr []T,
	otherNumLevels uint8, otherLevelsArr []uint32, otherItemsArr []T,
	less Less[T],
) {
	worklevels[0] = 0
	selfPopZero := currentLevelSizeItems(0, myCurNumLevels, myCurLevelsArr)
	for i := uint32(0); i < selfPopZero; i++ {
		workbuf[worklevels[0]+i] = myCurItemsArr[myCurLevelsArr[0]+i]
	}
	worklevels[1] = worklevels[0] + selfPopZero

	for lvl := uint8(1); lvl < provisionalNumLevels; lvl++ {
		selfPop := currentLevelSizeItems(lvl, myCurNumLevels, myCurLevelsArr)
		otherPop := currentLevelSizeItems(lvl, otherNumLevels, otherLevelsArr)
		worklevels[lvl+1] = worklevels[lvl] + selfPop + otherPop

		switch {
		case selfPop > 0 && otherPop == 0:
			for i := uint32(0); i < selfPop; i++ {
				workbuf[worklevels[lvl]+i] = myCurItemsArr[myCurLevelsArr[lvl]+i]
			}
		case selfPop == 0 && otherPop > 0:
			for i := uint32(0); i < otherPop; i++ {
				workbuf[worklevels[lvl]+i] = otherItemsArr[otherLevelsArr[lvl]+i]
			}
		case selfPop > 0 && otherPop > 0:
			mergeSortedItemsArrays(
				myCurItemsArr, myCurLevelsArr[lvl], selfPop,
				otherItemsArr, otherLevelsArr[lvl], otherPop,
				workbuf, worklevels[lvl], less)
		}
	}
}

// generalItemsCompress repeatedly halves overflowing levels of inBuf until
// every level fits within its capacity, writing the result into outBuf /
// outLevels. It returns the resulting (numLevels, targetItemCount,
// currentItemCount).
func generalItemsCompress[T Ordered](
	k uint16, m uint8, numLevelsIn uint8,
	inBuf []T, inLevels []uint32,
	outBuf []T, outLevels []uint32,
	isLevelZeroSorted bool, less Less[T], c coin,
) (numLevels uint8, targetItemCount, currentItemCount uint32) {
	numLevels = numLevelsIn
	currentItemCount = inLevels[numLevels] - inLevels[0]
	targetItemCount = computeTotalItemCapacity(k, m, numLevels)
	outLevels[0] = 0
	curLevel := -1
	for {
		curLevel++
		if curLevel == int(numLevels)-1 {
			inLevels[curLevel+2] = inLevels[curLevel+1]
		}
		rawBeg := inLevels[curLevel]
		rawLim := inLevels[curLevel+1]
		rawPop := rawLim - rawBeg

		if currentItemCount < targetItemCount || rawPop < levelCapacity(k, numLevels, uint8(curLevel), m) {
			for i := uint32(0); i < rawPop; i++ {
				outBuf[outLevels[curLevel]+i] = inBuf[rawBeg+i]
			}
			outLevels[curLevel+1] = outLevels[curLevel] + rawPop
		} else {
			popAbove := inLevels[curLevel+2] - rawLim
			oddPop := rawPop%2 == 1
			adjBeg := rawBeg
			if oddPop {
				adjBeg++
			}
			adjPop := rawPop
			if oddPop {
				adjPop--
			}
			halfAdjPop := adjPop / 2

			if oddPop {
				outBuf[outLevels[curLevel]] = inBuf[rawBeg]
				outLevels[curLevel+1] = outLevels[curLevel] + 1
			} else {
				outLevels[curLevel+1] = outLevels[curLevel]
			}

			if curLevel == 0 && !isLevelZeroSorted {
				sortSlice(inBuf[adjBeg:adjBeg+adjPop], less)
			}

			if popAbove == 0 {
				randomlyHalveUpItems(c, inBuf, adjBeg, adjPop)
			} else {
				randomlyHalveDownItems(c, inBuf, adjBeg, adjPop)
				mergeSortedItemsArrays(
					inBuf, adjBeg, halfAdjPop,
					inBuf, rawLim, popAbove,
					inBuf, adjBeg+halfAdjPop, less)
			}

			currentItemCount -= halfAdjPop
			inLevels[curLevel+1] -= halfAdjPop

			if curLevel == int(numLevels)-1 {
				numLevels++
				targetItemCount += levelCapacity(k, numLevels, 0, m)
			}
		}
		if curLevel == int(numLevels)-1 {
			break
		}
	}
	return numLevels, targetItemCount, currentItemCount
}

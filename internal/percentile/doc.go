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

// Package percentile provides a pure Go implementation of a KLL
// compactor-based quantile sketch and the computation of approximate
// percentiles over it.
//
// The sketch holds its items in geometrically growing levels; each
// compaction randomly discards half of an overflowing level and
// promotes the other half one level up, doubling its implicit weight.
// This yields an ε-approximate rank estimate in O(k·log(n/k)) space.
//
// Reference: Karnin, Lang, Liberty, "Optimal Quantile Approximation in
// Streams" (https://arxiv.org/abs/1603.05346).
package percentile

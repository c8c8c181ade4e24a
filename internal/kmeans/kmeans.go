// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package kmeans runs Lloyd iterations on top of the MapCombine engine.
// Each run assigns every point to its nearest mean and aggregates
// per-cluster (coordinate sum, weight) pairs in the store; between runs
// the driver reads the store while quiesced, normalizes the new means and
// zeroes the slots in place for the next round.
package kmeans

import (
	"iter"
	"math/rand"
	"sync/atomic"

	"mapcombine"
)

// Point is one input record. Cid caches the cluster the point was last
// assigned to; a run that changes any Cid is not yet stabilized.
type Point struct {
	Prj []float64
	Cid int
}

// Centroid accumulates a coordinate sum and the number of points folded
// into it. A weight of zero marks an empty accumulator.
type Centroid struct {
	Prj    []float64
	Weight int64
}

// Zero returns an empty accumulator of the given dimension with its own
// backing buffer.
func Zero(dim int) Centroid {
	return Centroid{Prj: make([]float64, dim)}
}

// SqDist is the squared euclidean distance from the centroid to p.
func (c Centroid) SqDist(p *Point) float64 {
	var sum float64
	for i := range c.Prj {
		d := c.Prj[i] - p.Prj[i]
		sum += d * d
	}
	return sum
}

// Normalize divides the sum by the weight, turning the accumulator into a
// mean. Empty centroids are left untouched.
func (c *Centroid) Normalize() {
	if c.Weight == 0 {
		return
	}
	for i := range c.Prj {
		c.Prj[i] /= float64(c.Weight)
	}
	c.Weight = 1
}

// Combine folds value into acc. The accumulator owns its buffer (slots
// are pre-seeded with Zero centroids), so emitted values — which alias the
// points' coordinate buffers — are never mutated.
func Combine(acc, value Centroid) Centroid {
	if acc.Prj == nil {
		out := Centroid{Prj: make([]float64, len(value.Prj)), Weight: value.Weight}
		copy(out.Prj, value.Prj)
		return out
	}
	for i := range acc.Prj {
		acc.Prj[i] += value.Prj[i]
	}
	acc.Weight += value.Weight
	return acc
}

// PointSplitter carves the point array into contiguous chunks of
// *Point so mappers can update the cached assignment in place.
type PointSplitter struct {
	pts  []Point
	segs [][2]int
}

func NewPointSplitter(pts []Point) *PointSplitter { return &PointSplitter{pts: pts} }

func (sp *PointSplitter) Split(nchunk int) error {
	sp.segs = sp.segs[:0]
	if nchunk <= 0 {
		return nil
	}
	step := (len(sp.pts) + nchunk) / nchunk
	if step < 1 {
		step = 1
	}
	for p := 0; p < len(sp.pts); {
		q := p + step
		if q >= len(sp.pts) {
			sp.segs = append(sp.segs, [2]int{p, len(sp.pts)})
			return nil
		}
		sp.segs = append(sp.segs, [2]int{p, q})
		p = q
	}
	return nil
}

func (sp *PointSplitter) Size() int { return len(sp.segs) }

func (sp *PointSplitter) Chunk(i int) iter.Seq[*Point] {
	seg := sp.segs[i]
	return func(yield func(*Point) bool) {
		for j := seg[0]; j < seg[1]; j++ {
			if !yield(&sp.pts[j]) {
				return
			}
		}
	}
}

// Driver owns the per-iteration state: the current means (read-only
// shared state during a run) and the stabilization flag the mappers clear
// on reassignment.
type Driver struct {
	Points []Point
	Means  []Centroid
	dim    int

	store      *mapcombine.Store[int, Centroid]
	rt         *mapcombine.Runtime[*Point, int, Centroid]
	stabilized atomic.Bool
}

// NewDriver seeds the store with one zero centroid per initial mean and
// wires the engine. The initial means are copied into the driver.
func NewDriver(pts []Point, initial []Centroid, dim, nshard int, opts mapcombine.StoreOptions) *Driver {
	d := &Driver{Points: pts, dim: dim}
	d.Means = make([]Centroid, len(initial))
	for i := range initial {
		d.Means[i] = Zero(dim)
		copy(d.Means[i].Prj, initial[i].Prj)
		d.Means[i].Weight = 1
	}
	d.store = mapcombine.NewStore[int, Centroid](nshard, mapcombine.IntPartition[int], Combine, opts)
	for i := range initial {
		d.store.Insert(i, Zero(dim))
	}
	sp := NewPointSplitter(pts)
	d.rt = mapcombine.NewRuntime(sp, d.mapPoint, mapcombine.StoreAdapter[int, Centroid]{Store: d.store})
	return d
}

// mapPoint assigns one point to its nearest mean and emits the point's
// contribution for that cluster. Reassignment clears the stabilized flag.
func (d *Driver) mapPoint(p *Point, out mapcombine.Emitter[int, Centroid]) {
	if len(d.Means) == 0 {
		return
	}
	minIdx := 0
	minDist := d.Means[0].SqDist(p)
	for i := 1; i < len(d.Means); i++ {
		if dist := d.Means[i].SqDist(p); dist < minDist {
			minDist = dist
			minIdx = i
		}
	}
	if minIdx != p.Cid {
		d.stabilized.Store(false)
		p.Cid = minIdx
	}
	out.Emit(minIdx, Centroid{Prj: p.Prj, Weight: 1})
}

// Step runs one Lloyd iteration: map all points, then — quiesced — fold
// the store into new means, zero the slots in place and normalize. It
// returns true when no point changed cluster.
func (d *Driver) Step(ntask int) (bool, error) {
	d.stabilized.Store(true)
	if err := d.rt.Run(ntask); err != nil {
		return false, err
	}
	for i := range d.Means {
		for j := range d.Means[i].Prj {
			d.Means[i].Prj[j] = 0
		}
		d.Means[i].Weight = 0
	}
	d.store.Range(func(cid int, c Centroid) bool {
		d.Means[cid] = Combine(d.Means[cid], c)
		return true
	})
	for i := range d.Means {
		d.store.Insert(i, Zero(d.dim)) // reset slot for the next round
		d.Means[i].Normalize()
	}
	return d.stabilized.Load(), nil
}

// Solve iterates until stabilized or maxIter rounds, whichever first, and
// reports the iterations taken.
func (d *Driver) Solve(ntask, maxIter int) (int, error) {
	for it := 1; maxIter <= 0 || it <= maxIter; it++ {
		done, err := d.Step(ntask)
		if err != nil {
			return it, err
		}
		if done {
			return it, nil
		}
	}
	return maxIter, nil
}

// GeneratePoints fills a flat coordinate buffer with rng points in
// [0, grid) and returns the point views over it.
func GeneratePoints(n, dim int, grid float64, rng *rand.Rand) []Point {
	buf := make([]float64, n*dim)
	pts := make([]Point, n)
	for i := range buf {
		buf[i] = rng.Float64() * grid
	}
	for i := range pts {
		pts[i] = Point{Prj: buf[i*dim : (i+1)*dim], Cid: -1}
	}
	return pts
}

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

package mapcombine

import "sync/atomic"

// PSMVariant selects how a proxy closes an empty queue.
type PSMVariant int

const (
	// PSMVariantCAS closes with a single compare-and-swap of the tail.
	// This is the default and the recommended choice.
	PSMVariantCAS PSMVariant = iota
	// PSMVariantFAS closes with a fetch-and-store sequence, avoiding CAS
	// at the cost of the phantom-proxy re-splice; observationally
	// equivalent to the CAS variant.
	PSMVariantFAS
)

// PipelineOptions configures Pipeline construction.
type PipelineOptions struct {
	Variant PSMVariant
}

// Pipeline is the PSM aggregation substrate: a power-of-two array of shard
// tables, each fronted by a wait-free handoff queue. Process never blocks
// on a lock; at most one worker mutates a given shard at any instant (the
// shard's proxy), and combiner calls within a shard happen in enqueue
// order.
//
// Find, Range, Size and Clear carry the same quiescence contract as the
// locked Store.
type Pipeline[K comparable, V any] struct {
	part    Partition[K]
	comb    Combiner[V]
	shards  []pipeShard[K, V]
	mask    uint64
	variant PSMVariant

	enqueued atomic.Uint64
	combined atomic.Uint64
	proxies  atomic.Uint64
	handoffs atomic.Uint64
}

type pipeShard[K comparable, V any] struct {
	q   psmQueue[K, V]
	tab *oaTable[K, V]
}

// PipelineStats is a snapshot of the pipeline's lifetime counters. After a
// run has quiesced, Enqueued always equals Combined: every node linked
// into a queue was drained by a proxy (node conservation).
type PipelineStats struct {
	Enqueued       uint64
	Combined       uint64
	ProxyElections uint64
	Handoffs       uint64
}

// NewPipeline creates a pipeline with nshard shards (rounded up to a power
// of two, minimum 1), the given partition and combiner.
func NewPipeline[K comparable, V any](nshard int, part Partition[K], comb Combiner[V], opts PipelineOptions) *Pipeline[K, V] {
	n := nextPow2(nshard)
	p := &Pipeline[K, V]{
		part:    part,
		comb:    comb,
		shards:  make([]pipeShard[K, V], n),
		mask:    uint64(n - 1),
		variant: opts.Variant,
	}
	for i := range p.shards {
		p.shards[i].tab = newOATable[K, V](0)
	}
	return p
}

// Process combines the pair into its shard via PSM handoff. Safe for
// concurrent use; never blocks on a lock.
func (p *Pipeline[K, V]) Process(pair Pair[K, V]) {
	sh := &p.shards[pair.Hash&p.mask]
	if p.variant == PSMVariantFAS {
		p.psmProcessFAS(&sh.q, sh.tab, pair)
	} else {
		p.psmProcessCAS(&sh.q, sh.tab, pair)
	}
}

// ProcessKV computes the partition fingerprint once and processes the
// resulting pair.
func (p *Pipeline[K, V]) ProcessKV(key K, value V) {
	p.Process(NewPair(p.part, key, value))
}

// Insert pre-seeds (key, value) directly into the shard table, bypassing
// the queues. Caller responsibility to avoid races with workers.
func (p *Pipeline[K, V]) Insert(key K, value V) {
	h := p.part(key)
	p.shards[h&p.mask].tab.insert(h, key, value)
}

// Find returns the current value for key. Only valid while quiesced: the
// shard table carries no reader synchronization on this path.
func (p *Pipeline[K, V]) Find(key K) (V, bool) {
	h := p.part(key)
	return p.shards[h&p.mask].tab.find(h, key)
}

// Range visits every (key, value) across all shards in undefined order,
// stopping early if fn returns false. Only valid while quiesced.
func (p *Pipeline[K, V]) Range(fn func(key K, value V) bool) {
	for i := range p.shards {
		if !p.shards[i].tab.rangeAll(fn) {
			return
		}
	}
}

// Size returns the total entry count across shards.
func (p *Pipeline[K, V]) Size() int {
	n := 0
	for i := range p.shards {
		n += p.shards[i].tab.size()
	}
	return n
}

// Clear removes all entries. Stats counters keep accumulating across
// Clear. Not safe against concurrent workers.
func (p *Pipeline[K, V]) Clear() {
	for i := range p.shards {
		p.shards[i].tab.clear()
	}
}

// ShardCount returns the number of shards (a power of two).
func (p *Pipeline[K, V]) ShardCount() int { return int(p.mask) + 1 }

// ShardSize returns the entry count of one shard.
func (p *Pipeline[K, V]) ShardSize(i int) int { return p.shards[i].tab.size() }

// Stats snapshots the lifetime counters.
func (p *Pipeline[K, V]) Stats() PipelineStats {
	return PipelineStats{
		Enqueued:       p.enqueued.Load(),
		Combined:       p.combined.Load(),
		ProxyElections: p.proxies.Load(),
		Handoffs:       p.handoffs.Load(),
	}
}

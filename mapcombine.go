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

// Package mapcombine is an in-process parallel MapCombine engine for
// CPU-bound aggregation workloads on a single multicore machine. A
// user-supplied mapper is driven over disjoint chunks of an input data set
// by CPU-pinned workers, and every (key, value) pair it emits is folded
// into a concurrent associative store by an associative combiner.
//
// Two aggregation substrates are provided behind the same emit surface:
//
//   - Store: a power-of-two array of independent hash shards, each guarded
//     by fine-grained region rwlocks. Well-distributed keys rarely contend.
//   - Pipeline: a lock-free variant using the Proxy Synchronization Model
//     (PSM). Contending writers hand their work to the single in-progress
//     writer of a shard through a per-shard wait-free queue, so hot shards
//     never ping-pong a lock cacheline.
//
// Results are read back only while the engine is quiesced: after Run has
// returned and before the next Run starts. Iterative workloads (k-means)
// read the store, reset values in place and kick another round; the store
// is never reset between runs by the engine itself.
package mapcombine

// Combiner merges a newly emitted value into an accumulator and returns
// the new accumulator. It must be associative and, because emits from
// different chunks interleave arbitrarily, commutative in practice. It
// must not touch the store and must not block.
type Combiner[V any] func(acc, value V) V

// AddCombiner returns the additive combiner for int, int64, uint64 and
// float64 values.
func AddCombiner[V int | int64 | uint64 | float64]() Combiner[V] {
	return func(acc, value V) V { return acc + value }
}

// Partition maps a key to a 64-bit fingerprint. The shard for a key is
// partition(key) & (S-1), so the output should be uniformly distributed;
// see Mix64 for a cheap avalanche finisher over weak key hashes.
type Partition[K any] func(K) uint64

// Emitter receives the pairs produced by a mapper. StoreAdapter and
// PipelineAdapter are the two engine-provided implementations.
type Emitter[K, V any] interface {
	Emit(key K, value V)
}

// Mapper is invoked once per input record and may call Emit any number of
// times, including zero. It may mutate per-worker scratch state but must
// not touch shared state outside the emitter.
type Mapper[R, K, V any] func(rec R, out Emitter[K, V])

// Pair is an intermediate (key, value) with the partition fingerprint
// computed once at construction, so the PSM path never rehashes.
type Pair[K, V any] struct {
	Key   K
	Value V
	Hash  uint64
}

// NewPair builds a Pair, caching part(key).
func NewPair[K, V any](part Partition[K], key K, value V) Pair[K, V] {
	return Pair[K, V]{Key: key, Value: value, Hash: part(key)}
}

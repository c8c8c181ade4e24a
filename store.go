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

import (
	"sync"
	"sync/atomic"
)

// StoreFlavor selects the per-shard map implementation.
type StoreFlavor int

const (
	// OpenAddressed shards use a growable open-addressed table under a
	// single shard rwlock. The shard count is the concurrency unit.
	OpenAddressed StoreFlavor = iota
	// Chained shards use a fixed bucket array with per-key chains and a
	// region rwlock striped LockStripes ways, so two writers touching
	// different bucket regions of the same shard can proceed in parallel.
	Chained
)

// StoreOptions configures Store construction. The zero value gives an
// open-addressed store.
type StoreOptions struct {
	Flavor StoreFlavor

	// LockStripes is the number of lock stripes per chained shard,
	// rounded up to a power of two. 0 uses the default of 8.
	LockStripes int

	// BucketsPerShard sizes each chained shard's bucket array, rounded
	// up to a power of two. Chains absorb overflow; the array does not
	// grow. 0 uses the default of 256.
	BucketsPerShard int
}

// Store is a sharded associative map supporting concurrent Combine with
// per-region locking. Shards are independent: the shard for a key is
// partition(key) & (S-1) and no key ever migrates, so combines on keys in
// different shards never synchronize with each other.
//
// Range, Size and Clear must only be called while no worker is active.
type Store[K comparable, V any] struct {
	part   Partition[K]
	comb   Combiner[V]
	shards []shardTable[K, V]
	mask   uint64
}

// shardTable is the surface both shard flavors implement. The hash
// argument is always the full partition fingerprint.
type shardTable[K comparable, V any] interface {
	combine(hash uint64, key K, value V, comb Combiner[V])
	insert(hash uint64, key K, value V)
	find(hash uint64, key K) (V, bool)
	rangeAll(fn func(key K, value V) bool) bool
	size() int
	clear()
}

// NewStore creates a store with nshard shards (rounded up to a power of
// two, minimum 1), the given partition and combiner.
func NewStore[K comparable, V any](nshard int, part Partition[K], comb Combiner[V], opts StoreOptions) *Store[K, V] {
	n := nextPow2(nshard)
	s := &Store[K, V]{
		part:   part,
		comb:   comb,
		shards: make([]shardTable[K, V], n),
		mask:   uint64(n - 1),
	}
	for i := range s.shards {
		switch opts.Flavor {
		case Chained:
			s.shards[i] = newChainedShard[K, V](opts.BucketsPerShard, opts.LockStripes)
		default:
			s.shards[i] = &lockedShard[K, V]{tab: newOATable[K, V](0)}
		}
	}
	return s
}

// Combine folds value into the accumulator for key, inserting
// (key, value) when the key is absent. Safe for concurrent use.
func (s *Store[K, V]) Combine(key K, value V) {
	h := s.part(key)
	s.shards[h&s.mask].combine(h, key, value, s.comb)
}

// Insert stores (key, value) unconditionally, overwriting any previous
// value. It is meant for pre-seeding keys before a run and for resetting
// values in place between runs; the caller is responsible for not racing
// it against workers.
func (s *Store[K, V]) Insert(key K, value V) {
	h := s.part(key)
	s.shards[h&s.mask].insert(h, key, value)
}

// Find returns the current value for key. Safe for concurrent use, but a
// value observed while workers are active may be mid-aggregation.
func (s *Store[K, V]) Find(key K) (V, bool) {
	h := s.part(key)
	return s.shards[h&s.mask].find(h, key)
}

// Range visits every (key, value) across all shards in undefined order,
// stopping early if fn returns false. Only valid while quiesced.
func (s *Store[K, V]) Range(fn func(key K, value V) bool) {
	for _, sh := range s.shards {
		if !sh.rangeAll(fn) {
			return
		}
	}
}

// Size returns the total entry count across shards.
func (s *Store[K, V]) Size() int {
	n := 0
	for _, sh := range s.shards {
		n += sh.size()
	}
	return n
}

// Clear removes all entries. Not safe against concurrent workers.
func (s *Store[K, V]) Clear() {
	for _, sh := range s.shards {
		sh.clear()
	}
}

// ShardCount returns the number of shards (a power of two).
func (s *Store[K, V]) ShardCount() int { return int(s.mask) + 1 }

// ShardSize returns the entry count of one shard; used to check key
// placement and shard balance.
func (s *Store[K, V]) ShardSize(i int) int { return s.shards[i].size() }

// lockedShard is the open-addressed flavor: one rwlock over one table.
type lockedShard[K comparable, V any] struct {
	mu  sync.RWMutex
	tab *oaTable[K, V]
}

func (sh *lockedShard[K, V]) combine(hash uint64, key K, value V, comb Combiner[V]) {
	sh.mu.Lock()
	sh.tab.combine(hash, key, value, comb)
	sh.mu.Unlock()
}

func (sh *lockedShard[K, V]) insert(hash uint64, key K, value V) {
	sh.mu.Lock()
	sh.tab.insert(hash, key, value)
	sh.mu.Unlock()
}

func (sh *lockedShard[K, V]) find(hash uint64, key K) (V, bool) {
	sh.mu.RLock()
	v, ok := sh.tab.find(hash, key)
	sh.mu.RUnlock()
	return v, ok
}

func (sh *lockedShard[K, V]) rangeAll(fn func(K, V) bool) bool {
	return sh.tab.rangeAll(fn)
}

func (sh *lockedShard[K, V]) size() int {
	sh.mu.RLock()
	n := sh.tab.size()
	sh.mu.RUnlock()
	return n
}

func (sh *lockedShard[K, V]) clear() { sh.tab.clear() }

// chainedShard is the chained flavor: a fixed power-of-two bucket array
// with its lock space striped. A bucket's stripe is bucket & (nlock-1),
// so the array never rehashes and a stripe guard covers every mutation of
// the chains it maps to.
type chainedShard[K comparable, V any] struct {
	locks   []sync.RWMutex
	buckets []*chainEntry[K, V]
	lmask   uint64
	bmask   uint64
	n       atomic.Int64
}

type chainEntry[K comparable, V any] struct {
	hash uint64
	key  K
	val  V
	next *chainEntry[K, V]
}

const (
	defaultLockStripes     = 8
	defaultBucketsPerShard = 256
)

func newChainedShard[K comparable, V any](nbucket, nlock int) *chainedShard[K, V] {
	if nbucket <= 0 {
		nbucket = defaultBucketsPerShard
	}
	if nlock <= 0 {
		nlock = defaultLockStripes
	}
	nb := nextPow2(nbucket)
	nl := nextPow2(nlock)
	if nl > nb {
		nl = nb
	}
	return &chainedShard[K, V]{
		locks:   make([]sync.RWMutex, nl),
		buckets: make([]*chainEntry[K, V], nb),
		lmask:   uint64(nl - 1),
		bmask:   uint64(nb - 1),
	}
}

func (sh *chainedShard[K, V]) bucket(hash uint64) uint64 {
	// high bits: the low ones were consumed by shard selection
	return (hash >> 32) & sh.bmask
}

func (sh *chainedShard[K, V]) combine(hash uint64, key K, value V, comb Combiner[V]) {
	b := sh.bucket(hash)
	mu := &sh.locks[b&sh.lmask]
	mu.Lock()
	for e := sh.buckets[b]; e != nil; e = e.next {
		if e.hash == hash && e.key == key {
			e.val = comb(e.val, value)
			mu.Unlock()
			return
		}
	}
	sh.buckets[b] = &chainEntry[K, V]{hash: hash, key: key, val: value, next: sh.buckets[b]}
	mu.Unlock()
	sh.n.Add(1)
}

func (sh *chainedShard[K, V]) insert(hash uint64, key K, value V) {
	b := sh.bucket(hash)
	mu := &sh.locks[b&sh.lmask]
	mu.Lock()
	for e := sh.buckets[b]; e != nil; e = e.next {
		if e.hash == hash && e.key == key {
			e.val = value
			mu.Unlock()
			return
		}
	}
	sh.buckets[b] = &chainEntry[K, V]{hash: hash, key: key, val: value, next: sh.buckets[b]}
	mu.Unlock()
	sh.n.Add(1)
}

func (sh *chainedShard[K, V]) find(hash uint64, key K) (V, bool) {
	b := sh.bucket(hash)
	mu := &sh.locks[b&sh.lmask]
	mu.RLock()
	for e := sh.buckets[b]; e != nil; e = e.next {
		if e.hash == hash && e.key == key {
			v := e.val
			mu.RUnlock()
			return v, true
		}
	}
	mu.RUnlock()
	var zero V
	return zero, false
}

func (sh *chainedShard[K, V]) rangeAll(fn func(K, V) bool) bool {
	for _, head := range sh.buckets {
		for e := head; e != nil; e = e.next {
			if !fn(e.key, e.val) {
				return false
			}
		}
	}
	return true
}

func (sh *chainedShard[K, V]) size() int { return int(sh.n.Load()) }

func (sh *chainedShard[K, V]) clear() {
	clear(sh.buckets)
	sh.n.Store(0)
}

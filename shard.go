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

// oaTable is an open-addressed hash table with linear probing. It carries
// no synchronization of its own: the locked store wraps it in a shard
// rwlock and the PSM pipeline mutates it from the single proxy only.
//
// Keys enter with an externally computed fingerprint. Shard selection uses
// the low fingerprint bits, so slot indexing uses the high bits; with the
// low bits masked away by sharding, indexing on them would collapse every
// key of a shard into the same residue class.
type oaTable[K comparable, V any] struct {
	slots []oaSlot[K, V]
	mask  uint64
	n     int
}

type oaSlot[K comparable, V any] struct {
	hash uint64
	used bool
	key  K
	val  V
}

const oaMinSlots = 8

func newOATable[K comparable, V any](hint int) *oaTable[K, V] {
	c := nextPow2(hint)
	if c < oaMinSlots {
		c = oaMinSlots
	}
	return &oaTable[K, V]{
		slots: make([]oaSlot[K, V], c),
		mask:  uint64(c - 1),
	}
}

func (t *oaTable[K, V]) index(hash uint64) uint64 {
	return (hash >> 32) & t.mask
}

// combine folds value into the slot for key, inserting (key, value) when
// the key is absent.
func (t *oaTable[K, V]) combine(hash uint64, key K, value V, comb Combiner[V]) {
	i := t.index(hash)
	for {
		s := &t.slots[i]
		if !s.used {
			t.place(i, hash, key, value)
			return
		}
		if s.hash == hash && s.key == key {
			s.val = comb(s.val, value)
			return
		}
		i = (i + 1) & t.mask
	}
}

// insert stores (key, value), overwriting any previous value for key.
func (t *oaTable[K, V]) insert(hash uint64, key K, value V) {
	i := t.index(hash)
	for {
		s := &t.slots[i]
		if !s.used {
			t.place(i, hash, key, value)
			return
		}
		if s.hash == hash && s.key == key {
			s.val = value
			return
		}
		i = (i + 1) & t.mask
	}
}

func (t *oaTable[K, V]) find(hash uint64, key K) (V, bool) {
	i := t.index(hash)
	for {
		s := &t.slots[i]
		if !s.used {
			var zero V
			return zero, false
		}
		if s.hash == hash && s.key == key {
			return s.val, true
		}
		i = (i + 1) & t.mask
	}
}

func (t *oaTable[K, V]) place(i, hash uint64, key K, value V) {
	t.slots[i] = oaSlot[K, V]{hash: hash, used: true, key: key, val: value}
	t.n++
	// grow at 3/4 load so probe chains stay short
	if uint64(t.n)*4 > (t.mask+1)*3 {
		t.grow()
	}
}

func (t *oaTable[K, V]) grow() {
	old := t.slots
	c := (t.mask + 1) * 2
	t.slots = make([]oaSlot[K, V], c)
	t.mask = c - 1
	t.n = 0
	for i := range old {
		if old[i].used {
			t.reinsert(old[i].hash, old[i].key, old[i].val)
		}
	}
}

// reinsert is insert without the growth check; keys are known distinct.
func (t *oaTable[K, V]) reinsert(hash uint64, key K, value V) {
	i := t.index(hash)
	for t.slots[i].used {
		i = (i + 1) & t.mask
	}
	t.slots[i] = oaSlot[K, V]{hash: hash, used: true, key: key, val: value}
	t.n++
}

// rangeAll visits every entry; it returns false if fn stopped the walk.
func (t *oaTable[K, V]) rangeAll(fn func(key K, value V) bool) bool {
	for i := range t.slots {
		if t.slots[i].used && !fn(t.slots[i].key, t.slots[i].val) {
			return false
		}
	}
	return true
}

func (t *oaTable[K, V]) size() int { return t.n }

func (t *oaTable[K, V]) clear() {
	clear(t.slots)
	t.n = 0
}

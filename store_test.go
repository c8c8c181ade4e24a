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
	"testing"
)

func newIntStore(nshard int, opts StoreOptions) *Store[int, int64] {
	return NewStore[int, int64](nshard, IntPartition[int], AddCombiner[int64](), opts)
}

func storeFlavors() map[string]StoreOptions {
	return map[string]StoreOptions{
		"open":    {Flavor: OpenAddressed},
		"chained": {Flavor: Chained, LockStripes: 4, BucketsPerShard: 64},
	}
}

func Test_Store_CombineFindInsert(t *testing.T) {
	for name, opts := range storeFlavors() {
		t.Run(name, func(t *testing.T) {
			s := newIntStore(4, opts)
			s.Combine(1, 10)
			s.Combine(1, 5)
			s.Combine(2, 7)
			if v, ok := s.Find(1); !ok || v != 15 {
				t.Fatalf("Find(1) = (%d, %t), want (15, true)", v, ok)
			}
			if v, ok := s.Find(2); !ok || v != 7 {
				t.Fatalf("Find(2) = (%d, %t), want (7, true)", v, ok)
			}
			if _, ok := s.Find(3); ok {
				t.Fatal("Find(3) reported a missing key present")
			}
			// Insert overwrites unconditionally
			s.Insert(1, 100)
			if v, _ := s.Find(1); v != 100 {
				t.Fatalf("Insert did not overwrite: got %d", v)
			}
			if s.Size() != 2 {
				t.Fatalf("Size = %d, want 2", s.Size())
			}
			s.Clear()
			if s.Size() != 0 {
				t.Fatalf("Size after Clear = %d, want 0", s.Size())
			}
		})
	}
}

// Test_Store_ShardCountRounding: shard counts round up to a power of two,
// minimum one.
func Test_Store_ShardCountRounding(t *testing.T) {
	for in, want := range map[int]int{0: 1, 1: 1, 3: 4, 16: 16, 17: 32} {
		if got := newIntStore(in, StoreOptions{}).ShardCount(); got != want {
			t.Errorf("ShardCount for nshard=%d: got %d, want %d", in, got, want)
		}
	}
}

// Test_Store_ShardConfinement: every key resides in the shard named by its
// partition fingerprint.
func Test_Store_ShardConfinement(t *testing.T) {
	for name, opts := range storeFlavors() {
		t.Run(name, func(t *testing.T) {
			s := newIntStore(8, opts)
			for i := 0; i < 10_000; i++ {
				s.Combine(i, 1)
			}
			mask := uint64(s.ShardCount() - 1)
			perShard := make([]int, s.ShardCount())
			s.Range(func(k int, _ int64) bool {
				perShard[IntPartition(k)&mask]++
				return true
			})
			// Range walks shard by shard; recount sizes to cross-check.
			for i := 0; i < s.ShardCount(); i++ {
				if perShard[i] != s.ShardSize(i) {
					t.Fatalf("shard %d holds %d keys, partition says %d", i, s.ShardSize(i), perShard[i])
				}
			}
		})
	}
}

// Test_Store_ConcurrentCombine hammers a small key space from many
// goroutines and checks the aggregate against the single-threaded answer.
func Test_Store_ConcurrentCombine(t *testing.T) {
	const (
		workers = 8
		perW    = 50_000
		keys    = 64
	)
	for name, opts := range storeFlavors() {
		t.Run(name, func(t *testing.T) {
			s := newIntStore(4, opts)
			var wg sync.WaitGroup
			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func(seed int) {
					defer wg.Done()
					for i := 0; i < perW; i++ {
						s.Combine((seed+i)%keys, 1)
					}
				}(w)
			}
			wg.Wait()
			var total int64
			s.Range(func(_ int, v int64) bool {
				total += v
				return true
			})
			if total != workers*perW {
				t.Fatalf("lost updates: total = %d, want %d", total, workers*perW)
			}
			if s.Size() != keys {
				t.Fatalf("Size = %d, want %d", s.Size(), keys)
			}
		})
	}
}

// Test_Store_SingleShardContention forces every key into shard 0 and
// repeats the hammer; correctness must not depend on shard spread.
func Test_Store_SingleShardContention(t *testing.T) {
	const (
		workers = 8
		perW    = 20_000
	)
	for name, opts := range storeFlavors() {
		t.Run(name, func(t *testing.T) {
			s := NewStore[int, int64](1, IntPartition[int], AddCombiner[int64](), opts)
			var wg sync.WaitGroup
			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func(seed int) {
					defer wg.Done()
					for i := 0; i < perW; i++ {
						s.Combine(i%3, 1)
					}
				}(w)
			}
			wg.Wait()
			var total int64
			s.Range(func(_ int, v int64) bool {
				total += v
				return true
			})
			if total != workers*perW {
				t.Fatalf("lost updates under contention: %d, want %d", total, workers*perW)
			}
		})
	}
}

// Test_Store_GrowthKeepsEntries pushes enough distinct keys through one
// open-addressed shard to force several table growths.
func Test_Store_GrowthKeepsEntries(t *testing.T) {
	s := newIntStore(1, StoreOptions{Flavor: OpenAddressed})
	const n = 10_000
	for i := 0; i < n; i++ {
		s.Combine(i, int64(i))
	}
	if s.Size() != n {
		t.Fatalf("Size = %d, want %d", s.Size(), n)
	}
	for _, k := range []int{0, 1, n / 2, n - 1} {
		if v, ok := s.Find(k); !ok || v != int64(k) {
			t.Fatalf("Find(%d) = (%d, %t) after growth", k, v, ok)
		}
	}
}

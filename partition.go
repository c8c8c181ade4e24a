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

import "github.com/spaolacci/murmur3"

// Mix64 is a 64-bit avalanche finisher (xorshift-multiply). Shard selection
// uses the low bits of the fingerprint and shard tables index slots on the
// high bits, so partitions built from weak key hashes must be run through a
// mixer of this kind: strided keys crowd into few shards, and small
// integers have all-zero high bits, so every such key starts probing at the
// same slot.
func Mix64(h uint64) uint64 {
	h ^= h >> 23
	h *= 0x2127599bf4325c37
	h ^= h >> 47
	return h
}

// IntPartition mixes the integer key itself.
func IntPartition[K ~int | ~int64 | ~uint64 | ~uint32 | ~int32](key K) uint64 {
	return Mix64(uint64(key))
}

// BytesPartition fingerprints a byte-slice key with murmur3.
func BytesPartition(key []byte) uint64 {
	return murmur3.Sum64(key)
}

// StringPartition fingerprints a string key with murmur3. It agrees with
// BytesPartition on equal byte content.
func StringPartition(key string) uint64 {
	return murmur3.Sum64([]byte(key))
}

// nextPow2 rounds x up to the next power of two, minimum 1.
func nextPow2(x int) int {
	if x <= 1 {
		return 1
	}
	x--
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	if intSize() == 64 {
		x |= x >> 32
	}
	return x + 1
}

func intSize() int { return 32 << (^uint(0) >> 63) }

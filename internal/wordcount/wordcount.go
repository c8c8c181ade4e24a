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

// Package wordcount is the word-counting application of the MapCombine
// engine: a tokenizing mapper over text chunks with an additive combiner.
package wordcount

import (
	"unsafe"

	"mapcombine"
)

// MapLine tokenizes one line into maximal ASCII-letter runs and emits
// (word, 1) for each. Keys are zero-copy views into the line's backing
// buffer, so the input must outlive the store.
func MapLine(line []byte, out mapcombine.Emitter[string, int64]) {
	i := 0
	for i < len(line) {
		for i < len(line) && !isLetter(line[i]) {
			i++
		}
		j := i
		for j < len(line) && isLetter(line[j]) {
			j++
		}
		if j > i {
			out.Emit(view(line[i:j]), 1)
			i = j
		}
	}
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// view reinterprets a byte slice as a string without copying. The result
// aliases the input buffer and shares its lifetime.
func view(b []byte) string {
	return unsafe.String(unsafe.SliceData(b), len(b))
}

// Reference computes the same counts single-threaded; used by the -check
// correctness check of cmd/wordcount and by tests.
func Reference(text []byte) map[string]int64 {
	counts := make(map[string]int64)
	i := 0
	for i < len(text) {
		for i < len(text) && !isLetter(text[i]) {
			i++
		}
		j := i
		for j < len(text) && isLetter(text[j]) {
			j++
		}
		if j > i {
			counts[string(text[i:j])]++
			i = j
		}
	}
	return counts
}

// NewStore builds the sharded store for word counting.
func NewStore(nshard int, opts mapcombine.StoreOptions) *mapcombine.Store[string, int64] {
	return mapcombine.NewStore[string, int64](nshard, mapcombine.StringPartition, mapcombine.AddCombiner[int64](), opts)
}

// NewPipeline builds the PSM pipeline for word counting.
func NewPipeline(nshard int, opts mapcombine.PipelineOptions) *mapcombine.Pipeline[string, int64] {
	return mapcombine.NewPipeline[string, int64](nshard, mapcombine.StringPartition, mapcombine.AddCombiner[int64](), opts)
}

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
	"bytes"
	"iter"
)

// Splitter carves an input data set into at most n disjoint chunks on each
// Split; fewer chunks are allowed when the set is small. Chunk(i) is a
// lazy ordered sequence of records, traversed exactly once by the worker
// that owns it.
type Splitter[R any] interface {
	Split(nchunk int) error
	Size() int
	Chunk(i int) iter.Seq[R]
}

// ArraySplitter splits a flat record slice into contiguous ranges of
// approximately equal size; the final range absorbs the remainder.
type ArraySplitter[R any] struct {
	recs []R
	segs [][2]int
}

// NewArraySplitter wraps recs. The slice is shared, not copied; it must
// stay alive and read-only for as long as emitted keys may reference it.
func NewArraySplitter[R any](recs []R) *ArraySplitter[R] {
	return &ArraySplitter[R]{recs: recs}
}

func (sp *ArraySplitter[R]) Split(nchunk int) error {
	sp.segs = sp.segs[:0]
	if nchunk <= 0 {
		return nil // zero chunks is okay
	}
	step := (len(sp.recs) + nchunk) / nchunk
	if step < 1 {
		step = 1
	}
	for p := 0; p < len(sp.recs); {
		q := p + step
		if q >= len(sp.recs) {
			sp.segs = append(sp.segs, [2]int{p, len(sp.recs)})
			return nil
		}
		sp.segs = append(sp.segs, [2]int{p, q})
		p = q
	}
	return nil
}

func (sp *ArraySplitter[R]) Size() int { return len(sp.segs) }

func (sp *ArraySplitter[R]) Chunk(i int) iter.Seq[R] {
	seg := sp.segs[i]
	return func(yield func(R) bool) {
		for _, r := range sp.recs[seg[0]:seg[1]] {
			if !yield(r) {
				return
			}
		}
	}
}

// TextSplitter splits a byte buffer into chunks on newline boundaries:
// each cut is placed at the nearest newline at or after p+step, where step
// is (len+n)/n for a buffer of len bytes and n requested chunks, so at most
// n chunks are produced. Records are the
// newline-terminated lines of a chunk, without the newline itself; the
// last record of the last chunk need not be terminated.
type TextSplitter struct {
	buf  []byte
	segs [][2]int
}

// NewTextSplitter wraps buf. The buffer is shared, not copied; emitted
// keys may point into it, so it must outlive the store.
func NewTextSplitter(buf []byte) *TextSplitter {
	return &TextSplitter{buf: buf}
}

func (sp *TextSplitter) Split(nchunk int) error {
	sp.segs = sp.segs[:0]
	if nchunk <= 0 {
		return nil // zero chunks is okay
	}
	step := (len(sp.buf) + nchunk) / nchunk
	if step < 1 {
		step = 1
	}
	for p := 0; p < len(sp.buf); {
		q := p + step
		if q >= len(sp.buf) {
			sp.segs = append(sp.segs, [2]int{p, len(sp.buf)})
			return nil
		}
		nl := bytes.IndexByte(sp.buf[q:], '\n')
		if nl < 0 {
			sp.segs = append(sp.segs, [2]int{p, len(sp.buf)})
			return nil
		}
		q += nl
		sp.segs = append(sp.segs, [2]int{p, q})
		p = q + 1
	}
	return nil
}

func (sp *TextSplitter) Size() int { return len(sp.segs) }

// Chunk yields the lines of segment i. A trailing newline at the end of
// the segment does not produce an empty final record, but empty lines
// inside the segment do yield zero-length records.
func (sp *TextSplitter) Chunk(i int) iter.Seq[[]byte] {
	seg := sp.segs[i]
	return func(yield func([]byte) bool) {
		rest := sp.buf[seg[0]:seg[1]]
		for len(rest) > 0 {
			line := rest
			if nl := bytes.IndexByte(rest, '\n'); nl >= 0 {
				line = rest[:nl]
				rest = rest[nl+1:]
			} else {
				rest = nil
			}
			if !yield(line) {
				return
			}
		}
	}
}

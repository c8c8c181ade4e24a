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
	"errors"
	"iter"
	"runtime"
	"strings"
	"testing"
)

// wordMapper tokenizes a line on spaces and emits (word, 1).
func wordMapper(line []byte, out Emitter[string, int64]) {
	for _, w := range strings.Fields(string(line)) {
		out.Emit(w, 1)
	}
}

func runWordCount(t *testing.T, text string, ntask int, emit func() (Emitter[string, int64], func() map[string]int64)) map[string]int64 {
	t.Helper()
	sp := NewTextSplitter([]byte(text))
	out, read := emit()
	rt := NewRuntime(sp, wordMapper, out)
	if err := rt.Run(ntask); err != nil {
		t.Fatal(err)
	}
	return read()
}

func storeTarget() (Emitter[string, int64], func() map[string]int64) {
	s := NewStore[string, int64](4, StringPartition, AddCombiner[int64](), StoreOptions{})
	return StoreAdapter[string, int64]{Store: s}, func() map[string]int64 {
		got := make(map[string]int64)
		s.Range(func(k string, v int64) bool {
			got[k] = v
			return true
		})
		return got
	}
}

func pipelineTarget(v PSMVariant) (Emitter[string, int64], func() map[string]int64) {
	p := NewPipeline[string, int64](4, StringPartition, AddCombiner[int64](), PipelineOptions{Variant: v})
	return PipelineAdapter[string, int64]{Pipeline: p}, func() map[string]int64 {
		got := make(map[string]int64)
		p.Range(func(k string, v int64) bool {
			got[k] = v
			return true
		})
		return got
	}
}

// Test_Run_WordCount: the canonical sentence, four tasks, four shards;
// identical aggregates on both substrates regardless of chunk boundaries.
func Test_Run_WordCount(t *testing.T) {
	const text = "the quick brown fox\nthe lazy dog\nthe\n"
	want := map[string]int64{"the": 3, "quick": 1, "brown": 1, "fox": 1, "lazy": 1, "dog": 1}

	targets := map[string]func() (Emitter[string, int64], func() map[string]int64){
		"store":        storeTarget,
		"pipeline-cas": func() (Emitter[string, int64], func() map[string]int64) { return pipelineTarget(PSMVariantCAS) },
		"pipeline-fas": func() (Emitter[string, int64], func() map[string]int64) { return pipelineTarget(PSMVariantFAS) },
	}
	for name, target := range targets {
		t.Run(name, func(t *testing.T) {
			ntask := 4
			if n := runtime.NumCPU(); n < ntask {
				ntask = n
			}
			got := runWordCount(t, text, ntask, target)
			if len(got) != len(want) {
				t.Fatalf("got %v, want %v", got, want)
			}
			for k, v := range want {
				if got[k] != v {
					t.Fatalf("%q: got %d, want %d (full: %v)", k, got[k], v, got)
				}
			}
		})
	}
}

// Test_Run_IntegerHistogram: inputs [1,1,1,2,2,3], shards=2, tasks=3.
func Test_Run_IntegerHistogram(t *testing.T) {
	recs := []int{1, 1, 1, 2, 2, 3}
	sp := NewArraySplitter(recs)
	s := NewStore[int, int64](2, IntPartition[int], AddCombiner[int64](), StoreOptions{})
	m := func(rec int, out Emitter[int, int64]) { out.Emit(rec, 1) }
	rt := NewRuntime(sp, m, StoreAdapter[int, int64]{Store: s})

	ntask := 3
	if n := runtime.NumCPU(); n < ntask {
		ntask = n
	}
	if err := rt.Run(ntask); err != nil {
		t.Fatal(err)
	}
	for k, want := range map[int]int64{1: 3, 2: 2, 3: 1} {
		if got, ok := s.Find(k); !ok || got != want {
			t.Fatalf("Find(%d) = (%d, %t), want %d", k, got, ok, want)
		}
	}
}

// Test_Run_EmptyInput: a run over nothing returns cleanly, leaves the
// store empty and leaks no queue nodes.
func Test_Run_EmptyInput(t *testing.T) {
	sp := NewTextSplitter(nil)
	p := NewPipeline[string, int64](4, StringPartition, AddCombiner[int64](), PipelineOptions{})
	rt := NewRuntime(sp, wordMapper, PipelineAdapter[string, int64]{Pipeline: p})
	if err := rt.Run(4); err != nil {
		t.Fatal(err)
	}
	if p.Size() != 0 {
		t.Fatalf("Size = %d, want 0", p.Size())
	}
	if st := p.Stats(); st.Enqueued != 0 || st.Combined != 0 {
		t.Fatalf("ghost nodes on empty input: %+v", st)
	}
}

// Test_Run_CrossRunAccumulation: three runs without clearing triple every
// aggregate.
func Test_Run_CrossRunAccumulation(t *testing.T) {
	const text = "a b a\nc a b\n"
	sp := NewTextSplitter([]byte(text))
	s := NewStore[string, int64](4, StringPartition, AddCombiner[int64](), StoreOptions{})
	rt := NewRuntime(sp, wordMapper, StoreAdapter[string, int64]{Store: s})
	for i := 0; i < 3; i++ {
		if err := rt.Run(2); err != nil {
			t.Fatal(err)
		}
	}
	for k, want := range map[string]int64{"a": 9, "b": 6, "c": 3} {
		if got, _ := s.Find(k); got != want {
			t.Fatalf("%q after 3 runs: got %d, want %d", k, got, want)
		}
	}
}

// Test_Run_ClearThenRerun: run → clear → run reproduces the single-run
// aggregates exactly.
func Test_Run_ClearThenRerun(t *testing.T) {
	const text = "x y x\nz\n"
	sp := NewTextSplitter([]byte(text))
	s := NewStore[string, int64](4, StringPartition, AddCombiner[int64](), StoreOptions{})
	rt := NewRuntime(sp, wordMapper, StoreAdapter[string, int64]{Store: s})
	if err := rt.Run(2); err != nil {
		t.Fatal(err)
	}
	first := make(map[string]int64)
	s.Range(func(k string, v int64) bool { first[k] = v; return true })
	s.Clear()
	if err := rt.Run(2); err != nil {
		t.Fatal(err)
	}
	s.Range(func(k string, v int64) bool {
		if first[k] != v {
			t.Fatalf("%q: rerun gave %d, first run gave %d", k, v, first[k])
		}
		return true
	})
	if s.Size() != len(first) {
		t.Fatalf("rerun Size = %d, want %d", s.Size(), len(first))
	}
}

// overSplitter always produces more chunks than any machine has CPUs.
type overSplitter struct{ n int }

func (o *overSplitter) Split(nchunk int) error { o.n = runtime.NumCPU() + 1; return nil }
func (o *overSplitter) Size() int              { return o.n }
func (o *overSplitter) Chunk(i int) iter.Seq[int] {
	return func(yield func(int) bool) {}
}

func Test_Run_TooManyChunks(t *testing.T) {
	s := NewStore[int, int64](2, IntPartition[int], AddCombiner[int64](), StoreOptions{})
	m := func(rec int, out Emitter[int, int64]) { out.Emit(rec, 1) }
	rt := NewRuntime[int, int, int64](&overSplitter{}, m, StoreAdapter[int, int64]{Store: s})
	err := rt.Run(0)
	if !errors.Is(err, ErrTooManyChunks) {
		t.Fatalf("err = %v, want ErrTooManyChunks", err)
	}
}

// failSplitter reports a split failure; Run must abort and propagate it.
type failSplitter struct{}

var errSplit = errors.New("boom")

func (failSplitter) Split(int) error        { return errSplit }
func (failSplitter) Size() int              { return 0 }
func (failSplitter) Chunk(int) iter.Seq[int] { return func(func(int) bool) {} }

func Test_Run_SplitterErrorAborts(t *testing.T) {
	s := NewStore[int, int64](2, IntPartition[int], AddCombiner[int64](), StoreOptions{})
	m := func(rec int, out Emitter[int, int64]) { out.Emit(rec, 1) }
	rt := NewRuntime[int, int, int64](failSplitter{}, m, StoreAdapter[int, int64]{Store: s})
	if err := rt.Run(2); !errors.Is(err, errSplit) {
		t.Fatalf("err = %v, want wrapped errSplit", err)
	}
	if s.Size() != 0 {
		t.Fatal("store mutated despite aborted run")
	}
}

func Test_Run_NegativeTasks(t *testing.T) {
	s := NewStore[int, int64](2, IntPartition[int], AddCombiner[int64](), StoreOptions{})
	m := func(rec int, out Emitter[int, int64]) { out.Emit(rec, 1) }
	rt := NewRuntime[int, int, int64](NewArraySplitter([]int{1}), m, StoreAdapter[int, int64]{Store: s})
	if err := rt.Run(-1); !errors.Is(err, ErrNegativeTasks) {
		t.Fatalf("err = %v, want ErrNegativeTasks", err)
	}
}

// Test_Run_StatsAccumulate: records mapped counts all input lines across
// runs.
func Test_Run_StatsAccumulate(t *testing.T) {
	const text = "a\nb\nc\n"
	sp := NewTextSplitter([]byte(text))
	s := NewStore[string, int64](2, StringPartition, AddCombiner[int64](), StoreOptions{})
	rt := NewRuntime(sp, wordMapper, StoreAdapter[string, int64]{Store: s})
	if err := rt.Run(1); err != nil {
		t.Fatal(err)
	}
	if err := rt.Run(1); err != nil {
		t.Fatal(err)
	}
	st := rt.Stats()
	if st.Runs != 2 || st.RecordsMapped != 6 {
		t.Fatalf("stats = %+v, want 2 runs / 6 records", st)
	}
}

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
	"fmt"
	"iter"
	"log"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ErrTooManyChunks is returned by Run when the splitter produced more
// chunks than there are online CPUs; each chunk must get its own CPU.
var ErrTooManyChunks = errors.New("mapcombine: splitter produced more chunks than online CPUs")

// ErrNegativeTasks is returned by Run for a negative task count.
var ErrNegativeTasks = errors.New("mapcombine: negative task count")

// StoreAdapter turns mapper emits into locked-store combines.
type StoreAdapter[K comparable, V any] struct {
	Store *Store[K, V]
}

func (a StoreAdapter[K, V]) Emit(key K, value V) { a.Store.Combine(key, value) }

// PipelineAdapter turns mapper emits into PSM pipeline handoffs, caching
// the partition fingerprint in the pair it constructs.
type PipelineAdapter[K comparable, V any] struct {
	Pipeline *Pipeline[K, V]
}

func (a PipelineAdapter[K, V]) Emit(key K, value V) { a.Pipeline.ProcessKV(key, value) }

// Runtime drives a mapper over the chunks of a splitter, delivering emits
// into an aggregation target. Each Run spawns fresh workers, one per
// chunk, each locked to an OS thread and pinned to the CPU whose index
// equals the chunk index. The target is never reset between runs; callers
// accumulate across runs or Clear explicitly.
type Runtime[R any, K comparable, V any] struct {
	splitter Splitter[R]
	mapper   Mapper[R, K, V]
	out      Emitter[K, V]
	ncpu     int

	runs             atomic.Uint64
	recordsMapped    atomic.Uint64
	affinityFailures atomic.Uint64
}

// RuntimeStats is a snapshot of a runtime's lifetime counters.
type RuntimeStats struct {
	Runs             uint64
	RecordsMapped    uint64
	AffinityFailures uint64
}

// NewRuntime wires a splitter, a mapper and an aggregation target
// (StoreAdapter or PipelineAdapter).
func NewRuntime[R any, K comparable, V any](sp Splitter[R], m Mapper[R, K, V], out Emitter[K, V]) *Runtime[R, K, V] {
	return &Runtime[R, K, V]{
		splitter: sp,
		mapper:   m,
		out:      out,
		ncpu:     runtime.NumCPU(),
	}
}

// Run splits the input into ntask chunks (0 means the online CPU count)
// and processes every chunk to completion. It returns after all workers
// have joined; the target is then quiesced and safe to read until the
// next Run.
func (rt *Runtime[R, K, V]) Run(ntask int) error {
	if ntask < 0 {
		return ErrNegativeTasks
	}
	if ntask == 0 {
		ntask = rt.ncpu
	}
	if err := rt.splitter.Split(ntask); err != nil {
		return fmt.Errorf("split into %d chunks: %w", ntask, err)
	}
	nchunk := rt.splitter.Size()
	if nchunk > rt.ncpu {
		return fmt.Errorf("%w: %d chunks, %d CPUs", ErrTooManyChunks, nchunk, rt.ncpu)
	}
	rt.runs.Add(1)

	var g errgroup.Group
	for t := 0; t < nchunk; t++ {
		g.Go(func() error {
			rt.work(t, rt.splitter.Chunk(t))
			return nil
		})
	}
	return g.Wait()
}

// work is the body of one worker: lock the goroutine to its OS thread,
// pin the thread to the chunk's CPU, then map the chunk to exhaustion.
func (rt *Runtime[R, K, V]) work(cpuid int, chunk iter.Seq[R]) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := setAffinity(cpuid); err != nil {
		rt.affinityFailures.Add(1)
		log.Printf("mapcombine: pin worker to cpu %d: %v (continuing unpinned)", cpuid, err)
	}

	n := uint64(0)
	for rec := range chunk {
		rt.mapper(rec, rt.out)
		n++
	}
	rt.recordsMapped.Add(n)
}

// Stats snapshots the runtime's lifetime counters.
func (rt *Runtime[R, K, V]) Stats() RuntimeStats {
	return RuntimeStats{
		Runs:             rt.runs.Load(),
		RecordsMapped:    rt.recordsMapped.Load(),
		AffinityFailures: rt.affinityFailures.Load(),
	}
}

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

// Package main is the word-count demo of the MapCombine engine.
//
// It reads a text file, splits it on newline boundaries into one chunk
// per task, and counts word occurrences in parallel on the selected
// aggregation substrate:
//
//	-mode=locked   sharded store, open-addressed shards under rwlocks
//	-mode=chained  sharded store, chained shards with striped region locks
//	-mode=psm      lock-free PSM pipeline (CAS close)
//	-mode=psm-fas  lock-free PSM pipeline (FAS close)
//
// With -check the parallel result is verified against a single-threaded
// reference count. With -redis_addr / -out the final aggregates are
// dumped to a Redis hash or a TSV file after the run has quiesced.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"sort"
	"time"

	"mapcombine"
	"mapcombine/internal/sink"
	"mapcombine/internal/telemetry/runstats"
	"mapcombine/internal/wordcount"
)

func main() {
	ntask := flag.Int("t", 0, "Number of tasks; 0 uses the online CPU count")
	nshard := flag.Int("k", 0, "Number of shards (slots); 0 uses ncpu^2")
	nlock := flag.Int("nlock", 0, "Lock stripes per chained shard (chained mode only); 0 uses the default")
	mode := flag.String("mode", "psm", "Aggregation substrate: locked, chained, psm, psm-fas")
	runs := flag.Int("runs", 1, "How many times to run over the same input without clearing")
	topN := flag.Int("top", 10, "Print the N most frequent words; 0 disables")
	check := flag.Bool("check", false, "Verify the parallel result against a single-threaded reference")
	metricsAddr := flag.String("metrics_addr", "", "If non-empty, expose Prometheus /metrics on this address (e.g., :9090)")
	redisAddr := flag.String("redis_addr", "", "If non-empty, dump final counts into a Redis hash at this address")
	redisKey := flag.String("redis_key", "mapcombine:wordcount", "Redis hash key for the dump")
	redisLog := flag.Bool("redis_log", false, "Use the logging Redis client instead of a real connection")
	outFile := flag.String("out", "", "If non-empty, append final counts to this TSV file")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [options] file\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	runstats.Enable(runstats.Config{Enabled: *metricsAddr != "", MetricsAddr: *metricsAddr})

	// The splitter and the store share this buffer: word keys are views
	// into it, so it stays alive until the results have been read out.
	text, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatalf("read input: %v", err)
	}

	if *nshard <= 0 {
		// ncpu^2 slots keep shard collisions rare at full parallelism
		c := runtime.NumCPU()
		*nshard = c * c
	}

	sp := mapcombine.NewTextSplitter(text)

	var (
		emitter  mapcombine.Emitter[string, int64]
		readAll  func(func(string, int64) bool)
		pipeline *mapcombine.Pipeline[string, int64]
	)
	switch *mode {
	case "locked":
		store := wordcount.NewStore(*nshard, mapcombine.StoreOptions{Flavor: mapcombine.OpenAddressed})
		emitter = mapcombine.StoreAdapter[string, int64]{Store: store}
		readAll = store.Range
	case "chained":
		store := wordcount.NewStore(*nshard, mapcombine.StoreOptions{Flavor: mapcombine.Chained, LockStripes: *nlock})
		emitter = mapcombine.StoreAdapter[string, int64]{Store: store}
		readAll = store.Range
	case "psm":
		pipeline = wordcount.NewPipeline(*nshard, mapcombine.PipelineOptions{Variant: mapcombine.PSMVariantCAS})
		emitter = mapcombine.PipelineAdapter[string, int64]{Pipeline: pipeline}
		readAll = pipeline.Range
	case "psm-fas":
		pipeline = wordcount.NewPipeline(*nshard, mapcombine.PipelineOptions{Variant: mapcombine.PSMVariantFAS})
		emitter = mapcombine.PipelineAdapter[string, int64]{Pipeline: pipeline}
		readAll = pipeline.Range
	default:
		log.Fatalf("unknown -mode %q", *mode)
	}

	rt := mapcombine.NewRuntime(sp, wordcount.MapLine, emitter)

	start := time.Now()
	for i := 0; i < *runs; i++ {
		runStart := time.Now()
		if err := rt.Run(*ntask); err != nil {
			log.Fatalf("run %d: %v", i+1, err)
		}
		runstats.ObserveRun(time.Since(runStart))
	}
	elapsed := time.Since(start)

	st := rt.Stats()
	runstats.AddRecords(st.RecordsMapped)
	runstats.AddAffinityFailures(st.AffinityFailures)

	distinct := 0
	var total int64
	readAll(func(_ string, v int64) bool {
		distinct++
		total += v
		return true
	})
	fmt.Printf("counted %d occurrences of %d distinct words in %v (%d run(s), mode=%s)\n",
		total, distinct, elapsed, *runs, *mode)

	if pipeline != nil {
		ps := pipeline.Stats()
		runstats.AddEmits(ps.Enqueued)
		runstats.AddProxyElections(ps.ProxyElections)
		runstats.AddHandoffs(ps.Handoffs)
		fmt.Printf("psm: %d emits, %d proxy elections, %d handoffs\n",
			ps.Enqueued, ps.ProxyElections, ps.Handoffs)
		if ps.Enqueued != ps.Combined {
			log.Fatalf("queue nodes leaked: enqueued %d, combined %d", ps.Enqueued, ps.Combined)
		}
	}

	if *check {
		ref := wordcount.Reference(text)
		bad := 0
		readAll(func(k string, v int64) bool {
			if ref[k]*int64(*runs) != v {
				log.Printf("MISMATCH %q: got %d, want %d", k, v, ref[k]*int64(*runs))
				bad++
			}
			delete(ref, k)
			return true
		})
		if len(ref) > 0 || bad > 0 {
			log.Fatalf("correctness check FAILED: %d mismatches, %d missing words", bad, len(ref))
		}
		fmt.Println("correctness check passed")
	}

	if *topN > 0 {
		type wc struct {
			w string
			n int64
		}
		var all []wc
		readAll(func(k string, v int64) bool {
			all = append(all, wc{k, v})
			return true
		})
		sort.Slice(all, func(i, j int) bool {
			if all[i].n != all[j].n {
				return all[i].n > all[j].n
			}
			return all[i].w < all[j].w
		})
		if len(all) > *topN {
			all = all[:*topN]
		}
		for _, e := range all {
			fmt.Printf("%8d  %s\n", e.n, e.w)
		}
	}

	if *redisAddr != "" || *redisLog || *outFile != "" {
		var rows []sink.Row
		readAll(func(k string, v int64) bool {
			rows = append(rows, sink.Row{Key: k, Value: v})
			return true
		})
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		for _, s := range buildSinks(ctx, *redisAddr, *redisKey, *redisLog, *outFile) {
			if err := s.WriteRows(ctx, rows); err != nil {
				log.Fatalf("sink: %v", err)
			}
		}
		fmt.Printf("dumped %d aggregates\n", len(rows))
	}
}

// buildSinks assembles the configured sinks; a real Redis connection wins
// over the logging client.
func buildSinks(ctx context.Context, redisAddr, redisKey string, redisLog bool, outFile string) []sink.Sink {
	var sinks []sink.Sink
	if redisAddr != "" {
		h, err := sink.DialRedis(ctx, redisAddr)
		if err != nil {
			log.Fatalf("dial redis: %v", err)
		}
		sinks = append(sinks, sink.NewRedisSink(h, redisKey))
	} else if redisLog {
		sinks = append(sinks, sink.NewRedisSink(sink.LoggingHasher{}, redisKey))
	}
	if outFile != "" {
		fs, err := sink.NewFileSink(outFile)
		if err != nil {
			log.Fatalf("open out file: %v", err)
		}
		sinks = append(sinks, fs)
	}
	return sinks
}

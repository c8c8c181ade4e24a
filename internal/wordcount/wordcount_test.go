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

package wordcount

import (
	"fmt"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"mapcombine"
)

type mapEmitter struct{ m map[string]int64 }

func (e mapEmitter) Emit(k string, v int64) { e.m[k] += v }

func Test_MapLine_Tokenizes(t *testing.T) {
	cases := map[string][]string{
		"the quick brown":      {"the", "quick", "brown"},
		"  leading, trailing. ": {"leading", "trailing"},
		"don't 123 split42here": {"don", "t", "split", "here"},
		"":                      nil,
		"   \t  ":               nil,
	}
	for line, want := range cases {
		e := mapEmitter{m: make(map[string]int64)}
		MapLine([]byte(line), e)
		var total int64
		for _, v := range e.m {
			total += v
		}
		require.Equal(t, int64(len(want)), total, "line %q", line)
		for _, w := range want {
			require.Contains(t, e.m, w, "line %q", line)
		}
	}
}

func Test_Reference_CountsRepeats(t *testing.T) {
	ref := Reference([]byte("a b a\nb a\n"))
	require.Equal(t, map[string]int64{"a": 3, "b": 2}, ref)
}

// Test_Engine_MatchesReference runs the full engine over generated text on
// both substrates and compares against the single-threaded reference.
func Test_Engine_MatchesReference(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 2000; i++ {
		fmt.Fprintf(&b, "alpha beta w%d gamma beta\n", i%97)
	}
	text := []byte(b.String())
	want := Reference(text)

	ntask := 4
	if n := runtime.NumCPU(); n < ntask {
		ntask = n
	}

	t.Run("store", func(t *testing.T) {
		store := NewStore(16, mapcombine.StoreOptions{})
		rt := mapcombine.NewRuntime(mapcombine.NewTextSplitter(text), MapLine,
			mapcombine.StoreAdapter[string, int64]{Store: store})
		require.NoError(t, rt.Run(ntask))
		got := make(map[string]int64)
		store.Range(func(k string, v int64) bool { got[k] = v; return true })
		require.Equal(t, want, got)
	})

	t.Run("pipeline", func(t *testing.T) {
		pipe := NewPipeline(16, mapcombine.PipelineOptions{})
		rt := mapcombine.NewRuntime(mapcombine.NewTextSplitter(text), MapLine,
			mapcombine.PipelineAdapter[string, int64]{Pipeline: pipe})
		require.NoError(t, rt.Run(ntask))
		got := make(map[string]int64)
		pipe.Range(func(k string, v int64) bool { got[k] = v; return true })
		require.Equal(t, want, got)

		st := pipe.Stats()
		require.Equal(t, st.Enqueued, st.Combined, "queue nodes leaked")
	})
}

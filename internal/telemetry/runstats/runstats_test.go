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

package runstats

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func Test_DisabledObservationsAreNoops(t *testing.T) {
	Enable(Config{Enabled: false})
	before := testutil.ToFloat64(emitsTotal)
	AddEmits(100)
	ObserveRun(time.Second)
	if got := testutil.ToFloat64(emitsTotal); got != before {
		t.Fatalf("disabled module recorded emits: %f -> %f", before, got)
	}
}

func Test_EnabledObservationsAccumulate(t *testing.T) {
	Enable(Config{Enabled: true})
	defer Enable(Config{Enabled: false})

	before := testutil.ToFloat64(emitsTotal)
	AddEmits(3)
	AddEmits(0) // zero deltas are skipped
	if got := testutil.ToFloat64(emitsTotal); got != before+3 {
		t.Fatalf("emits counter: got %f, want %f", got, before+3)
	}

	pb := testutil.ToFloat64(proxyElectionsTotal)
	AddProxyElections(2)
	AddHandoffs(5)
	AddAffinityFailures(1)
	if got := testutil.ToFloat64(proxyElectionsTotal); got != pb+2 {
		t.Fatalf("proxy elections: got %f, want %f", got, pb+2)
	}
}

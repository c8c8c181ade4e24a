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

// Proxy Synchronization Model. When two or more workers hit the same
// shard, the first arriving worker drains the shard's queue until it is
// empty; workers arriving meanwhile link their node into the queue and
// return immediately, delegating the combine to the working thread. The
// working thread acts as a proxy for the others.

package mapcombine

import (
	"runtime"
	"sync/atomic"
)

// psmNode carries one emitted pair through a shard queue. Ownership
// transfers to the proxy the moment the node is linked into the queue; the
// producer never touches it again.
type psmNode[K comparable, V any] struct {
	next atomic.Pointer[psmNode[K, V]]
	data Pair[K, V]
}

// psmQueue is a per-shard wait-free handoff queue. The tail pointer is the
// sole synchronization variable; nil means no proxy is active.
type psmQueue[K comparable, V any] struct {
	tail atomic.Pointer[psmNode[K, V]]
	// keep neighbouring shard tails off this cacheline
	_ [120]byte
}

// spinWait spins until the successor link of n is published. The wait is
// bounded by the producer's window between its tail swap and the pred.next
// store, so we burn a few iterations before yielding the thread.
func spinWait[K comparable, V any](n *psmNode[K, V]) *psmNode[K, V] {
	for i := 0; ; i++ {
		if next := n.next.Load(); next != nil {
			return next
		}
		if i > 64 {
			runtime.Gosched()
		}
	}
}

// psmProcessCAS appends data to the queue and, when this worker is elected
// proxy, drains the queue into the shard table. The queue is closed with a
// single compare-and-swap of tail from the last drained node to nil.
func (p *Pipeline[K, V]) psmProcessCAS(q *psmQueue[K, V], sh *oaTable[K, V], data Pair[K, V]) {
	node := &psmNode[K, V]{data: data}
	p.enqueued.Add(1)
	pred := q.tail.Swap(node)

	if pred != nil {
		// handoff: the active proxy will combine this node
		pred.next.Store(node)
		p.handoffs.Add(1)
		return
	}

	p.proxies.Add(1)
	for {
		sh.combine(node.data.Hash, node.data.Key, node.data.Value, p.comb)
		p.combined.Add(1)
		if node.next.Load() == nil { // seemingly no successor
			if q.tail.CompareAndSwap(node, nil) {
				return
			}
			// got successors, wait for them to appear
			node = spinWait(node)
			continue
		}
		node = node.next.Load()
	}
}

// psmProcessFAS is the fetch-and-store variant: the queue is closed by
// swapping tail to nil. When the swapped-out tail is not the node just
// drained, producers have appended behind it, so the observed tail is
// republished for later enqueuers to keep appending to. If a producer
// arrived while tail was nil, it has been elected a phantom proxy; the
// republishing swap returns the phantom's tail, our successor chain is
// linked behind that tail for the phantom to drain, and this proxy returns.
func (p *Pipeline[K, V]) psmProcessFAS(q *psmQueue[K, V], sh *oaTable[K, V], data Pair[K, V]) {
	node := &psmNode[K, V]{data: data}
	p.enqueued.Add(1)
	pred := q.tail.Swap(node)

	if pred != nil {
		pred.next.Store(node)
		p.handoffs.Add(1)
		return
	}

	p.proxies.Add(1)
	for {
		sh.combine(node.data.Hash, node.data.Key, node.data.Value, p.comb)
		p.combined.Add(1)
		if node.next.Load() == nil { // seemingly no successor
			pred = q.tail.Swap(nil)
			if pred == node {
				return
			}
			succ := q.tail.Swap(pred)
			next := spinWait(node)
			if succ != nil {
				succ.next.Store(next)
				return
			}
			node = next
			continue
		}
		node = node.next.Load()
	}
}

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

// Package sink writes quiesced MapCombine aggregates to external stores.
// Sinks consume a snapshot of (key, value) rows after a run has joined;
// they are never called while workers are active.
package sink

import (
	"context"
	"fmt"
)

// Row is one aggregate to persist.
type Row struct {
	Key   string
	Value int64
}

// Sink persists a batch of aggregate rows.
type Sink interface {
	WriteRows(ctx context.Context, rows []Row) error
}

// Hasher abstracts the minimal Redis surface the sink needs.
// Implementations may wrap github.com/redis/go-redis/v9 or any equivalent.
type Hasher interface {
	HSet(ctx context.Context, key string, values ...interface{}) error
}

// RedisSink writes each batch into one Redis hash: field = aggregate key,
// value = aggregate count.
type RedisSink struct {
	client  Hasher
	hashKey string
}

// NewRedisSink returns a sink writing to the given hash key.
func NewRedisSink(client Hasher, hashKey string) *RedisSink {
	return &RedisSink{client: client, hashKey: hashKey}
}

// WriteRows flushes the batch with a single HSET.
func (s *RedisSink) WriteRows(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(rows)*2)
	for _, r := range rows {
		args = append(args, r.Key, r.Value)
	}
	if err := s.client.HSet(ctx, s.hashKey, args...); err != nil {
		return fmt.Errorf("redis hset %s (%d rows): %w", s.hashKey, len(rows), err)
	}
	return nil
}

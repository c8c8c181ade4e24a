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

package sink

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// GoRedisHasher adapts a go-redis client to the Hasher surface.
type GoRedisHasher struct {
	C *redis.Client
}

func (h GoRedisHasher) HSet(ctx context.Context, key string, values ...interface{}) error {
	return h.C.HSet(ctx, key, values...).Err()
}

// DialRedis connects and pings a Redis server.
func DialRedis(ctx context.Context, addr string) (GoRedisHasher, error) {
	c := redis.NewClient(&redis.Options{Addr: addr, DialTimeout: 5 * time.Second})
	if err := c.Ping(ctx).Err(); err != nil {
		return GoRedisHasher{}, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return GoRedisHasher{C: c}, nil
}

// LoggingHasher is a tiny demo client that just logs the write. It lets
// the demo binaries select the Redis sink without needing a real Redis.
// Not for production use.
type LoggingHasher struct{}

func (LoggingHasher) HSet(_ context.Context, key string, values ...interface{}) error {
	fmt.Printf("[redis-log] HSET %s (%d fields)\n", key, len(values)/2)
	return nil
}

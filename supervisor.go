/************************************************************************************
 *
 * gwc (Gateway Wire Client), a lightweight Go library for the Discord Gateway
 * protocol
 *
 * SPDX-License-Identifier: BSD-3-Clause
 *
 * Copyright 2025 Marouane Souiri
 *
 * Licensed under the BSD 3-Clause License.
 * See the LICENSE file for details.
 *
 ************************************************************************************/

package gwc

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ShardStartGate paces shard launches. The default implementation
// enforces Discord's documented rule: shards sharing a
// max_concurrency "bucket" (shard_id % max_concurrency) may start at
// most one per 5 seconds.
type ShardStartGate interface {
	// Wait blocks the caller until shard rateLimitKey is cleared to
	// send its IDENTIFY.
	Wait(rateLimitKey int)
}

// bucketStartGate implements ShardStartGate with one last-launch
// timestamp per rate-limit-key bucket, grounded on the teacher's
// DefaultShardsRateLimiter token bucket, adapted from a generic
// refill-rate limiter to the spec's literal "one key==0 launch per 5s"
// rule (keys other than 0 in the supervisor's sequential launch loop
// naturally never collide, since a bucket is visited at most once
// every max_concurrency shards).
type bucketStartGate struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[int]time.Time
}

func newBucketStartGate(interval time.Duration) *bucketStartGate {
	return &bucketStartGate{interval: interval, last: make(map[int]time.Time)}
}

func (g *bucketStartGate) Wait(rateLimitKey int) {
	g.mu.Lock()
	prev, ok := g.last[rateLimitKey]
	g.mu.Unlock()
	if ok {
		if wait := g.interval - time.Since(prev); wait > 0 {
			time.Sleep(wait)
		}
	}
	g.mu.Lock()
	g.last[rateLimitKey] = time.Now()
	g.mu.Unlock()
}

// SupervisorConfig configures a multi-shard login run.
type SupervisorConfig struct {
	Token   string
	Intents GatewayIntent

	// ShardCount, if <= 0, is replaced by Discord's recommended shard
	// count from GET /gateway/bot.
	ShardCount int

	OnEvent  func(*GatewayClient, Event)
	Presence any
	Spec     ClientSpec
	Logger   Logger

	// Gate overrides the default bucket-based ShardStartGate; mostly
	// useful for tests that don't want to wait real wall-clock seconds.
	Gate ShardStartGate
}

// Supervisor fans shard logins out across goroutines per §4.E: shard
// shardCount-1 runs on the caller's own context, all others in spawned
// goroutines, and every shard sharing a max_concurrency bucket is
// paced through the configured ShardStartGate.
//
// NewSupervisor returns the instance LoginSharded populates as it
// launches shards, so a caller that holds onto it (Client does, for
// Shutdown) can always reach the live client list — even one still
// being built concurrently with a Shutdown call from another
// goroutine, which is why clients is guarded by mu rather than written
// unsynchronized.
type Supervisor struct {
	cfg    SupervisorConfig
	logger Logger

	mu      sync.Mutex
	clients []*GatewayClient
}

// NewSupervisor builds a Supervisor for cfg; call LoginSharded to
// actually discover shards and start them.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Supervisor{cfg: cfg, logger: logger}
}

// LoginSharded implements login_sharded: discover shard count and
// gateway URL via REST, then launch every shard, blocking until all of
// them terminate. Every launched *GatewayClient is recorded on s as it
// starts, so Shutdown (possibly called from another goroutine while
// this is still launching later shards) can always reach it.
func (s *Supervisor) LoginSharded(ctx context.Context) error {
	disc := newDiscoveryClient(s.cfg.Token, s.logger)
	botInfo, err := disc.getGatewayBot(ctx)
	if err != nil {
		return fmt.Errorf("%w: gateway/bot discovery failed: %v", ErrTransport, err)
	}

	shardCount := s.cfg.ShardCount
	if shardCount <= 0 {
		shardCount = botInfo.Shards
	}
	maxConcurrency := botInfo.SessionStartLimit.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}

	gate := s.cfg.Gate
	if gate == nil {
		gate = newBucketStartGate(5 * time.Second)
	}

	s.mu.Lock()
	s.clients = make([]*GatewayClient, shardCount)
	s.mu.Unlock()

	var wg sync.WaitGroup
	errs := make([]error, shardCount)

	for id := 0; id < shardCount-1; id++ {
		id := id
		rateLimitKey := id % maxConcurrency
		gate.Wait(rateLimitKey)

		client := s.newShardClient(id, shardCount)
		s.setClient(id, client)
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[id] = client.Login(ctx, botInfo.URL)
		}()
	}

	if shardCount > 0 {
		last := shardCount - 1
		gate.Wait(last % maxConcurrency)
		client := s.newShardClient(last, shardCount)
		s.setClient(last, client)
		errs[last] = client.Login(ctx, botInfo.URL)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Supervisor) setClient(id int, client *GatewayClient) {
	s.mu.Lock()
	s.clients[id] = client
	s.mu.Unlock()
}

func (s *Supervisor) newShardClient(id, count int) *GatewayClient {
	spec := s.cfg.Spec
	if spec == (ClientSpec{}) {
		spec = DefaultClientSpec()
	}
	return NewGatewayClient(s.cfg.Token, s.cfg.Intents, s.cfg.OnEvent,
		WithShard(id, count),
		WithClientSpec(spec),
		WithLogger(s.logger),
		WithPresence(s.cfg.Presence),
	)
}

// Shutdown logs every shard started so far out; it does not wait for
// Login to return, matching logout's "current iteration completes,
// then the loop exits" contract. Safe to call concurrently with a
// still-running LoginSharded.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	clients := append([]*GatewayClient(nil), s.clients...)
	s.mu.Unlock()

	for _, c := range clients {
		if c != nil {
			c.Logout()
		}
	}
}

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
	"strings"
)

// Client is the top-level, single-entry-point façade over this
// module: configure it with the With* options, then call Run. It
// owns no REST resource catalog (channels, guilds, members, ...) —
// only the Gateway connection lifecycle this module implements.
//
// Create a Client with New(), configure it with options, then call
// Run(ctx). Run blocks for the session's lifetime; call Shutdown from
// another goroutine to stop it.
type Client struct {
	token      string
	intents    GatewayIntent
	onEvent    func(*GatewayClient, Event)
	presence   any
	spec       ClientSpec
	logger     Logger
	shardCount int
	gate       ShardStartGate

	single *GatewayClient
	sup    *Supervisor
}

// Option configures a Client during New().
type Option func(*Client)

// WithToken sets the bot token. A "Bot " prefix is stripped if
// present, matching the rest of this module's convention of storing
// the bare token and formatting "Bot <token>" only at the wire layer.
func WithToken(token string) Option {
	token = strings.TrimPrefix(token, "Bot ")
	return func(c *Client) { c.token = token }
}

// WithIntents ORs together the given intent bits.
func WithIntents(intents ...GatewayIntent) Option {
	return func(c *Client) {
		for _, i := range intents {
			c.intents |= i
		}
	}
}

// WithEventHandler registers the single event callback; see Event and
// EventType for the tagged-union shape it receives.
func WithEventHandler(fn func(*GatewayClient, Event)) Option {
	return func(c *Client) { c.onEvent = fn }
}

// WithClientPresence sets the initial presence sent with every
// shard's IDENTIFY.
func WithClientPresence(presence any) Option {
	return func(c *Client) { c.presence = presence }
}

// WithSpec overrides the default per-shard resource knobs.
func WithSpec(spec ClientSpec) Option {
	return func(c *Client) { c.spec = spec }
}

// WithClientLogger attaches a structured logger shared by every shard
// and the discovery client.
func WithClientLogger(logger Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithShardCount pins the number of shards to start. 0 (the default)
// asks Discord for its recommended count via GET /gateway/bot.
func WithShardCount(n int) Option {
	return func(c *Client) { c.shardCount = n }
}

// WithShardStartGate overrides the default 5s-per-bucket launch pacer;
// mainly useful for tests.
func WithShardStartGate(gate ShardStartGate) Option {
	return func(c *Client) { c.gate = gate }
}

// New builds a Client from the given options. The token is required;
// Run returns an error if it is missing. Without an event handler,
// every event goes to a default handler that only logs its name at
// debug level.
func New(opts ...Option) *Client {
	c := &Client{logger: noopLogger{}}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	return c
}

// Run connects and blocks until Shutdown is called or the session hits
// an unrecoverable close code. Cancelling ctx stops discovery, dialing
// and the waits between reconnect attempts; it does not interrupt a
// session that is already running. A shardCount of
// exactly 1 skips /gateway/bot discovery entirely and opens a single
// unsharded session against GET /gateway, matching §4.D's plain login
// path; any other value (including the 0 default) goes through
// LoginSharded so Discord's recommended shard count and
// max_concurrency pacing are honored.
func (c *Client) Run(ctx context.Context) error {
	if c.token == "" {
		return fmt.Errorf("%w: client has no token, use WithToken", ErrGateway)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if c.shardCount == 1 {
		return c.runSingle(ctx)
	}

	c.sup = NewSupervisor(SupervisorConfig{
		Token:      c.token,
		Intents:    c.intents,
		ShardCount: c.shardCount,
		OnEvent:    c.onEvent,
		Presence:   c.presence,
		Spec:       c.spec,
		Logger:     c.logger,
		Gate:       c.gate,
	})
	return c.sup.LoginSharded(ctx)
}

// runSingle implements the unsharded §4.D login path: discover the
// gateway URL via GET /gateway (not /gateway/bot) and run one session
// on the caller's own goroutine.
func (c *Client) runSingle(ctx context.Context) error {
	disc := newDiscoveryClient(c.token, c.logger)
	attempt := 0
	var gatewayURL string
	for {
		resp, err := disc.getGateway(ctx)
		if err == nil {
			gatewayURL = resp.URL
			break
		}
		c.logger.WithField("error", err.Error()).Warn("gateway discovery failed, retrying")
		if serr := sleepBackoff(ctx, attempt); serr != nil {
			return serr
		}
		attempt++
	}

	spec := c.spec
	if spec == (ClientSpec{}) {
		spec = DefaultClientSpec()
	}
	c.single = NewGatewayClient(c.token, c.intents, c.onEvent,
		WithClientSpec(spec),
		WithLogger(c.logger),
		WithPresence(c.presence),
	)
	return c.single.Login(ctx, gatewayURL)
}

// Shutdown logs every running shard out without waiting for Run to
// return.
func (c *Client) Shutdown() {
	if c.single != nil {
		c.single.Logout()
	}
	if c.sup != nil {
		c.sup.Shutdown()
	}
}

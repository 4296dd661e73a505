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
	"math/rand/v2"
	"time"
)

// sessionState is the explicit lifecycle a GatewayClient moves through
// on every connect attempt.
type sessionState int

const (
	stateDisconnected sessionState = iota
	stateConnecting
	stateAwaitHello
	stateHandshake
	stateRunning
)

func (s sessionState) String() string {
	switch s {
	case stateDisconnected:
		return "disconnected"
	case stateConnecting:
		return "connecting"
	case stateAwaitHello:
		return "await_hello"
	case stateHandshake:
		return "handshake"
	case stateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Discord-defined close codes that must never be retried with RESUME
// or IDENTIFY: the session is permanently unusable.
var unrecoverableCloseCodes = map[int]bool{
	4004: true, // authentication failed
	4010: true, // invalid shard
	4011: true, // sharding required
	4012: true, // invalid API version
	4013: true, // invalid intents
	4014: true, // disallowed intents
}

// ClientSpec tunes the resource knobs a single shard runs with. The
// zero value is replaced by DefaultClientSpec by NewGatewayClient.
type ClientSpec struct {
	ReadRingSize   int
	WriteQueue     int
	TickMS         int // poll timeout for each readFrame call
	LargeThreshold int
}

// DefaultClientSpec matches the teacher's shard defaults, generalized
// to this module's single-shard-loop shape.
func DefaultClientSpec() ClientSpec {
	return ClientSpec{
		ReadRingSize:   defaultRingSize,
		WriteQueue:     64,
		TickMS:         500,
		LargeThreshold: 50,
	}
}

// GatewayClient owns one Discord Gateway session: one WebSocket
// connection, its heartbeat timer, and the sequence/session-id state
// needed to RESUME across reconnects. It is not safe for concurrent
// use from more than one goroutine; the shard loop that calls Login is
// the only caller.
type GatewayClient struct {
	token      string
	intents    GatewayIntent
	spec       ClientSpec
	logger     Logger
	dispatcher *dispatcher
	presence   any

	shardID    int
	shardCount int

	conn  *wsConn
	state sessionState

	sessionID        string
	resumeGatewayURL string
	seq              *int64

	heartbeatIntervalMS int64
	remainingMS         int64
	sentCount           int64
	ackCount            int64

	// loginFlag is cleared by Logout; checked between iterations so a
	// caller-initiated shutdown can break out of Login's loop.
	loginFlag bool

	lastCloseCode int
}

type clientOption func(*GatewayClient)

// WithClientSpec overrides the default resource knobs.
func WithClientSpec(spec ClientSpec) clientOption {
	return func(c *GatewayClient) { c.spec = spec }
}

// WithLogger attaches a structured logger; nil falls back to a no-op.
func WithLogger(l Logger) clientOption {
	return func(c *GatewayClient) { c.logger = l }
}

// WithPresence sets the initial presence payload sent with IDENTIFY.
func WithPresence(presence any) clientOption {
	return func(c *GatewayClient) { c.presence = presence }
}

// WithShard assigns this client a shard id/count, written into every
// IDENTIFY as shard: [id, count].
func WithShard(id, count int) clientOption {
	return func(c *GatewayClient) { c.shardID, c.shardCount = id, count }
}

// NewGatewayClient builds a client for the given bot token and
// intents. onEvent is called for every dispatched event and for the
// locally-synthesized Closed/Reconnect events; a nil onEvent is
// replaced by a default handler that only logs the event name.
func NewGatewayClient(token string, intents GatewayIntent, onEvent func(*GatewayClient, Event), opts ...clientOption) *GatewayClient {
	c := &GatewayClient{
		token:   token,
		intents: intents,
		spec:    DefaultClientSpec(),
		logger:  noopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	if c.spec == (ClientSpec{}) {
		c.spec = DefaultClientSpec()
	}
	c.dispatcher = newDispatcher(c.logger, onEvent)
	return c
}

// ShardID reports the shard id this client was constructed with.
func (c *GatewayClient) ShardID() int { return c.shardID }

// Login drives one full connect-run-reconnect cycle until the caller
// calls Logout or the session hits an unrecoverable close code. It
// blocks the calling goroutine for the lifetime of the session,
// matching the "one event loop per shard" scheduling model: it must
// never be called from more than one goroutine for the same client.
func (c *GatewayClient) Login(ctx context.Context, gatewayURL string) error {
	c.loginFlag = true
	attempt := 0
	for c.loginFlag {
		url := gatewayURL
		if c.resumeGatewayURL != "" {
			url = c.resumeGatewayURL
		}
		err := c.runSession(ctx, url)
		if !c.loginFlag {
			return nil
		}
		if unrecoverableCloseCodes[c.lastCloseCode] {
			return fmt.Errorf("%w: unrecoverable close code %d", ErrGateway, c.lastCloseCode)
		}
		if err != nil {
			c.logger.WithField("shard", c.shardID).WithField("error", err.Error()).Warn("gateway session ended with error")
		}
		attempt++
		if serr := sleepBackoff(ctx, attempt); serr != nil {
			return serr
		}
	}
	return nil
}

// Logout requests a clean shutdown: the current loop iteration
// finishes, a 1000 close is sent, the websocket and socket are
// released, and Login returns nil.
func (c *GatewayClient) Logout() {
	c.loginFlag = false
	if c.conn != nil {
		c.conn.writeClose(context.Background(), wsCloseNormal)
	}
}

// runSession executes states CONNECTING through RUNNING once; it
// returns when the connection closes for any reason, having recorded
// the close code that drives Login's reconnect-vs-terminate decision.
func (c *GatewayClient) runSession(ctx context.Context, gatewayURL string) error {
	c.state = stateConnecting
	opts := handshakeOptions{
		ExtraQuery: []queryParam{{Name: "v", Value: "9"}, {Name: "encoding", Value: "json"}},
		Headers: []rawHeader{
			{Name: "Authorization", Value: "Bot " + c.token},
			{Name: "User-Agent", Value: "Katachi"},
		},
	}
	conn, err := dialWebSocket(ctx, gatewayURL, opts, c.spec.ReadRingSize)
	if err != nil {
		c.lastCloseCode = wsCloseAbnormal
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	c.conn = conn
	defer c.conn.close()

	c.state = stateAwaitHello
	if err := c.awaitHello(ctx); err != nil {
		c.lastCloseCode = wsCloseAbnormal
		return err
	}

	c.state = stateHandshake
	if err := c.handshakeSend(ctx); err != nil {
		c.lastCloseCode = wsCloseAbnormal
		return err
	}

	c.state = stateRunning
	if err := c.runLoop(ctx); err != nil {
		c.lastCloseCode = wsCloseAbnormal
		return err
	}
	return nil
}

// awaitHello blocks until the first frame arrives and requires it be
// opcode HELLO, recording heartbeat_interval.
func (c *GatewayClient) awaitHello(ctx context.Context) error {
	frame, err := c.conn.readFrame(ctx, -1)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if frame == nil {
		return fmt.Errorf("%w: no frame received awaiting HELLO", ErrGateway)
	}
	payload, err := decodePayload(frame.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
	if payload.Op != opHello {
		return fmt.Errorf("%w: first frame was opcode %d, want HELLO(10)", ErrGateway, payload.Op)
	}
	return c.applyHello(payload)
}

func (c *GatewayClient) applyHello(payload *gatewayPayload) error {
	var hello helloData
	if err := unmarshalField(payload.RawD, &hello); err != nil {
		return fmt.Errorf("%w: malformed HELLO payload: %v", ErrGateway, err)
	}
	c.heartbeatIntervalMS = int64(hello.HeartbeatIntervalMs)
	c.remainingMS = c.heartbeatIntervalMS
	c.sentCount, c.ackCount = 0, 0
	return nil
}

// handshakeSend sends RESUME if a prior session is known, else
// IDENTIFY.
func (c *GatewayClient) handshakeSend(ctx context.Context) error {
	if c.sessionID != "" {
		return c.sendResume(ctx)
	}
	return c.sendIdentify(ctx)
}

func (c *GatewayClient) sendIdentify(ctx context.Context) error {
	threshold := c.spec.LargeThreshold
	if threshold < 50 || threshold > 250 {
		threshold = 50
	}
	data := identifyData{
		Token: c.token,
		Properties: identifyProperties{
			OS:      "linux",
			Browser: "Katachi",
			Device:  "Katachi",
		},
		LargeThreshold: threshold,
		Intents:        c.intents,
		Presence:       c.presence,
	}
	if c.shardCount > 0 {
		data.Shard = &[2]int{c.shardID, c.shardCount}
	}
	return c.sendPayload(ctx, opIdentify, data)
}

func (c *GatewayClient) sendResume(ctx context.Context) error {
	data := resumeData{Token: c.token, SessionID: c.sessionID, Seq: c.seq}
	return c.sendPayload(ctx, opResume, data)
}

func (c *GatewayClient) sendHeartbeat(ctx context.Context) error {
	if err := c.sendPayload(ctx, opHeartbeat, c.seq); err != nil {
		return err
	}
	c.sentCount++
	return nil
}

func (c *GatewayClient) sendPayload(ctx context.Context, op int, d any) error {
	raw, err := marshalPayload(op, d)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
	return c.conn.writeFrame(ctx, wsOpText, raw)
}

// runLoop is state RUNNING: poll for frames at the configured tick,
// run the heartbeat countdown, and dispatch opcodes per the gateway
// protocol's opcode table.
func (c *GatewayClient) runLoop(ctx context.Context) error {
	last := time.Now()
	for c.loginFlag {
		frame, err := c.conn.readFrame(ctx, c.spec.TickMS)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}

		now := time.Now()
		c.remainingMS -= now.Sub(last).Milliseconds()
		last = now

		if frame == nil {
			// Timeout: not an error, lets the heartbeat countdown run.
			if err := c.tickHeartbeat(ctx); err != nil {
				return err
			}
			continue
		}

		if frame.Opcode == wsOpClose {
			c.lastCloseCode = c.conn.lastClose
			c.dispatcher.dispatch(c, Event{Type: EventClosed, Close: &CloseInfo{Code: c.lastCloseCode}})
			return nil
		}

		payload, err := decodePayload(frame.Payload)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrGateway, err)
		}
		if err := c.handleOpcode(ctx, payload); err != nil {
			return err
		}
	}
	return nil
}

// tickHeartbeat runs the countdown's zero-crossing logic.
func (c *GatewayClient) tickHeartbeat(ctx context.Context) error {
	if c.remainingMS > 0 {
		return nil
	}
	if c.sentCount != c.ackCount {
		c.conn.writeClose(ctx, wsCloseAbnormal)
		c.lastCloseCode = wsCloseAbnormal
		return fmt.Errorf("%w: heartbeat ack missed (sent=%d ack=%d)", ErrGateway, c.sentCount, c.ackCount)
	}
	if err := c.sendHeartbeat(ctx); err != nil {
		return err
	}
	c.remainingMS = c.heartbeatIntervalMS
	return nil
}

func (c *GatewayClient) handleOpcode(ctx context.Context, payload *gatewayPayload) error {
	switch payload.Op {
	case opDispatch:
		if payload.S != nil {
			c.seq = payload.S
		}
		return c.dispatchEvent(payload)

	case opHeartbeat:
		if err := c.sendHeartbeat(ctx); err != nil {
			return err
		}
		c.remainingMS = c.heartbeatIntervalMS
		return nil

	case opReconnect:
		c.dispatcher.dispatch(c, Event{Type: EventReconnectRequested})
		c.conn.writeClose(ctx, wsCloseAbnormal)
		c.lastCloseCode = wsCloseAbnormal
		return nil

	case opInvalidSession:
		var resumable bool
		_ = unmarshalField(payload.RawD, &resumable)
		if resumable {
			return c.handshakeSend(ctx)
		}
		c.sessionID = ""
		c.seq = nil
		c.conn.writeClose(ctx, wsCloseAbnormal)
		c.lastCloseCode = wsCloseAbnormal
		sleepCtx(ctx, jitterDuration(1*time.Second, 5*time.Second))
		return nil

	case opHello:
		if err := c.applyHello(payload); err != nil {
			return err
		}
		return c.handshakeSend(ctx)

	case opHeartbeatACK:
		c.ackCount++
		return nil

	default:
		c.logger.WithField("op", payload.Op).Warn("unhandled gateway opcode")
		return nil
	}
}

// dispatchEvent decodes the event named by payload.T and hands it to
// the user callback, recording READY's session_id/resume URL as a
// side effect before dispatch.
func (c *GatewayClient) dispatchEvent(payload *gatewayPayload) error {
	if payload.T == "READY" {
		var ready readyData
		if err := unmarshalField(payload.RawD, &ready); err == nil {
			if len(ready.SessionID) <= 1023 {
				c.sessionID = ready.SessionID
			}
			c.resumeGatewayURL = ready.ResumeGatewayURL
		}
	}
	event, err := decodeEvent(payload.T, payload.RawD)
	if err != nil {
		c.logger.WithField("type", payload.T).WithField("error", err.Error()).Warn("failed to decode dispatch event")
		return nil
	}
	c.dispatcher.dispatch(c, event)
	return nil
}

// sleepBackoff implements the "min(2^attempt, 32)s + random(0..1)s"
// retry delay shared by gateway reconnect and REST discovery retry.
func sleepBackoff(ctx context.Context, attempt int) error {
	exp := 32
	if attempt < 5 {
		exp = 1 << attempt
	}
	d := time.Duration(exp)*time.Second + time.Duration(rand.Float64()*float64(time.Second))
	return sleepCtx(ctx, d)
}

func jitterDuration(min, max time.Duration) time.Duration {
	return min + time.Duration(rand.Float64()*float64(max-min))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

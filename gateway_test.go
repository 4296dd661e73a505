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
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/bytedance/sonic"
)

// newTestWsConn wires a wsConn to one end of an in-memory pipe, the
// other end standing in for Discord's side of the socket.
func newTestWsConn() (*wsConn, net.Conn) {
	sock, peer := pipeSocket()
	return &wsConn{sock: sock, reader: newFrameReader(), readBuf: make([]byte, defaultRingSize)}, peer
}

// readClientFrame reads one small (<=125 byte payload), masked,
// single-frame message as this client would send one, the other side
// of the test pipe playing Discord's role.
func readClientFrame(t *testing.T, conn net.Conn) (wsOpcode, []byte) {
	t.Helper()
	header := make([]byte, 2)
	if _, err := io.ReadFull(conn, header); err != nil {
		t.Fatalf("read frame header: %v", err)
	}
	opcode := wsOpcode(header[0] & 0x0F)
	masked := header[1]&0x80 != 0
	length := int(header[1] & 0x7F)

	var mask [4]byte
	if masked {
		if _, err := io.ReadFull(conn, mask[:]); err != nil {
			t.Fatalf("read mask: %v", err)
		}
	}
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(conn, payload); err != nil {
			t.Fatalf("read payload: %v", err)
		}
	}
	if masked {
		unmask(payload, mask)
	}
	return opcode, payload
}

func TestSessionState_String(t *testing.T) {
	cases := map[sessionState]string{
		stateDisconnected: "disconnected",
		stateConnecting:   "connecting",
		stateAwaitHello:   "await_hello",
		stateHandshake:    "handshake",
		stateRunning:      "running",
		sessionState(99):  "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("sessionState(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestApplyHello_SetsHeartbeatInterval(t *testing.T) {
	c := NewGatewayClient("tok", 0, func(*GatewayClient, Event) {})
	payload := &gatewayPayload{Op: opHello, RawD: []byte(`{"heartbeat_interval":41250}`)}

	if err := c.applyHello(payload); err != nil {
		t.Fatalf("applyHello() error: %v", err)
	}
	if c.heartbeatIntervalMS != 41250 {
		t.Fatalf("heartbeatIntervalMS = %d, want 41250", c.heartbeatIntervalMS)
	}
	if c.remainingMS != 41250 {
		t.Fatalf("remainingMS = %d, want 41250", c.remainingMS)
	}
	if c.sentCount != 0 || c.ackCount != 0 {
		t.Fatalf("sentCount/ackCount not reset: %d/%d", c.sentCount, c.ackCount)
	}
}

func TestHandleOpcode_HeartbeatAck(t *testing.T) {
	c := NewGatewayClient("tok", 0, func(*GatewayClient, Event) {})
	c.sentCount = 3
	if err := c.handleOpcode(context.Background(), &gatewayPayload{Op: opHeartbeatACK}); err != nil {
		t.Fatalf("handleOpcode(ACK) error: %v", err)
	}
	if c.ackCount != 1 {
		t.Fatalf("ackCount = %d, want 1", c.ackCount)
	}
}

func TestDispatchEvent_ReadyCapturesSessionState(t *testing.T) {
	events := make(chan Event, 1)
	c := NewGatewayClient("tok", 0, func(_ *GatewayClient, e Event) { events <- e })

	rawD := []byte(`{"session_id":"abc123","resume_gateway_url":"wss://resume.example/"}`)
	if err := c.dispatchEvent(&gatewayPayload{Op: opDispatch, T: "READY", RawD: rawD}); err != nil {
		t.Fatalf("dispatchEvent() error: %v", err)
	}
	if c.sessionID != "abc123" {
		t.Fatalf("sessionID = %q, want abc123", c.sessionID)
	}
	if c.resumeGatewayURL != "wss://resume.example/" {
		t.Fatalf("resumeGatewayURL = %q", c.resumeGatewayURL)
	}

	select {
	case e := <-events:
		if e.Type != EventReady {
			t.Fatalf("event type = %q, want %q", e.Type, EventReady)
		}
	case <-time.After(time.Second):
		t.Fatalf("handler was never invoked")
	}
}

func TestHandleOpcode_Dispatch_TracksSequence(t *testing.T) {
	c := NewGatewayClient("tok", 0, func(*GatewayClient, Event) {})
	seq := int64(7)
	err := c.handleOpcode(context.Background(), &gatewayPayload{
		Op: opDispatch, T: "MESSAGE_CREATE", S: &seq, RawD: []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("handleOpcode(DISPATCH) error: %v", err)
	}
	if c.seq == nil || *c.seq != 7 {
		t.Fatalf("seq = %v, want 7", c.seq)
	}
}

func TestHandleOpcode_Reconnect_ClosesAbnormally(t *testing.T) {
	events := make(chan Event, 1)
	c := NewGatewayClient("tok", 0, func(_ *GatewayClient, e Event) { events <- e })
	conn, peer := newTestWsConn()
	c.conn = conn
	defer peer.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- c.handleOpcode(context.Background(), &gatewayPayload{Op: opReconnect}) }()

	opcode, payload := readClientFrame(t, peer)
	if opcode != wsOpClose {
		t.Fatalf("opcode = %d, want close", opcode)
	}
	if len(payload) < 2 || int(binary.BigEndian.Uint16(payload[:2])) != wsCloseAbnormal {
		t.Fatalf("close payload = %v, want code %d", payload, wsCloseAbnormal)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("handleOpcode(RECONNECT) error: %v", err)
	}
	if c.lastCloseCode != wsCloseAbnormal {
		t.Fatalf("lastCloseCode = %d, want %d", c.lastCloseCode, wsCloseAbnormal)
	}

	select {
	case e := <-events:
		if e.Type != EventReconnectRequested {
			t.Fatalf("event type = %q, want %q", e.Type, EventReconnectRequested)
		}
	case <-time.After(time.Second):
		t.Fatalf("reconnect-requested event was never dispatched")
	}
}

func TestTickHeartbeat_SendsOnZeroCrossing(t *testing.T) {
	c := NewGatewayClient("tok", 0, func(*GatewayClient, Event) {})
	conn, peer := newTestWsConn()
	c.conn = conn
	defer peer.Close()
	c.heartbeatIntervalMS = 1000
	c.remainingMS = 0

	errCh := make(chan error, 1)
	go func() { errCh <- c.tickHeartbeat(context.Background()) }()

	opcode, payload := readClientFrame(t, peer)
	if opcode != wsOpText {
		t.Fatalf("opcode = %d, want text", opcode)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("tickHeartbeat() error: %v", err)
	}
	if c.sentCount != 1 {
		t.Fatalf("sentCount = %d, want 1", c.sentCount)
	}
	if c.remainingMS != c.heartbeatIntervalMS {
		t.Fatalf("remainingMS = %d, want reset to %d", c.remainingMS, c.heartbeatIntervalMS)
	}

	payload2 := decodeOrFail(t, payload)
	if payload2["op"].(float64) != float64(opHeartbeat) {
		t.Fatalf("payload op = %v, want %d", payload2["op"], opHeartbeat)
	}
}

func TestTickHeartbeat_MissedAckFailsConnection(t *testing.T) {
	c := NewGatewayClient("tok", 0, func(*GatewayClient, Event) {})
	conn, peer := newTestWsConn()
	c.conn = conn
	defer peer.Close()
	c.heartbeatIntervalMS = 1000
	c.remainingMS = 0
	c.sentCount = 1
	c.ackCount = 0

	errCh := make(chan error, 1)
	go func() { errCh <- c.tickHeartbeat(context.Background()) }()

	opcode, payload := readClientFrame(t, peer)
	if opcode != wsOpClose {
		t.Fatalf("opcode = %d, want close", opcode)
	}
	if len(payload) < 2 || int(binary.BigEndian.Uint16(payload[:2])) != wsCloseAbnormal {
		t.Fatalf("close payload = %v", payload)
	}
	if err := <-errCh; err == nil {
		t.Fatalf("tickHeartbeat() returned nil, want a missed-ack error")
	}
	if c.lastCloseCode != wsCloseAbnormal {
		t.Fatalf("lastCloseCode = %d, want %d", c.lastCloseCode, wsCloseAbnormal)
	}
}

func TestTickHeartbeat_NoopBeforeZeroCrossing(t *testing.T) {
	c := NewGatewayClient("tok", 0, func(*GatewayClient, Event) {})
	c.heartbeatIntervalMS = 1000
	c.remainingMS = 500

	if err := c.tickHeartbeat(context.Background()); err != nil {
		t.Fatalf("tickHeartbeat() error: %v", err)
	}
	if c.sentCount != 0 {
		t.Fatalf("sentCount = %d, want 0 (no crossing yet)", c.sentCount)
	}
}

func decodeOrFail(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := sonic.Unmarshal(raw, &m); err != nil {
		t.Fatalf("decode payload %q: %v", raw, err)
	}
	return m
}

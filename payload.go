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
	"encoding/json"

	"github.com/bytedance/sonic"
)

// Gateway opcodes (not to be confused with WebSocket frame opcodes).
const (
	opDispatch            = 0
	opHeartbeat           = 1
	opIdentify            = 2
	opPresenceUpdate      = 3
	opVoiceStateUpdate    = 4
	opResume              = 6
	opReconnect           = 7
	opRequestGuildMembers = 8
	opInvalidSession      = 9
	opHello               = 10
	opHeartbeatACK        = 11
)

// gatewayPayload is the envelope every gateway message shares: op is
// always present, s and t only on DISPATCH, d is opcode-dependent and
// decoded lazily by the caller once it knows op/t.
type gatewayPayload struct {
	Op   int
	S    *int64
	T    string
	RawD []byte
}

func decodePayload(raw []byte) (*gatewayPayload, error) {
	var p struct {
		Op int             `json:"op"`
		D  json.RawMessage `json:"d"`
		S  *int64          `json:"s"`
		T  string          `json:"t"`
	}
	if err := sonic.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &gatewayPayload{Op: p.Op, RawD: p.D, S: p.S, T: p.T}, nil
}

func marshalPayload(op int, d any) ([]byte, error) {
	return sonic.Marshal(map[string]any{"op": op, "d": d})
}

// unmarshalField decodes a gatewayPayload's raw "d" bytes into dst.
// An empty/null raw value is treated as a no-op rather than an error,
// since several opcodes (e.g. the null "d" RESUME may echo) carry no
// meaningful body.
func unmarshalField(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return sonic.Unmarshal(raw, dst)
}

type helloData struct {
	HeartbeatIntervalMs float64 `json:"heartbeat_interval"`
}

type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

type identifyData struct {
	Token          string             `json:"token"`
	Properties     identifyProperties `json:"properties"`
	Compress       bool               `json:"compress,omitempty"` // always false; transport compression isn't implemented
	LargeThreshold int                `json:"large_threshold,omitempty"`
	Shard          *[2]int            `json:"shard,omitempty"`
	Presence       any                `json:"presence,omitempty"`
	Intents        GatewayIntent      `json:"intents"`
}

type resumeData struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       *int64 `json:"seq"`
}

type readyData struct {
	SessionID        string `json:"session_id"`
	ResumeGatewayURL string `json:"resume_gateway_url"`
}

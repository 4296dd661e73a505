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

import "testing"

func TestDecodePayload_PreservesRawD(t *testing.T) {
	raw := []byte(`{"op":0,"s":42,"t":"READY","d":{"session_id":"abc"}}`)
	p, err := decodePayload(raw)
	if err != nil {
		t.Fatalf("decodePayload() error: %v", err)
	}
	if p.Op != opDispatch || p.T != "READY" {
		t.Fatalf("p = %+v", p)
	}
	if p.S == nil || *p.S != 42 {
		t.Fatalf("S = %v, want 42", p.S)
	}

	var ready readyData
	if err := unmarshalField(p.RawD, &ready); err != nil {
		t.Fatalf("unmarshalField() error: %v", err)
	}
	if ready.SessionID != "abc" {
		t.Fatalf("SessionID = %q, want abc", ready.SessionID)
	}
}

func TestDecodePayload_NullDataOpcodes(t *testing.T) {
	raw := []byte(`{"op":11,"d":null}`)
	p, err := decodePayload(raw)
	if err != nil {
		t.Fatalf("decodePayload() error: %v", err)
	}
	if p.Op != opHeartbeatACK {
		t.Fatalf("Op = %d, want %d", p.Op, opHeartbeatACK)
	}

	var dst struct{}
	if err := unmarshalField(p.RawD, &dst); err != nil {
		t.Fatalf("unmarshalField() on null d should be a no-op, got error: %v", err)
	}
}

func TestMarshalPayload_RoundTrips(t *testing.T) {
	seq := int64(5)
	raw, err := marshalPayload(opHeartbeat, &seq)
	if err != nil {
		t.Fatalf("marshalPayload() error: %v", err)
	}
	p, err := decodePayload(raw)
	if err != nil {
		t.Fatalf("decodePayload(marshalPayload()) error: %v", err)
	}
	if p.Op != opHeartbeat {
		t.Fatalf("Op = %d, want %d", p.Op, opHeartbeat)
	}
	var got int64
	if err := unmarshalField(p.RawD, &got); err != nil {
		t.Fatalf("unmarshalField() error: %v", err)
	}
	if got != 5 {
		t.Fatalf("d = %d, want 5", got)
	}
}

func TestUnmarshalField_EmptyRawIsNoop(t *testing.T) {
	var dst map[string]any
	if err := unmarshalField(nil, &dst); err != nil {
		t.Fatalf("unmarshalField(nil) error: %v", err)
	}
	if dst != nil {
		t.Fatalf("dst = %v, want untouched nil", dst)
	}
}

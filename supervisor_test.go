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
	"testing"
	"time"
)

func TestBucketStartGate_PacesSameBucket(t *testing.T) {
	gate := newBucketStartGate(80 * time.Millisecond)

	gate.Wait(0) // first launch in bucket 0: no prior entry, returns immediately

	start := time.Now()
	gate.Wait(0) // second launch sharing bucket 0: must wait out the interval
	elapsed := time.Since(start)

	if elapsed < 60*time.Millisecond {
		t.Fatalf("Wait() returned after %v, want at least ~80ms of pacing", elapsed)
	}
}

func TestBucketStartGate_DoesNotPaceDifferentBuckets(t *testing.T) {
	gate := newBucketStartGate(500 * time.Millisecond)

	gate.Wait(0)

	start := time.Now()
	gate.Wait(1) // a different rate-limit key shares no bucket with key 0
	elapsed := time.Since(start)

	if elapsed > 100*time.Millisecond {
		t.Fatalf("Wait() on a distinct bucket took %v, want near-immediate", elapsed)
	}
}

func TestSupervisor_NewShardClient_DefaultsSpecAndWiresShard(t *testing.T) {
	sup := &Supervisor{cfg: SupervisorConfig{Token: "tok", Intents: GatewayIntent(1)}}
	client := sup.newShardClient(2, 4)

	if client.ShardID() != 2 {
		t.Fatalf("ShardID() = %d, want 2", client.ShardID())
	}
	if client.shardCount != 4 {
		t.Fatalf("shardCount = %d, want 4", client.shardCount)
	}
	if client.spec != DefaultClientSpec() {
		t.Fatalf("spec = %+v, want the default spec substituted for the zero value", client.spec)
	}
}

func TestSupervisor_Shutdown_LogsOutEveryClient(t *testing.T) {
	c1 := NewGatewayClient("tok", 0, func(*GatewayClient, Event) {})
	c2 := NewGatewayClient("tok", 0, func(*GatewayClient, Event) {})
	c1.loginFlag, c2.loginFlag = true, true

	sup := &Supervisor{clients: []*GatewayClient{c1, nil, c2}}
	sup.Shutdown()

	if c1.loginFlag || c2.loginFlag {
		t.Fatalf("Shutdown() did not clear loginFlag on every client")
	}
}

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
	"encoding/base64"
	"testing"
)

// TestComputeAccept_RFC6455Vector checks the exact worked example from
// RFC 6455 §1.3: key "dGhlIHNhbXBsZSBub25jZQ==" must accept with
// "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=".
func TestComputeAccept_RFC6455Vector(t *testing.T) {
	const key = "dGhlIHNhbXBsZSBub25jZQ=="
	const want = "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="

	got := computeAccept(key)
	if got != want {
		t.Fatalf("computeAccept(%q) = %q, want %q", key, got, want)
	}
}

func TestNewClientKey_Base64Nonce(t *testing.T) {
	k1, err := newClientKey()
	if err != nil {
		t.Fatalf("newClientKey() error: %v", err)
	}
	k2, err := newClientKey()
	if err != nil {
		t.Fatalf("newClientKey() error: %v", err)
	}
	if k1 == k2 {
		t.Fatalf("newClientKey() returned the same nonce twice")
	}
	raw, err := base64.StdEncoding.DecodeString(k1)
	if err != nil || len(raw) != 16 {
		t.Fatalf("newClientKey() = %q, want base64 of 16 bytes", k1)
	}
}

func TestParseWSURL(t *testing.T) {
	cases := []struct {
		raw      string
		wantTLS  bool
		wantHost string
		wantPort string
		wantPath string
	}{
		{"wss://gateway.discord.gg", true, "gateway.discord.gg", "443", "/"},
		{"wss://gateway.discord.gg/?v=10&encoding=json", true, "gateway.discord.gg", "443", "/?v=10&encoding=json"},
		{"ws://localhost:8080/gateway", false, "localhost", "8080", "/gateway"},
		{"gateway.discord.gg:443", true, "gateway.discord.gg", "443", "/"},
	}

	for _, tc := range cases {
		got, err := parseWSURL(tc.raw)
		if err != nil {
			t.Fatalf("parseWSURL(%q) error: %v", tc.raw, err)
		}
		if got.TLS != tc.wantTLS || got.Host != tc.wantHost || got.Port != tc.wantPort || got.Path != tc.wantPath {
			t.Fatalf("parseWSURL(%q) = %+v, want {TLS:%v Host:%s Port:%s Path:%s}",
				tc.raw, got, tc.wantTLS, tc.wantHost, tc.wantPort, tc.wantPath)
		}
	}
}

func TestParseWSURL_RejectsUnsupportedScheme(t *testing.T) {
	if _, err := parseWSURL("ftp://example.com"); err == nil {
		t.Fatalf("parseWSURL() accepted an unsupported scheme")
	}
}

func TestTokenSubset(t *testing.T) {
	offered := []string{"json", "etf"}
	if !tokenSubset("json", offered) {
		t.Fatalf("tokenSubset() rejected an offered protocol")
	}
	if tokenSubset("msgpack", offered) {
		t.Fatalf("tokenSubset() accepted a protocol never offered")
	}
}

func TestExtensionSubset(t *testing.T) {
	offered := []string{"permessage-deflate; client_max_window_bits"}
	if !extensionSubset("permessage-deflate", offered) {
		t.Fatalf("extensionSubset() rejected an offered extension name")
	}
	if extensionSubset("permessage-foo", offered) {
		t.Fatalf("extensionSubset() accepted an extension never offered")
	}
}

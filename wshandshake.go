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
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

// wsAcceptMagic is the RFC 6455 §1.3 GUID appended to the client key
// before hashing.
const wsAcceptMagic = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// computeAccept returns base64(SHA1(clientKey || magic)), grounded on
// betamos-Go-Websocket's wsClientHandshake/validateSecWebSocketKey.
func computeAccept(clientKey string) string {
	h := sha1.New()
	h.Write([]byte(clientKey))
	h.Write([]byte(wsAcceptMagic))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// newClientKey returns a base64-encoded 16-byte cryptographically
// random nonce for Sec-WebSocket-Key.
func newClientKey() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// wsTarget is a parsed WebSocket URI.
type wsTarget struct {
	TLS  bool
	Host string
	Port string
	Path string
}

// parseWSURL accepts ws://, wss://, or a bare host[:port][/path]. Port
// precedence: an explicit port in the URI wins; otherwise 443 when TLS
// is in use, 80 otherwise. A bare URI infers TLS when the port is 443
// or the host is literally "https". Any scheme other than ws and wss,
// including "https://", is rejected.
func parseWSURL(raw string) (*wsTarget, error) {
	scheme := ""
	rest := raw
	if i := strings.Index(raw, "://"); i >= 0 {
		scheme = raw[:i]
		rest = raw[i+3:]
	}

	u, err := url.Parse("scheme://" + rest)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid websocket url %q: %v", ErrHandshake, raw, err)
	}

	host := u.Hostname()
	port := u.Port()
	path := u.Path
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	if path == "" {
		path = "/"
	}

	var tls bool
	switch scheme {
	case "wss":
		tls = true
	case "ws":
		tls = false
	case "":
		tls = port == "443" || host == "https"
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrHandshake, scheme)
	}

	if port == "" {
		if tls {
			port = "443"
		} else {
			port = "80"
		}
	}

	return &wsTarget{TLS: tls, Host: host, Port: port, Path: path}, nil
}

// handshakeOptions configures the protocols/extensions a client offers
// alongside the mandatory Upgrade headers.
type handshakeOptions struct {
	Protocols  []string // Sec-WebSocket-Protocol, comma-separated tokens
	Extensions []string // Sec-WebSocket-Extensions, ";"-separated assignments
	ExtraQuery []queryParam
	Headers    []rawHeader
}

// performHandshake issues the HTTP/1.1 GET upgrade request over c and
// validates the server's 101 response, returning the resolved client
// key (useful for tests) and an error describing the first mismatch.
func performHandshake(ctx context.Context, c *httpClient, target *wsTarget, opts handshakeOptions) (acceptKey string, err error) {
	clientKey, err := newClientKey()
	if err != nil {
		return "", err
	}

	req := &httpRequest{Method: "GET", Path: target.Path}
	req.Headers.setKnown("Host", target.Host)
	req.Headers.setKnown(headerNames[headerUpgrade], "websocket")
	req.Headers.setKnown(headerNames[headerConnection], "Upgrade")
	req.Headers.raw = append(req.Headers.raw,
		rawHeader{Name: "Sec-WebSocket-Version", Value: "13"},
		rawHeader{Name: "Sec-WebSocket-Key", Value: clientKey},
	)
	if len(opts.Protocols) > 0 {
		req.Headers.raw = append(req.Headers.raw, rawHeader{
			Name: "Sec-WebSocket-Protocol", Value: strings.Join(opts.Protocols, ", "),
		})
	}
	if len(opts.Extensions) > 0 {
		req.Headers.raw = append(req.Headers.raw, rawHeader{
			Name: "Sec-WebSocket-Extensions", Value: strings.Join(opts.Extensions, ", "),
		})
	}
	req.Headers.raw = append(req.Headers.raw, opts.Headers...)
	for _, q := range opts.ExtraQuery {
		req.addQuery(q.Name, q.Value)
	}

	header, err := buildRequest(req)
	if err != nil {
		return "", err
	}
	if err := c.sendRequest(ctx, header, req); err != nil {
		return "", err
	}
	resp, err := c.receiveResponse(ctx, nil)
	if err != nil {
		return "", err
	}

	if resp.Status.Code != 101 {
		return "", fmt.Errorf("%w: handshake status %d, want 101", ErrHandshake, resp.Status.Code)
	}
	if upgrade, _ := resp.Headers.get(headerNames[headerUpgrade]); !strings.EqualFold(upgrade, "websocket") {
		return "", fmt.Errorf("%w: missing or wrong Upgrade header %q", ErrHandshake, upgrade)
	}
	if conn, _ := resp.Headers.get(headerNames[headerConnection]); !strings.EqualFold(conn, "upgrade") {
		return "", fmt.Errorf("%w: missing or wrong Connection header %q", ErrHandshake, conn)
	}

	accept, ok := resp.Headers.get("Sec-WebSocket-Accept")
	if !ok {
		accept, ok = findRaw(resp.Headers.raw, "Sec-WebSocket-Accept")
	}
	want := computeAccept(clientKey)
	if !ok || accept != want {
		return "", fmt.Errorf("%w: Sec-WebSocket-Accept mismatch (got %q want %q)", ErrHandshake, accept, want)
	}

	if err := validateNegotiated(resp.Headers.raw, "Sec-WebSocket-Protocol", opts.Protocols, tokenSubset); err != nil {
		return "", err
	}
	if err := validateNegotiated(resp.Headers.raw, "Sec-WebSocket-Extensions", opts.Extensions, extensionSubset); err != nil {
		return "", err
	}

	return clientKey, nil
}

func findRaw(raw []rawHeader, name string) (string, bool) {
	for _, r := range raw {
		if strings.EqualFold(r.Name, name) {
			return r.Value, true
		}
	}
	return "", false
}

// validateNegotiated enforces: if the client offered none and the
// server returned any, abort; otherwise every server value must be a
// subset of what the client offered, per the supplied matcher.
func validateNegotiated(raw []rawHeader, headerName string, offered []string, subset func(serverVal string, offered []string) bool) error {
	serverVal, ok := findRaw(raw, headerName)
	if !ok || serverVal == "" {
		return nil
	}
	if len(offered) == 0 {
		return fmt.Errorf("%w: server returned %s but client offered none", ErrHandshake, headerName)
	}
	if !subset(serverVal, offered) {
		return fmt.Errorf("%w: server %s %q not offered by client", ErrHandshake, headerName, serverVal)
	}
	return nil
}

// tokenSubset checks comma-separated protocol tokens.
func tokenSubset(serverVal string, offered []string) bool {
	for _, tok := range strings.Split(serverVal, ",") {
		if !containsFold(offered, strings.TrimSpace(tok)) {
			return false
		}
	}
	return true
}

// extensionSubset checks the server's comma-separated extensions by
// name only: each server extension name must appear among the client's
// offered extension names. The ";"-separated parameters after a name
// are not compared on either side.
func extensionSubset(serverVal string, offered []string) bool {
	for _, ext := range strings.Split(serverVal, ",") {
		name := strings.TrimSpace(strings.SplitN(strings.TrimSpace(ext), ";", 2)[0])
		found := false
		for _, off := range offered {
			offName := strings.TrimSpace(strings.SplitN(off, ";", 2)[0])
			if strings.EqualFold(offName, name) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), v) {
			return true
		}
	}
	return false
}

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

import "errors"

// Sentinel errors identifying the taxonomy this module distinguishes.
// Wrap with fmt.Errorf("...: %w", ErrX) at the call site so callers can
// still errors.Is against the category while getting a specific message.
var (
	// ErrTransport covers socket connect/resolve/read/write failures.
	// Retried via reconnect-once at the socket layer; if that also
	// fails it surfaces here and the gateway loop treats it as an
	// abnormal close (1006).
	ErrTransport = errors.New("gwc: transport error")

	// ErrTLS covers handshake or certificate verification failures.
	// Never retried; fatal to the current session.
	ErrTLS = errors.New("gwc: tls error")

	// ErrProtocol covers malformed HTTP headers, bad chunk sizes, and
	// malformed WebSocket frames. Fatal to the current session; the
	// connection is closed with code 1002.
	ErrProtocol = errors.New("gwc: protocol error")

	// ErrHandshake covers a failed HTTP Upgrade / WebSocket handshake
	// (Sec-WebSocket-Accept mismatch, missing Upgrade/Connection,
	// unsupported extension or protocol).
	ErrHandshake = errors.New("gwc: handshake error")

	// ErrGateway covers unexpected Discord gateway opcodes, missing
	// required fields, or an unrecoverable close code. Terminates the
	// shard.
	ErrGateway = errors.New("gwc: gateway error")
)

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
)

const defaultRingSize = 64 * 1024

// wsConn is the client-side WebSocket engine: one socket and a
// streaming frame reader; outbound frames are written straight to the
// socket, with no write queue. It always masks what it
// sends and rejects anything the server sends masked, per RFC 6455's
// client/server asymmetry.
type wsConn struct {
	sock    *socket
	reader  *frameReader
	readBuf []byte // ring-sized scratch for each socket.read call
	pending []byte // bytes read but not yet consumed by the reader

	closed    bool
	closeSent bool
	lastClose int
}

// dialWebSocket resolves target, connects (optionally TLS), and
// performs the Upgrade handshake.
func dialWebSocket(ctx context.Context, rawURL string, opts handshakeOptions, ringSize int) (*wsConn, error) {
	target, err := parseWSURL(rawURL)
	if err != nil {
		return nil, err
	}
	kind := socketPlain
	if target.TLS {
		kind = socketTLS
	}
	sock, err := dialSocket(ctx, target.Host, target.Port, kind)
	if err != nil {
		return nil, err
	}

	httpC := newHTTPClient(sock, target.Host)
	if _, err := performHandshake(ctx, httpC, target, opts); err != nil {
		sock.close()
		return nil, err
	}

	if ringSize <= 0 {
		ringSize = defaultRingSize
	}
	return &wsConn{sock: sock, reader: newFrameReader(), readBuf: make([]byte, ringSize)}, nil
}

// readFrame blocks (up to timeoutMS, per socket.setDeadline's
// contract) for the next complete, fully-reassembled frame, replying
// to ping and discarding pong transparently, and returning data frames
// (text/binary) and the server's close frame (after acknowledging it)
// to the caller. A timeout returns (nil, nil): not an
// error, so the gateway's heartbeat logic can run.
func (c *wsConn) readFrame(ctx context.Context, timeoutMS int) (*wsFrame, error) {
	for {
		// Drain whatever is already buffered before touching the
		// socket again: a single socket.read can return bytes
		// spanning more than one frame.
		if len(c.pending) > 0 {
			frame, complete, consumed, ferr := c.reader.feed(c.pending)
			c.pending = c.pending[consumed:]
			if ferr != nil {
				c.failConnection(ctx, wsCloseProtoError)
				return nil, ferr
			}
			if complete {
				if result, done, err := c.handleFrame(ctx, frame); done {
					return result, err
				}
				continue
			}
			if len(c.pending) > 0 {
				continue
			}
		}

		if err := c.sock.setDeadline(timeoutMS); err != nil {
			return nil, err
		}
		n, err := c.sock.read(ctx, c.readBuf)
		if err != nil {
			if isTimeout(err) {
				return nil, nil
			}
			return nil, err
		}
		c.pending = append(c.pending, c.readBuf[:n]...)
	}
}

// handleFrame processes one fully-reassembled frame: control frames
// are handled transparently (ping replied to, pong discarded, close
// acknowledged) and reported back to the caller only for close;
// data frames are returned directly. done is false only for the
// "keep looping" control-frame cases.
func (c *wsConn) handleFrame(ctx context.Context, frame *wsFrame) (result *wsFrame, done bool, err error) {
	switch frame.Opcode {
	case wsOpPing:
		if werr := c.writeFrame(ctx, wsOpPong, frame.Payload); werr != nil {
			return nil, true, werr
		}
		return nil, false, nil
	case wsOpPong:
		return nil, false, nil
	case wsOpClose:
		code := wsCloseNormal
		if len(frame.Payload) >= 2 {
			code = int(binary.BigEndian.Uint16(frame.Payload[:2]))
		}
		c.lastClose = code
		if !c.closeSent {
			c.writeClose(ctx, code)
		}
		c.closed = true
		return frame, true, nil
	default:
		return frame, true, nil
	}
}

// writeFrame masks and sends a single complete (FIN=1) frame.
func (c *wsConn) writeFrame(ctx context.Context, opcode wsOpcode, payload []byte) error {
	buf := serializeFrame(opcode, payload, true)
	_, err := c.sock.write(ctx, buf)
	return err
}

// writeClose sends a close frame carrying the given 2-byte code.
func (c *wsConn) writeClose(ctx context.Context, code int) error {
	payload := make([]byte, 2)
	binary.BigEndian.PutUint16(payload, uint16(code))
	c.closeSent = true
	return c.writeFrame(ctx, wsOpClose, payload)
}

// failConnection sends a close frame with the given code and marks
// the connection closed; used when a protocol violation is detected
// locally.
func (c *wsConn) failConnection(ctx context.Context, code int) {
	if !c.closeSent {
		c.writeClose(ctx, code)
	}
	c.closed = true
}

func (c *wsConn) close() error {
	return c.sock.close()
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	te, ok := err.(timeouter)
	return ok && te.Timeout()
}

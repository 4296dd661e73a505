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
	"math"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
)

const (
	discoveryAPIVersion = "v10"
	discoveryHost       = "discord.com"
	discoveryMaxRetries = 5
)

// gatewayResponse is GET /gateway's body.
type gatewayResponse struct {
	URL string `json:"url"`
}

// sessionStartLimit is GET /gateway/bot's session_start_limit object.
type sessionStartLimit struct {
	Total          int `json:"total"`
	Remaining      int `json:"remaining"`
	ResetAfter     int `json:"reset_after"`
	MaxConcurrency int `json:"max_concurrency"`
}

// gatewayBotResponse is GET /gateway/bot's body.
type gatewayBotResponse struct {
	URL               string            `json:"url"`
	Shards            int               `json:"shards"`
	SessionStartLimit sessionStartLimit `json:"session_start_limit"`
}

type apiErrorBody struct {
	Message string `json:"message"`
}

// discoveryClient issues the two unauthenticated/authenticated REST
// calls the shard supervisor needs before it can open any WebSocket:
// it owns its own socket, separate from any gateway wsConn.
type discoveryClient struct {
	token  string
	logger Logger
}

func newDiscoveryClient(token string, logger Logger) *discoveryClient {
	if logger == nil {
		logger = noopLogger{}
	}
	return &discoveryClient{token: token, logger: logger}
}

// getGateway calls GET /gateway (no auth required), retrying with the
// same exponential-backoff-plus-jitter rule as the gateway's own
// connect-failure path.
func (d *discoveryClient) getGateway(ctx context.Context) (*gatewayResponse, error) {
	var out gatewayResponse
	err := d.callWithRetry(ctx, "GET", "/gateway", false, &out)
	return &out, err
}

// getGatewayBot calls GET /gateway/bot with Authorization: Bot <token>.
func (d *discoveryClient) getGatewayBot(ctx context.Context) (*gatewayBotResponse, error) {
	var out gatewayBotResponse
	err := d.callWithRetry(ctx, "GET", "/gateway/bot", true, &out)
	return &out, err
}

var discoveryRetryableStatus = map[int]bool{500: true, 502: true, 503: true, 504: true}

// callWithRetry retries a discovery call across two distinct failure
// modes, both grounded on the teacher's requester.go do(): a 429 waits
// exactly the server-supplied Retry-After (falling back to 1s if the
// header is missing or malformed), a retryable 5xx or a transport
// error waits the spec's "min(2^attempt, 32)s + random(0..1)s" backoff
// used everywhere else a REST discovery call can fail.
func (d *discoveryClient) callWithRetry(ctx context.Context, method, path string, authRequired bool, out any) error {
	attempt := 0
	for tries := 0; tries < discoveryMaxRetries; tries++ {
		resp, err := d.call(ctx, method, path, authRequired)
		if err != nil {
			d.logger.WithField("path", path).WithField("error", err.Error()).Warn("gateway discovery call failed, retrying")
			if serr := sleepBackoff(ctx, attempt); serr != nil {
				return serr
			}
			attempt++
			continue
		}

		if resp.Status.Code == 429 {
			raw := resp.Headers.raw
			if v, ok := resp.Headers.get(headerNames[headerRetryAfter]); ok {
				raw = append([]rawHeader{{Name: "Retry-After", Value: v}}, raw...)
			}
			wait := retryAfterDuration(raw)
			d.logger.WithField("path", path).WithField("wait", wait.String()).Debug("discovery call rate limited")
			if serr := sleepCtx(ctx, wait); serr != nil {
				return serr
			}
			continue
		}
		if discoveryRetryableStatus[resp.Status.Code] {
			d.logger.WithField("path", path).WithField("status", resp.Status.Code).Warn("retryable discovery status, retrying")
			if serr := sleepBackoff(ctx, attempt); serr != nil {
				return serr
			}
			attempt++
			continue
		}
		if resp.Status.Code != 200 {
			var apiErr apiErrorBody
			_ = sonic.Unmarshal(resp.Body, &apiErr)
			if apiErr.Message == "" {
				apiErr.Message = resp.Status.Reason
			}
			return fmt.Errorf("%w: %s returned %d: %s", ErrTransport, path, resp.Status.Code, apiErr.Message)
		}
		return sonic.Unmarshal(resp.Body, out)
	}
	return fmt.Errorf("%w: %s: max retries reached", ErrTransport, path)
}

// retryAfterDuration parses the Retry-After header (seconds, may carry
// a fractional part), defaulting to 1s if absent or malformed.
func retryAfterDuration(raw []rawHeader) time.Duration {
	val, ok := findRaw(raw, "Retry-After")
	if !ok {
		return time.Second
	}
	sec, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return time.Second
	}
	whole, frac := math.Modf(sec)
	return time.Duration(whole)*time.Second + time.Duration(frac*1000)*time.Millisecond
}

func (d *discoveryClient) call(ctx context.Context, method, path string, authRequired bool) (*httpResponse, error) {
	sock, err := dialSocket(ctx, discoveryHost, "443", socketTLS)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer sock.close()

	c := newHTTPClient(sock, discoveryHost)
	req := &httpRequest{Method: method, Path: "/api/" + discoveryAPIVersion + path}
	req.Headers.setKnown("Host", discoveryHost)
	req.Headers.setKnown(headerNames[headerAccept], "application/json")
	if authRequired {
		req.Headers.raw = append(req.Headers.raw, rawHeader{Name: "Authorization", Value: "Bot " + d.token})
	}

	header, err := buildRequest(req)
	if err != nil {
		return nil, err
	}
	if err := c.sendRequest(ctx, header, req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return c.receiveResponse(ctx, nil)
}

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

import "runtime/debug"

// dispatchQueueSize bounds how far the read loop can run ahead of a
// slow handler before dispatch starts blocking. It does not need to
// be large: the queue only absorbs bursts (a RESUME replaying a batch
// of missed events), not sustained backpressure.
const dispatchQueueSize = 256

type dispatchJob struct {
	client *GatewayClient
	event  Event
}

// dispatcher owns the single user-registered event callback and runs
// every dispatched event through one worker goroutine draining a
// queue, so events reach the callback in the order the gateway
// produced them while a slow or panicking handler still can't block
// the shard's read loop (dispatch only blocks once the queue itself
// is full).
//
// WARNING: handler must be set before Login is called; it is not safe
// to change concurrently with dispatch.
type dispatcher struct {
	logger  Logger
	handler func(*GatewayClient, Event)
	queue   chan dispatchJob
}

func newDispatcher(logger Logger, handler func(*GatewayClient, Event)) *dispatcher {
	if logger == nil {
		logger = noopLogger{}
	}
	if handler == nil {
		handler = func(c *GatewayClient, e Event) {
			logger.WithField("event", string(e.Type)).Debug("dispatched event")
		}
	}
	d := &dispatcher{logger: logger, handler: handler, queue: make(chan dispatchJob, dispatchQueueSize)}
	go d.run()
	return d
}

// run drains the queue on a single goroutine for the lifetime of the
// dispatcher, which is what gives dispatch its ordering guarantee.
func (d *dispatcher) run() {
	for job := range d.queue {
		d.invoke(job.client, job.event)
	}
}

func (d *dispatcher) invoke(client *GatewayClient, event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.WithField("event", string(event.Type)).
				WithField("shard_id", client.shardID).
				WithField("panic", r).
				WithField("stack", string(debug.Stack())).
				Error("recovered from panic while handling event")
		}
	}()
	d.handler(client, event)
}

// dispatch enqueues one event for the worker goroutine to run in
// order. It only blocks if dispatchQueueSize events are already
// waiting on a stuck handler.
func (d *dispatcher) dispatch(client *GatewayClient, event Event) {
	d.logger.WithFields(map[string]any{
		"shard_id": client.shardID,
		"event":    string(event.Type),
	}).Debug("event dispatched")

	d.queue <- dispatchJob{client: client, event: event}
}

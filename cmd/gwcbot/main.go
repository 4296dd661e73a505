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

// Command gwcbot is a thin external-collaborator example: it wires a
// bot token into a gwc.Client that leaves the shard count to Discord's
// recommendation, hands every dispatched event to a debug-level log
// call (filtered out by the info-level logger it builds), and shuts
// down cleanly on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marouanesouiri/gwc"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <bot-token>\n", os.Args[0])
		os.Exit(1)
	}
	token := os.Args[1]

	logger := gwc.NewDefaultLogger(os.Stdout, gwc.LogLevelInfo)

	client := gwc.New(
		gwc.WithToken(token),
		gwc.WithIntents(gwc.GatewayIntentGuilds, gwc.GatewayIntentGuildMessages),
		gwc.WithClientLogger(logger),
		gwc.WithEventHandler(func(_ *gwc.GatewayClient, e gwc.Event) {
			logger.WithField("type", string(e.Type)).Debug("event received")
		}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		client.Shutdown()
	}()

	if err := client.Run(ctx); err != nil {
		logger.WithField("error", err.Error()).Error("client exited with an error")
		os.Exit(1)
	}
}

/*
Package drover is a conversation supervisor: it routes each user message
through a pool of task executors and commits every transition as exactly one
step against a durable, versioned conversation record.

It implements a "route, execute, re-route" loop with single-step commits,
separating the routing policy (which actor acts next) from the executors
(what an actor does) and from persistence (where the state lives).

# Concept

Drover treats a conversation as a step-versioned state machine. Each turn
starts with a user message, runs zero or more executors under a pluggable
routing policy, and ends with a response or a clarifying question. Every
step is committed atomically under compare-and-swap on the step counter, so
replicas never interleave partial writes, and every committed step is
checkpointed for replay.

# Key Features

  - One step, one commit: crashes land between steps, never inside one.
  - Pluggable routing: a deterministic rule set ships by default; any policy
    implementing ports.RoutingPolicy can replace it.
  - Durable by contract: in-memory, file and Redis stores share one
    conversation-store contract, with optional encryption and PII masking
    middleware layered on top.
  - Causally ordered events: per-conversation sequence numbers, fanned out
    to SSE, WebSocket and NATS subscribers.

# Usage

The zero-config engine runs entirely in memory:

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/droverlabs/drover"
	)

	func main() {
		eng, err := drover.New()
		if err != nil {
			log.Fatal(err)
		}
		defer eng.Close()

		result, err := eng.Handle(context.Background(), drover.TurnRequest{
			Message: "Generate a report on the sales numbers",
		})
		if err != nil {
			log.Fatal(err)
		}

		fmt.Println(result.Response)
	}

Swap persistence, policy or executors through supervisor options; see
pkg/supervisor for the full set.
*/
package drover

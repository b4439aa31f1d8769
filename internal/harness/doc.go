// Package harness runs correlation scenarios against the real engine.
//
// A scenario declares triggers in CUE, a sequence of events, and
// assertions over the resulting transition trace, the workflow instances
// started and the contexts left open. Each run uses a fresh in-memory
// SQLite store, a manual clock and sequential context ids, so the trace
// is fully deterministic and can be compared against a golden file.
//
// # Scenario Format
//
//	name: order_fulfilment
//	description: "Payment completes the order it refers to"
//	triggers: |
//	  trigger: "order-fulfilment": {
//	    correlation: "parallel"
//	    conditions: [
//	      {filters: [{attributes: {type: "order.created"}, correlate: {order_id: "subject"}}]},
//	      {filters: [{attributes: {type: "payment.received"}, correlate: {order_id: "data.order_id"}}]},
//	    ]
//	    run: {workflow: "fulfil", version: "1.0.0"}
//	  }
//	options:
//	  context_ttl: 10m
//	  conflict_retries: 1
//	events:
//	  - {id: e1, type: order.created, source: shop, subject: "42"}
//	  - {id: e2, type: payment.received, source: billing, data: {order_id: "42"}, advance: 1m}
//	assertions:
//	  - type: transition_count
//	    kind: fired
//	    count: 1
//	  - type: open_contexts
//	    trigger: default/order-fulfilment
//	    count: 0
//
// Triggers may instead be listed as trigger_files, resolved relative to the
// scenario file.
//
// # Golden Traces
//
// The trace is serialized as RFC 8785 canonical JSON. Golden files live in
// testdata/golden/{name}.golden; regenerate them with
//
//	go test ./internal/harness -update
package harness

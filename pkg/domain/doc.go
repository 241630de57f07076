// Package domain holds the core types of the orchestration engine:
// conversation state, step deltas, routing decisions, phases, events,
// checkpoints, and the error taxonomy.
//
// Everything here is plain data with no I/O. Adapters persist these types,
// the supervisor advances them, and policies decide over read-only views of
// them.
package domain

// Package ports defines the interfaces between the supervisor core and its
// adapters: conversation persistence, checkpointing, distributed locking,
// routing policy, executors, capabilities, and event emission.
//
// The core depends only on these interfaces. Adapters under pkg/adapters
// implement them; pkg/ports/tests carries reusable contract suites any
// implementation can run against itself.
package ports

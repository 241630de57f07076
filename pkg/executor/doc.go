// Package executor contains the worker pool of the engine: the five
// executors the routing layer can pick from, the registry that holds them,
// and the harness that runs one executor per step under a deadline and maps
// every outcome to a typed result or failure.
package executor

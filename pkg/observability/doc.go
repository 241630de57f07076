/*
Package observability provides live-monitoring helpers on top of the
engine's event stream.

The emitter hands out one gap-free channel per conversation. The
Aggregator merges several of those channels into a single view, for
dashboards and watch endpoints that follow more than one conversation at
a time.
*/
package observability

/*
Package observability turns interpreter lifecycle events into Prometheus
metrics and structured log lines.

Both are plain domain.LifecycleHooks, so they can be merged and passed to a
flow with flow.WithLifecycleHooks (or to every session through
session.WithFlowOptions).
*/
package observability

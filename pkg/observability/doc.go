/*
Package observability provides tools for monitoring survey sessions and the response store.

It includes Prometheus collectors for sessions, submissions, store operations and HTTP
requests, plus lifecycle hooks that feed those collectors and a structured logger.
*/
package observability

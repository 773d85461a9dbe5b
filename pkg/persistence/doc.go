/*
Package persistence turns survey outcomes into response-log entries.

A Recorder owns the key scheme, serializes records to JSON, performs exactly one
write per call against an injected ports.ResponseStore, and classifies every failure
into a *domain.Error so callers can decide between a retry prompt and a hard stop.
Store decorators (metrics, PII masking, encryption) live in the middleware subpackage.
*/
package persistence

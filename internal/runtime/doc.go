// Package runtime hosts the survey state machine: navigation over a survey definition,
// the delayed email gate, email submission and the per-step view renderers.
package runtime

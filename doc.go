/*
Package keystone is a lead-generation engine for a construction-industry advisory practice.

A short survey walks a business owner through educational cards and questions, gates the
results behind an email address, and unlocks a personalized "Best Next Steps" report with
an indicative valuation range and peer benchmarks. Survey answers are persisted to a
pluggable response store (memory, Redis, SQLite or Firebase Realtime Database).

# Concept

Each survey session is a small state machine. The host (an HTTP server, a terminal or an
MCP client) sends intents such as answer, skip, next, back and submit_email; the machine
applies them one at a time and renders a View of the current step. The email gate appears
two seconds after the last question, and the report is generated only after the answers
were saved.

# Usage

	package main

	import (
		"context"
		"log"

		"github.com/aretw0/keystone"
		"github.com/aretw0/keystone/pkg/adapters/memory"
	)

	func main() {
		eng, err := keystone.New(memory.NewStore())
		if err != nil {
			log.Fatal(err)
		}
		defer eng.Close()

		ctx := context.Background()
		sess, err := eng.StartSession(ctx)
		if err != nil {
			log.Fatal(err)
		}

		for sess.Advance() {
		}
		if err := sess.SubmitEmail(ctx, "owner@firm.com"); err != nil {
			log.Fatal(err)
		}
		log.Println(sess.View().Report.ValuationRange)
	}

# Architecture

  - pkg/domain: steps, responses, session state, error kinds.
  - pkg/survey: survey definitions (YAML or builder).
  - pkg/report: the pure report generator.
  - pkg/persistence: the Recorder and store middleware.
  - pkg/adapters: response stores, HTTP API and MCP server.
*/
package keystone

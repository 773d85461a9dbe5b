/*
Package domain contains the core domain models for the Keystone survey engine.

It defines the survey steps, the accumulated answers of a session, the record that is
persisted once a survey is completed, and the error taxonomy shared by every adapter.
This package is kept pure and free of external dependencies like I/O or persistence.

# Key Entities

  - Step: A tagged variant (Welcome, Educational, Question, Results) describing one screen.
  - Responses: The question ID to answer mapping accumulated during a session.
  - SessionState: The runtime snapshot owned by a single survey state machine.
  - PersistedRecord: One durable snapshot of a completed survey submission.
  - PeerGroupSignup: The preferences collected by the peer-group signup form.
*/
package domain

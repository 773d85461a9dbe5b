/*
Package ports defines the driven ports (interfaces) for the Keystone engine.

These interfaces decouple the survey flow from external implementations, allowing
completed submissions to be written to various storage backends.

# Key Interfaces

  - ResponseStore: Appends, reads, and deletes response-log entries by key.
  - Pinger: Optional health probe implemented by networked stores.
  - Lister: Optional enumeration of stored keys for administrative tooling.
*/
package ports

// Package queue persists batch jobs and their queue items in SQLite and
// exposes the state transitions the batch manager drives. The store is the
// single source of truth: the manager keeps no authoritative in-memory state.
package queue

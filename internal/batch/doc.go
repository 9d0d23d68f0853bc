// Package batch contains the queue manager: it selects runnable queue items,
// dispatches them to registered processors under a concurrency limit, drives
// the retry/backoff state machine, and aggregates batch-level status.
package batch

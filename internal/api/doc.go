// Package api defines transport-friendly projections of batch jobs and queue
// items, shared by the HTTP API and the CLI.
package api

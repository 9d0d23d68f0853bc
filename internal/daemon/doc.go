// Package daemon ties the queue store, batch manager, and HTTP API into a
// single-instance background service.
package daemon

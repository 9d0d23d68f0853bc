// Package httpapi exposes batch job views and control operations over HTTP.
//
// The server is read/control only: it never runs processors itself, it hands
// control operations to the batch manager. Callers are identified by the
// X-Owner-ID header; authenticating that identity is the job of the fronting
// auth layer, not this package.
package httpapi

// Package processor holds the registry mapping job types to the functions
// that perform the actual work for a single queue item. Processors are
// supplied by the surrounding application (transcription, metadata
// generation); clipbatch only orchestrates them.
package processor

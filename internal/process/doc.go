// Package process holds the asynchronous per-item processing contract the
// collection orchestrator drives, a worker pool that runs processing off the
// host loop, and a reference processor that fingerprints asset files.
//
// A Processor returns as soon as the work is scheduled and later reports
// exactly one Outcome through the done callback, from any goroutine.
package process

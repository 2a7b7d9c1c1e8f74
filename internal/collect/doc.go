// Package collect runs orchestrated catalog collections. A run enumerates the
// items in a scope, hands each one to a processor, waits on a cohort until
// every item has reported, persists the aggregated result and then resolves
// its future.
//
// Enumeration, classification, persistence and resolution happen on the host
// loop. Item completions arrive on processor goroutines and only touch the
// run's mutex-guarded result and its cohort.
package collect

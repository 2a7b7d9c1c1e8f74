// Package cohort implements the completion barrier for a fixed-size group of
// independently finishing sub-tasks. A Cohort is created with the number of
// signals it expects; any goroutine may call Signal, and observers wait on a
// channel that is closed exactly once when the count reaches zero.
//
// Signalling past the target is a coordination bug and panics with an
// *InvariantViolation instead of being absorbed.
package cohort

package collect

import "fmt"
// EnumerationError reports that a run could not list its scope. No item was
// started.
type EnumerationError struct {
	Scope string
	Err   error
}

func (e *EnumerationError) Error() string {
	return fmt.Sprintf("collect: enumerate %s: %v", e.Scope, e.Err)
}

func (e *EnumerationError) Unwrap() error { return e.Err }

// PersistenceError reports that every item finished but the aggregated result
// could not be written.
type PersistenceError struct {
	Dir string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("collect: persist results to %s: %v", e.Dir, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

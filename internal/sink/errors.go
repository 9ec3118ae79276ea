package sink

import (
	"fmt"
	"time"
)

// InvalidTargetError reports a malformed table reference.
type InvalidTargetError struct {
	Target string
	Reason string
}

func (e *InvalidTargetError) Error() string {
	return fmt.Sprintf("sink: invalid target %q: %s", e.Target, e.Reason)
}

// TargetMissingError reports a missing table under CREATE_NEVER.
type TargetMissingError struct {
	Target TableRef
}

func (e *TargetMissingError) Error() string {
	return fmt.Sprintf("sink: target %s does not exist and create disposition is CREATE_NEVER", e.Target)
}

// TargetNotEmptyError reports existing rows under WRITE_EMPTY. Rows is -1
// when the store detected the rows inside its commit.
type TargetNotEmptyError struct {
	Target TableRef
	Rows   int64
}

func (e *TargetNotEmptyError) Error() string {
	if e.Rows < 0 {
		return fmt.Sprintf("sink: target %s is not empty and write disposition is WRITE_EMPTY", e.Target)
	}
	return fmt.Sprintf("sink: target %s has %d rows and write disposition is WRITE_EMPTY", e.Target, e.Rows)
}

// SchemaMismatchError reports that an existing table's schema differs from
// the one supplied for the write.
type SchemaMismatchError struct {
	Target TableRef
	Path   string
	Reason string
}

func (e *SchemaMismatchError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("sink: target %s schema mismatch: %s", e.Target, e.Reason)
	}
	return fmt.Sprintf("sink: target %s schema mismatch at %s: %s", e.Target, e.Path, e.Reason)
}

// TimeoutError reports that a sink operation exceeded the writer timeout.
type TimeoutError struct {
	Target  TableRef
	Op      string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("sink: %s on %s exceeded %s", e.Op, e.Target, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// OpError wraps a backend failure with the operation and target.
type OpError struct {
	Target TableRef
	Op     string
	Err    error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("sink: %s on %s: %v", e.Op, e.Target, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

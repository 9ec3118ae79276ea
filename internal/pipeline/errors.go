package pipeline

import (
	"fmt"
	"strings"
)

// ConfigError reports an incomplete or misused graph. It is always returned
// synchronously by the call that caused it.
type ConfigError struct {
	Graph  string
	Op     string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("pipeline %s: %s: %s", e.Graph, e.Op, e.Reason)
}

func missing(kinds []StageKind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return "missing " + strings.Join(names, ", ") + " stage"
}

// AlreadyExecutedError reports a Run on a graph that has already started.
// Graphs are single-use; build a new one to retry.
type AlreadyExecutedError struct {
	Graph string
	State State
}

func (e *AlreadyExecutedError) Error() string {
	return fmt.Sprintf("pipeline %s: already executed (state %s); build a new graph to run again", e.Graph, e.State)
}

// StageError wraps a failure raised while running a stage.
type StageError struct {
	RunID string
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline run %s: %s: %v", e.RunID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

package pipeline

import "fmt"

// State is the lifecycle position of a Graph.
type State uint8

const (
	Building State = iota
	Built
	Running
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Building:
		return "building"
	case Built:
		return "built"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == Completed || s == Failed }

// StageKind identifies one of the three stage slots.
type StageKind uint8

const (
	SourceStage StageKind = iota
	TransformStage
	SinkStage
)

func (k StageKind) String() string {
	switch k {
	case SourceStage:
		return "source"
	case TransformStage:
		return "transform"
	case SinkStage:
		return "sink"
	}
	return fmt.Sprintf("StageKind(%d)", uint8(k))
}

// Stage describes one bound stage.
type Stage struct {
	Kind StageKind
	Name string
}

func (s Stage) String() string { return s.Kind.String() + ":" + s.Name }

package ir

// Plan represents a calculated execution plan.
type Plan struct {
	Metadata *PlanMetadata     `pkl:"metadata"`
	Changes  []*ResourceChange `pkl:"changes"`
	Summary  *PlanSummary      `pkl:"summary"`
	Outputs  map[string]any    `pkl:"outputs"`
}

type PlanMetadata struct {
	Timestamp string `pkl:"timestamp"`
	GraphHash string `pkl:"graphHash"`
}

type ResourceChange struct {
	Address string         `pkl:"address"`
	Action  string         `pkl:"action"` // "CREATE", "NOOP"
	Desired *Resource      `pkl:"resource"`
	Prior   *ResourceState `pkl:"prior"`
}

type PlanSummary struct {
	Create int `pkl:"create"`
	NoOp   int `pkl:"noop"`
}

const (
	ActionCreate = "CREATE"
	ActionNoOp   = "NOOP"
	ActionDelete = "DELETE"
)

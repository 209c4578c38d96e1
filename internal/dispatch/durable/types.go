package durable

const (
	WorkflowName = "outbox_drain"
	ActivityTick = "outbox_drain_tick"
)

// TickResult reports what one Tick activity execution did, so the
// workflow can decide how long to sleep before the next one.
type TickResult struct {
	Drained int  `json:"drained"`
	Idle    bool `json:"idle"`
}

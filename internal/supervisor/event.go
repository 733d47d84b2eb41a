package supervisor

// EventType identifies a lifecycle change
type EventType int

const (
	EventLaunched EventType = iota
	EventInitialized
	EventReadyTimeout
	EventStopped
	EventExited
)

var eventNames = map[EventType]string{
	EventLaunched:     "launched",
	EventInitialized:  "initialized",
	EventReadyTimeout: "ready-timeout",
	EventStopped:      "stopped",
	EventExited:       "exited",
}

func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return "unknown"
}

// Event reports a lifecycle change of one managed process
type Event struct {
	Type  EventType
	RunID string
	PID   int
	Err   error // exit error for EventExited
}

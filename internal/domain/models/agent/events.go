package agent

// EventType discriminates the events emitted while a turn is processed.
type EventType string

const (
	// EventStatus is a progress notice for one workflow step.
	EventStatus EventType = "status"
	// EventClarification asks the user a question instead of producing a
	// report. Terminal for the turn.
	EventClarification EventType = "clarification"
	// EventResult carries the final report. Terminal for the turn.
	EventResult EventType = "result"
	// EventError reports a transport-level failure. Terminal for the turn.
	EventError EventType = "error"
)

// Event is one item of the turn's output stream. A turn emits zero or more
// status events followed by exactly one terminal event.
type Event struct {
	Type             EventType `json:"type"`
	Message          string    `json:"message,omitempty"`
	Node             string    `json:"node,omitempty"`
	Report           string    `json:"report,omitempty"`
	SQL              string    `json:"sql,omitempty"`
	SuggestedActions []string  `json:"suggested_actions,omitempty"`
	SessionID        string    `json:"session_id,omitempty"`
}

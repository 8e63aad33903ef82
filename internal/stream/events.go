package stream

// EventType identifies a turn-stream event on the wire. The same events are
// carried over SSE and websocket transports.
type EventType string

const (
	// EventReady marks the moment the user's answer is durably persisted and
	// generation is about to start. Clients may render a typing indicator.
	EventReady EventType = "ready"
	// EventDelta carries one incremental text fragment of the next question.
	EventDelta EventType = "delta"
	// EventError reports a mid-stream failure. Any text already delivered
	// remains valid; a done event still follows.
	EventError EventType = "error"
	// EventDone closes the turn. Exactly one is sent per accepted turn.
	EventDone EventType = "done"
)

type ReadyData struct {
	InterviewID string `json:"interview_id"`
	TSMs        int64  `json:"ts_ms"`
}

type DeltaData struct {
	Text string `json:"text"`
}

type ErrorData struct {
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}

type DoneData struct {
	Question string `json:"question"`
	Finished bool   `json:"finished"`
	Length   int    `json:"length"`
}

// Sink delivers events to one connected client. Send returns an error once
// the client is gone; the engine treats that as a disconnect, not a failure
// of the turn.
type Sink interface {
	Send(event EventType, data any) error
}

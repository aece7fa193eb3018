package event

import "time"

// Type names a server-to-subscriber event.
type Type string

const (
	ConnectionStatus      Type = "connection_status"
	SubscriptionConfirmed Type = "subscription_confirmed"
	AnalysisResult        Type = "analysis_result"
	AnalysisComplete      Type = "analysis_complete"
	AutoAnalysis          Type = "auto_analysis"
	DataUpdate            Type = "data_update"
	WorkerStatus          Type = "python_status"
	Pong                  Type = "pong"
	Error                 Type = "error"
)

// Event is the envelope written to subscriber connections.
type Event struct {
	Type      Type      `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// New stamps an event with the current time.
func New(t Type, data any) Event {
	return Event{Type: t, Data: data, Timestamp: time.Now().UTC()}
}

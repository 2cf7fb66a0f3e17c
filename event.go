package mxprobe

import "time"

// Direction tells whether an event was sent or received.
type Direction string

const (
	DirectionSent     Direction = "send"
	DirectionReceived Direction = "recv"
)

// SessionEvent is one transcript unit: the exact bytes of a single write or
// a single read.
type SessionEvent struct {
	Direction Direction
	Timestamp time.Time
	Payload   []byte
}

// Status is the terminal status of a session.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// SessionResult is the outcome of one (target, task) run.
type SessionResult struct {
	ID    string // ULID of the session
	RunID string // ULID shared by every session of a run
	Batch string

	Task       string
	Domain     string
	Hostname   string
	Preference int
	IP         string
	Port       int

	StartTime time.Time
	EndTime   time.Time

	Status Status
	Error  string

	// Events holds every event in the order it happened, including the
	// events captured before a failure.
	Events []SessionEvent
}

// Succeeded reports whether the session ran its whole command sequence.
func (r *SessionResult) Succeeded() bool {
	return r.Status == StatusSuccess
}

// Duration returns the wall-clock length of the session.
func (r *SessionResult) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Sink receives every session result of a run for durable storage.
type Sink interface {
	Record(result *SessionResult) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(result *SessionResult) error

func (f SinkFunc) Record(result *SessionResult) error {
	return f(result)
}

// Package events defines the message schema for synthesis jobs delivered
// over NATS.
package events

import "time"

// EventHeader carries the identifiers shared by every event in a workflow.
type EventHeader struct {
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id"`
	EventID    string    `json:"event_id"`
}

// SynthesisRequestedEvent asks a worker to turn a stored script into audio.
// ScriptKey names the script object in the script bucket; the remaining
// fields mirror the pipeline's GenerationRequest.
type SynthesisRequestedEvent struct {
	Header         EventHeader `json:"header"`
	ScriptKey      string      `json:"script_key"`
	Engine         string      `json:"engine"`
	Voice          string      `json:"voice,omitempty"`
	Model          string      `json:"model,omitempty"`
	Language       string      `json:"language,omitempty"`
	Rate           string      `json:"rate,omitempty"`
	MaxRetries     int         `json:"max_retries"`
	TimeoutSeconds int         `json:"timeout_seconds,omitempty"`
}

// AudioGeneratedEvent reports an accepted synthesis. AudioKey names the
// uploaded audio object in the audio bucket.
type AudioGeneratedEvent struct {
	Header          EventHeader `json:"header"`
	AudioKey        string      `json:"audio_key"`
	Attempts        int         `json:"attempts"`
	DurationSeconds float64     `json:"duration_seconds,omitempty"`
	SizeBytes       int64       `json:"size_bytes"`
	Warnings        []string    `json:"warnings,omitempty"`
}

// SynthesisFailedEvent reports a run that ended exhausted or cancelled.
type SynthesisFailedEvent struct {
	Header   EventHeader `json:"header"`
	Status   string      `json:"status"`
	Attempts int         `json:"attempts"`
	Reason   string      `json:"reason"`
}

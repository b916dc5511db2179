// Package events defines event types for process lifecycle notifications.
package events

import (
	"time"

	"github.com/a-kuz/shader-maker/pkg/models"
)

type EventType string

// Topic is the in-process pub/sub topic carrying all process events.
const Topic = "shadermaker.process.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ProcessStartedEvent   EventType = "process.started"
	ProcessCompletedEvent EventType = "process.completed"
	ProcessFailedEvent    EventType = "process.failed"
	ProcessPausedEvent    EventType = "process.paused"
	ProcessResumedEvent   EventType = "process.resumed"
	ProcessStoppedEvent   EventType = "process.stopped"

	StepStartedEvent   EventType = "step.started"
	StepCompletedEvent EventType = "step.completed"
	StepFailedEvent    EventType = "step.failed"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	ProcessID string    `json:"process_id"`
}

type ProcessStarted struct {
	BaseEvent

	Prompt string               `json:"prompt"`
	Config models.ProcessConfig `json:"config"`
}

func (e ProcessStarted) GetType() EventType {
	return ProcessStartedEvent
}

type ProcessCompleted struct {
	BaseEvent

	Result *models.ProcessResult `json:"result,omitempty"`
}

func (e ProcessCompleted) GetType() EventType {
	return ProcessCompletedEvent
}

type ProcessFailed struct {
	BaseEvent

	Error string `json:"error"`
}

func (e ProcessFailed) GetType() EventType {
	return ProcessFailedEvent
}

type ProcessPaused struct {
	BaseEvent
}

func (e ProcessPaused) GetType() EventType {
	return ProcessPausedEvent
}

type ProcessResumed struct {
	BaseEvent

	Status models.ProcessStatus `json:"status"`
}

func (e ProcessResumed) GetType() EventType {
	return ProcessResumedEvent
}

type ProcessStopped struct {
	BaseEvent
}

func (e ProcessStopped) GetType() EventType {
	return ProcessStoppedEvent
}

type StepStarted struct {
	BaseEvent

	StepID string          `json:"step_id"`
	Kind   models.StepKind `json:"kind"`
}

func (e StepStarted) GetType() EventType {
	return StepStartedEvent
}

type StepCompleted struct {
	BaseEvent

	StepID   string          `json:"step_id"`
	Kind     models.StepKind `json:"kind"`
	Duration time.Duration   `json:"duration"`
}

func (e StepCompleted) GetType() EventType {
	return StepCompletedEvent
}

type StepFailed struct {
	BaseEvent

	StepID string          `json:"step_id"`
	Kind   models.StepKind `json:"kind"`
	Error  string          `json:"error"`
}

func (e StepFailed) GetType() EventType {
	return StepFailedEvent
}

package models

import "time"

// Update is an append-only notification event mirroring a process state
// change. Polling consumers read them with "events after timestamp T";
// individual updates are never mutated or deleted, they only disappear
// when their process is deleted.
type Update struct {
	ID        string         `json:"id"`
	ProcessID string         `json:"process_id"`
	Status    ProcessStatus  `json:"status"`
	Step      *StepKind      `json:"step,omitempty"`
	Message   string         `json:"message"`
	Progress  int            `json:"progress"` // 0-100
	StepID    string         `json:"step_id,omitempty"`
	Result    *ProcessResult `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

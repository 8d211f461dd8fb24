package models

import "time"

// TaskState is a generation task's lifecycle state
type TaskState string

const (
	TaskPending    TaskState = "pending"
	TaskProcessing TaskState = "processing"
	TaskCompleted  TaskState = "completed"
	TaskFailed     TaskState = "failed"
)

// GenerationTask is one asynchronous image-generation execution. Tasks are
// ephemeral — they live in the task registry only and reference their slide
// by id (a task outliving its slide fails harmlessly).
type GenerationTask struct {
	ID        string    `json:"task_id"`
	Slug      string    `json:"slug"`
	Sid       string    `json:"sid"`
	State     TaskState `json:"state"`
	Force     bool      `json:"force"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

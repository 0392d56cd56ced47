package model

import "time"

// TaskStatus はタスクの進捗状態を表す。
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in-progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusOverdue    TaskStatus = "overdue"
)

// Valid はステータスが定義済みの値かを返す。
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusOverdue:
		return true
	}
	return false
}

// Priority はタスクの優先度を表す。
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid は優先度が定義済みの値かを返す。
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task はタスクを表す。
// Description、DueDate、CompletedDate、AssignedToは未設定を許容する。
type Task struct {
	ID            int64
	Name          string
	Description   *string
	Status        TaskStatus
	DueDate       *time.Time
	CompletedDate *time.Time
	AssignedTo    *string
	Priority      Priority
	CreationTime  time.Time
}

// MarkCompletedAt はステータスがcompletedで完了日時が未設定の場合に完了日時を記録する。
func (t *Task) MarkCompletedAt(now time.Time) {
	if t.Status == TaskStatusCompleted && t.CompletedDate == nil {
		completed := now
		t.CompletedDate = &completed
	}
}

package model

// EventKind はライブストリームで配信するイベントの種別。
type EventKind string

const (
	EventTaskCreated EventKind = "task_created"
	EventTaskUpdated EventKind = "task_updated"
	EventTaskDeleted EventKind = "task_deleted"
)

// Event はメールボックスに積まれる1件の通知。生成後は変更しない。
type Event struct {
	ID      string
	Kind    EventKind
	Message string
}

// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// クライアントに返す原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, task, notification, system
	Action   string // クライアント向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeUsernameTaken      = "USERNAME_TAKEN"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeTaskNotFound       = "TASK_NOT_FOUND"
	ErrCodeInvalidStatus      = "INVALID_STATUS"
	ErrCodeInvalidPriority    = "INVALID_PRIORITY"
	ErrCodeNoDueDate          = "NO_DUE_DATE"
	ErrCodeNoTasks            = "NO_TASKS"
	ErrCodeSweepFailed        = "SWEEP_FAILED"
)

// NewUnauthorizedError は認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "有効なアクセストークンを指定してください。",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid credentials",
		Category: "auth",
		Action:   "ユーザー名とパスワードを確認してください。",
	}
}

// NewUsernameTakenError はユーザー名重複エラーを生成する。
func NewUsernameTakenError(username string) *APIError {
	return &APIError{
		Code:     ErrCodeUsernameTaken,
		Message:  fmt.Sprintf("Username already taken: %s", username),
		Category: "auth",
		Action:   "別のユーザー名を指定してください。",
	}
}

// NewInvalidRequestError はリクエスト不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエストの内容を確認してください。",
	}
}

// NewTaskNotFoundError はタスク未検出エラーを生成する。
func NewTaskNotFoundError(taskID int64) *APIError {
	return &APIError{
		Code:     ErrCodeTaskNotFound,
		Message:  fmt.Sprintf("Task not found: %d", taskID),
		Category: "task",
		Action:   "タスクIDを確認してください。",
	}
}

// NewInvalidStatusError は無効なステータスエラーを生成する。
func NewInvalidStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("Invalid status value: %s", status),
		Category: "validation",
		Action:   "ステータスには pending、in-progress、completed、overdue のいずれかを指定してください。",
	}
}

// NewInvalidPriorityError は無効な優先度エラーを生成する。
func NewInvalidPriorityError(priority string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPriority,
		Message:  fmt.Sprintf("Invalid priority value: %s", priority),
		Category: "validation",
		Action:   "優先度には low、medium、high のいずれかを指定してください。",
	}
}

// NewNoDueDateError は期限未設定のタスクにリマインダーを設定しようとした場合のエラーを生成する。
func NewNoDueDateError(taskID int64) *APIError {
	return &APIError{
		Code:     ErrCodeNoDueDate,
		Message:  fmt.Sprintf("Task has no due date: %d", taskID),
		Category: "task",
		Action:   "先にタスクの期限を設定してください。",
	}
}

// NewNoTasksError はタスクが1件も存在しない場合のエラーを生成する。
func NewNoTasksError() *APIError {
	return &APIError{
		Code:     ErrCodeNoTasks,
		Message:  "No tasks found",
		Category: "task",
		Action:   "タスクを登録してから再度お試しください。",
	}
}

// NewSweepFailedError は手動通知トリガーの失敗エラーを生成する。
// 詳細はreasonに含める。
func NewSweepFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeSweepFailed,
		Message:  fmt.Sprintf("期限間近タスクの通知に失敗しました: %s", reason),
		Category: "notification",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

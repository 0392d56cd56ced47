package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/taskman/internal/middleware"
	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/task"
)

// TaskServiceInterface はタスクハンドラーが必要とするサービスインターフェース。
// 変更系の操作はrecipientのメールボックスへ通知を投入する。
type TaskServiceInterface interface {
	Create(ctx context.Context, recipient string, in task.CreateInput) (*model.Task, error)
	List(ctx context.Context) ([]*model.Task, error)
	Get(ctx context.Context, id int64) (*model.Task, error)
	Update(ctx context.Context, recipient string, id int64, in task.UpdateInput) (*model.Task, error)
	UpdateStatus(ctx context.Context, recipient string, id int64, status model.TaskStatus) (*model.Task, error)
	UpdateDueDate(ctx context.Context, recipient string, id int64, due time.Time) (*model.Task, error)
	Delete(ctx context.Context, recipient string, id int64) error
	ScheduleReminder(ctx context.Context, id int64) (time.Time, error)
}

// TaskHandler はタスク管理のHTTPハンドラー。
type TaskHandler struct {
	service TaskServiceInterface
}

// NewTaskHandler はTaskHandlerを生成する。
func NewTaskHandler(service TaskServiceInterface) *TaskHandler {
	return &TaskHandler{service: service}
}

// createTaskRequest はタスク作成リクエストのボディ。
type createTaskRequest struct {
	Name        string     `json:"name" validate:"required,max=255"`
	Description *string    `json:"description"`
	DueDate     *time.Time `json:"due_date"`
	AssignedTo  *string    `json:"assigned_to" validate:"omitempty,max=255"`
	Priority    string     `json:"priority" validate:"omitempty,oneof=low medium high"`
}

// updateTaskRequest はタスク部分更新リクエストのボディ。省略したフィールドは変更しない。
type updateTaskRequest struct {
	Name        *string    `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string    `json:"description"`
	Status      *string    `json:"status"`
	DueDate     *time.Time `json:"due_date"`
	AssignedTo  *string    `json:"assigned_to" validate:"omitempty,max=255"`
	Priority    *string    `json:"priority" validate:"omitempty,oneof=low medium high"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type updateDueDateRequest struct {
	DueDate *time.Time `json:"due_date" validate:"required"`
}

// taskResponse はタスクのAPIレスポンス。
type taskResponse struct {
	TaskID        int64      `json:"task_id"`
	Name          string     `json:"name"`
	Description   *string    `json:"description"`
	Status        string     `json:"status"`
	DueDate       *time.Time `json:"due_date"`
	CompletedDate *time.Time `json:"completed_date"`
	AssignedTo    *string    `json:"assigned_to"`
	Priority      string     `json:"priority"`
	CreationTime  time.Time  `json:"creation_time"`
}

// reminderResponse はリマインダー設定のレスポンス。
type reminderResponse struct {
	Detail   string    `json:"detail"`
	RemindAt time.Time `json:"remind_at"`
}

// Create はタスクを作成する。
// POST /tasks?recipient=<identity>
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	recipient, ok := recipientFrom(w, r)
	if !ok {
		return
	}

	var req createTaskRequest
	if apiErr := decodeAndValidate(r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	t, err := h.service.Create(r.Context(), recipient, task.CreateInput{
		Name:        req.Name,
		Description: req.Description,
		DueDate:     req.DueDate,
		AssignedTo:  req.AssignedTo,
		Priority:    model.Priority(req.Priority),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTaskResponse(t))
}

// List は全タスクを返す。
// GET /tasks
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		resp = append(resp, toTaskResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get はタスクを1件返す。
// GET /tasks/{id}
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := taskIDFrom(w, r)
	if !ok {
		return
	}

	t, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTaskResponse(t))
}

// Update はタスクを部分更新する。
// PUT /tasks/{id}?recipient=<identity>
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := taskIDFrom(w, r)
	if !ok {
		return
	}
	recipient, ok := recipientFrom(w, r)
	if !ok {
		return
	}

	var req updateTaskRequest
	if apiErr := decodeAndValidate(r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	in := task.UpdateInput{
		Name:        req.Name,
		Description: req.Description,
		DueDate:     req.DueDate,
		AssignedTo:  req.AssignedTo,
	}
	if req.Status != nil {
		status := model.TaskStatus(*req.Status)
		in.Status = &status
	}
	if req.Priority != nil {
		priority := model.Priority(*req.Priority)
		in.Priority = &priority
	}

	t, err := h.service.Update(r.Context(), recipient, id, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTaskResponse(t))
}

// UpdateStatus はステータスを更新する。
// PUT /tasks/{id}/status?recipient=<identity>
func (h *TaskHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := taskIDFrom(w, r)
	if !ok {
		return
	}
	recipient, ok := recipientFrom(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if apiErr := decodeAndValidate(r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	t, err := h.service.UpdateStatus(r.Context(), recipient, id, model.TaskStatus(req.Status))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTaskResponse(t))
}

// UpdateDueDate は期限を更新する。
// PUT /tasks/{id}/due_date?recipient=<identity>
func (h *TaskHandler) UpdateDueDate(w http.ResponseWriter, r *http.Request) {
	id, ok := taskIDFrom(w, r)
	if !ok {
		return
	}
	recipient, ok := recipientFrom(w, r)
	if !ok {
		return
	}

	var req updateDueDateRequest
	if apiErr := decodeAndValidate(r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	t, err := h.service.UpdateDueDate(r.Context(), recipient, id, *req.DueDate)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTaskResponse(t))
}

// Delete はタスクを削除する。
// DELETE /tasks/{id}?recipient=<identity>
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := taskIDFrom(w, r)
	if !ok {
		return
	}
	recipient, ok := recipientFrom(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), recipient, id); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, detailResponse{Detail: "Task deleted successfully"})
}

// ScheduleReminder は期限の1時間前にリマインダーを設定する。
// POST /tasks/{id}/schedule
func (h *TaskHandler) ScheduleReminder(w http.ResponseWriter, r *http.Request) {
	id, ok := taskIDFrom(w, r)
	if !ok {
		return
	}

	remindAt, err := h.service.ScheduleReminder(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reminderResponse{Detail: "Reminder scheduled", RemindAt: remindAt})
}

// --- ヘルパー関数 ---

// taskIDFrom はURLパスのタスクIDを取り出す。不正な場合は400を書き込んでfalseを返す。
func taskIDFrom(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("タスクIDが不正です"))
		return 0, false
	}
	return id, true
}

// recipientFrom は通知先のIdentityを返す。
// recipientクエリが省略された場合は呼び出し元自身になる。
func recipientFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	if recipient := r.URL.Query().Get("recipient"); recipient != "" {
		return recipient, true
	}
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return identity, true
}

// toTaskResponse はmodel.TaskからAPIレスポンスに変換する。
func toTaskResponse(t *model.Task) taskResponse {
	return taskResponse{
		TaskID:        t.ID,
		Name:          t.Name,
		Description:   t.Description,
		Status:        string(t.Status),
		DueDate:       t.DueDate,
		CompletedDate: t.CompletedDate,
		AssignedTo:    t.AssignedTo,
		Priority:      string(t.Priority),
		CreationTime:  t.CreationTime,
	}
}

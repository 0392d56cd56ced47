// Package task はタスク管理のドメインロジックを提供する。
// 変更系の操作は永続化のコミット後にライブ通知を1件投入する。
package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
)

// reminderLead はリマインダーを期限の何時間前に設定するか。
const reminderLead = time.Hour

// 通知メッセージ
const (
	msgCreated = "New Task successfully created"
	msgUpdated = "Task %d successfully updated"
	msgDeleted = "Task %d successfully deleted"
)

// EventPublisher はタスク変更イベントの投入先。エラーは返さない。
type EventPublisher interface {
	Publish(identity string, kind model.EventKind, message string)
}

// CreateInput はタスク作成の入力。Priorityが空の場合はmediumになる。
type CreateInput struct {
	Name        string
	Description *string
	DueDate     *time.Time
	AssignedTo  *string
	Priority    model.Priority
}

// UpdateInput はタスクの部分更新の入力。nilのフィールドは変更しない。
type UpdateInput struct {
	Name        *string
	Description *string
	Status      *model.TaskStatus
	DueDate     *time.Time
	AssignedTo  *string
	Priority    *model.Priority
}

// Service はタスク管理のサービス層。
type Service struct {
	repo      repository.TaskRepository
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.TaskRepository, publisher EventPublisher, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Create はタスクを作成し、recipientへtask_createdを通知する。
func (s *Service) Create(ctx context.Context, recipient string, in CreateInput) (*model.Task, error) {
	priority := in.Priority
	if priority == "" {
		priority = model.PriorityMedium
	}
	if !priority.Valid() {
		return nil, model.NewInvalidPriorityError(string(priority))
	}

	t := &model.Task{
		Name:        in.Name,
		Description: in.Description,
		Status:      model.TaskStatusPending,
		DueDate:     in.DueDate,
		AssignedTo:  in.AssignedTo,
		Priority:    priority,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("タスクの作成に失敗しました: %w", err)
	}

	s.publisher.Publish(recipient, model.EventTaskCreated, msgCreated)
	return t, nil
}

// List は全タスクを返す。
func (s *Service) List(ctx context.Context) ([]*model.Task, error) {
	tasks, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("タスク一覧の取得に失敗しました: %w", err)
	}
	if tasks == nil {
		tasks = []*model.Task{}
	}
	return tasks, nil
}

// Get は指定IDのタスクを返す。存在しない場合はTASK_NOT_FOUNDを返す。
func (s *Service) Get(ctx context.Context, id int64) (*model.Task, error) {
	t, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}
	if t == nil {
		return nil, model.NewTaskNotFoundError(id)
	}
	return t, nil
}

// Update は指定されたフィールドだけを更新し、recipientへtask_updatedを通知する。
func (s *Service) Update(ctx context.Context, recipient string, id int64, in UpdateInput) (*model.Task, error) {
	return s.mutate(ctx, recipient, id, func(t *model.Task) error {
		if in.Name != nil {
			t.Name = *in.Name
		}
		if in.Description != nil {
			t.Description = in.Description
		}
		if in.Status != nil {
			if !in.Status.Valid() {
				return model.NewInvalidStatusError(string(*in.Status))
			}
			t.Status = *in.Status
		}
		if in.DueDate != nil {
			t.DueDate = in.DueDate
		}
		if in.AssignedTo != nil {
			t.AssignedTo = in.AssignedTo
		}
		if in.Priority != nil {
			if !in.Priority.Valid() {
				return model.NewInvalidPriorityError(string(*in.Priority))
			}
			t.Priority = *in.Priority
		}
		return nil
	})
}

// UpdateStatus はステータスを更新する。
func (s *Service) UpdateStatus(ctx context.Context, recipient string, id int64, status model.TaskStatus) (*model.Task, error) {
	if !status.Valid() {
		return nil, model.NewInvalidStatusError(string(status))
	}
	return s.mutate(ctx, recipient, id, func(t *model.Task) error {
		t.Status = status
		return nil
	})
}

// UpdateDueDate は期限を更新する。
func (s *Service) UpdateDueDate(ctx context.Context, recipient string, id int64, due time.Time) (*model.Task, error) {
	return s.mutate(ctx, recipient, id, func(t *model.Task) error {
		t.DueDate = &due
		return nil
	})
}

// mutate は読み込み・変更・保存を行い、保存に成功した場合だけ通知する。
func (s *Service) mutate(ctx context.Context, recipient string, id int64, apply func(t *model.Task) error) (*model.Task, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := apply(t); err != nil {
		return nil, err
	}
	t.MarkCompletedAt(s.now().UTC())

	found, err := s.repo.Update(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("タスクの更新に失敗しました: %w", err)
	}
	if !found {
		return nil, model.NewTaskNotFoundError(id)
	}

	s.publisher.Publish(recipient, model.EventTaskUpdated, fmt.Sprintf(msgUpdated, id))
	return t, nil
}

// Delete はタスクを削除し、recipientへtask_deletedを通知する。
func (s *Service) Delete(ctx context.Context, recipient string, id int64) error {
	found, err := s.repo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("タスクの削除に失敗しました: %w", err)
	}
	if !found {
		return model.NewTaskNotFoundError(id)
	}

	s.publisher.Publish(recipient, model.EventTaskDeleted, fmt.Sprintf(msgDeleted, id))
	return nil
}

// ScheduleReminder は期限の1時間前をリマインダー時刻として記録し、その時刻を返す。
// 期限未設定のタスクにはNO_DUE_DATEを返す。
func (s *Service) ScheduleReminder(ctx context.Context, id int64) (time.Time, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	if t.DueDate == nil {
		return time.Time{}, model.NewNoDueDateError(id)
	}

	remindAt := t.DueDate.Add(-reminderLead)
	s.logger.Info("リマインダーを設定しました",
		slog.Int64("task_id", id),
		slog.String("task_name", t.Name),
		slog.Time("remind_at", remindAt),
	)
	return remindAt, nil
}

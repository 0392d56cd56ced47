// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/taskman/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// Create はユーザーを作成し、採番されたIDをuser.IDに設定する。
	// ユーザー名が重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error
}

// TaskRepository はタスクデータの永続化インターフェース。
type TaskRepository interface {
	// Create はタスクを作成し、採番されたIDと作成日時をtaskに設定する。
	Create(ctx context.Context, task *model.Task) error

	// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Task, error)

	// List は全タスクをtask_id順に返す。
	List(ctx context.Context) ([]*model.Task, error)

	// Update はタスクの全フィールドを更新する。見つからない場合はfalseを返す。
	Update(ctx context.Context, task *model.Task) (bool, error)

	// Delete は指定IDのタスクを削除する。見つからない場合はfalseを返す。
	Delete(ctx context.Context, id int64) (bool, error)

	// ListDueBy は期限がcutoff以前かつステータスがexcludeStatus以外のタスクを
	// 期限の早い順に返す。期限未設定のタスクは含まない。
	ListDueBy(ctx context.Context, cutoff time.Time, excludeStatus model.TaskStatus) ([]*model.Task, error)
}

// SubscriberRepository はTelegram購読者の永続化インターフェース。
type SubscriberRepository interface {
	// List は全購読者を登録順に返す。
	List(ctx context.Context) ([]*model.Subscriber, error)

	// FindByChatID はチャットIDで購読者を検索する。見つからない場合はnilを返す。
	FindByChatID(ctx context.Context, chatID string) (*model.Subscriber, error)

	// Create は購読者を登録する。チャットIDが重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, sub *model.Subscriber) error

	// DeleteByChatID はチャットIDの購読者を削除する。削除した場合はtrueを返す。
	DeleteByChatID(ctx context.Context, chatID string) (bool, error)
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/taskman/internal/model"
)

// taskColumns はタスク取得時のカラム並び。scanTaskと一致させること。
const taskColumns = `task_id, name, description, status, due_date, completed_date,
	assigned_to, priority, creation_time`

// PostgresTaskRepo はPostgreSQLを使用したタスクリポジトリ。
type PostgresTaskRepo struct {
	db *sql.DB
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db *sql.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

// Create はタスクを作成し、採番されたIDと作成日時を設定する。
func (r *PostgresTaskRepo) Create(ctx context.Context, task *model.Task) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO tasks (name, description, status, due_date, completed_date, assigned_to, priority)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING task_id, creation_time`,
		task.Name, task.Description, string(task.Status), task.DueDate, task.CompletedDate,
		task.AssignedTo, string(task.Priority),
	).Scan(&task.ID, &task.CreationTime)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
func (r *PostgresTaskRepo) FindByID(ctx context.Context, id int64) (*model.Task, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE task_id = $1`,
		id,
	)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find task by ID: %w", err)
	}
	return task, nil
}

// List は全タスクをtask_id順に返す。
func (r *PostgresTaskRepo) List(ctx context.Context) ([]*model.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks ORDER BY task_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return collectTasks(rows)
}

// Update はタスクの全フィールドを更新する。
func (r *PostgresTaskRepo) Update(ctx context.Context, task *model.Task) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tasks
		 SET name = $2, description = $3, status = $4, due_date = $5,
		     completed_date = $6, assigned_to = $7, priority = $8
		 WHERE task_id = $1`,
		task.ID, task.Name, task.Description, string(task.Status), task.DueDate,
		task.CompletedDate, task.AssignedTo, string(task.Priority),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update task: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// Delete は指定IDのタスクを削除する。
func (r *PostgresTaskRepo) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE task_id = $1`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete task: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// ListDueBy は期限がcutoff以前かつ指定ステータス以外のタスクを返す。
// due_dateがNULLのタスクは比較が成立しないため含まれない。
func (r *PostgresTaskRepo) ListDueBy(ctx context.Context, cutoff time.Time, excludeStatus model.TaskStatus) ([]*model.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+taskColumns+`
		 FROM tasks
		 WHERE due_date <= $1 AND status <> $2
		 ORDER BY due_date, task_id`,
		cutoff, string(excludeStatus),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list due tasks: %w", err)
	}
	return collectTasks(rows)
}

func collectTasks(rows *sql.Rows) ([]*model.Task, error) {
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}
	return tasks, nil
}

func scanTask(s rowScanner) (*model.Task, error) {
	var (
		task          model.Task
		description   sql.NullString
		status        string
		dueDate       sql.NullTime
		completedDate sql.NullTime
		assignedTo    sql.NullString
		priority      string
	)
	if err := s.Scan(
		&task.ID, &task.Name, &description, &status, &dueDate, &completedDate,
		&assignedTo, &priority, &task.CreationTime,
	); err != nil {
		return nil, err
	}

	task.Status = model.TaskStatus(status)
	task.Priority = model.Priority(priority)
	if description.Valid {
		task.Description = &description.String
	}
	if dueDate.Valid {
		task.DueDate = &dueDate.Time
	}
	if completedDate.Valid {
		task.CompletedDate = &completedDate.Time
	}
	if assignedTo.Valid {
		task.AssignedTo = &assignedTo.String
	}
	return &task, nil
}

// compile-time interface check
var _ TaskRepository = (*PostgresTaskRepo)(nil)

// Package analytics はタスクの集計・エクスポート・データ整形を提供する。
package analytics

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
)

const (
	csvTimeLayout = "2006-01-02 15:04:05"
	dayLayout     = "2006-01-02"
)

// csvHeader はCSVエクスポートの列。
var csvHeader = []string{
	"task_id", "name", "description", "due_date", "completed_date", "status", "assigned_to", "priority",
}

// Normalizer はタスクのステータスを完了日時から再計算する。
type Normalizer interface {
	Run(ctx context.Context) (int64, error)
}

// OverdueSummary は期限超過の集計結果。
type OverdueSummary struct {
	CompletedCount int `json:"completed_count"`
	OverdueTasks   int `json:"overdue_tasks"`
	TotalTasks     int `json:"total_tasks"`
}

// DayCount は日ごとの完了件数。
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// PriorityShare は優先度ごとの件数と割合（%）。
type PriorityShare struct {
	Priority string  `json:"priority"`
	Count    int     `json:"count"`
	Percent  float64 `json:"percent"`
}

// CompletionPoint は完了日時と期限の差（日）を優先度と組にしたもの。
type CompletionPoint struct {
	TaskID         int64  `json:"task_id"`
	Priority       string `json:"priority"`
	DaysToComplete int    `json:"days_to_complete"`
}

// Service は集計処理のサービス層。
type Service struct {
	repo       repository.TaskRepository
	normalizer Normalizer
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.TaskRepository, normalizer Normalizer) *Service {
	return &Service{repo: repo, normalizer: normalizer}
}

// Overdue は完了日時が期限を過ぎたタスクの件数を集計する。
func (s *Service) Overdue(ctx context.Context) (*OverdueSummary, error) {
	tasks, err := s.list(ctx)
	if err != nil {
		return nil, err
	}

	summary := &OverdueSummary{TotalTasks: len(tasks)}
	for _, t := range tasks {
		if t.Status == model.TaskStatusCompleted {
			summary.CompletedCount++
		}
		if t.DueDate != nil && t.CompletedDate != nil && t.CompletedDate.After(*t.DueDate) {
			summary.OverdueTasks++
		}
	}
	return summary, nil
}

// AverageCompletionDays は作成から完了までの日数（切り捨て）の平均を返す。
// 完了済みのタスクがない場合はnilを返す。
func (s *Service) AverageCompletionDays(ctx context.Context) (*float64, error) {
	tasks, err := s.list(ctx)
	if err != nil {
		return nil, err
	}

	var sum, n int
	for _, t := range tasks {
		if t.CompletedDate == nil || t.CreationTime.IsZero() {
			continue
		}
		sum += wholeDays(t.CompletedDate.Sub(t.CreationTime))
		n++
	}
	if n == 0 {
		return nil, nil
	}
	avg := float64(sum) / float64(n)
	return &avg, nil
}

// ExportCSV は全タスクをtask_id順のCSVとして返す。タスクがない場合はNO_TASKSを返す。
func (s *Service) ExportCSV(ctx context.Context) ([]byte, error) {
	tasks, err := s.list(ctx)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, model.NewNoTasksError()
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, t := range tasks {
		record := []string{
			strconv.FormatInt(t.ID, 10),
			t.Name,
			deref(t.Description),
			formatTime(t.DueDate),
			formatTime(t.CompletedDate),
			string(t.Status),
			deref(t.AssignedTo),
			string(t.Priority),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write csv record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// Clean はステータスを完了日時から再計算し、更新件数を返す。
// タスクがない場合はNO_TASKSを返す。
func (s *Service) Clean(ctx context.Context) (int64, error) {
	tasks, err := s.list(ctx)
	if err != nil {
		return 0, err
	}
	if len(tasks) == 0 {
		return 0, model.NewNoTasksError()
	}
	return s.normalizer.Run(ctx)
}

// CompletedPerDay は完了日ごとの件数を日付順に返す。
func (s *Service) CompletedPerDay(ctx context.Context) ([]DayCount, error) {
	tasks, err := s.list(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, t := range tasks {
		if t.CompletedDate == nil {
			continue
		}
		counts[t.CompletedDate.Format(dayLayout)]++
	}

	days := make([]DayCount, 0, len(counts))
	for d, c := range counts {
		days = append(days, DayCount{Date: d, Count: c})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days, nil
}

// PriorityDistribution は優先度ごとの件数と割合を件数の多い順に返す。
func (s *Service) PriorityDistribution(ctx context.Context) ([]PriorityShare, error) {
	tasks, err := s.list(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, t := range tasks {
		counts[string(t.Priority)]++
	}

	shares := make([]PriorityShare, 0, len(counts))
	for p, c := range counts {
		shares = append(shares, PriorityShare{
			Priority: p,
			Count:    c,
			Percent:  math.Round(float64(c)/float64(len(tasks))*1000) / 10,
		})
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].Count != shares[j].Count {
			return shares[i].Count > shares[j].Count
		}
		return shares[i].Priority < shares[j].Priority
	})
	return shares, nil
}

// TimeVsPriority は完了済みかつ期限のあるタスクについて、期限から完了までの日数を返す。
// 期限より前に完了した場合は負の値になる。
func (s *Service) TimeVsPriority(ctx context.Context) ([]CompletionPoint, error) {
	tasks, err := s.list(ctx)
	if err != nil {
		return nil, err
	}

	points := make([]CompletionPoint, 0, len(tasks))
	for _, t := range tasks {
		if t.CompletedDate == nil || t.DueDate == nil {
			continue
		}
		points = append(points, CompletionPoint{
			TaskID:         t.ID,
			Priority:       string(t.Priority),
			DaysToComplete: wholeDays(t.CompletedDate.Sub(*t.DueDate)),
		})
	}
	return points, nil
}

func (s *Service) list(ctx context.Context) ([]*model.Task, error) {
	tasks, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("タスク一覧の取得に失敗しました: %w", err)
	}
	return tasks, nil
}

// wholeDays は期間を日数に切り捨てる。負の期間は小さい方へ丸める。
func wholeDays(d time.Duration) int {
	return int(math.Floor(d.Hours() / 24))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(csvTimeLayout)
}

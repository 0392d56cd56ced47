package analytics

import (
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/taskman/internal/model"
)

// mockTaskRepo はList以外を使わないTaskRepositoryのモック。
type mockTaskRepo struct {
	tasks   []*model.Task
	listErr error
}

func (m *mockTaskRepo) Create(ctx context.Context, task *model.Task) error { return nil }
func (m *mockTaskRepo) FindByID(ctx context.Context, id int64) (*model.Task, error) {
	return nil, nil
}
func (m *mockTaskRepo) List(ctx context.Context) ([]*model.Task, error) {
	return m.tasks, m.listErr
}
func (m *mockTaskRepo) Update(ctx context.Context, task *model.Task) (bool, error) {
	return false, nil
}
func (m *mockTaskRepo) Delete(ctx context.Context, id int64) (bool, error) { return false, nil }
func (m *mockTaskRepo) ListDueBy(ctx context.Context, cutoff time.Time, excludeStatus model.TaskStatus) ([]*model.Task, error) {
	return nil, nil
}

type mockNormalizer struct {
	called  bool
	updated int64
	err     error
}

func (m *mockNormalizer) Run(ctx context.Context) (int64, error) {
	m.called = true
	return m.updated, m.err
}

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func timePtr(t time.Time) *time.Time { return &t }
func strPtr(s string) *string { return &s }

func sampleTasks() []*model.Task {
	return []*model.Task{
		{
			// 期限内に完了（作成から2日）
			ID: 2, Name: "write report", Status: model.TaskStatusCompleted, Priority: model.PriorityHigh,
			CreationTime:  base,
			DueDate:       timePtr(base.Add(72 * time.Hour)),
			CompletedDate: timePtr(base.Add(50 * time.Hour)),
		},
		{
			// 期限超過で完了（作成から4日）
			ID: 1, Name: "deploy", Status: model.TaskStatusCompleted, Priority: model.PriorityHigh,
			Description:   strPtr("prod, then staging"),
			AssignedTo:    strPtr("bob"),
			CreationTime:  base,
			DueDate:       timePtr(base.Add(24 * time.Hour)),
			CompletedDate: timePtr(base.Add(100 * time.Hour)),
		},
		{
			ID: 3, Name: "plan", Status: model.TaskStatusPending, Priority: model.PriorityLow,
			CreationTime: base,
		},
	}
}

func TestOverdue_CountsCompletedAfterDueDate(t *testing.T) {
	svc := NewService(&mockTaskRepo{tasks: sampleTasks()}, &mockNormalizer{})

	got, err := svc.Overdue(context.Background())
	if err != nil {
		t.Fatalf("Overdue() error = %v", err)
	}
	want := OverdueSummary{CompletedCount: 2, OverdueTasks: 1, TotalTasks: 3}
	if *got != want {
		t.Errorf("Overdue() = %+v, want %+v", *got, want)
	}
}

func TestOverdue_RepositoryError(t *testing.T) {
	svc := NewService(&mockTaskRepo{listErr: errors.New("db down")}, &mockNormalizer{})
	if _, err := svc.Overdue(context.Background()); err == nil {
		t.Fatal("リポジトリのエラーが返されなかった")
	}
}

func TestAverageCompletionDays_FloorsEachTask(t *testing.T) {
	svc := NewService(&mockTaskRepo{tasks: sampleTasks()}, &mockNormalizer{})

	got, err := svc.AverageCompletionDays(context.Background())
	if err != nil {
		t.Fatalf("AverageCompletionDays() error = %v", err)
	}
	// 50時間→2日、100時間→4日
	if got == nil || *got != 3 {
		t.Errorf("AverageCompletionDays() = %v, want 3", got)
	}
}

func TestAverageCompletionDays_NilWhenNothingCompleted(t *testing.T) {
	svc := NewService(&mockTaskRepo{tasks: []*model.Task{{ID: 1, CreationTime: base}}}, &mockNormalizer{})

	got, err := svc.AverageCompletionDays(context.Background())
	if err != nil {
		t.Fatalf("AverageCompletionDays() error = %v", err)
	}
	if got != nil {
		t.Errorf("AverageCompletionDays() = %v, want nil", *got)
	}
}

func TestExportCSV_OrderedByIDWithHeader(t *testing.T) {
	svc := NewService(&mockTaskRepo{tasks: sampleTasks()}, &mockNormalizer{})

	out, err := svc.ExportCSV(context.Background())
	if err != nil {
		t.Fatalf("ExportCSV() error = %v", err)
	}

	records, err := csv.NewReader(strings.NewReader(string(out))).ReadAll()
	if err != nil {
		t.Fatalf("CSVとして読み込めない: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("行数 = %d, want 4", len(records))
	}
	if got := strings.Join(records[0], ","); got != "task_id,name,description,due_date,completed_date,status,assigned_to,priority" {
		t.Errorf("ヘッダー = %q", got)
	}

	first := records[1]
	want := []string{"1", "deploy", "prod, then staging", "2024-03-02 09:00:00", "2024-03-05 13:00:00", "completed", "bob", "high"}
	for i := range want {
		if first[i] != want[i] {
			t.Errorf("1行目[%d] = %q, want %q", i, first[i], want[i])
		}
	}

	// 未設定の値は空文字
	third := records[3]
	if third[0] != "3" || third[2] != "" || third[3] != "" || third[4] != "" || third[6] != "" {
		t.Errorf("3行目 = %v", third)
	}
}

func TestExportCSV_NoTasks(t *testing.T) {
	svc := NewService(&mockTaskRepo{}, &mockNormalizer{})

	_, err := svc.ExportCSV(context.Background())
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeNoTasks {
		t.Errorf("ExportCSV() error = %v, want NO_TASKS", err)
	}
}

func TestClean_RunsNormalizer(t *testing.T) {
	norm := &mockNormalizer{updated: 2}
	svc := NewService(&mockTaskRepo{tasks: sampleTasks()}, norm)

	updated, err := svc.Clean(context.Background())
	if err != nil {
		t.Fatalf("Clean() error = %v", err)
	}
	if !norm.called {
		t.Error("正規化処理が呼び出されなかった")
	}
	if updated != 2 {
		t.Errorf("updated = %d, want 2", updated)
	}
}

func TestClean_NoTasksSkipsNormalizer(t *testing.T) {
	norm := &mockNormalizer{}
	svc := NewService(&mockTaskRepo{}, norm)

	_, err := svc.Clean(context.Background())
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeNoTasks {
		t.Errorf("Clean() error = %v, want NO_TASKS", err)
	}
	if norm.called {
		t.Error("タスクがないのに正規化処理が呼び出された")
	}
}

func TestCompletedPerDay_GroupsByDate(t *testing.T) {
	tasks := append(sampleTasks(), &model.Task{
		ID: 4, Status: model.TaskStatusCompleted, Priority: model.PriorityMedium,
		CreationTime: base, CompletedDate: timePtr(base.Add(52 * time.Hour)),
	})
	svc := NewService(&mockTaskRepo{tasks: tasks}, &mockNormalizer{})

	got, err := svc.CompletedPerDay(context.Background())
	if err != nil {
		t.Fatalf("CompletedPerDay() error = %v", err)
	}
	want := []DayCount{{Date: "2024-03-03", Count: 2}, {Date: "2024-03-05", Count: 1}}
	if len(got) != len(want) {
		t.Fatalf("CompletedPerDay() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestPriorityDistribution_SortedByCount(t *testing.T) {
	svc := NewService(&mockTaskRepo{tasks: sampleTasks()}, &mockNormalizer{})

	got, err := svc.PriorityDistribution(context.Background())
	if err != nil {
		t.Fatalf("PriorityDistribution() error = %v", err)
	}
	want := []PriorityShare{
		{Priority: "high", Count: 2, Percent: 66.7},
		{Priority: "low", Count: 1, Percent: 33.3},
	}
	if len(got) != len(want) {
		t.Fatalf("PriorityDistribution() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestTimeVsPriority_SignedDays(t *testing.T) {
	svc := NewService(&mockTaskRepo{tasks: sampleTasks()}, &mockNormalizer{})

	got, err := svc.TimeVsPriority(context.Background())
	if err != nil {
		t.Fatalf("TimeVsPriority() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("件数 = %d, want 2", len(got))
	}
	// task 2: 期限の22時間前に完了 → -1日、task 1: 76時間超過 → 3日
	if got[0].TaskID != 2 || got[0].DaysToComplete != -1 {
		t.Errorf("[0] = %+v", got[0])
	}
	if got[1].TaskID != 1 || got[1].DaysToComplete != 3 {
		t.Errorf("[1] = %+v", got[1])
	}
}

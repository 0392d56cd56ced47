package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hitoshi/taskman/internal/analytics"
)

// AnalyticsServiceInterface はAnalyticsHandlerが依存するサービスのインターフェース。
type AnalyticsServiceInterface interface {
	Overdue(ctx context.Context) (*analytics.OverdueSummary, error)
	AverageCompletionDays(ctx context.Context) (*float64, error)
	ExportCSV(ctx context.Context) ([]byte, error)
	Clean(ctx context.Context) (int64, error)
	CompletedPerDay(ctx context.Context) ([]analytics.DayCount, error)
	PriorityDistribution(ctx context.Context) ([]analytics.PriorityShare, error)
	TimeVsPriority(ctx context.Context) ([]analytics.CompletionPoint, error)
}

// AnalyticsHandler はタスク集計のHTTPハンドラー。
type AnalyticsHandler struct {
	service AnalyticsServiceInterface
}

// NewAnalyticsHandler はAnalyticsHandlerを生成する。
func NewAnalyticsHandler(service AnalyticsServiceInterface) *AnalyticsHandler {
	return &AnalyticsHandler{service: service}
}

type completionTimeResponse struct {
	AverageCompletionTime *float64 `json:"average_completion_time"`
}

type cleanResponse struct {
	Message      string `json:"message"`
	UpdatedCount int64  `json:"updated_count"`
}

// Overdue GET /data/overdue
func (h *AnalyticsHandler) Overdue(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Overdue(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// CompletionTime GET /data/completion-time
func (h *AnalyticsHandler) CompletionTime(w http.ResponseWriter, r *http.Request) {
	avg, err := h.service.AverageCompletionDays(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, completionTimeResponse{AverageCompletionTime: avg})
}

// DownloadCSV は全タスクをCSVファイルとして返す。
// GET /data/download-tasks-csv
func (h *AnalyticsHandler) DownloadCSV(w http.ResponseWriter, r *http.Request) {
	body, err := h.service.ExportCSV(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="tasks.csv"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// Clean はステータスを完了日時から再計算する。
// GET /data/clean
func (h *AnalyticsHandler) Clean(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.Clean(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cleanResponse{Message: "Data cleaned successfully", UpdatedCount: n})
}

// CompletedPerDay GET /data/completed-per-day
func (h *AnalyticsHandler) CompletedPerDay(w http.ResponseWriter, r *http.Request) {
	days, err := h.service.CompletedPerDay(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, days)
}

// PriorityDistribution GET /data/priority-distribution
func (h *AnalyticsHandler) PriorityDistribution(w http.ResponseWriter, r *http.Request) {
	shares, err := h.service.PriorityDistribution(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shares)
}

// TimeVsPriority GET /data/time-vs-priority
func (h *AnalyticsHandler) TimeVsPriority(w http.ResponseWriter, r *http.Request) {
	points, err := h.service.TimeVsPriority(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

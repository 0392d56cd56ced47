package duesweep

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/notifier"
)

const (
	dueDateLayout         = "2006-01-02 15:04:05"
	noDescriptionText     = "No description provided"
	unassignedText        = "Unassigned"
	digestSubjectTemplate = "⏰ Upcoming Tasks Due in the Next %d Hours"
	chatHeaderTemplate    = "⏰ *Upcoming Tasks Due in the Next %d Hours:*\n\n"
	htmlHeaderTemplate    = "<h1>⏰ Upcoming Tasks Due in the Next %d Hours:</h1>"
)

// HTMLSanitizer はダイジェストHTMLを許可タグのみに制限する。
type HTMLSanitizer interface {
	Sanitize(rawHTML string) string
}

// DueTask はスイープ時点でのタスクのスナップショット。
type DueTask struct {
	ID          int64
	Name        string
	Priority    string
	Assignee    string
	DueDate     time.Time
	Description string
}

// snapshot はタスクからDueTaskを作る。期限未設定のタスクは対象外なので呼び出し側で除外済みであること。
func snapshot(t *model.Task) DueTask {
	d := DueTask{
		ID:          t.ID,
		Name:        t.Name,
		Priority:    string(t.Priority),
		Assignee:    unassignedText,
		Description: noDescriptionText,
	}
	if t.AssignedTo != nil && *t.AssignedTo != "" {
		d.Assignee = *t.AssignedTo
	}
	if t.Description != nil && *t.Description != "" {
		d.Description = *t.Description
	}
	if t.DueDate != nil {
		d.DueDate = *t.DueDate
	}
	return d
}

// Renderer は同じスナップショットからチャット用とメール用のダイジェストを生成する。
type Renderer struct {
	sanitizer HTMLSanitizer
	hours     int
}

// NewRenderer はRendererを生成する。horizonは見出しに表示する時間幅。
func NewRenderer(sanitizer HTMLSanitizer, horizon time.Duration) *Renderer {
	hours := int(horizon / time.Hour)
	if hours <= 0 {
		hours = 24
	}
	return &Renderer{sanitizer: sanitizer, hours: hours}
}

// Render はダイジェストを生成する。TextはTelegram Markdown、HTMLはメール本文。
func (r *Renderer) Render(tasks []DueTask) notifier.Message {
	return notifier.Message{
		Subject: fmt.Sprintf(digestSubjectTemplate, r.hours),
		Text:    r.renderChat(tasks),
		HTML:    r.renderHTML(tasks),
	}
}

func (r *Renderer) renderChat(tasks []DueTask) string {
	var b strings.Builder
	fmt.Fprintf(&b, chatHeaderTemplate, r.hours)
	for _, t := range tasks {
		b.WriteString("📌 *Task ID*: " + strconv.FormatInt(t.ID, 10) + "\n")
		b.WriteString("📝 *Name*: " + notifier.EscapeMarkdown(t.Name) + "\n")
		b.WriteString("🔑 *Priority*: " + notifier.EscapeMarkdown(t.Priority) + "\n")
		b.WriteString("👤 *Assigned To*: " + notifier.EscapeMarkdown(t.Assignee) + "\n")
		b.WriteString("🗓 *Due Date*: " + t.DueDate.Format(dueDateLayout) + "\n")
		b.WriteString("💡 *Description*: " + notifier.EscapeMarkdown(t.Description) + "\n\n")
	}
	return b.String()
}

func (r *Renderer) renderHTML(tasks []DueTask) string {
	var b strings.Builder
	fmt.Fprintf(&b, htmlHeaderTemplate, r.hours)
	b.WriteString("<ul>")
	for _, t := range tasks {
		b.WriteString("<li>")
		b.WriteString("<strong>📌 Task ID:</strong> " + strconv.FormatInt(t.ID, 10) + "<br>")
		b.WriteString("<strong>📝 Name:</strong> " + html.EscapeString(t.Name) + "<br>")
		b.WriteString("<strong>🔑 Priority:</strong> " + html.EscapeString(t.Priority) + "<br>")
		b.WriteString("<strong>👤 Assigned To:</strong> " + html.EscapeString(t.Assignee) + "<br>")
		b.WriteString("<strong>🗓 Due Date:</strong> " + t.DueDate.Format(dueDateLayout) + "<br>")
		b.WriteString("<strong>💡 Description:</strong> " + html.EscapeString(t.Description))
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")

	if r.sanitizer == nil {
		return b.String()
	}
	return r.sanitizer.Sanitize(b.String())
}

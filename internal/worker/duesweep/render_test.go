package duesweep

import (
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/security"
)

func TestSnapshot_Placeholders(t *testing.T) {
	due := time.Date(2026, 5, 10, 18, 30, 0, 0, time.UTC)
	d := snapshot(&model.Task{ID: 3, Name: "backup", Priority: model.PriorityLow, DueDate: &due})

	if d.Description != "No description provided" {
		t.Errorf("Description = %q", d.Description)
	}
	if d.Assignee != "Unassigned" {
		t.Errorf("Assignee = %q", d.Assignee)
	}
	if !d.DueDate.Equal(due) {
		t.Errorf("DueDate = %v", d.DueDate)
	}

	empty := ""
	d = snapshot(&model.Task{ID: 4, Description: &empty, DueDate: &due})
	if d.Description != "No description provided" {
		t.Errorf("空の説明がプレースホルダーにならない: %q", d.Description)
	}
}

func TestRenderer_ChatDigest(t *testing.T) {
	r := NewRenderer(security.NewDigestSanitizer(), 24*time.Hour)
	due := time.Date(2026, 5, 10, 18, 30, 0, 0, time.UTC)

	msg := r.Render([]DueTask{{
		ID:          7,
		Name:        "renew_cert",
		Priority:    "high",
		Assignee:    "bob",
		DueDate:     due,
		Description: "No description provided",
	}})

	want := "⏰ *Upcoming Tasks Due in the Next 24 Hours:*\n\n" +
		"📌 *Task ID*: 7\n" +
		"📝 *Name*: renew\\_cert\n" +
		"🔑 *Priority*: high\n" +
		"👤 *Assigned To*: bob\n" +
		"🗓 *Due Date*: 2026-05-10 18:30:00\n" +
		"💡 *Description*: No description provided\n\n"
	if msg.Text != want {
		t.Errorf("Text =\n%q\nwant\n%q", msg.Text, want)
	}
	if msg.Subject != "⏰ Upcoming Tasks Due in the Next 24 Hours" {
		t.Errorf("Subject = %q", msg.Subject)
	}
}

func TestRenderer_HTMLDigest(t *testing.T) {
	r := NewRenderer(security.NewDigestSanitizer(), 24*time.Hour)
	due := time.Date(2026, 5, 10, 18, 30, 0, 0, time.UTC)

	msg := r.Render([]DueTask{
		{ID: 1, Name: "a", Priority: "low", Assignee: "x", DueDate: due, Description: "first"},
		{ID: 2, Name: "b", Priority: "high", Assignee: "y", DueDate: due, Description: "second"},
	})

	if !strings.HasPrefix(msg.HTML, "<h1>⏰ Upcoming Tasks Due in the Next 24 Hours:</h1><ul>") {
		t.Errorf("HTMLの見出しが不正: %s", msg.HTML)
	}
	if !strings.HasSuffix(msg.HTML, "</ul>") {
		t.Errorf("HTMLが</ul>で終わっていない: %s", msg.HTML)
	}
	if n := strings.Count(msg.HTML, "<li>"); n != 2 {
		t.Errorf("<li>の数 = %d, want 2", n)
	}
	if !strings.Contains(msg.HTML, "<strong>🗓 Due Date:</strong> 2026-05-10 18:30:00<br>") {
		t.Errorf("期限の表記が不正: %s", msg.HTML)
	}
}

func TestRenderer_HTMLEscapesUserInput(t *testing.T) {
	r := NewRenderer(security.NewDigestSanitizer(), 24*time.Hour)

	msg := r.Render([]DueTask{{
		ID:          1,
		Name:        `<script>alert(1)</script>`,
		Description: `<img src=x onerror=alert(1)>`,
	}})

	if strings.Contains(msg.HTML, "<script>") || strings.Contains(msg.HTML, "<img") {
		t.Errorf("ユーザー入力のマークアップが残っている: %s", msg.HTML)
	}
}

func TestRenderer_HorizonInHeadings(t *testing.T) {
	r := NewRenderer(nil, 48*time.Hour)
	msg := r.Render(nil)
	if !strings.Contains(msg.Text, "Next 48 Hours") || !strings.Contains(msg.HTML, "Next 48 Hours") {
		t.Errorf("見出しに時間幅が反映されていない: %q / %q", msg.Text, msg.HTML)
	}
}

package security

import (
	"strings"
	"testing"
)

func TestDigestSanitizer_KeepsDigestTags(t *testing.T) {
	s := NewDigestSanitizer()
	in := "<h1>見出し</h1><ul><li><strong>📌 Task ID:</strong> 7<br></li></ul>"

	out := s.Sanitize(in)
	for _, tag := range []string{"<h1>", "<ul>", "<li>", "<strong>", "<br"} {
		if !strings.Contains(out, tag) {
			t.Errorf("出力に %s が含まれていない: %s", tag, out)
		}
	}
	if !strings.Contains(out, "📌") {
		t.Errorf("絵文字が失われた: %s", out)
	}
}

func TestDigestSanitizer_RemovesOtherMarkup(t *testing.T) {
	s := NewDigestSanitizer()

	tests := []struct {
		name      string
		in        string
		forbidden string
	}{
		{"script", `<li>a<script>alert(1)</script></li>`, "<script"},
		{"iframe", `<li><iframe src="https://evil.example"></iframe></li>`, "<iframe"},
		{"link", `<li><a href="https://evil.example">x</a></li>`, "<a "},
		{"属性", `<h1 onclick="x()" style="color:red">t</h1>`, "onclick"},
		{"img", `<li><img src="https://example.com/x.png"></li>`, "<img"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := s.Sanitize(tt.in)
			if strings.Contains(out, tt.forbidden) {
				t.Errorf("Sanitize(%q) = %q, %q が残っている", tt.in, out, tt.forbidden)
			}
		})
	}
}

func TestDigestSanitizer_Idempotent(t *testing.T) {
	s := NewDigestSanitizer()
	in := "<h1>t</h1><ul><li>a &amp; b</li></ul>"

	once := s.Sanitize(in)
	if twice := s.Sanitize(once); once != twice {
		t.Errorf("冪等でない: %q != %q", once, twice)
	}
}

package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewSafeClient_SetsTimeoutAndTransport(t *testing.T) {
	client := NewSSRFGuard().NewSafeClient(5 * time.Second)

	if client.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", client.Timeout)
	}
	if client.Transport == nil || client.Transport == http.DefaultTransport {
		t.Fatal("safeurlのTransportが設定されていない")
	}
}

// httptestサーバーは127.0.0.1で起動するため、safeurlにより拒否される
func TestNewSafeClient_BlocksLoopback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewSSRFGuard().NewSafeClient(5 * time.Second)
	if _, err := client.Post(ts.URL, "application/json", nil); err == nil {
		t.Fatal("ループバックへのWebhook送信が拒否されなかった")
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"公開https", "https://hooks.example.com/taskman", false},
		{"公開http", "http://example.org/webhook", false},
		{"空文字", "", true},
		{"スキームなし", "not-a-url", true},
		{"ftp", "ftp://example.com/hook", true},
		{"file", "file:///etc/passwd", true},
		{"プライベート10", "http://10.0.0.1/hook", true},
		{"プライベート172", "http://172.16.0.1/hook", true},
		{"プライベート192", "http://192.168.1.100/hook", true},
		{"ループバック", "http://127.0.0.1/hook", true},
		{"localhost", "http://LOCALHOST/hook", true},
		{"メタデータ", "http://169.254.169.254/latest/meta-data/", true},
		{"IPv6ループバック", "http://[::1]/hook", true},
		{"ゼロアドレス", "http://0.0.0.0/hook", true},
	}

	guard := NewSSRFGuard()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

package ratelimit

import (
	"strings"
	"testing"
	"time"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name         string
		statusCode   int
		body         string
		wantDetected bool
		wantCode     string
		wantCategory ErrorCategory
	}{
		{
			name:         "slider captcha page",
			statusCode:   200,
			body:         `<html><div id="captcha-verify-image"></div>Drag the slider to fit the puzzle</html>`,
			wantDetected: true,
			wantCode:     "VERIFY_CAPTCHA",
			wantCategory: CategoryCaptcha,
		},
		{
			name:         "too many requests body",
			statusCode:   200,
			body:         "<html><body>Too many requests. Please slow down.</body></html>",
			wantDetected: true,
			wantCode:     "TOO_MANY_REQUESTS",
			wantCategory: CategoryRateLimit,
		},
		{
			name:         "rate limit json",
			statusCode:   200,
			body:         `{"status_code":10000,"status_msg":"rate limit"}`,
			wantDetected: true,
			wantCode:     "RATE_LIMITED",
			wantCategory: CategoryRateLimit,
		},
		{
			name:         "removed video",
			statusCode:   200,
			body:         "<p>Video currently unavailable</p>",
			wantDetected: true,
			wantCode:     "VIDEO_UNAVAILABLE",
			wantCategory: CategoryUnavailable,
		},
		{
			name:         "private video",
			statusCode:   200,
			body:         "<p>This video is private</p>",
			wantDetected: true,
			wantCode:     "VIDEO_UNAVAILABLE",
			wantCategory: CategoryUnavailable,
		},
		{
			name:         "geo restricted",
			statusCode:   200,
			body:         "This content is not available in your region",
			wantDetected: true,
			wantCode:     "GEO_BLOCKED",
			wantCategory: CategoryGeoBlocked,
		},
		{
			name:         "access denied body beats 403 status",
			statusCode:   403,
			body:         "<html><body>Access Denied</body></html>",
			wantDetected: true,
			wantCode:     "ACCESS_DENIED",
			wantCategory: CategoryAccessDenied,
		},
		{
			name:         "bare 429",
			statusCode:   429,
			body:         "",
			wantDetected: true,
			wantCode:     "HTTP_429",
			wantCategory: CategoryRateLimit,
		},
		{
			name:         "bare 403",
			statusCode:   403,
			body:         "nope",
			wantDetected: true,
			wantCode:     "HTTP_403",
			wantCategory: CategoryAccessDenied,
		},
		{
			name:         "normal page",
			statusCode:   200,
			body:         "<html><body><video src='blob:x'></video></body></html>",
			wantDetected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := Detect(tt.statusCode, tt.body)
			if info.Detected != tt.wantDetected {
				t.Fatalf("Detected = %v, want %v", info.Detected, tt.wantDetected)
			}
			if !tt.wantDetected {
				return
			}
			if info.ErrorCode != tt.wantCode {
				t.Errorf("ErrorCode = %q, want %q", info.ErrorCode, tt.wantCode)
			}
			if info.Category != tt.wantCategory {
				t.Errorf("Category = %q, want %q", info.Category, tt.wantCategory)
			}
		})
	}
}

func TestDetectTruncatesLargeBodies(t *testing.T) {
	body := strings.Repeat("a", maxBodyLenForRegex+10) + "too many requests"
	if info := Detect(200, body); info.Detected {
		t.Error("Expected pattern beyond the regex window to be ignored")
	}
}

func TestLooksLikeText(t *testing.T) {
	tests := []struct {
		sample []byte
		want   bool
	}{
		{[]byte("<html>"), true},
		{[]byte("  {\"a\":1}"), true},
		{[]byte("[1,2]"), true},
		{[]byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p'}, false},
		{[]byte{0x1a, 0x45, 0xdf, 0xa3}, false},
		{nil, false},
		{[]byte("   "), false},
	}
	for _, tt := range tests {
		if got := LooksLikeText(tt.sample); got != tt.want {
			t.Errorf("LooksLikeText(%q) = %v, want %v", tt.sample, got, tt.want)
		}
	}
}

func TestAdjustDelay(t *testing.T) {
	if got := AdjustDelay(time.Second, 5*time.Second, time.Minute); got != 5*time.Second {
		t.Errorf("Expected floor 5s, got %v", got)
	}
	if got := AdjustDelay(time.Hour, 5*time.Second, time.Minute); got != time.Minute {
		t.Errorf("Expected ceiling 1m, got %v", got)
	}
	if got := AdjustDelay(10*time.Second, 5*time.Second, time.Minute); got != 10*time.Second {
		t.Errorf("Expected unchanged 10s, got %v", got)
	}
}

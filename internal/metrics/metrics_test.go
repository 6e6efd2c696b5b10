package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	return w.Body.String()
}

func TestHandler(t *testing.T) {
	RecordExtraction("network", "", 2*time.Second, 3)
	RecordDownload("", 123456, time.Second)
	SessionPoolSize.Set(3)

	body := scrape(t)

	expectedMetrics := []string{
		"clipharvest_extractions_total",
		"clipharvest_extraction_duration_seconds",
		"clipharvest_network_candidates",
		"clipharvest_downloads_total",
		"clipharvest_download_bytes_total",
		"clipharvest_session_pool_size",
	}
	for _, metric := range expectedMetrics {
		if !strings.Contains(body, metric) {
			t.Errorf("Expected metric %q not found in output", metric)
		}
	}
	if !strings.Contains(body, `clipharvest_extractions_total{method="network",reason="ok"}`) {
		t.Error("Expected successful extraction to be labelled reason=ok")
	}
}

func TestRecordDownloadFailureDoesNotCountBytes(t *testing.T) {
	RecordDownload("UndersizedResponse", 40000, 10*time.Millisecond)

	body := scrape(t)
	if !strings.Contains(body, `clipharvest_downloads_total{outcome="UndersizedResponse"}`) {
		t.Error("Expected UndersizedResponse outcome label")
	}
}

func TestRecordRoundAndCleanup(t *testing.T) {
	RecordRound("1", 4)
	RecordCleanup(2, 1024)
	RecordBlockPage("captcha")

	body := scrape(t)
	for _, s := range []string{
		`clipharvest_round_failed_targets{round="1"} 4`,
		"clipharvest_orphan_processes_killed_total",
		`clipharvest_block_pages_total{category="captcha"}`,
	} {
		if !strings.Contains(body, s) {
			t.Errorf("Expected %q in output", s)
		}
	}
}

func TestSetBuildInfo(t *testing.T) {
	SetBuildInfo("1.0.0", "go1.24")

	body := scrape(t)
	if !strings.Contains(body, "clipharvest_build_info") {
		t.Error("Expected clipharvest_build_info metric")
	}
	if !strings.Contains(body, "version=\"1.0.0\"") {
		t.Error("Expected version label in build_info")
	}
}

func TestMemoryCollectorStops(t *testing.T) {
	stopCh := make(chan struct{})
	done := make(chan struct{})
	go func() {
		StartMemoryCollector(5*time.Millisecond, stopCh)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	close(stopCh)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("StartMemoryCollector did not stop")
	}
}

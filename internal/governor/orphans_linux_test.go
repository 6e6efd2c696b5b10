//go:build linux

package governor

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestParentPID(t *testing.T) {
	tests := []struct {
		stat string
		want int
		ok   bool
	}{
		{"1234 (chrome) S 1 1234 1234 0 -1", 1, true},
		{"1234 (Web Content (x)) S 987 1 1", 987, true},
		{"garbage", 0, false},
		{"1 (init) S", 0, false},
	}
	for _, tt := range tests {
		got, ok := parentPID(tt.stat)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parentPID(%q) = %d, %v; expected %d, %v", tt.stat, got, ok, tt.want, tt.ok)
		}
	}
}

func TestIsBrowserHelper(t *testing.T) {
	tests := []struct {
		cmdline string
		want    bool
	}{
		{"/usr/lib/chromium/chromium\x00--type=renderer\x00--lang=en\x00", true},
		{"/opt/google/chrome/chrome\x00--type=gpu-process\x00", true},
		{"/snap/chromium/current/chrome\x00--type=utility\x00--utility-sub-type=network\x00", true},
		{"/usr/lib/chromium/chromium\x00--user-data-dir=/tmp/p\x00", false},
		{"/usr/bin/python3\x00--type=renderer\x00", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isBrowserHelper([]byte(tt.cmdline)); got != tt.want {
			t.Errorf("isBrowserHelper(%q) = %v, expected %v", tt.cmdline, got, tt.want)
		}
	}
}

func fakeProc(t *testing.T, root string, pid, ppid int, cmdline string) {
	t.Helper()
	dir := filepath.Join(root, strconv.Itoa(pid))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	stat := strconv.Itoa(pid) + " (chrome) S " + strconv.Itoa(ppid) + " 0 0"
	if err := os.WriteFile(filepath.Join(dir, "stat"), []byte(stat), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "cmdline"), []byte(cmdline), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFindOrphans(t *testing.T) {
	root := t.TempDir()
	renderer := "/usr/lib/chromium/chromium\x00--type=renderer\x00"
	browser := "/usr/lib/chromium/chromium\x00--user-data-dir=/p\x00"

	fakeProc(t, root, 100, 1, browser)      // browser under init: not a helper
	fakeProc(t, root, 101, 100, renderer)   // live parent
	fakeProc(t, root, 102, 1, renderer)     // reparented to init
	fakeProc(t, root, 103, 55555, renderer) // parent gone

	got := findOrphans(root, os.Getuid())

	want := map[int]bool{102: true, 103: true}
	if len(got) != len(want) {
		t.Fatalf("Expected %d orphans, got %v", len(want), got)
	}
	for _, pid := range got {
		if !want[pid] {
			t.Errorf("Unexpected orphan %d", pid)
		}
	}
}

func TestFindOrphansOtherUser(t *testing.T) {
	root := t.TempDir()
	fakeProc(t, root, 102, 1, "/usr/lib/chromium/chromium\x00--type=renderer\x00")

	if got := findOrphans(root, os.Getuid()+1); len(got) != 0 {
		t.Errorf("Expected processes of other users to be skipped, got %v", got)
	}
}

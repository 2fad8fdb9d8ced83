package docindex

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sha1n/mcp-docindex-server/internal/config"
)

// startWatching runs the watch loop until the test ends.
func startWatching(t *testing.T, svc *Service) {
	t.Helper()
	watcher, err := svc.newWatcher()
	if err != nil {
		t.Fatalf("newWatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.watchLoop(ctx, watcher)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
		_ = watcher.Close()
	})
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	svc, dir := setupService(t, nil)
	startWatching(t, svc)

	WriteShard(t, dir, "pages_0", Row("zooming", "Zooming", "zoom.html", ""))

	ok := waitFor(t, 5*time.Second, func() bool {
		got, _ := svc.Lookup("zooming", MatchSubstring, nil, 0)
		return len(got) == 1
	})
	if !ok {
		t.Fatal("Expected the new shard to be picked up")
	}
}

func TestWatch_DebouncesBursts(t *testing.T) {
	svc, dir := setupService(t, func(s *config.IndexSettings) { s.WatchDebounce = 200 * time.Millisecond })
	startWatching(t, svc)

	for i := range 5 {
		WriteShard(t, dir, "pages_0", Row("zooming", "Zooming", "zoom.html", string(rune('a'+i))))
		time.Sleep(20 * time.Millisecond)
	}

	if !waitFor(t, 5*time.Second, func() bool { return svc.Status().Generation > 1 }) {
		t.Fatal("Expected a reload")
	}
	time.Sleep(400 * time.Millisecond)
	if gen := svc.Status().Generation; gen != 2 {
		t.Errorf("Generation = %d, want 2 after one debounced burst", gen)
	}
}

func TestWatch_MalformedChangeKeepsStore(t *testing.T) {
	svc, dir := setupService(t, nil)
	startWatching(t, svc)

	WriteShard(t, dir, "pages_0", Row("broken", "", "broken.html", ""))

	if !waitFor(t, 5*time.Second, func() bool { return svc.Status().Error != "" }) {
		t.Fatal("Expected the failed reload to be recorded")
	}
	if gen := svc.Status().Generation; gen != 1 {
		t.Errorf("Generation = %d, want 1", gen)
	}
	if got, err := svc.Lookup("plot", MatchSubstring, nil, 0); err != nil || len(got) == 0 {
		t.Errorf("Lookup after failed reload = %d entries, %v", len(got), err)
	}

	// Fixing the shard recovers
	WriteShard(t, dir, "pages_0", Row("fixed", "Fixed", "fixed.html", ""))
	ok := waitFor(t, 5*time.Second, func() bool {
		got, _ := svc.Lookup("fixed", MatchSubstring, nil, 0)
		return len(got) == 1
	})
	if !ok {
		t.Error("Expected the fixed shard to be loaded")
	}
}

func TestWatch_IgnoresOtherFiles(t *testing.T) {
	svc, dir := setupService(t, nil)
	startWatching(t, svc)

	if err := os.WriteFile(filepath.Join(dir, "search.css"), []byte("body {}"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	if gen := svc.Status().Generation; gen != 1 {
		t.Errorf("Generation = %d, want 1", gen)
	}
}

func TestWatch_MissingDir(t *testing.T) {
	settings := testSettings(t, filepath.Join(t.TempDir(), "missing"))
	svc, err := NewService(settings, nil)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	defer closeService(t, svc)

	if err := svc.Watch(context.Background()); err == nil {
		t.Error("Expected error watching a missing directory")
	}
}

func TestWatch_StopsOnCancel(t *testing.T) {
	svc, _ := setupService(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Watch(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not stop after cancel")
	}
}

func TestIsShardEvent(t *testing.T) {
	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"write shard", fsnotify.Event{Name: "/s/classes_0.js", Op: fsnotify.Write}, true},
		{"create gz shard", fsnotify.Event{Name: "/s/all_1.js.gz", Op: fsnotify.Create}, true},
		{"remove shard", fsnotify.Event{Name: "/s/files_0.json", Op: fsnotify.Remove}, true},
		{"chmod shard", fsnotify.Event{Name: "/s/classes_0.js", Op: fsnotify.Chmod}, false},
		{"search engine", fsnotify.Event{Name: "/s/search.js", Op: fsnotify.Write}, false},
		{"stylesheet", fsnotify.Event{Name: "/s/search.css", Op: fsnotify.Write}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isShardEvent(tt.event); got != tt.want {
				t.Errorf("isShardEvent = %v, want %v", got, tt.want)
			}
		})
	}
}

package songcache

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/syncwave/syncwave/internal/config"
	"github.com/syncwave/syncwave/internal/database"
	"github.com/syncwave/syncwave/internal/fetcher"
)

func newDegradedPipeline(t *testing.T) *Pipeline {
	t.Helper()
	store := database.Open(config.DatabaseConfig{})
	fetch := fetcher.New("", "")
	return New(store, fetch, t.TempDir(), time.Hour)
}

func TestStartDownloadDegradesWhenStoreUnavailable(t *testing.T) {
	p := newDegradedPipeline(t)
	id, ok := p.StartDownload(context.Background(), "https://example.com/a.mp3", nil, "lobby-1")
	if ok || id != "" {
		t.Fatalf("expected (\"\", false) on an unavailable store, got (%q, %v)", id, ok)
	}
}

func TestCleanupOldSongsPropagatesStoreUnavailableError(t *testing.T) {
	p := newDegradedPipeline(t)
	if err := p.CleanupOldSongs(context.Background()); err == nil {
		t.Fatal("expected an error when the store is unavailable")
	}
}

// newFakeYTDLP writes a shell stand-in for yt-dlp that locates the -o output
// path, emits one progress line, and writes a small file there — enough to
// exercise the pipeline's status transitions without a real network fetch
// or binary.
func newFakeYTDLP(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake yt-dlp shell script requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-yt-dlp.sh")
	script := `#!/bin/sh
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    -o) out="$2"; shift 2 ;;
    *) shift ;;
  esac
done
echo "[download]  50.0% of ~1.00MiB at 1.00MiB/s ETA 00:01"
echo "[download] 100% of 1.00MiB in 00:01"
printf 'fake-audio-data' > "$out"
exit 0
`
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake yt-dlp: %v", err)
	}
	return path
}

func newAvailablePipeline(t *testing.T) *Pipeline {
	t.Helper()
	store := database.Open(config.DatabaseConfig{URL: filepath.Join(t.TempDir(), "songcache.duckdb")})
	if !store.IsAvailable() {
		t.Skip("duckdb driver unavailable in this environment")
	}
	t.Cleanup(func() { store.Close() })

	fetch := fetcher.New(newFakeYTDLP(t), "")
	return New(store, fetch, t.TempDir(), time.Hour)
}

func TestStartDownloadRunsToReadyAgainstAFakeBinary(t *testing.T) {
	p := newAvailablePipeline(t)
	ctx := context.Background()

	id, ok := p.StartDownload(ctx, "https://example.com/a.mp3", &fetcher.Metadata{Title: "a song"}, "lobby-1")
	if !ok || id == "" {
		t.Fatalf("expected a successful start, got (%q, %v)", id, ok)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		cached, found := p.GetCachedSong(ctx, "https://example.com/a.mp3")
		if found && cached.Status == "ready" {
			if cached.FilePath == "" {
				t.Fatal("expected a ready song to have a file path")
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected the song to reach ready status before the deadline")
}

func TestStartDownloadDedupsConcurrentRequestsForSameURL(t *testing.T) {
	p := newAvailablePipeline(t)
	ctx := context.Background()

	const n = 8
	type result struct {
		id string
		ok bool
	}
	results := make(chan result, n)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < n; i++ {
		go func() {
			start.Wait()
			id, ok := p.StartDownload(ctx, "https://example.com/dedup.mp3", &fetcher.Metadata{Title: "x"}, "lobby-1")
			results <- result{id, ok}
		}()
	}
	start.Done() // release all goroutines at once to maximize the race window

	first := ""
	for i := 0; i < n; i++ {
		r := <-results
		if !r.ok {
			t.Fatalf("expected call %d to succeed", i)
		}
		if first == "" {
			first = r.id
		} else if r.id != first {
			t.Fatalf("expected the same registry id for a deduped url, got %q and %q", first, r.id)
		}
	}
}

func TestEventsPublishesProgressForADownload(t *testing.T) {
	p := newAvailablePipeline(t)
	ctx := context.Background()

	if _, ok := p.StartDownload(ctx, "https://example.com/events.mp3", &fetcher.Metadata{Title: "x"}, "lobby-1"); !ok {
		t.Fatal("expected StartDownload to succeed")
	}

	sawReady := false
	deadline := time.After(2 * time.Second)
	for !sawReady {
		select {
		case ev := <-p.Events():
			if string(ev.Status) == "ready" {
				sawReady = true
			}
		case <-deadline:
			t.Fatal("expected a ready progress event before the deadline")
		}
	}
}

package fetcher

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestNewAppliesDefaultBinaryNames(t *testing.T) {
	f := New("", "")
	if f.BinaryPath != "yt-dlp" {
		t.Fatalf("expected default yt-dlp, got %q", f.BinaryPath)
	}
	if f.TranscoderPath != "ffmpeg" {
		t.Fatalf("expected default ffmpeg, got %q", f.TranscoderPath)
	}
}

func TestNewHonorsExplicitPaths(t *testing.T) {
	f := New("/usr/local/bin/yt-dlp", "/opt/ffmpeg/ffmpeg")
	if f.BinaryPath != "/usr/local/bin/yt-dlp" || f.TranscoderPath != "/opt/ffmpeg/ffmpeg" {
		t.Fatalf("expected explicit paths preserved, got %+v", f)
	}
}

func TestParseProgressExtractsPercent(t *testing.T) {
	cases := map[string]float64{
		"[download]   42.8% of ~5.23MiB at  1.15MiB/s ETA 00:02": 42.8,
		"[download] 100% of 5.23MiB in 00:04":                    100,
		"no percentage here":                                     -1,
	}
	for line, want := range cases {
		if got := parseProgress(line); got != want {
			t.Errorf("parseProgress(%q) = %v, want %v", line, got, want)
		}
	}
}

func TestParseErrorReturnsNilForNilInput(t *testing.T) {
	f := New("", "")
	if err := f.ParseError(nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestParseErrorWrapsNonExitError(t *testing.T) {
	f := New("", "")
	sentinel := errors.New("context deadline exceeded")
	err := f.ParseError(sentinel)
	if err == nil || !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped sentinel, got %v", err)
	}
}

func TestParseErrorExtractsStderrFromExitError(t *testing.T) {
	f := New("", "")
	cmd := exec.Command("sh", "-c", "echo 'ERROR: video unavailable' 1>&2; exit 1")
	_, outErr := cmd.Output() // Output(), unlike Run(), populates ExitError.Stderr

	var exitErr *exec.ExitError
	if !errors.As(outErr, &exitErr) {
		t.Fatalf("expected *exec.ExitError from the test command, got %T", outErr)
	}

	parsed := f.ParseError(outErr)
	if parsed == nil {
		t.Fatal("expected a non-nil parsed error")
	}
}

func TestGetMetadataPropagatesSubprocessFailure(t *testing.T) {
	f := New(filepath.Join(t.TempDir(), "does-not-exist-binary"), "")
	if _, err := f.GetMetadata(context.Background(), "https://example.com/watch?v=1"); err == nil {
		t.Fatal("expected an error when the binary does not exist")
	}
}

func TestCheckAvailableFalseForMissingBinary(t *testing.T) {
	f := New(filepath.Join(t.TempDir(), "does-not-exist-binary"), "")
	if f.CheckAvailable(context.Background(), "https://example.com/watch?v=1") {
		t.Fatal("expected CheckAvailable to report false for a missing binary")
	}
}

func TestCreateTranscodedStreamClosesProgressChannelOnFailure(t *testing.T) {
	f := New(filepath.Join(t.TempDir(), "does-not-exist-binary"), "")
	progressCh := make(chan Progress, 4)

	err := f.CreateTranscodedStream(context.Background(), "https://example.com/watch?v=1", filepath.Join(t.TempDir(), "out.mp3"), progressCh)
	if err == nil {
		t.Fatal("expected an error when the binary does not exist")
	}
	if _, open := <-progressCh; open {
		t.Fatal("expected the progress channel to be closed")
	}
}

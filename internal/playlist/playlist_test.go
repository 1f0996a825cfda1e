package playlist

import (
	"context"
	"testing"

	"github.com/syncwave/syncwave/internal/config"
	"github.com/syncwave/syncwave/internal/database"
	"github.com/syncwave/syncwave/internal/syncerr"
)

// The degraded (no DATABASE_URL) store backs every test here, so these
// exercise the unavailable-store contract (spec §4.H): every operation
// degrades to syncerr.CapabilityUnavailable rather than panicking or
// silently no-opping.

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db := database.Open(config.DatabaseConfig{})
	return New(db)
}

func TestCreateDegradesWhenStoreUnavailable(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create(context.Background(), "user-1", "road trip")
	assertKind(t, err, syncerr.KindCapabilityUnavailable)
}

func TestGetDegradesWhenStoreUnavailable(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "playlist-1")
	assertKind(t, err, syncerr.KindCapabilityUnavailable)
}

func TestListByUserDegradesWhenStoreUnavailable(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ListByUser(context.Background(), "user-1")
	assertKind(t, err, syncerr.KindCapabilityUnavailable)
}

func TestRenameDegradesWhenStoreUnavailable(t *testing.T) {
	s := newTestStore(t)
	err := s.Rename(context.Background(), "playlist-1", "new name")
	assertKind(t, err, syncerr.KindCapabilityUnavailable)
}

func TestDeleteDegradesWhenStoreUnavailable(t *testing.T) {
	s := newTestStore(t)
	err := s.Delete(context.Background(), "playlist-1")
	assertKind(t, err, syncerr.KindCapabilityUnavailable)
}

func TestAddSongDegradesWhenStoreUnavailable(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AddSong(context.Background(), "playlist-1", AddSongFields{URL: "u"})
	assertKind(t, err, syncerr.KindCapabilityUnavailable)
}

func TestRemoveSongDegradesWhenStoreUnavailable(t *testing.T) {
	s := newTestStore(t)
	err := s.RemoveSong(context.Background(), "playlist-1", "song-1")
	assertKind(t, err, syncerr.KindCapabilityUnavailable)
}

func TestReorderSongDegradesWhenStoreUnavailable(t *testing.T) {
	s := newTestStore(t)
	err := s.ReorderSong(context.Background(), "playlist-1", "song-1", 0)
	assertKind(t, err, syncerr.KindCapabilityUnavailable)
}

func assertKind(t *testing.T, err error, want syncerr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error")
	}
	kind, ok := syncerr.KindOf(err)
	if !ok || kind != want {
		t.Fatalf("expected kind %v, got %v (ok=%v)", want, kind, ok)
	}
}

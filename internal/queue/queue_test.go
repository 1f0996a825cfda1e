package queue

import (
	"testing"

	"github.com/syncwave/syncwave/internal/config"
	"github.com/syncwave/syncwave/internal/database"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	store := database.Open(config.DatabaseConfig{})
	return New("lobby-1", store)
}

func TestAddSongAssignsDenseSortOrder(t *testing.T) {
	q := newTestQueue(t)

	a := q.AddSong(AddFields{URL: "a", Title: "A"})
	b := q.AddSong(AddFields{URL: "b", Title: "B"})

	if a.SortOrder != 0 || b.SortOrder != 1 {
		t.Fatalf("expected sort orders 0,1; got %d,%d", a.SortOrder, b.SortOrder)
	}
	if q.Len() != 2 {
		t.Fatalf("expected len 2, got %d", q.Len())
	}
}

func TestRemoveSongRenumbersRemaining(t *testing.T) {
	q := newTestQueue(t)
	a := q.AddSong(AddFields{URL: "a"})
	q.AddSong(AddFields{URL: "b"})
	c := q.AddSong(AddFields{URL: "c"})

	removed := q.RemoveSong(a.ID)
	if removed == nil || removed.ID != a.ID {
		t.Fatalf("expected to remove %s", a.ID)
	}

	songs := q.GetSongs()
	if len(songs) != 2 {
		t.Fatalf("expected 2 songs remaining, got %d", len(songs))
	}
	if songs[1].ID != c.ID || songs[1].SortOrder != 1 {
		t.Fatalf("expected c at index 1 with sort order 1, got %+v", songs[1])
	}
}

func TestRemoveSongMissingIDReturnsNil(t *testing.T) {
	q := newTestQueue(t)
	if got := q.RemoveSong("does-not-exist"); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestReorderSongOutOfRangeFails(t *testing.T) {
	q := newTestQueue(t)
	a := q.AddSong(AddFields{URL: "a"})
	q.AddSong(AddFields{URL: "b"})

	if q.ReorderSong(a.ID, 5) {
		t.Fatal("expected out-of-range reorder to fail")
	}
	if q.ReorderSong("missing", 0) {
		t.Fatal("expected missing id reorder to fail")
	}
}

func TestReorderSongMovesAndRenumbers(t *testing.T) {
	q := newTestQueue(t)
	a := q.AddSong(AddFields{URL: "a"})
	q.AddSong(AddFields{URL: "b"})
	q.AddSong(AddFields{URL: "c"})

	if !q.ReorderSong(a.ID, 2) {
		t.Fatal("expected reorder to succeed")
	}

	songs := q.GetSongs()
	if songs[2].ID != a.ID {
		t.Fatalf("expected a at tail, got %+v", songs)
	}
	for i, s := range songs {
		if s.SortOrder != i {
			t.Fatalf("expected dense sort order, got %+v", songs)
		}
	}
}

func TestAdvanceQueueOnEmptyReturnsNil(t *testing.T) {
	q := newTestQueue(t)
	if got := q.AdvanceQueue(); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestMoveCurrentToEndRotatesHead(t *testing.T) {
	q := newTestQueue(t)
	a := q.AddSong(AddFields{URL: "a"})
	q.AddSong(AddFields{URL: "b"})

	q.MoveCurrentToEnd()

	songs := q.GetSongs()
	if songs[len(songs)-1].ID != a.ID {
		t.Fatalf("expected a rotated to tail, got %+v", songs)
	}
}

func TestMoveCurrentToEndNoopBelowTwoSongs(t *testing.T) {
	q := newTestQueue(t)
	a := q.AddSong(AddFields{URL: "a"})

	q.MoveCurrentToEnd()

	if q.GetCurrentSong().ID != a.ID {
		t.Fatal("expected single-song queue to be unchanged")
	}
}

func TestIndependentModeCursors(t *testing.T) {
	q := newTestQueue(t)
	q.AddSong(AddFields{URL: "a"})
	q.AddSong(AddFields{URL: "b"})
	q.AddSong(AddFields{URL: "c"})

	if song := q.SetUserPosition("conn-1", 1); song == nil || song.URL != "b" {
		t.Fatalf("expected b at index 1, got %+v", song)
	}
	if idx, ok := q.GetUserPosition("conn-1"); !ok || idx != 1 {
		t.Fatalf("expected cursor at 1, got %d,%v", idx, ok)
	}

	song := q.AdvanceUserPosition("conn-1")
	if song == nil || song.URL != "c" {
		t.Fatalf("expected to advance to c, got %+v", song)
	}

	// advancing past the end drops the cursor
	if got := q.AdvanceUserPosition("conn-1"); got != nil {
		t.Fatalf("expected nil past queue end, got %+v", got)
	}
	if _, ok := q.GetUserPosition("conn-1"); ok {
		t.Fatal("expected cursor to be removed after running off the end")
	}
}

func TestRemoveSongShiftsCursors(t *testing.T) {
	q := newTestQueue(t)
	a := q.AddSong(AddFields{URL: "a"})
	q.AddSong(AddFields{URL: "b"})
	q.AddSong(AddFields{URL: "c"})

	q.SetUserPosition("conn-1", 2) // pointing at c

	q.RemoveSong(a.ID)

	idx, ok := q.GetUserPosition("conn-1")
	if !ok || idx != 1 {
		t.Fatalf("expected cursor shifted to 1, got %d,%v", idx, ok)
	}
}

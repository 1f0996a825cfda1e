// Package queue implements component D: a per-lobby ordered song list with
// reordering, advancement and the independent-mode per-user cursor. Each
// lobby owns exactly one Queue, mutated only from within that lobby's actor
// goroutine (internal/lobby) — Queue itself does no locking.
package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/syncwave/syncwave/internal/database"
	"github.com/syncwave/syncwave/internal/logging"
	"github.com/syncwave/syncwave/internal/models"
)

// Queue is the ordered song list for one lobby.
type Queue struct {
	lobbyID string
	store   *database.Store
	songs   []*models.Song
	cursors map[string]int // connId -> index, independent mode only
}

// New creates an empty queue for lobbyID.
func New(lobbyID string, store *database.Store) *Queue {
	return &Queue{
		lobbyID: lobbyID,
		store:   store,
		cursors: make(map[string]int),
	}
}

// AddFields is the caller-supplied data for a new queue entry.
type AddFields struct {
	URL       string
	Title     string
	Duration  float64
	AddedBy   string
	Thumbnail string
}

// AddSong appends a new entry with the next dense sort_order and persists
// it fire-and-forget (spec §4.D addSong).
func (q *Queue) AddSong(f AddFields) *models.Song {
	song := &models.Song{
		ID:        uuid.NewString(),
		LobbyID:   q.lobbyID,
		URL:       f.URL,
		Title:     f.Title,
		Duration:  f.Duration,
		AddedBy:   f.AddedBy,
		Thumbnail: f.Thumbnail,
		AddedAt:   time.Now(),
		SortOrder: len(q.songs),
	}
	q.songs = append(q.songs, song)
	q.persistInsert(song)
	return song
}

// RemoveSong deletes the entry with id, returning it, or nil if absent.
// Remaining entries are re-compacted to a dense sort_order, which is
// persisted in one transaction separate from the row delete (spec §3
// invariant).
func (q *Queue) RemoveSong(id string) *models.Song {
	idx := q.indexOf(id)
	if idx < 0 {
		return nil
	}
	removed := q.songs[idx]
	q.songs = append(q.songs[:idx], q.songs[idx+1:]...)
	q.renumber()
	q.persistDelete(removed.ID)
	q.persistReorder()
	q.shiftCursorsAfterRemoval(idx)
	return removed
}

// ReorderSong moves id to newIndex. Reordering to the same index is a
// no-op; out-of-range or negative indices return false (spec §4.D
// tie-break rule).
func (q *Queue) ReorderSong(id string, newIndex int) bool {
	idx := q.indexOf(id)
	if idx < 0 || newIndex < 0 || newIndex >= len(q.songs) {
		return false
	}
	if idx == newIndex {
		return true
	}

	song := q.songs[idx]
	q.songs = append(q.songs[:idx], q.songs[idx+1:]...)
	q.songs = append(q.songs[:newIndex], append([]*models.Song{song}, q.songs[newIndex:]...)...)
	q.renumber()
	q.persistReorder()
	return true
}

// GetSongs returns a defensive copy of the current ordered list.
func (q *Queue) GetSongs() []*models.Song {
	out := make([]*models.Song, len(q.songs))
	for i, s := range q.songs {
		out[i] = s.Clone()
	}
	return out
}

// GetCurrentSong returns the head of the queue, or nil if empty.
func (q *Queue) GetCurrentSong() *models.Song {
	if len(q.songs) == 0 {
		return nil
	}
	return q.songs[0].Clone()
}

// AdvanceQueue removes and returns the current head, or nil if empty (spec
// §4.D advanceQueue — used by synchronized-mode track-ended handling and
// manual skips when repeat is off; repeat-all uses MoveCurrentToEnd).
func (q *Queue) AdvanceQueue() *models.Song {
	if len(q.songs) == 0 {
		return nil
	}
	removed := q.songs[0]
	q.songs = q.songs[1:]
	q.renumber()
	q.persistDelete(removed.ID)
	return removed
}

// MoveCurrentToEnd rotates the head to the tail, used by repeat-all in
// synchronized mode (spec §4.D moveCurrentToEnd).
func (q *Queue) MoveCurrentToEnd() {
	if len(q.songs) < 2 {
		return
	}
	head := q.songs[0]
	q.songs = append(q.songs[1:], head)
	q.renumber()
	q.persistReorder()
}

// Len reports the queue length.
func (q *Queue) Len() int {
	return len(q.songs)
}

// --- Independent-mode per-user cursor API (spec §3, §4.D) ---

// AdvanceUserPosition moves connId's cursor to the next index, returning
// the song now at that index, or nil if it has run off the end of the
// queue.
func (q *Queue) AdvanceUserPosition(connID string) *models.Song {
	next := q.cursors[connID] + 1
	return q.SetUserPosition(connID, next)
}

// SetUserPosition sets connId's cursor to i, clamped to the queue bounds by
// invariant (0 ≤ cursor < len, or absent). Returns the song at i, or nil if
// out of range (the cursor is then removed).
func (q *Queue) SetUserPosition(connID string, i int) *models.Song {
	if i < 0 || i >= len(q.songs) {
		delete(q.cursors, connID)
		return nil
	}
	q.cursors[connID] = i
	return q.songs[i].Clone()
}

// GetSongAtIndex returns the song at i, or nil if out of range.
func (q *Queue) GetSongAtIndex(i int) *models.Song {
	if i < 0 || i >= len(q.songs) {
		return nil
	}
	return q.songs[i].Clone()
}

// GetUserPosition returns connId's current cursor, or (-1, false) if absent.
func (q *Queue) GetUserPosition(connID string) (int, bool) {
	i, ok := q.cursors[connID]
	if !ok {
		return -1, false
	}
	return i, true
}

// RemoveUserPosition drops connId's cursor, called when the connection
// leaves.
func (q *Queue) RemoveUserPosition(connID string) {
	delete(q.cursors, connID)
}

// LoadFromDB restores the queue ordered by sort_order (spec §4.D
// loadFromDB), called on lobby registry cold start or lookup-miss.
func (q *Queue) LoadFromDB(ctx context.Context) error {
	if !q.store.IsAvailable() {
		return nil
	}
	songs, err := q.store.LoadQueue(ctx, q.lobbyID)
	if err != nil {
		return err
	}
	q.songs = songs
	return nil
}

func (q *Queue) indexOf(id string) int {
	for i, s := range q.songs {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func (q *Queue) renumber() {
	for i, s := range q.songs {
		s.SortOrder = i
	}
}

func (q *Queue) shiftCursorsAfterRemoval(removedIdx int) {
	for conn, idx := range q.cursors {
		switch {
		case idx == removedIdx:
			delete(q.cursors, conn)
		case idx > removedIdx:
			q.cursors[conn] = idx - 1
		}
	}
}

// persistInsert, persistDelete and persistReorder are fire-and-forget per
// spec §4.A: failures are logged but never surfaced to the client path.

func (q *Queue) persistInsert(song *models.Song) {
	if !q.store.IsAvailable() {
		return
	}
	go func() {
		if err := q.store.InsertSong(context.Background(), song); err != nil {
			logging.Warn().Err(err).Str("lobbyId", q.lobbyID).Msg("queue: persist insert failed")
		}
	}()
}

func (q *Queue) persistDelete(songID string) {
	if !q.store.IsAvailable() {
		return
	}
	go func() {
		if err := q.store.DeleteSong(context.Background(), songID); err != nil {
			logging.Warn().Err(err).Str("lobbyId", q.lobbyID).Msg("queue: persist delete failed")
		}
	}()
}

func (q *Queue) persistReorder() {
	if !q.store.IsAvailable() {
		return
	}
	ids := make([]string, len(q.songs))
	for i, s := range q.songs {
		ids[i] = s.ID
	}
	go func() {
		if err := q.store.ReplaceSortOrders(context.Background(), q.lobbyID, ids); err != nil {
			logging.Warn().Err(err).Str("lobbyId", q.lobbyID).Msg("queue: persist reorder failed")
		}
	}()
}

// Package playlist implements component H: CRUD and transactional
// reordering over user-owned playlists. Unlike Queue/Playback/Lobby,
// playlists have no in-memory owning actor — every op round-trips the
// store directly and degrades to syncerr.CapabilityUnavailable when it is
// absent (spec §4.H).
package playlist

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/syncwave/syncwave/internal/database"
	"github.com/syncwave/syncwave/internal/models"
	"github.com/syncwave/syncwave/internal/syncerr"
)

// Store is the Playlist Store component.
type Store struct {
	db *database.Store
}

// New wraps a relational store.
func New(db *database.Store) *Store {
	return &Store{db: db}
}

// Create makes a new, empty playlist owned by userID.
func (s *Store) Create(ctx context.Context, userID, name string) (*models.Playlist, error) {
	if !s.db.IsAvailable() {
		return nil, syncerr.CapabilityUnavailable("playlist store unavailable")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, syncerr.Validation("playlist name required")
	}
	p := &models.Playlist{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		CreatedAt: time.Now(),
	}
	if err := s.db.CreatePlaylist(ctx, p); err != nil {
		return nil, syncerr.Wrap(syncerr.KindUpstreamFailure, err, "failed to create playlist")
	}
	return p, nil
}

// Get loads a playlist with its songs.
func (s *Store) Get(ctx context.Context, id string) (*models.Playlist, error) {
	if !s.db.IsAvailable() {
		return nil, syncerr.CapabilityUnavailable("playlist store unavailable")
	}
	p, err := s.db.GetPlaylist(ctx, id)
	if err != nil {
		return nil, syncerr.NotFound("playlist not found")
	}
	return p, nil
}

// ListByUser returns every playlist owned by userID, without songs.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]*models.Playlist, error) {
	if !s.db.IsAvailable() {
		return nil, syncerr.CapabilityUnavailable("playlist store unavailable")
	}
	list, err := s.db.GetPlaylistsByUser(ctx, userID)
	if err != nil {
		return nil, syncerr.Wrap(syncerr.KindUpstreamFailure, err, "failed to list playlists")
	}
	return list, nil
}

// Rename updates a playlist's display name.
func (s *Store) Rename(ctx context.Context, id, name string) error {
	if !s.db.IsAvailable() {
		return syncerr.CapabilityUnavailable("playlist store unavailable")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return syncerr.Validation("playlist name required")
	}
	if err := s.db.RenamePlaylist(ctx, id, name); err != nil {
		return syncerr.Wrap(syncerr.KindUpstreamFailure, err, "failed to rename playlist")
	}
	return nil
}

// Delete removes a playlist and its songs.
func (s *Store) Delete(ctx context.Context, id string) error {
	if !s.db.IsAvailable() {
		return syncerr.CapabilityUnavailable("playlist store unavailable")
	}
	if err := s.db.DeletePlaylist(ctx, id); err != nil {
		return syncerr.Wrap(syncerr.KindUpstreamFailure, err, "failed to delete playlist")
	}
	return nil
}

// AddSongFields is the caller-supplied data for a new playlist entry.
type AddSongFields struct {
	URL       string
	Title     string
	Duration  float64
	Thumbnail string
}

// AddSong appends a song to the playlist's end.
func (s *Store) AddSong(ctx context.Context, playlistID string, f AddSongFields) (*models.PlaylistSong, error) {
	if !s.db.IsAvailable() {
		return nil, syncerr.CapabilityUnavailable("playlist store unavailable")
	}
	p, err := s.db.GetPlaylist(ctx, playlistID)
	if err != nil {
		return nil, syncerr.NotFound("playlist not found")
	}
	ps := &models.PlaylistSong{
		ID:         uuid.NewString(),
		PlaylistID: playlistID,
		URL:        f.URL,
		Title:      f.Title,
		Duration:   f.Duration,
		Thumbnail:  f.Thumbnail,
		SortOrder:  len(p.Songs),
		AddedAt:    time.Now(),
	}
	if err := s.db.AddPlaylistSong(ctx, ps); err != nil {
		return nil, syncerr.Wrap(syncerr.KindUpstreamFailure, err, "failed to add song")
	}
	return ps, nil
}

// RemoveSong deletes one song, then re-compacts sort_order over the
// remainder (spec §4.H). The delete and the re-compaction are separate
// store calls and do not share one transaction.
func (s *Store) RemoveSong(ctx context.Context, playlistID, songID string) error {
	if !s.db.IsAvailable() {
		return syncerr.CapabilityUnavailable("playlist store unavailable")
	}
	if err := s.db.RemovePlaylistSong(ctx, songID); err != nil {
		return syncerr.Wrap(syncerr.KindUpstreamFailure, err, "failed to remove song")
	}
	p, err := s.db.GetPlaylist(ctx, playlistID)
	if err != nil {
		return nil // nothing left to renumber
	}
	ids := make([]string, len(p.Songs))
	for i, song := range p.Songs {
		ids[i] = song.ID
	}
	if err := s.db.ReorderPlaylistSongs(ctx, playlistID, ids); err != nil {
		return syncerr.Wrap(syncerr.KindUpstreamFailure, err, "failed to renumber playlist")
	}
	return nil
}

// ReorderSong moves songID to newIndex within the playlist, rewriting
// sort_order for every entry in one transaction.
func (s *Store) ReorderSong(ctx context.Context, playlistID, songID string, newIndex int) error {
	if !s.db.IsAvailable() {
		return syncerr.CapabilityUnavailable("playlist store unavailable")
	}
	p, err := s.db.GetPlaylist(ctx, playlistID)
	if err != nil {
		return syncerr.NotFound("playlist not found")
	}
	ids := make([]string, 0, len(p.Songs))
	idx := -1
	for i, song := range p.Songs {
		if song.ID == songID {
			idx = i
			continue
		}
		ids = append(ids, song.ID)
	}
	if idx < 0 || newIndex < 0 || newIndex >= len(p.Songs) {
		return syncerr.Validation("invalid reorder index")
	}
	out := make([]string, 0, len(p.Songs))
	out = append(out, ids[:newIndex]...)
	out = append(out, songID)
	out = append(out, ids[newIndex:]...)
	if err := s.db.ReorderPlaylistSongs(ctx, playlistID, out); err != nil {
		return syncerr.Wrap(syncerr.KindUpstreamFailure, err, "failed to reorder playlist")
	}
	return nil
}

// Package models holds the shared domain types for lobbies, queues,
// playback state, the cached-song registry, chat and playlists. Components
// read and write these types directly instead of each owning a private copy.
package models

import "time"

// ListeningMode selects whether a lobby shares a single playhead or lets
// each member track their own position through the shared queue.
type ListeningMode string

const (
	ModeSynchronized ListeningMode = "synchronized"
	ModeIndependent  ListeningMode = "independent"
)

// UserMode distinguishes a member actively listening from one just browsing
// the lobby (e.g. reading chat without an open audio element).
type UserMode string

const (
	UserModeListening UserMode = "listening"
	UserModeLobby     UserMode = "lobby"
)

// RepeatMode is the playback repeat policy.
type RepeatMode string

const (
	RepeatOff RepeatMode = "off"
	RepeatAll RepeatMode = "all"
	RepeatOne RepeatMode = "one"
)

// SongStatus is the lifecycle state of a row in the cached-song registry.
type SongStatus string

const (
	SongPending     SongStatus = "pending"
	SongDownloading SongStatus = "downloading"
	SongReady       SongStatus = "ready"
	SongError       SongStatus = "error"
)

// Lobby is a named room grouping connections that share a queue and,
// depending on Mode, a playhead.
type Lobby struct {
	ID           string        `json:"id"`
	Name         string        `json:"name,omitempty"`
	HostID       string        `json:"hostId,omitempty"`
	Mode         ListeningMode `json:"listeningMode"`
	CreatedAt    time.Time     `json:"createdAt"`
	LastActivity time.Time     `json:"lastActivity"`
}

// User is a transient membership record, alive only while the connection
// that owns it is open.
type User struct {
	ConnID   string    `json:"connId"`
	LobbyID  string    `json:"lobbyId"`
	Username string    `json:"username"`
	Emoji    string    `json:"emoji,omitempty"`
	Mode     UserMode  `json:"mode"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Song is a queue entry: a source URL plus the metadata needed to render
// and order it.
type Song struct {
	ID        string    `json:"id"`
	LobbyID   string    `json:"-"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Duration  float64   `json:"duration"`
	AddedBy   string    `json:"addedBy,omitempty"`
	Thumbnail string    `json:"thumbnail,omitempty"`
	AddedAt   time.Time `json:"addedAt"`
	SortOrder int       `json:"-"`
}

// Clone returns a shallow copy, safe to hand to a caller outside the
// owning lobby's actor goroutine.
func (s *Song) Clone() *Song {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

// PlaybackState is the singleton per-lobby playback record.
type PlaybackState struct {
	LobbyID         string     `json:"lobbyId"`
	CurrentTrack    *Song      `json:"track"`
	Position        float64    `json:"position"`
	IsPlaying       bool       `json:"isPlaying"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	RepeatMode      RepeatMode `json:"repeatMode"`
	ShuffleEnabled  bool       `json:"shuffleEnabled"`
	ShuffledIndices []int      `json:"shuffledIndices,omitempty"`
	ShuffleIndex    int        `json:"shuffleIndex"`
}

// EffectivePosition returns the current playhead position, accounting for
// elapsed wall-clock time since StartedAt when playing.
func (p *PlaybackState) EffectivePosition(now time.Time) float64 {
	if p == nil {
		return 0
	}
	if p.IsPlaying && p.StartedAt != nil {
		return p.Position + now.Sub(*p.StartedAt).Seconds()
	}
	return p.Position
}

// CachedSong is the global registry row deduplicating downloads by source
// URL.
type CachedSong struct {
	ID           string     `json:"id"`
	URL          string     `json:"url"`
	Title        string     `json:"title"`
	Duration     float64    `json:"duration"`
	FilePath     string     `json:"-"`
	ThumbnailURL string     `json:"thumbnailUrl,omitempty"`
	Status       SongStatus `json:"status"`
	ErrorMessage string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// ChatMessage is a single chat entry within a lobby.
type ChatMessage struct {
	ID        string    `json:"id"`
	LobbyID   string    `json:"lobbyId"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Emoji     string    `json:"emoji,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Playlist is a user-owned named collection of songs, independent of any
// lobby.
type Playlist struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	Songs     []PlaylistSong `json:"songs,omitempty"`
}

// PlaylistSong is one entry within a Playlist.
type PlaylistSong struct {
	ID        string    `json:"id"`
	PlaylistID string   `json:"-"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Duration  float64   `json:"duration"`
	Thumbnail string    `json:"thumbnail,omitempty"`
	SortOrder int       `json:"-"`
	AddedAt   time.Time `json:"addedAt"`
}

// LobbySummary is the list-view projection returned by GET /api/lobbies.
type LobbySummary struct {
	ID            string        `json:"id"`
	Name          string        `json:"name,omitempty"`
	ListeningMode ListeningMode `json:"listeningMode"`
	UserCount     int           `json:"userCount"`
	SongCount     int           `json:"songCount"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// Package api implements component J, the HTTP surface, using chi the way
// the teacher's internal/api package does (ADR-0016 in the teacher repo).
package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/syncwave/syncwave/internal/auth"
	"github.com/syncwave/syncwave/internal/covercache"
	"github.com/syncwave/syncwave/internal/database"
	"github.com/syncwave/syncwave/internal/fetcher"
	"github.com/syncwave/syncwave/internal/lobby"
	"github.com/syncwave/syncwave/internal/logging"
	"github.com/syncwave/syncwave/internal/models"
	"github.com/syncwave/syncwave/internal/playlist"
	"github.com/syncwave/syncwave/internal/songcache"
	"github.com/syncwave/syncwave/internal/syncerr"
)

const version = "1.0.0"

// Handler holds references to every component the HTTP surface fronts.
type Handler struct {
	db        *database.Store
	lobbies   *lobby.Registry
	songs     *songcache.Pipeline
	covers    *covercache.Cache
	fetch     *fetcher.Fetcher
	playlists *playlist.Store
	dashboard *auth.BasicAuthManager
	startedAt time.Time
}

// NewHandler wires the component references this surface fronts.
func NewHandler(db *database.Store, lobbies *lobby.Registry, songs *songcache.Pipeline, covers *covercache.Cache, fetch *fetcher.Fetcher, playlists *playlist.Store, dashboard *auth.BasicAuthManager) *Handler {
	return &Handler{db: db, lobbies: lobbies, songs: songs, covers: covers, fetch: fetch, playlists: playlists, dashboard: dashboard, startedAt: time.Now()}
}

// Health reports process and database status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if !h.db.IsAvailable() {
		status = "degraded"
	}
	respondJSON(w, http.StatusOK, healthBody{
		Status:    status,
		Database:  h.db.IsAvailable(),
		Uptime:    time.Since(h.startedAt).String(),
		Timestamp: time.Now(),
	})
}

// Version reports the running build version.
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"version": version})
}

// Metadata resolves title/duration/thumbnail for a source URL without
// starting a download, used by the add-song UI to preview before queueing.
func (h *Handler) Metadata(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		respondError(w, http.StatusBadRequest, "validation", "q is required")
		return
	}
	meta, err := h.fetch.GetMetadata(r.Context(), q)
	if err != nil {
		respondError(w, http.StatusBadGateway, "upstream_failure", h.fetch.ParseError(err).Error())
		return
	}
	respondJSON(w, http.StatusOK, meta)
}

// Stream serves a cached, transcoded song with HTTP range support. If the
// song is not yet cached+ready it kicks off the background download and
// serves a live-transcoded stream in the meantime, so playback can start
// before the cache pipeline finishes (spec §4.J/§6).
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		respondError(w, http.StatusBadRequest, "validation", "q is required")
		return
	}
	row, ok := h.songs.GetCachedSong(r.Context(), q)
	if !ok || row.Status != models.SongReady {
		h.songs.StartDownload(r.Context(), q, nil, "")
		h.streamLive(w, r, q)
		return
	}

	f, _, err := h.songs.CreateCachedStream(row.FilePath)
	if err != nil {
		respondError(w, http.StatusNotFound, "not_found", "cached file missing")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "public, max-age=31536000")
	http.ServeContent(w, r, row.ID+".mp3", row.UpdatedAt, f)
}

// streamLive proxies a live fetch+transcode directly to w while the song
// cache pipeline fills in the background. Headers are flushed before the
// subprocess pipeline starts, so any failure past that point can only be
// logged, not turned into an error response. Canceling r.Context() (on
// client disconnect) kills the underlying subprocesses (spec §5).
func (h *Handler) streamLive(w http.ResponseWriter, r *http.Request, q string) {
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Transfer-Encoding", "chunked")
	w.WriteHeader(http.StatusOK)
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	if err := h.fetch.StreamLive(r.Context(), q, w); err != nil && r.Context().Err() == nil {
		logging.Error().Err(err).Str("q", q).Msg("api: live stream failed")
	}
}

// GetCover serves (or lazily fetches) a cached cover image.
func (h *Handler) GetCover(w http.ResponseWriter, r *http.Request, songID string) {
	fallback := r.URL.Query().Get("fallback")
	entry, ok := h.covers.GetCachedCover(songID)
	if !ok {
		if fallback == "" {
			respondError(w, http.StatusNotFound, "not_found", "cover not cached")
			return
		}
		fetched, err := h.covers.CacheCover(r.Context(), songID, fallback)
		if err != nil {
			respondError(w, http.StatusBadGateway, "upstream_failure", "failed to fetch cover")
			return
		}
		entry = fetched
	}
	w.Header().Set("Content-Type", entry.ContentType)
	http.ServeFile(w, r, entry.Path)
}

// ListLobbies returns the public lobby directory.
func (h *Handler) ListLobbies(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.lobbies.GetAllLobbies())
}

type createLobbyRequest struct {
	Name string `json:"name"`
	Mode string `json:"listeningMode"`
}

// CreateLobby creates a lobby over plain HTTP (as distinct from the
// websocket lobby:create event), returning its id for the caller to join.
func (h *Handler) CreateLobby(w http.ResponseWriter, r *http.Request) {
	var req createLobbyRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}
	mode := req.Mode
	if mode == "" {
		mode = "synchronized"
	}
	a, err := h.lobbies.CreateLobby(r.Context(), lobby.CreateOptions{Name: req.Name, Mode: models.ListeningMode(mode)})
	if err != nil {
		respondFromErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, a.Record())
}

// GetLobby returns a single lobby's public record.
func (h *Handler) GetLobby(w http.ResponseWriter, r *http.Request, id string) {
	a, ok := h.lobbies.GetLobby(r.Context(), id)
	if !ok {
		respondError(w, http.StatusNotFound, "not_found", "lobby not found")
		return
	}
	respondJSON(w, http.StatusOK, a.Record())
}

// --- Playlists ---

type createPlaylistRequest struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

func (h *Handler) CreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req createPlaylistRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}
	p, err := h.playlists.Create(r.Context(), req.UserID, req.Name)
	if err != nil {
		respondFromErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (h *Handler) GetPlaylist(w http.ResponseWriter, r *http.Request, id string) {
	p, err := h.playlists.Get(r.Context(), id)
	if err != nil {
		respondFromErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handler) ListPlaylists(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	list, err := h.playlists.ListByUser(r.Context(), userID)
	if err != nil {
		respondFromErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

type renamePlaylistRequest struct {
	Name string `json:"name"`
}

func (h *Handler) RenamePlaylist(w http.ResponseWriter, r *http.Request, id string) {
	var req renamePlaylistRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}
	if err := h.playlists.Rename(r.Context(), id, req.Name); err != nil {
		respondFromErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (h *Handler) DeletePlaylist(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.playlists.Delete(r.Context(), id); err != nil {
		respondFromErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addPlaylistSongRequest struct {
	URL       string  `json:"url"`
	Title     string  `json:"title"`
	Duration  float64 `json:"duration"`
	Thumbnail string  `json:"thumbnail"`
}

func (h *Handler) AddPlaylistSong(w http.ResponseWriter, r *http.Request, id string) {
	var req addPlaylistSongRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}
	song, err := h.playlists.AddSong(r.Context(), id, playlist.AddSongFields{URL: req.URL, Title: req.Title, Duration: req.Duration, Thumbnail: req.Thumbnail})
	if err != nil {
		respondFromErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, song)
}

func (h *Handler) RemovePlaylistSong(w http.ResponseWriter, r *http.Request, playlistID, songID string) {
	if err := h.playlists.RemoveSong(r.Context(), playlistID, songID); err != nil {
		respondFromErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Dashboard (Basic-auth guarded) ---

func (h *Handler) DashboardSummary(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"lobbies":  h.lobbies.GetAllLobbies(),
		"database": h.db.IsAvailable(),
	})
}

func (h *Handler) DashboardSongs(w http.ResponseWriter, r *http.Request) {
	songs, err := h.songs.GetAllSongs(r.Context())
	if err != nil {
		respondFromErr(w, syncerr.Wrap(syncerr.KindUpstreamFailure, err, "failed to list songs"))
		return
	}
	respondJSON(w, http.StatusOK, songs)
}

func decodeBody(r *http.Request, target interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

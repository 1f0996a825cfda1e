// Package songcache implements component B: the background fetch+transcode
// pipeline that turns a source url into a locally cached audio file,
// deduplicating concurrent requests and exposing a status FSM through the
// persistence store. Grounded on the teacher's worker-pool-over-a-store
// pattern, adapted to a one-row-per-url registry instead of per-session
// analytics rows.
package songcache

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/syncwave/syncwave/internal/database"
	"github.com/syncwave/syncwave/internal/fetcher"
	"github.com/syncwave/syncwave/internal/logging"
	"github.com/syncwave/syncwave/internal/metrics"
	"github.com/syncwave/syncwave/internal/models"
)

// ProgressEvent is emitted at least on each status change and on
// measurable download progress (spec §4.B), routed by the realtime gateway
// to the originating lobby's room.
type ProgressEvent struct {
	URL     string
	SongID  string
	LobbyID string
	Status  models.SongStatus
	Percent float64
	Error   string
}

// Pipeline is the Song Cache Pipeline.
type Pipeline struct {
	store   *database.Store
	fetch   *fetcher.Fetcher
	dir     string
	maxAge  time.Duration
	events  chan ProgressEvent

	mu       sync.Mutex
	inFlight map[string]bool // url -> download in progress

	// startMu serializes the check-existing-row-then-insert sequence in
	// StartDownload so concurrent callers for a brand-new url (e.g. two
	// lobbies queuing the same link at once) observe each other's insert
	// instead of both generating a fresh row (spec §4.B dedup contract).
	startMu sync.Mutex
}

// New creates a pipeline rooted at dir for transcoded output.
func New(store *database.Store, fetch *fetcher.Fetcher, dir string, maxAge time.Duration) *Pipeline {
	return &Pipeline{
		store:    store,
		fetch:    fetch,
		dir:      dir,
		maxAge:   maxAge,
		events:   make(chan ProgressEvent, 64),
		inFlight: make(map[string]bool),
	}
}

// Events returns the channel progress events are published on. The
// realtime gateway is expected to drain this for the lifetime of the
// process.
func (p *Pipeline) Events() <-chan ProgressEvent {
	return p.events
}

// StartDownload ensures a cached row exists for url and that a fetch is in
// flight unless one is already ready or downloading. Returns the registry
// id, or ("", false) if the store is unavailable or the pending row cannot
// be inserted (spec §4.B).
func (p *Pipeline) StartDownload(ctx context.Context, url string, hint *fetcher.Metadata, lobbyID string) (string, bool) {
	if !p.store.IsAvailable() {
		return "", false
	}

	p.startMu.Lock()
	defer p.startMu.Unlock()

	existing, err := p.store.GetCachedSongByURL(ctx, url)
	if err == nil {
		switch existing.Status {
		case models.SongReady:
			if fileExists(existing.FilePath) {
				return existing.ID, true
			}
			// ready row but file missing: fall through and restart.
		case models.SongDownloading:
			return existing.ID, true
		}
		// status == error, or ready-but-missing: reset and restart below.
		p.resetAndDownload(ctx, existing, hint, lobbyID)
		return existing.ID, true
	}
	if !errors.Is(err, sql.ErrNoRows) {
		logging.Error().Err(err).Str("url", url).Msg("songcache: lookup failed")
	}

	now := time.Now()
	row := &models.CachedSong{
		ID:        uuid.NewString(),
		URL:       url,
		Status:    models.SongPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if hint != nil {
		row.Title = hint.Title
		row.Duration = hint.DurationSecs
		row.ThumbnailURL = hint.ThumbnailURL
	}
	if err := p.store.UpsertCachedSong(ctx, row); err != nil {
		logging.Error().Err(err).Str("url", url).Msg("songcache: insert pending row failed")
		return "", false
	}

	p.launch(row, lobbyID)
	return row.ID, true
}

func (p *Pipeline) resetAndDownload(ctx context.Context, row *models.CachedSong, hint *fetcher.Metadata, lobbyID string) {
	row.Status = models.SongPending
	row.ErrorMessage = ""
	row.UpdatedAt = time.Now()
	if hint != nil {
		row.Title = hint.Title
		row.Duration = hint.DurationSecs
		row.ThumbnailURL = hint.ThumbnailURL
	}
	if err := p.store.UpsertCachedSong(ctx, row); err != nil {
		logging.Error().Err(err).Str("url", row.URL).Msg("songcache: reset row failed")
		return
	}
	p.launch(row, lobbyID)
}

// launch starts the async download+transcode for row, enforcing the
// at-most-one-active-fetcher-per-url dedup contract.
func (p *Pipeline) launch(row *models.CachedSong, lobbyID string) {
	p.mu.Lock()
	if p.inFlight[row.URL] {
		p.mu.Unlock()
		return
	}
	p.inFlight[row.URL] = true
	p.mu.Unlock()

	go p.run(row, lobbyID)
}

func (p *Pipeline) run(row *models.CachedSong, lobbyID string) {
	defer func() {
		p.mu.Lock()
		delete(p.inFlight, row.URL)
		p.mu.Unlock()
	}()

	ctx := context.Background()

	row.Status = models.SongDownloading
	row.UpdatedAt = time.Now()
	if err := p.store.SetSongStatus(ctx, row.ID, models.SongDownloading, "", row.UpdatedAt); err != nil {
		logging.Error().Err(err).Str("id", row.ID).Msg("songcache: status update failed")
	}
	metrics.SongDownloadsActive.Inc()
	defer metrics.SongDownloadsActive.Dec()
	metrics.DownloadTransitions.WithLabelValues(string(models.SongDownloading)).Inc()
	p.publish(ProgressEvent{URL: row.URL, SongID: row.ID, LobbyID: lobbyID, Status: models.SongDownloading})

	outputPath := filepath.Join(p.dir, row.ID+".mp3")
	progressCh := make(chan fetcher.Progress, 16)
	done := make(chan error, 1)

	go func() {
		done <- p.fetch.CreateTranscodedStream(ctx, row.URL, outputPath, progressCh)
	}()

	for prog := range progressCh {
		p.publish(ProgressEvent{URL: row.URL, SongID: row.ID, LobbyID: lobbyID, Status: models.SongDownloading, Percent: prog.Percent})
	}
	err := <-done

	now := time.Now()
	if err != nil {
		os.Remove(outputPath)
		if statusErr := p.store.SetSongStatus(ctx, row.ID, models.SongError, err.Error(), now); statusErr != nil {
			logging.Error().Err(statusErr).Str("id", row.ID).Msg("songcache: error-status update failed")
		}
		metrics.DownloadTransitions.WithLabelValues(string(models.SongError)).Inc()
		p.publish(ProgressEvent{URL: row.URL, SongID: row.ID, LobbyID: lobbyID, Status: models.SongError, Error: err.Error()})
		return
	}

	row.FilePath = outputPath
	row.Status = models.SongReady
	row.UpdatedAt = now
	if err := p.store.UpsertCachedSong(ctx, row); err != nil {
		logging.Error().Err(err).Str("id", row.ID).Msg("songcache: ready-row upsert failed")
	}
	metrics.DownloadTransitions.WithLabelValues(string(models.SongReady)).Inc()
	p.publish(ProgressEvent{URL: row.URL, SongID: row.ID, LobbyID: lobbyID, Status: models.SongReady, Percent: 100})
}

func (p *Pipeline) publish(ev ProgressEvent) {
	select {
	case p.events <- ev:
	default:
		logging.Warn().Str("url", ev.URL).Msg("songcache: progress event dropped, channel full")
	}
}

// GetCachedSong looks up the registry row for url.
func (p *Pipeline) GetCachedSong(ctx context.Context, url string) (*models.CachedSong, bool) {
	row, err := p.store.GetCachedSongByURL(ctx, url)
	if err != nil {
		return nil, false
	}
	return row, true
}

// CreateCachedStream opens the ready file at path, returning the handle and
// its size for Content-Length / range-serving by the HTTP surface.
func (p *Pipeline) CreateCachedStream(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

// CleanupOldSongs deletes cached rows whose updated_at is older than maxAge
// (default 7 days) and unlinks their files. Run periodically by the
// supervisor tree.
func (p *Pipeline) CleanupOldSongs(ctx context.Context) error {
	maxAge := p.maxAge
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	cutoff := time.Now().Add(-maxAge)
	stale, err := p.store.GetStaleSongs(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, row := range stale {
		if err := p.DeleteSong(ctx, row.ID); err != nil {
			logging.Error().Err(err).Str("id", row.ID).Msg("songcache: cleanup delete failed")
		}
	}
	return nil
}

// DeleteSong removes a cached row and unlinks its file.
func (p *Pipeline) DeleteSong(ctx context.Context, id string) error {
	row, err := p.store.GetCachedSong(ctx, id)
	if err == nil && row.FilePath != "" {
		os.Remove(row.FilePath)
	}
	return p.store.DeleteCachedSong(ctx, id)
}

// DeleteAllSongs truncates the registry and unlinks every file (the
// dashboard "clear cache" action).
func (p *Pipeline) DeleteAllSongs(ctx context.Context) error {
	all, err := p.store.GetAllCachedSongs(ctx)
	if err != nil {
		return err
	}
	for _, row := range all {
		if row.FilePath != "" {
			os.Remove(row.FilePath)
		}
	}
	return p.store.DeleteAllCachedSongs(ctx)
}

// GetAllSongs lists the registry for the admin dashboard.
func (p *Pipeline) GetAllSongs(ctx context.Context) ([]*models.CachedSong, error) {
	return p.store.GetAllCachedSongs(ctx)
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}

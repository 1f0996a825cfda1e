// Package playback implements component E: the per-lobby playback state
// machine. An Engine owns one lobby's models.PlaybackState and the
// shuffle permutation; like Queue, it is mutated only from within the
// owning lobby's actor goroutine and performs no locking of its own. Each
// state change is persisted by the Engine itself, fire-and-forget; the
// sync-loop ticker is driven by the caller.
package playback

import (
	"context"
	"math/rand"
	"time"

	"github.com/syncwave/syncwave/internal/database"
	"github.com/syncwave/syncwave/internal/logging"
	"github.com/syncwave/syncwave/internal/models"
)

// Engine is the playback state machine for one lobby.
type Engine struct {
	lobbyID string
	store   *database.Store
	state   models.PlaybackState
}

// New creates an Engine with an empty (no current track) state.
func New(lobbyID string, store *database.Store) *Engine {
	return &Engine{
		lobbyID: lobbyID,
		store:   store,
		state:   models.PlaybackState{LobbyID: lobbyID, RepeatMode: models.RepeatOff},
	}
}

// State returns a copy of the current playback state.
func (e *Engine) State() models.PlaybackState {
	return e.state
}

// EffectivePosition returns the playhead position as of now.
func (e *Engine) EffectivePosition(now time.Time) float64 {
	return e.state.EffectivePosition(now)
}

// Play starts track, or unpauses if track is already current (spec §4.E
// play). Returns true if the caller should (re)start the sync loop.
func (e *Engine) Play(track *models.Song, now time.Time) bool {
	if e.state.CurrentTrack != nil && track != nil && e.state.CurrentTrack.ID == track.ID {
		e.state.IsPlaying = true
		e.state.StartedAt = &now
		e.persist()
		return true
	}
	e.state.CurrentTrack = track
	e.state.Position = 0
	e.state.IsPlaying = true
	e.state.StartedAt = &now
	e.persist()
	return true
}

// Pause snapshots the effective position and marks playback stopped. The
// Engine has no sync loop; stopping it is left to the caller.
func (e *Engine) Pause(now time.Time) {
	e.state.Position = e.state.EffectivePosition(now)
	e.state.IsPlaying = false
	e.state.StartedAt = nil
	e.persist()
}

// Resume restarts the virtual clock from the current position. No-op if
// there is no current track.
func (e *Engine) Resume(now time.Time) bool {
	if e.state.CurrentTrack == nil {
		return false
	}
	e.state.IsPlaying = true
	e.state.StartedAt = &now
	e.persist()
	return true
}

// Seek clamps pos to >= 0 and, if playing, resets the virtual clock so the
// new position takes effect immediately.
func (e *Engine) Seek(pos float64, now time.Time) {
	if pos < 0 {
		pos = 0
	}
	e.state.Position = pos
	if e.state.IsPlaying {
		e.state.StartedAt = &now
	}
	e.persist()
}

// SetTrack replaces the current track, resetting position to 0 and
// optionally starting playback.
func (e *Engine) SetTrack(track *models.Song, autoPlay bool, now time.Time) {
	e.state.CurrentTrack = track
	e.state.Position = 0
	if autoPlay {
		e.state.IsPlaying = true
		e.state.StartedAt = &now
	} else {
		e.state.IsPlaying = false
		e.state.StartedAt = nil
	}
	e.persist()
}

// TrackEnded handles end-of-track per the repeat mode. If repeatMode=one,
// the track restarts in place; otherwise playback resets (isPlaying=false,
// position=0) and the caller (realtime gateway) is responsible for
// coordinating the next track via the queue engine.
func (e *Engine) TrackEnded(now time.Time) {
	if e.state.RepeatMode == models.RepeatOne {
		e.state.Position = 0
		e.state.IsPlaying = true
		e.state.StartedAt = &now
		e.persist()
		return
	}
	e.state.IsPlaying = false
	e.state.Position = 0
	e.state.StartedAt = nil
	e.persist()
}

// SetRepeatMode validates and sets the repeat mode.
func (e *Engine) SetRepeatMode(mode models.RepeatMode) bool {
	switch mode {
	case models.RepeatOff, models.RepeatAll, models.RepeatOne:
		e.state.RepeatMode = mode
		e.persist()
		return true
	default:
		return false
	}
}

// ToggleShuffle enables or disables shuffle. Enabling builds a Fisher-Yates
// permutation of [0, queueLen) and resets the cursor; disabling clears the
// permutation.
func (e *Engine) ToggleShuffle(enabled bool, queueLen int) {
	e.state.ShuffleEnabled = enabled
	if enabled {
		e.state.ShuffledIndices = fisherYates(queueLen)
		e.state.ShuffleIndex = 0
	} else {
		e.state.ShuffledIndices = nil
		e.state.ShuffleIndex = 0
	}
	e.persist()
}

// GetNextShuffleIndex advances the shuffle cursor modulo the permutation
// length, reshuffling on wrap (spec §4.E getNextShuffleIndex).
func (e *Engine) GetNextShuffleIndex(queueLen int) int {
	if len(e.state.ShuffledIndices) == 0 {
		e.state.ShuffledIndices = fisherYates(queueLen)
		e.state.ShuffleIndex = 0
	} else {
		e.state.ShuffleIndex++
		if e.state.ShuffleIndex >= len(e.state.ShuffledIndices) {
			e.state.ShuffledIndices = fisherYates(queueLen)
			e.state.ShuffleIndex = 0
		}
	}
	e.persist()
	if len(e.state.ShuffledIndices) == 0 {
		return -1
	}
	return e.state.ShuffledIndices[e.state.ShuffleIndex]
}

// UpdateShuffleForQueueChange regenerates the permutation when the queue
// length changes while shuffle is enabled.
func (e *Engine) UpdateShuffleForQueueChange(queueLen int) {
	if !e.state.ShuffleEnabled {
		return
	}
	if queueLen != len(e.state.ShuffledIndices) {
		e.state.ShuffledIndices = fisherYates(queueLen)
		e.state.ShuffleIndex = 0
		e.persist()
	}
}

func fisherYates(n int) []int {
	if n <= 0 {
		return nil
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := rand.Intn(i + 1)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx
}

// LoadFromDB restores playback state, forcing isPlaying=false to avoid a
// phantom playhead (spec §4.E initLobbyFromDB).
func (e *Engine) LoadFromDB(ctx context.Context) error {
	if !e.store.IsAvailable() {
		return nil
	}
	state, err := e.store.LoadPlaybackState(ctx, e.lobbyID)
	if err != nil {
		return err
	}
	e.state = *state
	return nil
}

func (e *Engine) persist() {
	if !e.store.IsAvailable() {
		return
	}
	snapshot := e.state
	go func() {
		if err := e.store.UpsertPlaybackState(context.Background(), &snapshot); err != nil {
			logging.Warn().Err(err).Str("lobbyId", e.lobbyID).Msg("playback: persist failed")
		}
	}()
}

// CleanupOrphanedPlayback is a package-level helper used by the lobby
// registry sweep: it has no engine-local state to act on, persistence
// cleanup of orphaned rows lives in internal/database and is invoked
// directly by the sweep against the list of valid ids.
func CleanupOrphanedPlayback(ctx context.Context, store *database.Store, validIDs map[string]bool, all []string) {
	for _, id := range all {
		if validIDs[id] {
			continue
		}
		if err := store.DeletePlaybackState(ctx, id); err != nil {
			logging.Warn().Err(err).Str("lobbyId", id).Msg("playback: orphan cleanup failed")
		}
	}
}

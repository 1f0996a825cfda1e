// Package lobby implements component F: lobby/user lifecycle, naming and
// the per-lobby actor that serializes Queue+Playback mutations (spec §5).
// Each lobby is owned by exactly one goroutine with a buffered mailbox,
// grounded on the teacher's channel-based hub pattern (internal/websocket)
// generalized from "one global loop" to "one loop per lobby".
package lobby

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/syncwave/syncwave/internal/config"
	"github.com/syncwave/syncwave/internal/database"
	"github.com/syncwave/syncwave/internal/logging"
	"github.com/syncwave/syncwave/internal/metrics"
	"github.com/syncwave/syncwave/internal/models"
	"github.com/syncwave/syncwave/internal/playback"
	"github.com/syncwave/syncwave/internal/queue"
	"github.com/syncwave/syncwave/internal/syncerr"
)

// Actor owns one lobby's mutable state. All access goes through Submit,
// which serializes closures onto the actor's mailbox; Queue and Playback
// Engine are therefore never touched concurrently (spec §5).
type Actor struct {
	record   models.Lobby
	queue    *queue.Queue
	playback *playback.Engine
	users    map[string]*models.User

	mailbox chan func()
	done    chan struct{}
}

// Queue exposes the actor's Queue Engine — callers must still route
// through Submit to mutate it; reads via the copy-returning methods are
// safe from any goroutine once captured inside a Submit closure.
func (a *Actor) Queue() *queue.Queue { return a.queue }

// Playback exposes the actor's Playback Engine under the same rule as Queue.
func (a *Actor) Playback() *playback.Engine { return a.playback }

// Record returns a copy of the lobby's persisted metadata.
func (a *Actor) Record() models.Lobby { return a.record }

// Users returns a copy of the current membership list.
func (a *Actor) Users() []*models.User {
	out := make([]*models.User, 0, len(a.users))
	for _, u := range a.users {
		cp := *u
		out = append(out, &cp)
	}
	return out
}

// Submit runs fn on the actor's own goroutine and blocks until it
// completes, giving callers a simple synchronous call shape while still
// guaranteeing serialization. fn must not block on external I/O while
// holding no other locks — long-running work should be dispatched via a
// goroutine from within fn (spec §5 "compute under lock -> release ->
// perform I/O").
func (a *Actor) Submit(fn func()) {
	result := make(chan struct{})
	a.mailbox <- func() {
		fn()
		close(result)
	}
	<-result
}

func (a *Actor) run() {
	for {
		select {
		case fn := <-a.mailbox:
			fn()
		case <-a.done:
			return
		}
	}
}

func (a *Actor) stop() {
	close(a.done)
}

// Registry is the Lobby Registry component.
type Registry struct {
	store  *database.Store
	policy config.LobbyPolicy

	mu      sync.RWMutex
	actors  map[string]*Actor
}

// New creates an empty registry.
func New(store *database.Store, policy config.LobbyPolicy) *Registry {
	return &Registry{
		store:  store,
		policy: policy,
		actors: make(map[string]*Actor),
	}
}

// CreateOptions are the caller-supplied fields for CreateLobby.
type CreateOptions struct {
	HostID   string
	CustomID string
	Mode     models.ListeningMode
	Name     string
}

// CreateLobby creates and starts a new lobby actor (spec §4.F createLobby).
func (r *Registry) CreateLobby(ctx context.Context, opts CreateOptions) (*Actor, error) {
	name := strings.TrimSpace(opts.Name)
	if len(name) > 50 {
		return nil, syncerr.Validation("lobby name too long")
	}
	if name != "" {
		if taken, _ := r.isNameTakenLocked(ctx, name, ""); taken {
			return nil, syncerr.Validation("lobby name already taken")
		}
	}

	id := opts.CustomID
	if id == "" {
		id = shortID()
	}
	mode := opts.Mode
	if mode == "" {
		mode = models.ModeSynchronized
	}

	now := time.Now()
	record := models.Lobby{
		ID:           id,
		HostID:       opts.HostID,
		Name:         name,
		Mode:         mode,
		CreatedAt:    now,
		LastActivity: now,
	}

	a := &Actor{
		record:   record,
		queue:    queue.New(id, r.store),
		playback: playback.New(id, r.store),
		users:    make(map[string]*models.User),
		mailbox:  make(chan func(), 64),
		done:     make(chan struct{}),
	}
	go a.run()

	r.mu.Lock()
	r.actors[id] = a
	r.mu.Unlock()

	metrics.ActiveLobbies.Inc()
	r.persistLobby(record)
	return a, nil
}

// GetLobby returns the actor for id, loading it from the store on a
// registry miss (spec §4.F getLobby DB fallback).
func (r *Registry) GetLobby(ctx context.Context, id string) (*Actor, bool) {
	r.mu.RLock()
	a, ok := r.actors[id]
	r.mu.RUnlock()
	if ok {
		return a, true
	}

	if !r.store.IsAvailable() {
		return nil, false
	}
	record, err := r.store.GetLobby(ctx, id)
	if err != nil {
		return nil, false
	}

	a = &Actor{
		record:   *record,
		queue:    queue.New(id, r.store),
		playback: playback.New(id, r.store),
		users:    make(map[string]*models.User),
		mailbox:  make(chan func(), 64),
		done:     make(chan struct{}),
	}
	if err := a.queue.LoadFromDB(ctx); err != nil {
		logging.Warn().Err(err).Str("lobbyId", id).Msg("lobby: queue restore failed")
	}
	if err := a.playback.LoadFromDB(ctx); err != nil {
		logging.Warn().Err(err).Str("lobbyId", id).Msg("lobby: playback restore failed")
	}
	go a.run()

	r.mu.Lock()
	r.actors[id] = a
	r.mu.Unlock()
	metrics.ActiveLobbies.Inc()
	return a, true
}

// JoinLobby adds a member to the lobby, creating it with the supplied id
// if it does not yet exist (spec §4.I on lobby:join / §4.F joinLobby).
func (r *Registry) JoinLobby(ctx context.Context, lobbyID, connID, username, emoji string) (*Actor, error) {
	a, ok := r.GetLobby(ctx, lobbyID)
	if !ok {
		var err error
		a, err = r.CreateLobby(ctx, CreateOptions{CustomID: lobbyID})
		if err != nil {
			return nil, err
		}
	}
	a.Submit(func() {
		a.users[connID] = &models.User{
			ConnID:   connID,
			LobbyID:  lobbyID,
			Username: username,
			Emoji:    emoji,
			Mode:     models.UserModeListening,
			JoinedAt: time.Now(),
		}
		a.record.LastActivity = time.Now()
	})
	r.touchActivity(lobbyID)
	return a, nil
}

// LeaveLobby removes connID from lobbyID, returning true if it was present.
func (r *Registry) LeaveLobby(lobbyID, connID string) bool {
	r.mu.RLock()
	a, ok := r.actors[lobbyID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	var existed bool
	a.Submit(func() {
		if _, present := a.users[connID]; present {
			delete(a.users, connID)
			existed = true
		}
		a.queue.RemoveUserPosition(connID)
		a.record.LastActivity = time.Now()
	})
	return existed
}

// RenameLobby validates and applies a new display name (spec §4.F
// renameLobby: non-empty, ≤50 chars, unique case-insensitive).
func (r *Registry) RenameLobby(ctx context.Context, lobbyID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return syncerr.Validation("lobby name required")
	}
	if len(name) > 50 {
		return syncerr.Validation("lobby name too long")
	}
	taken, err := r.isNameTakenLocked(ctx, name, lobbyID)
	if err != nil {
		return err
	}
	if taken {
		return syncerr.Validation("lobby name already taken")
	}

	r.mu.RLock()
	a, ok := r.actors[lobbyID]
	r.mu.RUnlock()
	if !ok {
		return syncerr.NotFound("lobby not found")
	}
	a.Submit(func() {
		a.record.Name = name
		a.record.LastActivity = time.Now()
	})
	if r.store.IsAvailable() {
		go func() {
			if err := r.store.RenameLobby(context.Background(), lobbyID, name); err != nil {
				logging.Warn().Err(err).Str("lobbyId", lobbyID).Msg("lobby: persist rename failed")
			}
		}()
	}
	return nil
}

// IsNameTaken reports whether name is already used by a live lobby other
// than excludeID.
func (r *Registry) IsNameTaken(ctx context.Context, name, excludeID string) bool {
	taken, _ := r.isNameTakenLocked(ctx, name, excludeID)
	return taken
}

func (r *Registry) isNameTakenLocked(ctx context.Context, name, excludeID string) (bool, error) {
	lower := strings.ToLower(name)

	r.mu.RLock()
	for id, a := range r.actors {
		if id == excludeID {
			continue
		}
		if strings.ToLower(a.record.Name) == lower && a.record.Name != "" {
			r.mu.RUnlock()
			return true, nil
		}
	}
	r.mu.RUnlock()

	if r.store.IsAvailable() {
		return r.store.IsNameTaken(ctx, name, excludeID)
	}
	return false, nil
}

// SetUserMode updates connID's mode within lobbyID.
func (r *Registry) SetUserMode(lobbyID, connID string, mode models.UserMode) bool {
	r.mu.RLock()
	a, ok := r.actors[lobbyID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	var found bool
	a.Submit(func() {
		if u, present := a.users[connID]; present {
			u.Mode = mode
			found = true
		}
	})
	return found
}

// UpdateUser patches username/emoji for connID within lobbyID.
func (r *Registry) UpdateUser(lobbyID, connID string, username, emoji *string) bool {
	r.mu.RLock()
	a, ok := r.actors[lobbyID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	var found bool
	a.Submit(func() {
		u, present := a.users[connID]
		if !present {
			return
		}
		found = true
		if username != nil {
			u.Username = *username
		}
		if emoji != nil {
			u.Emoji = *emoji
		}
	})
	return found
}

// GetAllLobbies returns a summary of every live lobby (spec §4.F
// getAllLobbies; shared by GET /api/lobbies).
func (r *Registry) GetAllLobbies() []models.LobbySummary {
	r.mu.RLock()
	actors := make([]*Actor, 0, len(r.actors))
	for _, a := range r.actors {
		actors = append(actors, a)
	}
	r.mu.RUnlock()

	out := make([]models.LobbySummary, 0, len(actors))
	for _, a := range actors {
		var summary models.LobbySummary
		a.Submit(func() {
			summary = models.LobbySummary{
				ID:            a.record.ID,
				Name:          a.record.Name,
				ListeningMode: a.record.Mode,
				UserCount:     len(a.users),
				SongCount:     a.queue.Len(),
				CreatedAt:     a.record.CreatedAt,
			}
		})
		out = append(out, summary)
	}
	return out
}

// DeleteLobby removes lobbyID's actor and its persisted state.
func (r *Registry) DeleteLobby(ctx context.Context, lobbyID string) {
	r.mu.Lock()
	a, ok := r.actors[lobbyID]
	delete(r.actors, lobbyID)
	r.mu.Unlock()
	if !ok {
		return
	}
	a.stop()
	metrics.ActiveLobbies.Dec()

	if r.store.IsAvailable() {
		if err := r.store.DeleteLobby(ctx, lobbyID); err != nil {
			logging.Warn().Err(err).Str("lobbyId", lobbyID).Msg("lobby: persist delete failed")
		}
	}
}

// CleanupEmptyLobbies evicts lobbies with zero members idle past the
// policy's IdleTimeout (spec §4.F eviction rule). Intended to be called by
// the supervisor's periodic sweep every SweepInterval.
func (r *Registry) CleanupEmptyLobbies(ctx context.Context) {
	r.mu.RLock()
	actors := make([]*Actor, 0, len(r.actors))
	for _, a := range r.actors {
		actors = append(actors, a)
	}
	r.mu.RUnlock()

	now := time.Now()
	for _, a := range actors {
		var evict bool
		var id string
		a.Submit(func() {
			id = a.record.ID
			evict = len(a.users) == 0 && now.Sub(a.record.LastActivity) > r.policy.IdleTimeout
		})
		if evict {
			r.DeleteLobby(ctx, id)
			logging.Info().Str("lobbyId", id).Msg("lobby: evicted idle empty lobby")
		}
	}
}

// ActiveLobbyIDs returns the set of lobby ids currently held by a live
// actor, used by the sweep to tell apart orphaned persisted rows from
// lobbies that are merely idle.
func (r *Registry) ActiveLobbyIDs() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make(map[string]bool, len(r.actors))
	for id := range r.actors {
		ids[id] = true
	}
	return ids
}

// Store exposes the underlying persistence store so the supervisor's sweep
// can drive cross-component cleanup (e.g. orphaned playback rows) without
// the registry itself needing to know about internal/playback.
func (r *Registry) Store() *database.Store {
	return r.store
}

func (r *Registry) touchActivity(lobbyID string) {
	if !r.store.IsAvailable() {
		return
	}
	go func() {
		if err := r.store.TouchLobbyActivity(context.Background(), lobbyID, time.Now()); err != nil {
			logging.Warn().Err(err).Str("lobbyId", lobbyID).Msg("lobby: touch activity failed")
		}
	}()
}

func (r *Registry) persistLobby(record models.Lobby) {
	if !r.store.IsAvailable() {
		return
	}
	go func() {
		if err := r.store.UpsertLobby(context.Background(), &record); err != nil {
			logging.Warn().Err(err).Str("lobbyId", record.ID).Msg("lobby: persist create failed")
		}
	}()
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

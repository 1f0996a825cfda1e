// Package gateway implements component I, the Realtime Gateway: the
// central message router mapping client events to Queue/Playback/Lobby/
// Chat/Playlist calls and fanning resulting state out to lobby-scoped
// rooms. It implements wsgateway.Router so internal/wsgateway stays
// transport-only and ignorant of the music-coordination domain.
package gateway

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/syncwave/syncwave/internal/chat"
	"github.com/syncwave/syncwave/internal/cache"
	"github.com/syncwave/syncwave/internal/covercache"
	"github.com/syncwave/syncwave/internal/fetcher"
	"github.com/syncwave/syncwave/internal/lobby"
	"github.com/syncwave/syncwave/internal/logging"
	"github.com/syncwave/syncwave/internal/metrics"
	"github.com/syncwave/syncwave/internal/models"
	"github.com/syncwave/syncwave/internal/queue"
	"github.com/syncwave/syncwave/internal/songcache"
	"github.com/syncwave/syncwave/internal/wsgateway"

	goccyjson "github.com/goccy/go-json"
)

// Gateway wires components A-H behind the realtime protocol.
type Gateway struct {
	lobbies    *lobby.Registry
	chatMod    *chat.Module
	fetch      *fetcher.Fetcher
	songs      *songcache.Pipeline
	covers     *covercache.Cache
	hub        *wsgateway.Hub
	playlistTTL *cache.LRU[[]string]

	mu        sync.Mutex
	syncLoops map[string]context.CancelFunc
}

// New creates a Gateway. SetHub must be called once the hub exists (the
// two are mutually referential: the hub dispatches to the gateway, the
// gateway broadcasts through the hub).
func New(lobbies *lobby.Registry, chatMod *chat.Module, fetch *fetcher.Fetcher, songs *songcache.Pipeline, covers *covercache.Cache) *Gateway {
	return &Gateway{
		lobbies:     lobbies,
		chatMod:     chatMod,
		fetch:       fetch,
		songs:       songs,
		covers:      covers,
		playlistTTL: cache.NewLRU[[]string](100, 5*time.Minute),
		syncLoops:   make(map[string]context.CancelFunc),
	}
}

// SetHub attaches the websocket hub used for broadcast/unicast.
func (g *Gateway) SetHub(hub *wsgateway.Hub) {
	g.hub = hub
}

// RunDownloadEventBridge drains songcache progress events and fans them
// out as download:status / download:progress to the originating lobby.
// Intended to run for the lifetime of the process (spec §4.B -> §4.I).
func (g *Gateway) RunDownloadEventBridge(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-g.songs.Events():
			if !ok {
				return
			}
			if ev.LobbyID == "" {
				continue
			}
			g.hub.Broadcast(ev.LobbyID, wsgateway.Message{Event: "download:status", Data: map[string]any{
				"url": ev.URL, "songId": ev.SongID, "status": ev.Status, "percent": ev.Percent, "error": ev.Error,
			}})
			if ev.Percent > 0 {
				g.hub.Broadcast(ev.LobbyID, wsgateway.Message{Event: "download:progress", Data: map[string]any{
					"url": ev.URL, "songId": ev.SongID, "percent": ev.Percent,
				}})
			}
		}
	}
}

// HandleDisconnect implements wsgateway.Router (spec §4.I item 11).
func (g *Gateway) HandleDisconnect(c *wsgateway.Client) {
	g.chatMod.RemoveConnection(c.ConnID())
	lobbyID := c.LobbyID()
	if lobbyID == "" {
		return
	}
	if g.lobbies.LeaveLobby(lobbyID, c.ConnID()) {
		g.hub.Broadcast(lobbyID, wsgateway.Message{Event: "user-left", Data: map[string]any{"connId": c.ConnID()}})
		g.broadcastUsers(lobbyID)
	}
}

// HandleMessage implements wsgateway.Router, dispatching by event name.
func (g *Gateway) HandleMessage(c *wsgateway.Client, msg wsgateway.Message) {
	metrics.GatewayMessagesHandled.WithLabelValues(msg.Event).Inc()
	ctx := context.Background()

	switch msg.Event {
	case "lobby:create":
		g.handleLobbyCreate(ctx, c, msg)
	case "lobby:join":
		g.handleLobbyJoin(ctx, c, msg)
	case "lobby:leave":
		g.handleLobbyLeave(c, msg)
	case "lobby:rename":
		g.handleLobbyRename(ctx, c, msg)
	case "mode:set":
		g.handleModeSet(c, msg)
	case "user:update":
		g.handleUserUpdate(c, msg)
	case "queue:add":
		g.handleQueueAdd(ctx, c, msg)
	case "queue:playlist-add":
		g.handlePlaylistAdd(ctx, c, msg)
	case "queue:remove":
		g.handleQueueRemove(c, msg)
	case "queue:reorder":
		g.handleQueueReorder(c, msg)
	case "queue:get":
		g.handleQueueGet(c, msg)
	case "queue:next":
		g.handleQueueNext(c, msg)
	case "playback:toggle":
		g.handlePlaybackToggle(c, msg)
	case "playback:play":
		g.handlePlaybackPlay(c, msg)
	case "playback:pause":
		g.handlePlaybackPause(c, msg)
	case "playback:resume":
		g.handlePlaybackResume(c, msg)
	case "playback:seek":
		g.handlePlaybackSeek(c, msg)
	case "playback:next":
		g.handlePlaybackNext(c, msg)
	case "playback:previous":
		g.handlePlaybackPrevious(c, msg)
	case "playback:ended":
		g.handlePlaybackEnded(c, msg)
	case "playback:setRepeat":
		g.handleSetRepeat(c, msg)
	case "playback:shuffle":
		g.handleShuffle(c, msg)
	case "playback:reportPosition":
		g.handleReportPosition(c, msg)
	case "playback:getState":
		g.handleGetState(c, msg)
	case "playback:getShuffleState":
		g.handleGetShuffleState(c, msg)
	case "chat:send":
		g.handleChatSend(c, msg)
	default:
		logging.Debug().Str("event", msg.Event).Msg("gateway: unknown event")
	}
}

// decode re-marshals an arbitrary event payload (already decoded as
// map[string]interface{}/string/etc by the websocket JSON reader) into a
// concrete struct. Cheap for the message volumes involved here and avoids
// a second, protocol-level schema.
func decode(data interface{}, target interface{}) bool {
	raw, err := goccyjson.Marshal(data)
	if err != nil {
		logging.Warn().Err(err).Msg("gateway: payload re-marshal failed")
		return false
	}
	if err := goccyjson.Unmarshal(raw, target); err != nil {
		logging.Warn().Err(err).Msg("gateway: payload decode failed")
		return false
	}
	return true
}

func (g *Gateway) sendError(c *wsgateway.Client, message string) {
	g.hub.Unicast(c, wsgateway.Message{Event: "lobby:error", Data: map[string]any{"message": message}})
}

func (g *Gateway) broadcastUsers(lobbyID string) {
	a, ok := g.lobbies.GetLobby(context.Background(), lobbyID)
	if !ok {
		return
	}
	g.hub.Broadcast(lobbyID, wsgateway.Message{Event: "users:updated", Data: a.Users()})
}

// --- Lobby handlers ---

type lobbyCreatePayload struct {
	Username      string `json:"username"`
	Emoji         string `json:"emoji"`
	ListeningMode string `json:"listeningMode"`
	Name          string `json:"name"`
}

func (g *Gateway) handleLobbyCreate(ctx context.Context, c *wsgateway.Client, msg wsgateway.Message) {
	var p lobbyCreatePayload
	if !decode(msg.Data, &p) {
		return
	}
	mode := models.ListeningMode(p.ListeningMode)
	if mode == "" {
		mode = models.ModeSynchronized
	}
	a, err := g.lobbies.CreateLobby(ctx, lobby.CreateOptions{Mode: mode, Name: p.Name})
	if err != nil {
		g.sendError(c, err.Error())
		return
	}
	g.joinActor(ctx, c, a, p.Username, p.Emoji)
	g.hub.Unicast(c, wsgateway.Message{Event: "lobby:created", Data: a.Record()})
}

type lobbyJoinPayload struct {
	LobbyID  string `json:"lobbyId"`
	Username string `json:"username"`
	Emoji    string `json:"emoji"`
}

func (g *Gateway) handleLobbyJoin(ctx context.Context, c *wsgateway.Client, msg wsgateway.Message) {
	var p lobbyJoinPayload
	if !decode(msg.Data, &p) {
		return
	}
	if c.LobbyID() != "" && c.LobbyID() != p.LobbyID {
		g.lobbies.LeaveLobby(c.LobbyID(), c.ConnID())
	}
	a, err := g.lobbies.JoinLobby(ctx, p.LobbyID, c.ConnID(), p.Username, p.Emoji)
	if err != nil {
		g.sendError(c, err.Error())
		return
	}
	g.joinActor(ctx, c, a, p.Username, p.Emoji)

	record := a.Record()
	var state models.PlaybackState
	var songs []*models.Song
	a.Submit(func() {
		state = a.Playback().State()
		songs = a.Queue().GetSongs()
	})

	payload := map[string]any{"lobby": record, "queue": songs, "shuffleEnabled": state.ShuffleEnabled}
	if record.Mode == models.ModeSynchronized {
		payload["playback"] = state
	}
	g.hub.Unicast(c, wsgateway.Message{Event: "lobby:joined", Data: payload})
	g.hub.Broadcast(p.LobbyID, wsgateway.Message{Event: "lobby:user-joined", Data: map[string]any{"connId": c.ConnID(), "username": p.Username}})
	g.broadcastUsers(p.LobbyID)
}

func (g *Gateway) joinActor(ctx context.Context, c *wsgateway.Client, a *lobby.Actor, username, emoji string) {
	g.hub.MoveRoom(c, a.Record().ID)
}

func (g *Gateway) handleLobbyLeave(c *wsgateway.Client, msg wsgateway.Message) {
	lobbyID := c.LobbyID()
	if lobbyID == "" {
		return
	}
	g.lobbies.LeaveLobby(lobbyID, c.ConnID())
	g.hub.Broadcast(lobbyID, wsgateway.Message{Event: "user-left", Data: map[string]any{"connId": c.ConnID()}})
	g.broadcastUsers(lobbyID)
}

type lobbyRenamePayload struct {
	LobbyID string `json:"lobbyId"`
	Name    string `json:"name"`
}

func (g *Gateway) handleLobbyRename(ctx context.Context, c *wsgateway.Client, msg wsgateway.Message) {
	var p lobbyRenamePayload
	if !decode(msg.Data, &p) {
		return
	}
	if err := g.lobbies.RenameLobby(ctx, p.LobbyID, p.Name); err != nil {
		g.sendError(c, err.Error())
		return
	}
	g.hub.Broadcast(p.LobbyID, wsgateway.Message{Event: "lobby:renamed", Data: map[string]any{"lobbyId": p.LobbyID, "name": p.Name}})
}

type modeSetPayload struct {
	LobbyID string `json:"lobbyId"`
	Mode    string `json:"mode"`
}

func (g *Gateway) handleModeSet(c *wsgateway.Client, msg wsgateway.Message) {
	var p modeSetPayload
	if !decode(msg.Data, &p) {
		return
	}
	lobbyID := firstNonEmpty(p.LobbyID, c.LobbyID())
	if !g.lobbies.SetUserMode(lobbyID, c.ConnID(), models.UserMode(p.Mode)) {
		return
	}
	g.hub.Broadcast(lobbyID, wsgateway.Message{Event: "mode:changed", Data: map[string]any{"connId": c.ConnID(), "mode": p.Mode}})
}

type userUpdatePayload struct {
	LobbyID  string  `json:"lobbyId"`
	Username *string `json:"username"`
	Emoji    *string `json:"emoji"`
}

func (g *Gateway) handleUserUpdate(c *wsgateway.Client, msg wsgateway.Message) {
	var p userUpdatePayload
	if !decode(msg.Data, &p) {
		return
	}
	lobbyID := firstNonEmpty(p.LobbyID, c.LobbyID())
	if !g.lobbies.UpdateUser(lobbyID, c.ConnID(), p.Username, p.Emoji) {
		return
	}
	g.broadcastUsers(lobbyID)
}

// --- Queue handlers ---

type queueAddPayload struct {
	LobbyID   string  `json:"lobbyId"`
	Query     string  `json:"query"`
	URL       string  `json:"url"`
	Title     string  `json:"title"`
	Duration  float64 `json:"duration"`
	AddedBy   string  `json:"addedBy"`
	Thumbnail string  `json:"thumbnail"`
}

func (g *Gateway) handleQueueAdd(ctx context.Context, c *wsgateway.Client, msg wsgateway.Message) {
	var p queueAddPayload
	if !decode(msg.Data, &p) {
		return
	}
	target := firstNonEmpty(p.URL, p.Query)
	if target == "" || p.LobbyID == "" {
		g.sendError(c, "queue:add requires a url")
		return
	}

	if isPlaylistURL(target) {
		items, err := g.fetch.GetPlaylistItems(ctx, target)
		if err != nil || len(items) == 0 {
			g.sendError(c, "failed to resolve playlist")
			return
		}
		g.playlistTTL.Add(target, items)
		g.hub.Unicast(c, wsgateway.Message{Event: "queue:playlist-confirm", Data: map[string]any{
			"url": target, "first": items[0], "total": len(items),
		}})
		return
	}

	a, ok := g.lobbies.GetLobby(ctx, p.LobbyID)
	if !ok {
		g.sendError(c, "lobby not found")
		return
	}

	title, duration, thumb := p.Title, p.Duration, p.Thumbnail
	if title == "" {
		if meta, err := g.fetch.GetMetadata(ctx, target); err == nil {
			title, duration, thumb = meta.Title, meta.DurationSecs, firstNonEmpty(thumb, meta.ThumbnailURL)
		}
	}

	var song *models.Song
	var wasEmpty bool
	a.Submit(func() {
		wasEmpty = a.Queue().Len() == 0
		song = a.Queue().AddSong(queue.AddFields{URL: target, Title: title, Duration: duration, AddedBy: p.AddedBy, Thumbnail: thumb})
	})

	g.hub.Broadcast(p.LobbyID, wsgateway.Message{Event: "queue:update", Data: map[string]any{"lobbyId": p.LobbyID, "songs": a.Queue().GetSongs()}})
	metrics.QueueDepth.WithLabelValues(p.LobbyID).Set(float64(a.Queue().Len()))

	g.songs.StartDownload(ctx, target, &fetcher.Metadata{Title: title, DurationSecs: duration, ThumbnailURL: thumb}, p.LobbyID)
	if thumb != "" {
		go g.covers.CacheCover(context.Background(), song.ID, thumb)
	}

	if wasEmpty && a.Record().Mode == models.ModeSynchronized {
		g.setTrackAndPlay(p.LobbyID, a, song)
	}
}

type queuePlaylistAddPayload struct {
	LobbyID string `json:"lobbyId"`
	URL     string `json:"url"`
	Mode    string `json:"mode"`
	AddedBy string `json:"addedBy"`
}

func (g *Gateway) handlePlaylistAdd(ctx context.Context, c *wsgateway.Client, msg wsgateway.Message) {
	var p queuePlaylistAddPayload
	if !decode(msg.Data, &p) {
		return
	}
	items, ok := g.playlistTTL.Get(p.URL)
	if !ok {
		g.sendError(c, "playlist resolution expired, retry queue:add")
		return
	}
	a, ok := g.lobbies.GetLobby(ctx, p.LobbyID)
	if !ok {
		g.sendError(c, "lobby not found")
		return
	}

	toAdd := items
	if p.Mode == "single" {
		toAdd = items[:1]
	}

	for i, itemURL := range toAdd {
		meta, err := g.fetch.GetMetadata(ctx, itemURL)
		title, duration, thumb := itemURL, 0.0, ""
		if err == nil {
			title, duration, thumb = meta.Title, meta.DurationSecs, meta.ThumbnailURL
		}

		var song *models.Song
		var wasEmpty bool
		a.Submit(func() {
			wasEmpty = a.Queue().Len() == 0
			song = a.Queue().AddSong(queue.AddFields{URL: itemURL, Title: title, Duration: duration, AddedBy: p.AddedBy, Thumbnail: thumb})
		})
		g.hub.Broadcast(p.LobbyID, wsgateway.Message{Event: "queue:update", Data: map[string]any{"lobbyId": p.LobbyID, "songs": a.Queue().GetSongs()}})
		g.songs.StartDownload(ctx, itemURL, &fetcher.Metadata{Title: title, DurationSecs: duration, ThumbnailURL: thumb}, p.LobbyID)

		if wasEmpty && a.Record().Mode == models.ModeSynchronized {
			g.setTrackAndPlay(p.LobbyID, a, song)
		}
		if p.Mode == "all" {
			g.hub.Broadcast(p.LobbyID, wsgateway.Message{Event: "queue:playlist-progress", Data: map[string]any{"current": i + 1, "total": len(toAdd), "title": title}})
		}
	}
	if p.Mode == "all" {
		g.hub.Broadcast(p.LobbyID, wsgateway.Message{Event: "queue:playlist-complete", Data: map[string]any{"added": len(toAdd)}})
	}
}

type queueRemovePayload struct {
	LobbyID string `json:"lobbyId"`
	SongID  string `json:"songId"`
}

func (g *Gateway) handleQueueRemove(c *wsgateway.Client, msg wsgateway.Message) {
	var p queueRemovePayload
	if !decode(msg.Data, &p) {
		return
	}
	a, ok := g.lobbies.GetLobby(context.Background(), p.LobbyID)
	if !ok {
		return
	}
	a.Submit(func() { a.Queue().RemoveSong(p.SongID) })
	g.hub.Broadcast(p.LobbyID, wsgateway.Message{Event: "queue:update", Data: map[string]any{"lobbyId": p.LobbyID, "songs": a.Queue().GetSongs()}})
}

type queueReorderPayload struct {
	LobbyID  string `json:"lobbyId"`
	SongID   string `json:"songId"`
	NewIndex int    `json:"newIndex"`
}

func (g *Gateway) handleQueueReorder(c *wsgateway.Client, msg wsgateway.Message) {
	var p queueReorderPayload
	if !decode(msg.Data, &p) {
		return
	}
	a, ok := g.lobbies.GetLobby(context.Background(), p.LobbyID)
	if !ok {
		return
	}
	a.Submit(func() { a.Queue().ReorderSong(p.SongID, p.NewIndex) })
	g.hub.Broadcast(p.LobbyID, wsgateway.Message{Event: "queue:update", Data: map[string]any{"lobbyId": p.LobbyID, "songs": a.Queue().GetSongs()}})
}

type lobbyIDOnly struct {
	LobbyID string `json:"lobbyId"`
}

func (g *Gateway) handleQueueGet(c *wsgateway.Client, msg wsgateway.Message) {
	lobbyID := stringOrField(msg.Data)
	a, ok := g.lobbies.GetLobby(context.Background(), lobbyID)
	if !ok {
		return
	}
	g.hub.Unicast(c, wsgateway.Message{Event: "queue:update", Data: map[string]any{"lobbyId": lobbyID, "songs": a.Queue().GetSongs()}})
}

func (g *Gateway) handleQueueNext(c *wsgateway.Client, msg wsgateway.Message) {
	lobbyID := stringOrField(msg.Data)
	a, ok := g.lobbies.GetLobby(context.Background(), lobbyID)
	if !ok {
		return
	}
	record := a.Record()

	switch {
	case record.Mode == models.ModeIndependent:
		var next *models.Song
		a.Submit(func() { next = a.Queue().AdvanceUserPosition(c.ConnID()) })
		g.hub.Unicast(c, wsgateway.Message{Event: "playback:sync", Data: map[string]any{"track": next}})
	default:
		var state models.PlaybackState
		var queueLen int
		a.Submit(func() { state = a.Playback().State(); queueLen = a.Queue().Len() })
		if state.ShuffleEnabled && queueLen >= 2 {
			var idx int
			a.Submit(func() { idx = a.Playback().GetNextShuffleIndex(queueLen) })
			var track *models.Song
			a.Submit(func() { track = a.Queue().GetSongAtIndex(idx) })
			g.setTrackAndPlay(lobbyID, a, track)
		} else {
			var head *models.Song
			a.Submit(func() { head = a.Queue().AdvanceQueue() })
			g.hub.Broadcast(lobbyID, wsgateway.Message{Event: "queue:update", Data: map[string]any{"lobbyId": lobbyID, "songs": a.Queue().GetSongs()}})
			var next *models.Song
			a.Submit(func() { next = a.Queue().GetCurrentSong() })
			_ = head
			g.setTrackAndPlay(lobbyID, a, next)
		}
	}
}

// --- Playback handlers ---

func (g *Gateway) handlePlaybackToggle(c *wsgateway.Client, msg wsgateway.Message) {
	lobbyID := stringOrField(msg.Data)
	a, ok := g.lobbies.GetLobby(context.Background(), lobbyID)
	if !ok {
		return
	}
	var state models.PlaybackState
	a.Submit(func() { state = a.Playback().State() })

	switch {
	case state.IsPlaying:
		a.Submit(func() { a.Playback().Pause(time.Now()) })
		g.stopSyncLoop(lobbyID)
	case state.CurrentTrack == nil:
		var first *models.Song
		a.Submit(func() { first = a.Queue().GetCurrentSong() })
		g.setTrackAndPlay(lobbyID, a, first)
		return
	default:
		a.Submit(func() { a.Playback().Resume(time.Now()) })
		g.ensureSyncLoop(lobbyID, a)
	}
	g.broadcastSyncNow(lobbyID, a)
}

type playbackTrackPayload struct {
	LobbyID string       `json:"lobbyId"`
	Track   *models.Song `json:"track"`
}

func (g *Gateway) handlePlaybackPlay(c *wsgateway.Client, msg wsgateway.Message) {
	var p playbackTrackPayload
	if !decode(msg.Data, &p) {
		return
	}
	a, ok := g.lobbies.GetLobby(context.Background(), p.LobbyID)
	if !ok {
		return
	}
	track := p.Track
	if track == nil {
		a.Submit(func() { track = a.Queue().GetCurrentSong() })
	}
	// Play unpauses in place when track is already current (spec §4.E
	// play) instead of resetting position to 0 the way a genuinely new
	// track (setTrackAndPlay/SetTrack) does.
	a.Submit(func() { a.Playback().Play(track, time.Now()) })
	if a.Record().Mode == models.ModeSynchronized {
		g.ensureSyncLoop(p.LobbyID, a)
	}
	g.broadcastSyncNow(p.LobbyID, a)
}

func (g *Gateway) handlePlaybackPause(c *wsgateway.Client, msg wsgateway.Message) {
	lobbyID := stringOrField(msg.Data)
	a, ok := g.lobbies.GetLobby(context.Background(), lobbyID)
	if !ok {
		return
	}
	a.Submit(func() { a.Playback().Pause(time.Now()) })
	g.stopSyncLoop(lobbyID)
	g.broadcastSyncNow(lobbyID, a)
}

func (g *Gateway) handlePlaybackResume(c *wsgateway.Client, msg wsgateway.Message) {
	lobbyID := stringOrField(msg.Data)
	a, ok := g.lobbies.GetLobby(context.Background(), lobbyID)
	if !ok {
		return
	}
	a.Submit(func() { a.Playback().Resume(time.Now()) })
	g.ensureSyncLoop(lobbyID, a)
	g.broadcastSyncNow(lobbyID, a)
}

type playbackSeekPayload struct {
	LobbyID  string  `json:"lobbyId"`
	Position float64 `json:"position"`
}

func (g *Gateway) handlePlaybackSeek(c *wsgateway.Client, msg wsgateway.Message) {
	var p playbackSeekPayload
	if !decode(msg.Data, &p) {
		return
	}
	a, ok := g.lobbies.GetLobby(context.Background(), p.LobbyID)
	if !ok {
		return
	}
	a.Submit(func() { a.Playback().Seek(p.Position, time.Now()) })
	g.broadcastSyncNow(p.LobbyID, a)
}

// handlePlaybackNext is a manual skip, distinct from queue:next: under
// repeat-all it rotates the current track to the end of the queue instead
// of removing it (spec §4.I item 8), mirroring the automatic path in
// handleTrackEnded rather than delegating to handleQueueNext's plain
// AdvanceQueue.
func (g *Gateway) handlePlaybackNext(c *wsgateway.Client, msg wsgateway.Message) {
	lobbyID := stringOrField(msg.Data)
	a, ok := g.lobbies.GetLobby(context.Background(), lobbyID)
	if !ok {
		return
	}
	record := a.Record()
	if record.Mode == models.ModeIndependent {
		g.handleQueueNext(c, msg)
		return
	}

	var state models.PlaybackState
	var queueLen int
	a.Submit(func() { state = a.Playback().State(); queueLen = a.Queue().Len() })

	switch {
	case state.ShuffleEnabled && queueLen >= 2:
		var idx int
		a.Submit(func() { idx = a.Playback().GetNextShuffleIndex(queueLen) })
		var track *models.Song
		a.Submit(func() { track = a.Queue().GetSongAtIndex(idx) })
		g.setTrackAndPlay(lobbyID, a, track)
	case state.RepeatMode == models.RepeatAll:
		var next *models.Song
		a.Submit(func() {
			a.Queue().MoveCurrentToEnd()
			next = a.Queue().GetCurrentSong()
		})
		g.hub.Broadcast(lobbyID, wsgateway.Message{Event: "queue:update", Data: map[string]any{"lobbyId": lobbyID, "songs": a.Queue().GetSongs()}})
		g.setTrackAndPlay(lobbyID, a, next)
	default:
		a.Submit(func() { a.Queue().AdvanceQueue() })
		g.hub.Broadcast(lobbyID, wsgateway.Message{Event: "queue:update", Data: map[string]any{"lobbyId": lobbyID, "songs": a.Queue().GetSongs()}})
		var next *models.Song
		a.Submit(func() { next = a.Queue().GetCurrentSong() })
		g.setTrackAndPlay(lobbyID, a, next)
	}
}

func (g *Gateway) handlePlaybackPrevious(c *wsgateway.Client, msg wsgateway.Message) {
	lobbyID := stringOrField(msg.Data)
	a, ok := g.lobbies.GetLobby(context.Background(), lobbyID)
	if !ok {
		return
	}
	a.Submit(func() {
		a.Playback().Seek(0, time.Now())
		a.Playback().Resume(time.Now())
	})
	g.ensureSyncLoop(lobbyID, a)
	g.broadcastSyncNow(lobbyID, a)
}

func (g *Gateway) handlePlaybackEnded(c *wsgateway.Client, msg wsgateway.Message) {
	lobbyID := firstNonEmpty(stringOrField(msg.Data), c.LobbyID())
	a, ok := g.lobbies.GetLobby(context.Background(), lobbyID)
	if !ok {
		return
	}
	g.handleTrackEnded(lobbyID, a, c.ConnID())
}

func (g *Gateway) handleTrackEnded(lobbyID string, a *lobby.Actor, independentConnID string) {
	record := a.Record()
	var state models.PlaybackState
	var endedTrack *models.Song
	a.Submit(func() {
		state = a.Playback().State()
		endedTrack = state.CurrentTrack
	})

	if record.Mode == models.ModeIndependent {
		if independentConnID != "" {
			var next *models.Song
			a.Submit(func() { next = a.Queue().AdvanceUserPosition(independentConnID) })
			_ = next
		}
		return
	}

	if state.RepeatMode == models.RepeatOne {
		a.Submit(func() { a.Playback().TrackEnded(time.Now()) })
		g.broadcastSyncNow(lobbyID, a)
		return
	}

	a.Submit(func() { a.Playback().TrackEnded(time.Now()) })
	g.hub.Broadcast(lobbyID, wsgateway.Message{Event: "playback:trackEnded", Data: map[string]any{"lobbyId": lobbyID, "endedTrack": endedTrack, "repeatMode": state.RepeatMode}})

	var next *models.Song
	if state.RepeatMode == models.RepeatAll {
		a.Submit(func() {
			a.Queue().MoveCurrentToEnd()
			next = a.Queue().GetCurrentSong()
		})
	} else {
		a.Submit(func() {
			a.Queue().AdvanceQueue()
			next = a.Queue().GetCurrentSong()
		})
	}
	g.hub.Broadcast(lobbyID, wsgateway.Message{Event: "queue:update", Data: map[string]any{"lobbyId": lobbyID, "songs": a.Queue().GetSongs()}})
	if next != nil {
		g.setTrackAndPlay(lobbyID, a, next)
	}
}

type setRepeatPayload struct {
	LobbyID string `json:"lobbyId"`
	Mode    string `json:"mode"`
}

func (g *Gateway) handleSetRepeat(c *wsgateway.Client, msg wsgateway.Message) {
	var p setRepeatPayload
	if !decode(msg.Data, &p) {
		return
	}
	a, ok := g.lobbies.GetLobby(context.Background(), p.LobbyID)
	if !ok {
		return
	}
	var applied bool
	a.Submit(func() { applied = a.Playback().SetRepeatMode(models.RepeatMode(p.Mode)) })
	if !applied {
		g.sendError(c, "invalid repeat mode")
		return
	}
	g.broadcastSyncNow(p.LobbyID, a)
}

type shufflePayload struct {
	LobbyID     string `json:"lobbyId"`
	Enabled     bool   `json:"enabled"`
	QueueLength int    `json:"queueLength"`
}

func (g *Gateway) handleShuffle(c *wsgateway.Client, msg wsgateway.Message) {
	var p shufflePayload
	if !decode(msg.Data, &p) {
		return
	}
	a, ok := g.lobbies.GetLobby(context.Background(), p.LobbyID)
	if !ok {
		return
	}
	a.Submit(func() { a.Playback().ToggleShuffle(p.Enabled, p.QueueLength) })
	g.hub.Broadcast(p.LobbyID, wsgateway.Message{Event: "playback:shuffle", Data: map[string]any{"lobbyId": p.LobbyID, "shuffleEnabled": p.Enabled}})
}

type reportPositionPayload struct {
	LobbyID        string  `json:"lobbyId"`
	ClientPosition float64 `json:"clientPosition"`
}

// handleReportPosition implements drift correction (spec §4.E): if the
// reported client position diverges from the authoritative effective
// position by more than 2 s, the reporting connection alone receives a
// unicast forceSync.
func (g *Gateway) handleReportPosition(c *wsgateway.Client, msg wsgateway.Message) {
	var p reportPositionPayload
	if !decode(msg.Data, &p) {
		return
	}
	a, ok := g.lobbies.GetLobby(context.Background(), p.LobbyID)
	if !ok {
		return
	}
	var state models.PlaybackState
	a.Submit(func() { state = a.Playback().State() })
	serverPos := state.EffectivePosition(time.Now())
	if abs(serverPos-p.ClientPosition) > 2 {
		g.hub.Unicast(c, wsgateway.Message{Event: "playback:forceSync", Data: syncPayload(p.LobbyID, state)})
	}
}

func (g *Gateway) handleGetState(c *wsgateway.Client, msg wsgateway.Message) {
	lobbyID := stringOrField(msg.Data)
	a, ok := g.lobbies.GetLobby(context.Background(), lobbyID)
	if !ok {
		return
	}
	var state models.PlaybackState
	a.Submit(func() { state = a.Playback().State() })
	g.hub.Unicast(c, wsgateway.Message{Event: "playback:sync", Data: syncPayload(lobbyID, state)})
}

func (g *Gateway) handleGetShuffleState(c *wsgateway.Client, msg wsgateway.Message) {
	lobbyID := stringOrField(msg.Data)
	a, ok := g.lobbies.GetLobby(context.Background(), lobbyID)
	if !ok {
		return
	}
	var state models.PlaybackState
	a.Submit(func() { state = a.Playback().State() })
	g.hub.Unicast(c, wsgateway.Message{Event: "playback:shuffle", Data: map[string]any{"lobbyId": lobbyID, "shuffleEnabled": state.ShuffleEnabled}})
}

// --- Chat (supplemental: component G needs a transport surface that
// spec.md's event list omits; grounded on the chat module's existence) ---

type chatSendPayload struct {
	LobbyID string `json:"lobbyId"`
	Content string `json:"content"`
}

func (g *Gateway) handleChatSend(c *wsgateway.Client, msg wsgateway.Message) {
	var p chatSendPayload
	if !decode(msg.Data, &p) {
		return
	}
	if g.chatMod.IsThrottled(c.ConnID()) {
		metrics.ChatThrottleDrops.Inc()
		g.hub.Unicast(c, wsgateway.Message{Event: "lobby:error", Data: map[string]any{"message": "chat rate limit exceeded"}})
		return
	}
	a, ok := g.lobbies.GetLobby(context.Background(), p.LobbyID)
	if !ok {
		return
	}
	var username, emoji string
	a.Submit(func() {
		for _, u := range a.Users() {
			if u.ConnID == c.ConnID() {
				username, emoji = u.Username, u.Emoji
			}
		}
	})
	m := g.chatMod.AddMessage(p.LobbyID, c.ConnID(), username, emoji, p.Content)
	g.hub.Broadcast(p.LobbyID, wsgateway.Message{Event: "chat:message", Data: m})
}

// --- shared helpers ---

func (g *Gateway) setTrackAndPlay(lobbyID string, a *lobby.Actor, track *models.Song) {
	a.Submit(func() { a.Playback().SetTrack(track, true, time.Now()) })
	if a.Record().Mode == models.ModeSynchronized {
		g.ensureSyncLoop(lobbyID, a)
	}
	g.broadcastSyncNow(lobbyID, a)
}

func (g *Gateway) broadcastSyncNow(lobbyID string, a *lobby.Actor) {
	if a.Record().Mode != models.ModeSynchronized {
		return
	}
	var state models.PlaybackState
	a.Submit(func() { state = a.Playback().State() })
	g.broadcastSync(lobbyID, state)
}

func (g *Gateway) broadcastSync(lobbyID string, state models.PlaybackState) {
	g.hub.Broadcast(lobbyID, wsgateway.Message{Event: "playback:sync", Data: syncPayload(lobbyID, state)})
}

func syncPayload(lobbyID string, state models.PlaybackState) map[string]any {
	now := time.Now()
	return map[string]any{
		"type":       "sync",
		"lobbyId":    lobbyID,
		"track":      state.CurrentTrack,
		"position":   state.EffectivePosition(now),
		"isPlaying":  state.IsPlaying,
		"repeatMode": state.RepeatMode,
		"serverTime": now,
	}
}

func (g *Gateway) ensureSyncLoop(lobbyID string, a *lobby.Actor) {
	g.mu.Lock()
	if _, exists := g.syncLoops[lobbyID]; exists {
		g.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	g.syncLoops[lobbyID] = cancel
	g.mu.Unlock()
	go g.runSyncLoop(ctx, lobbyID, a)
}

func (g *Gateway) stopSyncLoop(lobbyID string) {
	g.mu.Lock()
	cancel, ok := g.syncLoops[lobbyID]
	if ok {
		delete(g.syncLoops, lobbyID)
	}
	g.mu.Unlock()
	if ok {
		cancel()
	}
}

// runSyncLoop is the "at most one loop per lobby" periodic broadcaster
// (spec §4.E): every 1000 ms it reports position and detects track end.
func (g *Gateway) runSyncLoop(ctx context.Context, lobbyID string, a *lobby.Actor) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var state models.PlaybackState
			a.Submit(func() { state = a.Playback().State() })
			if !state.IsPlaying {
				g.stopSyncLoop(lobbyID)
				return
			}
			pos := state.EffectivePosition(time.Now())
			g.broadcastSync(lobbyID, state)
			if state.CurrentTrack != nil && pos >= state.CurrentTrack.Duration {
				g.handleTrackEnded(lobbyID, a, "")
			}
		}
	}
}

func isPlaylistURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Query().Get("list") != ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func stringOrField(data interface{}) string {
	if s, ok := data.(string); ok {
		return s
	}
	var p lobbyIDOnly
	decode(data, &p)
	return p.LobbyID
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

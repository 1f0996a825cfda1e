// Package main is the entry point for the syncwave server.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered koanf load (defaults, config.yaml, environment)
//  2. Logging: global zerolog logger
//  3. Persistence: DuckDB-backed store, degrading to memory-only if unreachable
//  4. Domain components: lobby registry, chat, playlists, song cache pipeline,
//     cover cache, realtime gateway
//  5. Transport: websocket hub and chi HTTP router
//  6. Supervisor tree: every long-running loop supervised under suture
//  7. Graceful shutdown on SIGINT/SIGTERM
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/syncwave/syncwave/internal/api"
	"github.com/syncwave/syncwave/internal/auth"
	"github.com/syncwave/syncwave/internal/chat"
	"github.com/syncwave/syncwave/internal/config"
	"github.com/syncwave/syncwave/internal/covercache"
	"github.com/syncwave/syncwave/internal/database"
	"github.com/syncwave/syncwave/internal/fetcher"
	"github.com/syncwave/syncwave/internal/gateway"
	"github.com/syncwave/syncwave/internal/lobby"
	"github.com/syncwave/syncwave/internal/logging"
	"github.com/syncwave/syncwave/internal/playlist"
	"github.com/syncwave/syncwave/internal/songcache"
	"github.com/syncwave/syncwave/internal/supervisor"
	"github.com/syncwave/syncwave/internal/wsgateway"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "syncwave: failed to load configuration:", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logging.Info().Msg("starting syncwave with supervisor tree")

	store := database.Open(cfg.Database)
	defer store.Close()
	if !store.IsAvailable() {
		logging.Warn().Msg("database unavailable, running in degraded memory-only mode")
	}

	lobbyPolicy := config.DefaultLobbyPolicy()
	lobbies := lobby.New(store, lobbyPolicy)
	chatMod := chat.New(store)
	playlists := playlist.New(store)

	fetch := fetcher.New(os.Getenv("YTDLP_PATH"), os.Getenv("FFMPEG_PATH"))

	covers, err := covercache.New(cfg.Covers.Dir, cfg.Covers.FetchTimeout)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize cover cache")
	}

	songs := songcache.New(store, fetch, cfg.SongCache.Path, cfg.SongCache.MaxAge)

	dashboard, err := auth.NewOrGenerated(cfg.Security.DashboardUser, cfg.Security.DashboardPass)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize dashboard auth")
	}

	// gw and hub reference each other, so gw is built first with no hub and
	// wired in once the hub exists.
	gw := gateway.New(lobbies, chatMod, fetch, songs, covers)
	hub := wsgateway.NewHub(gw)
	gw.SetHub(hub)

	handler := api.NewHandler(store, lobbies, songs, covers, fetch, playlists, dashboard)
	router := api.NewRouter(handler, hub, gw, cfg.Server.FrontendURL)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddDataService(supervisor.NewLobbySweepService(lobbies, lobbyPolicy.SweepInterval))
	tree.AddDataService(supervisor.NewSongCacheSweepService(songs, cfg.SongCache.SweepEvery))
	tree.AddMessagingService(supervisor.NewHubService(hub))
	tree.AddMessagingService(supervisor.NewDownloadBridgeService(gw))
	tree.AddAPIService(supervisor.NewHTTPServerService(httpServer, cfg.Server.ShutdownTimeout))

	logging.Info().Int("port", cfg.Server.Port).Msg("syncwave listening")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := tree.Serve(ctx); err != nil && err != context.Canceled {
		logging.Fatal().Err(err).Msg("supervisor tree exited with error")
	}

	logging.Info().Msg("syncwave shut down cleanly")
}

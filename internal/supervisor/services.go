package supervisor

import (
	"context"
	"net/http"
	"time"

	"github.com/syncwave/syncwave/internal/gateway"
	"github.com/syncwave/syncwave/internal/lobby"
	"github.com/syncwave/syncwave/internal/logging"
	"github.com/syncwave/syncwave/internal/playback"
	"github.com/syncwave/syncwave/internal/songcache"
	"github.com/syncwave/syncwave/internal/wsgateway"
)

// intervalService runs fn on a fixed cadence until ctx is canceled,
// mirroring the teacher's periodic-sweep services.
type intervalService struct {
	name     string
	interval time.Duration
	fn       func(context.Context) error
}

// NewLobbySweepService runs the lobby idle-eviction sweep every interval,
// then garbage-collects any persisted playback row whose lobby no longer
// has a live actor (spec §4.F sweep step).
func NewLobbySweepService(reg *lobby.Registry, interval time.Duration) *intervalService {
	return &intervalService{
		name:     "lobby-sweep",
		interval: interval,
		fn: func(ctx context.Context) error {
			reg.CleanupEmptyLobbies(ctx)

			store := reg.Store()
			if !store.IsAvailable() {
				return nil
			}
			all, err := store.GetAllPlaybackLobbyIDs(ctx)
			if err != nil {
				logging.Warn().Err(err).Msg("supervisor: list playback rows failed")
				return nil
			}
			playback.CleanupOrphanedPlayback(ctx, store, reg.ActiveLobbyIDs(), all)
			return nil
		},
	}
}

// NewSongCacheSweepService runs the song-cache TTL sweep every interval.
func NewSongCacheSweepService(pipeline *songcache.Pipeline, interval time.Duration) *intervalService {
	return &intervalService{
		name:     "songcache-sweep",
		interval: interval,
		fn: func(ctx context.Context) error {
			if err := pipeline.CleanupOldSongs(ctx); err != nil {
				logging.Warn().Err(err).Msg("supervisor: song cache sweep failed")
			}
			return nil
		},
	}
}

func (s *intervalService) String() string { return s.name }

func (s *intervalService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.fn(ctx); err != nil {
				logging.Warn().Err(err).Str("service", s.name).Msg("supervisor: interval service error")
			}
		}
	}
}

// HubService runs the websocket hub's dispatch loop.
type HubService struct {
	hub *wsgateway.Hub
}

// NewHubService wraps the hub for supervision.
func NewHubService(hub *wsgateway.Hub) *HubService { return &HubService{hub: hub} }

func (s *HubService) String() string { return "websocket-hub" }

func (s *HubService) Serve(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(done)
	}()
	s.hub.Run(done)
	return nil
}

// DownloadBridgeService drains the song cache pipeline's events into
// realtime broadcasts via the gateway.
type DownloadBridgeService struct {
	gw *gateway.Gateway
}

// NewDownloadBridgeService wraps the gateway's download-event bridge.
func NewDownloadBridgeService(gw *gateway.Gateway) *DownloadBridgeService {
	return &DownloadBridgeService{gw: gw}
}

func (s *DownloadBridgeService) String() string { return "download-event-bridge" }

func (s *DownloadBridgeService) Serve(ctx context.Context) error {
	s.gw.RunDownloadEventBridge(ctx)
	return nil
}

// HTTPServer is the subset of *http.Server this service depends on,
// adapted from the teacher's HTTPServerService.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServerService translates a blocking *http.Server into a
// context-aware suture.Service, grounded on the teacher's
// internal/supervisor/services/http_service.go.
type HTTPServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPServerService wraps server for supervision with a bounded
// graceful-shutdown window.
func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{server: server, shutdownTimeout: shutdownTimeout}
}

func (s *HTTPServerService) String() string { return "http-server" }

func (s *HTTPServerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return ctx.Err()
	}
}

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/syncwave/syncwave/internal/gateway"
	"github.com/syncwave/syncwave/internal/logging"
	"github.com/syncwave/syncwave/internal/metrics"
	"github.com/syncwave/syncwave/internal/wsgateway"
)

// NewRouter assembles the chi router for the whole HTTP surface, mirroring
// the teacher's SetupChi layering of global middleware, per-route-group
// rate limiting and a dedicated auth-guarded admin group. frontendURL is
// the single browser origin allowed to make cross-origin requests (both
// plain CORS and the websocket upgrade); an empty value means no browser
// client is configured and every cross-origin request is rejected.
func NewRouter(h *Handler, hub *wsgateway.Hub, gw *gateway.Gateway, frontendURL string) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			return frontendURL != "" && origin == frontendURL
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     allowedOriginChecker(frontendURL),
	}

	r.Get("/health", h.Health)
	r.Get("/api/version", h.Version)

	r.Route("/api", func(r chi.Router) {
		r.Use(httprate.LimitByRealIP(120, time.Minute))

		r.Get("/metadata", h.Metadata)
		r.Get("/stream", h.Stream)
		r.Get("/lobbies", h.ListLobbies)
		r.Post("/lobbies", h.CreateLobby)
		r.Get("/lobbies/{id}", func(w http.ResponseWriter, r *http.Request) { h.GetLobby(w, r, chi.URLParam(r, "id")) })
		r.Get("/covers/{id}", func(w http.ResponseWriter, r *http.Request) { h.GetCover(w, r, chi.URLParam(r, "id")) })

		r.Post("/playlists", h.CreatePlaylist)
		r.Get("/playlists", h.ListPlaylists)
		r.Get("/playlists/{id}", func(w http.ResponseWriter, r *http.Request) { h.GetPlaylist(w, r, chi.URLParam(r, "id")) })
		r.Patch("/playlists/{id}", func(w http.ResponseWriter, r *http.Request) { h.RenamePlaylist(w, r, chi.URLParam(r, "id")) })
		r.Delete("/playlists/{id}", func(w http.ResponseWriter, r *http.Request) { h.DeletePlaylist(w, r, chi.URLParam(r, "id")) })
		r.Post("/playlists/{id}/songs", func(w http.ResponseWriter, r *http.Request) { h.AddPlaylistSong(w, r, chi.URLParam(r, "id")) })
		r.Delete("/playlists/{id}/songs/{songId}", func(w http.ResponseWriter, r *http.Request) {
			h.RemovePlaylistSong(w, r, chi.URLParam(r, "id"), chi.URLParam(r, "songId"))
		})
	})

	r.Route("/api/dashboard", func(r chi.Router) {
		r.Use(basicAuthMiddleware(h.dashboard))
		r.Get("/summary", h.DashboardSummary)
		r.Get("/songs", h.DashboardSongs)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.With(httprate.LimitByRealIP(120, time.Minute)).Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		connID := r.URL.Query().Get("connId")
		if connID == "" {
			connID = chimiddleware.GetReqID(r.Context())
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Error().Err(err).Msg("api: websocket upgrade failed")
			return
		}
		client := wsgateway.NewClient(hub, conn, connID)
		hub.Register(client)
		client.Start()
	})

	return r
}

// allowedOriginChecker builds the websocket upgrader's CheckOrigin,
// consistent with the CORS policy above: same-origin requests (no Origin
// header, e.g. non-browser clients) are always allowed, and a browser
// Origin is allowed only if it matches frontendURL exactly. With no
// frontendURL configured, every browser Origin is rejected.
func allowedOriginChecker(frontendURL string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return frontendURL != "" && origin == frontendURL
	}
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		metrics.HTTPRequestDuration.WithLabelValues(r.URL.Path, r.Method, http.StatusText(sw.status)).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

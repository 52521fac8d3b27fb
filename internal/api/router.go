package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"assistant/internal/attachments"
	"assistant/internal/chat"
	"assistant/internal/config"
	"assistant/internal/db"
	"assistant/internal/storage"
	"assistant/internal/ws"
)

const (
	jsonBodyMaxBytes = 1 << 20

	sessionCreateLimit = 10
	messageSendLimit   = 30
	uploadLimit        = 20
	wsUpgradeLimit     = 10
	rateLimitWindow    = time.Minute
)

type Deps struct {
	Config     *config.Config
	Database   *db.DB
	Objects    PublicObjects
	Buckets    attachments.BucketEnsurer
	BucketSpec storage.BucketSpec
	Sessions   *chat.Manager
	Hub        *ws.Hub
}

type Server struct {
	router *chi.Mux
	hub    *ws.Hub
}

func NewServer(deps Deps) (*Server, error) {
	cfg := deps.Config

	ipResolver, err := NewClientIPResolver(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("configuring client IP resolver: %w", err)
	}

	healthHandler := NewHealthHandler(deps.Database, deps.Sessions)
	serverInfoHandler := NewServerInfoHandler(cfg)
	mediaHandler := NewMediaHandler(deps.Objects)
	bucketHandler := NewBucketHandler(deps.Buckets, deps.BucketSpec)
	sessionHandler := NewSessionHandler(deps.Sessions)
	messageHandler := NewMessageHandler()
	attachmentHandler := NewAttachmentHandler(int64(cfg.Storage.UploadMaxBytes))
	wsHandler := NewWebSocketHandler(deps.Hub, cfg.Server.AllowedOrigins)

	r := chi.NewRouter()
	r.Use(slogRequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(cfg.Server.AllowedOrigins))
	r.Use(securityHeadersMiddleware)

	r.Get("/health", healthHandler.Check)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/storage/v1/object/public/{bucket}/*", mediaHandler.GetObject)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/server/info", serverInfoHandler.GetInfo)
		r.Post("/storage/buckets/ensure", bucketHandler.Ensure)

		r.With(RateLimitMiddleware(ipResolver, sessionCreateLimit, rateLimitWindow)).Post("/sessions", sessionHandler.Create)

		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Use(RequireSession(deps.Sessions))

			r.Get("/", sessionHandler.Get)
			r.Delete("/", sessionHandler.Delete)

			r.Get("/messages", messageHandler.List)
			r.With(
				maxBodySizeMiddleware(jsonBodyMaxBytes),
				RateLimitMiddleware(ipResolver, messageSendLimit, rateLimitWindow),
			).Post("/messages", messageHandler.Send)

			r.Get("/attachments", attachmentHandler.List)
			r.With(RateLimitMiddleware(ipResolver, uploadLimit, rateLimitWindow)).Post("/attachments", attachmentHandler.Upload)
			r.Delete("/attachments", attachmentHandler.Clear)
			r.Delete("/attachments/{index}", attachmentHandler.Remove)

			r.With(RateLimitMiddleware(ipResolver, wsUpgradeLimit, rateLimitWindow)).Get("/ws", wsHandler.ServeWS)
		})
	})

	return &Server{
		router: r,
		hub:    deps.Hub,
	}, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) Shutdown() {
	if s.hub != nil {
		s.hub.Shutdown()
	}
}

// corsMiddleware allows the configured origins plus loopback origins used
// during local development.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowOriginFunc: func(origin string) bool {
			if isLoopbackOrigin(origin) {
				return true
			}
			for _, allowed := range allowedOrigins {
				if originMatchesAllowed(origin, allowed) {
					return true
				}
			}
			return false
		},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	})
	return c.Handler
}

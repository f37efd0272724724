package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"dmchat/internal/configs"
	"dmchat/internal/metrics"
	"dmchat/internal/pkg/auth/jwt"
	"dmchat/internal/pkg/limiter"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/resp"
)

// SessionTokenHeader carries the session token on signup and login responses.
const SessionTokenHeader = "X-Session-Token"

// NewUpgrader returns the websocket upgrader for the gateway. Outside development only
// the configured origins may connect.
func NewUpgrader(cfg *configs.AppConfig) websocket.Upgrader {
	allowedOrigins := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if cfg.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if origin == "" {
				// Non-browser clients send no Origin.
				return true
			}
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}
}

// Router builds the HTTP routing table. The rate limiters' sweepers stop with ctx.
func Router(ctx context.Context, deps *AppDeps) http.Handler {
	handshakeLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(deps.Config.HandshakeRate), deps.Config.HandshakeBurst)
	sendLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(deps.Config.MessageSendRate), deps.Config.MessageSendBurst)

	r := chi.NewRouter()

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{SessionTokenHeader},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]any{
			"status":      "ok",
			"service":     "dmchat",
			"connections": deps.Gateway.OpenConnections(),
		})
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(jwt.IdentityExtractorMiddleware(deps.Config.JWTSecret))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/signup", HandleSignup(deps))
			auth.Post("/login", HandleLogin(deps))
			auth.Post("/logout", HandleLogout(deps))

			auth.Group(func(private chi.Router) {
				private.Use(jwt.RequireIdentity)
				private.Get("/check", HandleCheckAuth(deps))
				private.Post("/block/{userId}", HandleBlockUser(deps))
				private.Post("/unblock/{userId}", HandleUnblockUser(deps))
				private.Get("/blocked-users", HandleBlockedUsers(deps))
			})
		})

		api.Route("/messages", func(messages chi.Router) {
			messages.Use(jwt.RequireIdentity)

			messages.Get("/users", HandleSidebarUsers(deps))
			messages.Get("/search-users", HandleSearchUsers(deps))
			messages.With(sendLimiter.Middleware).Post("/send/{id}", HandleSendMessage(deps))
			messages.Post("/image/presign", HandlePresignImage(deps))
			messages.Delete("/clear/{userId}", HandleClearThread(deps))
			messages.Get("/{id}", HandleGetThread(deps))
			messages.Delete("/{id}", HandleDeleteMessage(deps))
		})
	})

	r.With(handshakeLimiter.Middleware).Get("/ws", deps.Gateway.ServeHTTP)

	return r
}

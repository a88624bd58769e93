package api

import (
	"LiveChat/internal/config"
	"LiveChat/internal/http-server/handlers/admin"
	"LiveChat/internal/http-server/handlers/agent"
	"LiveChat/internal/http-server/handlers/chat"
	"LiveChat/internal/http-server/handlers/errors"
	"LiveChat/internal/http-server/handlers/health"
	"LiveChat/internal/http-server/middleware/authenticate"
	"LiveChat/internal/http-server/middleware/reqlog"
	"LiveChat/internal/http-server/middleware/timeout"
	"LiveChat/internal/lib/sl"
	"LiveChat/internal/ws"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
)

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	log        *slog.Logger
}

type Handler interface {
	authenticate.Authenticate
	chat.Core
	agent.Core
	admin.Core
	ws.Core
}

// NewRouter builds the full route tree; New serves it.
func NewRouter(conf *config.Config, log *slog.Logger, handler Handler, hub *ws.Hub) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(reqlog.New(log))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   conf.Cors.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", authenticate.VisitorHeader},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.NotFound(errors.NotFound(log))
	router.MethodNotAllowed(errors.NotAllowed(log))

	router.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, handler, conf.Chat.SendBuffer, log, w, r)
	})

	router.Group(func(r chi.Router) {
		r.Use(timeout.Timeout(10))
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/health", health.Health())

		r.Route("/api/v1", func(v1 chi.Router) {
			v1.Route("/chat", func(r chi.Router) {
				r.Use(authenticate.Party(log, handler))
				r.Post("/start", chat.Start(log, handler))
				r.Get("/{id}/messages", chat.History(log, handler))
				r.Post("/{id}/messages", chat.PostMessage(log, handler))
			})
			v1.Route("/agent", func(r chi.Router) {
				r.Post("/login", agent.Login(log, handler))
				r.Group(func(r chi.Router) {
					r.Use(authenticate.New(log, handler))
					r.Get("/me", agent.Me(log, handler))
					r.Get("/conversations", agent.ListConversations(log, handler))
					r.Post("/conversations/{id}/claim", agent.Claim(log, handler))
					r.Post("/conversations/{id}/close", agent.Close(log, handler))
					r.Get("/conversations/{id}/messages", agent.History(log, handler))
					r.Post("/conversations/{id}/messages", agent.PostMessage(log, handler))
				})
			})
			v1.Route("/admin", func(r chi.Router) {
				r.Use(authenticate.New(log, handler))
				r.Use(authenticate.AdminOnly)
				r.Post("/agents", admin.CreateAgent(log, handler))
				r.Get("/agents", admin.ListAgents(log, handler))
				r.Get("/agents/{id}", admin.GetAgent(log, handler))
				r.Put("/agents/{id}", admin.UpdateAgent(log, handler))
				r.Delete("/agents/{id}", admin.DeleteAgent(log, handler))
				r.Post("/agents/{id}/disable", admin.DisableAgent(log, handler))
				r.Get("/conversations", admin.ListConversations(log, handler))
				r.Get("/conversations/{id}", admin.ConversationDetail(log, handler))
			})
		})
	})

	return router
}

func New(conf *config.Config, log *slog.Logger, handler Handler, hub *ws.Hub) error {

	server := Server{
		conf: conf,
		log:  log.With(sl.Module("api.server")),
	}

	httpLog := slog.NewLogLogger(log.Handler(), slog.LevelError)
	server.httpServer = &http.Server{
		Handler:  NewRouter(conf, log, handler, hub),
		ErrorLog: httpLog,
	}

	serverAddress := fmt.Sprintf("%s:%s", conf.Listen.BindIP, conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	server.log.Info("starting api server", slog.String("address", serverAddress))

	return server.httpServer.Serve(listener)
}

package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gittalk/gittalk/internal/auth"
	"github.com/gittalk/gittalk/internal/config"
	"github.com/gittalk/gittalk/internal/database"
	"github.com/gittalk/gittalk/internal/rooms"
	"github.com/gittalk/gittalk/internal/server"
	"github.com/gorilla/handlers"
)

type GitTalkApp struct {
	log            *log.Logger
	db             database.GitTalkRepository
	svc            *rooms.RoomService
	cs             *server.ChatServer
	tokens         *auth.TokenAuthenticator
	github         *auth.GitHubAuthenticator
	allowedOrigins []string
	mux            *http.Server
}

func NewGitTalkApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.GitTalkRepository, svc *rooms.RoomService, tokens *auth.TokenAuthenticator, github *auth.GitHubAuthenticator, cfg *config.Config) *GitTalkApp {
	s := &GitTalkApp{
		log:            logger,
		db:             db,
		svc:            svc,
		cs:             cs,
		tokens:         tokens,
		github:         github,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /api/auth/github", s.githubLogin)
	mux.HandleFunc("GET /api/auth/github/callback", s.githubCallback)
	mux.HandleFunc("GET /api/auth/success", s.authSuccess)
	mux.Handle("GET /api/auth/me", s.authMiddleware(s.me))
	mux.Handle("POST /api/rooms/dm/{login}", s.authMiddleware(s.createDM))
	mux.Handle("POST /api/rooms/thread", s.authMiddleware(s.createThread))
	mux.Handle("GET /api/rooms", s.authMiddleware(s.getUserRooms))
	mux.Handle("GET /api/rooms/{id}", s.authMiddleware(s.getRoom))
	mux.Handle("GET /api/rooms/{roomId}/messages", s.authMiddleware(s.getRoomMessages))
	mux.Handle("POST /api/rooms/{roomId}/messages", s.authMiddleware(s.postRoomMessage))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *GitTalkApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *GitTalkApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}

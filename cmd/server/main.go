package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gittalk/gittalk/internal/api"
	"github.com/gittalk/gittalk/internal/auth"
	"github.com/gittalk/gittalk/internal/config"
	"github.com/gittalk/gittalk/internal/database"
	"github.com/gittalk/gittalk/internal/rooms"
	"github.com/gittalk/gittalk/internal/server"
	"github.com/gittalk/gittalk/internal/stats"
	_ "github.com/lib/pq"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dsn            string
	signingKey     string
	ghClientId     string
	ghClientSecret string
	ghRedirectURL  string
	allowedOrigins stringSliceFlag
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	flag.StringVar(&signingKey, "signing-key", os.Getenv("GITTALK_SIGNING_KEY"), "base64 encoded signing key")
	flag.StringVar(&ghClientId, "github-client-id", os.Getenv("GITTALK_GITHUB_CLIENT_ID"), "github oauth client id")
	flag.StringVar(&ghClientSecret, "github-client-secret", os.Getenv("GITTALK_GITHUB_CLIENT_SECRET"), "github oauth client secret")
	flag.StringVar(&ghRedirectURL, "github-redirect-url", "http://localhost:8000/api/auth/github/callback", "github oauth callback url")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[gittalk] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, signingKey, allowedOrigins, ghClientId, ghClientSecret, ghRedirectURL)
	if err != nil {
		logger.Fatal("config: ", err)
	}

	dbConn, err := database.NewPgGitTalkRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open: ", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close: ", err)
		}
	}()

	if err := dbConn.Migrate(); err != nil {
		logger.Fatal("db migrate: ", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	roomService := rooms.NewRoomService(logger, dbConn)
	registry := server.NewRegistry()

	chatServer, err := server.NewChatServer(logger, roomService, registry, statsUpdater)
	if err != nil {
		logger.Fatal("new chat server: ", err)
	}

	tokens := auth.NewTokenAuthenticator(cfg.SigningKey)
	github := auth.NewGitHubAuthenticator(logger, dbConn, cfg.GitHubClientId, cfg.GitHubClientSecret, cfg.GitHubRedirectURL)

	srv := api.NewGitTalkApp(mux, logger, chatServer, dbConn, roomService, tokens, github, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}

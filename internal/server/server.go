package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	goredis "github.com/redis/go-redis/v9"

	"github.com/fleetrelay/fleetrelay/internal/platform/config"
	"github.com/fleetrelay/fleetrelay/internal/relay"
)

type Server struct {
	echo        *echo.Echo
	config      *config.Config
	hub         *relay.Hub
	redisClient *goredis.Client
	limits      *ConnectionLimits
	upgrader    websocket.Upgrader
	startTime   time.Time
}

func NewServer(cfg *config.Config, hub *relay.Hub, redisClient *goredis.Client) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:        e,
		config:      cfg,
		hub:         hub,
		redisClient: redisClient,
		limits:      NewConnectionLimits(cfg.MaxConnections, cfg.MaxConnectionsPerIP, cfg.ConnectionRate, cfg.ConnectionBurst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     NewCheckOrigin(cfg.AppURL, cfg.IsDevelopment()),
		},
		startTime: time.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

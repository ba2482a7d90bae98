// Package server exposes the display and admin HTTP surface: the websocket
// feed, leaderboard and profile reads, the session reset and the settings
// blobs.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"engagement-service/internal/config"
	"engagement-service/internal/leaderboard"
	"engagement-service/internal/model"
	"engagement-service/internal/settings"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

type Board interface {
	Snapshot() leaderboard.Snapshot
	ResetSession()
}

type Viewers interface {
	Profile(ctx context.Context, username string) (*model.ViewerProfile, error)
	SetOptOut(ctx context.Context, username, userID string, optedOut bool) error
}

type History interface {
	ListByUsername(ctx context.Context, username string, limit int) ([]model.XPEvent, error)
	ListSpins(ctx context.Context, username string, limit int) ([]model.SpinTransaction, error)
}

type Settings interface {
	Current() *settings.Config
	Update(ctx context.Context, name string, raw []byte) error
}

type Deps struct {
	WS       http.HandlerFunc
	Board    Board
	Viewers  Viewers
	History  History
	Settings Settings
}

type Server struct {
	cfg    config.HTTPConfig
	log    *logrus.Logger
	deps   Deps
	router *gin.Engine
}

func New(cfg config.HTTPConfig, deps Deps, log *logrus.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:  cfg,
		log:  log,
		deps: deps,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	corsCfg := cors.DefaultConfig()
	if s.cfg.CORSEnabled {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{"http://localhost:3000"}
	}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type"}
	r.Use(cors.New(corsCfg))

	// overlay feed
	r.GET("/ws", gin.WrapF(s.deps.WS))

	api := r.Group("/api")
	api.GET("/leaderboard", s.handleLeaderboard)
	api.POST("/leaderboard/reset", s.handleReset)
	api.GET("/viewers/:username", s.handleViewer)
	api.PUT("/viewers/:username/opt-out", s.handleOptOut)
	api.GET("/settings", s.handleSettings)
	api.PUT("/settings/:name", s.handleUpdateSettings)

	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.cfg.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("http server stopped")
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Debug("http request")
	}
}

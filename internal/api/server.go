package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ministore/recordstore/internal/config"
)

const (
	ProductionServer = "prod"
	apiPrefix        = "/api"
)

type Server struct {
	srv *http.Server
}

// NewEngine registers the record routes on a new gin engine.
func NewEngine(mode string, h *Handler) *gin.Engine {
	gin.SetMode(gin.DebugMode)
	if mode == ProductionServer {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		ginzap.Ginzap(zap.L(), time.RFC3339, true),
		ginzap.RecoveryWithZap(zap.L(), true),
	)
	engine.NoRoute(func(c *gin.Context) {
		abort(c, http.StatusNotFound, "API endpoint not found", nil)
	})

	router := engine.Group(apiPrefix)
	router.GET("/health", h.Health)

	records := router.Group("/collections/:collection/records", h.Authenticate())
	records.GET("", h.ListRecords)
	records.GET("/:id", h.ViewRecord)
	records.PATCH("/:id", h.UpdateRecord)

	return engine
}

func NewServer(cfg *config.Configuration, h *Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf("0.0.0.0:%d", cfg.Server.HTTPPort),
			Handler:           NewEngine(cfg.Server.ServerMode, h),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start serves until Stop is called.
func (s *Server) Start(ctx context.Context) error {
	zap.S().Infow("http server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) {
	if err := s.srv.Shutdown(ctx); err != nil {
		zap.S().Errorw("server shutdown", "error", err)
	}
}

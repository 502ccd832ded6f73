// Package api serves the exchange over HTTP with gin.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"creatorExchange/internal/metrics"
	"creatorExchange/internal/model"
	"creatorExchange/internal/portfolio"
	"creatorExchange/internal/settlement"
)

// Service is the trading surface the handlers call.
type Service interface {
	Quote(ctx context.Context, req settlement.QuoteRequest) (settlement.Quote, error)
	Execute(ctx context.Context, req settlement.ExecuteRequest) (settlement.Outcome, error)
	History(ctx context.Context, q model.HistoryQuery) (settlement.HistoryPage, error)
	Portfolio(ctx context.Context, userID string) (portfolio.Summary, error)
	Pool(ctx context.Context, creatorID string) (model.Pool, error)
	PriceHistory(ctx context.Context, creatorID string, limit int) ([]model.PricePoint, error)
}

// Options tunes the HTTP layer.
type Options struct {
	RateLimit float64
	RateBurst int
	// LimiterPrune is how often refilled rate-limit buckets are dropped.
	LimiterPrune time.Duration
}

type Server struct {
	Router  *gin.Engine
	svc     Service
	metrics *metrics.Recorder
	limiter *clientLimiter
	opts    Options
	logger  *zap.Logger
}

func NewServer(svc Service, rec *metrics.Recorder, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.LimiterPrune <= 0 {
		opts.LimiterPrune = 5 * time.Minute
	}

	s := &Server{
		Router:  gin.New(),
		svc:     svc,
		metrics: rec,
		limiter: newClientLimiter(opts.RateLimit, opts.RateBurst),
		opts:    opts,
		logger:  logger,
	}

	s.Router.Use(gin.Recovery())
	s.Router.Use(RequestIDMiddleware())
	s.Router.Use(RequestLogger(logger, rec))
	if opts.RateLimit > 0 {
		s.Router.Use(RateLimitMiddleware(s.limiter, logger))
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	if s.metrics != nil {
		s.Router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := s.Router.Group("/api")
	{
		api.GET("/pools/:creator_id", s.pool)
		api.GET("/pools/:creator_id/prices", s.prices)

		authed := api.Group("", IdentityMiddleware())
		authed.POST("/trade/quote", s.quote)
		authed.POST("/trade/execute", s.execute)
		authed.GET("/trade/history", s.history)
		authed.GET("/portfolio", s.portfolio)
	}
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		ticker := time.NewTicker(s.opts.LimiterPrune)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := s.limiter.prune(now); n > 0 {
					s.logger.Debug("rate limit buckets pruned", zap.Int("dropped", n))
				}
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("http shutting down")
	return srv.Shutdown(shutdownCtx)
}

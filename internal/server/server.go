// Package server exposes fan-out runs and stored results over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goosewin/qforia/internal/logging"
	"github.com/goosewin/qforia/internal/state"
	"go.uber.org/zap"
)

const (
	defaultHost         = "127.0.0.1"
	defaultPort         = 8080
	defaultMaxBodyBytes = 16 * 1024
)

// FanoutRequest is the body of POST /fanout.
type FanoutRequest struct {
	Query   string `json:"query" binding:"required"`
	Mode    string `json:"mode"`
	Backend string `json:"backend"`
	Model   string `json:"model"`
	Session string `json:"session"`
}

// Runner performs one fan-out and persists it under the request's session.
// The returned record is meaningful even when err is non-nil.
type Runner interface {
	Fanout(ctx context.Context, req FanoutRequest) (state.Record, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, req FanoutRequest) (state.Record, error)

func (f RunnerFunc) Fanout(ctx context.Context, req FanoutRequest) (state.Record, error) {
	return f(ctx, req)
}

// Options configures the HTTP server.
type Options struct {
	Host         string
	Port         int
	Token        string
	Open         bool
	MaxBodyBytes int64
	Runner       Runner
	Logger       *zap.Logger
}

// StartServer runs the HTTP server until ctx is canceled.
func StartServer(ctx context.Context, opts Options) error {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = defaultHost
	}
	port := opts.Port
	if port == 0 {
		port = defaultPort
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port number: %d", port)
	}
	if opts.Runner == nil {
		return errors.New("server runner is required")
	}
	opts.Host = host

	if err := state.InitState(); err != nil {
		return err
	}

	// Model calls can take a while, so there is no write timeout.
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
		Handler:           NewHandler(opts),
	}

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		ctxTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownErr <- srv.Shutdown(ctxTimeout)
	}()

	logging.Nop(opts.Logger).Info("Server listening", zap.String("addr", srv.Addr))
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		select {
		case err := <-shutdownErr:
			return err
		default:
			return nil
		}
	}
	return err
}

// NewHandler builds the gin engine serving the API.
func NewHandler(opts Options) http.Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if strings.TrimSpace(opts.Host) == "" {
		opts.Host = defaultHost
	}
	logger := logging.Nop(opts.Logger)

	h := &handlers{runner: opts.Runner, logger: logger}

	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		requestLogger(logger),
		cors(opts.Host, opts.Open),
		bodyLimit(opts.MaxBodyBytes),
		bearerAuth(opts.Token),
	)

	engine.GET("/", h.health)
	engine.POST("/fanout", h.fanout)
	engine.GET("/result/:session", h.result)
	engine.DELETE("/result/:session", h.deleteResult)
	engine.GET("/result/:session/csv", h.resultCSV)
	engine.GET("/prompt", h.prompt)

	engine.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, "Unknown endpoint")
	})
	engine.HandleMethodNotAllowed = true
	engine.NoMethod(func(c *gin.Context) {
		writeError(c, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return engine
}

func writeError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

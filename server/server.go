// Package server exposes flow execution over HTTP: run a posted flow or a
// stored one, inspect and abort executions, answer manual approvals.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/BDNK1/nodeflow/runtime"
)

// History is where finished and running executions are recorded. Get and
// Delete report unknown ids with history.ErrNotFound.
type History interface {
	Save(ctx context.Context, rec runtime.ExecutionRecord) error
	Get(ctx context.Context, id string) (runtime.ExecutionRecord, error)
	List(ctx context.Context, limit int) ([]runtime.ExecutionRecord, error)
	Delete(ctx context.Context, id string) error
}

type Option func(*Server)

func WithFlows(flows map[string]*runtime.Flow) Option {
	return func(s *Server) { s.flows = flows }
}

func WithConfig(cfg runtime.Config) Option {
	return func(s *Server) { s.cfg = cfg }
}

func WithSettings(settings *runtime.Settings) Option {
	return func(s *Server) { s.settings = settings }
}

func WithAPI(api runtime.API) Option {
	return func(s *Server) { s.api = api }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.l = l }
}

// WithExecutorOptions appends options to every executor the server builds,
// for example tracer and meter providers.
func WithExecutorOptions(opts ...runtime.Option) Option {
	return func(s *Server) { s.executorOpts = append(s.executorOpts, opts...) }
}

type Server struct {
	registry     *runtime.Registry
	history      History
	flows        map[string]*runtime.Flow
	cfg          runtime.Config
	settings     *runtime.Settings
	api          runtime.API
	executorOpts []runtime.Option
	approvals    *ApprovalQueue
	l            *slog.Logger

	// ctx outlives requests so async executions keep running.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running map[string]*runtime.Executor
	wg      sync.WaitGroup
}

func New(registry *runtime.Registry, history History, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		registry:  registry,
		history:   history,
		flows:     map[string]*runtime.Flow{},
		cfg:       runtime.DefaultConfig(),
		approvals: NewApprovalQueue(),
		ctx:       ctx,
		cancel:    cancel,
		running:   map[string]*runtime.Executor{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.l == nil {
		s.l = slog.Default()
	}
	return s
}

func (s *Server) Approvals() *ApprovalQueue {
	return s.approvals
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", s.handleHealth)

	r.POST("/flows/run", s.handleRunPosted)
	r.POST("/flows/:id/run", s.handleRunStored)

	r.GET("/executions", s.handleListExecutions)
	r.GET("/executions/:id", s.handleGetExecution)
	r.DELETE("/executions/:id", s.handleDeleteExecution)
	r.POST("/executions/:id/abort", s.handleAbortExecution)

	r.GET("/approvals", s.handleListApprovals)
	r.POST("/approvals/:id", s.handleResolveApproval)

	return r
}

// Run serves on addr until ctx is done, then shuts down gracefully and
// aborts whatever is still executing.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router()}

	errCh := make(chan error, 1)
	go func() {
		s.l.InfoContext(ctx, fmt.Sprintf("Listening on %s", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	return err
}

// Close aborts running executions and waits for them to be recorded.
func (s *Server) Close() {
	s.mu.Lock()
	for _, e := range s.running {
		e.Abort()
	}
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.l.DebugContext(c.Request.Context(), "HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"voting-workflow/identity"
	"voting-workflow/service"
)

// Durability reports when log entries are stored.
type Durability interface {
	WaitFor(ctx context.Context, n uint64) error
}

// Options configures a Server.
type Options struct {
	Port           int
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	// Gatherer serves /metrics; nil uses the default Prometheus registry.
	Gatherer prometheus.Gatherer
	// Journal, when set, delays every successful mutation's response until
	// its entry is stored.
	Journal Durability
	Logger  *zap.Logger
}

// Server exposes an election over HTTP.
type Server struct {
	election   *service.Election
	auth       *identity.Authenticator
	validate   *validator.Validate
	logger     *zap.Logger
	opts       Options
	httpServer *http.Server
}

func NewServer(election *service.Election, auth *identity.Authenticator, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		election: election,
		auth:     auth,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   opts.Logger,
		opts:     opts,
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      s.Handler(),
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
	return s
}

// Handler returns the complete HTTP handler with CORS and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Sign-in
	mux.HandleFunc("POST /api/session/challenge", s.handleChallenge)
	mux.HandleFunc("POST /api/session", s.handleLogin)

	// Registries
	mux.Handle("POST /api/voters", s.requireCaller(s.handleRegisterVoter))
	mux.Handle("GET /api/voters/{address}", s.requireCaller(s.handleGetVoter))
	mux.Handle("POST /api/proposals", s.requireCaller(s.handleAddProposal))
	mux.Handle("GET /api/proposals", s.requireCaller(s.handleGetProposals))
	mux.Handle("GET /api/proposals/{id}", s.requireCaller(s.handleGetProposal))
	mux.Handle("POST /api/votes", s.requireCaller(s.handleSetVote))

	// Workflow
	mux.Handle("POST /api/workflow/{transition}", s.requireCaller(s.handleTransition))
	mux.HandleFunc("GET /api/workflow", s.handleGetWorkflow)
	mux.HandleFunc("GET /api/winner", s.handleGetWinner)

	// Observability
	mux.HandleFunc("GET /api/events", s.handleGetEvents)
	mux.HandleFunc("GET /api/metrics/phases", s.handleGetPhaseMetrics)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /health", s.handleHealth)

	c := cors.New(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
	return c.Handler(s.logRequests(mux))
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

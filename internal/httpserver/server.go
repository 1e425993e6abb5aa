// Package httpserver exposes the event handlers and balance lookups over HTTP.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/points/internal/handlers"
	"github.com/MarkoPoloResearchLab/points/pkg/points"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	claimsContextKey    = "auth_claims"
	requestIDHeader     = "X-Request-ID"
	bearerPrefix        = "Bearer "
	shutdownGracePeriod = 5 * time.Second
)

// EventRunner runs named handlers; *handlers.Service satisfies it.
type EventRunner interface {
	Has(name string) bool
	Handle(ctx context.Context, name string, request handlers.Request) (*points.Arguments, error)
}

// LedgerLookup finds ledgers by name; *points.Registry satisfies it.
type LedgerLookup interface {
	Ledger(name string) (*points.Ledger, error)
}

// EventObserver records handler latency; *metrics.Metrics satisfies it.
type EventObserver interface {
	ObserveEvent(handler string, ok bool, elapsed time.Duration)
}

// Config controls the router.
type Config struct {
	ListenAddr     string
	AllowedOrigins []string
	JWTSigningKey  string
	JWTIssuer      string
}

// Server wires the HTTP routes.
type Server struct {
	cfg       Config
	events    EventRunner
	ledgers   LedgerLookup
	platforms points.PlatformSet
	observer  EventObserver
	gatherer  prometheus.Gatherer
	logger    *zap.Logger
	now       func() time.Time
}

// Option customises a Server.
type Option func(*Server)

// WithObserver records per-handler latency.
func WithObserver(observer EventObserver) Option {
	return func(server *Server) {
		server.observer = observer
	}
}

// WithGatherer serves the registry on /metrics.
func WithGatherer(gatherer prometheus.Gatherer) Option {
	return func(server *Server) {
		server.gatherer = gatherer
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *zap.Logger) Option {
	return func(server *Server) {
		if logger != nil {
			server.logger = logger
		}
	}
}

// WithPlatforms limits the platforms accepted in balance lookups.
func WithPlatforms(platforms points.PlatformSet) Option {
	return func(server *Server) {
		server.platforms = platforms
	}
}

// New builds a Server over the handler service and ledger registry.
func New(cfg Config, events EventRunner, ledgers LedgerLookup, options ...Option) (*Server, error) {
	if events == nil || ledgers == nil {
		return nil, fmt.Errorf("%w: http server needs events and ledgers", points.ErrInvalidServiceConfig)
	}
	server := &Server{
		cfg:       cfg,
		events:    events,
		ledgers:   ledgers,
		platforms: points.DefaultPlatforms(),
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	return server, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (server *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              server.cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		server.logger.Info("http listening", zap.String("addr", server.cfg.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			server.logger.Warn("http shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Router returns the gin engine with every route installed.
func (server *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(server.requestID())
	if len(server.cfg.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     server.cfg.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type", "Origin", "Accept"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if server.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(server.gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api")
	if server.cfg.JWTSigningKey != "" {
		api.Use(server.requireBearer())
	}
	api.POST("/events/:handler", server.handleEvent)
	api.GET("/ledgers/:ledger/platforms/:platform/users/:user", server.handleBalance)
	return router
}

type eventRequest struct {
	Ledger    string         `json:"ledger"`
	Catalog   string         `json:"catalog"`
	Arguments map[string]any `json:"arguments"`
}

type eventResponse struct {
	OK        bool           `json:"ok"`
	Error     *errorPayload  `json:"error,omitempty"`
	Arguments map[string]any `json:"arguments"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (server *Server) handleEvent(ctx *gin.Context) {
	name := ctx.Param("handler")
	if !server.events.Has(name) {
		ctx.JSON(http.StatusNotFound, errorResponse(handlers.CodeUnknownHandler, fmt.Sprintf("no handler named %q", name)))
		return
	}
	var request eventRequest
	if err := decodeEventRequest(ctx.Request, &request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}

	started := server.now()
	arguments, err := server.events.Handle(ctx.Request.Context(), name, handlers.Request{
		Ledger:  request.Ledger,
		Catalog: request.Catalog,
		Event:   points.NewEvent(request.Arguments),
	})
	if server.observer != nil {
		server.observer.ObserveEvent(name, err == nil, server.now().Sub(started))
	}

	response := eventResponse{OK: err == nil, Arguments: map[string]any{}}
	if arguments != nil {
		response.Arguments = arguments.Snapshot()
	}
	if err != nil {
		code := handlers.ErrorCode(err)
		response.Error = &errorPayload{Code: code, Message: err.Error()}
		if code == handlers.CodeInternal {
			server.logger.Error("event handler failed",
				zap.String("handler", name),
				zap.String("request_id", ctx.GetString(requestIDHeader)),
				zap.Error(err))
		}
	}
	ctx.JSON(http.StatusOK, response)
}

// decodeEventRequest keeps numbers as json.Number so numeric user ids are not rounded through float64.
func decodeEventRequest(request *http.Request, target *eventRequest) error {
	if request.Body == nil {
		return errors.New("empty body")
	}
	decoder := json.NewDecoder(request.Body)
	decoder.UseNumber()
	return decoder.Decode(target)
}

func (server *Server) handleBalance(ctx *gin.Context) {
	ledger, err := server.ledgers.Ledger(ctx.Param("ledger"))
	if err != nil {
		ctx.JSON(http.StatusNotFound, errorResponse(handlers.CodeUnknownLedger, err.Error()))
		return
	}
	platform, err := server.platforms.Parse(ctx.Param("platform"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(handlers.CodeUnknownPlatform, err.Error()))
		return
	}
	ref, err := points.NewUserRef(platform, ctx.Param("user"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(handlers.CodeInvalidArgument, err.Error()))
		return
	}
	balance, err := ledger.GetBalance(ctx.Request.Context(), ref)
	if err != nil {
		server.logger.Error("balance lookup failed", zap.String("user", ref.String()), zap.Error(err))
		ctx.JSON(http.StatusBadGateway, errorResponse("store_error", "balance unavailable"))
		return
	}
	payload := gin.H{
		"ledger":   ledger.Name().String(),
		"platform": platform.String(),
		"user_id":  ref.UserID.String(),
		"known":    balance.Known(),
		"balance":  nil,
	}
	if balance.Known() {
		payload["balance"] = balance.Int64()
	}
	ctx.JSON(http.StatusOK, payload)
}

func (server *Server) requestID() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		requestID := strings.TrimSpace(ctx.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx.Set(requestIDHeader, requestID)
		ctx.Header(requestIDHeader, requestID)
		ctx.Next()
	}
}

// requireBearer accepts HS256 tokens signed with the configured key and issuer.
func (server *Server) requireBearer() gin.HandlerFunc {
	signingKey := []byte(server.cfg.JWTSigningKey)
	parserOptions := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if server.cfg.JWTIssuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(server.cfg.JWTIssuer))
	}
	parser := jwt.NewParser(parserOptions...)
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing bearer token"))
			return
		}
		claims := &jwt.RegisteredClaims{}
		_, err := parser.ParseWithClaims(strings.TrimPrefix(header, bearerPrefix), claims, func(*jwt.Token) (any, error) {
			return signingKey, nil
		})
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid bearer token"))
			return
		}
		ctx.Set(claimsContextKey, claims)
		ctx.Next()
	}
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"ok": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// Package api exposes the betting engine over HTTP and a websocket stream.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fadedpez/wingo/internal/logging"
	"github.com/fadedpez/wingo/internal/types"
	"github.com/fadedpez/wingo/pkg/entities"
	"github.com/fadedpez/wingo/pkg/services/betting"
	"github.com/fadedpez/wingo/pkg/services/settlement"
	"github.com/fadedpez/wingo/pkg/services/statistics"
	"github.com/fadedpez/wingo/pkg/services/wallet"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
)

// Authenticator resolves the caller of a request
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// ErrNoUser means the request carried no identity
var ErrNoUser = errors.New("no authenticated user")

// HeaderAuthenticator trusts a user ID header set by an upstream auth proxy
type HeaderAuthenticator struct {
	Header string
}

// Authenticate implements Authenticator
func (a HeaderAuthenticator) Authenticate(r *http.Request) (string, error) {
	header := a.Header
	if header == "" {
		header = "X-User-ID"
	}
	if user := strings.TrimSpace(r.Header.Get(header)); user != "" {
		return user, nil
	}
	return "", ErrNoUser
}

// Store is the part of the ledger the API reads directly
type Store interface {
	ListOutcomes(ctx context.Context, mode entities.Mode, limit int) ([]*entities.Outcome, error)
	GetBetsByUser(ctx context.Context, userID string, limit int) ([]*entities.Bet, error)
	Ping(ctx context.Context) error
}

// Deps are the services behind the API
type Deps struct {
	Betting    *betting.Service
	Wallets    wallet.WalletService
	Store      Store
	Engine     *settlement.Engine
	Statistics *statistics.Service
	Hub        *Hub
	Auth       Authenticator
	AdminToken string
}

// Server is the HTTP front-end
type Server struct {
	deps     Deps
	upgrader websocket.Upgrader
	logger   *logging.Logger

	mu         sync.Mutex
	httpServer *http.Server
	stopped    bool
}

// NewServer creates a server; a nil Auth uses HeaderAuthenticator
func NewServer(deps Deps) *Server {
	if deps.Auth == nil {
		deps.Auth = HeaderAuthenticator{}
	}
	return &Server{
		deps:   deps,
		logger: logging.Default,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Handler builds the routed, CORS-wrapped handler
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/games", s.handleGames).Methods("GET")
	api.HandleFunc("/periods/{game}/{duration:[0-9]+}", s.handleCurrentPeriod).Methods("GET")
	api.HandleFunc("/outcomes/{game}/{duration:[0-9]+}", s.handleOutcomes).Methods("GET")
	api.HandleFunc("/bets", s.handlePlaceBet).Methods("POST")
	api.HandleFunc("/bets", s.handleMyBets).Methods("GET")
	api.HandleFunc("/wallet", s.handleWallet).Methods("GET")
	api.HandleFunc("/leaderboard", s.handleLeaderboard).Methods("GET")
	api.HandleFunc("/leaderboard/{game}", s.handleLeaderboard).Methods("GET")

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(s.requireAdmin)
	admin.HandleFunc("/sweep", s.handleSweep).Methods("POST")
	admin.HandleFunc("/fix-sync", s.handleFixSync).Methods("POST")
	admin.HandleFunc("/clear-stale", s.handleClearStale).Methods("POST")
	admin.HandleFunc("/lock/{game}/{duration:[0-9]+}", s.handleLock).Methods("POST", "DELETE")

	if s.deps.Hub != nil {
		router.HandleFunc("/ws", s.handleWebSocket)
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return c.Handler(router)
}

// Start listens on addr until Stop is called. It returns nil at once if Stop
// already ran.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Info("HTTP API listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully
func (s *Server) Stop() {
	s.mu.Lock()
	s.stopped = true
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		s.logger.Error("Server shutdown error: %v", err)
	}
}

// requireAdmin accepts "Authorization: Bearer <token>" or X-Admin-Token. With
// no token configured the admin routes are disabled.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.AdminToken == "" {
			writeError(w, http.StatusForbidden, types.ErrPermissionDenied, "admin API disabled")
			return
		}

		token := r.Header.Get("X-Admin-Token")
		if bearer := r.Header.Get("Authorization"); strings.HasPrefix(bearer, "Bearer ") {
			token = strings.TrimPrefix(bearer, "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.deps.AdminToken)) != 1 {
			writeError(w, http.StatusUnauthorized, types.ErrUnauthenticated, "invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade error: %v", err)
		return
	}
	s.deps.Hub.serve(conn)
}

// errorBody is the JSON shape of every error response
type errorBody struct {
	Success bool            `json:"success"`
	Code    types.ErrorCode `json:"code"`
	Message string          `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code types.ErrorCode, message string) {
	writeJSON(w, status, errorBody{Success: false, Code: code, Message: message})
}

// statusFor maps an error code to an HTTP status
func statusFor(code types.ErrorCode) int {
	switch code {
	case types.ErrUnauthenticated:
		return http.StatusUnauthorized
	case types.ErrPermissionDenied:
		return http.StatusForbidden
	case types.ErrUnknownMode, types.ErrNotFound:
		return http.StatusNotFound
	case types.ErrBettingClosed, types.ErrRoundLocked, types.ErrPeriodMismatch:
		return http.StatusConflict
	case types.ErrInsufficientFunds:
		return http.StatusPaymentRequired
	case types.ErrInvalidStake, types.ErrInvalidBet, types.ErrInvalidArgument:
		return http.StatusBadRequest
	case types.ErrRateLimited:
		return http.StatusTooManyRequests
	case types.ErrDatabaseError, types.ErrNetworkError:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fadedpez/wingo/internal/types"
	"github.com/fadedpez/wingo/pkg/entities"
	"github.com/fadedpez/wingo/pkg/services/betting"
	"github.com/fadedpez/wingo/pkg/services/settlement"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	storage := "ok"
	if err := s.deps.Store.Ping(r.Context()); err != nil {
		status, code, storage = "degraded", http.StatusServiceUnavailable, err.Error()
	}

	body := map[string]interface{}{
		"status":  status,
		"storage": storage,
		"time":    time.Now().Unix(),
	}
	if s.deps.Hub != nil {
		body["ws_clients"] = s.deps.Hub.ClientCount()
	}
	writeJSON(w, code, body)
}

type gameResponse struct {
	GameType entities.GameType `json:"game_type"`
	Duration int               `json:"duration"`
	Mode     string            `json:"mode"`
}

func (s *Server) handleGames(w http.ResponseWriter, r *http.Request) {
	modes := s.deps.Engine.Modes()
	games := make([]gameResponse, 0, len(modes))
	for _, m := range modes {
		games = append(games, gameResponse{GameType: m.GameType, Duration: m.DurationSeconds(), Mode: m.String()})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"games": games})
}

// modeFromPath reads {game}/{duration} and checks the mode is configured
func (s *Server) modeFromPath(w http.ResponseWriter, r *http.Request) (entities.Mode, bool) {
	vars := mux.Vars(r)
	duration, err := strconv.Atoi(vars["duration"])
	if err != nil {
		writeError(w, http.StatusBadRequest, types.ErrInvalidArgument, "duration must be a number of seconds")
		return entities.Mode{}, false
	}
	mode := entities.NewMode(entities.GameType(vars["game"]), duration)
	if !s.deps.Betting.KnownMode(mode) {
		writeError(w, http.StatusNotFound, types.ErrUnknownMode, "unknown game "+mode.String())
		return entities.Mode{}, false
	}
	return mode, true
}

type periodResponse struct {
	GameType        entities.GameType `json:"game_type"`
	Duration        int               `json:"duration"`
	Period          string            `json:"period"`
	Start           time.Time         `json:"start"`
	End             time.Time         `json:"end"`
	TimeLeftSeconds int               `json:"time_left_seconds"`
	BettingOpen     bool              `json:"betting_open"`
	LastResult      *entities.Outcome `json:"last_result,omitempty"`
}

func (s *Server) handleCurrentPeriod(w http.ResponseWriter, r *http.Request) {
	mode, ok := s.modeFromPath(w, r)
	if !ok {
		return
	}

	p, open := s.deps.Betting.CurrentPeriod(mode)
	resp := periodResponse{
		GameType:        mode.GameType,
		Duration:        mode.DurationSeconds(),
		Period:          p.Token,
		Start:           p.Start,
		End:             p.End,
		TimeLeftSeconds: p.SecondsLeft(),
		BettingOpen:     open,
	}
	if last, err := s.deps.Store.ListOutcomes(r.Context(), mode, 1); err == nil && len(last) > 0 {
		resp.LastResult = last[0]
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOutcomes(w http.ResponseWriter, r *http.Request) {
	mode, ok := s.modeFromPath(w, r)
	if !ok {
		return
	}

	outcomes, err := s.deps.Store.ListOutcomes(r.Context(), mode, queryLimit(r, 20, 100))
	if err != nil {
		s.logger.Error("Error listing outcomes for %s: %v", mode, err)
		writeError(w, http.StatusServiceUnavailable, types.ErrDatabaseError, "could not load results")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"outcomes": outcomes})
}

func (s *Server) handlePlaceBet(w http.ResponseWriter, r *http.Request) {
	var req betting.PlaceBetRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, types.ErrInvalidArgument, "invalid request body")
		return
	}

	// An unauthenticated request still goes through PlaceBet so it gets the
	// same rejection as every other caller error
	req.UserID, _ = s.deps.Auth.Authenticate(r)
	if req.BetID == "" {
		req.BetID = uuid.New().String()
	}

	var result *betting.PlaceBetResult
	err := betting.WithRetry(r.Context(), betting.DefaultAttempts, betting.DefaultBackoff, func(ctx context.Context) error {
		var err error
		result, err = s.deps.Betting.PlaceBet(ctx, req)
		return err
	})

	if result != nil && !result.Success {
		writeJSON(w, statusFor(result.Code), result)
		return
	}
	if err != nil {
		s.logger.Error("Error placing bet for %s: %v", req.UserID, err)
		writeError(w, http.StatusServiceUnavailable, types.ErrDatabaseError, "bet could not be placed, try again")
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// requireUser writes a 401 and returns false when the caller is anonymous
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	user, err := s.deps.Auth.Authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, types.ErrUnauthenticated, "sign in required")
		return "", false
	}
	return user, true
}

func (s *Server) handleMyBets(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	bets, err := s.deps.Store.GetBetsByUser(r.Context(), user, queryLimit(r, 50, 500))
	if err != nil {
		s.logger.Error("Error listing bets for %s: %v", user, err)
		writeError(w, http.StatusServiceUnavailable, types.ErrDatabaseError, "could not load bets")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bets": bets})
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	wallet, _, err := s.deps.Wallets.GetOrCreateWallet(r.Context(), user)
	if err != nil {
		s.logger.Error("Error loading wallet for %s: %v", user, err)
		writeError(w, http.StatusServiceUnavailable, types.ErrDatabaseError, "could not load wallet")
		return
	}
	transactions, err := s.deps.Wallets.GetTransactions(r.Context(), user, queryLimit(r, 20, 200))
	if err != nil {
		s.logger.Error("Error loading transactions for %s: %v", user, err)
		writeError(w, http.StatusServiceUnavailable, types.ErrDatabaseError, "could not load transactions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"wallet":       wallet,
		"transactions": transactions,
	})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

	board, err := s.deps.Statistics.GetLeaderboard(r.Context(), entities.GameType(mux.Vars(r)["game"]), page, perPage)
	if err != nil {
		s.logger.Error("Error building leaderboard: %v", err)
		writeError(w, http.StatusServiceUnavailable, types.ErrDatabaseError, "could not load leaderboard")
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Engine.RunSweep(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, settlement.ErrStorageUnavailable) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, types.ErrDatabaseError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleFixSync(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Engine.FixUnsettledBets(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, types.ErrDatabaseError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleClearStale(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Engine.ClearStaleData(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, types.ErrDatabaseError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleLock locks (POST) or unlocks (DELETE) a round, the current one unless
// ?period= is given
func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	mode, ok := s.modeFromPath(w, r)
	if !ok {
		return
	}

	token := r.URL.Query().Get("period")
	if token == "" {
		p, _ := s.deps.Betting.CurrentPeriod(mode)
		token = p.Token
	}

	locked := r.Method == http.MethodPost
	if locked {
		s.deps.Betting.LockRound(mode, token)
	} else {
		s.deps.Betting.UnlockRound(mode, token)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"mode":   mode.String(),
		"period": token,
		"locked": locked,
	})
}

// queryLimit reads ?limit=, falling back to def and capping at max
func queryLimit(r *http.Request, def, max int) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

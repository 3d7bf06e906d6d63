// server/server.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/wfunc/turnserver/logger"
	"github.com/wfunc/turnserver/models"
	"github.com/wfunc/turnserver/persistence"
	"github.com/wfunc/turnserver/services"
)

// Server HTTP API 服务。身份通过 Bearer 会话令牌传递，
// 令牌由 /api/sessions 签发。
type Server struct {
	httpServer *http.Server
	games      *services.GameService
	auth       *services.AuthService
	store      persistence.GameStore
}

func NewServer(addr string, games *services.GameService, auth *services.AuthService, store persistence.GameStore) *Server {
	s := &Server{games: games, auth: auth, store: store}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/players", s.handleCreatePlayer)
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("DELETE /api/sessions", s.requireSession(s.handleDeleteSession))
	mux.HandleFunc("POST /api/sessions/refresh", s.requireSession(s.handleRefreshSession))
	mux.HandleFunc("POST /api/games", s.handleCreateGame)
	mux.HandleFunc("GET /api/games/{id}", s.requireSession(s.handleGetGame))
	mux.HandleFunc("DELETE /api/games/{id}", s.requireSession(s.handleDeleteGame))
	mux.HandleFunc("GET /api/games/{id}/summary", s.handleGetSummary)
	mux.HandleFunc("GET /api/games/{id}/state", s.handleGetState)
	mux.HandleFunc("GET /api/games/{id}/pieces", s.handleGetPieces)
	mux.HandleFunc("GET /api/games/{id}/players", s.handleListPlayers)
	mux.HandleFunc("POST /api/games/{id}/join", s.requireSession(s.handleJoinGame))
	mux.HandleFunc("POST /api/games/{id}/leave", s.requireSession(s.handleLeaveGame))
	mux.HandleFunc("POST /api/games/{id}/start", s.requireSession(s.handleStartGame))
	mux.HandleFunc("POST /api/games/{id}/turns", s.requireSession(s.handleSubmitTurn))
	mux.HandleFunc("GET /api/unused-game-ids", s.handleListUnusedGameIDs)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	logger.Log.Infof("HTTP server listening on %s", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Stop(ctx context.Context) error {
	logger.Log.Info("Stopping HTTP server.")
	return s.httpServer.Shutdown(ctx)
}

type sessionKey struct{}

// requireSession 校验 Bearer 令牌并把会话注入请求上下文。
func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
			return
		}
		session, err := s.auth.ValidateToken(r.Context(), token)
		if err != nil {
			writeError(w, err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, session)))
	}
}

func sessionFrom(r *http.Request) *models.Session {
	session, _ := r.Context().Value(sessionKey{}).(*models.Session)
	return session
}

// sessionPlayer 要求会话绑定了玩家身份。
func sessionPlayer(r *http.Request) (string, bool) {
	session := sessionFrom(r)
	if session == nil || session.PlayerID == nil {
		return "", false
	}
	return *session.PlayerID, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.Errorw("failed to encode response", "error", err)
	}
}

// writeError 把存储层错误类别映射成 HTTP 状态码。
func writeError(w http.ResponseWriter, err error) {
	var se *persistence.StoreError
	status := http.StatusInternalServerError
	message := "internal error"

	if errors.As(err, &se) {
		message = se.Error()
		switch se.Kind {
		case persistence.KindGameNotFound, persistence.KindPlayerNotFound:
			status = http.StatusNotFound
		case persistence.KindSessionNotFound, persistence.KindInvalidPassword:
			status = http.StatusUnauthorized
		case persistence.KindCreatorOnlyAction:
			status = http.StatusForbidden
		case persistence.KindInvalidArgument:
			status = http.StatusBadRequest
		case persistence.KindGameAlreadyExists, persistence.KindPlayerAlreadyExists,
			persistence.KindPasswordAlreadyExists, persistence.KindPlayerAlreadyJoinedGame,
			persistence.KindGameFull, persistence.KindTurnMismatch:
			status = http.StatusConflict
		case persistence.KindSimulationError:
			status = http.StatusBadGateway
		case persistence.KindInvalidState, persistence.KindUnexpectedResult:
			status = http.StatusInternalServerError
			message = "internal error"
		}
	}

	if status == http.StatusInternalServerError {
		logger.Log.Errorw("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

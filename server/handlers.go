// server/handlers.go
package server

import (
	"net/http"
	"strconv"

	"github.com/wfunc/turnserver/models"
)

type createPlayerRequest struct {
	PlayerID string `json:"player_id"`
	Password string `json:"password"`
}

func (s *Server) handleCreatePlayer(w http.ResponseWriter, r *http.Request) {
	var req createPlayerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PlayerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "player_id is required"})
		return
	}
	if err := s.games.CreatePlayer(r.Context(), req.PlayerID, req.Password); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"player_id": req.PlayerID})
}

type createSessionRequest struct {
	GameID         *string `json:"game_id"`
	PlayerID       *string `json:"player_id"`
	GamePassword   string  `json:"game_password"`
	PlayerPassword string  `json:"player_password"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	token, err := s.auth.CreateToken(r.Context(), req.GameID, req.PlayerID, req.GamePassword, req.PlayerPassword)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"session_token": token})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	token, _ := cutBearer(r)
	if err := s.auth.RevokeToken(r.Context(), token); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}

func (s *Server) handleRefreshSession(w http.ResponseWriter, r *http.Request) {
	token, _ := cutBearer(r)
	if err := s.auth.RefreshToken(r.Context(), token); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"refreshed": true})
}

func cutBearer(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && header[:7] == "Bearer " {
		return header[7:], true
	}
	return "", false
}

type createGameRequest struct {
	GameID   string               `json:"game_id"`
	Password string               `json:"password"`
	Settings *models.GameSettings `json:"settings"`
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	gameID, startTime, err := s.games.CreateGame(r.Context(), req.GameID, req.Settings, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"game_id":    gameID,
		"start_time": startTime,
	})
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	game, err := s.store.GetGame(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

func (s *Server) handleDeleteGame(w http.ResponseWriter, r *http.Request) {
	playerID, ok := sessionPlayer(r)
	if !ok {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "a player session is required"})
		return
	}
	if err := s.games.DeleteGame(r.Context(), r.PathValue("id"), playerID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.store.GetGameSummary(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	state, err := s.store.GetGameState(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleGetPieces(w http.ResponseWriter, r *http.Request) {
	pieces, err := s.store.GetPieces(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pieces": pieces})
}

func (s *Server) handleListPlayers(w http.ResponseWriter, r *http.Request) {
	players, err := s.store.ListPlayers(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"players": players})
}

type joinGameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleJoinGame(w http.ResponseWriter, r *http.Request) {
	playerID, ok := sessionPlayer(r)
	if !ok {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "a player session is required"})
		return
	}
	var req joinGameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.games.JoinGame(r.Context(), r.PathValue("id"), playerID, req.Name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"joined": true})
}

func (s *Server) handleLeaveGame(w http.ResponseWriter, r *http.Request) {
	playerID, ok := sessionPlayer(r)
	if !ok {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "a player session is required"})
		return
	}
	if err := s.games.LeaveGame(r.Context(), r.PathValue("id"), playerID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"left": true})
}

func (s *Server) handleStartGame(w http.ResponseWriter, r *http.Request) {
	playerID, ok := sessionPlayer(r)
	if !ok {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "a player session is required"})
		return
	}
	if err := s.games.StartGame(r.Context(), r.PathValue("id"), playerID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"started": true})
}

type submitTurnRequest struct {
	TurnNumber int                 `json:"turn_number"`
	Actions    []models.TurnAction `json:"actions"`
}

func (s *Server) handleSubmitTurn(w http.ResponseWriter, r *http.Request) {
	playerID, ok := sessionPlayer(r)
	if !ok {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "a player session is required"})
		return
	}
	var req submitTurnRequest
	if !decodeBody(w, r, &req) {
		return
	}
	allSubmitted, err := s.games.SubmitTurn(r.Context(), r.PathValue("id"), playerID, req.TurnNumber, req.Actions)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"submitted": true, "all_submitted": allSubmitted})
}

func (s *Server) handleListUnusedGameIDs(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	names, err := s.store.ListUnusedGameIDs(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"names": names})
}

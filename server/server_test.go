package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/wfunc/turnserver/config"
	"github.com/wfunc/turnserver/logger"
	"github.com/wfunc/turnserver/models"
	"github.com/wfunc/turnserver/persistence"
	"github.com/wfunc/turnserver/services"
)

func TestMain(m *testing.M) {
	logger.InitDevelopment()
	os.Exit(m.Run())
}

// stubStore overrides only the methods a test exercises; calling anything
// else panics via the embedded nil interface, which is what we want.
type stubStore struct {
	persistence.GameStore
	summary *models.GameSummary
	players []models.PlayerInfo
	err     error
}

func (s *stubStore) GetGameSummary(_ context.Context, _ string) (*models.GameSummary, error) {
	return s.summary, s.err
}

func (s *stubStore) ListPlayers(_ context.Context, _ string) ([]models.PlayerInfo, error) {
	return s.players, s.err
}

type stubAuthStore struct {
	persistence.AuthStore
	session *models.Session
}

func (s *stubAuthStore) ValidateSessionToken(_ context.Context, token string) (*models.Session, error) {
	if token == "valid-token" {
		return s.session, nil
	}
	return nil, nil
}

func newTestServer(store persistence.GameStore, session *models.Session) *Server {
	games := services.NewGameService(store, config.GameConfig{})
	auth := services.NewAuthService(&stubAuthStore{session: session})
	return NewServer(":0", games, auth, store)
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		kind persistence.Kind
		want int
	}{
		{persistence.KindGameNotFound, http.StatusNotFound},
		{persistence.KindPlayerNotFound, http.StatusNotFound},
		{persistence.KindSessionNotFound, http.StatusUnauthorized},
		{persistence.KindInvalidPassword, http.StatusUnauthorized},
		{persistence.KindCreatorOnlyAction, http.StatusForbidden},
		{persistence.KindGameAlreadyExists, http.StatusConflict},
		{persistence.KindGameFull, http.StatusConflict},
		{persistence.KindTurnMismatch, http.StatusConflict},
		{persistence.KindSimulationError, http.StatusBadGateway},
		{persistence.KindInvalidArgument, http.StatusBadRequest},
		{persistence.KindInvalidState, http.StatusInternalServerError},
		{persistence.KindUnexpectedResult, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, persistence.Errorf(tt.kind, "boom"))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestInternalErrorsAreOpaque(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, persistence.Errorf(persistence.KindInvalidState, "games row without settings"))

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if strings.Contains(body["error"], "settings") {
		t.Errorf("internal detail leaked to client: %q", body["error"])
	}
}

func TestRequireSessionRejectsMissingToken(t *testing.T) {
	srv := newTestServer(&stubStore{}, nil)

	req := httptest.NewRequest("GET", "/api/games/g1", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireSessionRejectsBadToken(t *testing.T) {
	srv := newTestServer(&stubStore{}, nil)

	req := httptest.NewRequest("GET", "/api/games/g1", nil)
	req.Header.Set("Authorization", "Bearer nonsense")
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestSummaryEndpointIsPublic(t *testing.T) {
	store := &stubStore{summary: &models.GameSummary{
		GameID:     "g1",
		TurnNumber: 3,
		BoardSize:  700,
		MaxPlayers: 10,
	}}
	srv := newTestServer(store, nil)

	req := httptest.NewRequest("GET", "/api/games/g1/summary", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body models.GameSummary
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.TurnNumber != 3 || body.BoardSize != 700 {
		t.Errorf("summary = %+v", body)
	}
}

func TestSubmitTurnNeedsPlayerBoundSession(t *testing.T) {
	gameID := "g1"
	// Token bound to a game only, no player identity.
	srv := newTestServer(&stubStore{}, &models.Session{GameID: &gameID})

	req := httptest.NewRequest("POST", "/api/games/g1/turns",
		strings.NewReader(`{"turn_number":1,"actions":[]}`))
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestListPlayersEndpoint(t *testing.T) {
	color := "#FF0000"
	store := &stubStore{players: []models.PlayerInfo{
		{PlayerID: "alice", Name: "Alice", Color: &color, SubmittedTurn: true},
	}}
	srv := newTestServer(store, nil)

	req := httptest.NewRequest("GET", "/api/games/g1/players", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Players []models.PlayerInfo `json:"players"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Players) != 1 || body.Players[0].PlayerID != "alice" {
		t.Errorf("players = %+v", body.Players)
	}
}

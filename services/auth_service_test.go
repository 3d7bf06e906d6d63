package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wfunc/turnserver/models"
	"github.com/wfunc/turnserver/persistence"
)

type fakeAuthStore struct {
	mu        sync.Mutex
	gamePw    map[string][]byte
	playerPw  map[string][]byte
	sessions  map[string]sessionRow
	knownGame map[string]bool
}

type sessionRow struct {
	gameID    *string
	playerID  *string
	expiresAt time.Time
}

func newFakeAuthStore() *fakeAuthStore {
	return &fakeAuthStore{
		gamePw:    make(map[string][]byte),
		playerPw:  make(map[string][]byte),
		sessions:  make(map[string]sessionRow),
		knownGame: make(map[string]bool),
	}
}

func (f *fakeAuthStore) SetGamePassword(_ context.Context, gameID string, _, hashed []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gamePw[gameID] = hashed
	return nil
}

func (f *fakeAuthStore) SetPlayerPassword(_ context.Context, playerID string, _, hashed []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playerPw[playerID] = hashed
	return nil
}

func (f *fakeAuthStore) GetGamePassword(_ context.Context, gameID string) ([]byte, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return nil, f.gamePw[gameID], nil
}

func (f *fakeAuthStore) GetPlayerPassword(_ context.Context, playerID string) ([]byte, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return nil, f.playerPw[playerID], nil
}

func (f *fakeAuthStore) CreateSessionToken(_ context.Context, token string, gameID, playerID *string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[token] = sessionRow{gameID: gameID, playerID: playerID, expiresAt: expiresAt}
	return nil
}

func (f *fakeAuthStore) ValidateSessionToken(_ context.Context, token string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.sessions[token]
	if !ok || !row.expiresAt.After(time.Now()) {
		return nil, nil
	}
	return &models.Session{GameID: row.gameID, PlayerID: row.playerID}, nil
}

func (f *fakeAuthStore) InvalidateSession(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[token]; !ok {
		return persistence.Errorf(persistence.KindSessionNotFound, "no session")
	}
	delete(f.sessions, token)
	return nil
}

func (f *fakeAuthStore) RefreshSession(_ context.Context, token string, newExpiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.sessions[token]
	if !ok {
		return persistence.Errorf(persistence.KindSessionNotFound, "no session")
	}
	row.expiresAt = newExpiresAt
	f.sessions[token] = row
	return nil
}

func (f *fakeAuthStore) DeleteExpiredSessions(_ context.Context) (int, error) { return 0, nil }
func (f *fakeAuthStore) Close() error                                         { return nil }

var _ persistence.AuthStore = (*fakeAuthStore)(nil)

func strPtr(s string) *string { return &s }

func TestCreateTokenWithPlayerPassword(t *testing.T) {
	store := newFakeAuthStore()
	_, hashed, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	store.playerPw["alice"] = hashed
	svc := NewAuthService(store)
	ctx := context.Background()

	// Wrong password rejected.
	_, err = svc.CreateToken(ctx, nil, strPtr("alice"), "", "battery staple")
	if !errors.Is(err, persistence.ErrInvalidPassword) {
		t.Errorf("wrong password = %v, want InvalidPassword", err)
	}

	// Correct password issues a token that resolves back to the player.
	token, err := svc.CreateToken(ctx, nil, strPtr("alice"), "", "correct horse")
	if err != nil {
		t.Fatalf("CreateToken failed: %v", err)
	}
	session, err := svc.ValidateToken(ctx, token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if session.PlayerID == nil || *session.PlayerID != "alice" {
		t.Errorf("session player = %v, want alice", session.PlayerID)
	}
	if session.GameID != nil {
		t.Errorf("session game = %v, want nil", session.GameID)
	}
}

func TestCreateTokenPasswordlessEntity(t *testing.T) {
	store := newFakeAuthStore()
	svc := NewAuthService(store)

	// No password on record: any (even empty) password is accepted.
	token, err := svc.CreateToken(context.Background(), strPtr("open-game"), nil, "", "")
	if err != nil {
		t.Fatalf("CreateToken failed: %v", err)
	}
	if token == "" {
		t.Error("expected a token")
	}
}

func TestCreateTokenRequiresAnIdentity(t *testing.T) {
	svc := NewAuthService(newFakeAuthStore())

	_, err := svc.CreateToken(context.Background(), nil, nil, "", "")
	if !errors.Is(err, persistence.ErrInvalidArgument) {
		t.Errorf("err = %v, want InvalidArgument when neither id is given", err)
	}
	if persistence.Retryable(err) {
		t.Error("a rejected argument should not be retryable")
	}
}

func TestCreateTokenBindsBothIdentities(t *testing.T) {
	store := newFakeAuthStore()
	svc := NewAuthService(store)
	ctx := context.Background()

	token, err := svc.CreateToken(ctx, strPtr("game-1"), strPtr("alice"), "", "")
	if err != nil {
		t.Fatalf("CreateToken failed: %v", err)
	}
	session, err := svc.ValidateToken(ctx, token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if session.GameID == nil || *session.GameID != "game-1" {
		t.Errorf("session game = %v, want game-1", session.GameID)
	}
	if session.PlayerID == nil || *session.PlayerID != "alice" {
		t.Errorf("session player = %v, want alice", session.PlayerID)
	}
}

func TestValidateUnknownToken(t *testing.T) {
	svc := NewAuthService(newFakeAuthStore())

	_, err := svc.ValidateToken(context.Background(), "bogus")
	if !errors.Is(err, persistence.ErrSessionNotFound) {
		t.Errorf("unknown token = %v, want SessionNotFound", err)
	}
}

func TestRevokeToken(t *testing.T) {
	store := newFakeAuthStore()
	svc := NewAuthService(store)
	ctx := context.Background()

	token, err := svc.CreateToken(ctx, strPtr("game-1"), nil, "", "")
	if err != nil {
		t.Fatalf("CreateToken failed: %v", err)
	}
	if err := svc.RevokeToken(ctx, token); err != nil {
		t.Fatalf("RevokeToken failed: %v", err)
	}
	if _, err := svc.ValidateToken(ctx, token); !errors.Is(err, persistence.ErrSessionNotFound) {
		t.Errorf("revoked token = %v, want SessionNotFound", err)
	}
}

func TestHashPasswordRoundTrip(t *testing.T) {
	_, hashed, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if !CheckPassword(hashed, "s3cret") {
		t.Error("correct password did not verify")
	}
	if CheckPassword(hashed, "S3cret") {
		t.Error("wrong password verified")
	}
}

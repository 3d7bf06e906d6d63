package persistence

import (
	"context"
	"time"

	"github.com/wfunc/turnserver/models"
)

// Credential is a pre-hashed password pair supplied at creation time so the
// password row lands in the same transaction as the entity row.
type Credential struct {
	Salt   []byte
	Hashed []byte
}

// Simulator runs the external physics engine on the active pieces. The
// implementation is the trust boundary around the untrusted subprocess.
type Simulator interface {
	Run(ctx context.Context, pieces []models.Piece, boardBefore, boardAfter int) ([]models.Piece, error)
}

// TurnScheduler enqueues a deferred advance-turn job. Delivery is
// at-least-once; stale firings resolve as TurnMismatch in the store.
// Scheduling failures are logged by the store, never fatal.
type TurnScheduler interface {
	ScheduleTurn(gameID string, turnNumber int, eta time.Time) error
}

// GameStore 游戏状态的唯一持有者。所有写操作在单个事务内完成，
// 并以 game_id 为粒度互斥。
type GameStore interface {
	// Lifecycle
	CreateGame(ctx context.Context, gameID string, settings models.GameSettings, startDelay time.Duration, cred *Credential) (time.Time, error)
	StartGame(ctx context.Context, gameID string, pieces []models.Piece, colors map[string]string, lastTurnTime time.Time) error
	DeleteGame(ctx context.Context, gameID string, requester string) error

	// Players
	CreatePlayer(ctx context.Context, playerID string, cred *Credential) error
	AddPlayerToGame(ctx context.Context, gameID, playerID, name string, color *string) error
	LeaveGame(ctx context.Context, gameID, playerID string) error
	ListPlayers(ctx context.Context, gameID string) ([]models.PlayerInfo, error)

	// Read-side queries (no state changes)
	GetGame(ctx context.Context, gameID string) (*models.Game, error)
	GetGameSummary(ctx context.Context, gameID string) (*models.GameSummary, error)
	GetGameSettings(ctx context.Context, gameID string) (*models.GameSettings, error)
	GetGameState(ctx context.Context, gameID string) (*models.GameState, error)
	GetCurrentTurn(ctx context.Context, gameID string) (int, error)
	GetGameCreator(ctx context.Context, gameID string) (*string, error)
	AllPlayersSubmitted(ctx context.Context, gameID string) (bool, error)

	// Turn submission / advancement (atomic paths)
	SubmitTurn(ctx context.Context, gameID, playerID string, turnNumber int, actions []models.TurnAction) error
	AdvanceTurnIfReady(ctx context.Context, gameID string, turnNumber int) (bool, error)

	// Pieces / simulation data
	GetPieces(ctx context.Context, gameID string) ([]models.Piece, error)
	ReplacePieces(ctx context.Context, gameID string, pieces []models.Piece) error

	// Unused game id pool
	AddUnusedGameIDs(ctx context.Context, names []string) (int, error)
	ListUnusedGameIDs(ctx context.Context, limit int) ([]string, error)
	CountUnusedGameIDs(ctx context.Context) (int, error)
	ReserveUnusedGameID(ctx context.Context, leaseSeconds int) (string, error)
	ClearStaleLeases(ctx context.Context) (int, error)

	// Maintenance
	DeleteStaleGames(ctx context.Context, inactivityDays int) (int, error)
	DeleteStalePlayers(ctx context.Context, inactivityDays int) (int, error)

	Close() error
}

// AuthStore 密码与会话令牌的唯一持有者，与游戏逻辑完全解耦。
type AuthStore interface {
	SetGamePassword(ctx context.Context, gameID string, salt, hashed []byte) error
	SetPlayerPassword(ctx context.Context, playerID string, salt, hashed []byte) error
	GetGamePassword(ctx context.Context, gameID string) (salt, hashed []byte, err error)
	GetPlayerPassword(ctx context.Context, playerID string) (salt, hashed []byte, err error)

	CreateSessionToken(ctx context.Context, token string, gameID, playerID *string, expiresAt time.Time) error
	ValidateSessionToken(ctx context.Context, token string) (*models.Session, error)
	InvalidateSession(ctx context.Context, token string) error
	RefreshSession(ctx context.Context, token string, newExpiresAt time.Time) error
	DeleteExpiredSessions(ctx context.Context) (int, error)

	Close() error
}

// persistence/pq_authstore.go
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/wfunc/turnserver/logger"
	"github.com/wfunc/turnserver/models"
)

// PqAuthStore 使用 database/sql + lib/pq 实现 AuthStore。
// 凭据与会话与游戏逻辑完全解耦，走独立连接池。
type PqAuthStore struct {
	db *sql.DB
}

var _ AuthStore = (*PqAuthStore)(nil)

// NewPqAuthStore 创建PostgreSQL认证存储连接并初始化表结构。
func NewPqAuthStore(host string, port int, user, password, dbname string) (*PqAuthStore, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	// 设置连接池
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := &PqAuthStore{db: db}
	if err := store.initTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// initTables 初始化认证相关表
func (s *PqAuthStore) initTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS game_passwords (
			game_id TEXT PRIMARY KEY,
			salt BYTEA NOT NULL,
			hashed BYTEA NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS player_passwords (
			player_id TEXT PRIMARY KEY,
			salt BYTEA NOT NULL,
			hashed BYTEA NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS session_tokens (
			session_token TEXT PRIMARY KEY,
			game_id TEXT,
			player_id TEXT,
			expires_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_tokens_expires_at ON session_tokens (expires_at)`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// Close 关闭数据库连接
func (s *PqAuthStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// SetGamePassword 为已存在的游戏设置密码；每个游戏只允许设置一次。
func (s *PqAuthStore) SetGamePassword(ctx context.Context, gameID string, salt, hashed []byte) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM games WHERE game_id = $1)", gameID).Scan(&exists)
	if err != nil {
		return WrapUnexpected(err, "check game exists")
	}
	if !exists {
		return Errorf(KindGameNotFound, "game %s not found", gameID)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO game_passwords (game_id, salt, hashed) VALUES ($1, $2, $3)",
		gameID, salt, hashed)
	if err != nil {
		if isUniqueViolation(err) {
			return Errorf(KindPasswordAlreadyExists, "game password for %s already exists", gameID)
		}
		return WrapUnexpected(err, "set game password")
	}
	return nil
}

// SetPlayerPassword 为已存在的玩家设置密码；每个玩家只允许设置一次。
func (s *PqAuthStore) SetPlayerPassword(ctx context.Context, playerID string, salt, hashed []byte) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM players WHERE player_id = $1)", playerID).Scan(&exists)
	if err != nil {
		return WrapUnexpected(err, "check player exists")
	}
	if !exists {
		return Errorf(KindPlayerNotFound, "player %s not found", playerID)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO player_passwords (player_id, salt, hashed) VALUES ($1, $2, $3)",
		playerID, salt, hashed)
	if err != nil {
		if isUniqueViolation(err) {
			return Errorf(KindPasswordAlreadyExists, "player password for %s already exists", playerID)
		}
		return WrapUnexpected(err, "set player password")
	}
	return nil
}

// GetGamePassword 返回盐与哈希；游戏存在但未设密码时两者均为 nil。
func (s *PqAuthStore) GetGamePassword(ctx context.Context, gameID string) ([]byte, []byte, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM games WHERE game_id = $1)", gameID).Scan(&exists)
	if err != nil {
		return nil, nil, WrapUnexpected(err, "check game exists")
	}
	if !exists {
		return nil, nil, Errorf(KindGameNotFound, "game %s not found", gameID)
	}

	var salt, hashed []byte
	err = s.db.QueryRowContext(ctx,
		"SELECT salt, hashed FROM game_passwords WHERE game_id = $1", gameID).Scan(&salt, &hashed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, WrapUnexpected(err, "get game password")
	}
	return salt, hashed, nil
}

// GetPlayerPassword 返回盐与哈希；玩家存在但未设密码时两者均为 nil。
func (s *PqAuthStore) GetPlayerPassword(ctx context.Context, playerID string) ([]byte, []byte, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM players WHERE player_id = $1)", playerID).Scan(&exists)
	if err != nil {
		return nil, nil, WrapUnexpected(err, "check player exists")
	}
	if !exists {
		return nil, nil, Errorf(KindPlayerNotFound, "player %s not found", playerID)
	}

	var salt, hashed []byte
	err = s.db.QueryRowContext(ctx,
		"SELECT salt, hashed FROM player_passwords WHERE player_id = $1", playerID).Scan(&salt, &hashed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, WrapUnexpected(err, "get player password")
	}
	return salt, hashed, nil
}

// CreateSessionToken 写入（或覆盖）会话令牌。gameID/playerID 至少提供
// 一个，且必须指向真实存在的实体。
func (s *PqAuthStore) CreateSessionToken(ctx context.Context, token string, gameID, playerID *string, expiresAt time.Time) error {
	if gameID == nil && playerID == nil {
		return Errorf(KindInvalidArgument, "session token needs a game id or player id")
	}
	if gameID != nil {
		var exists bool
		err := s.db.QueryRowContext(ctx,
			"SELECT EXISTS (SELECT 1 FROM games WHERE game_id = $1)", *gameID).Scan(&exists)
		if err != nil {
			return WrapUnexpected(err, "check game exists")
		}
		if !exists {
			return Errorf(KindGameNotFound, "game %s not found", *gameID)
		}
	}
	if playerID != nil {
		var exists bool
		err := s.db.QueryRowContext(ctx,
			"SELECT EXISTS (SELECT 1 FROM players WHERE player_id = $1)", *playerID).Scan(&exists)
		if err != nil {
			return WrapUnexpected(err, "check player exists")
		}
		if !exists {
			return Errorf(KindPlayerNotFound, "player %s not found", *playerID)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_tokens (session_token, game_id, player_id, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_token) DO UPDATE
		SET game_id = EXCLUDED.game_id,
		    player_id = EXCLUDED.player_id,
		    expires_at = EXCLUDED.expires_at`,
		token, gameID, playerID, expiresAt.UTC())
	if err != nil {
		return WrapUnexpected(err, "create session token")
	}
	return nil
}

// ValidateSessionToken 解析令牌为身份。未知或已过期的令牌返回 (nil, nil)，
// 过期行顺手删掉。
func (s *PqAuthStore) ValidateSessionToken(ctx context.Context, token string) (*models.Session, error) {
	var gameID, playerID *string
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx,
		"SELECT game_id, player_id, expires_at FROM session_tokens WHERE session_token = $1",
		token).Scan(&gameID, &playerID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, WrapUnexpected(err, "validate session token")
	}

	if !expiresAt.After(time.Now().UTC()) {
		if _, err := s.db.ExecContext(ctx,
			"DELETE FROM session_tokens WHERE session_token = $1", token); err != nil {
			logger.Log.Warnw("failed to delete expired session token", "error", err)
		}
		return nil, nil
	}

	return &models.Session{GameID: gameID, PlayerID: playerID}, nil
}

// InvalidateSession 显式登出。令牌不存在返回 SessionNotFound。
func (s *PqAuthStore) InvalidateSession(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM session_tokens WHERE session_token = $1", token)
	if err != nil {
		return WrapUnexpected(err, "invalidate session")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return WrapUnexpected(err, "invalidate session")
	}
	if affected == 0 {
		return Errorf(KindSessionNotFound, "session token not found")
	}
	return nil
}

// RefreshSession 延长未过期令牌的有效期。
func (s *PqAuthStore) RefreshSession(ctx context.Context, token string, newExpiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE session_tokens SET expires_at = $1 WHERE session_token = $2 AND expires_at > $3",
		newExpiresAt.UTC(), token, time.Now().UTC())
	if err != nil {
		return WrapUnexpected(err, "refresh session")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return WrapUnexpected(err, "refresh session")
	}
	if affected == 0 {
		return Errorf(KindSessionNotFound, "session token not found or expired")
	}
	return nil
}

// DeleteExpiredSessions 批量清理过期会话。后台任务调用，失败只记日志。
func (s *PqAuthStore) DeleteExpiredSessions(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM session_tokens WHERE expires_at <= $1", time.Now().UTC())
	if err != nil {
		logger.Log.Errorw("failed to delete expired sessions", "error", err)
		return 0, nil
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(affected), nil
}

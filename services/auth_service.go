// services/auth_service.go
package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/wfunc/turnserver/models"
	"github.com/wfunc/turnserver/persistence"
)

// SessionTTL 会话令牌有效期
const SessionTTL = 48 * time.Hour

// HashPassword 生成密码哈希。bcrypt 把盐编进哈希本身，
// 单独的 salt 字段保留为空以兼容存储布局。
func HashPassword(password string) (salt, hashed []byte, err error) {
	hashed, err = bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, persistence.WrapUnexpected(err, "hash password")
	}
	return []byte{}, hashed, nil
}

// CheckPassword 校验密码
func CheckPassword(hashed []byte, password string) bool {
	return bcrypt.CompareHashAndPassword(hashed, []byte(password)) == nil
}

// AuthService 会话令牌的签发与校验。令牌可同时绑定游戏与玩家身份，
// 至少绑定其一。
type AuthService struct {
	auth persistence.AuthStore
}

func NewAuthService(auth persistence.AuthStore) *AuthService {
	return &AuthService{auth: auth}
}

// CreateToken 校验凭据并签发会话令牌。gameID/playerID 至少提供一个；
// 对应实体设置过密码的必须提供正确密码。
func (s *AuthService) CreateToken(ctx context.Context, gameID, playerID *string, gamePassword, playerPassword string) (string, error) {
	if gameID == nil && playerID == nil {
		return "", persistence.Errorf(persistence.KindInvalidArgument,
			"a game id or player id is required")
	}

	if gameID != nil {
		_, hashed, err := s.auth.GetGamePassword(ctx, *gameID)
		if err != nil {
			return "", err
		}
		if hashed != nil && !CheckPassword(hashed, gamePassword) {
			return "", persistence.Errorf(persistence.KindInvalidPassword,
				"wrong password for game %s", *gameID)
		}
	}
	if playerID != nil {
		_, hashed, err := s.auth.GetPlayerPassword(ctx, *playerID)
		if err != nil {
			return "", err
		}
		if hashed != nil && !CheckPassword(hashed, playerPassword) {
			return "", persistence.Errorf(persistence.KindInvalidPassword,
				"wrong password for player %s", *playerID)
		}
	}

	token := uuid.New().String() + uuid.New().String()
	expiresAt := time.Now().UTC().Add(SessionTTL)
	if err := s.auth.CreateSessionToken(ctx, token, gameID, playerID, expiresAt); err != nil {
		return "", err
	}
	return token, nil
}

// ValidateToken 解析令牌。未知或过期令牌返回 SessionNotFound。
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*models.Session, error) {
	session, err := s.auth.ValidateSessionToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, persistence.Errorf(persistence.KindSessionNotFound, "invalid or expired session")
	}
	return session, nil
}

// RefreshToken 把令牌有效期顺延一个完整周期。
func (s *AuthService) RefreshToken(ctx context.Context, token string) error {
	return s.auth.RefreshSession(ctx, token, time.Now().UTC().Add(SessionTTL))
}

// RevokeToken 吊销令牌
func (s *AuthService) RevokeToken(ctx context.Context, token string) error {
	return s.auth.InvalidateSession(ctx, token)
}

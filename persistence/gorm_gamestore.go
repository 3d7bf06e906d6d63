// persistence/gorm_gamestore.go
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wfunc/turnserver/logger"
	"github.com/wfunc/turnserver/models"
)

// GormGameStore 使用GORM的PostgreSQL实现GameStore。
//
// 每个写操作都在单个事务内执行，并先获取以 game_id 为键的
// pg_advisory_xact_lock，保证同一游戏上的提交、推进与管理操作互斥，
// 不同游戏之间仍可并发。
type GormGameStore struct {
	db    *gorm.DB
	sim   Simulator
	sched TurnScheduler
}

var _ GameStore = (*GormGameStore)(nil)

// NewGormGameStore 创建GORM PostgreSQL数据库连接并迁移表结构。
func NewGormGameStore(host string, port int, user, password, dbname string, sim Simulator, sched TurnScheduler) (*GormGameStore, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	// 配置GORM日志
	gormLogger := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold: time.Second,
			LogLevel:      gormlogger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return NewGormGameStoreWithDB(db, sim, sched)
}

// NewGormGameStoreWithDB wraps an existing handle; used by tests.
func NewGormGameStoreWithDB(db *gorm.DB, sim Simulator, sched TurnScheduler) (*GormGameStore, error) {
	if err := autoMigrate(db); err != nil {
		return nil, err
	}
	return &GormGameStore{db: db, sim: sim, sched: sched}, nil
}

// autoMigrate 自动迁移表结构
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.GameModel{},
		&models.GameSettingsModel{},
		&models.GameStateModel{},
		&models.PlayerModel{},
		&models.GamePlayerModel{},
		&models.PieceModel{},
		&models.PieceOldModel{},
		&models.UnusedGameIDModel{},
	)
}

// Close 关闭数据库连接
func (s *GormGameStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func now() time.Time {
	return time.Now().UTC()
}

// withGameLock runs fn in one transaction holding the per-game write lock.
// The advisory lock stands in for sqlite's BEGIN IMMEDIATE: it is acquired
// before any read that feeds a consistency decision, and it works even when
// the games row does not exist yet (creation path). Non-store errors are
// wrapped as UnexpectedResult so callers never see raw driver errors.
func (s *GormGameStore) withGameLock(ctx context.Context, gameID string, fn func(tx *gorm.DB) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", gameID).Error; err != nil {
			return err
		}
		return fn(tx)
	})
	return WrapUnexpected(err, "transaction on game "+gameID)
}

// -------------------------------------------------
// Lifecycle
// -------------------------------------------------

// CreateGame 创建新游戏并初始化设置与状态，返回计划开始时间。
// 子表（settings/state）先于 games 主表插入，保证任何依赖游戏存在性的
// 派生逻辑看到完整的子状态。密码与游戏行在同一事务中落库。
func (s *GormGameStore) CreateGame(ctx context.Context, gameID string, settings models.GameSettings, startDelay time.Duration, cred *Credential) (time.Time, error) {
	createdAt := now()
	startTime := createdAt.Add(startDelay)

	err := s.withGameLock(ctx, gameID, func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&models.GameModel{}).Where("game_id = ?", gameID).Count(&exists).Error; err != nil {
			return err
		}
		if exists > 0 {
			return Errorf(KindGameAlreadyExists, "game %s already exists", gameID)
		}

		if err := tx.Create(&models.GameSettingsModel{
			GameID:       gameID,
			MaxPlayers:   settings.MaxPlayers,
			BoardSize:    settings.BoardSize,
			BoardShrink:  settings.BoardShrink,
			TurnInterval: settings.TurnInterval,
		}).Error; err != nil {
			return err
		}

		if err := tx.Create(&models.GameStateModel{
			GameID:       gameID,
			TurnNumber:   0,
			LastTurnTime: &createdAt,
			NextTurnTime: &startTime,
		}).Error; err != nil {
			return err
		}

		if err := tx.Create(&models.GameModel{
			GameID:    gameID,
			StartTime: startTime,
			CreatedAt: createdAt,
		}).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// The existence check above ran under the game lock, so a
				// duplicate here means the lock was bypassed somehow.
				return Errorf(KindUnexpectedResult, "unexpected integrity error creating game %s", gameID)
			}
			return err
		}

		// The id came out of the suggestion pool; it is no longer unused.
		if err := tx.Where("name = ?", gameID).Delete(&models.UnusedGameIDModel{}).Error; err != nil {
			return err
		}

		if cred != nil {
			if err := insertGamePassword(tx, gameID, cred); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	logger.Log.Infow("game created", "game_id", gameID, "start_time", startTime)
	return startTime, nil
}

func insertGamePassword(tx *gorm.DB, gameID string, cred *Credential) error {
	res := tx.Exec(
		"INSERT INTO game_passwords (game_id, salt, hashed) VALUES (?, ?, ?) ON CONFLICT (game_id) DO NOTHING",
		gameID, cred.Salt, cred.Hashed,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return Errorf(KindPasswordAlreadyExists, "game password for %s already exists", gameID)
	}
	return nil
}

func insertPlayerPassword(tx *gorm.DB, playerID string, cred *Credential) error {
	res := tx.Exec(
		"INSERT INTO player_passwords (player_id, salt, hashed) VALUES (?, ?, ?) ON CONFLICT (player_id) DO NOTHING",
		playerID, cred.Salt, cred.Hashed,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return Errorf(KindPasswordAlreadyExists, "player password for %s already exists", playerID)
	}
	return nil
}

// StartGame 落库初始棋子、玩家颜色，回合号置 1 并计算下一回合时间。
// 提交后调度自动推进任务；调度失败只记日志，游戏状态保持有效。
func (s *GormGameStore) StartGame(ctx context.Context, gameID string, pieces []models.Piece, colors map[string]string, lastTurnTime time.Time) error {
	var nextTurnTime time.Time

	err := s.withGameLock(ctx, gameID, func(tx *gorm.DB) error {
		var game models.GameModel
		if err := tx.Where("game_id = ?", gameID).First(&game).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return Errorf(KindGameNotFound, "game %s not found", gameID)
			}
			return err
		}

		var state models.GameStateModel
		if err := tx.Where("game_id = ?", gameID).First(&state).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return Errorf(KindInvalidState, "game %s exists but has no state", gameID)
			}
			return err
		}
		if state.TurnNumber != 0 {
			return Errorf(KindTurnMismatch, "game %s has already been started (turn %d)", gameID, state.TurnNumber)
		}

		var settings models.GameSettingsModel
		if err := tx.Where("game_id = ?", gameID).First(&settings).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return Errorf(KindInvalidState, "game %s exists but has no settings", gameID)
			}
			return err
		}

		for playerID, color := range colors {
			if err := tx.Model(&models.GamePlayerModel{}).
				Where("game_id = ? AND player_id = ?", gameID, playerID).
				Update("color", color).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("game_id = ?", gameID).Delete(&models.PieceModel{}).Error; err != nil {
			return err
		}
		for _, p := range pieces {
			if err := tx.Create(pieceRow(gameID, p)).Error; err != nil {
				return err
			}
		}

		nextTurnTime = lastTurnTime.Add(time.Duration(settings.TurnInterval) * time.Second)
		ltt := lastTurnTime
		ntt := nextTurnTime
		return tx.Model(&models.GameStateModel{}).Where("game_id = ?", gameID).
			Updates(map[string]any{
				"turn_number":    1,
				"last_turn_time": &ltt,
				"next_turn_time": &ntt,
			}).Error
	})
	if err != nil {
		return err
	}

	s.scheduleTurn(gameID, 1, nextTurnTime)
	return nil
}

// scheduleTurn is fire-and-forget; a game without an auto-advance job can
// always be nudged manually through the admin RPC.
func (s *GormGameStore) scheduleTurn(gameID string, turnNumber int, eta time.Time) {
	if s.sched == nil {
		return
	}
	if err := s.sched.ScheduleTurn(gameID, turnNumber, eta); err != nil {
		logger.Log.Errorw("failed to schedule turn advancement",
			"game_id", gameID, "turn_number", turnNumber, "eta", eta, "error", err)
	}
}

func pieceRow(gameID string, p models.Piece) *models.PieceModel {
	m := models.PieceToModel(gameID, p)
	return &m
}

// DeleteGame 删除游戏及全部关联状态（settings/state/players/pieces/
// pieces_old/密码），全有或全无。调用方必须已验证 requester 为创建者。
func (s *GormGameStore) DeleteGame(ctx context.Context, gameID string, requester string) error {
	err := s.withGameLock(ctx, gameID, func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&models.GameModel{}).Where("game_id = ?", gameID).Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return Errorf(KindGameNotFound, "game %s not found", gameID)
		}
		return deleteGameRows(tx, []string{gameID})
	})
	if err != nil {
		return err
	}
	logger.Log.Infow("game deleted", "game_id", gameID, "requester", requester)
	return nil
}

func deleteGameRows(tx *gorm.DB, gameIDs []string) error {
	for _, model := range []any{
		&models.PieceModel{},
		&models.PieceOldModel{},
		&models.GamePlayerModel{},
		&models.GameSettingsModel{},
		&models.GameStateModel{},
		&models.GameModel{},
	} {
		if err := tx.Where("game_id IN ?", gameIDs).Delete(model).Error; err != nil {
			return err
		}
	}
	// game_passwords 没有 gorm 模型（认证存储建表），直接裸 SQL 清理，
	// 否则同名游戏重建后会撞上旧密码。
	return tx.Exec("DELETE FROM game_passwords WHERE game_id IN ?", gameIDs).Error
}

// -------------------------------------------------
// Players
// -------------------------------------------------

// CreatePlayer 创建全局玩家记录；若提供凭据则在同一事务中写入密码。
func (s *GormGameStore) CreatePlayer(ctx context.Context, playerID string, cred *Credential) error {
	return s.withGameLock(ctx, "player:"+playerID, func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&models.PlayerModel{}).Where("player_id = ?", playerID).Count(&exists).Error; err != nil {
			return err
		}
		if exists > 0 {
			return Errorf(KindPlayerAlreadyExists, "player %s already exists", playerID)
		}

		if err := tx.Create(&models.PlayerModel{PlayerID: playerID, DateCreated: now()}).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return Errorf(KindUnexpectedResult, "unexpected integrity error creating player %s", playerID)
			}
			return err
		}

		if cred != nil {
			return insertPlayerPassword(tx, playerID, cred)
		}
		return nil
	})
}

// AddPlayerToGame 将玩家加入游戏，强制 max_players 上限。
// 第一个加入的成员成为创建者。
func (s *GormGameStore) AddPlayerToGame(ctx context.Context, gameID, playerID, name string, color *string) error {
	return s.withGameLock(ctx, gameID, func(tx *gorm.DB) error {
		var settings models.GameSettingsModel
		if err := tx.Where("game_id = ?", gameID).First(&settings).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return Errorf(KindGameNotFound, "game %s not found", gameID)
			}
			return err
		}

		var playerExists int64
		if err := tx.Model(&models.PlayerModel{}).Where("player_id = ?", playerID).Count(&playerExists).Error; err != nil {
			return err
		}
		if playerExists == 0 {
			return Errorf(KindPlayerNotFound, "player %s not found", playerID)
		}

		var member int64
		if err := tx.Model(&models.GamePlayerModel{}).
			Where("game_id = ? AND player_id = ?", gameID, playerID).Count(&member).Error; err != nil {
			return err
		}
		if member > 0 {
			return Errorf(KindPlayerAlreadyJoinedGame, "player %s already in game %s", playerID, gameID)
		}

		var count int64
		if err := tx.Model(&models.GamePlayerModel{}).Where("game_id = ?", gameID).Count(&count).Error; err != nil {
			return err
		}
		if count >= int64(settings.MaxPlayers) {
			return Errorf(KindGameFull, "game %s is full", gameID)
		}

		if err := tx.Create(&models.GamePlayerModel{
			GameID:   gameID,
			PlayerID: playerID,
			Name:     name,
			Color:    color,
			JoinedAt: now(),
		}).Error; err != nil {
			return err
		}

		// First member becomes creator.
		if count == 0 {
			if err := tx.Model(&models.GameModel{}).Where("game_id = ? AND creator_player_id IS NULL", gameID).
				Update("creator_player_id", playerID).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// LeaveGame 将玩家移出游戏。若离开的是创建者，则把创建者让给最早加入的
// 剩余成员（player_id 作为次序并列时的决胜键）；无人剩余时置空。
func (s *GormGameStore) LeaveGame(ctx context.Context, gameID, playerID string) error {
	return s.withGameLock(ctx, gameID, func(tx *gorm.DB) error {
		var game models.GameModel
		if err := tx.Where("game_id = ?", gameID).First(&game).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return Errorf(KindGameNotFound, "game %s not found", gameID)
			}
			return err
		}

		res := tx.Where("game_id = ? AND player_id = ?", gameID, playerID).Delete(&models.GamePlayerModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return Errorf(KindPlayerNotFound, "player %s not in game %s", playerID, gameID)
		}

		if game.CreatorPlayerID != nil && *game.CreatorPlayerID == playerID {
			var next models.GamePlayerModel
			err := tx.Where("game_id = ?", gameID).
				Order("joined_at ASC, player_id ASC").First(&next).Error
			switch {
			case err == nil:
				return tx.Model(&models.GameModel{}).Where("game_id = ?", gameID).
					Update("creator_player_id", next.PlayerID).Error
			case errors.Is(err, gorm.ErrRecordNotFound):
				return tx.Model(&models.GameModel{}).Where("game_id = ?", gameID).
					Update("creator_player_id", nil).Error
			default:
				return err
			}
		}
		return nil
	})
}

// ListPlayers 返回游戏内玩家（只读）。
func (s *GormGameStore) ListPlayers(ctx context.Context, gameID string) ([]models.PlayerInfo, error) {
	var rows []models.GamePlayerModel
	if err := s.db.WithContext(ctx).Where("game_id = ?", gameID).
		Order("joined_at ASC, player_id ASC").Find(&rows).Error; err != nil {
		return nil, WrapUnexpected(err, "list players")
	}
	players := make([]models.PlayerInfo, 0, len(rows))
	for _, r := range rows {
		players = append(players, models.PlayerInfo{
			PlayerID:      r.PlayerID,
			Name:          r.Name,
			Color:         r.Color,
			SubmittedTurn: r.SubmittedTurn,
		})
	}
	return players, nil
}

// -------------------------------------------------
// Turn submission (atomic path)
// -------------------------------------------------

// SubmitTurn 原子地持久化玩家的回合操作：校验游戏、成员与回合号，
// 仅更新该玩家拥有的棋子速度（非本人棋子的操作被静默跳过），
// 最后标记 submitted_turn。
func (s *GormGameStore) SubmitTurn(ctx context.Context, gameID, playerID string, turnNumber int, actions []models.TurnAction) error {
	return s.withGameLock(ctx, gameID, func(tx *gorm.DB) error {
		var state models.GameStateModel
		if err := tx.Where("game_id = ?", gameID).First(&state).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return Errorf(KindGameNotFound, "game %s not found", gameID)
			}
			return err
		}

		var member int64
		if err := tx.Model(&models.GamePlayerModel{}).
			Where("game_id = ? AND player_id = ?", gameID, playerID).Count(&member).Error; err != nil {
			return err
		}
		if member == 0 {
			return Errorf(KindPlayerNotFound, "player %s not in game %s", playerID, gameID)
		}

		if state.TurnNumber != turnNumber {
			return Errorf(KindTurnMismatch, "expected turn %d, got %d", state.TurnNumber, turnNumber)
		}

		// Ownership check lives in the WHERE clause: actions against pieces
		// the player does not own match zero rows.
		for _, a := range actions {
			if err := tx.Model(&models.PieceModel{}).
				Where("game_id = ? AND piece_id = ? AND owner_player_id = ?", gameID, a.PieceID, playerID).
				Updates(map[string]any{"vx": a.VX, "vy": a.VY}).Error; err != nil {
				return err
			}
		}

		return tx.Model(&models.GamePlayerModel{}).
			Where("game_id = ? AND player_id = ?", gameID, playerID).
			Update("submitted_turn", true).Error
	})
}

// -------------------------------------------------
// Turn advancement (atomic path)
// -------------------------------------------------

// AdvanceTurnIfReady 回合推进的核心原子操作。在同一把游戏写锁事务内：
// 校验回合号 → 过滤活跃棋子并调用模拟网关 → 快照 pieces 到 pieces_old →
// 以模拟输出替换 pieces（owner 按 piece_id 从输入侧回填，不信任引擎回显）→
// 清空提交标记 → 回合号加一、棋盘缩小、刷新时间戳。任何异常整体回滚。
// 提交成功后再调度下一次自动推进（尽力而为）。
func (s *GormGameStore) AdvanceTurnIfReady(ctx context.Context, gameID string, turnNumber int) (bool, error) {
	var nextTurnTime time.Time

	err := s.withGameLock(ctx, gameID, func(tx *gorm.DB) error {
		var state models.GameStateModel
		if err := tx.Where("game_id = ?", gameID).First(&state).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return Errorf(KindGameNotFound, "game %s not found", gameID)
			}
			return err
		}
		if state.TurnNumber != turnNumber {
			return Errorf(KindTurnMismatch, "expected turn %d, got %d", state.TurnNumber, turnNumber)
		}

		var playerCount int64
		if err := tx.Model(&models.GamePlayerModel{}).Where("game_id = ?", gameID).Count(&playerCount).Error; err != nil {
			return err
		}
		if playerCount == 0 {
			return Errorf(KindInvalidState, "no players in game %s", gameID)
		}

		var settings models.GameSettingsModel
		if err := tx.Where("game_id = ?", gameID).First(&settings).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return Errorf(KindInvalidState, "game %s exists but has no settings", gameID)
			}
			return err
		}

		var pieceRows []models.PieceModel
		if err := tx.Where("game_id = ?", gameID).Order("piece_id ASC").Find(&pieceRows).Error; err != nil {
			return err
		}

		// Out pieces are excluded from simulation input but retained in the
		// new piece set so clients can keep rendering their last position.
		var active, eliminated []models.Piece
		owners := make(map[int]string, len(pieceRows))
		for _, row := range pieceRows {
			p := row.ToPiece()
			owners[p.PieceID] = p.Owner
			if p.Eliminated() {
				eliminated = append(eliminated, p)
			} else {
				active = append(active, p)
			}
		}

		boardBefore := settings.BoardSize
		boardAfter := settings.BoardSize - settings.BoardShrink
		simulated, err := s.sim.Run(ctx, active, boardBefore, boardAfter)
		if err != nil {
			return err
		}

		// Snapshot the pre-advancement pieces for client-side diffing.
		if err := tx.Where("game_id = ?", gameID).Delete(&models.PieceOldModel{}).Error; err != nil {
			return err
		}
		if err := tx.Exec(`
			INSERT INTO pieces_old (game_id, piece_id, owner_player_id, x, y, vx, vy, radius, mass, status)
			SELECT game_id, piece_id, owner_player_id, x, y, vx, vy, radius, mass, status
			FROM pieces WHERE game_id = ?`, gameID).Error; err != nil {
			return err
		}

		if err := tx.Where("game_id = ?", gameID).Delete(&models.PieceModel{}).Error; err != nil {
			return err
		}
		for _, p := range simulated {
			// The engine is never trusted to echo ownership correctly.
			if owner, ok := owners[p.PieceID]; ok {
				p.Owner = owner
			}
			if err := tx.Create(pieceRow(gameID, p)).Error; err != nil {
				return err
			}
		}
		for _, p := range eliminated {
			if err := tx.Create(pieceRow(gameID, p)).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&models.GamePlayerModel{}).Where("game_id = ?", gameID).
			Update("submitted_turn", false).Error; err != nil {
			return err
		}

		// The board shrinks once per advancement.
		if err := tx.Model(&models.GameSettingsModel{}).Where("game_id = ?", gameID).
			Update("board_size", boardAfter).Error; err != nil {
			return err
		}

		lastTurnTime := now()
		nextTurnTime = lastTurnTime.Add(time.Duration(settings.TurnInterval) * time.Second)
		return tx.Model(&models.GameStateModel{}).Where("game_id = ?", gameID).
			Updates(map[string]any{
				"turn_number":    gorm.Expr("turn_number + 1"),
				"last_turn_time": &lastTurnTime,
				"next_turn_time": &nextTurnTime,
			}).Error
	})
	if err != nil {
		return false, err
	}

	logger.Log.Infow("turn advanced", "game_id", gameID, "turn_number", turnNumber+1)
	s.scheduleTurn(gameID, turnNumber+1, nextTurnTime)
	return true, nil
}

// -------------------------------------------------
// Pieces / simulation data
// -------------------------------------------------

// GetPieces 返回当前棋子（只读）。
func (s *GormGameStore) GetPieces(ctx context.Context, gameID string) ([]models.Piece, error) {
	var rows []models.PieceModel
	if err := s.db.WithContext(ctx).Where("game_id = ?", gameID).
		Order("piece_id ASC").Find(&rows).Error; err != nil {
		return nil, WrapUnexpected(err, "get pieces")
	}
	pieces := make([]models.Piece, 0, len(rows))
	for _, r := range rows {
		pieces = append(pieces, r.ToPiece())
	}
	return pieces, nil
}

// ReplacePieces 无条件整体替换棋子，供低层模拟工具使用。
// 调用方不得用它与 AdvanceTurnIfReady 竞争。
func (s *GormGameStore) ReplacePieces(ctx context.Context, gameID string, pieces []models.Piece) error {
	return s.withGameLock(ctx, gameID, func(tx *gorm.DB) error {
		if err := tx.Where("game_id = ?", gameID).Delete(&models.PieceModel{}).Error; err != nil {
			return err
		}
		for _, p := range pieces {
			if err := tx.Create(pieceRow(gameID, p)).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

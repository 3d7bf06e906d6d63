// persistence/gorm_gamestore_queries.go
package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/wfunc/turnserver/models"
)

// 只读查询。读操作不取游戏写锁；单条 SELECT 本身即一致快照。

// GetGame 返回游戏完整视图。games 行存在但 settings/state 缺失视为
// 持久化数据损坏，返回 InvalidState。
func (s *GormGameStore) GetGame(ctx context.Context, gameID string) (*models.Game, error) {
	db := s.db.WithContext(ctx)

	var game models.GameModel
	if err := db.Where("game_id = ?", gameID).First(&game).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, Errorf(KindGameNotFound, "game %s not found", gameID)
		}
		return nil, WrapUnexpected(err, "get game")
	}

	var settingsRow models.GameSettingsModel
	if err := db.Where("game_id = ?", gameID).First(&settingsRow).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, Errorf(KindInvalidState, "game %s exists but has no settings", gameID)
		}
		return nil, WrapUnexpected(err, "get game settings")
	}

	var stateRow models.GameStateModel
	if err := db.Where("game_id = ?", gameID).First(&stateRow).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, Errorf(KindInvalidState, "game %s exists but has no state", gameID)
		}
		return nil, WrapUnexpected(err, "get game state")
	}

	var playerRows []models.GamePlayerModel
	if err := db.Where("game_id = ?", gameID).Find(&playerRows).Error; err != nil {
		return nil, WrapUnexpected(err, "get game players")
	}
	players := make(map[string]models.Player, len(playerRows))
	for _, r := range playerRows {
		players[r.PlayerID] = models.Player{
			Name:          r.Name,
			Color:         r.Color,
			SubmittedTurn: r.SubmittedTurn,
		}
	}

	var pieceRows []models.PieceModel
	if err := db.Where("game_id = ?", gameID).Order("piece_id ASC").Find(&pieceRows).Error; err != nil {
		return nil, WrapUnexpected(err, "get game pieces")
	}
	pieces := make([]models.Piece, 0, len(pieceRows))
	for _, r := range pieceRows {
		pieces = append(pieces, r.ToPiece())
	}

	var oldRows []models.PieceOldModel
	if err := db.Where("game_id = ?", gameID).Order("piece_id ASC").Find(&oldRows).Error; err != nil {
		return nil, WrapUnexpected(err, "get game pieces_old")
	}
	piecesOld := make([]models.Piece, 0, len(oldRows))
	for _, r := range oldRows {
		piecesOld = append(piecesOld, r.ToPiece())
	}

	startTime := game.StartTime
	return &models.Game{
		GameID:  gameID,
		Creator: game.CreatorPlayerID,
		Settings: models.GameSettings{
			MaxPlayers:   settingsRow.MaxPlayers,
			BoardSize:    settingsRow.BoardSize,
			BoardShrink:  settingsRow.BoardShrink,
			TurnInterval: settingsRow.TurnInterval,
		},
		State: models.GameState{
			TurnNumber:   stateRow.TurnNumber,
			LastTurnTime: stateRow.LastTurnTime,
			NextTurnTime: stateRow.NextTurnTime,
		},
		Players:   players,
		Pieces:    pieces,
		PiecesOld: piecesOld,
		StartTime: &startTime,
	}, nil
}

// GetGameSummary 返回轮询端点所需的最小状态
func (s *GormGameStore) GetGameSummary(ctx context.Context, gameID string) (*models.GameSummary, error) {
	db := s.db.WithContext(ctx)

	var stateRow models.GameStateModel
	if err := db.Where("game_id = ?", gameID).First(&stateRow).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, Errorf(KindGameNotFound, "game %s not found", gameID)
		}
		return nil, WrapUnexpected(err, "get game summary")
	}

	var settingsRow models.GameSettingsModel
	if err := db.Where("game_id = ?", gameID).First(&settingsRow).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, Errorf(KindInvalidState, "game %s exists but has no settings", gameID)
		}
		return nil, WrapUnexpected(err, "get game summary settings")
	}

	return &models.GameSummary{
		GameID:       gameID,
		TurnNumber:   stateRow.TurnNumber,
		LastTurnTime: stateRow.LastTurnTime,
		NextTurnTime: stateRow.NextTurnTime,
		MaxPlayers:   settingsRow.MaxPlayers,
		BoardSize:    settingsRow.BoardSize,
	}, nil
}

// GetGameSettings 返回游戏静态配置
func (s *GormGameStore) GetGameSettings(ctx context.Context, gameID string) (*models.GameSettings, error) {
	var row models.GameSettingsModel
	if err := s.db.WithContext(ctx).Where("game_id = ?", gameID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, Errorf(KindGameNotFound, "game %s not found", gameID)
		}
		return nil, WrapUnexpected(err, "get game settings")
	}
	return &models.GameSettings{
		MaxPlayers:   row.MaxPlayers,
		BoardSize:    row.BoardSize,
		BoardShrink:  row.BoardShrink,
		TurnInterval: row.TurnInterval,
	}, nil
}

// GetGameState 返回游戏动态状态
func (s *GormGameStore) GetGameState(ctx context.Context, gameID string) (*models.GameState, error) {
	var row models.GameStateModel
	if err := s.db.WithContext(ctx).Where("game_id = ?", gameID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, Errorf(KindGameNotFound, "game %s not found", gameID)
		}
		return nil, WrapUnexpected(err, "get game state")
	}
	return &models.GameState{
		TurnNumber:   row.TurnNumber,
		LastTurnTime: row.LastTurnTime,
		NextTurnTime: row.NextTurnTime,
	}, nil
}

// GetCurrentTurn 返回当前回合号
func (s *GormGameStore) GetCurrentTurn(ctx context.Context, gameID string) (int, error) {
	state, err := s.GetGameState(ctx, gameID)
	if err != nil {
		return 0, err
	}
	return state.TurnNumber, nil
}

// GetGameCreator 返回创建者 player_id；可能为 nil（尚无人加入或全部离开）。
func (s *GormGameStore) GetGameCreator(ctx context.Context, gameID string) (*string, error) {
	var game models.GameModel
	if err := s.db.WithContext(ctx).Where("game_id = ?", gameID).First(&game).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, Errorf(KindGameNotFound, "game %s not found", gameID)
		}
		return nil, WrapUnexpected(err, "get game creator")
	}
	return game.CreatorPlayerID, nil
}

// AllPlayersSubmitted 空游戏返回 false。
func (s *GormGameStore) AllPlayersSubmitted(ctx context.Context, gameID string) (bool, error) {
	db := s.db.WithContext(ctx)

	var total int64
	if err := db.Model(&models.GamePlayerModel{}).Where("game_id = ?", gameID).Count(&total).Error; err != nil {
		return false, WrapUnexpected(err, "count players")
	}
	if total == 0 {
		return false, nil
	}

	var submitted int64
	if err := db.Model(&models.GamePlayerModel{}).
		Where("game_id = ? AND submitted_turn = ?", gameID, true).Count(&submitted).Error; err != nil {
		return false, WrapUnexpected(err, "count submitted players")
	}
	return submitted == total, nil
}

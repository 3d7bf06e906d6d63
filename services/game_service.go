// services/game_service.go
package services

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/wfunc/turnserver/config"
	"github.com/wfunc/turnserver/logger"
	"github.com/wfunc/turnserver/models"
	"github.com/wfunc/turnserver/monitor"
	"github.com/wfunc/turnserver/persistence"
)

const (
	// 棋子初始落点距棋盘边缘的缓冲
	edgeBuffer = 50.0
	// 初始落点之间的最小间距
	minSeparationPadding = 5.0
	// 随机落点的最大尝试次数，超过则放宽间距约束直接落子
	maxPlacementAttempts = 1000

	// SystemActor 后台任务与管理接口使用的请求者身份
	SystemActor = "system"
)

// 玩家颜色按加入顺序循环分配
var colorPalette = []string{
	"#FF0000", "#00FF00", "#0000FF", "#FF00FF", "#00FFFF", "#FFA500",
	"#800080", "#008000", "#FFC0CB", "#A52A2A", "#808000", "#000080",
	"#800000", "#008080", "#C0C0C0", "#FFD700", "#DC143C", "#4682B4",
	"#DA70D6", "#ADFF2F", "#40E0D0", "#FA8072", "#7FFF00", "#1E90FF",
	"#BA55D3", "#FF8C00", "#B0C4DE", "#2E8B57", "#F08080", "#00CED1",
	"#FF1493", "#ADFF2F", "#FF4500", "#9ACD32", "#708090", "#20B2AA",
	"#CD5C5C", "#F0E68C", "#9932CC", "#8FBC8F", "#E9967A", "#B22222",
	"#5F9EA0", "#66CDAA", "#BC8F8F", "#556B2F", "#D2691E", "#483D8B",
	"#FF6347", "#6495ED", "#E6E6FA", "#BDB76B", "#A9A9A9",
}

// GameService 游戏生命周期与回合推进的业务编排。所有状态都在存储层，
// 本层只做校验、默认值填充与棋子生成，自身无共享可变状态。
type GameService struct {
	store persistence.GameStore
	cfg   config.GameConfig
}

func NewGameService(store persistence.GameStore, cfg config.GameConfig) *GameService {
	return &GameService{store: store, cfg: cfg}
}

// CreateGame 创建游戏。gameID 为空时优先从候选池租一个名字，
// 池空则退回随机 ID。密码可选，哈希后与游戏行同事务落库。
func (s *GameService) CreateGame(ctx context.Context, gameID string, settings *models.GameSettings, password string) (string, time.Time, error) {
	if gameID == "" {
		reserved, err := s.store.ReserveUnusedGameID(ctx, s.cfg.GameIDLeaseSeconds)
		if err != nil {
			logger.Log.Warnw("failed to reserve game id from pool", "error", err)
		}
		gameID = reserved
	}
	if gameID == "" {
		gameID = "game-" + uuid.New().String()[:8]
	}

	resolved := s.resolveSettings(settings)

	var cred *persistence.Credential
	if password != "" {
		salt, hashed, err := HashPassword(password)
		if err != nil {
			return "", time.Time{}, err
		}
		cred = &persistence.Credential{Salt: salt, Hashed: hashed}
	}

	startDelay := time.Duration(s.cfg.StartDelay) * time.Second
	startTime, err := s.store.CreateGame(ctx, gameID, resolved, startDelay, cred)
	if err != nil {
		return "", time.Time{}, err
	}
	return gameID, startTime, nil
}

// resolveSettings 填充缺省配置
func (s *GameService) resolveSettings(settings *models.GameSettings) models.GameSettings {
	resolved := models.GameSettings{
		MaxPlayers:   s.cfg.MaxPlayers,
		BoardSize:    s.cfg.BoardSize,
		BoardShrink:  s.cfg.BoardShrink,
		TurnInterval: s.cfg.TurnInterval,
	}
	if settings == nil {
		return resolved
	}
	if settings.MaxPlayers > 0 {
		resolved.MaxPlayers = settings.MaxPlayers
	}
	if settings.BoardSize > 0 {
		resolved.BoardSize = settings.BoardSize
	}
	if settings.BoardShrink > 0 {
		resolved.BoardShrink = settings.BoardShrink
	}
	if settings.TurnInterval > 0 {
		resolved.TurnInterval = settings.TurnInterval
	}
	return resolved
}

// CreatePlayer 创建玩家，密码可选。
func (s *GameService) CreatePlayer(ctx context.Context, playerID, password string) error {
	var cred *persistence.Credential
	if password != "" {
		salt, hashed, err := HashPassword(password)
		if err != nil {
			return err
		}
		cred = &persistence.Credential{Salt: salt, Hashed: hashed}
	}
	return s.store.CreatePlayer(ctx, playerID, cred)
}

// JoinGame 玩家加入游戏。颜色在开局时按加入顺序统一分配。
func (s *GameService) JoinGame(ctx context.Context, gameID, playerID, name string) error {
	if name == "" {
		name = playerID
	}
	return s.store.AddPlayerToGame(ctx, gameID, playerID, name, nil)
}

// LeaveGame 玩家离开游戏。
func (s *GameService) LeaveGame(ctx context.Context, gameID, playerID string) error {
	return s.store.LeaveGame(ctx, gameID, playerID)
}

// DeleteGame 删除游戏，仅创建者（或系统）可操作。
func (s *GameService) DeleteGame(ctx context.Context, gameID, requester string) error {
	if requester != SystemActor {
		creator, err := s.store.GetGameCreator(ctx, gameID)
		if err != nil {
			return err
		}
		if creator == nil || *creator != requester {
			return persistence.Errorf(persistence.KindCreatorOnlyAction,
				"only the creator may delete game %s", gameID)
		}
	}
	return s.store.DeleteGame(ctx, gameID, requester)
}

// StartGame 开局：按加入顺序分配颜色、生成初始棋子、回合号推到 1。
// 仅创建者或系统任务可触发。
func (s *GameService) StartGame(ctx context.Context, gameID, requester string) error {
	if requester != SystemActor {
		creator, err := s.store.GetGameCreator(ctx, gameID)
		if err != nil {
			return err
		}
		if creator == nil || *creator != requester {
			return persistence.Errorf(persistence.KindCreatorOnlyAction,
				"only the creator may start game %s", gameID)
		}
	}

	settings, err := s.store.GetGameSettings(ctx, gameID)
	if err != nil {
		return err
	}
	players, err := s.store.ListPlayers(ctx, gameID)
	if err != nil {
		return err
	}
	if len(players) == 0 {
		return persistence.Errorf(persistence.KindInvalidState,
			"cannot start game %s with no players", gameID)
	}

	// ListPlayers is join-ordered, so colors follow join order.
	colors := make(map[string]string, len(players))
	for i, p := range players {
		colors[p.PlayerID] = colorPalette[i%len(colorPalette)]
	}

	pieces := s.initializePieces(players, settings, colors)
	return s.store.StartGame(ctx, gameID, pieces, colors, time.Now().UTC())
}

// initializePieces 为每名玩家生成初始棋子。piece_id 全局唯一：
// 玩家下标 * 每人棋子数 + 棋子下标。落点在留边后的棋盘内均匀随机，
// 且与已落棋子保持最小间距。
func (s *GameService) initializePieces(players []models.PlayerInfo, settings *models.GameSettings, colors map[string]string) []models.Piece {
	perPlayer := s.cfg.PiecesPerPlayer
	spread := float64(settings.BoardSize) - edgeBuffer
	minSep := 2*models.DefaultRadius + minSeparationPadding

	pieces := make([]models.Piece, 0, len(players)*perPlayer)
	for i, player := range players {
		for j := 0; j < perPlayer; j++ {
			x, y := placePiece(pieces, spread, minSep)
			pieces = append(pieces, models.Piece{
				Owner:   player.PlayerID,
				PieceID: i*perPlayer + j,
				X:       x,
				Y:       y,
				Radius:  models.DefaultRadius,
				Mass:    models.DefaultMass,
				Color:   colors[player.PlayerID],
				Status:  models.PieceIn,
			})
		}
	}
	return pieces
}

func placePiece(placed []models.Piece, spread, minSep float64) (float64, float64) {
	for attempt := 0; attempt < maxPlacementAttempts; attempt++ {
		x := (rand.Float64() - 0.5) * spread
		y := (rand.Float64() - 0.5) * spread
		if !overlaps(placed, x, y, minSep) {
			return x, y
		}
	}
	// Board too crowded for the separation constraint; fall back to any spot.
	return (rand.Float64() - 0.5) * spread, (rand.Float64() - 0.5) * spread
}

func overlaps(placed []models.Piece, x, y, minSep float64) bool {
	for _, p := range placed {
		dx := p.X - x
		dy := p.Y - y
		if dx*dx+dy*dy < minSep*minSep {
			return true
		}
	}
	return false
}

// SubmitTurn 提交玩家本回合操作，返回是否所有玩家均已提交。
func (s *GameService) SubmitTurn(ctx context.Context, gameID, playerID string, turnNumber int, actions []models.TurnAction) (bool, error) {
	if err := s.store.SubmitTurn(ctx, gameID, playerID, turnNumber, actions); err != nil {
		return false, err
	}
	return s.store.AllPlayersSubmitted(ctx, gameID)
}

// ApplyMovesAndRunGame 尝试推进回合。回合号过期（任务重复触发或
// 已被抢先推进）是正常结果而不是错误，返回 advanced=false。
func (s *GameService) ApplyMovesAndRunGame(ctx context.Context, gameID string, turnNumber int) (bool, error) {
	advanced, err := s.store.AdvanceTurnIfReady(ctx, gameID, turnNumber)
	if err != nil {
		if errors.Is(err, persistence.ErrTurnMismatch) {
			monitor.TurnMismatches.Inc()
			return false, nil
		}
		return false, err
	}
	return advanced, nil
}

// RunScheduledTurn 调度器触发的自动推进入口。自带超时与指标上报，
// 不返回错误，失败只记日志（可重试的错误由下一次调度或人工补跑兜底）。
func (s *GameService) RunScheduledTurn(gameID string, turnNumber int) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	started := time.Now()
	advanced, err := s.ApplyMovesAndRunGame(ctx, gameID, turnNumber)
	if err != nil {
		if errors.Is(err, persistence.ErrSimulationError) {
			monitor.SimulationFailures.Inc()
		}
		logger.Log.Errorw("scheduled turn advancement failed",
			"game_id", gameID, "turn_number", turnNumber,
			"retryable", persistence.Retryable(err), "error", err)
		return
	}
	if advanced {
		monitor.TurnsAdvanced.Inc()
		monitor.SimulationDuration.Observe(time.Since(started).Seconds())
	}
}

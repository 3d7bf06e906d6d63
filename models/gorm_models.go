package models

import (
	"time"
)

// GORM 表模型。按照 delete_game 的级联要求，子表通过 constraint 标签挂在
// games 上；auth 相关的表（passwords/sessions）由 lib/pq 实现单独建表。

// GameModel 游戏主表
type GameModel struct {
	GameID          string     `gorm:"column:game_id;primaryKey"`
	CreatorPlayerID *string    `gorm:"column:creator_player_id"`
	StartTime       time.Time  `gorm:"not null"`
	CreatedAt       time.Time  `gorm:"not null"`
}

func (GameModel) TableName() string { return "games" }

// GameSettingsModel 游戏静态配置表
type GameSettingsModel struct {
	GameID       string `gorm:"column:game_id;primaryKey"`
	MaxPlayers   int    `gorm:"not null"`
	BoardSize    int    `gorm:"not null"`
	BoardShrink  int    `gorm:"not null"`
	TurnInterval int    `gorm:"not null"` // seconds
}

func (GameSettingsModel) TableName() string { return "game_settings" }

// GameStateModel 游戏动态状态表
type GameStateModel struct {
	GameID       string     `gorm:"column:game_id;primaryKey"`
	TurnNumber   int        `gorm:"not null;default:0"`
	LastTurnTime *time.Time `gorm:"column:last_turn_time"`
	NextTurnTime *time.Time `gorm:"column:next_turn_time"`
}

func (GameStateModel) TableName() string { return "game_state" }

// PlayerModel 全局玩家表
type PlayerModel struct {
	PlayerID    string    `gorm:"column:player_id;primaryKey"`
	DateCreated time.Time `gorm:"not null"`
}

func (PlayerModel) TableName() string { return "players" }

// GamePlayerModel 游戏成员表（一个玩家在一个游戏中最多出现一次）
type GamePlayerModel struct {
	GameID        string    `gorm:"column:game_id;primaryKey"`
	PlayerID      string    `gorm:"column:player_id;primaryKey;index"`
	Name          string    `gorm:"not null"`
	Color         *string   `gorm:"column:color"`
	SubmittedTurn bool      `gorm:"not null;default:false"`
	JoinedAt      time.Time `gorm:"not null"`
}

func (GamePlayerModel) TableName() string { return "game_players" }

// PieceModel 当前棋子表
type PieceModel struct {
	GameID        string  `gorm:"column:game_id;primaryKey"`
	PieceID       int     `gorm:"column:piece_id;primaryKey"`
	OwnerPlayerID string  `gorm:"column:owner_player_id;not null;index"`
	X             float64 `gorm:"not null"`
	Y             float64 `gorm:"not null"`
	VX            float64 `gorm:"column:vx;not null"`
	VY            float64 `gorm:"column:vy;not null"`
	Radius        float64 `gorm:"not null;default:30"`
	Mass          float64 `gorm:"not null;default:1"`
	Status        *string `gorm:"column:status"` // "in", "out" or NULL
}

func (PieceModel) TableName() string { return "pieces" }

// PieceOldModel 上一回合推进前的棋子快照（用于客户端动画 diff）
type PieceOldModel struct {
	GameID        string  `gorm:"column:game_id;primaryKey"`
	PieceID       int     `gorm:"column:piece_id;primaryKey"`
	OwnerPlayerID string  `gorm:"column:owner_player_id;not null"`
	X             float64 `gorm:"not null"`
	Y             float64 `gorm:"not null"`
	VX            float64 `gorm:"column:vx;not null"`
	VY            float64 `gorm:"column:vy;not null"`
	Radius        float64 `gorm:"not null;default:30"`
	Mass          float64 `gorm:"not null;default:1"`
	Status        *string `gorm:"column:status"`
}

func (PieceOldModel) TableName() string { return "pieces_old" }

// UnusedGameIDModel 预生成的游戏 ID 池（带租约防止并发重复分配）
type UnusedGameIDModel struct {
	Name          string     `gorm:"column:name;primaryKey"`
	LastRefreshed time.Time  `gorm:"not null"`
	LeasedUntil   *time.Time `gorm:"column:leased_until;index"`
}

func (UnusedGameIDModel) TableName() string { return "unused_game_ids" }

// Domain conversion helpers shared by both stores.

func (m PieceModel) ToPiece() Piece {
	p := Piece{
		Owner:   m.OwnerPlayerID,
		PieceID: m.PieceID,
		X:       m.X,
		Y:       m.Y,
		VX:      m.VX,
		VY:      m.VY,
		Radius:  m.Radius,
		Mass:    m.Mass,
	}
	if m.Status != nil {
		p.Status = PieceStatus(*m.Status)
	}
	return p
}

func (m PieceOldModel) ToPiece() Piece {
	return PieceModel(m).ToPiece()
}

// PieceToModel fills in default radius/mass when the caller omits them.
func PieceToModel(gameID string, p Piece) PieceModel {
	radius := p.Radius
	if radius == 0 {
		radius = DefaultRadius
	}
	mass := p.Mass
	if mass == 0 {
		mass = DefaultMass
	}
	m := PieceModel{
		GameID:        gameID,
		PieceID:       p.PieceID,
		OwnerPlayerID: p.Owner,
		X:             p.X,
		Y:             p.Y,
		VX:            p.VX,
		VY:            p.VY,
		Radius:        radius,
		Mass:          mass,
	}
	if p.Status != "" {
		s := string(p.Status)
		m.Status = &s
	}
	return m
}

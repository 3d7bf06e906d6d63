package models

import (
	"time"
)

// Piece defaults applied when a caller omits physical properties.
const (
	DefaultRadius = 30.0
	DefaultMass   = 1.0
)

// PieceStatus 棋子状态："in" 仍在棋盘上，"out" 已被淘汰
type PieceStatus string

const (
	PieceIn  PieceStatus = "in"
	PieceOut PieceStatus = "out"
)

// Piece 棋子数据模型（JSON 字段名与模拟子进程协议一致）
type Piece struct {
	Owner   string      `json:"owner"`
	PieceID int         `json:"pieceid"`
	X       float64     `json:"x"`
	Y       float64     `json:"y"`
	VX      float64     `json:"vx"`
	VY      float64     `json:"vy"`
	Radius  float64     `json:"radius,omitempty"`
	Mass    float64     `json:"mass,omitempty"`
	Color   string      `json:"color,omitempty"`
	Status  PieceStatus `json:"status,omitempty"`
}

// Eliminated reports whether the piece has left the board. Out pieces are
// excluded from simulation input but kept around for rendering.
func (p Piece) Eliminated() bool {
	return p.Status == PieceOut
}

// Player 游戏内玩家成员信息
type Player struct {
	Name          string  `json:"name"`
	Color         *string `json:"color"`
	SubmittedTurn bool    `json:"submitted_turn"`
}

// PlayerInfo is the list-players row, keyed form of Player.
type PlayerInfo struct {
	PlayerID      string  `json:"player_id"`
	Name          string  `json:"name"`
	Color         *string `json:"color"`
	SubmittedTurn bool    `json:"submitted"`
}

// GameSettings 游戏静态配置
type GameSettings struct {
	MaxPlayers   int `json:"max_players"`
	BoardSize    int `json:"board_size"`
	BoardShrink  int `json:"board_shrink"`
	TurnInterval int `json:"turn_interval"` // seconds
}

// GameState 游戏动态状态
type GameState struct {
	TurnNumber   int        `json:"turn_number"`
	LastTurnTime *time.Time `json:"last_turn_time"`
	NextTurnTime *time.Time `json:"next_turn_time"`
}

// Game 游戏完整视图（settings + state + players + pieces + creator）
type Game struct {
	GameID    string            `json:"game_id"`
	Creator   *string           `json:"creator"`
	Settings  GameSettings      `json:"settings"`
	State     GameState         `json:"state"`
	Players   map[string]Player `json:"players"`
	Pieces    []Piece           `json:"pieces"`
	PiecesOld []Piece           `json:"pieces_old"`
	StartTime *time.Time        `json:"start_time,omitempty"`
}

// GameSummary 常用端点所需的最小状态
type GameSummary struct {
	GameID       string     `json:"game_id"`
	TurnNumber   int        `json:"turn_number"`
	LastTurnTime *time.Time `json:"last_turn_time"`
	NextTurnTime *time.Time `json:"next_turn_time"`
	MaxPlayers   int        `json:"max_players"`
	BoardSize    int        `json:"board_size"`
}

// TurnAction steers one owned piece for the current turn.
type TurnAction struct {
	PieceID int     `json:"pieceid"`
	VX      float64 `json:"vx"`
	VY      float64 `json:"vy"`
}

// Session is the resolved identity behind a session token. At least one of
// the two ids is always set.
type Session struct {
	GameID   *string `json:"game_id"`
	PlayerID *string `json:"player_id"`
}

// simulation/protocol.go
package simulation

import (
	"github.com/wfunc/turnserver/models"
)

// 与物理引擎子进程之间的 JSON 协议。请求经 stdin 写入，响应从 stdout 读取。

// request 模拟请求
type request struct {
	Pieces      []models.Piece `json:"pieces"`
	BoardBefore int            `json:"boardBefore"`
	BoardAfter  int            `json:"boardAfter"`
}

// response 模拟响应。引擎返回两种形态之一：
//   - pieces:    完整棋子数组（直接采用）
//   - survivors: 按位置与请求的 pieces 数组对齐，第 i 个条目对应第 i 个
//     输入棋子；owner/color 从输入侧回填，坐标等字段有则覆盖
//
// steps 仅用于日志。
type response struct {
	Pieces    []models.Piece `json:"pieces"`
	Survivors []survivor     `json:"survivors"`
	Steps     int            `json:"steps"`
}

// survivor 幸存者条目。引擎可能只回传部分字段，缺省字段沿用输入值。
type survivor struct {
	PieceID *int     `json:"pieceid"`
	X       *float64 `json:"x"`
	Y       *float64 `json:"y"`
	VX      *float64 `json:"vx"`
	VY      *float64 `json:"vy"`
	Status  string   `json:"status"`
}

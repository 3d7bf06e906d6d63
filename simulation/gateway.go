// simulation/gateway.go
package simulation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/wfunc/turnserver/logger"
	"github.com/wfunc/turnserver/models"
	"github.com/wfunc/turnserver/persistence"
)

// Gateway 是不可信物理引擎子进程周围的信任边界。每次调用启动一个
// 新进程，通过 stdin/stdout 交换 JSON；进出两个方向的载荷都要过
// 白名单校验，超时与崩溃都归为可重试的 SimulationError。
type Gateway struct {
	executable    string
	args          []string
	timeout       time.Duration
	maxInputBytes int
}

// NewGateway 创建模拟网关。executable 通常是 node，scriptPath 是引擎脚本。
func NewGateway(executable, scriptPath string, timeout time.Duration, maxInputBytes int) *Gateway {
	return &Gateway{
		executable:    executable,
		args:          []string{scriptPath},
		timeout:       timeout,
		maxInputBytes: maxInputBytes,
	}
}

// Run 执行一次模拟。输入棋子应当只含活跃棋子；返回新的棋子集合。
// 引擎回显的 owner/color 不可信，调用方（存储层）按 piece_id 自行回填。
func (g *Gateway) Run(ctx context.Context, pieces []models.Piece, boardBefore, boardAfter int) ([]models.Piece, error) {
	payload, err := json.Marshal(request{
		Pieces:      pieces,
		BoardBefore: boardBefore,
		BoardAfter:  boardAfter,
	})
	if err != nil {
		return nil, persistence.WrapUnexpected(err, "marshal simulation request")
	}
	if g.maxInputBytes > 0 && len(payload) > g.maxInputBytes {
		return nil, persistence.Errorf(persistence.KindSimulationError,
			"simulation payload %d bytes exceeds limit %d", len(payload), g.maxInputBytes)
	}
	if err := sanitizePayload(payload); err != nil {
		return nil, persistence.Errorf(persistence.KindSimulationError,
			"simulation request rejected: %v", err)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if g.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, g.executable, g.args...)
	// 引擎若 fork 出继承 stdout 的子孙进程，杀掉引擎后管道仍被占用，
	// Run 会一直等读端关闭。WaitDelay 保证超时后最多再等 1 秒就返回。
	cmd.WaitDelay = time.Second
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(started)

	if runErr != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			logger.Log.Errorw("simulation timed out",
				"timeout", g.timeout, "pieces", len(pieces))
			return nil, persistence.Errorf(persistence.KindSimulationError,
				"simulation timed out after %v", g.timeout)
		}
		logger.Log.Errorw("simulation process failed",
			"error", runErr, "stderr", truncate(stderr.String(), 512))
		return nil, persistence.Errorf(persistence.KindSimulationError,
			"simulation process failed: %v", runErr)
	}

	out := stdout.Bytes()
	if err := sanitizePayload(out); err != nil {
		return nil, persistence.Errorf(persistence.KindSimulationError,
			"simulation response rejected: %v", err)
	}

	var resp response
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, persistence.Errorf(persistence.KindSimulationError,
			"simulation response is not valid JSON: %v", err)
	}

	result, err := g.resolveResponse(resp, pieces)
	if err != nil {
		return nil, err
	}

	logger.Log.Debugw("simulation finished",
		"duration", elapsed, "pieces_in", len(pieces), "pieces_out", len(result), "steps", resp.Steps)
	return result, nil
}

// resolveResponse 把两种响应形态归一为棋子数组。
func (g *Gateway) resolveResponse(resp response, input []models.Piece) ([]models.Piece, error) {
	switch {
	case resp.Pieces != nil:
		return resp.Pieces, nil

	case resp.Survivors != nil:
		// Survivor i pairs with input piece i; identity comes from the
		// input side, coordinates from the engine when it echoes them.
		if len(resp.Survivors) > len(input) {
			return nil, persistence.Errorf(persistence.KindUnexpectedResult,
				"%d survivors for %d input pieces", len(resp.Survivors), len(input))
		}
		result := make([]models.Piece, 0, len(resp.Survivors))
		for i, s := range resp.Survivors {
			p := input[i]
			if s.PieceID != nil {
				p.PieceID = *s.PieceID
			}
			if s.X != nil {
				p.X = *s.X
			}
			if s.Y != nil {
				p.Y = *s.Y
			}
			if s.VX != nil {
				p.VX = *s.VX
			}
			if s.VY != nil {
				p.VY = *s.VY
			}
			if s.Status != "" {
				p.Status = models.PieceStatus(s.Status)
			}
			result = append(result, p)
		}
		return result, nil

	default:
		return nil, persistence.Errorf(persistence.KindUnexpectedResult,
			"simulation response has neither pieces nor survivors")
	}
}

// sanitizePayload 对 JSON 字节做整树白名单校验。
func sanitizePayload(data []byte) error {
	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		return err
	}
	return sanitizeValue(tree, 0)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

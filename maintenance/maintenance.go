// maintenance/maintenance.go
package maintenance

import (
	"context"
	"time"

	"github.com/wfunc/turnserver/config"
	"github.com/wfunc/turnserver/logger"
	"github.com/wfunc/turnserver/monitor"
	"github.com/wfunc/turnserver/persistence"
	"github.com/wfunc/turnserver/scheduler"
)

// 后台维护任务：补充游戏 ID 池、释放过期租约、清理过期会话与陈旧数据。
// 所有任务都幂等，失败只记日志，下个周期重试。

const (
	poolRefillInterval    = 6 * time.Hour
	staleLeaseInterval    = time.Hour
	expiredSessionsEvery  = 24 * time.Hour
	staleCleanupInterval  = 48 * time.Hour
	maintenanceJobTimeout = 5 * time.Minute
)

type Runner struct {
	store persistence.GameStore
	auth  persistence.AuthStore
	cfg   config.MaintenanceConfig
}

func NewRunner(store persistence.GameStore, auth persistence.AuthStore, cfg config.MaintenanceConfig) *Runner {
	return &Runner{store: store, auth: auth, cfg: cfg}
}

// RegisterPeriodic 把全部维护任务挂到调度器上。
func (r *Runner) RegisterPeriodic(s *scheduler.Scheduler) {
	s.ScheduleEvery("repopulate-game-id-pool", poolRefillInterval, r.RepopulatePool)
	s.ScheduleEvery("clear-stale-leases", staleLeaseInterval, r.ClearStaleLeases)
	s.ScheduleEvery("delete-expired-sessions", expiredSessionsEvery, r.DeleteExpiredSessions)
	s.ScheduleEvery("delete-stale-data", staleCleanupInterval, r.DeleteStaleData)
}

// RepopulatePool 把候选 ID 池补到目标量。生成的名字可能与已占用
// 的游戏 ID 撞车，存储层会跳过，所以多生成一点再截断到缺口。
func (r *Runner) RepopulatePool() {
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceJobTimeout)
	defer cancel()

	count, err := r.store.CountUnusedGameIDs(ctx)
	if err != nil {
		logger.Log.Errorw("failed to count unused game ids", "error", err)
		return
	}
	monitor.UnusedIDPool.Set(float64(count))

	deficit := r.cfg.GameIDPoolTarget - count
	if deficit <= 0 {
		return
	}

	names := make([]string, 0, deficit)
	for i := 0; i < deficit; i++ {
		names = append(names, GenerateGameName())
	}
	added, err := r.store.AddUnusedGameIDs(ctx, names)
	if err != nil {
		logger.Log.Errorw("failed to repopulate game id pool", "error", err)
		return
	}
	monitor.UnusedIDPool.Set(float64(count + added))
	logger.Log.Infow("game id pool repopulated", "added", added, "target", r.cfg.GameIDPoolTarget)
}

// ClearStaleLeases 释放过期租约，让放弃创建流程的候选 ID 回到池里。
func (r *Runner) ClearStaleLeases() {
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceJobTimeout)
	defer cancel()

	cleared, err := r.store.ClearStaleLeases(ctx)
	if err != nil {
		logger.Log.Errorw("failed to clear stale leases", "error", err)
		return
	}
	if cleared > 0 {
		logger.Log.Infow("stale game id leases cleared", "count", cleared)
	}
}

// DeleteExpiredSessions 批量清理过期会话令牌。
func (r *Runner) DeleteExpiredSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceJobTimeout)
	defer cancel()

	deleted, err := r.auth.DeleteExpiredSessions(ctx)
	if err != nil {
		logger.Log.Errorw("failed to delete expired sessions", "error", err)
		return
	}
	if deleted > 0 {
		logger.Log.Infow("expired sessions deleted", "count", deleted)
	}
}

// DeleteStaleData 清理长期不活跃的游戏与孤儿玩家。
func (r *Runner) DeleteStaleData() {
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceJobTimeout)
	defer cancel()

	games, err := r.store.DeleteStaleGames(ctx, r.cfg.StaleGameDays)
	if err != nil {
		logger.Log.Errorw("failed to delete stale games", "error", err)
	}
	players, err := r.store.DeleteStalePlayers(ctx, r.cfg.StalePlayerDays)
	if err != nil {
		logger.Log.Errorw("failed to delete stale players", "error", err)
	}
	if games > 0 || players > 0 {
		logger.Log.Infow("stale data cleaned up", "games", games, "players", players)
	}
}

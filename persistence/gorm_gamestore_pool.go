// persistence/gorm_gamestore_pool.go
package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wfunc/turnserver/logger"
	"github.com/wfunc/turnserver/models"
)

// 预生成游戏 ID 池与后台清理操作。

// AddUnusedGameIDs 批量补充候选 ID，跳过已存在的池条目与已被占用的
// 游戏 ID，返回实际插入条数。
func (s *GormGameStore) AddUnusedGameIDs(ctx context.Context, names []string) (int, error) {
	refreshed := now()

	seen := make(map[string]struct{}, len(names))
	candidates := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		candidates = append(candidates, name)
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	var inserted int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken []string
		if err := tx.Model(&models.GameModel{}).Where("game_id IN ?", candidates).
			Pluck("game_id", &taken).Error; err != nil {
			return err
		}
		takenSet := make(map[string]struct{}, len(taken))
		for _, id := range taken {
			takenSet[id] = struct{}{}
		}

		rows := make([]models.UnusedGameIDModel, 0, len(candidates))
		for _, name := range candidates {
			if _, used := takenSet[name]; used {
				continue
			}
			rows = append(rows, models.UnusedGameIDModel{Name: name, LastRefreshed: refreshed})
		}
		if len(rows) == 0 {
			return nil
		}

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
		if res.Error != nil {
			return res.Error
		}
		inserted = int(res.RowsAffected)
		return nil
	})
	if err != nil {
		return 0, WrapUnexpected(err, "add unused game ids")
	}
	return inserted, nil
}

// ListUnusedGameIDs 返回未被租约占用的候选 ID，新补充的优先。
func (s *GormGameStore) ListUnusedGameIDs(ctx context.Context, limit int) ([]string, error) {
	var names []string
	q := s.db.WithContext(ctx).Model(&models.UnusedGameIDModel{}).
		Where("leased_until IS NULL OR leased_until < ?", now()).
		Order("last_refreshed DESC, name ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Pluck("name", &names).Error; err != nil {
		return nil, WrapUnexpected(err, "list unused game ids")
	}
	return names, nil
}

// CountUnusedGameIDs 池总量（含租约中的条目）
func (s *GormGameStore) CountUnusedGameIDs(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.UnusedGameIDModel{}).Count(&count).Error; err != nil {
		return 0, WrapUnexpected(err, "count unused game ids")
	}
	return int(count), nil
}

// ReserveUnusedGameID 以 CAS 方式租用一个候选 ID，最多重试 3 次。
// 租约到期前 ID 不会被再次分配；CreateGame 成功后条目被删除。
// 池空时返回空串而不是错误，调用方自行生成随机 ID 兜底。
func (s *GormGameStore) ReserveUnusedGameID(ctx context.Context, leaseSeconds int) (string, error) {
	db := s.db.WithContext(ctx)

	for attempt := 0; attempt < 3; attempt++ {
		ts := now()
		var row models.UnusedGameIDModel
		err := db.Where("leased_until IS NULL OR leased_until < ?", ts).
			Order("last_refreshed DESC, name ASC").First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		if err != nil {
			return "", WrapUnexpected(err, "reserve unused game id")
		}

		leaseUntil := ts.Add(time.Duration(leaseSeconds) * time.Second)
		res := db.Model(&models.UnusedGameIDModel{}).
			Where("name = ? AND (leased_until IS NULL OR leased_until < ?)", row.Name, ts).
			Update("leased_until", &leaseUntil)
		if res.Error != nil {
			return "", WrapUnexpected(res.Error, "lease unused game id")
		}
		if res.RowsAffected == 1 {
			return row.Name, nil
		}
		// Lost the race for this name, pick another.
	}
	logger.Log.Warnw("unused game id pool contended, giving up after retries")
	return "", nil
}

// ClearStaleLeases 释放已过期的租约，返回释放条数。
func (s *GormGameStore) ClearStaleLeases(ctx context.Context) (int, error) {
	res := s.db.WithContext(ctx).Model(&models.UnusedGameIDModel{}).
		Where("leased_until IS NOT NULL AND leased_until < ?", now()).
		Update("leased_until", nil)
	if res.Error != nil {
		return 0, WrapUnexpected(res.Error, "clear stale leases")
	}
	return int(res.RowsAffected), nil
}

// DeleteStaleGames 删除创建时间早于 inactivityDays 的游戏及其全部关联行。
func (s *GormGameStore) DeleteStaleGames(ctx context.Context, inactivityDays int) (int, error) {
	cutoff := now().AddDate(0, 0, -inactivityDays)

	var deleted int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&models.GameModel{}).Where("created_at < ?", cutoff).
			Pluck("game_id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := deleteGameRows(tx, ids); err != nil {
			return err
		}
		deleted = len(ids)
		return nil
	})
	if err != nil {
		return 0, WrapUnexpected(err, "delete stale games")
	}
	if deleted > 0 {
		logger.Log.Infow("stale games deleted", "count", deleted, "cutoff", cutoff)
	}
	return deleted, nil
}

// DeleteStalePlayers 删除长期未加入任何游戏的玩家记录。
func (s *GormGameStore) DeleteStalePlayers(ctx context.Context, inactivityDays int) (int, error) {
	cutoff := now().AddDate(0, 0, -inactivityDays)

	res := s.db.WithContext(ctx).Exec(`
		DELETE FROM players
		WHERE date_created < ?
		  AND player_id NOT IN (SELECT DISTINCT player_id FROM game_players)`, cutoff)
	if res.Error != nil {
		return 0, WrapUnexpected(res.Error, "delete stale players")
	}
	if res.RowsAffected > 0 {
		logger.Log.Infow("stale players deleted", "count", res.RowsAffected, "cutoff", cutoff)
	}
	return int(res.RowsAffected), nil
}

package audio

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/iabetor/whistle/internal/database"
	"github.com/iabetor/whistle/internal/logger"
)

// CacheStats 是渲染缓存的统计信息。
type CacheStats struct {
	Entries int   `json:"entries"`
	Bytes   int64 `json:"bytes"`
	Hits    int64 `json:"hits"`
	MaxSize int64 `json:"max_size"`
}

// RenderCache 把渲染好的 PCM 保存在 SQLite 中，按总字节数做 LRU 淘汰。
// 样本以 float32 原样保存，命中结果与重新渲染逐位相同。
type RenderCache struct {
	mu      sync.Mutex
	db      *database.DB
	maxSize int64 // 字节，0 表示禁用缓存
	clock   int64 // 单调递增的使用序号，用于 LRU
}

// NewRenderCache 创建渲染缓存。maxSize 为样本数据总大小上限（字节），0 表示禁用。
func NewRenderCache(db *database.DB, maxSize int64) (*RenderCache, error) {
	c := &RenderCache{db: db, maxSize: maxSize}
	if !c.Enabled() {
		return c, nil
	}
	if err := db.Migrate(); err != nil {
		return nil, err
	}
	if err := db.QueryRow(`SELECT COALESCE(MAX(last_used), 0) FROM render_cache`).Scan(&c.clock); err != nil {
		return nil, fmt.Errorf("读取缓存索引失败: %w", err)
	}

	c.mu.Lock()
	c.evictLocked()
	c.mu.Unlock()
	return c, nil
}

// Enabled 返回缓存是否启用。
func (c *RenderCache) Enabled() bool {
	return c.maxSize > 0 && c.db != nil
}

// Lookup 查找缓存的样本。任何读取错误都按未命中处理。
func (c *RenderCache) Lookup(key string) ([]float32, bool) {
	if !c.Enabled() {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var blob []byte
	err := c.db.QueryRow(`SELECT samples FROM render_cache WHERE cache_key = ?`, key).Scan(&blob)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logger.Warnf("[cache] 读取缓存失败: %v", err)
		}
		return nil, false
	}
	samples, err := DecodeSamples(blob)
	if err != nil {
		logger.Warnf("[cache] 缓存数据损坏，删除 %s: %v", key, err)
		c.db.Exec(`DELETE FROM render_cache WHERE cache_key = ?`, key)
		return nil, false
	}

	c.clock++
	if _, err := c.db.Exec(`UPDATE render_cache SET hits = hits + 1, last_used = ? WHERE cache_key = ?`, c.clock, key); err != nil {
		logger.Warnf("[cache] 更新缓存使用时间失败: %v", err)
	}
	return samples, true
}

// Store 写入一条缓存并按需淘汰最久未使用的条目。
func (c *RenderCache) Store(key string, samples []float32) error {
	if !c.Enabled() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	blob := EncodeSamples(samples)
	c.clock++
	_, err := c.db.Exec(`INSERT OR REPLACE INTO render_cache (cache_key, samples, sample_count, size, last_used)
		VALUES (?, ?, ?, ?, ?)`, key, blob, len(samples), len(blob), c.clock)
	if err != nil {
		return fmt.Errorf("写入缓存失败: %w", err)
	}
	logger.Debugf("[cache] 已缓存: %s (%d 样本, %d bytes)", key, len(samples), len(blob))

	c.evictLocked()
	return nil
}

// Stats 返回缓存统计。
func (c *RenderCache) Stats() (CacheStats, error) {
	st := CacheStats{MaxSize: c.maxSize}
	if !c.Enabled() {
		return st, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(size), 0), COALESCE(SUM(hits), 0) FROM render_cache`).
		Scan(&st.Entries, &st.Bytes, &st.Hits)
	if err != nil {
		return st, fmt.Errorf("统计缓存失败: %w", err)
	}
	return st, nil
}

// Purge 清空缓存，返回删除的条目数。
func (c *RenderCache) Purge() (int64, error) {
	if !c.Enabled() {
		return 0, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.Exec(`DELETE FROM render_cache`)
	if err != nil {
		return 0, fmt.Errorf("清空缓存失败: %w", err)
	}
	n, _ := res.RowsAffected()
	logger.Infof("[cache] 已清空 %d 条缓存", n)
	return n, nil
}

// evictLocked 检查缓存总大小并淘汰最久未使用的（调用方需持有锁）。
func (c *RenderCache) evictLocked() {
	var total int64
	if err := c.db.QueryRow(`SELECT COALESCE(SUM(size), 0) FROM render_cache`).Scan(&total); err != nil {
		logger.Warnf("[cache] 统计缓存大小失败: %v", err)
		return
	}
	if total <= c.maxSize {
		return
	}

	rows, err := c.db.Query(`SELECT cache_key, size FROM render_cache ORDER BY last_used ASC`)
	if err != nil {
		logger.Warnf("[cache] 读取缓存索引失败: %v", err)
		return
	}
	var victims []string
	for rows.Next() && total > c.maxSize {
		var key string
		var size int64
		if err := rows.Scan(&key, &size); err != nil {
			break
		}
		victims = append(victims, key)
		total -= size
	}
	rows.Close()

	for _, key := range victims {
		if _, err := c.db.Exec(`DELETE FROM render_cache WHERE cache_key = ?`, key); err != nil {
			logger.Warnf("[cache] 删除缓存失败: %s: %v", key, err)
			continue
		}
		logger.Debugf("[cache] LRU 淘汰: %s", key)
	}
}

package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/iabetor/whistle/internal/logger"
	_ "modernc.org/sqlite"
)

// DB 是 whistle 的 SQLite 数据库连接。
type DB struct {
	*sql.DB
	path string
}

// DefaultPath 返回默认数据库路径 ~/.whistle/cache.db。
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	if home == "" {
		return "./.whistle-cache.db"
	}
	return filepath.Join(home, ".whistle", "cache.db")
}

// Open 打开或创建数据库。dbPath 为空时使用 DefaultPath。
func Open(dbPath string) (*DB, error) {
	if dbPath == "" {
		dbPath = DefaultPath()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("创建数据库目录失败: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	// 设置 WAL 模式（多个进程共享同一个缓存）
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置 WAL 模式失败: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置 busy_timeout 失败: %w", err)
	}

	logger.Debugf("[database] 数据库已打开: %s", dbPath)

	return &DB{DB: db, path: dbPath}, nil
}

// Path 返回数据库文件路径。
func (db *DB) Path() string {
	return db.path
}

// Migrate 运行数据库迁移。
func (db *DB) Migrate() error {
	migrations := []string{
		// 渲染缓存：key = sha256(模型摘要, 采样率, 文本)
		`CREATE TABLE IF NOT EXISTS render_cache (
			cache_key TEXT PRIMARY KEY,
			samples BLOB NOT NULL,
			sample_count INTEGER NOT NULL,
			size INTEGER NOT NULL,
			hits INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			last_used INTEGER NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("数据库迁移失败: %w", err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_render_cache_last_used ON render_cache(last_used)`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			logger.Warnf("[database] 创建索引失败: %v", err)
		}
	}

	logger.Debug("[database] 数据库迁移完成")
	return nil
}

// Close 关闭数据库连接。
func (db *DB) Close() error {
	if db.DB != nil {
		return db.DB.Close()
	}
	return nil
}

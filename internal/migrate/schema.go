package migrate

import (
	"database/sql"

	"globe-notes/internal/logger"
)

// Statements：建表语句，按顺序执行
var Statements = []string{
	`CREATE TABLE IF NOT EXISTS _geo_notes (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		lon DOUBLE PRECISION,
		lat DOUBLE PRECISION,
		tags TEXT[] NOT NULL DEFAULT '{}',
		country TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_geo_notes_country ON _geo_notes(country)`,
	`CREATE TABLE IF NOT EXISTS _geo_focus_stats (
		entity_id TEXT PRIMARY KEY,
		focus_count BIGINT NOT NULL DEFAULT 0,
		last_focused TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_geo_focus_count ON _geo_focus_stats(focus_count DESC)`,
}

// 背景：首次运行自动创建笔记目录与聚焦统计表
// 约束：使用 IF NOT EXISTS，可重复执行
func EnsureSchema(db *sql.DB) error {
	for i, s := range Statements {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}

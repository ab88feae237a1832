// 包 store: 提供与 PostgreSQL 的数据访问层，包含笔记目录与实体聚焦统计
package store

import (
	"context"
	"database/sql"
	"fmt"

	"globe-notes/internal/logger"
	"globe-notes/internal/notes"

	"github.com/lib/pq"
)

// Store: 数据库访问入口，持有连接池
type Store struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Store { return &Store{db: db} }

// Close: 关闭数据库连接
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// ListNotes: 读取全部笔记；坐标为 NULL 的笔记保留但不带坐标
func (s *Store) ListNotes(ctx context.Context) ([]notes.Note, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, title, lon, lat, tags, country FROM _geo_notes ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []notes.Note
	for rows.Next() {
		var n notes.Note
		var lon, lat sql.NullFloat64
		if err := rows.Scan(&n.ID, &n.Title, &lon, &lat, pq.Array(&n.Tags), &n.Country); err != nil {
			return nil, err
		}
		if lon.Valid && lat.Valid {
			n.Lon, n.Lat = lon.Float64, lat.Float64
			n.HasCoords = true
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// UpsertNotes: 批量写入笔记（单事务），返回写入条数
func (s *Store) UpsertNotes(ctx context.Context, list []notes.Note) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO _geo_notes(id, title, lon, lat, tags, country, updated_at)
		VALUES($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, lon=EXCLUDED.lon, lat=EXCLUDED.lat,
			tags=EXCLUDED.tags, country=EXCLUDED.country, updated_at=now()`)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()
	n := 0
	for _, note := range list {
		var lon, lat sql.NullFloat64
		if note.HasCoords {
			lon = sql.NullFloat64{Float64: note.Lon, Valid: true}
			lat = sql.NullFloat64{Float64: note.Lat, Valid: true}
		}
		tags := note.Tags
		if tags == nil {
			tags = []string{}
		}
		if _, err := stmt.ExecContext(ctx, note.ID, note.Title, lon, lat, pq.Array(tags), note.Country); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("upsert note %s: %w", note.ID, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	logger.L().Info("notes_upserted", "count", n)
	return n, nil
}

// IncrFocus: 实体被聚焦一次
func (s *Store) IncrFocus(ctx context.Context, entityID string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO _geo_focus_stats(entity_id, focus_count, last_focused)
		VALUES($1, 1, now())
		ON CONFLICT (entity_id) DO UPDATE SET focus_count=_geo_focus_stats.focus_count+1, last_focused=now()`, entityID)
	return err
}

// FocusStat: 单个实体的聚焦计数
type FocusStat struct {
	EntityID string `json:"entityId"`
	Count    int64  `json:"count"`
}

// TopFocused: 聚焦次数最多的实体
func (s *Store) TopFocused(ctx context.Context, limit int) ([]FocusStat, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, "SELECT entity_id, focus_count FROM _geo_focus_stats ORDER BY focus_count DESC, entity_id LIMIT $1", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []FocusStat{}
	for rows.Next() {
		var f FocusStat
		if err := rows.Scan(&f.EntityID, &f.Count); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

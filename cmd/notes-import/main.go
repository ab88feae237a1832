package main

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"globe-notes/internal/config"
	"globe-notes/internal/logger"
	"globe-notes/internal/migrate"
	"globe-notes/internal/notes"
	"globe-notes/internal/store"
	"globe-notes/internal/utils"

	"github.com/joho/godotenv"
)

// 文档注释：把笔记目录（data.json）导入 Postgres
// 背景：服务端以 NOTES_CATALOG=postgres 运行时从 _geo_notes 读取目录；本工具负责写入
// 约束：来源取第一个非 --env 参数（文件路径或 http(s) 地址），缺省为 NOTES_CATALOG_PATH；按 id 覆盖写入，可重复执行
func main() {
	var envFile, src string
	for i := 1; i < len(os.Args); i++ {
		switch {
		case os.Args[i] == "--env" && i+1 < len(os.Args):
			envFile = os.Args[i+1]
			i++
		case strings.HasSuffix(os.Args[i], ".env"):
			envFile = os.Args[i]
		case src == "":
			src = os.Args[i]
		}
	}
	if envFile != "" {
		_ = godotenv.Load(envFile)
	} else {
		config.LoadDotEnv()
	}
	l := logger.Setup()
	cfg := config.FromEnv()
	if src == "" {
		src = cfg.NotesCatalogPath
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	kind, path, url := "file", src, ""
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		kind, path, url = "url", "", src
	}
	cat, err := notes.LoadCatalog(ctx, kind, path, url, &http.Client{Timeout: time.Minute}, nil)
	if err != nil {
		l.Error("catalog_load_error", "src", src, "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(cfg.Postgres)
	if err != nil {
		l.Error("db_open_error", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := migrate.EnsureSchema(db); err != nil {
		l.Error("schema_error", "err", err)
		os.Exit(1)
	}
	n, err := store.AttachDB(db).UpsertNotes(ctx, cat.All())
	if err != nil {
		l.Error("notes_import_error", "err", err)
		os.Exit(1)
	}
	l.Info("notes_import_success", "src", src, "notes", n)
}

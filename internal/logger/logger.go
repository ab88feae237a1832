// 包 logger：统一初始化与获取日志器；通过环境变量控制级别、格式与落盘文件
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu            sync.Mutex
	defaultLogger *slog.Logger
)

// Setup：初始化默认日志器
// 约束：LOG_LEVEL=debug|info|warn|error；LOG_FORMAT=json|text；LOG_FILE 非空时写入滚动文件，否则写标准错误
func Setup() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = slog.New(newHandler(output(), parseLevel(os.Getenv("LOG_LEVEL")), os.Getenv("LOG_FORMAT")))
	return defaultLogger
}

// L：获取默认日志器；未初始化时回退到 Setup
func L() *slog.Logger {
	mu.Lock()
	l := defaultLogger
	mu.Unlock()
	if l == nil {
		return Setup()
	}
	return l
}

// Use：替换默认日志器（测试中注入丢弃输出的日志器）
func Use(l *slog.Logger) {
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func newHandler(w io.Writer, lvl slog.Level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// 文档注释：日志输出目标
// 约束：滚动参数固定为 50MB/5 份/28 天，压缩旧文件
func output() io.Writer {
	path := os.Getenv("LOG_FILE")
	if path == "" {
		return os.Stderr
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     28,
		Compress:   true,
	}
}

// Package log 提供统一日志接口
//
// 基于 go.uber.org/zap，按组件缓存 logger，调用形式与 slog 一致：
//
//	var logger = log.Logger("core/muxer")
//	logger.Debug("流已打开", "id", id, "peer", peer)
//
// 环境变量：
//   - SUBSTRATE_LOG_LEVEL: 组件=级别,组件=级别,默认级别（示例: core/muxer=debug,info）
//   - SUBSTRATE_LOG_FORMAT: text 或 json
package log

import (
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.RWMutex
	cfg     = ConfigFromEnv()
	out     zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	levels                      = make(map[string]zap.AtomicLevel)
	loggers                     = make(map[string]*zap.SugaredLogger)
)

// ============================================================================
//                              LazyLogger
// ============================================================================

// LazyLogger 懒加载 logger
//
// 每次调用时按组件取当前 logger，SetOutput/SetLevel 对已声明的
// 包级 logger 立即生效。
type LazyLogger struct {
	component string
}

// Logger 返回带组件名的 LazyLogger
func Logger(component string) *LazyLogger {
	return &LazyLogger{component: component}
}

// Debug 输出 Debug 级别日志
func (l *LazyLogger) Debug(msg string, args ...any) {
	sugar(l.component).Debugw(msg, args...)
}

// Info 输出 Info 级别日志
func (l *LazyLogger) Info(msg string, args ...any) {
	sugar(l.component).Infow(msg, args...)
}

// Warn 输出 Warn 级别日志
func (l *LazyLogger) Warn(msg string, args ...any) {
	sugar(l.component).Warnw(msg, args...)
}

// Error 输出 Error 级别日志
func (l *LazyLogger) Error(msg string, args ...any) {
	sugar(l.component).Errorw(msg, args...)
}

// With 返回带预设字段的 logger
func (l *LazyLogger) With(args ...any) *zap.SugaredLogger {
	return sugar(l.component).With(args...)
}

// Zap 返回组件对应的 *zap.Logger
func (l *LazyLogger) Zap() *zap.Logger {
	return sugar(l.component).Desugar()
}

// ============================================================================
//                              全局设置
// ============================================================================

// SetOutput 设置日志输出目标
func SetOutput(w io.Writer) {
	mu.Lock()
	out = zapcore.Lock(zapcore.AddSync(w))
	loggers = make(map[string]*zap.SugaredLogger)
	mu.Unlock()
}

// SetFormat 设置输出格式
func SetFormat(f Format) {
	mu.Lock()
	cfg.Format = f
	loggers = make(map[string]*zap.SugaredLogger)
	mu.Unlock()
}

// SetLevel 动态设置组件日志级别
func SetLevel(component string, level zapcore.Level) {
	mu.Lock()
	defer mu.Unlock()
	lvl, ok := levels[component]
	if !ok {
		lvl = zap.NewAtomicLevelAt(level)
		levels[component] = lvl
		return
	}
	lvl.SetLevel(level)
}

// SetGlobalLevel 设置所有组件（含默认）的日志级别
func SetGlobalLevel(level zapcore.Level) {
	mu.Lock()
	defer mu.Unlock()
	cfg.DefaultLevel = level
	for _, lvl := range levels {
		lvl.SetLevel(level)
	}
}

// Discard 丢弃所有日志，主要用于测试
func Discard() {
	SetOutput(io.Discard)
}

func sugar(component string) *zap.SugaredLogger {
	mu.RLock()
	l, ok := loggers[component]
	mu.RUnlock()
	if ok {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[component]; ok {
		return l
	}
	lvl, ok := levels[component]
	if !ok {
		lvl = zap.NewAtomicLevelAt(cfg.LevelFor(component))
		levels[component] = lvl
	}
	core := zapcore.NewCore(newEncoder(cfg.Format), out, lvl)
	l = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Named(component).Sugar()
	loggers[component] = l
	return l
}

func newEncoder(f Format) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	if f == FormatJSON {
		return zapcore.NewJSONEncoder(ec)
	}
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewConsoleEncoder(ec)
}

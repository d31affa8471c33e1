package log

import (
	"os"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Format 日志输出格式
type Format int

const (
	// FormatText 控制台文本格式（默认）
	FormatText Format = iota
	// FormatJSON JSON 格式
	FormatJSON
)

// Config 日志配置
type Config struct {
	// DefaultLevel 默认日志级别
	DefaultLevel zapcore.Level

	// ComponentLevels 各组件的日志级别
	ComponentLevels map[string]zapcore.Level

	// Format 输出格式
	Format Format
}

// LevelFor 返回组件的日志级别
func (c *Config) LevelFor(component string) zapcore.Level {
	if lvl, ok := c.ComponentLevels[component]; ok {
		return lvl
	}
	return c.DefaultLevel
}

// ConfigFromEnv 从 SUBSTRATE_LOG_LEVEL / SUBSTRATE_LOG_FORMAT 解析配置
func ConfigFromEnv() *Config {
	return ParseConfig(os.Getenv("SUBSTRATE_LOG_LEVEL"), os.Getenv("SUBSTRATE_LOG_FORMAT"))
}

// ParseConfig 解析级别串与格式串
//
// 级别串格式: 组件=级别,组件=级别,默认级别
func ParseConfig(levelStr, formatStr string) *Config {
	c := &Config{
		DefaultLevel:    zapcore.InfoLevel,
		ComponentLevels: make(map[string]zapcore.Level),
		Format:          FormatText,
	}
	if strings.EqualFold(strings.TrimSpace(formatStr), "json") {
		c.Format = FormatJSON
	}

	for _, part := range strings.Split(levelStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if k, v, ok := strings.Cut(part, "="); ok {
			if lvl, ok := parseLevel(v); ok {
				c.ComponentLevels[strings.TrimSpace(k)] = lvl
			}
			continue
		}
		if lvl, ok := parseLevel(part); ok {
			c.DefaultLevel = lvl
		}
	}
	return c
}

func parseLevel(name string) (zapcore.Level, bool) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(name)))); err != nil {
		return zapcore.InfoLevel, false
	}
	return lvl, true
}

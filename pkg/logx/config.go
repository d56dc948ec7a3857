package logx

import (
	"strings"

	"github.com/rs/zerolog"
)

// Config selects the level and sinks of a Service.
type Config struct {
	Level   string
	Console bool
	File    FileConfig
}

// FileConfig enables the JSON file sink. An empty Path falls back to
// DefaultFilePath.
type FileConfig struct {
	Enabled bool
	Path    string
}

const DefaultFilePath = "./kasbon.log"

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func (c Config) level() zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(c.Level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (c Config) filePath() string {
	if !c.File.Enabled {
		return ""
	}
	if p := strings.TrimSpace(c.File.Path); p != "" {
		return p
	}
	return DefaultFilePath
}

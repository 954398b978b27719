package app

import (
	"strings"

	"github.com/lamont-llp/safeguard-eldos-sub000/pkg/logger"
)

// ConfigureLogging initialises the global logger from the logging section,
// defaulting to info-level JSON output.
func ConfigureLogging(cfg LoggingConfig) error {
	level := strings.TrimSpace(cfg.Level)
	if level == "" {
		level = "info"
	}
	encoding := strings.TrimSpace(cfg.Encoding)
	if encoding == "" {
		encoding = "json"
	}
	return logger.Init(level, encoding)
}

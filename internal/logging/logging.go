// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel maps a config level name (DEBUG, INFO, WARN, ERROR) to a zap level.
func ParseLevel(name string) (zapcore.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", "INFO":
		return zapcore.InfoLevel, nil
	case "DEBUG":
		return zapcore.DebugLevel, nil
	case "WARN", "WARNING":
		return zapcore.WarnLevel, nil
	case "ERROR":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", name)
	}
}

// New returns a console logger writing records at or above level to out.
// Warnings and errors additionally go to errOut when it differs from out.
func New(out, errOut io.Writer, level zapcore.Level) *zap.SugaredLogger {
	encoder := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:          "ts",
		LevelKey:         "level",
		MessageKey:       "msg",
		EncodeTime:       zapcore.ISO8601TimeEncoder,
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		ConsoleSeparator: "\t",
	})

	outLevels := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		if errOut != nil && errOut != out && l >= zapcore.WarnLevel {
			return false
		}
		return l >= level
	})
	cores := []zapcore.Core{zapcore.NewCore(encoder, zapcore.AddSync(out), outLevels)}

	if errOut != nil && errOut != out {
		errLevels := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return l >= level && l >= zapcore.WarnLevel
		})
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(errOut), errLevels))
	}

	return zap.New(zapcore.NewTee(cores...)).Sugar()
}

// Nop returns a logger that discards everything.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

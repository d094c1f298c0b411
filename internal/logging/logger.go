// Package logging builds the service-wide zap logger.
package logging

import (
	"log"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tgw-batch-service/internal/config"
)

// atomicLevel gates the low-priority core and can be changed at runtime.
var atomicLevel zap.AtomicLevel

// Build sets up the base logger: info and below to stdout, errors to stderr,
// level adjustable at runtime via config-file watching.
func Build(cfg *config.Logger) *zap.Logger {
	t, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		log.Fatalf("couldn't parse initial atomic level at logger build: %v", err)
	}
	atomicLevel = t

	encoder := zapcore.NewJSONEncoder(cfg.EncoderConfig)
	if cfg.Encoding == "console" {
		encoder = zapcore.NewConsoleEncoder(cfg.EncoderConfig)
	}

	highPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel
	})
	lowPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return atomicLevel.Enabled(lvl) && lvl < zapcore.ErrorLevel
	})

	infoCore := zapcore.NewCore(encoder, os.Stdout, lowPriority)
	errorCore := zapcore.NewCore(encoder, os.Stderr, highPriority)

	logger := zap.New(zapcore.NewTee(infoCore, errorCore), zap.AddCaller())
	zap.ReplaceGlobals(logger)

	viper.OnConfigChange(func(in fsnotify.Event) {
		if in.Op&(fsnotify.Create) == 0 {
			SetLevel(viper.GetString("logger.level"))
		}
	})
	viper.WatchConfig()
	return logger
}

// SetLevel changes the logger level dynamically.
func SetLevel(level string) {
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		zap.L().Error("couldn't parse level", zap.Error(err))
	} else {
		zap.L().Info("atomic level updated", zap.String("value", level))
		atomicLevel.SetLevel(l)
	}
}

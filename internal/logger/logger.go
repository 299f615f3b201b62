package logger

import (
	"errors"
	"flag"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environment variable name for log level configuration.
const envLogLevel = "CAMSTREAM_LOG_LEVEL"

var (
	// atomicLevel can be changed at runtime without rebuilding the logger core.
	atomicLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	// global logger instance
	global     *zap.SugaredLogger
	initOnce   sync.Once
	writerOnce sync.Once

	// Optional flag (users may pass -log.level=debug). If flag.Parse() hasn't
	// yet been called when Init is invoked, we still scan the raw os.Args.
	flagLevel = flag.String("log.level", "", "log level (debug, info, warn, error)")
)

// Init initializes the global logger. It is safe to call multiple times; the
// first call wins except SetLevel / UseWriter which mutate state intentionally.
func Init() {
	initOnce.Do(func() {
		atomicLevel.SetLevel(detectLevel())
		core := zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig()),
			zapcore.AddSync(os.Stdout),
			atomicLevel,
		)
		global = zap.New(core).Sugar()
	})
}

// encoderConfig renders levels in upper case (DEBUG, INFO, ...) to match
// the conventional severity strings used across the rest of the stack.
func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg
}

// detectLevel resolves the initial log level from (precedence high→low):
//  1. command-line flag -log.level
//  2. environment variable CAMSTREAM_LOG_LEVEL
//  3. default (info)
func detectLevel() zapcore.Level {
	if *flagLevel == "" {
		for _, arg := range os.Args[1:] {
			if strings.HasPrefix(arg, "-log.level=") {
				parts := strings.SplitN(arg, "=", 2)
				if len(parts) == 2 {
					*flagLevel = parts[1]
				}
			}
		}
	}
	if lvl, ok := parseLevel(strings.TrimSpace(*flagLevel)); ok {
		return lvl
	}
	if env := os.Getenv(envLogLevel); env != "" {
		if lvl, ok := parseLevel(env); ok {
			return lvl
		}
	}
	return zapcore.InfoLevel
}

// parseLevel converts a string to a zapcore.Level.
func parseLevel(s string) (zapcore.Level, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "debug":
		return zapcore.DebugLevel, true
	case "info", "":
		return zapcore.InfoLevel, true
	case "warn", "warning":
		return zapcore.WarnLevel, true
	case "error", "err":
		return zapcore.ErrorLevel, true
	}
	return 0, false
}

// SetLevel changes the runtime log level.
func SetLevel(level string) error {
	Init()
	lvl, ok := parseLevel(level)
	if !ok {
		return errors.New("invalid log level: " + level)
	}
	atomicLevel.SetLevel(lvl)
	return nil
}

// Level returns the current runtime level as a string.
func Level() string {
	Init()
	return atomicLevel.Level().String()
}

// UseWriter swaps the output writer (intended for tests). Retains the current level.
func UseWriter(w io.Writer) {
	Init()
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(w),
		atomicLevel,
	)
	global = zap.New(core).Sugar()
}

// Logger returns the global logger (ensures Init was called).
func Logger() *zap.SugaredLogger { Init(); return global }

// Convenience top-level logging functions. args follow zap's alternating
// key/value convention.
func Debug(msg string, args ...any) { Logger().Debugw(msg, args...) }
func Info(msg string, args ...any)  { Logger().Infow(msg, args...) }
func Warn(msg string, args ...any)  { Logger().Warnw(msg, args...) }
func Error(msg string, args ...any) { Logger().Errorw(msg, args...) }

// WithSession attaches session identity fields.
func WithSession(l *zap.SugaredLogger, sessionID, peerAddr string) *zap.SugaredLogger {
	return l.With("session_id", sessionID, "peer_addr", peerAddr)
}

// WithEpoch attaches the current stream epoch.
func WithEpoch(l *zap.SugaredLogger, epoch uint32) *zap.SugaredLogger {
	return l.With("epoch", epoch)
}

// WithFrameMeta attaches encoded-frame metadata fields. ptsMs is the frame's
// presentation timestamp in milliseconds; if 0, the current wall-clock time
// (in ms) is used instead, mirroring how a live sender would stamp it.
func WithFrameMeta(l *zap.SugaredLogger, frameType string, seq uint64, epoch uint32, ptsMs int64) *zap.SugaredLogger {
	if ptsMs == 0 {
		ptsMs = time.Now().UnixMilli()
	}
	return l.With("frame_type", frameType, "seq", seq, "epoch", epoch, "pts_ms", ptsMs)
}

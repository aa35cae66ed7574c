package log

import (
	"fmt"
	"os"
	"runtime"

	logfmt "github.com/jsternberg/zap-logfmt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var l *ZapLogger

const (
	defaultFileName   = "monoclock.log"
	defaultMaxSize    = 50 // MB
	defaultMaxAge     = 30 // days
	defaultMaxBackups = 3
)

type LogOpts struct {
	Level         string
	File          bool
	FileName      string
	MaxFileSizeMB int
	MaxBackups    int
	MaxAgeDays    int
}

func GetDefaultLogOpts() *LogOpts {
	return &LogOpts{
		Level: "info",
		File:  false,
	}
}

// Logger returns the process logger, or a no-op logger before
// SetupZapLogger has run.
func Logger() *ZapLogger {
	if l == nil {
		return &ZapLogger{Logger: zap.NewNop(), lvl: zap.NewAtomicLevel()}
	}
	return l
}

type ZapLogger struct {
	*zap.Logger
	lvl  zap.AtomicLevel
	opts *LogOpts
}

func ParseLevel(lvl string) (zapcore.Level, error) {
	switch lvl {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("log level %q not supported", lvl)
	}
}

func EncoderConfig() zapcore.EncoderConfig {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return encoderCfg
}

// SetupZapLogger builds the process logger: logfmt on stderr, plus a rotating
// JSON file when opts.File is set. Later calls are no-ops.
func SetupZapLogger(lOpts *LogOpts) error {
	if l != nil {
		return nil
	}

	lvl, err := ParseLevel(lOpts.Level)
	if err != nil {
		return err
	}
	lOpts.validate()

	atom := zap.NewAtomicLevelAt(lvl)
	encoderCfg := EncoderConfig()

	cores := []zapcore.Core{
		zapcore.NewCore(
			logfmt.NewEncoder(encoderCfg),
			zapcore.Lock(os.Stderr),
			atom,
		),
	}

	if lOpts.File {
		// lumberjack is Zap endorsed logger rotation library
		fw := zapcore.AddSync(&lumberjack.Logger{
			Filename:   lOpts.FileName,
			MaxSize:    lOpts.MaxFileSizeMB, // megabytes
			MaxBackups: lOpts.MaxBackups,
			MaxAge:     lOpts.MaxAgeDays, // days
		})
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderCfg),
			fw,
			atom,
		))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller()).With(
		zap.String("goversion", runtime.Version()),
		zap.String("os", runtime.GOOS),
		zap.String("arch", runtime.GOARCH),
		zap.Int("numcores", runtime.NumCPU()),
	)
	l = &ZapLogger{
		Logger: logger,
		lvl:    atom,
		opts:   lOpts,
	}
	l.Debug("Logger initialized", zap.Bool("file", lOpts.File))
	return nil
}

func (l *ZapLogger) SetLevel(lvl string) error {
	level, err := ParseLevel(lvl)
	if err != nil {
		return err
	}
	l.lvl.SetLevel(level)
	return nil
}

func (l *ZapLogger) Close() {
	_ = l.Logger.Sync()
}

func (l *ZapLogger) Named(name string) *ZapLogger {
	return &ZapLogger{
		Logger: l.Logger.Named(name),
		lvl:    l.lvl,
		opts:   l.opts,
	}
}

func (lOpts *LogOpts) validate() {
	if lOpts.FileName == "" {
		lOpts.FileName = defaultFileName
	}
	if lOpts.MaxFileSizeMB <= 0 {
		lOpts.MaxFileSizeMB = defaultMaxSize
	}
	if lOpts.MaxBackups <= 0 {
		lOpts.MaxBackups = defaultMaxBackups
	}
	if lOpts.MaxAgeDays <= 0 {
		lOpts.MaxAgeDays = defaultMaxAge
	}
}

package logging

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/GriffinCanCode/IPCDebugger/internal/shared/id"
)

// Logger is the root debugger logger. Components take named children
// via Component.
type Logger struct {
	*zap.Logger
}

// Config selects level, encoding and sinks.
type Config struct {
	Level       string // debug, info, warn, error
	Development bool
	OutputPaths []string
}

// DefaultConfig logs info and above as JSON to stdout.
func DefaultConfig() Config {
	return Config{Level: "info", OutputPaths: []string{"stdout"}}
}

// DevelopmentConfig logs everything to a colored console on stderr so it
// does not interleave with ipcctl output.
func DevelopmentConfig() Config {
	return Config{Level: "debug", Development: true, OutputPaths: []string{"stderr"}}
}

// New builds a logger from cfg. Production loggers sample repeated
// messages; blocked and woken operation logs can otherwise flood a sink.
func New(cfg Config) (*Logger, error) {
	lvl, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	paths := cfg.OutputPaths
	if len(paths) == 0 {
		paths = []string{"stdout"}
	}

	sink, closeSink, err := zap.Open(paths...)
	if err != nil {
		return nil, fmt.Errorf("open log sinks %v: %w", paths, err)
	}
	errSink, _, err := zap.Open("stderr")
	if err != nil {
		closeSink()
		return nil, err
	}

	core := zapcore.NewCore(encoder(cfg.Development), sink, lvl)

	opts := []zap.Option{zap.AddCaller(), zap.ErrorOutput(errSink)}
	if cfg.Development {
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.WarnLevel))
	} else {
		core = zapcore.NewSamplerWithOptions(core, time.Second, 100, 100)
		opts = append(opts, zap.AddStacktrace(zapcore.DPanicLevel))
	}

	return &Logger{Logger: zap.New(core, opts...)}, nil
}

// NewDevelopment returns a console logger for local debugging, or a no-op
// one if stderr cannot be opened.
func NewDevelopment() *Logger {
	l, err := New(DevelopmentConfig())
	if err != nil {
		return NewNop()
	}
	return l
}

// NewNop discards everything.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Component returns a child logger named after a subsystem
// (orchestrator, detector, api, ws).
func (l *Logger) Component(name string) *zap.Logger {
	return l.Named(name)
}

// Actor tags a log entry with an actor ID.
func Actor(a id.ActorID) zap.Field {
	return zap.Stringer("actor", a)
}

// Resource tags a log entry with a resource ID.
func Resource(r id.ResourceID) zap.Field {
	return zap.Stringer("resource", r)
}

// Scenario tags a log entry with a scenario run.
func Scenario(name, runID string) zap.Field {
	return zap.Object("scenario", scenarioRun{name: name, runID: runID})
}

type scenarioRun struct{ name, runID string }

func (s scenarioRun) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("name", s.name)
	if s.runID != "" {
		enc.AddString("run_id", s.runID)
	}
	return nil
}

func parseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}

func encoder(development bool) zapcore.Encoder {
	if development {
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		ec.EncodeDuration = zapcore.StringDurationEncoder
		return zapcore.NewConsoleEncoder(ec)
	}
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.MessageKey = "message"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeDuration = zapcore.MillisDurationEncoder
	return zapcore.NewJSONEncoder(ec)
}

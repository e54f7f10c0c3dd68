package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type ILogger interface {
	Debug(module, message string, details map[string]interface{})
	Info(module, message string, details map[string]interface{})
	Warn(module, message string, details map[string]interface{})
	Error(module, message string, details map[string]interface{})
	Sync() error
}

type ZapLogger struct {
	logger *zap.Logger
}

func fileSink(path string) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    20, // MB
		MaxBackups: 7,
		MaxAge:     14, // days
		Compress:   true,
	})
}

func jsonEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	cfg.EncodeDuration = zapcore.MillisDurationEncoder
	return zapcore.NewJSONEncoder(cfg)
}

func build(cores ...zapcore.Core) *ZapLogger {
	return &ZapLogger{logger: zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(2))}
}

// NewZapLogger tees JSON into a rotated file and onto stdout. Outside production
// stdout gets the colored console encoder at debug level.
func NewZapLogger(logFilePath string, isProd bool) *ZapLogger {
	file := zapcore.NewCore(jsonEncoder(), fileSink(logFilePath), zap.InfoLevel)

	if isProd {
		return build(file, zapcore.NewCore(jsonEncoder(), zapcore.Lock(os.Stdout), zap.InfoLevel))
	}

	devCfg := zap.NewDevelopmentEncoderConfig()
	devCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return build(file, zapcore.NewCore(zapcore.NewConsoleEncoder(devCfg), zapcore.Lock(os.Stdout), zap.DebugLevel))
}

// NewIsolatedLogger writes to its own file only. Webhook ingestion and
// websocket push are chatty enough to drown the main log.
func NewIsolatedLogger(logFilePath string) *ZapLogger {
	return build(zapcore.NewCore(jsonEncoder(), fileSink(logFilePath), zap.InfoLevel))
}

func NewNopLogger() *ZapLogger {
	return &ZapLogger{logger: zap.NewNop()}
}

func (l *ZapLogger) write(level zapcore.Level, module, message string, details map[string]interface{}) {
	ce := l.logger.Check(level, message)
	if ce == nil {
		return
	}
	fields := make([]zap.Field, 0, len(details)+1)
	fields = append(fields, zap.String("module", module))
	for k, v := range details {
		if err, ok := v.(error); ok {
			fields = append(fields, zap.NamedError(k, err))
			continue
		}
		fields = append(fields, zap.Any(k, v))
	}
	ce.Write(fields...)
}

func (l *ZapLogger) Debug(module, message string, details map[string]interface{}) {
	l.write(zap.DebugLevel, module, message, details)
}

func (l *ZapLogger) Info(module, message string, details map[string]interface{}) {
	l.write(zap.InfoLevel, module, message, details)
}

func (l *ZapLogger) Warn(module, message string, details map[string]interface{}) {
	l.write(zap.WarnLevel, module, message, details)
}

func (l *ZapLogger) Error(module, message string, details map[string]interface{}) {
	l.write(zap.ErrorLevel, module, message, details)
}

func (l *ZapLogger) Sync() error {
	return l.logger.Sync()
}

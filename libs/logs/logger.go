package logs

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/stardustagi/ChatRelay/utils"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	Log *zap.Logger
	mu  sync.Mutex
)

type LoggerConfig struct {
	Filename   string `json:"filename" toml:"filename"`
	MaxSize    int    `json:"maxsize" toml:"maxsize"`
	MaxAge     int    `json:"maxage" toml:"maxage"`
	MaxBackups int    `json:"maxbackups" toml:"maxbackups"`
	LocalTime  bool   `json:"localtime" toml:"localtime"`
	Compress   bool   `json:"compress" toml:"compress"`
	Level      int    `json:"level" toml:"level"`
	Console    *bool  `json:"console,omitempty" toml:"console"`
}

func Init(logConfigJson []byte) {
	// * lumberjack.Logger 用于日志轮转
	logConfig, err := utils.Bytes2Struct[LoggerConfig](logConfigJson)
	if err != nil {
		panic("Failed to parse log configuration: " + err.Error())
	}
	mu.Lock()
	defer mu.Unlock()
	Log = build(logConfig)
}

func build(logConfig LoggerConfig) *zap.Logger {
	// 日志级别
	level := zapcore.Level(logConfig.Level)
	if level < zapcore.DebugLevel || level > zapcore.FatalLevel {
		level = zapcore.InfoLevel
	}

	// 编码器配置
	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var zapCore []zapcore.Core
	encoder := zapcore.NewJSONEncoder(encoderCfg)
	// 控制台输出
	if logConfig.Console == nil || *logConfig.Console {
		zapCore = append(zapCore, zapcore.NewCore(
			encoder,
			zapcore.Lock(os.Stdout),
			level,
		))
	}
	// 文件输出配置, 没有文件名时只输出到控制台
	if logConfig.Filename != "" {
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   logConfig.Filename,
			MaxSize:    logConfig.MaxSize,    // megabytes
			MaxBackups: logConfig.MaxBackups, // 日志文件保留的最大个数
			MaxAge:     logConfig.MaxAge,     // days
			LocalTime:  logConfig.LocalTime,
			Compress:   logConfig.Compress, // 是否压缩
		})
		zapCore = append(zapCore, zapcore.NewCore(
			encoder,
			fileWriter,
			level,
		))
	}
	if len(zapCore) == 0 {
		return zap.NewNop()
	}

	// 合并输出目标
	core := zapcore.NewTee(zapCore...)

	return zap.New(core, zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
}

// SetLogger 替换全局 logger, 测试中传入 zaptest 的 logger
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	Log = l
}

func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}

func Infof(format string, args ...interface{}) {
	if Log != nil {
		Log.Sugar().Infof(format, args...)
	}
}

func Info(msg string, fields ...zap.Field) {
	if Log != nil {
		Log.Info(msg, fields...)
	}
}

func Warnf(format string, args ...interface{}) {
	if Log != nil {
		Log.Sugar().Warnf(format, args...)
	}
}

func Warn(msg string, fields ...zap.Field) {
	if Log != nil {
		Log.Warn(msg, fields...)
	}
}

func Errorf(format string, args ...interface{}) {
	if Log != nil {
		Log.Sugar().Errorf(format, args...)
	}
}

func Error(msg string, fields ...zap.Field) {
	if Log != nil {
		Log.Error(msg, fields...)
	}
}

func Debug(msg string, fields ...zap.Field) {
	if Log != nil {
		Log.Debug(msg, fields...)
	}
}

func Debugf(format string, args ...interface{}) {
	if Log != nil {
		Log.Sugar().Debugf(format, args...)
	}
}

func GetLogger(m string) *zap.Logger {
	mu.Lock()
	if Log == nil {
		// 默认配置: 只输出到控制台
		loggerConf := map[string]any{
			"level": 0,
		}
		jsonBytes, err := json.Marshal(loggerConf)
		if err != nil {
			mu.Unlock()
			panic("Failed to marshal logger configuration: " + err.Error())
		}
		cfg, _ := utils.Bytes2Struct[LoggerConfig](jsonBytes)
		Log = build(cfg)
	}
	l := Log
	mu.Unlock()
	return l.With(zap.String("module", m))
}

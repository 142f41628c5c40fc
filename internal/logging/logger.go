package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controla el logger del proceso.
type Options struct {
	Level  string
	Format string // json | console
	File   string // vacio desactiva el archivo rotado
}

// New construye un *zap.Logger que escribe a stdout y, si File esta definido,
// a un archivo JSON rotado con lumberjack.
func New(opts Options) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if strings.TrimSpace(opts.Level) != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(opts.Level))); err != nil {
			return nil, err
		}
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	jsonEncoder := zapcore.NewJSONEncoder(encoderCfg)

	var consoleEncoder zapcore.Encoder = jsonEncoder
	if strings.EqualFold(opts.Format, "console") {
		consoleEncoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), level),
	}
	if strings.TrimSpace(opts.File) != "" {
		cores = append(cores, zapcore.NewCore(jsonEncoder, zapcore.AddSync(newRotator(opts.File)), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

func newRotator(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // MB
		MaxBackups: 5,
		MaxAge:     30, // dias
		Compress:   true,
	}
}

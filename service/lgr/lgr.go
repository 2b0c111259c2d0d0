package lgr

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/natefinch/lumberjack"
)

var Logger *slog.Logger

func init() {
	Logger = New(os.Stdout, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FILE"))
}

// New builds a logger that pretty-prints to out and, when file is set, also
// writes JSON records to a rotating log file.
func New(out io.Writer, level, file string) *slog.Logger {
	opts := slog.HandlerOptions{
		Level:       parseLevel(level),
		ReplaceAttr: replaceAttr,
	}

	var handler slog.Handler = NewPrettyHandler(out, PrettyHandlerOptions{SlogOpts: opts})
	if file != "" {
		rotator := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    envInt("LOG_FILE_MAX_SIZE", 10),
			MaxBackups: envInt("LOG_FILE_MAX_BACKUPS", 3),
			MaxAge:     envInt("LOG_FILE_MAX_AGE", 28),
		}
		handler = &fanoutHandler{
			handlers: []slog.Handler{handler, slog.NewJSONHandler(rotator, &opts)},
		}
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

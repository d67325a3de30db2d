package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

const (
	permission = 0664
)

type LogBuild struct {
	writer io.Writer
	path   string
	level  zerolog.Level
}

type LogData struct {
	LogFile *os.File
	Logger  zerolog.Logger
}

// NewBuild starts a zerolog logger configuration. Without a path or buffer
// the logger writes to stdout.
func NewBuild() *LogBuild {
	return &LogBuild{level: zerolog.InfoLevel}
}

func (build *LogBuild) FromPath(path string) *LogBuild {
	build.path = path
	return build
}

func (build *LogBuild) FromBuffer(w io.Writer) *LogBuild {
	build.writer = w
	return build
}

// Level parses a textual level such as "debug" or "warn". Unknown levels keep
// the current one.
func (build *LogBuild) Level(level string) *LogBuild {
	if lvl, err := zerolog.ParseLevel(level); err == nil && level != "" {
		build.level = lvl
	}
	return build
}

func (build *LogBuild) Make() (logData *LogData, err error) {
	logData = new(LogData)
	writer := build.writer
	if writer == nil {
		writer = os.Stdout
	}
	if build.path != "" {
		logData.LogFile, err = os.OpenFile(build.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return nil, err
		}
		writer = zerolog.SyncWriter(logData.LogFile)
	}
	logData.Logger = zerolog.New(writer).Level(build.level).With().Timestamp().Logger()
	return logData, nil
}

// Close releases the log file, if any.
func (logData *LogData) Close() error {
	if logData.LogFile == nil {
		return nil
	}
	return logData.LogFile.Close()
}

// Zerolog adapts a zerolog.Logger to Logger. Args are read as key/value
// pairs; a trailing key without a value is logged under "!BADKEY".
type Zerolog struct {
	logger zerolog.Logger
}

func NewZerolog(l zerolog.Logger) *Zerolog {
	return &Zerolog{logger: l}
}

func (z *Zerolog) Error(msg string, args ...any) { z.write(z.logger.Error(), msg, args) }
func (z *Zerolog) Warn(msg string, args ...any)  { z.write(z.logger.Warn(), msg, args) }
func (z *Zerolog) Info(msg string, args ...any)  { z.write(z.logger.Info(), msg, args) }
func (z *Zerolog) Debug(msg string, args ...any) { z.write(z.logger.Debug(), msg, args) }

func (z *Zerolog) write(ev *zerolog.Event, msg string, args []any) {
	if ev == nil {
		return
	}
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			ev = ev.Interface("!BADKEY", args[i])
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		if err, isErr := args[i+1].(error); isErr {
			ev = ev.AnErr(key, err)
			continue
		}
		ev = ev.Interface(key, args[i+1])
	}
	ev.Msg(msg)
}

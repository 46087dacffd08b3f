package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const timestampFormat = "2006-01-02 15:04:05.000"

type Options struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	mu   sync.Mutex
	base = newLogger(Options{})
)

// Init reconfigures the process logger. Entries created by WithModule before
// Init keep pointing at the same logger and pick up the new settings.
func Init(opts Options) {
	mu.Lock()
	defer mu.Unlock()
	configure(base, opts)
}

func L() *logrus.Logger {
	return base
}

func WithModule(name string) *logrus.Entry {
	return base.WithField("module", name)
}

func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base.SetOutput(w)
}

func newLogger(opts Options) *logrus.Logger {
	l := logrus.New()
	configure(l, opts)
	return l
}

func configure(l *logrus.Logger, opts Options) {
	level, err := logrus.ParseLevel(strings.TrimSpace(opts.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if strings.EqualFold(opts.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		})
	}

	var out io.Writer = os.Stderr
	if opts.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 50),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 30),
			Compress:   true,
		}
		out = io.MultiWriter(os.Stderr, rotated)
	}
	l.SetOutput(out)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

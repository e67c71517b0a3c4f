package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// LogrusAdapter implements Logger on top of logrus, the structured logger
// the rest of modelmux's dependency stack (manager, scheduling, config)
// already pulls in transitively.
type LogrusAdapter struct {
	logger *logrus.Logger
	entry  *logrus.Entry
}

// NewLogrusAdapter wraps a *logrus.Logger for use wherever a Logger is
// expected, e.g. modelmuxd's buildLogger.
func NewLogrusAdapter(logger *logrus.Logger) Logger {
	return &LogrusAdapter{
		logger: logger,
		entry:  logrus.NewEntry(logger),
	}
}

// NewLogrusAdapterFromEntry wraps an existing *logrus.Entry, preserving
// whatever fields the caller already attached to it.
func NewLogrusAdapterFromEntry(entry *logrus.Entry) Logger {
	return &LogrusAdapter{
		logger: entry.Logger,
		entry:  entry,
	}
}

func (l *LogrusAdapter) WithField(key string, value interface{}) Logger {
	return &LogrusAdapter{logger: l.logger, entry: l.entry.WithField(key, value)}
}

func (l *LogrusAdapter) WithFields(fields map[string]interface{}) Logger {
	return &LogrusAdapter{logger: l.logger, entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *LogrusAdapter) WithError(err error) Logger {
	return &LogrusAdapter{logger: l.logger, entry: l.entry.WithError(err)}
}

func (l *LogrusAdapter) Debug(args ...interface{}) { l.entry.Debug(args...) }

func (l *LogrusAdapter) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }

func (l *LogrusAdapter) Debugln(args ...interface{}) { l.entry.Debugln(args...) }

func (l *LogrusAdapter) Info(args ...interface{}) { l.entry.Info(args...) }

func (l *LogrusAdapter) Infof(format string, args ...interface{}) { l.entry.Infof(format, args...) }

func (l *LogrusAdapter) Infoln(args ...interface{}) { l.entry.Infoln(args...) }

func (l *LogrusAdapter) Warn(args ...interface{}) { l.entry.Warn(args...) }

func (l *LogrusAdapter) Warnf(format string, args ...interface{}) { l.entry.Warnf(format, args...) }

func (l *LogrusAdapter) Warnln(args ...interface{}) { l.entry.Warnln(args...) }

// Warning, Warningf and Warningln are logrus's historical spelling of Warn;
// kept on the interface since some callers in the stack still use it.
func (l *LogrusAdapter) Warning(args ...interface{}) { l.entry.Warning(args...) }

func (l *LogrusAdapter) Warningf(format string, args ...interface{}) {
	l.entry.Warningf(format, args...)
}

func (l *LogrusAdapter) Warningln(args ...interface{}) { l.entry.Warningln(args...) }

func (l *LogrusAdapter) Error(args ...interface{}) { l.entry.Error(args...) }

func (l *LogrusAdapter) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l *LogrusAdapter) Errorln(args ...interface{}) { l.entry.Errorln(args...) }

// Fatal, Fatalf and Fatalln log then call os.Exit(1) via logrus — avoid
// these on any path that a test exercises.
func (l *LogrusAdapter) Fatal(args ...interface{}) { l.entry.Fatal(args...) }

func (l *LogrusAdapter) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }

func (l *LogrusAdapter) Fatalln(args ...interface{}) { l.entry.Fatalln(args...) }

// Panic, Panicf and Panicln log then panic via logrus.
func (l *LogrusAdapter) Panic(args ...interface{}) { l.entry.Panic(args...) }

func (l *LogrusAdapter) Panicf(format string, args ...interface{}) { l.entry.Panicf(format, args...) }

func (l *LogrusAdapter) Panicln(args ...interface{}) { l.entry.Panicln(args...) }

func (l *LogrusAdapter) Print(args ...interface{}) { l.entry.Print(args...) }

func (l *LogrusAdapter) Printf(format string, args ...interface{}) { l.entry.Printf(format, args...) }

func (l *LogrusAdapter) Println(args ...interface{}) { l.entry.Println(args...) }

// Writer returns a PipeWriter suitable for redirecting something like
// os/exec's Cmd.Stderr into the logger at Info level; the caller is
// responsible for closing it.
func (l *LogrusAdapter) Writer() *io.PipeWriter {
	return l.logger.Writer()
}

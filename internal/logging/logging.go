// Package logging wires a single shared logrus.Logger the rest of the
// process logs through, mirroring rclone's per-component logging calls
// (fs.Debugf/fs.Errorf) but using logrus fields instead of a global
// sprintf-style logger.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logrus.Logger writing to stderr and, if logFile is
// non-empty, also to that file.
func New(level, logFile string) (*logrus.Logger, error) {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	var out io.Writer = os.Stderr
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		out = io.MultiWriter(os.Stderr, f)
	}
	l.SetOutput(out)
	return l, nil
}

// Component returns a child entry tagged with the owning component name,
// the way rclone tags backend log lines with the remote name.
func Component(l *logrus.Logger, name string) *logrus.Entry {
	return l.WithField("component", name)
}

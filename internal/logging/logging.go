package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options controls logger construction
type Options struct {
	Format string // "text" or "json"
	Level  string // logrus level name, empty means info
	Out    io.Writer
}

// New creates a logger entry tagged with the given prefix
func New(prefix string, opts Options) *logrus.Entry {
	log := logrus.New()
	log.Out = os.Stdout
	if opts.Out != nil {
		log.Out = opts.Out
	}

	switch strings.ToLower(opts.Format) {
	case "json":
		log.Formatter = &logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05Z07:00"}
	default:
		log.Formatter = &logrus.TextFormatter{FullTimestamp: true, DisableQuote: true}
	}

	log.Level = logrus.InfoLevel
	if opts.Level != "" {
		if lvl, err := logrus.ParseLevel(opts.Level); err == nil {
			log.Level = lvl
		}
	}

	return log.WithFields(logrus.Fields{
		"prefix": prefix,
	})
}

// Discard returns a logger that drops everything (used by tests)
func Discard() *logrus.Entry {
	return New("discard", Options{Out: io.Discard})
}

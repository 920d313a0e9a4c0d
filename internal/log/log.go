// Package log builds the logrus logger shared by every pipeline stage.
package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/GoldenFealla/GaplessPlayerGo/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a logger configured from cfg. Output goes to stderr, or is
// appended to cfg.File on fs when set; the returned closer releases it.
func New(fs afero.Fs, cfg config.LoggingConfig, stderr io.Writer) (*logrus.Logger, io.Closer, error) {
	l := logrus.New()

	lvl, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("log: parsing level failed: %w", err)
	}
	l.SetLevel(lvl)

	switch cfg.Format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.File == "" {
		l.SetOutput(stderr)
		return l, nopCloser{}, nil
	}

	if dir := filepath.Dir(cfg.File); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("log: creating log directory failed: %w", err)
		}
	}
	f, err := fs.OpenFile(cfg.File, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("log: opening log file failed: %w", err)
	}
	l.SetOutput(f)

	return l, f, nil
}

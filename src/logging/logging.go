// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package logging configures the process-wide logger.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	log "github.com/sirupsen/logrus"
)

var (
	mu     sync.Mutex
	logger *log.Logger
)

// Init sets the level and outputs of the logger. An unknown level falls
// back to info, an empty file disables file output.
func Init(level, file string, console bool) error {
	l := log.New()

	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	l.SetLevel(lvl)
	l.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	var writers []io.Writer
	if console {
		writers = append(writers, os.Stderr)
	}
	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
			return errors.Wrapf(err, "logging.Init(): %s", file)
		}
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return errors.Wrapf(err, "logging.Init(): %s", file)
		}
		writers = append(writers, f)
	}
	if len(writers) > 0 {
		l.SetOutput(io.MultiWriter(writers...))
	} else {
		l.SetOutput(io.Discard)
	}

	mu.Lock()
	logger = l
	mu.Unlock()
	return nil
}

// Get returns the logger, a default one when Init was never called.
func Get() *log.Logger {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = log.New()
	}
	return logger
}

// For returns an entry tagged with the component name.
func For(component string) *log.Entry {
	return Get().WithField("component", component)
}

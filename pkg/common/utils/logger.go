// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2024 Intel Corporation

package utils

import (
	"os"

	"github.com/go-logr/logr"
	"github.com/sirupsen/logrus"
)

// NewLogger returns a logrus logger configured from the HWLOC_LOG_LEVEL
// environment variable (default: info).
func NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	if lvl, err := logrus.ParseLevel(os.Getenv("HWLOC_LOG_LEVEL")); err == nil {
		log.SetLevel(lvl)
	}
	return log
}

// LogWrapper adapts a logrus logger to the logr.LogSink interface for the
// few helpers that take a logr.Logger.
type LogWrapper struct {
	Log    *logrus.Logger
	fields logrus.Fields
}

func NewLogWrapper() *LogWrapper {
	return &LogWrapper{Log: NewLogger(), fields: logrus.Fields{}}
}

func (w *LogWrapper) Init(logr.RuntimeInfo) {}

func (w *LogWrapper) Enabled(int) bool { return true }

func (w *LogWrapper) Info(_ int, msg string, keysAndValues ...interface{}) {
	w.entry(keysAndValues).Info(msg)
}

func (w *LogWrapper) Error(err error, msg string, keysAndValues ...interface{}) {
	w.entry(keysAndValues).WithError(err).Error(msg)
}

func (w *LogWrapper) WithValues(keysAndValues ...interface{}) logr.LogSink {
	fields := logrus.Fields{}
	for k, v := range w.fields {
		fields[k] = v
	}
	for k, v := range kvToFields(keysAndValues) {
		fields[k] = v
	}
	return &LogWrapper{Log: w.Log, fields: fields}
}

func (w *LogWrapper) WithName(name string) logr.LogSink {
	return w.WithValues("name", name)
}

func (w *LogWrapper) entry(keysAndValues []interface{}) *logrus.Entry {
	return w.Log.WithFields(w.fields).WithFields(kvToFields(keysAndValues))
}

func kvToFields(keysAndValues []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}

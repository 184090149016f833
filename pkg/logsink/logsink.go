// Copyright 2026 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logsink manages named file-backed run logs.
//
// A registry slot is owned by exactly one run at a time: Register acquires
// the slot and returns an explicit handle, Close releases it. The runner
// pairs the two with a defer so release happens on every exit path.
package logsink

import (
	"sync"

	"github.com/pingcap/errors"
	plog "github.com/pingcap/log"
	"go.uber.org/zap"

	cerror "github.com/pingcap/feasibility/pkg/errors"
)

// Registry tracks which sink identifiers are currently registered in this
// process.
type Registry struct {
	mu    sync.Mutex
	sinks map[string]*Sink
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sinks: make(map[string]*Sink)}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// Sink is a registered file-backed log sink. It must be closed by the run
// that registered it; Close is idempotent.
type Sink struct {
	id       string
	path     string
	registry *Registry

	logger *zap.Logger

	closeOnce sync.Once
}

// Register acquires the named slot and opens an append-style log file at
// path. It fails without side effects if the slot is already held.
func (r *Registry) Register(id, path string) (*Sink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sinks[id]; ok {
		return nil, cerror.ErrLogSinkRegistered.GenWithStackByArgs(id)
	}

	logger, _, err := plog.InitLogger(&plog.Config{
		Level: "info",
		File:  plog.FileLogConfig{Filename: path},
	})
	if err != nil {
		return nil, errors.Annotatef(err, "open log sink file %s", path)
	}

	s := &Sink{
		id:       id,
		path:     path,
		registry: r,
		logger:   logger,
	}
	r.sinks[id] = s
	return s, nil
}

// Registered reports whether the named slot is currently held.
func (r *Registry) Registered(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sinks[id]
	return ok
}

// Logger returns the zap logger writing to the sink file.
func (s *Sink) Logger() *zap.Logger {
	return s.logger
}

// Path returns the log file path.
func (s *Sink) Path() string {
	return s.path
}

// Close syncs the log file and releases the registry slot. Safe to call more
// than once; only the first call has effect.
func (s *Sink) Close() {
	s.closeOnce.Do(func() {
		// Sync flushes buffered entries; failures here must not mask the
		// run outcome, the sink is being torn down regardless.
		_ = s.logger.Sync()

		s.registry.mu.Lock()
		delete(s.registry.sinks, s.id)
		s.registry.mu.Unlock()
	})
}

// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package datalog

import (
	"go.uber.org/zap"
)

// Config holds the settings of an engine.
type Config struct {
	Logger  *zap.Logger
	Mmap    bool // access files through a read-only memory map
	Float64 bool // report floating point values as float64 instead of float32
}

// Option configures an engine.
type Option func(*Config)

// NewConfig returns the configuration built from the default settings
// and the provided options.
func NewConfig(opts ...Option) Config {
	cfg := Config{
		Logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return cfg
}

// WithLogger sets the logger used to report engine activity.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *Config) {
		cfg.Logger = logger
	}
}

// WithMmap enables access to data files through a read-only memory map.
// A mapped file is a snapshot: growth is only seen after a
// Hibernate/WakeUp cycle.
func WithMmap(v bool) Option {
	return func(cfg *Config) {
		cfg.Mmap = v
	}
}

// WithFloat64 selects the width of decoded floating point values.
func WithFloat64(v bool) Option {
	return func(cfg *Config) {
		cfg.Float64 = v
	}
}

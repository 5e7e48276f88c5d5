// Package log provides pointcast's structured logging facade.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// typed Field for structured context. Log levels map onto log/slog levels so
// the facade stays interoperable with the slog ecosystem while keeping a
// consistent output format across the codebase.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	)
//	l = l.With(log.Component("scheduler"), log.Str("stream", "s1"))
//	l.Info("frame dispatched", log.Uint64("frame_id", 42))
package log

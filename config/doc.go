// Package config loads cmd/ebk's yaml configuration file and builds its
// zap logger. Only cmd/ebk and state import this package; core
// packages take their options as plain Go structs (ir.ReadOptions,
// pipeline.ConvertOptions, ...) so they stay usable as a library without
// ever touching a config file format.
package config

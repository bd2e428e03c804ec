// Package state defines shared program state for cmd/ebk.
package state

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rupor-github/ebk/config"
	"github.com/rupor-github/ebk/pipeline"
)

type envKey struct{}

// LocalEnv keeps everything the CLI needs in a single place, threaded
// through the command tree via context.Context rather than globals.
type LocalEnv struct {
	Cfg *config.Config
	Log *zap.Logger
	P   *pipeline.Pipeline

	// used by the convert subcommand
	Overwrite bool

	start         time.Time
	restoreStdLog func()
}

func EnvFromContext(ctx context.Context) *LocalEnv {
	if env, ok := ctx.Value(envKey{}).(*LocalEnv); ok {
		return env
	}
	// this should never happen
	panic("localenv not found in context")
}

func ContextWithEnv(ctx context.Context) context.Context {
	return context.WithValue(ctx, envKey{}, &LocalEnv{start: time.Now()})
}

func (e *LocalEnv) Uptime() time.Duration {
	return time.Since(e.start)
}

func (e *LocalEnv) RedirectStdLog() {
	if e.Log == nil {
		return
	}
	e.restoreStdLog = zap.RedirectStdLog(e.Log)
}

func (e *LocalEnv) RestoreStdLog() {
	if e.Log != nil {
		_ = e.Log.Sync()
	}
	if e.restoreStdLog != nil {
		e.restoreStdLog()
	}
}

package handler

import (
	"context"

	"reportfetcher/workers/downloader/internal/domain/model"
)

// StageFunc runs one pipeline stage over a batch of reports
type StageFunc func(ctx context.Context) (model.BatchStats, error)

// Middleware wraps stage functions
type Middleware func(next StageFunc) StageFunc

// Chain wraps fn so that the first middleware is the outermost one
func Chain(fn StageFunc, middlewares ...Middleware) StageFunc {
	for i := len(middlewares) - 1; i >= 0; i-- {
		fn = middlewares[i](fn)
	}
	return fn
}

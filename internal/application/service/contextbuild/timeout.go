package contextbuild

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	apperrors "github.com/anishgillella/serene-sub003/internal/errors"
	"github.com/anishgillella/serene-sub003/internal/logger"
	"github.com/anishgillella/serene-sub003/internal/types"
)

var tracer = otel.Tracer("github.com/anishgillella/serene-sub003/contextbuild")

// Outcome is the terminal state of one guarded fetch. Value is the fallback
// unless Status is completed.
type Outcome[T any] struct {
	Source  string
	Value   T
	Status  types.SourceStatus
	Err     error
	Elapsed time.Duration
}

// Skipped reports the outcome as a skipped source, nil when it completed
func (o Outcome[T]) Skipped() *types.SkippedSource {
	if o.Status == types.SourceStatusCompleted {
		return nil
	}
	reason := ""
	if o.Err != nil {
		reason = o.Err.Error()
	}
	return &types.SkippedSource{Source: o.Source, Status: o.Status, Reason: reason}
}

type result[T any] struct {
	value T
	err   error
}

// WithTimeout runs fn under a deadline of d. It returns by the deadline even
// when fn ignores its context; such a straggler finishes in the background
// and its result is dropped. Errors and panics from fn become a failed
// outcome carrying fallback.
func WithTimeout[T any](ctx context.Context,
	source string, d time.Duration, fallback T, fn func(ctx context.Context) (T, error),
) Outcome[T] {
	ctx, span := tracer.Start(ctx, "source."+source)
	defer span.End()

	runCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	start := time.Now()
	done := make(chan result[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result[T]{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := fn(runCtx)
		done <- result[T]{value: v, err: err}
	}()

	out := Outcome[T]{Source: source, Value: fallback}
	select {
	case r := <-done:
		out.Elapsed = time.Since(start)
		switch {
		case r.err == nil:
			out.Value = r.value
			out.Status = types.SourceStatusCompleted
		case errors.Is(runCtx.Err(), context.DeadlineExceeded) && errors.Is(r.err, context.DeadlineExceeded):
			out.Status = types.SourceStatusTimedOut
			out.Err = fmt.Errorf("%w after %v", apperrors.ErrSourceTimeout, d)
		default:
			out.Status = types.SourceStatusFailed
			out.Err = fmt.Errorf("%w: %w", apperrors.ErrSourceUnavailable, r.err)
		}
	case <-runCtx.Done():
		out.Elapsed = time.Since(start)
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			out.Status = types.SourceStatusTimedOut
			out.Err = fmt.Errorf("%w after %v", apperrors.ErrSourceTimeout, d)
		} else {
			out.Status = types.SourceStatusFailed
			out.Err = fmt.Errorf("%w: %w", apperrors.ErrSourceUnavailable, runCtx.Err())
		}
	}

	span.SetAttributes(
		attribute.String("source.status", string(out.Status)),
		attribute.Int64("source.elapsed_ms", out.Elapsed.Milliseconds()),
	)
	if out.Status != types.SourceStatusCompleted {
		span.SetStatus(codes.Error, out.Err.Error())
		logger.Warnf(ctx, "[ContextBuild] Source %s degraded (%s) after %v: %v",
			source, out.Status, out.Elapsed, out.Err)
	} else {
		logger.Debugf(ctx, "[ContextBuild] Source %s completed in %v", source, out.Elapsed)
	}
	return out
}

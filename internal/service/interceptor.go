package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"ome/internal/logging"
)

// Handler is the terminal request handler an interceptor chain wraps.
type Handler func(ctx context.Context, req *Request) (*MatchingReport, error)

// Interceptor wraps a handler with cross-cutting behavior. Interceptors run
// in registration order; the first registered is the outermost.
type Interceptor func(ctx context.Context, req *Request, next Handler) (*MatchingReport, error)

// Chain composes interceptors around a handler.
func Chain(h Handler, interceptors ...Interceptor) Handler {
	for i := len(interceptors) - 1; i >= 0; i-- {
		ic := interceptors[i]
		next := h
		h = func(ctx context.Context, req *Request) (*MatchingReport, error) {
			return ic(ctx, req, next)
		}
	}
	return h
}

// RecoveryInterceptor converts a panicking handler into a failed report.
// Panics in layers are programmer errors but must not take the process down
// with a caller's request in flight.
func RecoveryInterceptor(ctx context.Context, req *Request, next Handler) (report *MatchingReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.ServiceError("panic in match pipeline: %v\n%s", r, debug.Stack())
			report = &MatchingReport{
				Status: StatusFailed,
				Errors: []*Error{NewError(ErrLayerFailed, "internal panic: %v", r)},
			}
			err = fmt.Errorf("internal panic: %v", r)
		}
	}()
	return next(ctx, req)
}

// LoggingInterceptor logs one line per request with outcome and timing.
func LoggingInterceptor(ctx context.Context, req *Request, next Handler) (*MatchingReport, error) {
	start := time.Now()
	report, err := next(ctx, req)

	status := StatusFailed
	results := 0
	if report != nil {
		status = report.Status
		results = len(report.Results)
	}
	logging.Service("match request: domain=%s reqs=%d caps=%d status=%s results=%d elapsed=%s",
		req.Domain, len(req.Requirements), len(req.Capabilities), status, results, time.Since(start))
	return report, err
}

// MetricsInterceptor stamps the report with wall-clock elapsed time.
func MetricsInterceptor(ctx context.Context, req *Request, next Handler) (*MatchingReport, error) {
	start := time.Now()
	report, err := next(ctx, req)
	if report != nil {
		report.Elapsed = time.Since(start)
	}
	return report, err
}

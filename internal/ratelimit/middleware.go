package ratelimit

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"dsar/internal/platform/middleware"
	"dsar/pkg/platform/circuit"
	"dsar/pkg/platform/httputil"
)

// Middleware enforces per-caller limits. Callers are keyed by operator when
// the request is authenticated and by client address otherwise.
type Middleware struct {
	primary  Store
	fallback Store
	breaker  *circuit.Breaker
	logger   *slog.Logger
	disabled bool
}

// Option configures the Middleware.
type Option func(*Middleware)

// WithFallback sets the store used while the primary store is failing.
func WithFallback(s Store) Option {
	return func(m *Middleware) { m.fallback = s }
}

// WithBreaker replaces the breaker that decides when to use the fallback.
func WithBreaker(b *circuit.Breaker) Option {
	return func(m *Middleware) { m.breaker = b }
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Middleware) { m.logger = logger }
}

// WithDisabled turns every check into a no-op.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) { m.disabled = disabled }
}

// New creates the middleware on primary.
func New(primary Store, opts ...Option) *Middleware {
	m := &Middleware{
		primary: primary,
		breaker: circuit.New("ratelimit-store"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Limit guards a route class with limit.
func (m *Middleware) Limit(class string, limit Limit) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil || m.disabled || !limit.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			caller := callerOf(r)
			key := Key(class, caller)

			result, degraded, err := m.check(r, key, limit)
			if err != nil {
				// Both stores failed: let the request through rather than
				// take the API down with the limiter.
				m.logger.ErrorContext(ctx, "rate limit check failed",
					"class", class,
					"error", err,
					"request_id", middleware.GetRequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}

			setHeaders(w, result)
			if degraded {
				w.Header().Set("X-RateLimit-Status", "degraded")
			}
			if !result.Allowed {
				m.logger.WarnContext(ctx, "rate limit exceeded",
					"class", class,
					"caller", caller,
					"request_id", middleware.GetRequestID(ctx),
				)
				w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
				httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
					"error":             "rate_limit_exceeded",
					"error_description": "Too many requests for this operation. Please try again later.",
					"retry_after":       result.RetryAfter,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// check asks the primary store unless the breaker is open, falling back to
// the secondary store on failure.
func (m *Middleware) check(r *http.Request, key string, limit Limit) (*Result, bool, error) {
	ctx := r.Context()
	if m.breaker.Allow() {
		result, err := m.primary.Allow(ctx, key, limit.Requests, limit.Window)
		if err == nil {
			if _, change := m.breaker.RecordSuccess(); change.Closed {
				m.logger.InfoContext(ctx, "rate limit store recovered")
			}
			return result, false, nil
		}
		if _, change := m.breaker.RecordFailure(); change.Opened {
			m.logger.WarnContext(ctx, "rate limit store circuit opened", "error", err)
		}
		if m.fallback == nil {
			return nil, false, err
		}
	}
	if m.fallback == nil {
		return nil, false, errNoStore
	}
	result, err := m.fallback.Allow(ctx, key, limit.Requests, limit.Window)
	return result, true, err
}

func setHeaders(w http.ResponseWriter, result *Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func callerOf(r *http.Request) string {
	if op := middleware.GetOperator(r.Context()); op != "" {
		return "operator:" + op
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}

package api

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/tellmeastory/zine-server/internal/errors"
	"github.com/tellmeastory/zine-server/internal/http/response"
	"github.com/tellmeastory/zine-server/internal/ratelimit"
)

// RateLimiter wraps KeyedRateLimiter for API use.
type RateLimiter = ratelimit.KeyedRateLimiter

// NewRateLimiter creates a limiter allowing ratePerInterval requests per interval
// with the given burst.
func NewRateLimiter(ratePerInterval int, interval time.Duration, burst int) *RateLimiter {
	rps := float64(ratePerInterval) / interval.Seconds()
	return ratelimit.New(rps, burst)
}

func retryAfterSeconds(d time.Duration) string {
	return strconv.Itoa(int(math.Ceil(d.Seconds())))
}

// rateLimitOperation is a huma middleware that limits an operation by client IP.
func (s *Server) rateLimitOperation(limiter *RateLimiter) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		key := clientIP(ctx.Header, ctx.RemoteAddr())
		if limiter.Allow(key) {
			next(ctx)
			return
		}

		wait := limiter.RetryAfter(key)
		s.logger.Warn("rate limit exceeded", "ip", key, "operation", ctx.Operation().OperationID)
		ctx.SetHeader("Retry-After", retryAfterSeconds(wait))
		_ = huma.WriteErr(s.api, ctx, http.StatusTooManyRequests, "",
			domainerrors.RateLimited("Too many requests. Please try again later.").
				WithDetails(map[string]string{"retry_after": wait.Round(time.Second).String()}))
	}
}

// RateLimitMiddleware limits plain chi routes by client IP.
// Returns 429 Too Many Requests when limit is exceeded.
func RateLimitMiddleware(limiter *RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r.Header.Get, r.RemoteAddr)
			if !limiter.Allow(key) {
				logger.Warn("rate limit exceeded", "ip", key, "path", r.URL.Path)
				w.Header().Set("Retry-After", retryAfterSeconds(limiter.RetryAfter(key)))
				response.Error(w, domainerrors.CodeRateLimited, "Too many requests. Please try again later.", logger)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the client IP. Checks X-Forwarded-For and X-Real-IP before
// falling back to the remote address.
func clientIP(header func(string) string, remoteAddr string) string {
	if xff := header("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := header("X-Real-IP"); xri != "" {
		return xri
	}

	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

package api

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// limitTriggers returns huma middleware that rate limits an operation per
// client IP and path ID. Exceeding the limit returns 429 with Retry-After.
func (s *Server) limitTriggers(action string) huma.Middlewares {
	return huma.Middlewares{func(ctx huma.Context, next func(huma.Context)) {
		key := action + ":" + clientIP(ctx)
		if id := ctx.Param("id"); id != "" {
			key += ":" + id
		}

		ok, wait := s.triggers.Reserve(key)
		if !ok {
			s.logger.Warn("rate limit exceeded",
				"action", action,
				"key", key,
				"path", ctx.URL().Path,
			)
			ctx.SetHeader("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			_ = huma.WriteErr(s.api, ctx, http.StatusTooManyRequests, "Too many requests. Please try again later.")
			return
		}

		next(ctx)
	}}
}

// clientIP extracts the client IP from the request.
// Checks X-Forwarded-For and X-Real-IP headers before falling back to RemoteAddr.
func clientIP(ctx huma.Context) string {
	if xff := ctx.Header("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := ctx.Header("X-Real-IP"); xri != "" {
		return xri
	}

	addr := ctx.RemoteAddr()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

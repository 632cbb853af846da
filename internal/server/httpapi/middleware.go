package httpapi

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/filegate/internal/common"
	"github.com/dmitrijs2005/filegate/internal/server/auth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

type ctxKey string

const identityKey ctxKey = "identity"

// quietRoutes are polled by probes and scrapers; successful hits log at debug.
var quietRoutes = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

const (
	publicBurst = 5
	visitorIdle = 5 * time.Minute
)

// identityFrom returns the identity put into ctx by authenticate.
func identityFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(identityKey).(string)
	return id, ok && id != ""
}

// authenticate resolves the bearer token to an identity. Nothing in the
// request other than the token's subject is trusted as the caller.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(common.AuthorizationHeaderName)
		token, ok := strings.CutPrefix(header, common.BearerPrefix)
		if !ok || strings.TrimSpace(token) == "" {
			s.writeError(w, r, common.ErrInvalidToken)
			return
		}

		identity, err := auth.GetIdentityFromToken(strings.TrimSpace(token), s.jwtSecret)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// observe logs each request and feeds the request metrics.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}

		if s.metrics != nil {
			s.metrics.Observe(route, r.Method, status, elapsed)
		}

		logf := s.logger.Info
		if _, quiet := quietRoutes[route]; quiet && status < http.StatusBadRequest {
			logf = s.logger.Debug
		}
		logf(r.Context(), "request",
			"method", r.Method,
			"route", route,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", elapsed.String(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// throttle applies the per-client-IP limit of the public routes.
func (s *Server) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !s.limiter.Allow(ip) {
			s.logger.Warn(r.Context(), "rate limit exceeded", "ip", ip, "path", r.URL.Path)
			s.writeError(w, r, common.ErrRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		if r.RemoteAddr == "" {
			return "unknown"
		}
		return r.RemoteAddr
	}
	return host
}

// ipLimiter keeps one token bucket per client IP. Idle buckets are dropped
// during a sweep that runs on access at most once per visitorIdle.
type ipLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	rps       rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newIPLimiter returns nil, which allows everything, when perMinute <= 0.
func newIPLimiter(perMinute, burst int) *ipLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &ipLimiter{
		visitors: map[string]*visitor{},
		rps:      rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
		now:      time.Now,
	}
}

func (l *ipLimiter) Allow(ip string) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= visitorIdle {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) >= visitorIdle {
				delete(l.visitors, k)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now

	return v.limiter.AllowN(now, 1)
}

package api

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	requestIDHeader  = "X-Request-Id"
	adminTokenHeader = "X-Admin-Token"
)

// RequestIDFrom returns the id assigned by chi's RequestID middleware.
func RequestIDFrom(ctx context.Context) string {
	return middleware.GetReqID(ctx)
}

// echoRequestID copies the id chi assigned into the response header.
func echoRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set(requestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		zap.L().Info("api: request",
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// recoverer logs the panic through zap and answers with the JSON envelope;
// chi's Recoverer prints to stderr and writes an empty 500.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				zap.L().Error("api: panic",
					zap.String("request_id", RequestIDFrom(r.Context())),
					zap.Any("panic", rec),
					zap.Stack("stack"),
				)
				writeFail(w, http.StatusInternalServerError, "unexpected error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// adminOnly requires the configured admin token. An unset token locks the
// admin surface entirely.
func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminToken == "" {
			writeFail(w, http.StatusInternalServerError, "admin token is not configured")
			return
		}
		got := r.Header.Get(adminTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.AdminToken)) != 1 {
			writeFail(w, http.StatusUnauthorized, "unauthorized: missing or wrong "+adminTokenHeader)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(clientKey(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(int(s.limiter.every.Seconds())+1))
			writeFail(w, http.StatusTooManyRequests, "too many requests, try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// clientLimiter keeps one token bucket per client address. Idle buckets are
// swept once the map grows past sweepAt.
type clientLimiter struct {
	mu      sync.Mutex
	every   time.Duration
	burst   int
	clients map[string]*clientBucket
	sweepAt int
	now     func() time.Time
}

type clientBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func newClientLimiter(every time.Duration, burst int) *clientLimiter {
	return &clientLimiter{
		every:   every,
		burst:   burst,
		clients: make(map[string]*clientBucket),
		sweepAt: 10000,
		now:     time.Now,
	}
}

func (c *clientLimiter) allow(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	b, ok := c.clients[key]
	if !ok {
		if len(c.clients) >= c.sweepAt {
			c.sweep(now)
		}
		b = &clientBucket{lim: rate.NewLimiter(rate.Every(c.every), c.burst)}
		c.clients[key] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

// sweep drops buckets idle long enough to have refilled completely.
func (c *clientLimiter) sweep(now time.Time) {
	idle := c.every * time.Duration(c.burst)
	for k, b := range c.clients {
		if now.Sub(b.seen) > idle {
			delete(c.clients, k)
		}
	}
}

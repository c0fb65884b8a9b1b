// Package httpapi exposes the progression service over REST plus a WebSocket
// event stream.
package httpapi

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	wsadapter "cyberlevels/adapters/websocket"
	"cyberlevels/core"
	"cyberlevels/engine"
	"cyberlevels/realtime"
)

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// APIKeys, if non-empty, enables static API key auth via Authorization: Bearer or X-API-Key.
	APIKeys []string
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
}

// NewMux builds an http.Handler exposing the progression REST API and
// WebSocket stream.
// Routes:
//   - POST {prefix}/users/{id}/join?name=steve
//   - POST {prefix}/users/{id}/leave
//   - POST {prefix}/users/{id}/exp?op=earn|add|remove|set&amount=12.5&source=mining&checkLevel=true
//   - POST {prefix}/users/{id}/level?op=add|remove|set&n=3
//   - GET  {prefix}/users/{id}
//   - DELETE {prefix}/users/{id}
//   - GET  {prefix}/leaderboard
//   - POST {prefix}/leaderboard/update
//   - GET  {prefix}/healthz
//   - WS   {prefix}/ws
func NewMux(svc engine.API, hub *realtime.Hub, opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(withPrefix(opts.PathPrefix, "/healthz"), func(w http.ResponseWriter, r *http.Request) {
		healthCheck(w, r, svc)
	})

	if hub != nil {
		mux.Handle(withPrefix(opts.PathPrefix, "/ws"), wsadapter.Handler(hub))
	}

	mux.HandleFunc(withPrefix(opts.PathPrefix, "/leaderboard"), func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, map[string]any{"leaderboard": svc.Leaderboard(r.Context())})
		default:
			writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
		}
	})

	mux.HandleFunc(withPrefix(opts.PathPrefix, "/leaderboard/update"), func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
			return
		}
		svc.RebuildLeaderboard()
		w.WriteHeader(http.StatusAccepted)
		writeJSON(w, map[string]any{"ok": true})
	})

	mux.HandleFunc(withPrefix(opts.PathPrefix, "/users/"), func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodPost && r.Method != http.MethodDelete {
			writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
			return
		}
		path := strings.TrimPrefix(r.URL.Path, opts.PathPrefix)
		if path == "" || path[0] != '/' {
			path = "/" + path
		}
		parts := split(path, '/')
		if len(parts) < 2 {
			writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
			return
		}
		user, err := core.ParseUserID(parts[1])
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_user", err.Error(), nil)
			return
		}

		switch r.Method {
		case http.MethodPost:
			if len(parts) < 3 {
				break
			}
			switch parts[2] {
			case "join":
				view, err := svc.Join(r.Context(), user, r.URL.Query().Get("name"))
				if err != nil {
					writeDomainError(w, err)
					return
				}
				writeJSON(w, view)
				return
			case "leave":
				if err := svc.Leave(r.Context(), user); err != nil {
					writeDomainError(w, err)
					return
				}
				writeJSON(w, map[string]any{"ok": true})
				return
			case "exp":
				handleExp(w, r, svc, user)
				return
			case "level":
				handleLevel(w, r, svc, user)
				return
			}
		case http.MethodGet:
			view, err := svc.GetUser(r.Context(), user)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			writeJSON(w, view)
			return
		case http.MethodDelete:
			if len(parts) != 2 {
				break
			}
			if err := svc.Remove(r.Context(), user); err != nil {
				writeDomainError(w, err)
				return
			}
			writeJSON(w, map[string]any{"ok": true})
			return
		}
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
	})

	var handler http.Handler = mux
	if opts.AllowCORSOrigin != "" {
		handler = withCORS(handler, opts.AllowCORSOrigin)
	}
	if len(opts.APIKeys) > 0 {
		handler = withAPIKeyAuth(handler, opts.APIKeys)
	}
	if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
		handler = withRateLimit(handler, opts.RateLimitRPM, opts.RateLimitBurst)
	}
	return handler
}

func handleExp(w http.ResponseWriter, r *http.Request, svc engine.API, user core.UserID) {
	q := r.URL.Query()
	amount := q.Get("amount")
	if amount == "" {
		writeError(w, http.StatusBadRequest, "missing_amount", "amount is required", nil)
		return
	}
	var (
		res engine.Result
		err error
	)
	switch q.Get("op") {
	case "", "earn":
		res, err = svc.EarnExp(r.Context(), user, amount, core.ExpSource(q.Get("source")))
	case "add":
		res, err = svc.AddExp(r.Context(), user, amount)
	case "remove":
		res, err = svc.RemoveExp(r.Context(), user, amount)
	case "set":
		checkLevel, _ := strconv.ParseBool(q.Get("checkLevel"))
		res, err = svc.SetExp(r.Context(), user, amount, checkLevel)
	default:
		writeError(w, http.StatusBadRequest, "invalid_op", "op must be earn, add, remove or set", nil)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, res)
}

func handleLevel(w http.ResponseWriter, r *http.Request, svc engine.API, user core.UserID) {
	q := r.URL.Query()
	n, err := strconv.ParseInt(q.Get("n"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_n", "n must be an integer", nil)
		return
	}
	var res engine.Result
	switch q.Get("op") {
	case "add":
		res, err = svc.AddLevel(r.Context(), user, n)
	case "remove":
		res, err = svc.RemoveLevel(r.Context(), user, n)
	case "set":
		res, err = svc.SetLevel(r.Context(), user, n)
	default:
		writeError(w, http.StatusBadRequest, "invalid_op", "op must be add, remove or set", nil)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, res)
}

// writeDomainError maps service errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var ferr *core.FormatError
	var everr *core.EvaluationError
	switch {
	case errors.Is(err, engine.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", err.Error(), nil)
	case errors.As(err, &ferr):
		writeError(w, http.StatusBadRequest, "invalid_amount", err.Error(), nil)
	case errors.As(err, &everr):
		writeError(w, http.StatusInternalServerError, "formula_error", err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
	}
}

// Helpers

// healthCheck verifies the service is working properly.
func healthCheck(w http.ResponseWriter, r *http.Request, svc engine.API) {
	// A probe lookup exercises storage without touching real data; an unknown
	// user is the healthy outcome.
	probe := core.UserID("00000000-0000-0000-0000-000000000000")
	_, err := svc.GetUser(r.Context(), probe)

	status := map[string]any{
		"status": "healthy",
		"checks": map[string]any{
			"storage": "ok",
		},
	}

	if err != nil && !errors.Is(err, engine.ErrUserNotFound) {
		w.WriteHeader(http.StatusServiceUnavailable)
		status["status"] = "unhealthy"
		status["checks"].(map[string]any)["storage"] = "failed"
	} else {
		w.WriteHeader(http.StatusOK)
	}

	writeJSON(w, status)
}

func withPrefix(prefix, path string) string {
	if prefix == "" || prefix == "/" {
		return path
	}
	if prefix[len(prefix)-1] == '/' {
		return prefix[:len(prefix)-1] + path
	}
	return prefix + path
}

func split(p string, sep rune) []string {
	var parts []string
	cur := make([]rune, 0, len(p))
	// trim leading '/'
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	for _, r := range p {
		if r == sep {
			if len(cur) > 0 {
				parts = append(parts, string(cur))
				cur = cur[:0]
			}
			continue
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		parts = append(parts, string(cur))
	}
	return parts
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{Code: code, Message: msg, Details: details})
}

// withCORS wraps a handler with a minimal CORS policy.
func withCORS(next http.Handler, origin string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withAPIKeyAuth enforces a shared API key list.
func withAPIKeyAuth(next http.Handler, apiKeys []string) http.Handler {
	allowed := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		k = strings.TrimSpace(k)
		if k != "" {
			allowed[k] = struct{}{}
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := extractAPIKey(r)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing API key", nil)
			return
		}
		if _, ok := allowed[key]; !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid API key", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit applies a simple token-bucket limiter per client key.
func withRateLimit(next http.Handler, rpm int, burst int) http.Handler {
	limiter := newRateLimiter(rpm, burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !limiter.allow(key) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return ""
}

// clientKey uses API key if present, otherwise remote IP.
func clientKey(r *http.Request) string {
	if key := extractAPIKey(r); key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type rateLimiter struct {
	rpm   float64
	burst float64
	mu    sync.Mutex
	b     map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newRateLimiter(rpm, burst int) *rateLimiter {
	return &rateLimiter{
		rpm:   float64(rpm),
		burst: float64(burst),
		b:     make(map[string]*bucket),
	}
}

func (l *rateLimiter) allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.b[key]
	if !ok {
		l.b[key] = &bucket{tokens: l.burst - 1, last: now}
		return true
	}

	elapsed := now.Sub(b.last).Minutes()
	b.tokens += elapsed * l.rpm
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	if b.tokens < 1 {
		b.last = now
		return false
	}
	b.tokens--
	b.last = now
	return true
}

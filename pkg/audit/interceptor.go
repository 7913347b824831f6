package audit

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"sofia/internal/util"
)

// ActorFunc returns the authenticated user ID for r, or "" when anonymous.
type ActorFunc func(r *http.Request) string

// Interceptor audits successful responses of the routes it wraps.
type Interceptor struct {
	rec      *Recorder
	actor    ActorFunc
	clientIP func(*http.Request) string
}

// NewInterceptor builds an interceptor. clientIP may be nil, in which case
// the connection's remote address is used.
func NewInterceptor(rec *Recorder, actor ActorFunc, clientIP func(*http.Request) string) *Interceptor {
	if clientIP == nil {
		clientIP = func(r *http.Request) string { return r.RemoteAddr }
	}
	return &Interceptor{rec: rec, actor: actor, clientIP: clientIP}
}

// Middleware records one audit entry labelled action for every 2xx response.
// The entry is scheduled after the handler has returned and the response
// has been flushed, so it never delays or alters what the client receives.
func (i *Interceptor) Middleware(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := util.NewStatusRecorder(w)
			next.ServeHTTP(rec, r)
			rec.Flush()

			status := rec.Status()
			if status < 200 || status > 299 {
				return
			}
			i.rec.Record(r.Context(), Entry{
				UserID:       i.actorOf(r),
				Action:       action,
				ResourceType: r.Method + " " + routePattern(r),
				ResourceID:   urlParam(r, "id"),
				IPAddress:    i.clientIP(r),
				UserAgent:    r.UserAgent(),
				Metadata: map[string]any{
					"method": r.Method,
					"path":   r.URL.Path,
					"status": status,
				},
			})
		})
	}
}

func (i *Interceptor) actorOf(r *http.Request) string {
	if i.actor == nil {
		return ""
	}
	return i.actor(r)
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func urlParam(r *http.Request, key string) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.URLParam(key)
	}
	return ""
}

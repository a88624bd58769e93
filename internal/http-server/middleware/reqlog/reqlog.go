package reqlog

import (
	"LiveChat/internal/lib/sl"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// New logs one line per request with status, size and duration.
func New(log *slog.Logger) func(next http.Handler) http.Handler {
	mod := sl.Module("middleware.reqlog")

	return func(next http.Handler) http.Handler {

		fn := func(w http.ResponseWriter, r *http.Request) {
			id := middleware.GetReqID(r.Context())
			remote := r.RemoteAddr
			// if the request is coming from a proxy, use the X-Forwarded-For header
			if xRemote := r.Header.Get("X-Forwarded-For"); xRemote != "" {
				remote = xRemote
			}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Header().Set("X-Request-ID", id)

			t1 := time.Now()
			defer func() {
				log.With(
					mod,
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", remote),
					slog.String("request_id", id),
					slog.Int("status", ww.Status()),
					slog.Int("size", ww.BytesWritten()),
					slog.Float64("duration", time.Since(t1).Seconds()),
				).Info("incoming request")
			}()

			next.ServeHTTP(ww, r)
		}

		return http.HandlerFunc(fn)
	}
}

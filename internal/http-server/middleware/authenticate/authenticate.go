package authenticate

import (
	"LiveChat/entity"
	"LiveChat/internal/lib/api/cont"
	"LiveChat/internal/lib/api/response"
	"LiveChat/internal/lib/sl"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// VisitorHeader carries the client generated visitor session id.
const VisitorHeader = "X-Visitor-Session"

type Authenticate interface {
	AuthenticateAgent(ctx context.Context, token string) (*entity.Agent, error)
	AuthenticateAccount(token string) (entity.Party, error)
}

func bearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// New requires a valid agent session token and stores the agent in the
// request context.
func New(log *slog.Logger, auth Authenticate) func(next http.Handler) http.Handler {
	mod := sl.Module("middleware.authenticate")
	log.With(mod).Info("authenticate middleware initialized")

	return func(next http.Handler) http.Handler {

		fn := func(w http.ResponseWriter, r *http.Request) {
			logger := log.With(
				mod,
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			token := bearer(r)
			if token == "" {
				authFailed(w, r, fmt.Errorf("%w: token not found", entity.ErrUnauthorized))
				return
			}

			agent, err := auth.AuthenticateAgent(r.Context(), token)
			if err != nil {
				logger.With(
					sl.Secret("token", token),
					sl.Err(err),
				).Debug("agent authentication failed")
				authFailed(w, r, err)
				return
			}

			w.Header().Set("X-User", agent.Username)
			next.ServeHTTP(w, r.WithContext(cont.PutAgent(r.Context(), agent)))
		}

		return http.HandlerFunc(fn)
	}
}

// Party resolves the conversation party: an account from a bearer token, or
// a visitor from the session header.
func Party(log *slog.Logger, auth Authenticate) func(next http.Handler) http.Handler {
	mod := sl.Module("middleware.party")

	return func(next http.Handler) http.Handler {

		fn := func(w http.ResponseWriter, r *http.Request) {
			var party entity.Party

			if token := bearer(r); token != "" {
				account, err := auth.AuthenticateAccount(token)
				if err != nil {
					log.With(
						mod,
						slog.String("request_id", middleware.GetReqID(r.Context())),
						sl.Err(err),
					).Debug("account authentication failed")
					authFailed(w, r, err)
					return
				}
				party = account
			} else {
				session := strings.TrimSpace(r.Header.Get(VisitorHeader))
				if session == "" {
					authFailed(w, r, fmt.Errorf("%w: %s header not found", entity.ErrUnauthorized, VisitorHeader))
					return
				}
				party = entity.NewVisitorParty(entity.VisitorParty{
					SessionID: session,
					IP:        remoteIP(r),
					UserAgent: r.UserAgent(),
				})
			}

			next.ServeHTTP(w, r.WithContext(cont.PutParty(r.Context(), party)))
		}

		return http.HandlerFunc(fn)
	}
}

// AdminOnly must run after New.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent := cont.GetAgent(r.Context())
		if agent == nil {
			authFailed(w, r, entity.ErrUnauthorized)
			return
		}
		if !agent.IsAdmin() {
			response.Render(w, r, fmt.Errorf("%w: admin role required", entity.ErrForbidden))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// remoteIP prefers the first X-Forwarded-For hop when behind a proxy.
func remoteIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func authFailed(w http.ResponseWriter, r *http.Request, err error) {
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, response.ErrorCode(response.CodeUnauthorized, err.Error()))
}

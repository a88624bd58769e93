package agent

import (
	"LiveChat/entity"
	"LiveChat/internal/lib/api/cont"
	"LiveChat/internal/lib/api/response"
	"LiveChat/internal/lib/sl"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

func Login(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.agent")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req entity.LoginRequest
		if err := render.Bind(r, &req); err != nil {
			response.Render(w, r, fmt.Errorf("%w: %v", entity.ErrValidation, err))
			return
		}

		session, err := handler.Login(r.Context(), req.Username, req.Password)
		if err != nil {
			logger.With(
				slog.String("username", req.Username),
				sl.Err(err),
			).Warn("login failed")
			response.Render(w, r, err)
			return
		}

		render.JSON(w, r, response.Ok(session))
	}
}

func Me(_ *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent := cont.GetAgent(r.Context())
		if agent == nil {
			response.Render(w, r, entity.ErrUnauthorized)
			return
		}
		render.JSON(w, r, response.Ok(handler.Me(agent)))
	}
}

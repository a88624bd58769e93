package chat

import (
	"LiveChat/entity"
	"LiveChat/internal/lib/api/cont"
	"LiveChat/internal/lib/api/response"
	"LiveChat/internal/lib/sl"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

func History(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.chat")

		party, ok := cont.GetParty(r.Context())
		if !ok {
			response.Render(w, r, entity.ErrUnauthorized)
			return
		}

		messages, err := handler.VisitorHistory(r.Context(), chi.URLParam(r, "id"), party)
		if err != nil {
			log.With(
				mod,
				slog.String("request_id", middleware.GetReqID(r.Context())),
				sl.Err(err),
			).Debug("visitor history")
			response.Render(w, r, err)
			return
		}

		render.JSON(w, r, response.Ok(messages))
	}
}

func PostMessage(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.chat")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		party, ok := cont.GetParty(r.Context())
		if !ok {
			response.Render(w, r, entity.ErrUnauthorized)
			return
		}

		var req entity.PostMessageRequest
		if err := render.Bind(r, &req); err != nil {
			response.Render(w, r, fmt.Errorf("%w: %v", entity.ErrValidation, err))
			return
		}

		msg, err := handler.PostVisitorMessage(r.Context(), chi.URLParam(r, "id"), party, req.Body, req.ClientID)
		if err != nil {
			logger.Debug("post visitor message", sl.Err(err))
			response.Render(w, r, err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.Ok(msg))
	}
}

package agent

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

func ListConversations(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent := cont.GetAgent(r.Context())
		if agent == nil {
			response.Render(w, r, entity.ErrUnauthorized)
			return
		}

		status := entity.ConversationStatus(r.URL.Query().Get("status"))
		list, err := handler.AgentConversations(r.Context(), agent, status)
		if err != nil {
			log.With(
				sl.Module("http.handlers.agent"),
				slog.String("request_id", middleware.GetReqID(r.Context())),
				sl.Err(err),
			).Error("list conversations")
			response.Render(w, r, err)
			return
		}

		render.JSON(w, r, response.Ok(list))
	}
}

func Claim(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent := cont.GetAgent(r.Context())
		if agent == nil {
			response.Render(w, r, entity.ErrUnauthorized)
			return
		}

		conv, err := handler.ClaimConversation(r.Context(), chi.URLParam(r, "id"), agent)
		if err != nil {
			log.With(
				sl.Module("http.handlers.agent"),
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("agent", agent.Username),
				sl.Err(err),
			).Debug("claim conversation")
			response.Render(w, r, err)
			return
		}

		render.JSON(w, r, response.Ok(conv))
	}
}

func Close(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent := cont.GetAgent(r.Context())
		if agent == nil {
			response.Render(w, r, entity.ErrUnauthorized)
			return
		}

		conv, err := handler.CloseByAgent(r.Context(), chi.URLParam(r, "id"), agent)
		if err != nil {
			log.With(
				sl.Module("http.handlers.agent"),
				slog.String("request_id", middleware.GetReqID(r.Context())),
				sl.Err(err),
			).Debug("close conversation")
			response.Render(w, r, err)
			return
		}

		render.JSON(w, r, response.Ok(conv))
	}
}

func History(_ *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent := cont.GetAgent(r.Context())
		if agent == nil {
			response.Render(w, r, entity.ErrUnauthorized)
			return
		}

		messages, err := handler.AgentHistory(r.Context(), chi.URLParam(r, "id"), agent)
		if err != nil {
			response.Render(w, r, err)
			return
		}

		render.JSON(w, r, response.Ok(messages))
	}
}

func PostMessage(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent := cont.GetAgent(r.Context())
		if agent == nil {
			response.Render(w, r, entity.ErrUnauthorized)
			return
		}

		var req entity.PostMessageRequest
		if err := render.Bind(r, &req); err != nil {
			response.Render(w, r, fmt.Errorf("%w: %v", entity.ErrValidation, err))
			return
		}

		msg, err := handler.PostAgentMessage(r.Context(), chi.URLParam(r, "id"), agent, req.Body, req.ClientID)
		if err != nil {
			log.With(
				sl.Module("http.handlers.agent"),
				slog.String("request_id", middleware.GetReqID(r.Context())),
				sl.Err(err),
			).Debug("post agent message")
			response.Render(w, r, err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.Ok(msg))
	}
}

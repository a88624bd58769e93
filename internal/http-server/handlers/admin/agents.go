package admin

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

func CreateAgent(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.admin")

		var req entity.AgentCreateRequest
		if err := render.Bind(r, &req); err != nil {
			response.Render(w, r, fmt.Errorf("%w: %v", entity.ErrValidation, err))
			return
		}

		agent, err := handler.CreateAgent(r.Context(), &req)
		if err != nil {
			log.With(
				mod,
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("username", req.Username),
				sl.Err(err),
			).Warn("create agent")
			response.Render(w, r, err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.Ok(agent))
	}
}

func ListAgents(_ *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agents, err := handler.ListAgents(r.Context())
		if err != nil {
			response.Render(w, r, err)
			return
		}
		render.JSON(w, r, response.Ok(agents))
	}
}

func GetAgent(_ *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent, err := handler.GetAgent(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			response.Render(w, r, err)
			return
		}
		render.JSON(w, r, response.Ok(agent))
	}
}

func UpdateAgent(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.admin")

		var req entity.AgentUpdateRequest
		if err := render.Bind(r, &req); err != nil {
			response.Render(w, r, fmt.Errorf("%w: %v", entity.ErrValidation, err))
			return
		}

		agent, err := handler.UpdateAgent(r.Context(), cont.GetAgent(r.Context()), chi.URLParam(r, "id"), &req)
		if err != nil {
			log.With(
				mod,
				slog.String("request_id", middleware.GetReqID(r.Context())),
				sl.Err(err),
			).Warn("update agent")
			response.Render(w, r, err)
			return
		}

		render.JSON(w, r, response.Ok(agent))
	}
}

func DisableAgent(_ *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent, err := handler.DisableAgent(r.Context(), cont.GetAgent(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			response.Render(w, r, err)
			return
		}
		render.JSON(w, r, response.Ok(agent))
	}
}

func DeleteAgent(_ *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := handler.DeleteAgent(r.Context(), cont.GetAgent(r.Context()), chi.URLParam(r, "id")); err != nil {
			response.Render(w, r, err)
			return
		}
		render.JSON(w, r, response.Ok(nil))
	}
}

package admin

import (
	"LiveChat/entity"
	"LiveChat/internal/lib/api/response"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", entity.ErrValidation, name)
	}
	return n, nil
}

func ListConversations(_ *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := queryInt(r, "page")
		if err != nil {
			response.Render(w, r, err)
			return
		}
		limit, err := queryInt(r, "limit")
		if err != nil {
			response.Render(w, r, err)
			return
		}

		result, err := handler.ListConversations(r.Context(), entity.ConversationFilter{
			Status:  entity.ConversationStatus(r.URL.Query().Get("status")),
			AgentID: r.URL.Query().Get("agent_id"),
			Page:    page,
			Limit:   limit,
		})
		if err != nil {
			response.Render(w, r, err)
			return
		}

		render.JSON(w, r, response.Ok(result))
	}
}

func ConversationDetail(_ *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		detail, err := handler.ConversationDetail(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			response.Render(w, r, err)
			return
		}
		render.JSON(w, r, response.Ok(detail))
	}
}

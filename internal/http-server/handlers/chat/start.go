package chat

import (
	"LiveChat/entity"
	"LiveChat/internal/lib/api/cont"
	"LiveChat/internal/lib/api/response"
	"LiveChat/internal/lib/sl"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// Start opens a conversation for the calling party, or returns the one
// already open.
func Start(log *slog.Logger, handler Core) http.HandlerFunc {
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

		var req entity.StartRequest
		if err := render.Bind(r, &req); err != nil && !errors.Is(err, io.EOF) {
			logger.Debug("bind request", sl.Err(err))
			response.Render(w, r, fmt.Errorf("%w: %v", entity.ErrValidation, err))
			return
		}

		if party.Kind == entity.PartyVisitor {
			party.Visitor.Name = req.Name
			party.Visitor.Email = req.Email
			party.Visitor.Source = req.Source
		}

		conv, err := handler.StartConversation(r.Context(), party, req.Subject)
		if err != nil {
			logger.Error("start conversation", sl.Err(err))
			response.Render(w, r, err)
			return
		}

		render.JSON(w, r, response.Ok(conv))
	}
}

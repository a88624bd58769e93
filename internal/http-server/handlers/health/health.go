package health

import (
	"LiveChat/internal/lib/api/response"
	"net/http"

	"github.com/go-chi/render"
)

func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, response.Ok(map[string]string{"status": "ok"}))
	}
}

package handler

import (
	"net/http"

	"GistAPI/internal/model"
)

// Health reports liveness and the loaded registry version.
func Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if reg := model.Registry(); reg != nil {
		body["registry"] = reg.Version()
		body["schemas"] = len(reg.Models())
		body["stats"] = reg.Stats()
	} else {
		body["status"] = "starting"
	}
	writeJSON(w, r, http.StatusOK, body)
}

package host

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/vedran77/rentals/internal/functions"
	"github.com/vedran77/rentals/pkg/secret"
)

const maxRequestBody = 1 << 20

// Handler serves executions over HTTP. Every request must present a key
// matching keyHash in the functions.HeaderKey header.
func (h *Host) Handler(keyHash string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /functions/{name}/executions", func(w http.ResponseWriter, r *http.Request) {
		if !secret.Verify(r.Header.Get(functions.HeaderKey), keyHash) {
			writeJSON(w, http.StatusUnauthorized, Failure{Message: "Invalid function key."})
			return
		}

		name := r.PathValue("name")
		if !h.Has(name) {
			writeJSON(w, http.StatusNotFound, Failure{Message: "Function not found."})
			return
		}

		var req functions.Request
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, Failure{Message: "Invalid execution request."})
			return
		}

		id := req.ID
		if id == "" {
			id = uuid.NewString()
		}

		if req.Async {
			h.Start(r.Context(), id, name, req.Payload)
			writeJSON(w, http.StatusAccepted, functions.Execution{ID: id, Function: name, Status: functions.StatusQueued})
			return
		}

		writeJSON(w, http.StatusOK, h.Run(r.Context(), id, name, req.Payload))
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

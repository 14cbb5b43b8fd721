package brain

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"agentgate/internal/domain"
)

const maxRequestBytes = 8 << 20 // room for a base64 image

// Handler serves POST /brain/process: a BrainRequest in, a BrainResponse out.
func Handler(p domain.Processor, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		var req domain.BrainRequest
		dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
		if err := dec.Decode(&req); err != nil {
			logger.Warn("bad brain request", "err", err)
			writeError(rw, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(req.Message) == "" && req.Image == "" {
			writeError(rw, http.StatusBadRequest, "message is required")
			return
		}

		resp := p.Process(r.Context(), req)
		rw.Header().Set("Content-Type", "application/json")
		json.NewEncoder(rw).Encode(resp)
	})
}

func writeError(rw http.ResponseWriter, status int, msg string) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(map[string]string{"error": msg})
}

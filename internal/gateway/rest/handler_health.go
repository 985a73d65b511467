package rest

import (
	"net/http"

	"github.com/syntrixbase/msgstore/internal/server"
)

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if h.svc.Halted() {
		writeError(w, http.StatusServiceUnavailable, ErrCodeHalted, "Store halted")
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func requestID(r *http.Request) string {
	return server.GetRequestID(r.Context())
}

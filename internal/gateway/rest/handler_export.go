package rest

import (
	"net/http"
)

// handleExport moves every message into a backup directory. GET takes the
// directory from the query string, POST from a JSON body.
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	var req *ExportRequest
	var err error
	if r.Method == http.MethodPost {
		req, err = decodeAndValidate[ExportRequest](r)
	} else {
		req, err = decodeQuery[ExportRequest](r.URL.Query())
	}
	if err != nil {
		h.writeServiceError(w, r, "Export", err)
		return
	}

	res, err := h.svc.Export(r.Context(), req.Directory)
	if err != nil {
		h.writeServiceError(w, r, "Export", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

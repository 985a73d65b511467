package rest

import (
	"net/http"
)

func (h *Handler) handleGetStore(w http.ResponseWriter, r *http.Request) {
	q, err := decodeQuery[GroupQuery](r.URL.Query())
	if err != nil {
		h.writeServiceError(w, r, "Get store", err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.StoreSnapshot(q.IncludeMsgData))
}

func (h *Handler) handlePutStore(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAndValidate[StoreRequest](r)
	if err != nil {
		h.writeServiceError(w, r, "Set store max", err)
		return
	}
	pruned, err := h.svc.SetStoreMax(r.Context(), req.MaxByteSize)
	if err != nil {
		h.writeServiceError(w, r, "Set store max", err)
		return
	}
	if req.MaxByteSize != nil {
		h.logger.Info("Store max set", "max_byte_size", *req.MaxByteSize, "pruned", pruned)
	} else {
		h.logger.Info("Store max removed")
	}
	writeJSON(w, http.StatusOK, PruneResponse{Pruned: pruned})
}

func (h *Handler) handleGetStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Stats())
}

// handlePutStats adds to or replaces counters and returns the previous values.
func (h *Handler) handlePutStats(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAndValidate[StatsRequest](r)
	if err != nil {
		h.writeServiceError(w, r, "Update stats", err)
		return
	}
	if req.Add {
		writeJSON(w, http.StatusOK, h.svc.AddStats(req.Update()))
		return
	}
	writeJSON(w, http.StatusOK, h.svc.ReplaceStats(req.Update()))
}

// handleDeleteStats resets counters and returns the previous values.
func (h *Handler) handleDeleteStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.ResetStats())
}
